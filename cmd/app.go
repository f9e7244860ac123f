package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"

	"anomaly-watchdog/internal/config"
	"anomaly-watchdog/internal/history"
	"anomaly-watchdog/internal/monitoring/analyzer"
	"anomaly-watchdog/internal/monitoring/engine"
	"anomaly-watchdog/internal/monitoring/ml"
	"anomaly-watchdog/internal/monitoring/models"
	"anomaly-watchdog/internal/monitoring/prometheus"
	"anomaly-watchdog/internal/monitoring/source"
	"anomaly-watchdog/internal/monitoring/storage"
	"anomaly-watchdog/internal/notify"
)

// app componentes montados a partir da configuração
type app struct {
	cfg     *config.Config
	source  source.MetricSource
	events  *storage.EventLog
	history *history.TrainingHistory
	model   *ml.Service
	redis   *notify.RedisSink
	sink    notify.Sink
	engine  *engine.Engine
}

// appOptions variações por comando
type appOptions struct {
	source  source.MetricSource // nil = Prometheus configurado
	clock   clock.Clock         // nil = relógio real
	persist bool                // false = eventos não são gravados no SQLite
	notify  bool                // false = somente MemorySink
	sink    notify.Sink         // sink adicional (ex: saída do check)
}

// newPrometheusSource cria o client Prometheus com as queries de cada métrica
func newPrometheusSource(cfg *config.Config) (*prometheus.Client, error) {
	queries, err := cfg.Queries()
	if err != nil {
		return nil, fmt.Errorf("invalid metric queries: %w", err)
	}
	return prometheus.NewClient(cfg.Source.PrometheusURL, queries)
}

// buildApp monta fonte, armazenamento, modelo, sinks e engine
func buildApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	a := &app{cfg: cfg, source: opts.source}

	if a.source == nil {
		client, err := newPrometheusSource(cfg)
		if err != nil {
			return nil, err
		}
		a.source = client
	}

	if opts.persist {
		events, err := storage.NewEventLog(&storage.EventLogConfig{DBPath: cfg.Storage.DBPath})
		if err != nil {
			return nil, err
		}
		a.events = events
	}

	if err := a.buildModel(opts.clock); err != nil {
		a.close()
		return nil, err
	}

	if err := a.buildSink(ctx, opts); err != nil {
		a.close()
		return nil, err
	}

	deps := engine.Dependencies{
		Source:      a.source,
		Detector:    analyzer.NewDetector(cfg.DetectorConfig(), cfg.DetectorOverrides()),
		Correlation: analyzer.NewCorrelationAnalyzer(cfg.CorrelationThreshold),
		Sink:        a.sink,
		Cache: storage.NewWindowCache(&storage.CacheConfig{
			Window: cfg.CorrelationWindow(),
			Step:   cfg.Step(),
		}),
		Clock: opts.clock,
	}
	// Interface só recebe o valor quando configurado (evita interface com ponteiro nil)
	if a.events != nil {
		deps.Events = a.events
	}
	if a.model != nil {
		deps.Model = a.model
	}

	eng, err := engine.New(&engine.Config{
		Metrics:           cfg.MetricNames(),
		Interval:          cfg.CycleInterval(),
		CorrelationEvery:  cfg.CorrelationCycleMultiple,
		CorrelationWindow: cfg.CorrelationWindow(),
		Step:              cfg.Step(),
		QueryTimeout:      cfg.QueryTimeout(),
		Workers:           cfg.Workers,
	}, deps)
	if err != nil {
		a.close()
		return nil, err
	}
	a.engine = eng

	return a, nil
}

func (a *app) buildModel(clk clock.Clock) error {
	mv := a.cfg.Multivariate
	if !mv.Enabled {
		return nil
	}

	store, err := storage.NewModelStore(a.cfg.Storage.ModelDir)
	if err != nil {
		return err
	}

	tracker, err := history.NewTrainingHistory(a.cfg.Storage.HistoryDir)
	if err != nil {
		return err
	}
	a.history = tracker

	a.model = ml.NewService(&ml.ServiceConfig{
		Name:               mv.Name,
		Features:           mv.Features,
		EnsembleSize:       a.cfg.EnsembleSize,
		SubsampleSize:      mv.SubsampleSize,
		ContaminationRate:  a.cfg.ContaminationRate,
		Seed:               mv.RandomSeed,
		TrainingWindow:     a.cfg.TrainingWindow(),
		TrainingStep:       a.cfg.TrainingStep(),
		MinTrainingSamples: mv.MinTrainingSamples,
	}, a.source, store, tracker, clk)

	if err := a.model.LoadPersisted(); err != nil {
		if models.IsModelNotTrained(err) {
			log.Info().Str("model", mv.Name).Msg("Nenhum modelo multivariado salvo, aguardando primeiro treino")
			return nil
		}
		// Modelo incompatível desabilita a pontuação até novo treino
		log.Warn().Err(err).Str("model", mv.Name).Msg("Modelo multivariado salvo não pôde ser usado")
	}

	return nil
}

func (a *app) buildSink(ctx context.Context, opts appOptions) error {
	multi := notify.NewMultiSink()

	if opts.notify {
		if a.cfg.Notify.Log {
			multi.Add(notify.NewLogSink())
		}
		if a.cfg.Notify.RedisAddr != "" {
			redisSink, err := notify.NewRedisSink(ctx, notify.RedisConfig{
				Addr:     a.cfg.Notify.RedisAddr,
				Password: a.cfg.Notify.RedisPassword,
				DB:       a.cfg.Notify.RedisDB,
				Channel:  a.cfg.Notify.RedisChannel,
			})
			if err != nil {
				return err
			}
			a.redis = redisSink
			multi.Add(redisSink)
		}
	}

	if opts.sink != nil {
		multi.Add(opts.sink)
	}
	if multi.Len() == 0 {
		multi.Add(notify.NewMemorySink(0))
	}

	a.sink = multi
	return nil
}

// close libera conexões e arquivos
func (a *app) close() error {
	var errs error
	if a.redis != nil {
		errs = multierr.Append(errs, a.redis.Close())
	}
	if a.events != nil {
		errs = multierr.Append(errs, a.events.Close())
	}
	return errs
}

// withTimeout contexto para comandos one-shot
func withTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d)
}
