package engine

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"anomaly-watchdog/internal/metrics"
	"anomaly-watchdog/internal/monitoring/analyzer"
	"anomaly-watchdog/internal/monitoring/models"
	"anomaly-watchdog/internal/monitoring/source"
	"anomaly-watchdog/internal/monitoring/storage"
	"anomaly-watchdog/internal/notify"
	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// UnpersistedPrefix prefixo do título quando o evento não pôde ser gravado
const UnpersistedPrefix = "[unpersisted] "

// State estado do orquestrador. Não há estado terminal.
type State int32

const (
	StateIdle State = iota
	StateCollecting
	StateDetecting
	StateReporting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCollecting:
		return "collecting"
	case StateDetecting:
		return "detecting"
	case StateReporting:
		return "reporting"
	default:
		return "unknown"
	}
}

// EventStore log de eventos. Append retorna false para evento já registrado.
type EventStore interface {
	Append(ctx context.Context, event models.AnomalyEvent) (bool, error)
}

// Scorer modelo multivariado usado no ciclo
type Scorer interface {
	Name() string
	Features() []string
	Score(vector models.FeatureVector) (*models.AnomalyEvent, error)
}

// Config configuração do orquestrador
type Config struct {
	Metrics           []string      // métricas avaliadas a cada ciclo
	Interval          time.Duration // intervalo entre ciclos (default: 60s)
	CorrelationEvery  int           // correlação a cada N ciclos (default: 10)
	CorrelationWindow time.Duration // janela da correlação (default: 60min)
	Step              time.Duration // resolução das consultas (default: 60s)
	QueryTimeout      time.Duration // limite de cada consulta (default: 15s)
	Workers           int           // métricas avaliadas em paralelo (default: NumCPU)
}

// DefaultConfig retorna configuração padrão
func DefaultConfig() *Config {
	return &Config{
		Interval:          60 * time.Second,
		CorrelationEvery:  10,
		CorrelationWindow: 60 * time.Minute,
		Step:              60 * time.Second,
		QueryTimeout:      source.DefaultQueryTimeout,
		Workers:           runtime.NumCPU(),
	}
}

// Dependencies componentes do engine. Apenas Source é obrigatório.
type Dependencies struct {
	Source      source.MetricSource
	Detector    *analyzer.Detector
	Correlation *analyzer.CorrelationAnalyzer
	Model       Scorer
	Events      EventStore
	Sink        notify.Sink
	Cache       *storage.WindowCache
	Clock       clock.Clock
}

// Engine orquestra coleta, detecção e reporte em ciclos periódicos
type Engine struct {
	config *Config

	// Componentes
	source      *source.BoundedSource
	detector    *analyzer.Detector
	correlation *analyzer.CorrelationAnalyzer
	model       Scorer
	events      EventStore
	sink        notify.Sink
	cache       *storage.WindowCache
	clock       clock.Clock
	cadence     *Cadence

	state atomic.Int32

	// Controle
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	paused  bool
	mu      sync.RWMutex
	wg      sync.WaitGroup
	cycleMu sync.Mutex

	lastCycle       *CycleReport
	lastCorrelation *models.CorrelationReport
}

// New cria engine
func New(cfg *Config, deps Dependencies) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if len(cfg.Metrics) == 0 {
		return nil, fmt.Errorf("engine requires at least one metric")
	}
	if deps.Source == nil {
		return nil, fmt.Errorf("engine requires a metric source")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Step <= 0 {
		cfg.Step = 60 * time.Second
	}
	if cfg.CorrelationWindow <= 0 {
		cfg.CorrelationWindow = 60 * time.Minute
	}

	if deps.Detector == nil {
		deps.Detector = analyzer.NewDetector(nil, nil)
	}
	if deps.Correlation == nil {
		deps.Correlation = analyzer.NewCorrelationAnalyzer(0)
	}
	if deps.Sink == nil {
		deps.Sink = notify.NewLogSink()
	}
	if deps.Cache == nil {
		deps.Cache = storage.NewWindowCache(nil)
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}

	return &Engine{
		config:      cfg,
		source:      source.WithTimeout(deps.Source, cfg.QueryTimeout),
		detector:    deps.Detector,
		correlation: deps.Correlation,
		model:       deps.Model,
		events:      deps.Events,
		sink:        deps.Sink,
		cache:       deps.Cache,
		clock:       deps.Clock,
		cadence:     NewCadence(cfg.Interval, cfg.CorrelationEvery, deps.Clock),
	}, nil
}

// Start inicia o loop periódico. O primeiro ciclo roda imediatamente.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.running = true
	e.paused = false
	ctx := e.ctx
	interval, _ := e.cadence.GetConfig()
	ticker := e.clock.Ticker(interval)
	e.mu.Unlock()

	log.Info().
		Strs("metrics", e.config.Metrics).
		Dur("interval", interval).
		Int("workers", e.config.Workers).
		Int("correlation_every", e.config.CorrelationEvery).
		Bool("multivariate", e.model != nil).
		Msg("Iniciando detection engine")

	e.wg.Add(1)
	go e.loop(ctx, ticker)

	return nil
}

// Stop para o loop. O ciclo em andamento termina; nenhum novo ciclo começa.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	e.cancel()
	e.mu.Unlock()

	log.Info().Msg("Parando detection engine")

	e.wg.Wait()

	log.Info().
		Int64("cycles", e.cadence.Cycles()).
		Msg("Detection engine parado")
	return nil
}

// Pause pausa os ciclos (ticker continua)
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running && !e.paused {
		e.paused = true
		log.Info().Msg("Detecção pausada")
	}
}

// Resume retoma os ciclos
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running && e.paused {
		e.paused = false
		log.Info().Msg("Detecção retomada")
	}
}

// IsRunning retorna se engine está rodando
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// IsPaused retorna se engine está pausado
func (e *Engine) IsPaused() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.paused
}

// State estado atual
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Cache janelas de baseline por métrica
func (e *Engine) Cache() *storage.WindowCache {
	return e.cache
}

// Metrics métricas avaliadas
func (e *Engine) Metrics() []string {
	return e.config.Metrics
}

// LastCycle relatório do último ciclo concluído (nil = nenhum)
func (e *Engine) LastCycle() *CycleReport {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastCycle
}

// LatestCorrelation último relatório de correlação (nil = nenhum)
func (e *Engine) LatestCorrelation() *models.CorrelationReport {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastCorrelation
}

func (e *Engine) loop(ctx context.Context, ticker *clock.Ticker) {
	defer e.wg.Done()
	defer ticker.Stop()

	log.Info().Msg("Detection loop iniciado")

	e.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Detection loop encerrado (context cancelled)")
			return

		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if e.IsPaused() {
		return
	}

	// Stop não interrompe o ciclo em andamento
	e.RunCycle(context.WithoutCancel(ctx))
}

// metricSnapshot amostras de uma métrica lidas no início do ciclo
type metricSnapshot struct {
	metric  string
	samples []models.MetricSample
	dropped int
	err     error
}

// RunCycle executa um ciclo completo: coleta, detecção e reporte.
// Falhas de métricas ou detectores individuais ficam isoladas no relatório.
func (e *Engine) RunCycle(ctx context.Context) *CycleReport {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	slot := e.cadence.Begin()
	now := e.clock.Now()
	report := &CycleReport{
		Number:    slot.Number,
		StartedAt: now.UTC(),
		Events:    []models.AnomalyEvent{},
	}

	// 1. Snapshot único de todas as métricas
	e.setState(StateCollecting)
	snapshots := e.collect(ctx, now)

	// 2. Detectores univariados, multivariado e correlação sobre o snapshot
	e.setState(StateDetecting)
	for _, snap := range snapshots {
		if snap.err != nil {
			report.SourceErrors++
			metrics.SourceErrorsTotal.WithLabelValues(snap.metric).Inc()
			log.Warn().
				Err(snap.err).
				Str("metric", snap.metric).
				Str("reason", models.Reason(snap.err)).
				Msg("Falha ao consultar métrica, detectores pulados neste ciclo")

			cfg := e.detector.ConfigFor(snap.metric)
			for _, kind := range analyzer.UnivariateDetectors() {
				if cfg.Enabled(kind) {
					report.Skipped = append(report.Skipped, analyzer.SkippedDetection{
						Metric: snap.metric, Detector: kind, Err: snap.err,
					})
				}
			}
			continue
		}
		if snap.dropped > 0 {
			report.DroppedSamples += snap.dropped
			log.Warn().
				Str("metric", snap.metric).
				Int("dropped", snap.dropped).
				Msg("Amostras não finitas descartadas do snapshot")
		}
		e.cache.Update(snap.metric, snap.samples)
	}

	for _, result := range e.detect(snapshots) {
		if result == nil {
			continue
		}
		report.Events = append(report.Events, result.Events...)
		report.Skipped = append(report.Skipped, result.Skipped...)
	}

	if e.model != nil {
		event, skipped := e.scoreMultivariate(ctx, snapshots, now)
		if event != nil {
			report.Events = append(report.Events, *event)
		}
		if skipped != nil {
			report.Skipped = append(report.Skipped, *skipped)
		}
	}

	if slot.Correlation {
		report.Correlation = e.correlate(ctx, snapshots, now)
		e.mu.Lock()
		e.lastCorrelation = report.Correlation
		e.mu.Unlock()
	}

	sortEvents(report.Events)
	for _, skip := range report.Skipped {
		reason := models.Reason(skip.Err)
		metrics.SkippedTotal.WithLabelValues(string(skip.Detector), reason).Inc()

		// Dados insuficientes são esperados no aquecimento; demais motivos indicam falha
		entry := log.Warn()
		if models.IsInsufficientData(skip.Err) {
			entry = log.Info()
		}
		entry.
			Str("metric", skip.Metric).
			Str("detector", string(skip.Detector)).
			Str("reason", reason).
			Err(skip.Err).
			Msg("Detecção pulada")
	}

	// 3. Persistência e notificação
	e.setState(StateReporting)
	e.report(ctx, report)

	e.setState(StateIdle)
	report.FinishedAt = e.clock.Now().UTC()

	status := "ok"
	if report.SourceErrors > 0 || report.PersistFailures > 0 || report.NotifyFailures > 0 {
		status = "partial"
	}
	metrics.CyclesTotal.WithLabelValues(status).Inc()
	metrics.CycleDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())

	e.mu.Lock()
	e.lastCycle = report
	e.mu.Unlock()

	log.Info().
		Int64("cycle", report.Number).
		Int("metrics", len(snapshots)).
		Int("events", len(report.Events)).
		Int("skipped", len(report.Skipped)).
		Int("source_errors", report.SourceErrors).
		Bool("correlation", slot.Correlation).
		Dur("duration", report.FinishedAt.Sub(report.StartedAt)).
		Msg("Ciclo de detecção concluído")

	return report
}

// collect faz uma consulta de range por métrica, em paralelo
func (e *Engine) collect(ctx context.Context, now time.Time) []metricSnapshot {
	snapshots := make([]metricSnapshot, len(e.config.Metrics))

	var g errgroup.Group
	g.SetLimit(e.config.Workers)

	for i, metric := range e.config.Metrics {
		g.Go(func() error {
			lookback := e.detector.ConfigFor(metric).Lookback()
			samples, err := e.source.QueryRange(ctx, metric, now.Add(-lookback), now, e.config.Step)
			// NaN/Inf não entram no snapshot compartilhado (multivariado, correlação, cache)
			samples, dropped := models.FiniteSamples(samples)
			snapshots[i] = metricSnapshot{metric: metric, samples: samples, dropped: dropped, err: err}
			return nil
		})
	}
	_ = g.Wait()

	return snapshots
}

// detect avalia cada métrica do snapshot, em paralelo
func (e *Engine) detect(snapshots []metricSnapshot) []*analyzer.DetectionResult {
	results := make([]*analyzer.DetectionResult, len(snapshots))

	var g errgroup.Group
	g.SetLimit(e.config.Workers)

	for i, snap := range snapshots {
		if snap.err != nil {
			continue
		}
		g.Go(func() error {
			results[i] = e.detector.Evaluate(snap.metric, snap.samples)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// scoreMultivariate monta o vetor com o último valor de cada feature no snapshot.
// Features ausentes no snapshot são consultadas com QueryInstant.
func (e *Engine) scoreMultivariate(ctx context.Context, snapshots []metricSnapshot, now time.Time) (*models.AnomalyEvent, *analyzer.SkippedDetection) {
	bySnapshot := make(map[string][]models.MetricSample, len(snapshots))
	for _, snap := range snapshots {
		if snap.err == nil {
			bySnapshot[snap.metric] = snap.samples
		}
	}

	features := e.model.Features()
	vector := models.FeatureVector{
		Features: features,
		Values:   make([]float64, len(features)),
	}

	skip := func(err error) *analyzer.SkippedDetection {
		return &analyzer.SkippedDetection{Metric: e.model.Name(), Detector: models.DetectorMultivariate, Err: err}
	}

	for i, feature := range features {
		if latest, ok := latestSample(bySnapshot[feature]); ok {
			vector.Values[i] = latest.Value
			if latest.Timestamp.After(vector.Timestamp) {
				vector.Timestamp = latest.Timestamp
			}
			continue
		}

		value, err := e.source.QueryInstant(ctx, feature)
		if err != nil {
			return nil, skip(err)
		}
		vector.Values[i] = value
		if now.After(vector.Timestamp) {
			vector.Timestamp = now
		}
	}

	event, err := e.model.Score(vector)
	if err != nil {
		if models.IsFeatureMismatch(err) {
			log.Error().
				Err(err).
				Str("model", e.model.Name()).
				Msg("Vetor incompatível com o modelo multivariado")
		}
		return nil, skip(err)
	}
	return event, nil
}

// correlate usa o snapshot quando ele cobre a janela, senão consulta a fonte
func (e *Engine) correlate(ctx context.Context, snapshots []metricSnapshot, now time.Time) *models.CorrelationReport {
	window := e.config.CorrelationWindow
	cutoff := now.Add(-window)
	series := make(map[string][]models.MetricSample, len(snapshots))

	for _, snap := range snapshots {
		if snap.err != nil {
			continue
		}
		if e.detector.ConfigFor(snap.metric).Lookback() >= window {
			series[snap.metric] = since(snap.samples, cutoff)
			continue
		}

		samples, err := e.source.QueryRange(ctx, snap.metric, cutoff, now, e.config.Step)
		if err != nil {
			log.Warn().
				Err(err).
				Str("metric", snap.metric).
				Msg("Métrica ignorada na análise de correlação")
			continue
		}
		series[snap.metric], _ = models.FiniteSamples(samples)
	}

	return e.correlation.Analyze(series, window, now)
}

// report persiste e notifica cada evento. Evento já registrado não é notificado de novo.
func (e *Engine) report(ctx context.Context, report *CycleReport) {
	for _, event := range report.Events {
		title := event.Title()

		if e.events != nil {
			inserted, err := e.events.Append(ctx, event)
			switch {
			case err != nil:
				report.PersistFailures++
				metrics.PersistenceFailuresTotal.Inc()
				log.Error().
					Err(err).
					Str("id", event.ID).
					Str("metric", event.MetricName).
					Msg("Falha ao persistir evento, notificando mesmo assim")
				title = UnpersistedPrefix + title
			case !inserted:
				report.Duplicates++
				log.Debug().
					Str("id", event.ID).
					Str("metric", event.MetricName).
					Msg("Evento já registrado")
				continue
			default:
				report.Persisted++
			}
		}

		metrics.EventsTotal.WithLabelValues(string(event.DetectorKind), string(event.Subtype), event.Severity.String()).Inc()

		if err := e.sink.Notify(ctx, title, event); err != nil {
			report.NotifyFailures++
			metrics.NotifyFailuresTotal.Inc()
			log.Warn().
				Err(err).
				Str("id", event.ID).
				Str("metric", event.MetricName).
				Msg("Falha ao notificar evento")
			continue
		}
		report.Notified++
	}
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
	metrics.EngineState.Set(float64(s))
}

func latestSample(samples []models.MetricSample) (models.MetricSample, bool) {
	if len(samples) == 0 {
		return models.MetricSample{}, false
	}
	latest := samples[0]
	for _, s := range samples[1:] {
		if s.Timestamp.After(latest.Timestamp) {
			latest = s
		}
	}
	return latest, true
}

func since(samples []models.MetricSample, cutoff time.Time) []models.MetricSample {
	out := make([]models.MetricSample, 0, len(samples))
	for _, s := range samples {
		if !s.Timestamp.Before(cutoff) {
			out = append(out, s)
		}
	}
	return out
}

func sortEvents(events []models.AnomalyEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.MetricName != b.MetricName {
			return a.MetricName < b.MetricName
		}
		if a.DetectorKind != b.DetectorKind {
			return a.DetectorKind < b.DetectorKind
		}
		return a.Subtype < b.Subtype
	})
}
