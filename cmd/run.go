package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"anomaly-watchdog/internal/config"
	"anomaly-watchdog/internal/monitoring/engine"
	"anomaly-watchdog/internal/monitoring/prometheus"
	"anomaly-watchdog/internal/web"
)

var (
	webEnabled   bool
	webPort      int
	trainOnStart bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the detection engine",
	Long: `Start the periodic detection engine.

Every cycle collects the configured metrics, evaluates all detectors and
reports anomalies. Every Nth cycle a correlation report is produced. When
the multivariate model is enabled it is retrained on its cron schedule.

The process stops gracefully on SIGINT/SIGTERM: the running cycle finishes,
in-flight HTTP requests complete and the event log is closed.

Example usage:
  anomaly-watchdog run --config config.yaml
  anomaly-watchdog run --web --port 8090
  ANOMALY_WEB_TOKEN=secret anomaly-watchdog run --web`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(func(c *config.Config) {
			if cmd.Flags().Changed("web") {
				c.Web.Enabled = webEnabled
			}
			if cmd.Flags().Changed("port") {
				c.Web.Port = webPort
			}
		})
		if err != nil {
			return err
		}

		logManager, err := setupLogging(cfg)
		if err != nil {
			return err
		}
		defer logManager.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, cfg, appOptions{persist: true, notify: true})
		if err != nil {
			return err
		}
		defer func() {
			if err := a.close(); err != nil {
				log.Warn().Err(err).Msg("Falha ao fechar recursos")
			}
		}()

		if client, ok := a.source.(*prometheus.Client); ok {
			checkCtx, cancel := context.WithTimeout(ctx, cfg.QueryTimeout())
			if err := client.TestConnection(checkCtx); err != nil {
				// Não é fatal: a fonte pode voltar, cada ciclo registra a falha
				log.Warn().Err(err).Str("endpoint", client.GetEndpoint()).Msg("⚠️  Prometheus indisponível no início")
			}
			cancel()
		}

		var scheduler *engine.TrainingScheduler
		if a.model != nil {
			scheduler, err = engine.NewTrainingScheduler(a.model, cfg.Multivariate.TrainingSchedule)
			if err != nil {
				return err
			}
			scheduler.Start()
			defer scheduler.Stop()

			if trainOnStart {
				go func() {
					if _, err := scheduler.RunNow(ctx); err != nil {
						log.Warn().Err(err).Msg("Treino inicial falhou")
					}
				}()
			}
		}

		if err := a.engine.Start(); err != nil {
			return fmt.Errorf("failed to start engine: %w", err)
		}

		log.Info().
			Strs("metrics", cfg.MetricNames()).
			Dur("interval", cfg.CycleInterval()).
			Int("correlation_every", cfg.CorrelationCycleMultiple).
			Bool("multivariate", a.model != nil).
			Msg("🚀 anomaly-watchdog iniciado")

		var server *web.Server
		serverErr := make(chan error, 1)
		if cfg.Web.Enabled {
			opts := web.Options{
				Port:    cfg.Web.Port,
				Token:   cfg.Web.Token,
				Debug:   debug,
				Version: Version,
				Engine:  a.engine,
				Events:  a.events,
				History: a.history,
				Logs:    logManager,
			}
			if a.model != nil {
				opts.Model = a.model
			}

			server, err = web.NewServer(opts)
			if err != nil {
				a.engine.Stop()
				return err
			}
			go func() { serverErr <- server.Start() }()
		}

		var cause error
		select {
		case <-ctx.Done():
			log.Info().Msg("🛑 Sinal recebido, encerrando...")
		case cause = <-serverErr:
			if cause != nil {
				log.Error().Err(cause).Msg("API HTTP falhou")
			}
		}

		return shutdown(server, a.engine, cause)
	},
}

// shutdown encerra API e engine na ordem: requisições em andamento, depois ciclo corrente
func shutdown(server *web.Server, eng *engine.Engine, cause error) error {
	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Falha ao encerrar API HTTP")
		}
	}

	if err := eng.Stop(); err != nil {
		log.Warn().Err(err).Msg("Falha ao parar engine")
	}

	log.Info().Msg("✅ Shutdown concluído")
	return cause
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&webEnabled, "web", false, "Enable the HTTP API (overrides web.enabled)")
	runCmd.Flags().IntVar(&webPort, "port", 8090, "HTTP API port (overrides web.port)")
	runCmd.Flags().BoolVar(&trainOnStart, "train-on-start", false, "Train the multivariate model immediately")
}
