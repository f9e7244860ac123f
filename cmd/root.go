package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"anomaly-watchdog/internal/config"
	"anomaly-watchdog/internal/logs"
)

var (
	cfgFile  string
	logLevel string
	logFile  string
	debug    bool
)

var rootCmd = &cobra.Command{
	Use:   "anomaly-watchdog",
	Short: "Anomaly detection engine for operational metrics",
	Long: `Continuously evaluates metric time series from Prometheus and reports anomalies.

Detectors:
- Statistical z-score against a rolling baseline (spike / drop)
- Sudden percentage change, sustained degradation, oscillation and flatline
- Multivariate isolation forest over a fixed feature set (outlier)
- Periodic pairwise correlation report

Events are persisted to SQLite and fanned out to the configured sinks
(structured log, Redis PUBLISH). An optional HTTP API exposes status,
events, baselines, correlation, model state and Prometheus self-metrics.

Configuration is read from config.yaml (./ or ~/.anomaly-watchdog/) or
--config, with ANOMALY_* environment overrides (e.g. ANOMALY_SOURCE_PROMETHEUS_URL).`,
	SilenceUsage: true,
}

// Execute executa o comando raiz
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig lê arquivo/env/flags, aplica prepare e valida.
// Erros de validação são agregados (multierr) e reportados juntos.
func loadConfig(prepare func(cfg *config.Config)) (*config.Config, error) {
	cfg, err := readConfig(prepare)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// readConfig lê a configuração sem validar (comandos que não rodam detecção)
func readConfig(prepare func(cfg *config.Config)) (*config.Config, error) {
	v := config.NewViper(cfgFile)

	if err := v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level")); err != nil {
		return nil, err
	}
	if err := v.BindPFlag("log.file", rootCmd.PersistentFlags().Lookup("log-file")); err != nil {
		return nil, err
	}

	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, err
	}
	if debug {
		cfg.Log.Level = "debug"
	}
	if prepare != nil {
		prepare(cfg)
	}

	if used := v.ConfigFileUsed(); used != "" {
		log.Debug().Str("file", used).Msg("Configuração carregada")
	}

	return cfg, nil
}

// setupLogging configura o logger global a partir da configuração
func setupLogging(cfg *config.Config) (*logs.LogManager, error) {
	return logs.Setup(logs.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		Pretty:     cfg.Log.Pretty,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"Path to config file (default: ./config.yaml or $HOME/.anomaly-watchdog/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "",
		"Write logs to this file (rotated)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"Enable debug logging (shortcut for --log-level debug)")
}
