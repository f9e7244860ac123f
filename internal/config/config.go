package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"anomaly-watchdog/internal/monitoring/analyzer"
	"anomaly-watchdog/internal/monitoring/models"
	"anomaly-watchdog/internal/monitoring/prometheus"
	"go.uber.org/multierr"
)

// Config configuração imutável de uma execução do engine
type Config struct {
	// Thresholds globais (padrão para todas as métricas)
	ZScoreThreshold             float64 `mapstructure:"z_score_threshold"`
	BaselineWindowMinutes       int     `mapstructure:"baseline_window_minutes"`
	MinBaselineSamples          int     `mapstructure:"min_baseline_samples"`
	ContaminationRate           float64 `mapstructure:"contamination_rate"`
	EnsembleSize                int     `mapstructure:"ensemble_size"`
	SpikeChangePercent          float64 `mapstructure:"spike_change_percent"`
	SpikeDelaySeconds           int     `mapstructure:"spike_delay_seconds"`
	DegradationSlopeThreshold   float64 `mapstructure:"degradation_slope_threshold"`
	OscillationCrossingFraction float64 `mapstructure:"oscillation_crossing_fraction"`
	FlatlineVarianceEpsilon     float64 `mapstructure:"flatline_variance_epsilon"`
	PatternWindowMinutes        int     `mapstructure:"pattern_window_minutes"`
	MinPatternSamples           int     `mapstructure:"min_pattern_samples"`
	CorrelationThreshold        float64 `mapstructure:"correlation_threshold"`

	// Orquestrador
	CycleIntervalSeconds     int `mapstructure:"cycle_interval_seconds"`
	CorrelationCycleMultiple int `mapstructure:"correlation_cycle_multiple"`
	Workers                  int `mapstructure:"workers"`

	Metrics      []MetricConfig     `mapstructure:"metrics"`
	Multivariate MultivariateConfig `mapstructure:"multivariate"`
	Source       SourceConfig       `mapstructure:"source"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Notify       NotifyConfig       `mapstructure:"notify"`
	Web          WebConfig          `mapstructure:"web"`
	Log          LogConfig          `mapstructure:"log"`
}

// MetricConfig métrica monitorada. Campos ponteiro sobrescrevem o valor global.
type MetricConfig struct {
	Name      string            `mapstructure:"name"`
	Query     string            `mapstructure:"query"`
	Template  string            `mapstructure:"template"`
	Vars      map[string]string `mapstructure:"vars"`
	Detectors []string          `mapstructure:"detectors"`

	ZScoreThreshold             *float64 `mapstructure:"z_score_threshold"`
	BaselineWindowMinutes       *int     `mapstructure:"baseline_window_minutes"`
	MinBaselineSamples          *int     `mapstructure:"min_baseline_samples"`
	SpikeChangePercent          *float64 `mapstructure:"spike_change_percent"`
	SpikeDelaySeconds           *int     `mapstructure:"spike_delay_seconds"`
	DegradationSlopeThreshold   *float64 `mapstructure:"degradation_slope_threshold"`
	OscillationCrossingFraction *float64 `mapstructure:"oscillation_crossing_fraction"`
	FlatlineVarianceEpsilon     *float64 `mapstructure:"flatline_variance_epsilon"`
	PatternWindowMinutes        *int     `mapstructure:"pattern_window_minutes"`
	MinPatternSamples           *int     `mapstructure:"min_pattern_samples"`
}

// MultivariateConfig modelo multivariado (isolation forest)
type MultivariateConfig struct {
	Enabled             bool     `mapstructure:"enabled"`
	Name                string   `mapstructure:"name"`
	Features            []string `mapstructure:"features"`
	TrainingWindowHours int      `mapstructure:"training_window_hours"`
	TrainingStepSeconds int      `mapstructure:"training_step_seconds"`
	TrainingSchedule    string   `mapstructure:"training_schedule"`
	SubsampleSize       int      `mapstructure:"subsample_size"`
	MinTrainingSamples  int      `mapstructure:"min_training_samples"`
	RandomSeed          int64    `mapstructure:"random_seed"`
}

// SourceConfig fonte de métricas
type SourceConfig struct {
	PrometheusURL       string `mapstructure:"prometheus_url"`
	QueryTimeoutSeconds int    `mapstructure:"query_timeout_seconds"`
	StepSeconds         int    `mapstructure:"step_seconds"`
}

// StorageConfig diretórios e arquivos persistidos
type StorageConfig struct {
	DataDir    string `mapstructure:"data_dir"`
	DBPath     string `mapstructure:"db_path"`
	ModelDir   string `mapstructure:"model_dir"`
	HistoryDir string `mapstructure:"history_dir"`
}

// NotifyConfig sink de notificações
type NotifyConfig struct {
	Log           bool   `mapstructure:"log"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisChannel  string `mapstructure:"redis_channel"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

// WebConfig API HTTP
type WebConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Token   string `mapstructure:"token"`
}

// LogConfig logging
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	Pretty     bool   `mapstructure:"pretty"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// DefaultConfig retorna configuração padrão
func DefaultConfig() *Config {
	dataDir := defaultDataDir()

	return &Config{
		ZScoreThreshold:             3.0,
		BaselineWindowMinutes:       60,
		MinBaselineSamples:          10,
		ContaminationRate:           0.05,
		EnsembleSize:                100,
		SpikeChangePercent:          200.0,
		SpikeDelaySeconds:           60,
		DegradationSlopeThreshold:   -1.0,
		OscillationCrossingFraction: 0.4,
		FlatlineVarianceEpsilon:     1e-3,
		PatternWindowMinutes:        30,
		MinPatternSamples:           10,
		CorrelationThreshold:        0.8,

		CycleIntervalSeconds:     60,
		CorrelationCycleMultiple: 10,
		Workers:                  runtime.NumCPU(),

		Multivariate: MultivariateConfig{
			Enabled:             false,
			Name:                "default",
			TrainingWindowHours: 168,
			TrainingStepSeconds: 300,
			TrainingSchedule:    "@weekly",
			SubsampleSize:       256,
			MinTrainingSamples:  32,
		},
		Source: SourceConfig{
			PrometheusURL:       "http://localhost:9090",
			QueryTimeoutSeconds: 15,
			StepSeconds:         60,
		},
		Storage: StorageConfig{
			DataDir:    dataDir,
			DBPath:     filepath.Join(dataDir, "events.db"),
			ModelDir:   filepath.Join(dataDir, "models"),
			HistoryDir: filepath.Join(dataDir, "history"),
		},
		Notify: NotifyConfig{
			Log:          true,
			RedisChannel: "anomaly-watchdog:events",
		},
		Web: WebConfig{
			Enabled: false,
			Port:    8090,
		},
		Log: LogConfig{
			Level:      "info",
			Pretty:     true,
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".anomaly-watchdog"
	}
	return filepath.Join(home, ".anomaly-watchdog")
}

// Validate valida a configuração e reporta todos os problemas de uma vez
func (c *Config) Validate() error {
	var errs error

	if len(c.Metrics) == 0 {
		errs = multierr.Append(errs, fmt.Errorf("at least one metric must be configured"))
	}
	if c.ZScoreThreshold <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("z_score_threshold must be > 0, got %v", c.ZScoreThreshold))
	}
	if c.BaselineWindowMinutes <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("baseline_window_minutes must be > 0, got %d", c.BaselineWindowMinutes))
	}
	if c.MinBaselineSamples < 2 {
		errs = multierr.Append(errs, fmt.Errorf("min_baseline_samples must be >= 2, got %d", c.MinBaselineSamples))
	}
	if c.MinPatternSamples < 3 {
		errs = multierr.Append(errs, fmt.Errorf("min_pattern_samples must be >= 3, got %d", c.MinPatternSamples))
	}
	if c.ContaminationRate <= 0 || c.ContaminationRate > 0.5 {
		errs = multierr.Append(errs, fmt.Errorf("contamination_rate must be in (0, 0.5], got %v", c.ContaminationRate))
	}
	if c.EnsembleSize <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("ensemble_size must be > 0, got %d", c.EnsembleSize))
	}
	if c.SpikeChangePercent <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("spike_change_percent must be > 0, got %v", c.SpikeChangePercent))
	}
	if c.SpikeDelaySeconds <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("spike_delay_seconds must be > 0, got %d", c.SpikeDelaySeconds))
	}
	if c.OscillationCrossingFraction <= 0 || c.OscillationCrossingFraction >= 1 {
		errs = multierr.Append(errs, fmt.Errorf("oscillation_crossing_fraction must be in (0, 1), got %v", c.OscillationCrossingFraction))
	}
	if c.FlatlineVarianceEpsilon < 0 {
		errs = multierr.Append(errs, fmt.Errorf("flatline_variance_epsilon must be >= 0, got %v", c.FlatlineVarianceEpsilon))
	}
	if c.PatternWindowMinutes <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("pattern_window_minutes must be > 0, got %d", c.PatternWindowMinutes))
	}
	if c.CorrelationThreshold <= 0 || c.CorrelationThreshold > 1 {
		errs = multierr.Append(errs, fmt.Errorf("correlation_threshold must be in (0, 1], got %v", c.CorrelationThreshold))
	}
	if c.CycleIntervalSeconds <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("cycle_interval_seconds must be > 0, got %d", c.CycleIntervalSeconds))
	}
	if c.CorrelationCycleMultiple <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("correlation_cycle_multiple must be > 0, got %d", c.CorrelationCycleMultiple))
	}
	if c.Workers <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("workers must be > 0, got %d", c.Workers))
	}
	if c.Source.QueryTimeoutSeconds < 10 || c.Source.QueryTimeoutSeconds > 30 {
		errs = multierr.Append(errs, fmt.Errorf("source.query_timeout_seconds must be in [10, 30], got %d", c.Source.QueryTimeoutSeconds))
	}
	if c.Source.StepSeconds <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("source.step_seconds must be > 0, got %d", c.Source.StepSeconds))
	}

	errs = multierr.Append(errs, c.validateMetrics())
	errs = multierr.Append(errs, c.validateMultivariate())

	return errs
}

func (c *Config) validateMetrics() error {
	var errs error
	seen := make(map[string]bool, len(c.Metrics))

	for i, m := range c.Metrics {
		if m.Name == "" {
			errs = multierr.Append(errs, fmt.Errorf("metrics[%d]: name is required", i))
			continue
		}
		if seen[m.Name] {
			errs = multierr.Append(errs, fmt.Errorf("metrics[%d]: duplicate metric %q", i, m.Name))
		}
		seen[m.Name] = true

		for _, d := range m.Detectors {
			kind, err := models.ParseDetectorKind(d)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("metric %s: %w", m.Name, err))
				continue
			}
			if kind == models.DetectorMultivariate || kind == models.DetectorCorrelation {
				errs = multierr.Append(errs, fmt.Errorf("metric %s: detector %s is not per-metric", m.Name, kind))
			}
		}

		if m.ZScoreThreshold != nil && *m.ZScoreThreshold <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("metric %s: z_score_threshold must be > 0", m.Name))
		}
		if m.BaselineWindowMinutes != nil && *m.BaselineWindowMinutes <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("metric %s: baseline_window_minutes must be > 0", m.Name))
		}
		if m.MinBaselineSamples != nil && *m.MinBaselineSamples < 2 {
			errs = multierr.Append(errs, fmt.Errorf("metric %s: min_baseline_samples must be >= 2", m.Name))
		}
		if m.MinPatternSamples != nil && *m.MinPatternSamples < 3 {
			errs = multierr.Append(errs, fmt.Errorf("metric %s: min_pattern_samples must be >= 3", m.Name))
		}
		if m.OscillationCrossingFraction != nil && (*m.OscillationCrossingFraction <= 0 || *m.OscillationCrossingFraction >= 1) {
			errs = multierr.Append(errs, fmt.Errorf("metric %s: oscillation_crossing_fraction must be in (0, 1)", m.Name))
		}
		if m.PatternWindowMinutes != nil && *m.PatternWindowMinutes <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("metric %s: pattern_window_minutes must be > 0", m.Name))
		}
	}

	return errs
}

func (c *Config) validateMultivariate() error {
	mv := c.Multivariate
	if !mv.Enabled {
		return nil
	}

	var errs error
	if len(mv.Features) < 2 {
		errs = multierr.Append(errs, fmt.Errorf("multivariate.features needs at least 2 metrics, got %d", len(mv.Features)))
	}

	known := make(map[string]bool, len(c.Metrics))
	for _, m := range c.Metrics {
		known[m.Name] = true
	}
	seen := make(map[string]bool, len(mv.Features))
	for _, f := range mv.Features {
		if !known[f] {
			errs = multierr.Append(errs, fmt.Errorf("multivariate.features: unknown metric %q", f))
		}
		if seen[f] {
			errs = multierr.Append(errs, fmt.Errorf("multivariate.features: duplicate metric %q", f))
		}
		seen[f] = true
	}

	if mv.Name == "" {
		errs = multierr.Append(errs, fmt.Errorf("multivariate.name is required"))
	}
	if mv.TrainingWindowHours <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("multivariate.training_window_hours must be > 0"))
	}
	if mv.TrainingStepSeconds <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("multivariate.training_step_seconds must be > 0"))
	}
	if mv.SubsampleSize < 2 {
		errs = multierr.Append(errs, fmt.Errorf("multivariate.subsample_size must be >= 2"))
	}
	if mv.MinTrainingSamples < 2 {
		errs = multierr.Append(errs, fmt.Errorf("multivariate.min_training_samples must be >= 2"))
	}

	return errs
}

// MetricNames nomes das métricas configuradas, na ordem do arquivo
func (c *Config) MetricNames() []string {
	names := make([]string, 0, len(c.Metrics))
	for _, m := range c.Metrics {
		names = append(names, m.Name)
	}
	return names
}

// Queries resolve a query PromQL de cada métrica
func (c *Config) Queries() (map[string]string, error) {
	var errs error
	queries := make(map[string]string, len(c.Metrics))

	for _, m := range c.Metrics {
		query, err := prometheus.ResolveQuery(m.Query, m.Template, m.Vars)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("metric %s: %w", m.Name, err))
			continue
		}
		queries[m.Name] = query
	}

	return queries, errs
}

// DetectorConfig configuração global dos detectores
func (c *Config) DetectorConfig() *analyzer.DetectorConfig {
	return &analyzer.DetectorConfig{
		ZScoreThreshold:             c.ZScoreThreshold,
		BaselineWindow:              time.Duration(c.BaselineWindowMinutes) * time.Minute,
		MinBaselineSamples:          c.MinBaselineSamples,
		SpikeChangePercent:          c.SpikeChangePercent,
		SpikeDelay:                  time.Duration(c.SpikeDelaySeconds) * time.Second,
		DegradationSlopeThreshold:   c.DegradationSlopeThreshold,
		OscillationCrossingFraction: c.OscillationCrossingFraction,
		FlatlineVarianceEpsilon:     c.FlatlineVarianceEpsilon,
		PatternWindow:               time.Duration(c.PatternWindowMinutes) * time.Minute,
		MinPatternSamples:           c.MinPatternSamples,
	}
}

// DetectorConfigFor configuração efetiva de uma métrica (global + overrides)
func (c *Config) DetectorConfigFor(m MetricConfig) *analyzer.DetectorConfig {
	cfg := c.DetectorConfig()

	if m.ZScoreThreshold != nil {
		cfg.ZScoreThreshold = *m.ZScoreThreshold
	}
	if m.BaselineWindowMinutes != nil {
		cfg.BaselineWindow = time.Duration(*m.BaselineWindowMinutes) * time.Minute
	}
	if m.MinBaselineSamples != nil {
		cfg.MinBaselineSamples = *m.MinBaselineSamples
	}
	if m.SpikeChangePercent != nil {
		cfg.SpikeChangePercent = *m.SpikeChangePercent
	}
	if m.SpikeDelaySeconds != nil {
		cfg.SpikeDelay = time.Duration(*m.SpikeDelaySeconds) * time.Second
	}
	if m.DegradationSlopeThreshold != nil {
		cfg.DegradationSlopeThreshold = *m.DegradationSlopeThreshold
	}
	if m.OscillationCrossingFraction != nil {
		cfg.OscillationCrossingFraction = *m.OscillationCrossingFraction
	}
	if m.FlatlineVarianceEpsilon != nil {
		cfg.FlatlineVarianceEpsilon = *m.FlatlineVarianceEpsilon
	}
	if m.PatternWindowMinutes != nil {
		cfg.PatternWindow = time.Duration(*m.PatternWindowMinutes) * time.Minute
	}
	if m.MinPatternSamples != nil {
		cfg.MinPatternSamples = *m.MinPatternSamples
	}

	for _, d := range m.Detectors {
		if kind, err := models.ParseDetectorKind(d); err == nil {
			cfg.Detectors = append(cfg.Detectors, kind)
		}
	}

	return cfg
}

// DetectorOverrides configuração por métrica
func (c *Config) DetectorOverrides() map[string]*analyzer.DetectorConfig {
	overrides := make(map[string]*analyzer.DetectorConfig, len(c.Metrics))
	for _, m := range c.Metrics {
		overrides[m.Name] = c.DetectorConfigFor(m)
	}
	return overrides
}

// CycleInterval intervalo entre ciclos
func (c *Config) CycleInterval() time.Duration {
	return time.Duration(c.CycleIntervalSeconds) * time.Second
}

// QueryTimeout limite de cada consulta à fonte
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.Source.QueryTimeoutSeconds) * time.Second
}

// Step resolução das range queries
func (c *Config) Step() time.Duration {
	return time.Duration(c.Source.StepSeconds) * time.Second
}

// CorrelationWindow janela da análise de correlação (mesma do baseline)
func (c *Config) CorrelationWindow() time.Duration {
	return time.Duration(c.BaselineWindowMinutes) * time.Minute
}

// TrainingWindow janela de dados do treino multivariado
func (c *Config) TrainingWindow() time.Duration {
	return time.Duration(c.Multivariate.TrainingWindowHours) * time.Hour
}

// TrainingStep resolução dos dados de treino
func (c *Config) TrainingStep() time.Duration {
	return time.Duration(c.Multivariate.TrainingStepSeconds) * time.Second
}
