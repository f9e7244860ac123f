package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixo das variáveis de ambiente (ANOMALY_Z_SCORE_THRESHOLD, ANOMALY_SOURCE_PROMETHEUS_URL...)
const EnvPrefix = "ANOMALY"

// NewViper cria instância viper com defaults, env e arquivo opcional.
// path vazio procura config.yaml em ./ e ~/.anomaly-watchdog/.
func NewViper(path string) *viper.Viper {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.anomaly-watchdog")
	}

	return v
}

// FromViper lê o arquivo (se existir) e decodifica a configuração.
// Não valida: o chamador decide quando chamar Validate.
func FromViper(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; using defaults and env vars
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// Load carrega e valida a configuração
func Load(path string) (*Config, error) {
	cfg, err := FromViper(NewViper(path))
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("z_score_threshold", d.ZScoreThreshold)
	v.SetDefault("baseline_window_minutes", d.BaselineWindowMinutes)
	v.SetDefault("min_baseline_samples", d.MinBaselineSamples)
	v.SetDefault("contamination_rate", d.ContaminationRate)
	v.SetDefault("ensemble_size", d.EnsembleSize)
	v.SetDefault("spike_change_percent", d.SpikeChangePercent)
	v.SetDefault("spike_delay_seconds", d.SpikeDelaySeconds)
	v.SetDefault("degradation_slope_threshold", d.DegradationSlopeThreshold)
	v.SetDefault("oscillation_crossing_fraction", d.OscillationCrossingFraction)
	v.SetDefault("flatline_variance_epsilon", d.FlatlineVarianceEpsilon)
	v.SetDefault("pattern_window_minutes", d.PatternWindowMinutes)
	v.SetDefault("min_pattern_samples", d.MinPatternSamples)
	v.SetDefault("correlation_threshold", d.CorrelationThreshold)
	v.SetDefault("cycle_interval_seconds", d.CycleIntervalSeconds)
	v.SetDefault("correlation_cycle_multiple", d.CorrelationCycleMultiple)
	v.SetDefault("workers", d.Workers)

	v.SetDefault("multivariate.enabled", d.Multivariate.Enabled)
	v.SetDefault("multivariate.name", d.Multivariate.Name)
	v.SetDefault("multivariate.features", d.Multivariate.Features)
	v.SetDefault("multivariate.training_window_hours", d.Multivariate.TrainingWindowHours)
	v.SetDefault("multivariate.training_step_seconds", d.Multivariate.TrainingStepSeconds)
	v.SetDefault("multivariate.training_schedule", d.Multivariate.TrainingSchedule)
	v.SetDefault("multivariate.subsample_size", d.Multivariate.SubsampleSize)
	v.SetDefault("multivariate.min_training_samples", d.Multivariate.MinTrainingSamples)
	v.SetDefault("multivariate.random_seed", d.Multivariate.RandomSeed)

	v.SetDefault("source.prometheus_url", d.Source.PrometheusURL)
	v.SetDefault("source.query_timeout_seconds", d.Source.QueryTimeoutSeconds)
	v.SetDefault("source.step_seconds", d.Source.StepSeconds)

	v.SetDefault("storage.data_dir", d.Storage.DataDir)
	v.SetDefault("storage.db_path", d.Storage.DBPath)
	v.SetDefault("storage.model_dir", d.Storage.ModelDir)
	v.SetDefault("storage.history_dir", d.Storage.HistoryDir)

	v.SetDefault("notify.log", d.Notify.Log)
	v.SetDefault("notify.redis_addr", d.Notify.RedisAddr)
	v.SetDefault("notify.redis_channel", d.Notify.RedisChannel)
	v.SetDefault("notify.redis_password", d.Notify.RedisPassword)
	v.SetDefault("notify.redis_db", d.Notify.RedisDB)

	v.SetDefault("web.enabled", d.Web.Enabled)
	v.SetDefault("web.port", d.Web.Port)
	v.SetDefault("web.token", d.Web.Token)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.pretty", d.Log.Pretty)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
}
