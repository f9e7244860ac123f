package analyzer

import (
	"fmt"
	"sort"
	"time"

	"anomaly-watchdog/internal/monitoring/models"
	"github.com/rs/zerolog/log"
)

// Detector executa os detectores estatístico e de padrão sobre o snapshot de uma métrica
type Detector struct {
	config    *DetectorConfig
	overrides map[string]*DetectorConfig
}

// DetectorConfig configuração do detector (por métrica ou global)
type DetectorConfig struct {
	// Statistical
	ZScoreThreshold    float64       // desvios padrão para spike/drop (default: 3.0)
	BaselineWindow     time.Duration // janela do baseline (default: 60min)
	MinBaselineSamples int           // mínimo de amostras anteriores para avaliar z-score

	// Sudden spike
	SpikeChangePercent float64       // % de aumento para alertar (default: 200%)
	SpikeDelay         time.Duration // distância da amostra de referência (default: 60s)

	// Gradual degradation
	DegradationSlopeThreshold float64 // unidades/minuto, negativo (default: -1.0)

	// Oscillation
	OscillationCrossingFraction float64 // fração do tamanho da série (default: 0.4)

	// Flatline
	FlatlineVarianceEpsilon float64 // variância mínima (default: 1e-3)

	// Janela curta usada pelos detectores de padrão (10-60min)
	PatternWindow time.Duration

	// Mínimo de amostras na janela curta para degradation, oscillation e flatline
	MinPatternSamples int

	// Detectores habilitados (vazio = todos os univariados)
	Detectors []models.DetectorKind
}

// DefaultDetectorConfig retorna configuração padrão
func DefaultDetectorConfig() *DetectorConfig {
	return &DetectorConfig{
		ZScoreThreshold:    3.0,
		BaselineWindow:     60 * time.Minute,
		MinBaselineSamples: 10,

		SpikeChangePercent: 200.0,
		SpikeDelay:         60 * time.Second,

		DegradationSlopeThreshold: -1.0,

		OscillationCrossingFraction: 0.4,

		FlatlineVarianceEpsilon: 1e-3,

		PatternWindow:     30 * time.Minute,
		MinPatternSamples: 10,
	}
}

// UnivariateDetectors detectores executados por métrica
func UnivariateDetectors() []models.DetectorKind {
	return []models.DetectorKind{
		models.DetectorStatistical,
		models.DetectorSpike,
		models.DetectorDegradation,
		models.DetectorOscillation,
		models.DetectorFlatline,
	}
}

// Enabled verifica se o detector está habilitado
func (c *DetectorConfig) Enabled(kind models.DetectorKind) bool {
	if len(c.Detectors) == 0 {
		return true
	}
	for _, k := range c.Detectors {
		if k == kind {
			return true
		}
	}
	return false
}

// Lookback janela total que o snapshot da métrica precisa cobrir
func (c *DetectorConfig) Lookback() time.Duration {
	if c.PatternWindow > c.BaselineWindow {
		return c.PatternWindow
	}
	return c.BaselineWindow
}

// NewDetector cria novo detector
func NewDetector(config *DetectorConfig, overrides map[string]*DetectorConfig) *Detector {
	if config == nil {
		config = DefaultDetectorConfig()
	}
	if overrides == nil {
		overrides = make(map[string]*DetectorConfig)
	}

	log.Info().
		Float64("z_score_threshold", config.ZScoreThreshold).
		Float64("spike_change_percent", config.SpikeChangePercent).
		Float64("degradation_slope_threshold", config.DegradationSlopeThreshold).
		Float64("oscillation_crossing_fraction", config.OscillationCrossingFraction).
		Float64("flatline_variance_epsilon", config.FlatlineVarianceEpsilon).
		Int("metric_overrides", len(overrides)).
		Msg("Anomaly Detector initialized")

	return &Detector{
		config:    config,
		overrides: overrides,
	}
}

// ConfigFor retorna a configuração efetiva de uma métrica
func (d *Detector) ConfigFor(metric string) *DetectorConfig {
	if cfg, ok := d.overrides[metric]; ok && cfg != nil {
		return cfg
	}
	return d.config
}

// DetectionResult resultado da avaliação de uma métrica
type DetectionResult struct {
	Metric    string
	Events    []models.AnomalyEvent
	Skipped   []SkippedDetection
	Baseline  *models.BaselineStats
	Current   *models.MetricSample
	Timestamp time.Time
	Dropped   int // amostras NaN/Inf descartadas do snapshot
}

// SkippedDetection detector não executado neste ciclo e o motivo
type SkippedDetection struct {
	Metric   string
	Detector models.DetectorKind
	Err      error
}

// Evaluate executa os detectores habilitados sobre as amostras da métrica.
// Todos os detectores observam o mesmo snapshot; erros de um detector não afetam os demais.
func (d *Detector) Evaluate(metric string, samples []models.MetricSample) *DetectionResult {
	cfg := d.ConfigFor(metric)
	result := &DetectionResult{
		Metric: metric,
		Events: []models.AnomalyEvent{},
	}

	samples, result.Dropped = models.FiniteSamples(samples)
	if result.Dropped > 0 {
		log.Warn().
			Str("metric", metric).
			Int("dropped", result.Dropped).
			Msg("Amostras não finitas descartadas do snapshot")
	}

	if len(samples) == 0 {
		reason := "no samples in snapshot"
		if result.Dropped > 0 {
			reason = "no finite samples in snapshot"
		}
		for _, kind := range UnivariateDetectors() {
			if cfg.Enabled(kind) {
				result.skip(kind, insufficient(metric, kind, reason))
			}
		}
		return result
	}

	ordered := sortedSamples(samples)
	history, current := splitWindow(ordered, cfg.BaselineWindow)
	pattern := tail(ordered, cfg.PatternWindow)
	result.Current = &current
	result.Timestamp = current.Timestamp

	// 1. Statistical (z-score contra baseline do histórico anterior)
	if cfg.Enabled(models.DetectorStatistical) {
		result.run(models.DetectorStatistical, func() (*models.AnomalyEvent, error) {
			if len(history) < cfg.MinBaselineSamples {
				return nil, insufficient(metric, models.DetectorStatistical,
					fmt.Sprintf("%d baseline samples, need %d", len(history), cfg.MinBaselineSamples))
			}
			baseline, err := BaselineFromSamples(metric, history)
			if err != nil {
				return nil, err
			}
			result.Baseline = &baseline
			return DetectStatistical(metric, current, baseline, cfg.ZScoreThreshold), nil
		})
	}

	// 2. Sudden spike
	if cfg.Enabled(models.DetectorSpike) {
		result.run(models.DetectorSpike, func() (*models.AnomalyEvent, error) {
			return DetectSuddenSpike(metric, pattern, cfg.SpikeDelay, cfg.SpikeChangePercent)
		})
	}

	// Janelas curtas no aquecimento geram tendência e variância espúrias
	warm := func(kind models.DetectorKind) error {
		if len(pattern) < cfg.MinPatternSamples {
			return insufficient(metric, kind,
				fmt.Sprintf("%d pattern samples, need %d", len(pattern), cfg.MinPatternSamples))
		}
		return nil
	}

	// 3. Gradual degradation
	if cfg.Enabled(models.DetectorDegradation) {
		result.run(models.DetectorDegradation, func() (*models.AnomalyEvent, error) {
			if err := warm(models.DetectorDegradation); err != nil {
				return nil, err
			}
			return DetectDegradation(metric, pattern, cfg.DegradationSlopeThreshold)
		})
	}

	// 4. Oscillation
	if cfg.Enabled(models.DetectorOscillation) {
		result.run(models.DetectorOscillation, func() (*models.AnomalyEvent, error) {
			if err := warm(models.DetectorOscillation); err != nil {
				return nil, err
			}
			return DetectOscillation(metric, pattern, cfg.OscillationCrossingFraction)
		})
	}

	// 5. Flatline
	if cfg.Enabled(models.DetectorFlatline) {
		result.run(models.DetectorFlatline, func() (*models.AnomalyEvent, error) {
			if err := warm(models.DetectorFlatline); err != nil {
				return nil, err
			}
			return DetectFlatline(metric, pattern, cfg.FlatlineVarianceEpsilon)
		})
	}

	if len(result.Events) > 0 {
		log.Debug().
			Str("metric", metric).
			Int("anomalies", len(result.Events)).
			Msg("Anomalies detected")
	}

	return result
}

// run executa um detector isolando erros e panics
func (r *DetectionResult) run(kind models.DetectorKind, fn func() (*models.AnomalyEvent, error)) {
	var (
		event *models.AnomalyEvent
		err   error
	)

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("detector %s panicked: %v", kind, rec)
			}
		}()
		event, err = fn()
	}()

	if err != nil {
		r.skip(kind, err)
		return
	}
	if event != nil {
		r.Events = append(r.Events, *event)
	}
}

func (r *DetectionResult) skip(kind models.DetectorKind, err error) {
	r.Skipped = append(r.Skipped, SkippedDetection{Metric: r.Metric, Detector: kind, Err: err})
}

// CountBySubtype retorna contagem de eventos por subtipo
func (r *DetectionResult) CountBySubtype() map[models.AnomalySubtype]int {
	counts := make(map[models.AnomalySubtype]int)
	for _, event := range r.Events {
		counts[event.Subtype]++
	}
	return counts
}

// HasSubtype verifica se algum evento tem o subtipo informado
func (r *DetectionResult) HasSubtype(subtype models.AnomalySubtype) bool {
	return r.CountBySubtype()[subtype] > 0
}

func sortedSamples(samples []models.MetricSample) []models.MetricSample {
	ordered := make([]models.MetricSample, len(samples))
	copy(ordered, samples)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})
	return ordered
}
