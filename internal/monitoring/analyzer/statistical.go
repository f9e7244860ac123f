package analyzer

import (
	"math"

	"anomaly-watchdog/internal/monitoring/models"
)

// ZScore calcula (current - mean) / std. Série constante (std == 0) tem z = 0.
func ZScore(current, mean, std float64) float64 {
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return (current - mean) / std
}

// ClassifyZScore classifica z-score como spike, drop ou normal
func ClassifyZScore(z, threshold float64) (models.AnomalySubtype, bool) {
	switch {
	case z > threshold:
		return models.SubtypeSpike, true
	case z < -threshold:
		return models.SubtypeDrop, true
	default:
		return "", false
	}
}

// DetectStatistical compara a amostra atual com o baseline.
// Função pura: mesma entrada, mesmo resultado; no máximo um evento por avaliação.
func DetectStatistical(metric string, current models.MetricSample, baseline models.BaselineStats, threshold float64) *models.AnomalyEvent {
	z := ZScore(current.Value, baseline.Mean, baseline.StdDev)
	subtype, anomalous := ClassifyZScore(z, threshold)
	if !anomalous {
		return nil
	}

	severity := models.SeverityWarning
	if math.Abs(z) >= 2*threshold {
		severity = models.SeverityCritical
	}

	event := models.NewAnomalyEvent(metric, models.DetectorStatistical, subtype,
		current.Value, baseline.Mean, z, current.Timestamp).
		WithSeverity(severity).
		WithMessage("%s %s: valor %.3f está %.2f desvios do baseline (média %.3f, std %.3f, limite %.1f)",
			metric, subtype, current.Value, z, baseline.Mean, baseline.StdDev, threshold)

	return &event
}
