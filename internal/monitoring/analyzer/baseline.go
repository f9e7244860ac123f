package analyzer

import (
	"context"
	"time"

	"anomaly-watchdog/internal/monitoring/models"
	"anomaly-watchdog/internal/monitoring/source"
)

// ComputeBaseline consulta a janela [now-lookback, now] na fonte e calcula o baseline.
// Retorna InsufficientDataError quando a fonte não devolve amostras.
func ComputeBaseline(ctx context.Context, src source.MetricSource, metric string, lookback, step time.Duration, now time.Time) (models.BaselineStats, error) {
	samples, err := src.QueryRange(ctx, metric, now.Add(-lookback), now, step)
	if err != nil {
		return models.BaselineStats{}, err
	}
	return BaselineFromSamples(metric, samples)
}

// BaselineFromSamples calcula o baseline de amostras já coletadas
func BaselineFromSamples(metric string, samples []models.MetricSample) (models.BaselineStats, error) {
	if len(samples) == 0 {
		return models.BaselineStats{}, &models.InsufficientDataError{
			Metric:   metric,
			Detector: models.DetectorStatistical,
			Reason:   "no samples in baseline window",
		}
	}
	return models.Summarize(models.Values(samples)), nil
}

// splitWindow separa o histórico anterior à amostra atual (baseline) e a amostra atual
func splitWindow(samples []models.MetricSample, lookback time.Duration) ([]models.MetricSample, models.MetricSample) {
	current := samples[len(samples)-1]
	cutoff := current.Timestamp.Add(-lookback)

	history := make([]models.MetricSample, 0, len(samples)-1)
	for _, s := range samples[:len(samples)-1] {
		if s.Timestamp.Before(cutoff) || !s.Timestamp.Before(current.Timestamp) {
			continue
		}
		history = append(history, s)
	}

	return history, current
}

// tail retorna as amostras dentro de (last - window, last]
func tail(samples []models.MetricSample, window time.Duration) []models.MetricSample {
	if len(samples) == 0 || window <= 0 {
		return samples
	}

	cutoff := samples[len(samples)-1].Timestamp.Add(-window)
	for i, s := range samples {
		if s.Timestamp.After(cutoff) {
			return samples[i:]
		}
	}
	return nil
}
