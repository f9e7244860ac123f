package analyzer

import (
	"math"
	"time"

	"anomaly-watchdog/internal/monitoring/models"
	"gonum.org/v1/gonum/stat"
)

// Detectores de padrão: independentes e sem estado entre invocações.
// Cada um recebe a janela curta de uma métrica, ordenada por timestamp.

// PercentChange variação percentual de prev para cur
func PercentChange(prev, cur float64) float64 {
	return (cur - prev) / math.Abs(prev) * 100
}

// DetectSuddenSpike compara a amostra mais recente com a última amostra tomada
// pelo menos delay antes dela
func DetectSuddenSpike(metric string, window []models.MetricSample, delay time.Duration, thresholdPercent float64) (*models.AnomalyEvent, error) {
	if len(window) < 2 {
		return nil, insufficient(metric, models.DetectorSpike, "need at least 2 samples")
	}

	latest := window[len(window)-1]
	reference, ok := sampleBefore(window, latest.Timestamp.Add(-delay))
	if !ok {
		return nil, insufficient(metric, models.DetectorSpike, "no sample old enough for comparison")
	}
	if reference.Value == 0 {
		return nil, insufficient(metric, models.DetectorSpike, "reference sample is zero")
	}

	change := PercentChange(reference.Value, latest.Value)
	if change <= thresholdPercent {
		return nil, nil
	}

	event := models.NewAnomalyEvent(metric, models.DetectorSpike, models.SubtypeSuddenSpike,
		latest.Value, reference.Value, change, latest.Timestamp).
		WithMessage("%s spike: %.3f → %.3f (+%.1f%% em %v, limite %.0f%%)",
			metric, reference.Value, latest.Value, change,
			latest.Timestamp.Sub(reference.Timestamp), thresholdPercent)

	if change >= 2*thresholdPercent {
		event = event.WithSeverity(models.SeverityCritical)
	}

	return &event, nil
}

// sampleBefore retorna a amostra mais recente com timestamp <= at
func sampleBefore(window []models.MetricSample, at time.Time) (models.MetricSample, bool) {
	for i := len(window) - 1; i >= 0; i-- {
		if !window[i].Timestamp.After(at) {
			return window[i], true
		}
	}
	return models.MetricSample{}, false
}

// TrendSlope inclinação da regressão linear (mínimos quadrados) em unidades por minuto
func TrendSlope(window []models.MetricSample) (float64, error) {
	return trendSlope("", window)
}

func trendSlope(metric string, window []models.MetricSample) (float64, error) {
	if len(window) < 2 {
		return 0, insufficient(metric, models.DetectorDegradation, "need at least 2 samples")
	}

	origin := window[0].Timestamp
	xs := make([]float64, len(window))
	for i, s := range window {
		xs[i] = s.Timestamp.Sub(origin).Minutes()
	}
	if stat.Variance(xs, nil) == 0 {
		return 0, insufficient(metric, models.DetectorDegradation, "samples share the same timestamp")
	}

	_, beta := stat.LinearRegression(xs, models.Values(window), nil, false)
	return beta, nil
}

// DetectDegradation dispara quando a tendência fica abaixo de slopeThreshold (negativo)
func DetectDegradation(metric string, window []models.MetricSample, slopeThreshold float64) (*models.AnomalyEvent, error) {
	slope, err := trendSlope(metric, window)
	if err != nil {
		return nil, err
	}

	if slope >= slopeThreshold {
		return nil, nil
	}

	latest := window[len(window)-1]
	mean := stat.Mean(models.Values(window), nil)
	event := models.NewAnomalyEvent(metric, models.DetectorDegradation, models.SubtypeDegradation,
		latest.Value, mean, slope, latest.Timestamp).
		WithMessage("%s em degradação: tendência %.3f/min em %v (limite %.3f/min)",
			metric, slope, latest.Timestamp.Sub(window[0].Timestamp), slopeThreshold)

	return &event, nil
}

// CountSignChanges conta mudanças de sinal na primeira diferença da série.
// Diferenças nulas não quebram nem iniciam uma sequência.
func CountSignChanges(values []float64) int {
	changes := 0
	lastSign := 0
	for i := 1; i < len(values); i++ {
		diff := values[i] - values[i-1]
		sign := 0
		switch {
		case diff > 0:
			sign = 1
		case diff < 0:
			sign = -1
		}
		if sign == 0 {
			continue
		}
		if lastSign != 0 && sign != lastSign {
			changes++
		}
		lastSign = sign
	}
	return changes
}

// DetectOscillation dispara quando as mudanças de direção excedem fraction * len(window)
func DetectOscillation(metric string, window []models.MetricSample, fraction float64) (*models.AnomalyEvent, error) {
	if len(window) < 3 {
		return nil, insufficient(metric, models.DetectorOscillation, "need at least 3 samples")
	}

	values := models.Values(window)
	crossings := CountSignChanges(values)
	limit := fraction * float64(len(values))
	if float64(crossings) <= limit {
		return nil, nil
	}

	latest := window[len(window)-1]
	event := models.NewAnomalyEvent(metric, models.DetectorOscillation, models.SubtypeOscillation,
		latest.Value, stat.Mean(values, nil), float64(crossings)/float64(len(values)), latest.Timestamp).
		WithMessage("%s oscilando: %d mudanças de direção em %d amostras (limite %.0f)",
			metric, crossings, len(values), limit)

	return &event, nil
}

// DetectFlatline dispara quando a variância da janela fica abaixo de epsilon
func DetectFlatline(metric string, window []models.MetricSample, epsilon float64) (*models.AnomalyEvent, error) {
	if len(window) < 2 {
		return nil, insufficient(metric, models.DetectorFlatline, "need at least 2 samples")
	}

	values := models.Values(window)
	variance := stat.Variance(values, nil)
	if variance >= epsilon {
		return nil, nil
	}

	latest := window[len(window)-1]
	event := models.NewAnomalyEvent(metric, models.DetectorFlatline, models.SubtypeFlatline,
		latest.Value, stat.Mean(values, nil), variance, latest.Timestamp).
		WithMessage("%s estático: variância %.6f em %d amostras (limite %g). Sistema parado ou falha de instrumentação?",
			metric, variance, len(values), epsilon)

	return &event, nil
}

func insufficient(metric string, kind models.DetectorKind, reason string) *models.InsufficientDataError {
	return &models.InsufficientDataError{Metric: metric, Detector: kind, Reason: reason}
}
