package analyzer

import (
	"context"
	"math"
	"sort"
	"time"

	"anomaly-watchdog/internal/monitoring/models"
	"anomaly-watchdog/internal/monitoring/source"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"
)

// CorrelationAnalyzer calcula a matriz de Pearson entre métricas e aponta acoplamentos fortes.
// O resultado é informativo: nunca gera AnomalyEvent.
type CorrelationAnalyzer struct {
	threshold float64
}

// NewCorrelationAnalyzer cria analisador com limite |r| (default: 0.8)
func NewCorrelationAnalyzer(threshold float64) *CorrelationAnalyzer {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.8
	}
	return &CorrelationAnalyzer{threshold: threshold}
}

// Threshold retorna o limite configurado
func (a *CorrelationAnalyzer) Threshold() float64 {
	return a.threshold
}

// CorrelationMatrix matriz simétrica de coeficientes. Pares sem dados suficientes ficam ausentes.
type CorrelationMatrix struct {
	Metrics []string
	values  map[[2]string]models.CorrelationPair
}

// Get retorna corr(a, b); ok=false quando o par foi omitido
func (m *CorrelationMatrix) Get(a, b string) (float64, bool) {
	pair, ok := m.values[pairKey(a, b)]
	return pair.Coefficient, ok
}

// Pairs retorna os pares a < b presentes na matriz, em ordem
func (m *CorrelationMatrix) Pairs() []models.CorrelationPair {
	pairs := make([]models.CorrelationPair, 0, len(m.values))
	for key, pair := range m.values {
		if key[0] == key[1] {
			continue
		}
		pairs = append(pairs, pair)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].MetricA != pairs[j].MetricA {
			return pairs[i].MetricA < pairs[j].MetricA
		}
		return pairs[i].MetricB < pairs[j].MetricB
	})
	return pairs
}

func pairKey(a, b string) [2]string {
	if b < a {
		a, b = b, a
	}
	return [2]string{a, b}
}

// AlignSeries emparelha as amostras de a e b pelo timestamp.
// O resultado tem no máximo o tamanho da série mais curta.
func AlignSeries(a, b []models.MetricSample) ([]float64, []float64) {
	byTime := make(map[int64]float64, len(b))
	for _, s := range b {
		byTime[s.Timestamp.UnixNano()] = s.Value
	}

	xs := make([]float64, 0, min(len(a), len(b)))
	ys := make([]float64, 0, min(len(a), len(b)))
	for _, s := range sortedSamples(a) {
		if v, ok := byTime[s.Timestamp.UnixNano()]; ok {
			xs = append(xs, s.Value)
			ys = append(ys, v)
		}
	}
	return xs, ys
}

// Pearson calcula o coeficiente de correlação. ok=false quando indefinido
// (menos de 2 pontos ou variância zero em um dos lados).
func Pearson(xs, ys []float64) (float64, bool) {
	if len(xs) < 2 || len(xs) != len(ys) {
		return 0, false
	}
	r := stat.Correlation(xs, ys, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, false
	}
	// erro de arredondamento pode passar de 1
	return math.Max(-1, math.Min(1, r)), true
}

// Matrix calcula a matriz de correlação das séries informadas
func (a *CorrelationAnalyzer) Matrix(series map[string][]models.MetricSample) *CorrelationMatrix {
	metrics := make([]string, 0, len(series))
	for name := range series {
		metrics = append(metrics, name)
	}
	sort.Strings(metrics)

	matrix := &CorrelationMatrix{
		Metrics: metrics,
		values:  make(map[[2]string]models.CorrelationPair),
	}

	for i, ma := range metrics {
		for _, mb := range metrics[i:] {
			xs, ys := AlignSeries(series[ma], series[mb])
			r, ok := Pearson(xs, ys)
			if !ok {
				continue
			}
			matrix.values[pairKey(ma, mb)] = models.CorrelationPair{
				MetricA:     ma,
				MetricB:     mb,
				Coefficient: r,
				Samples:     len(xs),
			}
		}
	}

	return matrix
}

// Analyze gera o relatório de correlação para as séries
func (a *CorrelationAnalyzer) Analyze(series map[string][]models.MetricSample, window time.Duration, now time.Time) *models.CorrelationReport {
	matrix := a.Matrix(series)
	report := &models.CorrelationReport{
		GeneratedAt: now,
		Window:      window,
		Threshold:   a.threshold,
		Pairs:       matrix.Pairs(),
		Unusual:     []models.CorrelationPair{},
	}

	for _, pair := range report.Pairs {
		if math.Abs(pair.Coefficient) > a.threshold {
			report.Unusual = append(report.Unusual, pair)
		}
	}

	if len(report.Unusual) > 0 {
		log.Info().
			Int("pairs", len(report.Pairs)).
			Int("unusual", len(report.Unusual)).
			Float64("threshold", a.threshold).
			Msg("Acoplamento incomum entre métricas detectado")
	}

	return report
}

// AnalyzeSource consulta as métricas na fonte e gera o relatório.
// Métricas que falham na consulta são ignoradas.
func (a *CorrelationAnalyzer) AnalyzeSource(ctx context.Context, src source.MetricSource, metrics []string, window, step time.Duration, now time.Time) *models.CorrelationReport {
	series := make(map[string][]models.MetricSample, len(metrics))
	for _, metric := range metrics {
		samples, err := src.QueryRange(ctx, metric, now.Add(-window), now, step)
		if err != nil {
			log.Warn().
				Err(err).
				Str("metric", metric).
				Msg("Métrica ignorada na análise de correlação")
			continue
		}
		series[metric] = samples
	}
	return a.Analyze(series, window, now)
}
