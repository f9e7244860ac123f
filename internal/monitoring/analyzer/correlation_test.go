package analyzer

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"anomaly-watchdog/internal/monitoring/models"
	"anomaly-watchdog/internal/monitoring/source"
)

func linearSeries(metric string, n int, f func(i int) float64) []models.MetricSample {
	values := make([]float64, n)
	for i := range values {
		values[i] = f(i)
	}
	return samples(metric, values...)
}

func correlatedSeries() map[string][]models.MetricSample {
	return map[string][]models.MetricSample{
		"a": linearSeries("a", 10, func(i int) float64 { return float64(i) }),
		"b": linearSeries("b", 10, func(i int) float64 { return 2*float64(i) + 1 }),
		"c": linearSeries("c", 10, func(i int) float64 { return -float64(i) }),
		"d": linearSeries("d", 10, func(int) float64 { return 5 }),
	}
}

func TestPearson(t *testing.T) {
	xs := []float64{1, 4, 2, 8, 5}
	ys := []float64{3, 1, 4, 1, 5}

	self, ok := Pearson(xs, xs)
	if !ok || math.Abs(self-1) > 1e-12 {
		t.Errorf("Autocorrelação deveria ser 1, obtido %v (ok=%v)", self, ok)
	}

	ab, _ := Pearson(xs, ys)
	ba, _ := Pearson(ys, xs)
	if math.Abs(ab-ba) > 1e-12 {
		t.Errorf("Correlação deveria ser simétrica: %v != %v", ab, ba)
	}

	if _, ok := Pearson([]float64{1, 1, 1}, []float64{1, 2, 3}); ok {
		t.Error("Série constante deveria ter correlação indefinida")
	}
	if _, ok := Pearson([]float64{1}, []float64{2}); ok {
		t.Error("Um único ponto deveria ter correlação indefinida")
	}
}

func TestCorrelationMatrix(t *testing.T) {
	analyzer := NewCorrelationAnalyzer(0.8)
	matrix := analyzer.Matrix(correlatedSeries())

	if r, ok := matrix.Get("a", "a"); !ok || math.Abs(r-1) > 1e-12 {
		t.Errorf("Diagonal deveria ser 1, obtido %v", r)
	}
	if r, ok := matrix.Get("b", "a"); !ok || math.Abs(r-1) > 1e-9 {
		t.Errorf("corr(a, b) esperado 1, obtido %v", r)
	}
	if r, ok := matrix.Get("a", "c"); !ok || math.Abs(r+1) > 1e-9 {
		t.Errorf("corr(a, c) esperado -1, obtido %v", r)
	}
	if _, ok := matrix.Get("a", "d"); ok {
		t.Error("Par com série constante deveria ser omitido")
	}

	pairs := matrix.Pairs()
	if len(pairs) != 3 {
		t.Fatalf("Esperado 3 pares, obtido %d: %+v", len(pairs), pairs)
	}
	if pairs[0].MetricA != "a" || pairs[0].MetricB != "b" {
		t.Errorf("Pares deveriam estar ordenados, primeiro: %+v", pairs[0])
	}
}

func TestCorrelationAnalyze(t *testing.T) {
	analyzer := NewCorrelationAnalyzer(0.8)
	now := t0.Add(10 * time.Minute)
	report := analyzer.Analyze(correlatedSeries(), time.Hour, now)

	if len(report.Pairs) != 3 || len(report.Unusual) != 3 {
		t.Errorf("Esperado 3 pares e 3 incomuns, obtido %d/%d", len(report.Pairs), len(report.Unusual))
	}
	if report.Threshold != 0.8 || !report.GeneratedAt.Equal(now) {
		t.Errorf("Metadados inesperados: %+v", report)
	}

	if got := NewCorrelationAnalyzer(1.5).Threshold(); got != 0.8 {
		t.Errorf("Limite inválido deveria usar 0.8, obtido %v", got)
	}
}

func TestAlignSeries(t *testing.T) {
	a := samples("a", 1, 2, 3, 4, 5)
	b := make([]models.MetricSample, 0, 5)
	for i := 2; i < 7; i++ {
		b = append(b, models.MetricSample{MetricName: "b", Timestamp: t0.Add(time.Duration(i) * time.Minute), Value: float64(i * 10)})
	}

	xs, ys := AlignSeries(a, b)
	if len(xs) != 3 || len(ys) != 3 {
		t.Fatalf("Esperado 3 pontos alinhados, obtido %d/%d", len(xs), len(ys))
	}
	if xs[0] != 3 || ys[0] != 20 {
		t.Errorf("Primeiro par inesperado: (%v, %v)", xs[0], ys[0])
	}
}

func TestAnalyzeSourceSkipsFailingMetric(t *testing.T) {
	src := source.NewMemorySource()
	for _, series := range correlatedSeries() {
		src.Add(series...)
	}
	src.SetError("c", errors.New("boom"))

	analyzer := NewCorrelationAnalyzer(0.8)
	report := analyzer.AnalyzeSource(context.Background(), src, []string{"a", "b", "c"}, time.Hour, time.Minute, t0.Add(9*time.Minute))

	if len(report.Pairs) != 1 {
		t.Fatalf("Somente o par a-b deveria ser analisado, obtido %+v", report.Pairs)
	}
	if report.Pairs[0].MetricA != "a" || report.Pairs[0].MetricB != "b" {
		t.Errorf("Par inesperado: %+v", report.Pairs[0])
	}
}
