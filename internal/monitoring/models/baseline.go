package models

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// BaselineStats estatísticas derivadas de uma janela de amostras
type BaselineStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"` // desvio padrão amostral (n-1)
	P95    float64 `json:"p95"`
	P99    float64 `json:"p99"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Summarize calcula média, desvio padrão amostral e percentis de values.
// Com uma única amostra o desvio padrão é 0.
func Summarize(values []float64) BaselineStats {
	n := len(values)
	if n == 0 {
		return BaselineStats{}
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	stats := BaselineStats{
		Count: n,
		Mean:  stat.Mean(sorted, nil),
		Min:   floats.Min(sorted),
		Max:   floats.Max(sorted),
		P95:   stat.Quantile(0.95, stat.LinInterp, sorted, nil),
		P99:   stat.Quantile(0.99, stat.LinInterp, sorted, nil),
	}
	if n > 1 {
		stats.StdDev = stat.StdDev(sorted, nil)
	}

	return stats
}

// BaselineWindow estado rolante de uma métrica: buffer FIFO limitado e estatísticas derivadas.
// As estatísticas são recalculadas a cada mutação, nunca ficam defasadas do buffer.
type BaselineWindow struct {
	MetricName string         `json:"metric_name"`
	WindowSize int            `json:"window_size"`
	Samples    []MetricSample `json:"samples"`
	Stats      BaselineStats  `json:"stats"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// NewBaselineWindow cria janela vazia com capacidade windowSize
func NewBaselineWindow(metric string, windowSize int) *BaselineWindow {
	if windowSize < 1 {
		windowSize = 1
	}
	return &BaselineWindow{
		MetricName: metric,
		WindowSize: windowSize,
		Samples:    make([]MetricSample, 0, windowSize),
	}
}

// Push adiciona amostra, descarta as mais antigas além do tamanho da janela
// e recalcula estatísticas
func (w *BaselineWindow) Push(samples ...MetricSample) {
	if len(samples) == 0 {
		return
	}

	w.Samples = append(w.Samples, samples...)
	if overflow := len(w.Samples) - w.WindowSize; overflow > 0 {
		w.Samples = append(w.Samples[:0:0], w.Samples[overflow:]...)
	}

	w.recompute()
}

// Reset substitui o conteúdo do buffer
func (w *BaselineWindow) Reset(samples []MetricSample) {
	w.Samples = w.Samples[:0]
	w.Push(samples...)
	if len(samples) == 0 {
		w.recompute()
	}
}

// Values retorna os valores do buffer em ordem
func (w *BaselineWindow) Values() []float64 {
	return Values(w.Samples)
}

// Latest retorna a amostra mais recente
func (w *BaselineWindow) Latest() (MetricSample, bool) {
	if len(w.Samples) == 0 {
		return MetricSample{}, false
	}
	return w.Samples[len(w.Samples)-1], true
}

// Clone retorna cópia independente da janela
func (w *BaselineWindow) Clone() *BaselineWindow {
	clone := *w
	clone.Samples = append([]MetricSample(nil), w.Samples...)
	return &clone
}

func (w *BaselineWindow) recompute() {
	w.Stats = Summarize(w.Values())
	if latest, ok := w.Latest(); ok {
		w.UpdatedAt = latest.Timestamp
	}
}

// Values extrai os valores de uma série de amostras
func Values(samples []MetricSample) []float64 {
	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.Value
	}
	return values
}

// FiniteSamples remove amostras NaN/Inf (ex.: 0/0 em queries de taxa).
// Retorna as amostras válidas e quantas foram descartadas.
func FiniteSamples(samples []MetricSample) ([]MetricSample, int) {
	dropped := 0
	for _, s := range samples {
		if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
			dropped++
		}
	}
	if dropped == 0 {
		return samples, 0
	}

	out := make([]MetricSample, 0, len(samples)-dropped)
	for _, s := range samples {
		if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
			continue
		}
		out = append(out, s)
	}
	return out, dropped
}
