package source

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"anomaly-watchdog/internal/monitoring/models"
)

// MemorySource fonte de métricas em memória (testes e replay de arquivos)
type MemorySource struct {
	mu      sync.RWMutex
	series  map[string][]models.MetricSample
	errs    map[string]error
	latency time.Duration
}

// NewMemorySource cria fonte vazia
func NewMemorySource() *MemorySource {
	return &MemorySource{
		series: make(map[string][]models.MetricSample),
		errs:   make(map[string]error),
	}
}

// Add adiciona amostras mantendo cada série ordenada por timestamp
func (m *MemorySource) Add(samples ...models.MetricSample) {
	m.mu.Lock()
	defer m.mu.Unlock()

	touched := make(map[string]bool)
	for _, s := range samples {
		m.series[s.MetricName] = append(m.series[s.MetricName], s)
		touched[s.MetricName] = true
	}
	for name := range touched {
		series := m.series[name]
		sort.SliceStable(series, func(i, j int) bool {
			return series[i].Timestamp.Before(series[j].Timestamp)
		})
	}
}

// SetError faz as consultas da métrica falharem com err (nil remove)
func (m *MemorySource) SetError(metric string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errs, metric)
		return
	}
	m.errs[metric] = err
}

// SetLatency atrasa cada consulta, respeitando cancelamento do contexto
func (m *MemorySource) SetLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency = d
}

// Metrics retorna os nomes das métricas conhecidas
func (m *MemorySource) Metrics() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.series))
	for name := range m.series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Latest retorna timestamp da amostra mais recente entre todas as séries
func (m *MemorySource) Latest() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest time.Time
	for _, series := range m.series {
		if n := len(series); n > 0 && series[n-1].Timestamp.After(latest) {
			latest = series[n-1].Timestamp
		}
	}
	return latest
}

// QueryInstant retorna o valor mais recente da métrica
func (m *MemorySource) QueryInstant(ctx context.Context, metric string) (float64, error) {
	if err := m.wait(ctx, metric); err != nil {
		return 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	series := m.series[metric]
	if len(series) == 0 {
		return 0, fmt.Errorf("metric %s has no samples", metric)
	}
	return series[len(series)-1].Value, nil
}

// QueryRange retorna as amostras com timestamp em [start, end]. step é ignorado.
func (m *MemorySource) QueryRange(ctx context.Context, metric string, start, end time.Time, step time.Duration) ([]models.MetricSample, error) {
	if err := m.wait(ctx, metric); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]models.MetricSample, 0)
	for _, s := range m.series[metric] {
		if s.Timestamp.Before(start) || s.Timestamp.After(end) {
			continue
		}
		result = append(result, s)
	}
	return result, nil
}

func (m *MemorySource) wait(ctx context.Context, metric string) error {
	m.mu.RLock()
	latency := m.latency
	err := m.errs[metric]
	m.mu.RUnlock()

	if latency > 0 {
		timer := time.NewTimer(latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	return err
}

// LoadSamplesFile lê amostras de um arquivo JSON (lista de MetricSample)
func LoadSamplesFile(path string) (*MemorySource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read samples file: %w", err)
	}

	var samples []models.MetricSample
	if err := json.Unmarshal(data, &samples); err != nil {
		return nil, fmt.Errorf("failed to parse samples file: %w", err)
	}

	src := NewMemorySource()
	src.Add(samples...)
	return src, nil
}
