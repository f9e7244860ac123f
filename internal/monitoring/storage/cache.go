package storage

import (
	"sort"
	"sync"
	"time"

	"anomaly-watchdog/internal/monitoring/models"
	"github.com/rs/zerolog/log"
)

// WindowCache mantém a BaselineWindow mais recente de cada métrica em memória
type WindowCache struct {
	data         map[string]*models.BaselineWindow
	maxSamples   int
	totalUpdates int64
	mu           sync.RWMutex
}

// CacheConfig configuração do cache
type CacheConfig struct {
	Window time.Duration // janela de baseline (default: 60min)
	Step   time.Duration // resolução das amostras (default: 60s)
}

// DefaultCacheConfig retorna configuração padrão
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Window: 60 * time.Minute,
		Step:   60 * time.Second,
	}
}

// NewWindowCache cria novo cache
func NewWindowCache(config *CacheConfig) *WindowCache {
	if config == nil {
		config = DefaultCacheConfig()
	}

	maxSamples := 60 // default: 60 amostras
	if config.Step > 0 {
		if n := int(config.Window / config.Step); n >= 1 {
			maxSamples = n + 1
		}
	}

	log.Debug().
		Dur("window", config.Window).
		Dur("step", config.Step).
		Int("max_samples", maxSamples).
		Msg("WindowCache initialized")

	return &WindowCache{
		data:       make(map[string]*models.BaselineWindow),
		maxSamples: maxSamples,
	}
}

// Update acrescenta à janela da métrica as amostras mais novas que a última conhecida
func (c *WindowCache) Update(metric string, samples []models.MetricSample) *models.BaselineWindow {
	c.mu.Lock()
	defer c.mu.Unlock()

	window, ok := c.data[metric]
	if !ok {
		window = models.NewBaselineWindow(metric, c.maxSamples)
		c.data[metric] = window
	}

	ordered := make([]models.MetricSample, len(samples))
	copy(ordered, samples)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	latest, hasLatest := window.Latest()
	fresh := make([]models.MetricSample, 0, len(ordered))
	for _, s := range ordered {
		if hasLatest && !s.Timestamp.After(latest.Timestamp) {
			continue
		}
		fresh = append(fresh, s)
	}

	window.Push(fresh...)
	c.totalUpdates++

	return window.Clone()
}

// Get retorna cópia da janela da métrica (nil se inexistente)
func (c *WindowCache) Get(metric string) *models.BaselineWindow {
	c.mu.RLock()
	defer c.mu.RUnlock()

	window, ok := c.data[metric]
	if !ok {
		return nil
	}
	return window.Clone()
}

// GetAll retorna cópia de todas as janelas
func (c *WindowCache) GetAll() map[string]*models.BaselineWindow {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]*models.BaselineWindow, len(c.data))
	for metric, window := range c.data {
		result[metric] = window.Clone()
	}
	return result
}

// Delete remove a janela de uma métrica
func (c *WindowCache) Delete(metric string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, metric)
}

// Clear remove todas as janelas
func (c *WindowCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]*models.BaselineWindow)
}

// Stats retorna estatísticas do cache
func (c *WindowCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	totalSamples := 0
	for _, window := range c.data {
		totalSamples += len(window.Samples)
	}

	return CacheStats{
		Metrics:      len(c.data),
		TotalSamples: totalSamples,
		TotalUpdates: c.totalUpdates,
		MaxSamples:   c.maxSamples,
	}
}

// CacheStats estatísticas do cache
type CacheStats struct {
	Metrics      int   `json:"metrics"`
	TotalSamples int   `json:"total_samples"`
	TotalUpdates int64 `json:"total_updates"`
	MaxSamples   int   `json:"max_samples"`
}
