package prometheus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"anomaly-watchdog/internal/monitoring/models"
	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"github.com/rs/zerolog/log"
)

// Client wrapper para Prometheus API. Implementa source.MetricSource:
// cada métrica configurada é resolvida para uma query PromQL.
type Client struct {
	api       v1.API
	endpoint  string
	connected atomic.Bool

	mu      sync.RWMutex
	queries map[string]string
}

// NewClient cria um novo client Prometheus (sem teste de conexão).
// Lazy connection: client inicia desconectado, primeira query testa.
func NewClient(endpoint string, queries map[string]string) (*Client, error) {
	apiClient, err := api.NewClient(api.Config{
		Address: endpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	client := &Client{
		api:      v1.NewAPI(apiClient),
		endpoint: endpoint,
		queries:  make(map[string]string, len(queries)),
	}
	for metric, query := range queries {
		client.queries[metric] = query
	}

	log.Debug().
		Str("endpoint", endpoint).
		Int("metrics", len(queries)).
		Msg("Prometheus client created (lazy connection)")

	return client, nil
}

// Register associa uma métrica a uma query PromQL
func (c *Client) Register(metric, query string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries[metric] = query
}

// QueryFor retorna a query PromQL da métrica
func (c *Client) QueryFor(metric string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	query, ok := c.queries[metric]
	if !ok || query == "" {
		return "", fmt.Errorf("no query registered for metric %s", metric)
	}
	return query, nil
}

// TestConnection testa a conexão com Prometheus
func (c *Client) TestConnection(ctx context.Context) error {
	// Query simples para testar conectividade
	_, _, err := c.api.Query(ctx, "up", time.Now())
	if err != nil {
		c.connected.Store(false)
		return fmt.Errorf("connection test failed: %w", err)
	}

	c.connected.Store(true)
	log.Debug().
		Str("endpoint", c.endpoint).
		Msg("Prometheus connection test successful")

	return nil
}

func (c *Client) ensureConnected(ctx context.Context) error {
	if c.connected.Load() {
		return nil
	}

	if err := c.TestConnection(ctx); err != nil {
		return err
	}

	log.Info().
		Str("endpoint", c.endpoint).
		Msg("✅ Prometheus lazy connection established")
	return nil
}

// Query executa uma query PromQL instantânea
func (c *Client) Query(ctx context.Context, query string, ts time.Time) (model.Value, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}

	result, warnings, err := c.api.Query(ctx, query, ts)
	if err != nil {
		c.connected.Store(false)
		return nil, fmt.Errorf("query failed: %w", err)
	}

	if len(warnings) > 0 {
		log.Warn().
			Str("endpoint", c.endpoint).
			Strs("warnings", warnings).
			Msg("Prometheus query returned warnings")
	}

	return result, nil
}

// QueryPromQLRange executa uma range query PromQL
func (c *Client) QueryPromQLRange(ctx context.Context, query string, start, end time.Time, step time.Duration) (model.Value, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}

	r := v1.Range{
		Start: start,
		End:   end,
		Step:  step,
	}

	result, warnings, err := c.api.QueryRange(ctx, query, r)
	if err != nil {
		c.connected.Store(false)
		return nil, fmt.Errorf("range query failed: %w", err)
	}

	if len(warnings) > 0 {
		log.Warn().
			Str("endpoint", c.endpoint).
			Strs("warnings", warnings).
			Msg("Prometheus range query returned warnings")
	}

	return result, nil
}

// QueryInstant obtém o valor atual da métrica
func (c *Client) QueryInstant(ctx context.Context, metric string) (float64, error) {
	query, err := c.QueryFor(metric)
	if err != nil {
		return 0, err
	}

	result, err := c.Query(ctx, query, time.Now())
	if err != nil {
		return 0, err
	}

	value, ok, err := extractSingleValue(result)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, &models.InsufficientDataError{
			Metric: metric,
			Reason: "prometheus returned an empty vector",
		}
	}
	return value, nil
}

// QueryRange obtém o histórico da métrica em [start, end]
func (c *Client) QueryRange(ctx context.Context, metric string, start, end time.Time, step time.Duration) ([]models.MetricSample, error) {
	query, err := c.QueryFor(metric)
	if err != nil {
		return nil, err
	}

	result, err := c.QueryPromQLRange(ctx, query, start, end, step)
	if err != nil {
		return nil, err
	}

	return extractTimeSeries(metric, result)
}

// IsConnected retorna se o client está conectado
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// GetEndpoint retorna o endpoint
func (c *Client) GetEndpoint() string {
	return c.endpoint
}

// Helper functions

// extractSingleValue extrai um único valor float64 do resultado.
// ok=false quando o vetor veio vazio.
func extractSingleValue(value model.Value) (float64, bool, error) {
	switch v := value.(type) {
	case model.Vector:
		if len(v) == 0 {
			return 0, false, nil
		}
		return float64(v[0].Value), true, nil
	case *model.Scalar:
		return float64(v.Value), true, nil
	default:
		return 0, false, fmt.Errorf("unexpected value type: %T", value)
	}
}

// extractTimeSeries extrai série temporal como []MetricSample
func extractTimeSeries(metric string, value model.Value) ([]models.MetricSample, error) {
	matrix, ok := value.(model.Matrix)
	if !ok {
		return nil, fmt.Errorf("expected matrix, got %T", value)
	}

	if len(matrix) == 0 {
		return []models.MetricSample{}, nil
	}

	if len(matrix) > 1 {
		log.Warn().
			Str("metric", metric).
			Int("series", len(matrix)).
			Msg("Query returned multiple series, using the first one (aggregate the query with sum/avg)")
	}

	// Pega primeira série
	series := matrix[0]
	result := make([]models.MetricSample, len(series.Values))

	for i, pair := range series.Values {
		result[i] = models.MetricSample{
			MetricName: metric,
			Timestamp:  pair.Timestamp.Time().UTC(),
			Value:      float64(pair.Value),
		}
	}

	return result, nil
}
