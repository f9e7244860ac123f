package source

import (
	"context"
	"errors"
	"time"

	"anomaly-watchdog/internal/monitoring/models"
)

// DefaultQueryTimeout limite padrão de cada consulta à fonte
const DefaultQueryTimeout = 15 * time.Second

// BoundedSource aplica timeout a cada consulta e classifica os erros:
// timeout vira InsufficientDataError, qualquer outra falha vira SourceUnavailableError
type BoundedSource struct {
	inner   MetricSource
	timeout time.Duration
}

// WithTimeout envolve src limitando cada consulta a timeout
func WithTimeout(src MetricSource, timeout time.Duration) *BoundedSource {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return &BoundedSource{inner: src, timeout: timeout}
}

// Timeout retorna o limite aplicado
func (b *BoundedSource) Timeout() time.Duration {
	return b.timeout
}

// QueryInstant consulta o valor atual com timeout
func (b *BoundedSource) QueryInstant(ctx context.Context, metric string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	value, err := b.inner.QueryInstant(ctx, metric)
	if err != nil {
		return 0, classify(ctx, metric, err)
	}
	return value, nil
}

// QueryRange consulta a série com timeout
func (b *BoundedSource) QueryRange(ctx context.Context, metric string, start, end time.Time, step time.Duration) ([]models.MetricSample, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	samples, err := b.inner.QueryRange(ctx, metric, start, end, step)
	if err != nil {
		return nil, classify(ctx, metric, err)
	}
	return samples, nil
}

func classify(ctx context.Context, metric string, err error) error {
	if models.IsInsufficientData(err) || models.IsSourceUnavailable(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &models.InsufficientDataError{
			Metric: metric,
			Reason: "metric source timed out",
			Err:    err,
		}
	}
	return &models.SourceUnavailableError{Metric: metric, Err: err}
}
