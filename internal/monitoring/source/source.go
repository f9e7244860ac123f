package source

import (
	"context"
	"time"

	"anomaly-watchdog/internal/monitoring/models"
)

// MetricSource fonte externa de séries temporais.
// Ambas as consultas podem ser lentas, dependentes de rede e falhar.
type MetricSource interface {
	// QueryInstant retorna o valor atual da métrica
	QueryInstant(ctx context.Context, metric string) (float64, error)

	// QueryRange retorna as amostras de [start, end] em ordem crescente de timestamp
	QueryRange(ctx context.Context, metric string, start, end time.Time, step time.Duration) ([]models.MetricSample, error)
}
