package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Métricas do próprio watchdog, expostas em /metrics
var (
	// Ciclos de detecção
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anomaly_watchdog_cycles_total",
			Help: "Total number of detection cycles",
		},
		[]string{"status"}, // ok, partial
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "anomaly_watchdog_cycle_duration_seconds",
			Help:    "Detection cycle duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms a ~25s
		},
	)

	// Eventos e detecções puladas
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anomaly_watchdog_events_total",
			Help: "Total number of anomaly events emitted",
		},
		[]string{"detector", "subtype", "severity"},
	)

	SkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anomaly_watchdog_skipped_detections_total",
			Help: "Detections skipped due to insufficient data or source errors",
		},
		[]string{"detector", "reason"},
	)

	SourceErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anomaly_watchdog_source_errors_total",
			Help: "Metric source query failures",
		},
		[]string{"metric"},
	)

	// Saídas
	PersistenceFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "anomaly_watchdog_persistence_failures_total",
			Help: "Events that could not be written to the event log",
		},
	)

	NotifyFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "anomaly_watchdog_notify_failures_total",
			Help: "Events whose notification failed",
		},
	)

	// Modelo multivariado
	TrainingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anomaly_watchdog_model_trainings_total",
			Help: "Model training runs by status",
		},
		[]string{"model", "status"},
	)

	ModelThreshold = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "anomaly_watchdog_model_threshold",
			Help: "Decision threshold of the installed model",
		},
		[]string{"model"},
	)

	EngineState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "anomaly_watchdog_engine_state",
			Help: "Engine state (0=idle 1=collecting 2=detecting 3=reporting)",
		},
	)
)
