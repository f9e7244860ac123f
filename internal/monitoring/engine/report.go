package engine

import (
	"time"

	"anomaly-watchdog/internal/monitoring/analyzer"
	"anomaly-watchdog/internal/monitoring/models"
)

// CycleReport resultado de um ciclo de detecção
type CycleReport struct {
	Number      int64
	StartedAt   time.Time
	FinishedAt  time.Time
	Events      []models.AnomalyEvent
	Skipped     []analyzer.SkippedDetection
	Correlation *models.CorrelationReport

	SourceErrors    int
	DroppedSamples  int // NaN/Inf descartados na coleta
	Persisted       int
	Duplicates      int
	PersistFailures int
	Notified        int
	NotifyFailures  int
}

// Duration duração do ciclo
func (r *CycleReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// EventsByMetric eventos agrupados por métrica
func (r *CycleReport) EventsByMetric() map[string][]models.AnomalyEvent {
	out := make(map[string][]models.AnomalyEvent)
	for _, event := range r.Events {
		out[event.MetricName] = append(out[event.MetricName], event)
	}
	return out
}

// CycleSummary versão serializável do relatório
type CycleSummary struct {
	Number          int64          `json:"number"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      time.Time      `json:"finished_at"`
	DurationMs      int64          `json:"duration_ms"`
	Events          int            `json:"events"`
	Skipped         int            `json:"skipped"`
	SkippedByReason map[string]int `json:"skipped_by_reason,omitempty"`
	Subtypes        map[string]int `json:"subtypes,omitempty"`
	Correlation     bool           `json:"correlation"`
	SourceErrors    int            `json:"source_errors"`
	DroppedSamples  int            `json:"dropped_samples"`
	Persisted       int            `json:"persisted"`
	Duplicates      int            `json:"duplicates"`
	PersistFailures int            `json:"persist_failures"`
	Notified        int            `json:"notified"`
	NotifyFailures  int            `json:"notify_failures"`
}

// Summary resume o relatório
func (r *CycleReport) Summary() CycleSummary {
	summary := CycleSummary{
		Number:          r.Number,
		StartedAt:       r.StartedAt,
		FinishedAt:      r.FinishedAt,
		DurationMs:      r.Duration().Milliseconds(),
		Events:          len(r.Events),
		Skipped:         len(r.Skipped),
		SkippedByReason: make(map[string]int),
		Subtypes:        make(map[string]int),
		Correlation:     r.Correlation != nil,
		SourceErrors:    r.SourceErrors,
		DroppedSamples:  r.DroppedSamples,
		Persisted:       r.Persisted,
		Duplicates:      r.Duplicates,
		PersistFailures: r.PersistFailures,
		Notified:        r.Notified,
		NotifyFailures:  r.NotifyFailures,
	}

	for _, skip := range r.Skipped {
		summary.SkippedByReason[models.Reason(skip.Err)]++
	}
	for _, event := range r.Events {
		summary.Subtypes[string(event.Subtype)]++
	}

	return summary
}

// Status estado do engine para API/CLI
type Status struct {
	State       string        `json:"state"`
	Running     bool          `json:"running"`
	Paused      bool          `json:"paused"`
	Cycles      int64         `json:"cycles"`
	Interval    string        `json:"interval"`
	Metrics     []string      `json:"metrics"`
	NextCycleAt *time.Time    `json:"next_cycle_at,omitempty"`
	LastCycle   *CycleSummary `json:"last_cycle,omitempty"`
}

// Status retorna o estado atual
func (e *Engine) Status() Status {
	interval, _ := e.cadence.GetConfig()
	status := Status{
		State:    e.State().String(),
		Running:  e.IsRunning(),
		Paused:   e.IsPaused(),
		Cycles:   e.cadence.Cycles(),
		Interval: interval.String(),
		Metrics:  e.config.Metrics,
	}

	if status.Running && status.Cycles > 0 {
		next := e.cadence.NextCycleAt().UTC()
		status.NextCycleAt = &next
	}
	if last := e.LastCycle(); last != nil {
		summary := last.Summary()
		status.LastCycle = &summary
	}

	return status
}
