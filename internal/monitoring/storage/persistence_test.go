package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"anomaly-watchdog/internal/monitoring/models"
)

func newTestEventLog(t *testing.T) (*EventLog, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "events.db")

	l, err := NewEventLog(&EventLogConfig{DBPath: dbPath})
	if err != nil {
		t.Fatalf("Failed to create event log: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l, dbPath
}

var eventBase = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func testEvent(metric string, kind models.DetectorKind, subtype models.AnomalySubtype, offset time.Duration) models.AnomalyEvent {
	return models.NewAnomalyEvent(metric, kind, subtype, 95, 50, 4.2, eventBase.Add(offset))
}

func TestEventLogAppendAndList(t *testing.T) {
	l, dbPath := newTestEventLog(t)
	ctx := context.Background()

	// Verifica que DB foi criado
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Fatal("Database file was not created")
	}

	e1 := testEvent("cpu", models.DetectorStatistical, models.SubtypeSpike, 0)
	e2 := testEvent("cpu", models.DetectorSpike, models.SubtypeSuddenSpike, time.Minute).
		WithSeverity(models.SeverityCritical).
		WithMessage("salto de %d%%", 300)
	e3 := testEvent("latency", models.DetectorDegradation, models.SubtypeDegradation, 2*time.Minute)

	for _, e := range []models.AnomalyEvent{e1, e2, e3} {
		inserted, err := l.Append(ctx, e)
		if err != nil {
			t.Fatalf("Failed to append event: %v", err)
		}
		if !inserted {
			t.Errorf("Evento %s deveria ser novo", e.ID)
		}
	}

	events, err := l.List(ctx, EventFilter{})
	if err != nil {
		t.Fatalf("Failed to list events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}

	// Mais recente primeiro
	if events[0].ID != e3.ID {
		t.Errorf("Primeiro evento deveria ser o mais recente")
	}

	// Round-trip preserva campos
	got := events[1]
	if got.Severity != models.SeverityCritical || got.Message != "salto de 300%" {
		t.Errorf("Evento não preservado: %+v", got)
	}
	if !got.Timestamp.Equal(e2.Timestamp) {
		t.Errorf("Timestamp esperado %v, obtido %v", e2.Timestamp, got.Timestamp)
	}
}

func TestEventLogDuplicateIgnored(t *testing.T) {
	l, _ := newTestEventLog(t)
	ctx := context.Background()

	event := testEvent("cpu", models.DetectorStatistical, models.SubtypeSpike, 0)

	if inserted, err := l.Append(ctx, event); err != nil || !inserted {
		t.Fatalf("Primeira gravação falhou: inserted=%v err=%v", inserted, err)
	}

	// Mesma detecção recriada: mesmo ID determinístico
	again := testEvent("cpu", models.DetectorStatistical, models.SubtypeSpike, 0)
	inserted, err := l.Append(ctx, again)
	if err != nil {
		t.Fatalf("Failed to append duplicate: %v", err)
	}
	if inserted {
		t.Error("Duplicata não deveria ser inserida")
	}

	count, err := l.Count(ctx)
	if err != nil {
		t.Fatalf("Failed to count: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 event, got %d", count)
	}
}

func TestEventLogAppendBatch(t *testing.T) {
	l, _ := newTestEventLog(t)
	ctx := context.Background()

	batch := []models.AnomalyEvent{
		testEvent("cpu", models.DetectorStatistical, models.SubtypeSpike, 0),
		testEvent("cpu", models.DetectorFlatline, models.SubtypeFlatline, 0),
		testEvent("cpu", models.DetectorStatistical, models.SubtypeSpike, 0), // duplicata
	}

	inserted, err := l.AppendBatch(ctx, batch)
	if err != nil {
		t.Fatalf("Failed to append batch: %v", err)
	}
	if inserted != 2 {
		t.Errorf("Expected 2 inserted, got %d", inserted)
	}
}

func TestEventLogListFilter(t *testing.T) {
	l, _ := newTestEventLog(t)
	ctx := context.Background()

	events := []models.AnomalyEvent{
		testEvent("cpu", models.DetectorStatistical, models.SubtypeSpike, 0),
		testEvent("cpu", models.DetectorStatistical, models.SubtypeDrop, 10*time.Minute),
		testEvent("cpu", models.DetectorOscillation, models.SubtypeOscillation, 20*time.Minute),
		testEvent("memory", models.DetectorStatistical, models.SubtypeSpike, 30*time.Minute),
	}
	if _, err := l.AppendBatch(ctx, events); err != nil {
		t.Fatalf("Failed to append batch: %v", err)
	}

	tests := []struct {
		name   string
		filter EventFilter
		want   int
	}{
		{name: "all", filter: EventFilter{}, want: 4},
		{name: "by metric", filter: EventFilter{Metric: "cpu"}, want: 3},
		{name: "by detector", filter: EventFilter{Detector: models.DetectorStatistical}, want: 3},
		{name: "by subtype", filter: EventFilter{Subtype: models.SubtypeSpike}, want: 2},
		{name: "since", filter: EventFilter{Since: eventBase.Add(10 * time.Minute)}, want: 3},
		{name: "until", filter: EventFilter{Until: eventBase.Add(10 * time.Minute)}, want: 2},
		{name: "limit", filter: EventFilter{Limit: 1}, want: 1},
		{name: "combined", filter: EventFilter{Metric: "cpu", Detector: models.DetectorStatistical, Since: eventBase.Add(time.Minute)}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("Failed to list: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("Expected %d events, got %d", tt.want, len(got))
			}
		})
	}
}

func TestEventLogStats(t *testing.T) {
	l, _ := newTestEventLog(t)
	ctx := context.Background()

	events := []models.AnomalyEvent{
		testEvent("cpu", models.DetectorStatistical, models.SubtypeSpike, 0),
		testEvent("cpu", models.DetectorFlatline, models.SubtypeFlatline, time.Minute),
		testEvent("memory", models.DetectorStatistical, models.SubtypeDrop, 2*time.Minute),
	}
	if _, err := l.AppendBatch(ctx, events); err != nil {
		t.Fatalf("Failed to append batch: %v", err)
	}

	stats, err := l.Stats(ctx)
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}

	if stats.TotalEvents != 3 {
		t.Errorf("Expected 3 events, got %d", stats.TotalEvents)
	}
	if stats.Metrics != 2 {
		t.Errorf("Expected 2 metrics, got %d", stats.Metrics)
	}
	if stats.ByDetector["statistical"] != 2 {
		t.Errorf("Expected 2 statistical events, got %d", stats.ByDetector["statistical"])
	}
	if !stats.Oldest.Equal(eventBase) || !stats.Newest.Equal(eventBase.Add(2*time.Minute)) {
		t.Errorf("Range inesperado: %v - %v", stats.Oldest, stats.Newest)
	}
	if stats.DBSize == 0 {
		t.Error("DBSize deveria ser > 0")
	}
}

func TestEventLogMetadata(t *testing.T) {
	l, _ := newTestEventLog(t)
	ctx := context.Background()

	if _, ok, err := l.GetMetadata(ctx, "last_cycle"); err != nil || ok {
		t.Fatalf("Chave inexistente: ok=%v err=%v", ok, err)
	}

	if err := l.SetMetadata(ctx, "last_cycle", "42"); err != nil {
		t.Fatalf("Failed to set metadata: %v", err)
	}

	value, ok, err := l.GetMetadata(ctx, "last_cycle")
	if err != nil || !ok || value != "42" {
		t.Errorf("Metadata inesperado: value=%q ok=%v err=%v", value, ok, err)
	}

	version, ok, _ := l.GetMetadata(ctx, "schema_version")
	if !ok || version != "1" {
		t.Errorf("schema_version esperado 1, obtido %q", version)
	}
}

func TestEventLogReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "events.db")
	ctx := context.Background()

	l, err := NewEventLog(&EventLogConfig{DBPath: dbPath})
	if err != nil {
		t.Fatalf("Failed to create event log: %v", err)
	}
	if _, err := l.Append(ctx, testEvent("cpu", models.DetectorStatistical, models.SubtypeSpike, 0)); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}
	l.Close()

	reopened, err := NewEventLog(&EventLogConfig{DBPath: dbPath})
	if err != nil {
		t.Fatalf("Failed to reopen event log: %v", err)
	}
	defer reopened.Close()

	count, err := reopened.Count(ctx)
	if err != nil {
		t.Fatalf("Failed to count: %v", err)
	}
	if count != 1 {
		t.Errorf("Evento deveria sobreviver ao reopen, count=%d", count)
	}
}
