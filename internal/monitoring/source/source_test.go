package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"anomaly-watchdog/internal/monitoring/models"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestMemorySourceQueryRange(t *testing.T) {
	src := NewMemorySource()
	// Fora de ordem de propósito
	src.Add(
		models.MetricSample{MetricName: "cpu", Timestamp: base.Add(2 * time.Minute), Value: 3},
		models.MetricSample{MetricName: "cpu", Timestamp: base, Value: 1},
		models.MetricSample{MetricName: "cpu", Timestamp: base.Add(time.Minute), Value: 2},
		models.MetricSample{MetricName: "mem", Timestamp: base.Add(5 * time.Minute), Value: 10},
	)

	samples, err := src.QueryRange(context.Background(), "cpu", base.Add(time.Minute), base.Add(2*time.Minute), time.Minute)
	if err != nil {
		t.Fatalf("Failed to query range: %v", err)
	}
	if len(samples) != 2 || samples[0].Value != 2 || samples[1].Value != 3 {
		t.Errorf("Intervalo [start, end] inesperado: %+v", samples)
	}

	value, err := src.QueryInstant(context.Background(), "cpu")
	if err != nil {
		t.Fatalf("Failed to query instant: %v", err)
	}
	if value != 3 {
		t.Errorf("Valor atual esperado 3, obtido %v", value)
	}

	if _, err := src.QueryInstant(context.Background(), "disk"); err == nil {
		t.Error("Métrica sem amostras deveria falhar")
	}

	if got := src.Metrics(); len(got) != 2 || got[0] != "cpu" || got[1] != "mem" {
		t.Errorf("Métricas inesperadas: %v", got)
	}
	if !src.Latest().Equal(base.Add(5 * time.Minute)) {
		t.Errorf("Latest inesperado: %v", src.Latest())
	}
}

func TestBoundedSourceClassifiesErrors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(src *MemorySource)
		wantErr func(error) bool
	}{
		{
			name:    "timeout becomes insufficient data",
			setup:   func(src *MemorySource) { src.SetLatency(200 * time.Millisecond) },
			wantErr: models.IsInsufficientData,
		},
		{
			name:    "failure becomes source unavailable",
			setup:   func(src *MemorySource) { src.SetError("cpu", errors.New("connection refused")) },
			wantErr: models.IsSourceUnavailable,
		},
		{
			name:    "success",
			setup:   func(src *MemorySource) {},
			wantErr: func(err error) bool { return err == nil },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := NewMemorySource()
			src.Add(models.MetricSample{MetricName: "cpu", Timestamp: base, Value: 1})
			tt.setup(src)

			bounded := WithTimeout(src, 20*time.Millisecond)
			_, err := bounded.QueryRange(context.Background(), "cpu", base.Add(-time.Hour), base, time.Minute)
			if !tt.wantErr(err) {
				t.Errorf("Erro inesperado: %v", err)
			}
		})
	}

	if got := WithTimeout(NewMemorySource(), 0).Timeout(); got != DefaultQueryTimeout {
		t.Errorf("Timeout padrão esperado %v, obtido %v", DefaultQueryTimeout, got)
	}
}

func TestLoadSamplesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.json")
	content := `[
  {"metric_name": "cpu", "timestamp": "2024-03-01T12:00:00Z", "value": 45},
  {"metric_name": "cpu", "timestamp": "2024-03-01T12:01:00Z", "value": 95}
]`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write samples file: %v", err)
	}

	src, err := LoadSamplesFile(path)
	if err != nil {
		t.Fatalf("Failed to load samples file: %v", err)
	}
	if !src.Latest().Equal(base.Add(time.Minute)) {
		t.Errorf("Latest inesperado: %v", src.Latest())
	}

	if err := os.WriteFile(path, []byte("not json"), 0644); err != nil {
		t.Fatalf("Failed to write samples file: %v", err)
	}
	if _, err := LoadSamplesFile(path); err == nil {
		t.Error("Arquivo inválido deveria falhar")
	}
}
