package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestEventIDDeterministic(t *testing.T) {
	ts := time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC)

	a := NewAnomalyEvent("cpu", DetectorStatistical, SubtypeSpike, 95, 50, 15, ts)
	b := NewAnomalyEvent("cpu", DetectorStatistical, SubtypeSpike, 96, 51, 16, ts.In(time.FixedZone("BRT", -3*3600)))
	if a.ID != b.ID {
		t.Errorf("Mesma detecção deveria gerar o mesmo ID: %s != %s", a.ID, b.ID)
	}

	tests := []struct {
		name  string
		event AnomalyEvent
	}{
		{name: "other metric", event: NewAnomalyEvent("mem", DetectorStatistical, SubtypeSpike, 95, 50, 15, ts)},
		{name: "other detector", event: NewAnomalyEvent("cpu", DetectorSpike, SubtypeSpike, 95, 50, 15, ts)},
		{name: "other subtype", event: NewAnomalyEvent("cpu", DetectorStatistical, SubtypeDrop, 95, 50, 15, ts)},
		{name: "other timestamp", event: NewAnomalyEvent("cpu", DetectorStatistical, SubtypeSpike, 95, 50, 15, ts.Add(time.Second))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.event.ID == a.ID {
				t.Errorf("IDs deveriam diferir")
			}
		})
	}

	if a.Severity != SeverityWarning {
		t.Errorf("Severidade padrão deveria ser warning, obtida %s", a.Severity)
	}
	if a.Timestamp.Location() != time.UTC {
		t.Errorf("Timestamp deveria ser normalizado para UTC")
	}
}

func TestAnomalyEventJSON(t *testing.T) {
	ts := time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC)
	event := NewAnomalyEvent("cpu", DetectorFlatline, SubtypeFlatline, 7, 7, 0, ts).
		WithSeverity(SeverityCritical).
		WithMessage("cpu parado em %d", 7)

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("Failed to marshal event: %v", err)
	}
	if !strings.Contains(string(data), `"severity":"critical"`) {
		t.Errorf("Severidade deveria ser serializada como texto: %s", data)
	}
	if !strings.Contains(string(data), `"anomaly_subtype":"flatline"`) {
		t.Errorf("Subtipo ausente no JSON: %s", data)
	}

	var decoded AnomalyEvent
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal event: %v", err)
	}
	if decoded.Severity != SeverityCritical || decoded.Message != "cpu parado em 7" {
		t.Errorf("Evento decodificado inesperado: %+v", decoded)
	}

	var severity AlertSeverity
	if err := severity.UnmarshalText([]byte("fatal")); err == nil {
		t.Error("Severidade desconhecida deveria falhar")
	}

	if title := event.Title(); title != "[CRITICAL] cpu flatline/flatline" {
		t.Errorf("Título inesperado: %s", title)
	}
}

func TestParseDetectorKind(t *testing.T) {
	tests := []struct {
		input   string
		want    DetectorKind
		wantErr bool
	}{
		{input: "statistical", want: DetectorStatistical},
		{input: " Spike ", want: DetectorSpike},
		{input: "MULTIVARIATE", want: DetectorMultivariate},
		{input: "patterns", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDetectorKind(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Erro esperado=%v, obtido %v", tt.wantErr, err)
			}
			if got != tt.want {
				t.Errorf("Esperado %q, obtido %q", tt.want, got)
			}
		})
	}
}
