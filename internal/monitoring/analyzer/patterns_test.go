package analyzer

import (
	"math"
	"testing"
	"time"

	"anomaly-watchdog/internal/monitoring/models"
)

func TestDetectSuddenSpike(t *testing.T) {
	halfMinute := []models.MetricSample{
		{MetricName: "rps", Timestamp: t0, Value: 10},
		{MetricName: "rps", Timestamp: t0.Add(30 * time.Second), Value: 50},
	}

	tests := []struct {
		name             string
		window           []models.MetricSample
		wantEvent        bool
		wantSeverity     models.AlertSeverity
		wantInsufficient bool
	}{
		{name: "300 percent", window: samples("rps", 10, 40), wantEvent: true, wantSeverity: models.SeverityWarning},
		{name: "400 percent is critical", window: samples("rps", 10, 50), wantEvent: true, wantSeverity: models.SeverityCritical},
		{name: "below threshold", window: samples("rps", 10, 25)},
		{name: "decrease", window: samples("rps", 10, 2)},
		{name: "zero reference", window: samples("rps", 0, 5), wantInsufficient: true},
		{name: "single sample", window: samples("rps", 10), wantInsufficient: true},
		{name: "no sample old enough", window: halfMinute, wantInsufficient: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := DetectSuddenSpike("rps", tt.window, 60*time.Second, 200)

			if tt.wantInsufficient {
				if !models.IsInsufficientData(err) {
					t.Errorf("Esperado InsufficientDataError, obtido %v", err)
				}
				if event != nil {
					t.Errorf("Nenhum evento esperado com dados insuficientes")
				}
				return
			}
			if err != nil {
				t.Fatalf("Failed to evaluate spike: %v", err)
			}
			if (event != nil) != tt.wantEvent {
				t.Fatalf("Evento esperado=%v, obtido %+v", tt.wantEvent, event)
			}
			if event == nil {
				return
			}
			if event.Subtype != models.SubtypeSuddenSpike || event.DetectorKind != models.DetectorSpike {
				t.Errorf("Classificação inesperada: %s/%s", event.DetectorKind, event.Subtype)
			}
			if event.Severity != tt.wantSeverity {
				t.Errorf("Severidade esperada %s, obtida %s", tt.wantSeverity, event.Severity)
			}
			if event.BaselineValue != tt.window[0].Value {
				t.Errorf("Valor de referência esperado %v, obtido %v", tt.window[0].Value, event.BaselineValue)
			}
		})
	}
}

func TestDetectSuddenSpikeThresholdBoundary(t *testing.T) {
	// Referência 10 e limite 200%: dispara somente acima de 30
	for v := 10.0; v <= 60; v += 5 {
		event, err := DetectSuddenSpike("rps", samples("rps", 10, v), time.Minute, 200)
		if err != nil {
			t.Fatalf("Failed to evaluate spike for %v: %v", v, err)
		}
		if fired := event != nil; fired != (v > 30) {
			t.Errorf("valor %v: disparo esperado=%v, obtido=%v", v, v > 30, fired)
		}
	}
}

func TestTrendSlope(t *testing.T) {
	values := make([]float64, 30)
	for i := range values {
		values[i] = 200 - 2*float64(i)
	}

	slope, err := TrendSlope(samples("lat", values...))
	if err != nil {
		t.Fatalf("Failed to compute slope: %v", err)
	}
	if math.Abs(slope-(-2)) > 1e-9 {
		t.Errorf("Inclinação esperada -2/min, obtida %v", slope)
	}

	same := []models.MetricSample{
		{MetricName: "lat", Timestamp: t0, Value: 1},
		{MetricName: "lat", Timestamp: t0, Value: 5},
	}
	if _, err := TrendSlope(same); !models.IsInsufficientData(err) {
		t.Errorf("Timestamps iguais deveriam resultar em dados insuficientes, obtido %v", err)
	}
}

func TestDetectDegradation(t *testing.T) {
	declining := make([]float64, 30)
	rising := make([]float64, 30)
	for i := range declining {
		declining[i] = 200 - 2*float64(i)
		rising[i] = 100 + float64(i)
	}

	tests := []struct {
		name      string
		values    []float64
		wantEvent bool
	}{
		{name: "declining", values: declining, wantEvent: true},
		{name: "flat", values: repeat(100, 30)},
		{name: "rising", values: rising},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := DetectDegradation("throughput", samples("throughput", tt.values...), -1)
			if err != nil {
				t.Fatalf("Failed to evaluate degradation: %v", err)
			}
			if (event != nil) != tt.wantEvent {
				t.Fatalf("Evento esperado=%v, obtido %+v", tt.wantEvent, event)
			}
			if event != nil && math.Abs(event.Score-(-2)) > 1e-9 {
				t.Errorf("Score deveria ser a inclinação (-2), obtido %v", event.Score)
			}
		})
	}
}

func TestCountSignChanges(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   int
	}{
		{name: "alternating", values: []float64{1, 2, 1, 2, 1}, want: 3},
		{name: "monotonic with plateau", values: []float64{1, 2, 2, 3}, want: 0},
		{name: "plateau between directions", values: []float64{1, 2, 2, 1}, want: 1},
		{name: "empty", values: nil, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CountSignChanges(tt.values); got != tt.want {
				t.Errorf("Esperado %d mudanças, obtido %d", tt.want, got)
			}
		})
	}
}

func TestDetectOscillation(t *testing.T) {
	alternating := make([]float64, 31)
	monotonic := make([]float64, 31)
	for i := range alternating {
		alternating[i] = 10
		if i%2 == 1 {
			alternating[i] = 20
		}
		monotonic[i] = float64(i)
	}

	event, err := DetectOscillation("conn", samples("conn", alternating...), 0.4)
	if err != nil {
		t.Fatalf("Failed to evaluate oscillation: %v", err)
	}
	if event == nil {
		t.Fatal("Série alternada deveria gerar evento de oscilação")
	}
	if event.Subtype != models.SubtypeOscillation {
		t.Errorf("Subtipo esperado oscillation, obtido %s", event.Subtype)
	}

	event, err = DetectOscillation("conn", samples("conn", monotonic...), 0.4)
	if err != nil {
		t.Fatalf("Failed to evaluate oscillation: %v", err)
	}
	if event != nil {
		t.Errorf("Série monotônica não deveria oscilar: %+v", event)
	}

	if _, err := DetectOscillation("conn", samples("conn", 1, 2), 0.4); !models.IsInsufficientData(err) {
		t.Errorf("Duas amostras deveriam ser insuficientes, obtido %v", err)
	}
}

func TestDetectFlatline(t *testing.T) {
	event, err := DetectFlatline("queue", samples("queue", repeat(7, 30)...), 1e-3)
	if err != nil {
		t.Fatalf("Failed to evaluate flatline: %v", err)
	}
	if event == nil {
		t.Fatal("Série constante deveria gerar flatline")
	}
	if event.Score != 0 || event.BaselineValue != 7 {
		t.Errorf("Valores inesperados: score=%v baseline=%v", event.Score, event.BaselineValue)
	}

	event, err = DetectFlatline("queue", samples("queue", 10, 20, 10, 20, 10, 20), 1e-3)
	if err != nil {
		t.Fatalf("Failed to evaluate flatline: %v", err)
	}
	if event != nil {
		t.Errorf("Série com variância não deveria gerar flatline: %+v", event)
	}

	if _, err := DetectFlatline("queue", samples("queue", 7), 1e-3); !models.IsInsufficientData(err) {
		t.Errorf("Uma amostra deveria ser insuficiente, obtido %v", err)
	}
}
