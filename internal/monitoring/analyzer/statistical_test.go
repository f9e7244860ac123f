package analyzer

import (
	"testing"
	"time"

	"anomaly-watchdog/internal/monitoring/models"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// samples gera uma amostra por minuto a partir de t0
func samples(metric string, values ...float64) []models.MetricSample {
	out := make([]models.MetricSample, len(values))
	for i, v := range values {
		out[i] = models.MetricSample{
			MetricName: metric,
			Timestamp:  t0.Add(time.Duration(i) * time.Minute),
			Value:      v,
		}
	}
	return out
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestZScoreConstantSeries(t *testing.T) {
	if z := ZScore(42, 42, 0); z != 0 {
		t.Errorf("Série constante deveria ter z = 0, obtido %v", z)
	}
	if z := ZScore(100, 42, 0); z != 0 {
		t.Errorf("Desvio padrão zero deveria resultar em z = 0, obtido %v", z)
	}

	baseline, err := BaselineFromSamples("cpu", samples("cpu", repeat(42, 10)...))
	if err != nil {
		t.Fatalf("Failed to compute baseline: %v", err)
	}
	if baseline.StdDev != 0 || baseline.Mean != 42 {
		t.Errorf("Baseline inesperado: %+v", baseline)
	}

	current := models.MetricSample{MetricName: "cpu", Timestamp: t0.Add(time.Hour), Value: 42}
	if event := DetectStatistical("cpu", current, baseline, 3); event != nil {
		t.Errorf("Série constante não deveria gerar evento estatístico: %+v", event)
	}
}

func TestClassifyZScore(t *testing.T) {
	tests := []struct {
		z         float64
		wantType  models.AnomalySubtype
		anomalous bool
	}{
		{z: 3.5, wantType: models.SubtypeSpike, anomalous: true},
		{z: -3.5, wantType: models.SubtypeDrop, anomalous: true},
		{z: 3.0, anomalous: false},
		{z: -3.0, anomalous: false},
		{z: 0, anomalous: false},
	}

	for _, tt := range tests {
		subtype, anomalous := ClassifyZScore(tt.z, 3.0)
		if anomalous != tt.anomalous || subtype != tt.wantType {
			t.Errorf("z=%v: esperado (%q, %v), obtido (%q, %v)", tt.z, tt.wantType, tt.anomalous, subtype, anomalous)
		}
	}
}

func TestDetectStatistical(t *testing.T) {
	baseline := models.BaselineStats{Count: 60, Mean: 50, StdDev: 5}
	at := t0.Add(time.Hour)

	tests := []struct {
		name         string
		value        float64
		wantSubtype  models.AnomalySubtype
		wantSeverity models.AlertSeverity
		wantEvent    bool
	}{
		{name: "within band", value: 60, wantEvent: false},
		{name: "moderate spike", value: 66, wantEvent: true, wantSubtype: models.SubtypeSpike, wantSeverity: models.SeverityWarning},
		{name: "extreme spike", value: 80, wantEvent: true, wantSubtype: models.SubtypeSpike, wantSeverity: models.SeverityCritical},
		{name: "drop", value: 30, wantEvent: true, wantSubtype: models.SubtypeDrop, wantSeverity: models.SeverityWarning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			current := models.MetricSample{MetricName: "cpu", Timestamp: at, Value: tt.value}
			event := DetectStatistical("cpu", current, baseline, 3)

			if !tt.wantEvent {
				if event != nil {
					t.Errorf("Evento inesperado: %+v", event)
				}
				return
			}
			if event == nil {
				t.Fatal("Evento esperado, obtido nil")
			}
			if event.Subtype != tt.wantSubtype {
				t.Errorf("Subtipo esperado %s, obtido %s", tt.wantSubtype, event.Subtype)
			}
			if event.Severity != tt.wantSeverity {
				t.Errorf("Severidade esperada %s, obtida %s", tt.wantSeverity, event.Severity)
			}
			if event.BaselineValue != 50 || event.ObservedValue != tt.value {
				t.Errorf("Valores inesperados: observed=%v baseline=%v", event.ObservedValue, event.BaselineValue)
			}

			// Função pura: mesma entrada gera o mesmo evento (ID determinístico)
			again := DetectStatistical("cpu", current, baseline, 3)
			if again == nil || again.ID != event.ID {
				t.Errorf("Avaliação repetida deveria gerar o mesmo ID")
			}
		})
	}
}

func TestBaselineFromSamplesEmpty(t *testing.T) {
	_, err := BaselineFromSamples("cpu", nil)
	if !models.IsInsufficientData(err) {
		t.Errorf("Esperado InsufficientDataError, obtido %v", err)
	}
}

func TestDetectStatisticalMonotonicBoundary(t *testing.T) {
	baseline := models.BaselineStats{Count: 60, Mean: 50, StdDev: 5}
	at := t0.Add(time.Hour)

	// Varre de 50 a 80 em passos de 0.25: sem evento até z = 3 (65), spike depois
	fired := false
	for step := 0; step <= 120; step++ {
		value := 50 + 0.25*float64(step)
		event := DetectStatistical("cpu", models.MetricSample{MetricName: "cpu", Timestamp: at, Value: value}, baseline, 3)

		wantEvent := value > 65
		if (event != nil) != wantEvent {
			t.Fatalf("valor %v: esperado evento=%v, obtido %+v", value, wantEvent, event)
		}
		if fired && event == nil {
			t.Fatalf("valor %v: detecção não deveria oscilar após o limite", value)
		}
		if event != nil {
			if event.Subtype != models.SubtypeSpike {
				t.Errorf("valor %v: subtipo esperado spike, obtido %s", value, event.Subtype)
			}
			fired = true
		}
	}

	// Simétrico para drop
	for step := 0; step <= 120; step++ {
		value := 50 - 0.25*float64(step)
		event := DetectStatistical("cpu", models.MetricSample{MetricName: "cpu", Timestamp: at, Value: value}, baseline, 3)
		if wantEvent := value < 35; (event != nil) != wantEvent {
			t.Fatalf("valor %v: esperado evento=%v, obtido %+v", value, wantEvent, event)
		}
		if event != nil && event.Subtype != models.SubtypeDrop {
			t.Errorf("valor %v: subtipo esperado drop, obtido %s", value, event.Subtype)
		}
	}
}
