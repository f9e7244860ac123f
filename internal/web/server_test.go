package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"anomaly-watchdog/internal/history"
	"anomaly-watchdog/internal/monitoring/engine"
	"anomaly-watchdog/internal/monitoring/ml"
	"anomaly-watchdog/internal/monitoring/models"
	"anomaly-watchdog/internal/monitoring/source"
	"anomaly-watchdog/internal/monitoring/storage"
	"anomaly-watchdog/internal/notify"
	"github.com/benbjohnson/clock"
)

const testToken = "secret-token"

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeModel struct {
	status ml.Status
	model  *ml.TrainedModel
	err    error
}

func (f *fakeModel) Status() ml.Status { return f.status }

func (f *fakeModel) Train(ctx context.Context) (*ml.TrainedModel, error) {
	return f.model, f.err
}

type testServer struct {
	server *Server
	engine *engine.Engine
}

// newTestServer monta engine com uma métrica "cpu" (onda triangular seguida de salto)
// e executa um ciclo para popular eventos e baselines
func newTestServer(t *testing.T, mutate func(opts *Options)) *testServer {
	t.Helper()

	src := source.NewMemorySource()
	for i := 0; i < 60; i++ {
		phase := i % 40
		value := 45 + 0.5*float64(phase)
		if phase > 20 {
			value = 55 - 0.5*float64(phase-20)
		}
		src.Add(models.MetricSample{MetricName: "cpu", Timestamp: base.Add(time.Duration(i) * time.Minute), Value: value})
	}
	src.Add(models.MetricSample{MetricName: "cpu", Timestamp: base.Add(60 * time.Minute), Value: 95})

	eventLog, err := storage.NewEventLog(&storage.EventLogConfig{DBPath: filepath.Join(t.TempDir(), "events.db")})
	if err != nil {
		t.Fatalf("Failed to create event log: %v", err)
	}
	t.Cleanup(func() { eventLog.Close() })

	tracker, err := history.NewTrainingHistory(filepath.Join(t.TempDir(), "history"))
	if err != nil {
		t.Fatalf("Failed to create history: %v", err)
	}

	mock := clock.NewMock()
	mock.Set(base.Add(60 * time.Minute))

	cfg := engine.DefaultConfig()
	cfg.Metrics = []string{"cpu"}
	cfg.Workers = 1

	eng, err := engine.New(cfg, engine.Dependencies{
		Source: src,
		Events: eventLog,
		Sink:   notify.NewMemorySink(0),
		Clock:  mock,
	})
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	eng.RunCycle(context.Background())

	opts := Options{
		Token:   testToken,
		Version: "test",
		Engine:  eng,
		Events:  eventLog,
		History: tracker,
	}
	if mutate != nil {
		mutate(&opts)
	}

	server, err := NewServer(opts)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	return &testServer{server: server, engine: eng}
}

func (ts *testServer) do(t *testing.T, method, path, token string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)

	body := make(map[string]interface{})
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("Failed to decode response %s: %v", rec.Body.String(), err)
		}
	}
	return rec, body
}

func bearer() string {
	return "Bearer " + testToken
}

func TestNewServerRequiresEngine(t *testing.T) {
	if _, err := NewServer(Options{}); err == nil {
		t.Error("Servidor sem engine deveria falhar")
	}
}

func TestPublicEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)

	rec, body := ts.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("Health inesperado: %v", body)
	}

	rec, _ = ts.do(t, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "anomaly_watchdog_cycles_total") {
		t.Error("Métricas próprias deveriam ser expostas em /metrics")
	}
}

func TestAuthMiddleware(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name     string
		header   string
		wantCode int
		wantErr  string
	}{
		{name: "missing header", header: "", wantCode: http.StatusUnauthorized, wantErr: "UNAUTHORIZED"},
		{name: "wrong scheme", header: "Basic " + testToken, wantCode: http.StatusUnauthorized, wantErr: "INVALID_AUTH_FORMAT"},
		{name: "wrong token", header: "Bearer nope", wantCode: http.StatusUnauthorized, wantErr: "INVALID_TOKEN"},
		{name: "valid token", header: bearer(), wantCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := ts.do(t, http.MethodGet, "/api/v1/status", tt.header)
			if rec.Code != tt.wantCode {
				t.Fatalf("Expected %d, got %d", tt.wantCode, rec.Code)
			}
			if tt.wantErr == "" {
				return
			}
			errBody, ok := body["error"].(map[string]interface{})
			if !ok || errBody["code"] != tt.wantErr {
				t.Errorf("Código de erro esperado %s, obtido %v", tt.wantErr, body["error"])
			}
		})
	}
}

func TestAuthDisabledWithoutToken(t *testing.T) {
	ts := newTestServer(t, func(opts *Options) { opts.Token = "" })

	rec, _ := ts.do(t, http.MethodGet, "/api/v1/status", "")
	if rec.Code != http.StatusOK {
		t.Errorf("Sem token configurado a API deveria ser aberta, obtido %d", rec.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	rec, body := ts.do(t, http.MethodGet, "/api/v1/status", bearer())
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if body["state"] != "idle" {
		t.Errorf("Estado esperado idle, obtido %v", body["state"])
	}
	if body["cycles"] != float64(1) {
		t.Errorf("Esperado 1 ciclo, obtido %v", body["cycles"])
	}
	last, ok := body["last_cycle"].(map[string]interface{})
	if !ok {
		t.Fatalf("Resumo do último ciclo ausente: %v", body)
	}
	if last["persisted"] != float64(1) {
		t.Errorf("Esperado 1 evento persistido, obtido %v", last["persisted"])
	}
}

func TestEventsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name      string
		query     string
		wantCode  int
		wantCount float64
	}{
		{name: "all events", query: "", wantCode: http.StatusOK, wantCount: 1},
		{name: "by metric", query: "?metric=cpu&subtype=spike", wantCode: http.StatusOK, wantCount: 1},
		{name: "other metric", query: "?metric=mem", wantCode: http.StatusOK, wantCount: 0},
		{name: "by detector", query: "?detector=flatline", wantCode: http.StatusOK, wantCount: 0},
		{name: "unknown detector", query: "?detector=bogus", wantCode: http.StatusBadRequest},
		{name: "invalid limit", query: "?limit=-1", wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := ts.do(t, http.MethodGet, "/api/v1/events"+tt.query, bearer())
			if rec.Code != tt.wantCode {
				t.Fatalf("Expected %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			if body["count"] != tt.wantCount {
				t.Errorf("Esperado %v eventos, obtido %v", tt.wantCount, body["count"])
			}
		})
	}

	rec, body := ts.do(t, http.MethodGet, "/api/v1/events/stats", bearer())
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if body["total_events"] != float64(1) {
		t.Errorf("Total esperado 1, obtido %v", body["total_events"])
	}
}

func TestBaselinesEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	rec, body := ts.do(t, http.MethodGet, "/api/v1/baselines", bearer())
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if body["count"] != float64(1) {
		t.Errorf("Esperada 1 baseline, obtido %v", body["count"])
	}

	rec, body = ts.do(t, http.MethodGet, "/api/v1/baselines?metric=cpu", bearer())
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if body["metric_name"] != "cpu" {
		t.Errorf("Métrica inesperada: %v", body["metric_name"])
	}
	if body["samples"] != nil {
		t.Errorf("Amostras só deveriam vir com samples=true")
	}

	rec, body = ts.do(t, http.MethodGet, "/api/v1/baselines?metric=cpu&samples=true", bearer())
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if samples, ok := body["samples"].([]interface{}); !ok || len(samples) == 0 {
		t.Errorf("Amostras deveriam ser incluídas")
	}

	rec, _ = ts.do(t, http.MethodGet, "/api/v1/baselines?metric=mem", bearer())
	if rec.Code != http.StatusNotFound {
		t.Errorf("Métrica desconhecida deveria retornar 404, obtido %d", rec.Code)
	}
}

func TestCorrelationEndpointBeforeFirstReport(t *testing.T) {
	ts := newTestServer(t, nil)

	rec, _ := ts.do(t, http.MethodGet, "/api/v1/correlation", bearer())
	if rec.Code != http.StatusNotFound {
		t.Errorf("Sem relatório de correlação deveria retornar 404, obtido %d", rec.Code)
	}
}

func TestEngineControlRequiresRunning(t *testing.T) {
	ts := newTestServer(t, nil)

	for _, path := range []string{"/api/v1/engine/pause", "/api/v1/engine/resume"} {
		rec, _ := ts.do(t, http.MethodPost, path, bearer())
		if rec.Code != http.StatusConflict {
			t.Errorf("%s com engine parado deveria retornar 409, obtido %d", path, rec.Code)
		}
	}
}

func TestModelEndpoints(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		ts := newTestServer(t, nil)

		rec, body := ts.do(t, http.MethodGet, "/api/v1/model", bearer())
		if rec.Code != http.StatusOK || body["enabled"] != false {
			t.Errorf("Modelo desabilitado inesperado: %d %v", rec.Code, body)
		}

		rec, _ = ts.do(t, http.MethodPost, "/api/v1/model/train", bearer())
		if rec.Code != http.StatusNotFound {
			t.Errorf("Treino com modelo desabilitado deveria retornar 404, obtido %d", rec.Code)
		}
	})

	tests := []struct {
		name     string
		model    *fakeModel
		wantCode int
	}{
		{
			name: "trained",
			model: &fakeModel{model: &ml.TrainedModel{
				Name: "default", Threshold: 0.62, TrainedAt: base, TrainingSamples: 200,
			}},
			wantCode: http.StatusOK,
		},
		{
			name:     "training in progress",
			model:    &fakeModel{err: models.ErrTrainingInProgress},
			wantCode: http.StatusConflict,
		},
		{
			name: "insufficient data",
			model: &fakeModel{err: &models.InsufficientDataError{
				Detector: models.DetectorMultivariate, Reason: "no aligned rows",
			}},
			wantCode: http.StatusUnprocessableEntity,
		},
		{
			name:     "unexpected failure",
			model:    &fakeModel{err: errors.New("boom")},
			wantCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, func(opts *Options) { opts.Model = tt.model })

			rec, body := ts.do(t, http.MethodPost, "/api/v1/model/train", bearer())
			if rec.Code != tt.wantCode {
				t.Fatalf("Expected %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
			if tt.wantCode == http.StatusOK && body["threshold"] != 0.62 {
				t.Errorf("Threshold inesperado: %v", body["threshold"])
			}
		})
	}
}

func TestModelHistoryEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	run := models.TrainingRun{
		ID:         "run-1",
		ModelName:  "default",
		StartedAt:  base,
		FinishedAt: base.Add(time.Minute),
		Samples:    100,
		Status:     models.TrainingSucceeded,
	}
	if err := ts.server.opts.History.RecordTraining(run); err != nil {
		t.Fatalf("Failed to record training: %v", err)
	}

	rec, body := ts.do(t, http.MethodGet, "/api/v1/model/history?model=default", bearer())
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if body["count"] != float64(1) {
		t.Errorf("Esperada 1 execução, obtido %v", body["count"])
	}

	rec, _ = ts.do(t, http.MethodGet, "/api/v1/model/history/run-1", bearer())
	if rec.Code != http.StatusOK {
		t.Errorf("Execução existente deveria retornar 200, obtido %d", rec.Code)
	}

	rec, _ = ts.do(t, http.MethodGet, "/api/v1/model/history/missing", bearer())
	if rec.Code != http.StatusNotFound {
		t.Errorf("Execução inexistente deveria retornar 404, obtido %d", rec.Code)
	}
}
