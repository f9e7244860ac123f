package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MetricSample representa uma amostra de métrica em um momento específico
type MetricSample struct {
	MetricName string    `json:"metric_name"`
	Timestamp  time.Time `json:"timestamp"`
	Value      float64   `json:"value"`
}

// DetectorKind identifica o detector que gerou um evento (conjunto fechado)
type DetectorKind string

const (
	DetectorStatistical  DetectorKind = "statistical"
	DetectorSpike        DetectorKind = "spike"
	DetectorDegradation  DetectorKind = "degradation"
	DetectorOscillation  DetectorKind = "oscillation"
	DetectorFlatline     DetectorKind = "flatline"
	DetectorMultivariate DetectorKind = "multivariate"
	DetectorCorrelation  DetectorKind = "correlation"
)

// AllDetectorKinds retorna todos os detectores conhecidos
func AllDetectorKinds() []DetectorKind {
	return []DetectorKind{
		DetectorStatistical,
		DetectorSpike,
		DetectorDegradation,
		DetectorOscillation,
		DetectorFlatline,
		DetectorMultivariate,
		DetectorCorrelation,
	}
}

// Valid verifica se o detector pertence ao conjunto fechado
func (k DetectorKind) Valid() bool {
	for _, known := range AllDetectorKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// ParseDetectorKind converte string em DetectorKind
func ParseDetectorKind(s string) (DetectorKind, error) {
	kind := DetectorKind(strings.ToLower(strings.TrimSpace(s)))
	if !kind.Valid() {
		return "", fmt.Errorf("unknown detector kind: %q", s)
	}
	return kind, nil
}

// AnomalySubtype classificação da anomalia dentro do detector
type AnomalySubtype string

const (
	SubtypeSpike       AnomalySubtype = "spike"        // z-score acima do threshold
	SubtypeDrop        AnomalySubtype = "drop"         // z-score abaixo de -threshold
	SubtypeSuddenSpike AnomalySubtype = "sudden_spike" // variação percentual brusca
	SubtypeDegradation AnomalySubtype = "degradation"  // tendência negativa sustentada
	SubtypeOscillation AnomalySubtype = "oscillation"  // instabilidade
	SubtypeFlatline    AnomalySubtype = "flatline"     // série estática
	SubtypeOutlier     AnomalySubtype = "outlier"      // modelo multivariado
)

// AlertSeverity define níveis de severidade
type AlertSeverity int

const (
	SeverityInfo AlertSeverity = iota
	SeverityWarning
	SeverityCritical
)

func (s AlertSeverity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// MarshalText serializa severidade como texto
func (s AlertSeverity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText lê severidade serializada como texto
func (s *AlertSeverity) UnmarshalText(text []byte) error {
	switch string(text) {
	case "info":
		*s = SeverityInfo
	case "warning":
		*s = SeverityWarning
	case "critical":
		*s = SeverityCritical
	default:
		return fmt.Errorf("unknown severity: %q", string(text))
	}
	return nil
}

// eventNamespace namespace dos IDs determinísticos de eventos
var eventNamespace = uuid.MustParse("6f1c2a7e-3b4d-5e6f-8a9b-0c1d2e3f4a5b")

// AnomalyEvent evento de anomalia. Imutável após criado.
type AnomalyEvent struct {
	ID            string         `json:"id"`
	MetricName    string         `json:"metric_name"`
	DetectorKind  DetectorKind   `json:"detector_kind"`
	Subtype       AnomalySubtype `json:"anomaly_subtype"`
	ObservedValue float64        `json:"observed_value"`
	BaselineValue float64        `json:"baseline_value"`
	Score         float64        `json:"score"`
	Severity      AlertSeverity  `json:"severity"`
	Timestamp     time.Time      `json:"timestamp"`
	Message       string         `json:"message,omitempty"`
}

// NewAnomalyEvent cria evento com ID derivado de (métrica, detector, subtipo, timestamp),
// de forma que a mesma detecção sempre gere o mesmo ID
func NewAnomalyEvent(metric string, kind DetectorKind, subtype AnomalySubtype, observed, baseline, score float64, ts time.Time) AnomalyEvent {
	return AnomalyEvent{
		ID:            EventID(metric, kind, subtype, ts),
		MetricName:    metric,
		DetectorKind:  kind,
		Subtype:       subtype,
		ObservedValue: observed,
		BaselineValue: baseline,
		Score:         score,
		Severity:      SeverityWarning,
		Timestamp:     ts.UTC(),
	}
}

// EventID gera o ID determinístico de um evento
func EventID(metric string, kind DetectorKind, subtype AnomalySubtype, ts time.Time) string {
	key := fmt.Sprintf("%s|%s|%s|%d", metric, kind, subtype, ts.UTC().UnixNano())
	return uuid.NewSHA1(eventNamespace, []byte(key)).String()
}

// WithSeverity retorna cópia com severidade alterada
func (e AnomalyEvent) WithSeverity(severity AlertSeverity) AnomalyEvent {
	e.Severity = severity
	return e
}

// WithMessage retorna cópia com mensagem alterada
func (e AnomalyEvent) WithMessage(format string, args ...interface{}) AnomalyEvent {
	e.Message = fmt.Sprintf(format, args...)
	return e
}

// Title título curto usado pelos sinks de notificação
func (e AnomalyEvent) Title() string {
	return fmt.Sprintf("[%s] %s %s/%s", strings.ToUpper(e.Severity.String()), e.MetricName, e.DetectorKind, e.Subtype)
}

// FeatureVector vetor ordenado de valores simultâneos usado pelo modelo multivariado
type FeatureVector struct {
	Features  []string  `json:"features"`
	Values    []float64 `json:"values"`
	Timestamp time.Time `json:"timestamp"`
}

// Len retorna número de features
func (v FeatureVector) Len() int {
	return len(v.Values)
}

// CorrelationPair coeficiente de Pearson entre duas métricas
type CorrelationPair struct {
	MetricA     string  `json:"metric_a"`
	MetricB     string  `json:"metric_b"`
	Coefficient float64 `json:"coefficient"`
	Samples     int     `json:"samples"`
}

// CorrelationReport resultado de uma análise de correlação
type CorrelationReport struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Window      time.Duration     `json:"window"`
	Threshold   float64           `json:"threshold"`
	Pairs       []CorrelationPair `json:"pairs"`
	Unusual     []CorrelationPair `json:"unusual_coupling"`
}
