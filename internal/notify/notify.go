package notify

import (
	"context"
	"sync"

	"anomaly-watchdog/internal/monitoring/models"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
)

// Sink destino das notificações de anomalia. Falhas não são retentadas.
type Sink interface {
	Notify(ctx context.Context, title string, event models.AnomalyEvent) error
}

// Message payload publicado pelos sinks
type Message struct {
	Title string              `json:"title"`
	Event models.AnomalyEvent `json:"event"`
}

// LogSink escreve cada anomalia no log estruturado
type LogSink struct{}

// NewLogSink cria sink de log
func NewLogSink() *LogSink {
	return &LogSink{}
}

// Notify registra o evento no log
func (s *LogSink) Notify(ctx context.Context, title string, event models.AnomalyEvent) error {
	entry := log.Warn()
	if event.Severity == models.SeverityCritical {
		entry = log.Error()
	}

	entry.
		Str("id", event.ID).
		Str("metric", event.MetricName).
		Str("detector", string(event.DetectorKind)).
		Str("subtype", string(event.Subtype)).
		Float64("observed", event.ObservedValue).
		Float64("baseline", event.BaselineValue).
		Float64("score", event.Score).
		Time("timestamp", event.Timestamp).
		Str("message", event.Message).
		Msg("🚨 " + title)

	return nil
}

// MultiSink repassa para todos os sinks. Falha de um não impede os demais.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink cria sink composto
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Add inclui sink
func (m *MultiSink) Add(sink Sink) {
	m.sinks = append(m.sinks, sink)
}

// Len número de sinks
func (m *MultiSink) Len() int {
	return len(m.sinks)
}

// Notify repassa e agrega erros
func (m *MultiSink) Notify(ctx context.Context, title string, event models.AnomalyEvent) error {
	var errs error
	for _, sink := range m.sinks {
		errs = multierr.Append(errs, sink.Notify(ctx, title, event))
	}
	return errs
}

// MemorySink guarda as mensagens recebidas (API recente, testes, modo check)
type MemorySink struct {
	mu       sync.Mutex
	messages []Message
	limit    int
}

// NewMemorySink cria sink com limite de mensagens retidas (0 = sem limite)
func NewMemorySink(limit int) *MemorySink {
	return &MemorySink{limit: limit}
}

// Notify guarda a mensagem
func (m *MemorySink) Notify(ctx context.Context, title string, event models.AnomalyEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages = append(m.messages, Message{Title: title, Event: event})
	if m.limit > 0 && len(m.messages) > m.limit {
		m.messages = append(m.messages[:0:0], m.messages[len(m.messages)-m.limit:]...)
	}
	return nil
}

// Messages retorna cópia das mensagens
func (m *MemorySink) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// Reset descarta as mensagens
func (m *MemorySink) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
}
