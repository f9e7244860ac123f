package handlers

import (
	"net/http"
	"time"

	"anomaly-watchdog/internal/monitoring/storage"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// EventsHandler consulta o log de anomalias persistidas
type EventsHandler struct {
	events *storage.EventLog
}

// NewEventsHandler cria um novo handler
func NewEventsHandler(events *storage.EventLog) *EventsHandler {
	return &EventsHandler{
		events: events,
	}
}

// GetEvents retorna eventos com filtros opcionais
// GET /api/v1/events?metric=cpu&detector=statistical&subtype=spike&since=1h&until=2024-03-01T12:00:00Z&limit=50
func (h *EventsHandler) GetEvents(c *gin.Context) {
	filter, err := storage.ParseEventFilter(c.Request.URL.Query().Get, time.Now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	events, err := h.events.List(c.Request.Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("Falha ao consultar eventos")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

// GetStats retorna estatísticas do log de eventos
// GET /api/v1/events/stats
func (h *EventsHandler) GetStats(c *gin.Context) {
	stats, err := h.events.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}
