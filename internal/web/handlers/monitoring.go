package handlers

import (
	"net/http"
	"sort"

	"anomaly-watchdog/internal/monitoring/engine"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// MonitoringHandler expõe o estado do engine de detecção
type MonitoringHandler struct {
	engine *engine.Engine
}

// NewMonitoringHandler cria um novo handler
func NewMonitoringHandler(eng *engine.Engine) *MonitoringHandler {
	return &MonitoringHandler{
		engine: eng,
	}
}

// GetStatus retorna o estado do engine e o resumo do último ciclo
// GET /api/v1/status
func (h *MonitoringHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Status())
}

// GetBaselines retorna a janela de baseline de cada métrica
// GET /api/v1/baselines?metric=cpu&samples=true
func (h *MonitoringHandler) GetBaselines(c *gin.Context) {
	windows := h.engine.Cache().GetAll()
	includeSamples := c.Query("samples") == "true"

	if metric := c.Query("metric"); metric != "" {
		window, ok := windows[metric]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "No baseline for metric " + metric,
			})
			return
		}
		if !includeSamples {
			window.Samples = nil
		}
		c.JSON(http.StatusOK, window)
		return
	}

	names := make([]string, 0, len(windows))
	for name, window := range windows {
		names = append(names, name)
		if !includeSamples {
			window.Samples = nil
		}
	}
	sort.Strings(names)

	c.JSON(http.StatusOK, gin.H{
		"metrics":   names,
		"baselines": windows,
		"count":     len(windows),
	})
}

// GetCorrelation retorna o último relatório de correlação
// GET /api/v1/correlation
func (h *MonitoringHandler) GetCorrelation(c *gin.Context) {
	report := h.engine.LatestCorrelation()
	if report == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "No correlation report yet",
		})
		return
	}

	c.JSON(http.StatusOK, report)
}

// Pause suspende os ciclos agendados
// POST /api/v1/engine/pause
func (h *MonitoringHandler) Pause(c *gin.Context) {
	if !h.engine.IsRunning() {
		c.JSON(http.StatusConflict, gin.H{"error": "Engine is not running"})
		return
	}

	h.engine.Pause()
	log.Info().Msg("⏸️  Engine pausado via API")

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"state":   h.engine.Status(),
	})
}

// Resume retoma os ciclos agendados
// POST /api/v1/engine/resume
func (h *MonitoringHandler) Resume(c *gin.Context) {
	if !h.engine.IsRunning() {
		c.JSON(http.StatusConflict, gin.H{"error": "Engine is not running"})
		return
	}

	h.engine.Resume()
	log.Info().Msg("▶️  Engine retomado via API")

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"state":   h.engine.Status(),
	})
}
