package handlers

import (
	"net/http"
	"strconv"
	"time"

	"anomaly-watchdog/internal/logs"
	"github.com/gin-gonic/gin"
)

// LogsHandler expõe as linhas recentes do log da aplicação
type LogsHandler struct {
	manager *logs.LogManager
}

// NewLogsHandler cria um novo handler de logs
func NewLogsHandler(manager *logs.LogManager) *LogsHandler {
	return &LogsHandler{
		manager: manager,
	}
}

// GetLogs retorna as últimas linhas do buffer em memória
// GET /api/v1/logs?lines=200
func (h *LogsHandler) GetLogs(c *gin.Context) {
	lines := 200
	if l := c.Query("lines"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			lines = n
		}
	}

	entries := h.manager.ReadLogs(lines)

	c.JSON(http.StatusOK, gin.H{
		"logs":      entries,
		"count":     len(entries),
		"file":      h.manager.GetLogPath(),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// ClearLogs limpa o buffer em memória (o arquivo rotativo não é afetado)
// DELETE /api/v1/logs
func (h *LogsHandler) ClearLogs(c *gin.Context) {
	h.manager.ClearLogs()

	c.JSON(http.StatusOK, gin.H{
		"message": "Logs cleared successfully",
	})
}
