package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"anomaly-watchdog/internal/history"
	"anomaly-watchdog/internal/monitoring/models"
	"github.com/gin-gonic/gin"
)

// HistoryHandler gerencia endpoints do histórico de treinos
type HistoryHandler struct {
	tracker *history.TrainingHistory
}

// NewHistoryHandler cria um novo handler
func NewHistoryHandler(tracker *history.TrainingHistory) *HistoryHandler {
	return &HistoryHandler{
		tracker: tracker,
	}
}

// GetHistory retorna execuções de treino com filtros opcionais
// GET /api/v1/model/history?model=default&status=failed&start_date=2025-01-01&limit=20
func (h *HistoryHandler) GetHistory(c *gin.Context) {
	filter := history.HistoryFilter{
		Model:  c.Query("model"),
		Status: models.TrainingStatus(c.Query("status")),
	}

	// Parse datas
	if startDateStr := c.Query("start_date"); startDateStr != "" {
		if t, err := time.Parse("2006-01-02", startDateStr); err == nil {
			filter.StartDate = t
		}
	}

	if endDateStr := c.Query("end_date"); endDateStr != "" {
		if t, err := time.Parse("2006-01-02", endDateStr); err == nil {
			filter.EndDate = t.Add(24 * time.Hour) // Incluir dia completo
		}
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}

	runs := h.tracker.GetFiltered(filter)

	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetHistoryEntry retorna uma execução específica por ID
// GET /api/v1/model/history/:id
func (h *HistoryHandler) GetHistoryEntry(c *gin.Context) {
	id := c.Param("id")

	run, err := h.tracker.GetByID(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Training run not found: %s", id)})
		return
	}

	c.JSON(http.StatusOK, run)
}

// GetHistoryStats retorna contagem de execuções por status
// GET /api/v1/model/history/stats
func (h *HistoryHandler) GetHistoryStats(c *gin.Context) {
	runs := h.tracker.GetAll()

	byStatus := make(map[string]int)
	byModel := make(map[string]int)
	for _, run := range runs {
		byStatus[string(run.Status)]++
		byModel[run.ModelName]++
	}

	c.JSON(http.StatusOK, gin.H{
		"total":     len(runs),
		"by_status": byStatus,
		"by_model":  byModel,
	})
}
