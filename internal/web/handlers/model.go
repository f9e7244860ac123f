package handlers

import (
	"context"
	"errors"
	"net/http"

	"anomaly-watchdog/internal/monitoring/ml"
	"anomaly-watchdog/internal/monitoring/models"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// ModelService modelo multivariado exposto pela API
type ModelService interface {
	Status() ml.Status
	Train(ctx context.Context) (*ml.TrainedModel, error)
}

// ModelHandler gerencia o modelo multivariado
type ModelHandler struct {
	service ModelService
}

// NewModelHandler cria um novo handler. service nil = modelo desabilitado.
func NewModelHandler(service ModelService) *ModelHandler {
	return &ModelHandler{
		service: service,
	}
}

// GetModel retorna o estado do modelo
// GET /api/v1/model
func (h *ModelHandler) GetModel(c *gin.Context) {
	if h.service == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"enabled": true,
		"model":   h.service.Status(),
	})
}

// TrainModel dispara um treino.
// POST /api/v1/model/train           (aguarda o resultado)
// POST /api/v1/model/train?async=true (retorna 202 imediatamente)
func (h *ModelHandler) TrainModel(c *gin.Context) {
	if h.service == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Multivariate model is disabled"})
		return
	}

	if c.Query("async") == "true" {
		if h.service.Status().Training {
			c.JSON(http.StatusConflict, gin.H{"error": models.ErrTrainingInProgress.Error()})
			return
		}
		go func() {
			if _, err := h.service.Train(context.Background()); err != nil && !errors.Is(err, models.ErrTrainingInProgress) {
				log.Warn().Err(err).Msg("Treino assíncrono falhou")
			}
		}()
		c.JSON(http.StatusAccepted, gin.H{"message": "Training started"})
		return
	}

	model, err := h.service.Train(c.Request.Context())
	if err != nil {
		c.JSON(trainingErrorStatus(err), gin.H{
			"error":  err.Error(),
			"reason": models.Reason(err),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"name":             model.Name,
		"trained_at":       model.TrainedAt,
		"threshold":        model.Threshold,
		"training_samples": model.TrainingSamples,
	})
}

func trainingErrorStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrTrainingInProgress):
		return http.StatusConflict
	case models.IsInsufficientData(err):
		return http.StatusUnprocessableEntity
	case models.IsSourceUnavailable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
