package models

import "time"

// TrainingStatus resultado de uma execução de treino
type TrainingStatus string

const (
	TrainingSucceeded TrainingStatus = "succeeded"
	TrainingFailed    TrainingStatus = "failed"
	TrainingSkipped   TrainingStatus = "skipped" // outro treino em andamento
)

// TrainingRun registro de uma execução de treino do modelo multivariado
type TrainingRun struct {
	ID         string         `json:"id"`
	ModelName  string         `json:"model_name"`
	Features   []string       `json:"features"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Samples    int            `json:"samples"`
	Threshold  float64        `json:"threshold,omitempty"`
	Status     TrainingStatus `json:"status"`
	Error      string         `json:"error,omitempty"`
}

// Duration duração do treino
func (r TrainingRun) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
