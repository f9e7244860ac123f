package ml

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"anomaly-watchdog/internal/monitoring/models"
	"gonum.org/v1/gonum/stat"
)

// ScalerParams média e desvio por feature usados na padronização
type ScalerParams struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// FitScaler calcula os parâmetros por coluna. Desvio zero vira 1.
func FitScaler(rows [][]float64) ScalerParams {
	if len(rows) == 0 {
		return ScalerParams{}
	}

	dims := len(rows[0])
	params := ScalerParams{
		Mean: make([]float64, dims),
		Std:  make([]float64, dims),
	}

	column := make([]float64, len(rows))
	for j := 0; j < dims; j++ {
		for i, row := range rows {
			column[i] = row[j]
		}
		mean, std := stat.MeanStdDev(column, nil)
		if len(rows) < 2 || std == 0 || math.IsNaN(std) {
			std = 1
		}
		params.Mean[j] = mean
		params.Std[j] = std
	}

	return params
}

// Transform padroniza um vetor
func (s ScalerParams) Transform(values []float64) []float64 {
	out := make([]float64, len(values))
	for j, v := range values {
		out[j] = (v - s.Mean[j]) / s.Std[j]
	}
	return out
}

// TrainedModel modelo multivariado treinado. Nunca alterado após criado.
type TrainedModel struct {
	Name              string       `json:"name"`
	Features          []string     `json:"feature_order"`
	Scaler            ScalerParams `json:"scaler_params"`
	Trees             []*Node      `json:"trees"`
	ContaminationRate float64      `json:"contamination_rate"`
	Threshold         float64      `json:"threshold"`
	TrainedAt         time.Time    `json:"trained_at"`
	TrainingSamples   int          `json:"training_samples"`
	SubsampleSize     int          `json:"subsample_size"`
	Seed              int64        `json:"seed"`
}

// FitParams parâmetros de treino
type FitParams struct {
	Name              string
	Features          []string
	EnsembleSize      int
	SubsampleSize     int
	ContaminationRate float64
	Seed              int64
	TrainedAt         time.Time
}

// Fit treina um modelo a partir das linhas (uma por timestamp, colunas na ordem de Features)
func Fit(rows [][]float64, params FitParams) (*TrainedModel, error) {
	if len(rows) < 2 {
		return nil, &models.InsufficientDataError{
			Metric:   params.Name,
			Detector: models.DetectorMultivariate,
			Reason:   fmt.Sprintf("%d training vectors, need at least 2", len(rows)),
		}
	}
	for i, row := range rows {
		if len(row) != len(params.Features) {
			return nil, &models.FeatureMismatchError{
				Expected: params.Features,
				Got:      len(row),
				Reason:   fmt.Sprintf("training row %d has %d values, expected %d", i, len(row), len(params.Features)),
			}
		}
	}
	if params.EnsembleSize <= 0 {
		return nil, fmt.Errorf("ensemble size must be > 0, got %d", params.EnsembleSize)
	}
	if params.ContaminationRate <= 0 || params.ContaminationRate > 0.5 {
		return nil, fmt.Errorf("contamination rate must be in (0, 0.5], got %v", params.ContaminationRate)
	}

	scaler := FitScaler(rows)
	points := make([][]float64, len(rows))
	for i, row := range rows {
		points[i] = scaler.Transform(row)
	}

	subsample := params.SubsampleSize
	if subsample <= 0 || subsample > len(points) {
		subsample = len(points)
	}

	trees := BuildForest(points, ForestParams{
		Trees:         params.EnsembleSize,
		SubsampleSize: subsample,
		Seed:          params.Seed,
	})

	// Threshold = percentil contamination dos scores de treino
	scores := make([]float64, len(points))
	for i, p := range points {
		scores[i] = AveragePath(trees, p)
	}
	sort.Float64s(scores)
	threshold := stat.Quantile(params.ContaminationRate, stat.Empirical, scores, nil)

	features := make([]string, len(params.Features))
	copy(features, params.Features)

	return &TrainedModel{
		Name:              params.Name,
		Features:          features,
		Scaler:            scaler,
		Trees:             trees,
		ContaminationRate: params.ContaminationRate,
		Threshold:         threshold,
		TrainedAt:         params.TrainedAt.UTC(),
		TrainingSamples:   len(rows),
		SubsampleSize:     subsample,
		Seed:              params.Seed,
	}, nil
}

// Score retorna o comprimento médio de caminho do vetor. Menor = mais anômalo.
func (m *TrainedModel) Score(values []float64) (float64, error) {
	if len(values) != len(m.Features) {
		return 0, &models.FeatureMismatchError{Expected: m.Features, Got: len(values)}
	}
	for j, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, &models.InsufficientDataError{
				Metric:   m.Features[j],
				Detector: models.DetectorMultivariate,
				Reason:   "non-finite feature value",
			}
		}
	}
	return AveragePath(m.Trees, m.Scaler.Transform(values)), nil
}

// IsAnomalous score abaixo do threshold
func (m *TrainedModel) IsAnomalous(score float64) bool {
	return score < m.Threshold
}

// Evaluate pontua o vetor e retorna evento quando anômalo.
// A ordem das features faz parte do contrato: nomes diferentes geram FeatureMismatchError.
func (m *TrainedModel) Evaluate(vector models.FeatureVector) (*models.AnomalyEvent, float64, error) {
	if len(vector.Features) > 0 && !sameFeatures(m.Features, vector.Features) {
		return nil, 0, &models.FeatureMismatchError{
			Expected: m.Features,
			Got:      vector.Len(),
			Reason:   fmt.Sprintf("model expects features %v, got %v", m.Features, vector.Features),
		}
	}

	score, err := m.Score(vector.Values)
	if err != nil {
		return nil, 0, err
	}
	if !m.IsAnomalous(score) {
		return nil, score, nil
	}

	parts := make([]string, len(m.Features))
	for j, name := range m.Features {
		parts[j] = fmt.Sprintf("%s=%.4g", name, vector.Values[j])
	}

	event := models.NewAnomalyEvent(m.Name, models.DetectorMultivariate, models.SubtypeOutlier,
		score, m.Threshold, score, vector.Timestamp).
		WithMessage("Combinação anômala de métricas (path %.3f < threshold %.3f): %s",
			score, m.Threshold, strings.Join(parts, ", "))

	// Isolado com menos de 3/4 do caminho limite
	if score < 0.75*m.Threshold {
		event = event.WithSeverity(models.SeverityCritical)
	}

	return &event, score, nil
}

func sameFeatures(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
