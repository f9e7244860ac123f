package ml

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"anomaly-watchdog/internal/metrics"
	"anomaly-watchdog/internal/monitoring/models"
	"anomaly-watchdog/internal/monitoring/source"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Store persistência do modelo treinado
type Store interface {
	Save(model *TrainedModel) error
	Load(name string) (*TrainedModel, error)
}

// Recorder recebe o registro de cada execução de treino
type Recorder interface {
	RecordTraining(run models.TrainingRun) error
}

// ServiceConfig configuração do modelo multivariado
type ServiceConfig struct {
	Name               string
	Features           []string
	EnsembleSize       int           // árvores (default: 100)
	SubsampleSize      int           // pontos por árvore (default: 256)
	ContaminationRate  float64       // fração esperada de anomalias (default: 0.05)
	Seed               int64         // 0 = baseado no relógio
	TrainingWindow     time.Duration // default: 7 dias
	TrainingStep       time.Duration // default: 5min
	MinTrainingSamples int           // default: 32
}

// DefaultServiceConfig retorna configuração padrão
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Name:               "default",
		EnsembleSize:       100,
		SubsampleSize:      256,
		ContaminationRate:  0.05,
		TrainingWindow:     7 * 24 * time.Hour,
		TrainingStep:       5 * time.Minute,
		MinTrainingSamples: 32,
	}
}

// Service mantém o modelo atual, treina e pontua vetores.
// Treino e pontuação podem ocorrer em paralelo: a troca do modelo é atômica.
type Service struct {
	config   *ServiceConfig
	source   source.MetricSource
	store    Store
	recorder Recorder
	clock    clock.Clock

	current  atomic.Pointer[TrainedModel]
	training sync.Mutex
	inFlight atomic.Bool

	mu             sync.RWMutex
	disabledReason error
}

// NewService cria o serviço. store e recorder são opcionais.
func NewService(config *ServiceConfig, src source.MetricSource, store Store, recorder Recorder, clk clock.Clock) *Service {
	if config == nil {
		config = DefaultServiceConfig()
	}
	if clk == nil {
		clk = clock.New()
	}

	return &Service{
		config:   config,
		source:   src,
		store:    store,
		recorder: recorder,
		clock:    clk,
	}
}

// Name nome do conjunto de métricas do modelo
func (s *Service) Name() string {
	return s.config.Name
}

// Features ordem das features configuradas
func (s *Service) Features() []string {
	return s.config.Features
}

// LoadPersisted carrega o modelo salvo, se existir
func (s *Service) LoadPersisted() error {
	if s.store == nil {
		return nil
	}

	model, err := s.store.Load(s.config.Name)
	if err != nil {
		return err
	}

	if !sameFeatures(model.Features, s.config.Features) {
		mismatch := &models.FeatureMismatchError{
			Expected: s.config.Features,
			Got:      len(model.Features),
			Reason:   fmt.Sprintf("persisted model has features %v, configured %v", model.Features, s.config.Features),
		}
		s.disable(mismatch)
		return mismatch
	}

	s.current.Store(model)
	log.Info().
		Str("model", model.Name).
		Time("trained_at", model.TrainedAt).
		Int("trees", len(model.Trees)).
		Float64("threshold", model.Threshold).
		Msg("Modelo multivariado carregado")

	return nil
}

// Model retorna o modelo atual
func (s *Service) Model() (*TrainedModel, error) {
	model := s.current.Load()
	if model == nil {
		return nil, &models.ModelNotTrainedError{Name: s.config.Name}
	}
	return model, nil
}

// Install substitui o modelo atual e reabilita a pontuação
func (s *Service) Install(model *TrainedModel) {
	s.current.Store(model)
	s.disable(nil)
}

// Disabled retorna o motivo quando a pontuação está desabilitada
func (s *Service) Disabled() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.disabledReason
}

func (s *Service) disable(reason error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disabledReason = reason
}

// Training indica treino em andamento
func (s *Service) Training() bool {
	return s.inFlight.Load()
}

// Score pontua o vetor com o modelo atual. FeatureMismatchError desabilita a
// pontuação até o próximo treino.
func (s *Service) Score(vector models.FeatureVector) (*models.AnomalyEvent, error) {
	if reason := s.Disabled(); reason != nil {
		return nil, reason
	}

	model, err := s.Model()
	if err != nil {
		return nil, err
	}

	event, score, err := model.Evaluate(vector)
	if err != nil {
		if models.IsFeatureMismatch(err) {
			s.disable(err)
			log.Error().
				Err(err).
				Str("model", model.Name).
				Msg("Pontuação multivariada desabilitada até novo treino")
		}
		return nil, err
	}

	log.Debug().
		Str("model", model.Name).
		Float64("score", score).
		Float64("threshold", model.Threshold).
		Bool("anomalous", event != nil).
		Msg("Vetor multivariado pontuado")

	return event, nil
}

// Train coleta a janela de treino na fonte, treina e troca o modelo atomicamente.
// Retorna ErrTrainingInProgress se outro treino estiver rodando.
func (s *Service) Train(ctx context.Context) (*TrainedModel, error) {
	if !s.training.TryLock() {
		s.record(models.TrainingRun{
			ID:         uuid.NewString(),
			ModelName:  s.config.Name,
			Features:   s.config.Features,
			StartedAt:  s.clock.Now().UTC(),
			FinishedAt: s.clock.Now().UTC(),
			Status:     models.TrainingSkipped,
			Error:      models.ErrTrainingInProgress.Error(),
		})
		return nil, models.ErrTrainingInProgress
	}
	defer s.training.Unlock()

	s.inFlight.Store(true)
	defer s.inFlight.Store(false)

	run := models.TrainingRun{
		ID:        uuid.NewString(),
		ModelName: s.config.Name,
		Features:  s.config.Features,
		StartedAt: s.clock.Now().UTC(),
	}

	log.Info().
		Str("model", s.config.Name).
		Strs("features", s.config.Features).
		Dur("window", s.config.TrainingWindow).
		Msg("🧠 Iniciando treino do modelo multivariado")

	model, err := s.train(ctx, run.StartedAt, &run)
	run.FinishedAt = s.clock.Now().UTC()

	if err != nil {
		run.Status = models.TrainingFailed
		run.Error = err.Error()
		s.record(run)
		log.Error().
			Err(err).
			Str("model", s.config.Name).
			Str("reason", models.Reason(err)).
			Msg("Treino do modelo multivariado falhou")
		return nil, err
	}

	run.Status = models.TrainingSucceeded
	run.Threshold = model.Threshold
	s.record(run)

	log.Info().
		Str("model", model.Name).
		Int("samples", model.TrainingSamples).
		Int("trees", len(model.Trees)).
		Float64("threshold", model.Threshold).
		Dur("duration", run.Duration()).
		Msg("✅ Modelo multivariado treinado")

	return model, nil
}

func (s *Service) train(ctx context.Context, now time.Time, run *models.TrainingRun) (*TrainedModel, error) {
	rows, err := s.CollectTrainingData(ctx, now)
	if err != nil {
		return nil, err
	}
	run.Samples = len(rows)

	seed := s.config.Seed
	if seed == 0 {
		seed = now.UnixNano()
	}

	model, err := Fit(rows, FitParams{
		Name:              s.config.Name,
		Features:          s.config.Features,
		EnsembleSize:      s.config.EnsembleSize,
		SubsampleSize:     s.config.SubsampleSize,
		ContaminationRate: s.config.ContaminationRate,
		Seed:              seed,
		TrainedAt:         now,
	})
	if err != nil {
		return nil, err
	}

	// Persiste antes de trocar: modelo em memória e em disco sempre coincidem
	if s.store != nil {
		if err := s.store.Save(model); err != nil {
			return nil, err
		}
	}

	s.Install(model)
	return model, nil
}

// CollectTrainingData monta uma linha por timestamp presente em todas as features
func (s *Service) CollectTrainingData(ctx context.Context, end time.Time) ([][]float64, error) {
	if len(s.config.Features) == 0 {
		return nil, fmt.Errorf("no features configured for model %s", s.config.Name)
	}

	start := end.Add(-s.config.TrainingWindow)
	byTime := make(map[int64][]float64)
	counts := make(map[int64]int)

	for j, feature := range s.config.Features {
		samples, err := s.source.QueryRange(ctx, feature, start, end, s.config.TrainingStep)
		if err != nil {
			return nil, fmt.Errorf("failed to collect training data for %s: %w", feature, err)
		}

		seen := make(map[int64]bool, len(samples))
		for _, sample := range samples {
			if math.IsNaN(sample.Value) || math.IsInf(sample.Value, 0) {
				continue
			}
			key := sample.Timestamp.UnixNano()
			if seen[key] {
				continue
			}
			seen[key] = true

			row, ok := byTime[key]
			if !ok {
				row = make([]float64, len(s.config.Features))
				byTime[key] = row
			}
			row[j] = sample.Value
			counts[key]++
		}
	}

	keys := make([]int64, 0, len(byTime))
	for key := range byTime {
		if counts[key] == len(s.config.Features) {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	if len(keys) < s.config.MinTrainingSamples {
		return nil, &models.InsufficientDataError{
			Metric:   s.config.Name,
			Detector: models.DetectorMultivariate,
			Reason:   fmt.Sprintf("%d aligned training vectors, need %d", len(keys), s.config.MinTrainingSamples),
		}
	}

	rows := make([][]float64, len(keys))
	for i, key := range keys {
		rows[i] = byTime[key]
	}
	return rows, nil
}

func (s *Service) record(run models.TrainingRun) {
	metrics.TrainingsTotal.WithLabelValues(run.ModelName, string(run.Status)).Inc()
	if run.Status == models.TrainingSucceeded {
		metrics.ModelThreshold.WithLabelValues(run.ModelName).Set(run.Threshold)
	}

	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordTraining(run); err != nil {
		log.Warn().
			Err(err).
			Str("run", run.ID).
			Msg("Falha ao registrar histórico de treino")
	}
}

// Status resumo do modelo para API/CLI
type Status struct {
	Name            string    `json:"name"`
	Features        []string  `json:"features"`
	Trained         bool      `json:"trained"`
	TrainedAt       time.Time `json:"trained_at,omitempty"`
	Threshold       float64   `json:"threshold,omitempty"`
	Trees           int       `json:"trees,omitempty"`
	TrainingSamples int       `json:"training_samples,omitempty"`
	Training        bool      `json:"training"`
	Disabled        bool      `json:"disabled"`
	DisabledReason  string    `json:"disabled_reason,omitempty"`
}

// Status retorna o estado atual
func (s *Service) Status() Status {
	status := Status{
		Name:     s.config.Name,
		Features: s.config.Features,
		Training: s.Training(),
	}

	if model := s.current.Load(); model != nil {
		status.Trained = true
		status.TrainedAt = model.TrainedAt
		status.Threshold = model.Threshold
		status.Trees = len(model.Trees)
		status.TrainingSamples = model.TrainingSamples
	}

	if reason := s.Disabled(); reason != nil {
		status.Disabled = true
		status.DisabledReason = reason.Error()
	}

	return status
}
