package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"anomaly-watchdog/internal/monitoring/ml"
	"anomaly-watchdog/internal/monitoring/models"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Trainer modelo que pode ser retreinado
type Trainer interface {
	Name() string
	Train(ctx context.Context) (*ml.TrainedModel, error)
}

// TrainingScheduler dispara o treino do modelo multivariado em agenda cron,
// separado dos ciclos de detecção
type TrainingScheduler struct {
	trainer Trainer
	spec    string
	cron    *cron.Cron
	entry   cron.EntryID

	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	mu      sync.Mutex
}

// NewTrainingScheduler valida a expressão cron (ex: "@weekly", "0 3 * * 0")
func NewTrainingScheduler(trainer Trainer, spec string) (*TrainingScheduler, error) {
	if spec == "" {
		spec = "@weekly"
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid training schedule %q: %w", spec, err)
	}

	s := &TrainingScheduler{
		trainer: trainer,
		spec:    spec,
		cron:    cron.New(cron.WithLocation(time.UTC)),
	}

	entry, err := s.cron.AddFunc(spec, s.runScheduled)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule training: %w", err)
	}
	s.entry = entry

	return s, nil
}

// Start inicia a agenda
func (s *TrainingScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	// Contexto novo a cada Start: o anterior foi cancelado no Stop
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.running = true
	s.cron.Start()

	log.Info().
		Str("model", s.trainer.Name()).
		Str("schedule", s.spec).
		Time("next", s.cron.Entry(s.entry).Next).
		Msg("⏰ Agenda de treino iniciada")
}

// Stop para a agenda e aguarda treino em andamento
func (s *TrainingScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	<-s.cron.Stop().Done()

	log.Info().Str("model", s.trainer.Name()).Msg("Agenda de treino parada")
}

// runScheduled job do cron, usa o contexto do Start corrente
func (s *TrainingScheduler) runScheduled() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		return
	}

	if _, err := s.RunNow(ctx); err != nil && !errors.Is(err, models.ErrTrainingInProgress) {
		log.Warn().
			Err(err).
			Str("model", s.trainer.Name()).
			Msg("Treino agendado falhou, modelo anterior mantido")
	}
}

// RunNow executa um treino imediatamente (ErrTrainingInProgress se já houver um)
func (s *TrainingScheduler) RunNow(ctx context.Context) (*ml.TrainedModel, error) {
	return s.trainer.Train(ctx)
}

// Spec expressão cron configurada
func (s *TrainingScheduler) Spec() string {
	return s.spec
}

// Next próxima execução agendada (zero se a agenda não está rodando)
func (s *TrainingScheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}
