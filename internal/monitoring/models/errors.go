package models

import (
	"errors"
	"fmt"
)

// ErrTrainingInProgress retornado quando já existe um treino em execução
var ErrTrainingInProgress = errors.New("training already in progress")

// InsufficientDataError dados insuficientes para um detector (recuperável, pula o ciclo)
type InsufficientDataError struct {
	Metric   string
	Detector DetectorKind
	Reason   string
	Err      error
}

func (e *InsufficientDataError) Error() string {
	msg := "insufficient data"
	if e.Metric != "" {
		msg += " for " + e.Metric
	}
	if e.Detector != "" {
		msg += " (" + string(e.Detector) + ")"
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InsufficientDataError) Unwrap() error { return e.Err }

// FeatureMismatchError vetor com tamanho/ordem diferente do modelo (erro de configuração)
type FeatureMismatchError struct {
	Expected []string
	Got      int
	Reason   string
}

func (e *FeatureMismatchError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("feature mismatch: %s", e.Reason)
	}
	return fmt.Sprintf("feature mismatch: model expects %d features %v, got %d", len(e.Expected), e.Expected, e.Got)
}

// ModelNotTrainedError nenhum modelo treinado disponível
type ModelNotTrainedError struct {
	Name string
}

func (e *ModelNotTrainedError) Error() string {
	return fmt.Sprintf("model %q not trained", e.Name)
}

// SourceUnavailableError falha ao consultar a fonte de métricas
type SourceUnavailableError struct {
	Metric string
	Err    error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("metric source unavailable for %s: %v", e.Metric, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

// PersistenceError falha ao gravar/ler eventos ou modelo
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error (%s): %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsInsufficientData verifica se err é InsufficientDataError
func IsInsufficientData(err error) bool {
	var target *InsufficientDataError
	return errors.As(err, &target)
}

// IsModelNotTrained verifica se err é ModelNotTrainedError
func IsModelNotTrained(err error) bool {
	var target *ModelNotTrainedError
	return errors.As(err, &target)
}

// IsFeatureMismatch verifica se err é FeatureMismatchError
func IsFeatureMismatch(err error) bool {
	var target *FeatureMismatchError
	return errors.As(err, &target)
}

// IsSourceUnavailable verifica se err é SourceUnavailableError
func IsSourceUnavailable(err error) bool {
	var target *SourceUnavailableError
	return errors.As(err, &target)
}

// IsPersistence verifica se err é PersistenceError
func IsPersistence(err error) bool {
	var target *PersistenceError
	return errors.As(err, &target)
}

// Reason classifica o erro para logs e labels de métricas
func Reason(err error) string {
	switch {
	case err == nil:
		return "none"
	case IsInsufficientData(err):
		return "insufficient_data"
	case IsFeatureMismatch(err):
		return "feature_mismatch"
	case IsModelNotTrained(err):
		return "model_not_trained"
	case IsSourceUnavailable(err):
		return "source_unavailable"
	case IsPersistence(err):
		return "persistence"
	case errors.Is(err, ErrTrainingInProgress):
		return "training_in_progress"
	default:
		return "error"
	}
}
