package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"anomaly-watchdog/internal/monitoring/ml"
	"anomaly-watchdog/internal/monitoring/models"
	"github.com/rs/zerolog/log"
)

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

// ModelStore persiste o TrainedModel atual de cada conjunto de métricas em JSON.
// Gravação via arquivo temporário + rename: leitores nunca veem modelo parcial.
type ModelStore struct {
	dir string
}

// NewModelStore cria o store no diretório informado
func NewModelStore(dir string) (*ModelStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create model directory: %w", err)
	}
	return &ModelStore{dir: dir}, nil
}

// Path caminho do arquivo do modelo
func (s *ModelStore) Path(name string) string {
	return filepath.Join(s.dir, unsafeName.ReplaceAllString(name, "_")+".model.json")
}

// Save grava o modelo substituindo o anterior atomicamente
func (s *ModelStore) Save(model *ml.TrainedModel) error {
	data, err := json.Marshal(model)
	if err != nil {
		return &models.PersistenceError{Op: "marshal model", Err: err}
	}

	target := s.Path(model.Name)
	tmp, err := os.CreateTemp(s.dir, ".model-*.tmp")
	if err != nil {
		return &models.PersistenceError{Op: "create temp model file", Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op após rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &models.PersistenceError{Op: "write model", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &models.PersistenceError{Op: "sync model", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &models.PersistenceError{Op: "close model", Err: err}
	}
	if err := os.Rename(tmpName, target); err != nil {
		return &models.PersistenceError{Op: "replace model", Err: err}
	}

	log.Info().
		Str("model", model.Name).
		Str("path", target).
		Time("trained_at", model.TrainedAt).
		Msg("💾 Modelo salvo")

	return nil
}

// Load lê o modelo. Arquivo inexistente retorna ModelNotTrainedError.
func (s *ModelStore) Load(name string) (*ml.TrainedModel, error) {
	data, err := os.ReadFile(s.Path(name))
	if os.IsNotExist(err) {
		return nil, &models.ModelNotTrainedError{Name: name}
	}
	if err != nil {
		return nil, &models.PersistenceError{Op: "read model", Err: err}
	}

	var model ml.TrainedModel
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, &models.PersistenceError{Op: "unmarshal model", Err: err}
	}

	return &model, nil
}
