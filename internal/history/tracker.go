package history

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"anomaly-watchdog/internal/monitoring/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// TrainingHistory histórico das execuções de treino do modelo multivariado.
// Cada execução vira um arquivo JSON em <dir>/<YYYY-MM>/.
type TrainingHistory struct {
	entries    []models.TrainingRun
	mutex      sync.RWMutex
	historyDir string
	maxEntries int // Limite de entradas em memória
}

// NewTrainingHistory cria o histórico e carrega as execuções já gravadas
func NewTrainingHistory(historyDir string) (*TrainingHistory, error) {
	// Criar diretório se não existir
	if err := os.MkdirAll(historyDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	tracker := &TrainingHistory{
		entries:    make([]models.TrainingRun, 0),
		historyDir: historyDir,
		maxEntries: 500,
	}

	if err := tracker.loadFromDisk(); err != nil {
		// Não é erro fatal, apenas log
		log.Warn().Err(err).Str("dir", historyDir).Msg("Não foi possível carregar histórico de treino")
	}

	return tracker, nil
}

// RecordTraining grava uma execução (implementa ml.Recorder)
func (th *TrainingHistory) RecordTraining(run models.TrainingRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	if err := th.saveToDisk(run); err != nil {
		return fmt.Errorf("failed to save training run %s: %w", run.ID, err)
	}

	th.mutex.Lock()
	defer th.mutex.Unlock()

	th.entries = append(th.entries, run)
	if len(th.entries) > th.maxEntries {
		th.entries = th.entries[len(th.entries)-th.maxEntries:]
	}

	return nil
}

// GetAll retorna todas as execuções (mais recente primeiro)
func (th *TrainingHistory) GetAll() []models.TrainingRun {
	return th.GetFiltered(HistoryFilter{})
}

// GetFiltered retorna execuções filtradas (mais recente primeiro)
func (th *TrainingHistory) GetFiltered(filter HistoryFilter) []models.TrainingRun {
	th.mutex.RLock()
	defer th.mutex.RUnlock()

	filtered := make([]models.TrainingRun, 0)
	for _, entry := range th.entries {
		if filter.Matches(entry) {
			filtered = append(filtered, entry)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].StartedAt.After(filtered[j].StartedAt)
	})

	if filter.Limit > 0 && len(filtered) > filter.Limit {
		filtered = filtered[:filter.Limit]
	}

	return filtered
}

// GetByID retorna uma execução específica
func (th *TrainingHistory) GetByID(id string) (*models.TrainingRun, error) {
	th.mutex.RLock()
	defer th.mutex.RUnlock()

	for _, entry := range th.entries {
		if entry.ID == id {
			run := entry
			return &run, nil
		}
	}

	return nil, fmt.Errorf("training run not found: %s", id)
}

// LastSucceeded última execução bem-sucedida do modelo
func (th *TrainingHistory) LastSucceeded(model string) (*models.TrainingRun, bool) {
	runs := th.GetFiltered(HistoryFilter{Model: model, Status: models.TrainingSucceeded, Limit: 1})
	if len(runs) == 0 {
		return nil, false
	}
	return &runs[0], true
}

// Clear limpa todo o histórico
func (th *TrainingHistory) Clear() error {
	th.mutex.Lock()
	defer th.mutex.Unlock()

	th.entries = make([]models.TrainingRun, 0)

	files, err := th.listFiles()
	if err != nil {
		return err
	}
	for _, file := range files {
		if err := os.Remove(file); err != nil {
			return err
		}
	}

	return nil
}

// saveToDisk persiste uma execução em arquivo JSON
func (th *TrainingHistory) saveToDisk(run models.TrainingRun) error {
	// Organizar por ano/mês
	monthDir := filepath.Join(th.historyDir, run.StartedAt.Format("2006-01"))
	if err := os.MkdirAll(monthDir, 0755); err != nil {
		return err
	}

	// Nome do arquivo: YYYY-MM-DD-UUID.json
	filename := fmt.Sprintf("%s-%s.json", run.StartedAt.Format("2006-01-02"), run.ID)

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(monthDir, filename), data, 0644)
}

// loadFromDisk carrega histórico existente do disco
func (th *TrainingHistory) loadFromDisk() error {
	files, err := th.listFiles()
	if err != nil {
		return err
	}

	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			continue
		}

		var run models.TrainingRun
		if err := json.Unmarshal(data, &run); err != nil {
			log.Debug().Err(err).Str("file", file).Msg("Arquivo de histórico ignorado")
			continue
		}
		th.entries = append(th.entries, run)
	}

	// Ordenar por início (mais antigo primeiro) e manter as mais recentes
	sort.SliceStable(th.entries, func(i, j int) bool {
		return th.entries[i].StartedAt.Before(th.entries[j].StartedAt)
	})
	if len(th.entries) > th.maxEntries {
		th.entries = th.entries[len(th.entries)-th.maxEntries:]
	}

	return nil
}

func (th *TrainingHistory) listFiles() ([]string, error) {
	var files []string
	err := filepath.WalkDir(th.historyDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".json") {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// HistoryFilter define filtros para busca
type HistoryFilter struct {
	Model     string                // Filtrar por modelo
	Status    models.TrainingStatus // Filtrar por status
	StartDate time.Time             // Data inicial
	EndDate   time.Time             // Data final
	Limit     int                   // Máximo de resultados (0 = todos)
}

// Matches verifica se uma execução corresponde ao filtro
func (f HistoryFilter) Matches(run models.TrainingRun) bool {
	if f.Model != "" && run.ModelName != f.Model {
		return false
	}

	if f.Status != "" && run.Status != f.Status {
		return false
	}

	if !f.StartDate.IsZero() && run.StartedAt.Before(f.StartDate) {
		return false
	}

	if !f.EndDate.IsZero() && run.StartedAt.After(f.EndDate) {
		return false
	}

	return true
}
