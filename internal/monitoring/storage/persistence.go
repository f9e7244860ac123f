package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"anomaly-watchdog/internal/monitoring/models"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// EventLogConfig configuração do log de eventos
type EventLogConfig struct {
	DBPath string // Caminho do banco SQLite
}

// DefaultEventLogConfig retorna configuração padrão
func DefaultEventLogConfig() *EventLogConfig {
	homeDir, _ := os.UserHomeDir()
	dbPath := filepath.Join(homeDir, ".anomaly-watchdog", "events.db")

	return &EventLogConfig{
		DBPath: dbPath,
	}
}

// EventLog log append-only de AnomalyEvents em SQLite.
// Eventos nunca são atualizados nem removidos.
type EventLog struct {
	config *EventLogConfig
	db     *sql.DB
}

// NewEventLog abre/cria o banco de eventos
func NewEventLog(config *EventLogConfig) (*EventLog, error) {
	if config == nil {
		config = DefaultEventLogConfig()
	}

	// Cria diretório se não existir
	dir := filepath.Dir(config.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configura connection pool
	db.SetMaxOpenConns(1) // SQLite funciona melhor com 1 conexão
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	l := &EventLog{
		config: config,
		db:     db,
	}

	if err := l.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Info().
		Str("db_path", config.DBPath).
		Msg("Event log initialized")

	return l, nil
}

// initSchema cria tabelas se não existirem
func (l *EventLog) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS anomaly_events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		metric_name TEXT NOT NULL,
		detector_kind TEXT NOT NULL,
		anomaly_subtype TEXT NOT NULL,
		severity TEXT NOT NULL,
		timestamp INTEGER NOT NULL,  -- unix nano (UTC)
		data TEXT NOT NULL,          -- JSON do AnomalyEvent
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_events_lookup
		ON anomaly_events(metric_name, timestamp DESC);

	CREATE INDEX IF NOT EXISTS idx_events_timestamp
		ON anomaly_events(timestamp);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	if _, err := l.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	// Salva versão do schema
	_, err := l.db.Exec(`
		INSERT OR REPLACE INTO metadata (key, value, updated_at)
		VALUES ('schema_version', '1', CURRENT_TIMESTAMP)
	`)

	log.Debug().Msg("Schema initialized")
	return err
}

// Append grava um evento. Eventos com ID já existente são ignorados (inserted=false).
func (l *EventLog) Append(ctx context.Context, event models.AnomalyEvent) (bool, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return false, &models.PersistenceError{Op: "marshal event", Err: err}
	}

	result, err := l.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO anomaly_events
			(id, metric_name, detector_kind, anomaly_subtype, severity, timestamp, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		event.ID,
		event.MetricName,
		string(event.DetectorKind),
		string(event.Subtype),
		event.Severity.String(),
		event.Timestamp.UTC().UnixNano(),
		string(data),
	)
	if err != nil {
		return false, &models.PersistenceError{Op: "append event", Err: err}
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// AppendBatch grava vários eventos em uma transação. Retorna quantos eram novos.
func (l *EventLog) AppendBatch(ctx context.Context, events []models.AnomalyEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &models.PersistenceError{Op: "begin transaction", Err: err}
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO anomaly_events
			(id, metric_name, detector_kind, anomaly_subtype, severity, timestamp, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, &models.PersistenceError{Op: "prepare statement", Err: err}
	}
	defer stmt.Close()

	inserted := 0
	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return 0, &models.PersistenceError{Op: "marshal event", Err: err}
		}

		result, err := stmt.ExecContext(ctx,
			event.ID,
			event.MetricName,
			string(event.DetectorKind),
			string(event.Subtype),
			event.Severity.String(),
			event.Timestamp.UTC().UnixNano(),
			string(data),
		)
		if err != nil {
			return 0, &models.PersistenceError{Op: "append event", Err: err}
		}
		if rows, _ := result.RowsAffected(); rows > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, &models.PersistenceError{Op: "commit transaction", Err: err}
	}

	log.Debug().
		Int("count", len(events)).
		Int("inserted", inserted).
		Msg("Events saved to database")

	return inserted, nil
}

// EventFilter filtro de consulta. Campos vazios não filtram.
type EventFilter struct {
	Metric   string
	Detector models.DetectorKind
	Subtype  models.AnomalySubtype
	Since    time.Time
	Until    time.Time
	Limit    int // default: 100
}

// List retorna eventos do mais recente para o mais antigo
func (l *EventLog) List(ctx context.Context, filter EventFilter) ([]models.AnomalyEvent, error) {
	var (
		where []string
		args  []interface{}
	)

	if filter.Metric != "" {
		where = append(where, "metric_name = ?")
		args = append(args, filter.Metric)
	}
	if filter.Detector != "" {
		where = append(where, "detector_kind = ?")
		args = append(args, string(filter.Detector))
	}
	if filter.Subtype != "" {
		where = append(where, "anomaly_subtype = ?")
		args = append(args, string(filter.Subtype))
	}
	if !filter.Since.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, filter.Since.UTC().UnixNano())
	}
	if !filter.Until.IsZero() {
		where = append(where, "timestamp <= ?")
		args = append(args, filter.Until.UTC().UnixNano())
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := "SELECT data FROM anomaly_events"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC, seq DESC LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &models.PersistenceError{Op: "query events", Err: err}
	}
	defer rows.Close()

	events := make([]models.AnomalyEvent, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			log.Warn().Err(err).Msg("Failed to scan event")
			continue
		}

		var event models.AnomalyEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			log.Warn().Err(err).Msg("Failed to unmarshal event")
			continue
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, &models.PersistenceError{Op: "iterate events", Err: err}
	}

	return events, nil
}

// Count total de eventos persistidos
func (l *EventLog) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM anomaly_events`).Scan(&total); err != nil {
		return 0, &models.PersistenceError{Op: "count events", Err: err}
	}
	return total, nil
}

// EventLogStats estatísticas do log de eventos
type EventLogStats struct {
	DBPath      string           `json:"db_path"`
	DBSize      int64            `json:"db_size"`
	TotalEvents int64            `json:"total_events"`
	Metrics     int64            `json:"metrics"`
	ByDetector  map[string]int64 `json:"by_detector"`
	Oldest      time.Time        `json:"oldest,omitempty"`
	Newest      time.Time        `json:"newest,omitempty"`
}

// Stats retorna estatísticas do banco
func (l *EventLog) Stats(ctx context.Context) (*EventLogStats, error) {
	stats := &EventLogStats{
		DBPath:     l.config.DBPath,
		ByDetector: make(map[string]int64),
	}

	total, err := l.Count(ctx)
	if err != nil {
		return nil, err
	}
	stats.TotalEvents = total

	err = l.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT metric_name) FROM anomaly_events`).Scan(&stats.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to count metrics: %w", err)
	}

	var oldest, newest sql.NullInt64
	err = l.db.QueryRowContext(ctx, `SELECT MIN(timestamp), MAX(timestamp) FROM anomaly_events`).
		Scan(&oldest, &newest)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get timestamp range: %w", err)
	}
	if oldest.Valid {
		stats.Oldest = time.Unix(0, oldest.Int64).UTC()
	}
	if newest.Valid {
		stats.Newest = time.Unix(0, newest.Int64).UTC()
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT detector_kind, COUNT(*) FROM anomaly_events GROUP BY detector_kind
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to group events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind string
		var count int64
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		stats.ByDetector[kind] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating groups: %w", err)
	}

	// Tamanho do arquivo
	if fileInfo, err := os.Stat(l.config.DBPath); err == nil {
		stats.DBSize = fileInfo.Size()
	}

	return stats, nil
}

// SetMetadata grava um par chave/valor
func (l *EventLog) SetMetadata(ctx context.Context, key, value string) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO metadata (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
	`, key, value)
	if err != nil {
		return &models.PersistenceError{Op: "set metadata", Err: err}
	}
	return nil
}

// GetMetadata lê um valor; ok=false quando ausente
func (l *EventLog) GetMetadata(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := l.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, &models.PersistenceError{Op: "get metadata", Err: err}
	}
	return value, true, nil
}

// Close fecha conexão com banco
func (l *EventLog) Close() error {
	if l.db != nil {
		log.Info().Msg("Closing database connection")
		return l.db.Close()
	}
	return nil
}

// Vacuum executa VACUUM no banco (compacta)
func (l *EventLog) Vacuum() error {
	log.Info().Msg("Running VACUUM on database")
	_, err := l.db.Exec("VACUUM")
	return err
}
