package logs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// DefaultMaxLines linhas mantidas em memória para a API
	DefaultMaxLines = 1000
)

// Options configuração do logging
type Options struct {
	Level      string // debug, info, warn, error (default: info)
	File       string // arquivo com rotação (vazio = apenas stderr)
	Pretty     bool   // console colorido em vez de JSON
	MaxSizeMB  int    // tamanho antes de rotacionar (default: 50)
	MaxBackups int    // arquivos rotacionados mantidos (default: 3)
	MaxAgeDays int    // dias de retenção (default: 28)
	MaxLines   int    // linhas no buffer em memória (default: 1000)
}

// LogManager configura o logger global e guarda as últimas linhas em memória
type LogManager struct {
	logPath  string
	rotator  *lumberjack.Logger
	mu       sync.Mutex
	buffer   []string // Buffer em memória para visualização rápida
	maxLines int      // Máximo de linhas no buffer
}

// Setup configura o zerolog global. Deve ser chamado uma vez no início do processo.
func Setup(opts Options) (*LogManager, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	if opts.MaxLines <= 0 {
		opts.MaxLines = DefaultMaxLines
	}

	lm := &LogManager{
		buffer:   make([]string, 0),
		maxLines: opts.MaxLines,
	}

	var console io.Writer = os.Stderr
	if opts.Pretty {
		console = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}
	writers := []io.Writer{console, lm}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		lm.logPath = opts.File
		lm.rotator = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    withDefault(opts.MaxSizeMB, 50),
			MaxBackups: withDefault(opts.MaxBackups, 3),
			MaxAge:     withDefault(opts.MaxAgeDays, 28),
			Compress:   true,
		}
		writers = append(writers, lm.rotator)
	}

	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()

	return lm, nil
}

// ParseLevel converte nome do nível (vazio = info)
func ParseLevel(name string) (zerolog.Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}

// SetLevel altera o nível global em tempo de execução
func (lm *LogManager) SetLevel(name string) error {
	level, err := ParseLevel(name)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)
	return nil
}

// Write recebe as linhas JSON do logger (io.Writer)
func (lm *LogManager) Write(p []byte) (int, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	lm.buffer = append(lm.buffer, strings.TrimSpace(string(p)))

	// Manter apenas as últimas maxLines linhas
	if len(lm.buffer) > lm.maxLines {
		lm.buffer = append(lm.buffer[:0:0], lm.buffer[len(lm.buffer)-lm.maxLines:]...)
	}

	return len(p), nil
}

// ReadLogs retorna as últimas n linhas (n <= 0 = todas)
func (lm *LogManager) ReadLogs(n int) []string {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	start := 0
	if n > 0 && n < len(lm.buffer) {
		start = len(lm.buffer) - n
	}

	result := make([]string, len(lm.buffer)-start)
	copy(result, lm.buffer[start:])
	return result
}

// ClearLogs limpa o buffer em memória
func (lm *LogManager) ClearLogs() {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.buffer = make([]string, 0)
}

// Rotate força rotação do arquivo de log
func (lm *LogManager) Rotate() error {
	if lm.rotator == nil {
		return nil
	}
	return lm.rotator.Rotate()
}

// GetLogPath retorna o caminho do arquivo de log atual
func (lm *LogManager) GetLogPath() string {
	return lm.logPath
}

// Close fecha o arquivo de log
func (lm *LogManager) Close() error {
	if lm.rotator != nil {
		return lm.rotator.Close()
	}
	return nil
}

func withDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
