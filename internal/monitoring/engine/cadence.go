package engine

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
)

// Cadence numera os ciclos de detecção e decide quais ciclos rodam correlação
type Cadence struct {
	interval         time.Duration // intervalo entre ciclos (default: 60s)
	correlationEvery int           // correlação a cada N ciclos (default: 10)
	clock            clock.Clock

	// Estado atual
	cycles    int64     // ciclos iniciados
	lastStart time.Time // início do último ciclo

	mu sync.RWMutex
}

// CycleSlot representa um ciclo agendado
type CycleSlot struct {
	Number      int64     // número do ciclo (1-based)
	StartTime   time.Time // quando o ciclo começou
	Deadline    time.Time // início previsto do próximo ciclo
	Correlation bool      // ciclo roda análise de correlação
}

// NewCadence cria cadência de ciclos
func NewCadence(interval time.Duration, correlationEvery int, clk clock.Clock) *Cadence {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if correlationEvery <= 0 {
		correlationEvery = 10
	}
	if clk == nil {
		clk = clock.New()
	}

	log.Debug().
		Dur("interval", interval).
		Int("correlation_every", correlationEvery).
		Msg("Cadence inicializada")

	return &Cadence{
		interval:         interval,
		correlationEvery: correlationEvery,
		clock:            clk,
	}
}

// Begin registra o início de um novo ciclo
func (c *Cadence) Begin() CycleSlot {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cycles++
	c.lastStart = c.clock.Now()

	return c.slot(c.cycles, c.lastStart)
}

// Current retorna o último ciclo iniciado (Number 0 = nenhum)
func (c *Cadence) Current() CycleSlot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.cycles == 0 {
		return CycleSlot{}
	}
	return c.slot(c.cycles, c.lastStart)
}

// IsCorrelationCycle verifica se o ciclo n roda correlação
func (c *Cadence) IsCorrelationCycle(n int64) bool {
	return n > 0 && n%int64(c.correlationEvery) == 0
}

// TimeUntilNext retorna quanto falta para o próximo ciclo
func (c *Cadence) TimeUntilNext() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.cycles == 0 {
		return 0
	}
	remaining := c.lastStart.Add(c.interval).Sub(c.clock.Now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// NextCycleAt início previsto do próximo ciclo
func (c *Cadence) NextCycleAt() time.Time {
	return c.clock.Now().Add(c.TimeUntilNext())
}

// Cycles número de ciclos iniciados
func (c *Cadence) Cycles() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cycles
}

// GetConfig retorna configuração atual
func (c *Cadence) GetConfig() (interval time.Duration, correlationEvery int) {
	return c.interval, c.correlationEvery
}

func (c *Cadence) slot(n int64, start time.Time) CycleSlot {
	return CycleSlot{
		Number:      n,
		StartTime:   start,
		Deadline:    start.Add(c.interval),
		Correlation: c.IsCorrelationCycle(n),
	}
}
