package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"anomaly-watchdog/internal/monitoring/models"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

// RedisConfig configuração do sink Redis
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
	Timeout  time.Duration // dial/write (default: 5s)
}

// RedisSink publica cada anomalia como JSON em um canal Redis (PUBLISH)
type RedisSink struct {
	client  *redis.Client
	channel string
	timeout time.Duration
}

// NewRedisSink conecta ao Redis e valida com PING
func NewRedisSink(ctx context.Context, config RedisConfig) (*RedisSink, error) {
	if config.Channel == "" {
		config.Channel = "anomaly-watchdog:events"
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  config.Timeout,
		WriteTimeout: config.Timeout,
		ReadTimeout:  config.Timeout,
		PoolSize:     4,
		MaxRetries:   -1, // notificações não são retentadas
	})

	pingCtx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", config.Addr, err)
	}

	log.Info().
		Str("addr", config.Addr).
		Str("channel", config.Channel).
		Msg("Redis notification sink connected")

	return &RedisSink{
		client:  rdb,
		channel: config.Channel,
		timeout: config.Timeout,
	}, nil
}

// Notify publica o evento
func (s *RedisSink) Notify(ctx context.Context, title string, event models.AnomalyEvent) error {
	payload, err := EncodeMessage(title, event)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", event.ID, err)
	}
	return nil
}

// Close fecha a conexão
func (s *RedisSink) Close() error {
	return s.client.Close()
}

// EncodeMessage serializa o payload publicado
func EncodeMessage(title string, event models.AnomalyEvent) ([]byte, error) {
	data, err := json.Marshal(Message{Title: title, Event: event})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return data, nil
}
