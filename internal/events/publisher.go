package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/maltedev/alkoteka-scraper/internal/models"
)

// EventType represents the type of event
type EventType string

const (
	// EventTypeProductScraped is published once per extracted product record
	EventTypeProductScraped EventType = "PRODUCT_SCRAPED"
)

// RedisClient interface for Redis operations (for testing)
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// StreamConfig describes the target stream.
type StreamConfig struct {
	Stream string
	// MaxLen trims the stream approximately; 0 keeps every entry.
	MaxLen int64
	RunID  string
	Source string
}

// ProductEvent is the JSON document stored in the "data" field.
type ProductEvent struct {
	EventID   string         `json:"event_id"`
	EventType string         `json:"event_type"`
	RunID     string         `json:"run_id"`
	Source    string         `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
	Product   models.Product `json:"product"`
}

// StreamPublisher appends every product record to a Redis stream.
type StreamPublisher struct {
	redis  RedisClient
	cfg    StreamConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewStreamPublisher(client RedisClient, cfg StreamConfig, logger *slog.Logger) *StreamPublisher {
	if cfg.Source == "" {
		cfg.Source = "alkoteka-scraper"
	}
	return &StreamPublisher{
		redis:  client,
		cfg:    cfg,
		logger: logger.With("component", "event_publisher", "stream", cfg.Stream),
		now:    time.Now,
	}
}

// Connect opens a client and checks the server answers.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

// Emit publishes product as a PRODUCT_SCRAPED event.
func (p *StreamPublisher) Emit(ctx context.Context, product models.Product) error {
	event := ProductEvent{
		EventID:   uuid.New().String(),
		EventType: string(EventTypeProductScraped),
		RunID:     p.cfg.RunID,
		Source:    p.cfg.Source,
		Timestamp: p.now(),
		Product:   product,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.cfg.Stream,
		Values: map[string]interface{}{
			"data":       string(data),
			"event_id":   event.EventID,
			"event_type": event.EventType,
			"run_id":     event.RunID,
			"rpc":        product.RPC,
			"url":        product.URL,
			"timestamp":  strconv.FormatInt(event.Timestamp.UnixNano(), 10),
		},
	}
	if p.cfg.MaxLen > 0 {
		args.MaxLen = p.cfg.MaxLen
		args.Approx = true
	}

	id, err := p.redis.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}

	p.logger.Debug("product published",
		"event_id", event.EventID,
		"stream_id", id,
		"rpc", product.RPC)

	return nil
}

func (p *StreamPublisher) Close() error {
	return p.redis.Close()
}
