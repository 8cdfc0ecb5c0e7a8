package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// StreamReader interface for consumer group reads (for testing)
type StreamReader interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

type ConsumerConfig struct {
	Stream   string
	Group    string
	Consumer string
	Count    int64
	Block    time.Duration
}

// Handler processes one decoded event. A returned error leaves the message
// unacknowledged.
type Handler func(ctx context.Context, event ProductEvent) error

// Consumer reads PRODUCT_SCRAPED events through a consumer group.
type Consumer struct {
	redis  StreamReader
	cfg    ConsumerConfig
	logger *slog.Logger
}

func NewConsumer(client StreamReader, cfg ConsumerConfig, logger *slog.Logger) *Consumer {
	if cfg.Group == "" {
		cfg.Group = "alkoteka-export"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "consumer-1"
	}
	if cfg.Count <= 0 {
		cfg.Count = 50
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	return &Consumer{
		redis:  client,
		cfg:    cfg,
		logger: logger.With("component", "stream_consumer", "stream", cfg.Stream, "group", cfg.Group),
	}
}

// Run consumes until ctx is done. With drain set it returns as soon as a
// read comes back empty.
func (c *Consumer) Run(ctx context.Context, drain bool, handle Handler) error {
	if err := c.redis.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err(); err != nil &&
		!strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("starting consumer")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := c.poll(ctx, handle)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("failed to read from stream", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		if n == 0 && drain {
			return nil
		}
	}
}

// poll reads one batch and returns how many messages it saw.
func (c *Consumer) poll(ctx context.Context, handle Handler) (int, error) {
	streams, err := c.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    c.cfg.Count,
		Block:    c.cfg.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}

	seen := 0
	for _, stream := range streams {
		for _, message := range stream.Messages {
			seen++
			if err := c.process(ctx, message, handle); err != nil {
				c.logger.Error("failed to process message", "id", message.ID, "error", err)
				continue
			}
			if err := c.redis.XAck(ctx, c.cfg.Stream, c.cfg.Group, message.ID).Err(); err != nil {
				c.logger.Error("failed to acknowledge message", "id", message.ID, "error", err)
			}
		}
	}
	return seen, nil
}

func (c *Consumer) process(ctx context.Context, msg redis.XMessage, handle Handler) error {
	eventType, _ := msg.Values["event_type"].(string)
	if eventType != string(EventTypeProductScraped) {
		return nil
	}

	event, err := DecodeProductEvent(msg)
	if err != nil {
		return err
	}
	return handle(ctx, event)
}

// DecodeProductEvent parses the "data" field written by StreamPublisher.
func DecodeProductEvent(msg redis.XMessage) (ProductEvent, error) {
	var event ProductEvent
	data, ok := msg.Values["data"].(string)
	if !ok {
		return event, fmt.Errorf("message %s has no data field", msg.ID)
	}
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return event, fmt.Errorf("failed to parse event %s: %w", msg.ID, err)
	}
	return event, nil
}
