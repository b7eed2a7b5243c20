package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// EventDedup tracks which webhook event ids have been fully processed.
// Checking and recording are separate so an id is only claimed once the
// event's work actually finished: an event acknowledged without effect (for
// example when it outran the checkout commit) stays unclaimed and its
// redelivery is processed normally.
type EventDedup interface {
	// Seen reports whether the event id was already processed to completion.
	Seen(ctx context.Context, eventID string) (bool, error)

	// MarkProcessed records the event id so later redeliveries are dropped.
	MarkProcessed(ctx context.Context, eventID string) error
}

// RedisEventDedup stores processed event ids in Redis with a TTL.
type RedisEventDedup struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisEventDedup creates a Redis-backed event dedup store.
func NewRedisEventDedup(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *RedisEventDedup {
	return &RedisEventDedup{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "event-dedup").Logger(),
	}
}

func (d *RedisEventDedup) key(eventID string) string {
	return fmt.Sprintf("webhook:event:%s", eventID)
}

// Seen reports whether the event id was recorded within the TTL window.
func (d *RedisEventDedup) Seen(ctx context.Context, eventID string) (bool, error) {
	err := d.client.Get(ctx, d.key(eventID)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		d.logger.Error().Err(err).Str("event_id", eventID).Msg("failed to check webhook event id")
		return false, fmt.Errorf("failed to check webhook event id: %w", err)
	}
	d.logger.Info().Str("event_id", eventID).Msg("duplicate webhook event delivery")
	return true, nil
}

// MarkProcessed records the event id for the TTL window.
func (d *RedisEventDedup) MarkProcessed(ctx context.Context, eventID string) error {
	err := d.client.Set(ctx, d.key(eventID), time.Now().UTC().Format(time.RFC3339), d.ttl).Err()
	if err != nil {
		d.logger.Error().Err(err).Str("event_id", eventID).Msg("failed to record webhook event id")
		return fmt.Errorf("failed to record webhook event id: %w", err)
	}
	return nil
}
