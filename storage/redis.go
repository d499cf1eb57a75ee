package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrEventInFlight is returned by Begin when another delivery of the same event holds the lock.
var ErrEventInFlight = errors.New("event is being processed")

// RedisClient wraps the Redis client used by the service
type RedisClient struct {
	client *redis.Client
	prefix string
}

// NewRedisClient creates a new Redis client and checks the connection
func NewRedisClient(addr, password string, db int, prefix string) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	slog.Info("Redis client initialized successfully", "addr", addr)
	return &RedisClient{client: client, prefix: prefix}, nil
}

// Ping checks that Redis answers within ctx.
func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// EventLedger remembers which webhook events were already applied so redeliveries are
// acknowledged without touching the database again.
type EventLedger struct {
	redis   *RedisClient
	doneTTL time.Duration
	lockTTL time.Duration
}

// NewEventLedger creates a ledger. doneTTL should cover the provider's redelivery window.
func NewEventLedger(r *RedisClient, doneTTL, lockTTL time.Duration) *EventLedger {
	return &EventLedger{
		redis:   r,
		doneTTL: doneTTL,
		lockTTL: lockTTL,
	}
}

func (l *EventLedger) doneKey(eventID string) string {
	return fmt.Sprintf("%swebhook:done:%s", l.redis.prefix, eventID)
}

func (l *EventLedger) lockKey(eventID string) string {
	return fmt.Sprintf("%swebhook:lock:%s", l.redis.prefix, eventID)
}

// Begin claims an event for processing. It reports done=true when the event was already
// applied. ErrEventInFlight means a concurrent delivery holds the claim.
func (l *EventLedger) Begin(ctx context.Context, eventID string) (done bool, err error) {
	if eventID == "" {
		return false, fmt.Errorf("event id is required")
	}

	n, err := l.redis.client.Exists(ctx, l.doneKey(eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check event %s: %w", eventID, err)
	}
	if n > 0 {
		return true, nil
	}

	acquired, err := l.redis.client.SetNX(ctx, l.lockKey(eventID), time.Now().Unix(), l.lockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to lock event %s: %w", eventID, err)
	}
	if !acquired {
		// The holder may have finished between the two checks.
		n, err := l.redis.client.Exists(ctx, l.doneKey(eventID)).Result()
		if err == nil && n > 0 {
			return true, nil
		}
		return false, ErrEventInFlight
	}

	return false, nil
}

// Complete records the event as applied and releases its claim.
func (l *EventLedger) Complete(ctx context.Context, eventID string) error {
	pipe := l.redis.client.TxPipeline()
	pipe.Set(ctx, l.doneKey(eventID), time.Now().Unix(), l.doneTTL)
	pipe.Del(ctx, l.lockKey(eventID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to complete event %s: %w", eventID, err)
	}
	slog.Debug("Webhook event recorded", "event_id", eventID)
	return nil
}

// Abort releases the claim so a redelivery can retry the event.
func (l *EventLedger) Abort(ctx context.Context, eventID string) error {
	if err := l.redis.client.Del(ctx, l.lockKey(eventID)).Err(); err != nil {
		return fmt.Errorf("failed to release event %s: %w", eventID, err)
	}
	return nil
}
