package envelope

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/evplatform/eventplane/internal/errors"
)

// RetryCounter tracks how many times a signal_id has been rejected with a
// retryable error within the DLQ policy's retry window (spec §4.1 DLQ
// policy (a)), backed by the same Redis instance as DedupeStore.
type RetryCounter struct {
	client *redis.Client
	window time.Duration
}

// NewRetryCounter builds a counter whose per-signal_id count expires after
// window, so a signal_id that stops arriving eventually falls out of the
// DLQ threshold calculation.
func NewRetryCounter(client *redis.Client, window time.Duration) *RetryCounter {
	return &RetryCounter{client: client, window: window}
}

func (c *RetryCounter) key(signalID string) string {
	return "retrycount:" + signalID
}

// Increment atomically bumps signalID's count and returns the new count.
// The TTL is set to window on the first increment only, so the count
// covers a fixed window starting at the first rejection.
func (c *RetryCounter) Increment(ctx context.Context, signalID string) (int, error) {
	key := c.key(signalID)
	count, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, apperrors.NewDatabaseError("increment retry counter", err)
	}
	if count == 1 {
		if err := c.client.Expire(ctx, key, c.window).Err(); err != nil {
			return 0, apperrors.NewDatabaseError("set retry counter ttl", err)
		}
	}
	return int(count), nil
}
