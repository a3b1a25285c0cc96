package envelope

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/evplatform/eventplane/internal/errors"
)

// DedupeStore enforces spec §4.1 stage 5/10: signal_id uniqueness within a
// per-tenant TTL window, checked before fan-out and marked after the first
// successful fan-out completes.
type DedupeStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDedupeStore builds a store backed by client, deduplicating within ttl
// (spec §4.1's "e.g. 24h, per tenant").
func NewDedupeStore(client *redis.Client, ttl time.Duration) *DedupeStore {
	return &DedupeStore{client: client, ttl: ttl}
}

func (s *DedupeStore) key(tenantID, signalID string) string {
	return "dedupe:" + tenantID + ":" + signalID
}

// Seen reports whether signalID has already been marked processed for
// tenantID within the dedup window.
func (s *DedupeStore) Seen(ctx context.Context, tenantID, signalID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(tenantID, signalID)).Result()
	if err != nil {
		return false, apperrors.NewDatabaseError("check dedupe store", err)
	}
	return n > 0, nil
}

// MarkProcessed inserts signalID into the dedupe store, called on first
// successful fan-out completion (spec §4.1 stage 10).
func (s *DedupeStore) MarkProcessed(ctx context.Context, tenantID, signalID string) error {
	if err := s.client.Set(ctx, s.key(tenantID, signalID), "1", s.ttl).Err(); err != nil {
		return apperrors.NewDatabaseError("mark dedupe store", err)
	}
	return nil
}

// SequenceTracker tracks the last observed sequence_no per (producer_id,
// signal_type), backing spec §4.1 stage 6's advisory ordering check.
type SequenceTracker struct {
	client *redis.Client
}

func NewSequenceTracker(client *redis.Client) *SequenceTracker {
	return &SequenceTracker{client: client}
}

func (t *SequenceTracker) key(producerID, signalType string) string {
	return "sequence:" + producerID + ":" + signalType
}

// CheckAndAdvance returns true (out_of_order) if seq is less than the last
// observed sequence for (producerID, signalType), then advances the
// tracker to seq if seq is larger.
func (t *SequenceTracker) CheckAndAdvance(ctx context.Context, producerID, signalType string, seq int64) (outOfOrder bool, err error) {
	key := t.key(producerID, signalType)
	last, err := t.client.Get(ctx, key).Int64()
	if err != nil && err != redis.Nil {
		return false, apperrors.NewDatabaseError("read sequence tracker", err)
	}

	if err != redis.Nil && seq < last {
		return true, nil
	}

	if err == redis.Nil || seq > last {
		if err := t.client.Set(ctx, key, seq, 0).Err(); err != nil {
			return false, apperrors.NewDatabaseError("advance sequence tracker", err)
		}
	}
	return false, nil
}
