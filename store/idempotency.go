package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when no record exists for a key
var ErrNotFound = errors.New("idempotency record not found")

// ReservationTTL bounds how long a crashed checkout can hold a key
const ReservationTTL = 5 * time.Minute

// Idempotency record states
const (
	StatusPending   = "pending"
	StatusCommitted = "committed"
)

// IdempotencyRecord is the stored state of a checkout under a client supplied key.
// A pending record is a reservation held by the request that is still running.
type IdempotencyRecord struct {
	Status    string    `json:"status"`
	OrderID   int64     `json:"order_id,omitempty"`
	RequestID string    `json:"request_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Committed reports whether the record points at a created order
func (r IdempotencyRecord) Committed() bool {
	return r.Status == StatusCommitted && r.OrderID > 0
}

// releaseScript deletes a reservation only while it still holds the caller's record
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// IdempotencyStore remembers checkouts by client supplied key
type IdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewIdempotencyStore keeps records for ttl
func NewIdempotencyStore(client *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{client: client, ttl: ttl}
}

// Get returns the record stored under key, or ErrNotFound
func (s *IdempotencyStore) Get(ctx context.Context, key string) (*IdempotencyRecord, error) {
	data, err := s.client.Get(ctx, idempotencyKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var rec IdempotencyRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal idempotency record failed: %w", err)
	}
	return &rec, nil
}

// Reserve claims key with a pending record. When another request already
// holds the key it returns that request's record and false.
func (s *IdempotencyStore) Reserve(ctx context.Context, key string, rec IdempotencyRecord) (*IdempotencyRecord, bool, error) {
	rec.Status = StatusPending
	rec.OrderID = 0
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, false, fmt.Errorf("marshal idempotency record failed: %w", err)
	}
	ok, err := s.client.SetNX(ctx, idempotencyKey(key), data, s.reservationTTL()).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis set failed: %w", err)
	}
	if ok {
		return &rec, true, nil
	}

	existing, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		// The holder released or expired between SETNX and GET; try once more.
		ok, err = s.client.SetNX(ctx, idempotencyKey(key), data, s.reservationTTL()).Result()
		if err != nil {
			return nil, false, fmt.Errorf("redis set failed: %w", err)
		}
		if ok {
			return &rec, true, nil
		}
		existing, err = s.Get(ctx, key)
	}
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// Complete turns the reservation under key into a committed record
func (s *IdempotencyStore) Complete(ctx context.Context, key string, rec IdempotencyRecord) error {
	rec.Status = StatusCommitted
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal idempotency record failed: %w", err)
	}
	if err := s.client.Set(ctx, idempotencyKey(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Release drops the pending reservation rec made under key so the client may retry.
// A record written by anyone else is left alone.
func (s *IdempotencyStore) Release(ctx context.Context, key string, rec IdempotencyRecord) error {
	rec.Status = StatusPending
	rec.OrderID = 0
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal idempotency record failed: %w", err)
	}
	if err := releaseScript.Run(ctx, s.client, []string{idempotencyKey(key)}, string(data)).Err(); err != nil {
		return fmt.Errorf("redis release failed: %w", err)
	}
	return nil
}

func (s *IdempotencyStore) reservationTTL() time.Duration {
	if s.ttl > 0 && s.ttl < ReservationTTL {
		return s.ttl
	}
	return ReservationTTL
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("checkout:idempotency:%s", key)
}
