package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"stagepass/internal/logger"
)

// Claim outcomes reported by Idempotency.Claim.
type ClaimState int

const (
	// Claimed means the caller owns the key and should perform the reserve.
	Claimed ClaimState = iota
	// InFlight means another request with the same key has not finished.
	InFlight
	// Completed means an earlier request finished and its reservation
	// number is returned alongside.
	Completed
	// Mismatch means the key was first used for a different request.
	Mismatch
)

// record is the value stored under an idempotency key. Number stays empty
// while the first request is still running.
type record struct {
	Fingerprint string `json:"fingerprint"`
	Number      string `json:"number,omitempty"`
}

// Idempotency remembers which reservation a (user, Idempotency-Key) pair
// produced so a retried submit does not reserve twice. Each key also stores
// a fingerprint of the request it was first used with.
type Idempotency struct {
	Client *redis.Client
	TTL    time.Duration
	Logger *logger.Logger
}

func NewIdempotency(client *redis.Client, ttl time.Duration, log *logger.Logger) *Idempotency {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Idempotency{Client: client, TTL: ttl, Logger: log}
}

func idempotencyKey(userID, key string) string {
	return fmt.Sprintf("reserve_idem:%s:%s", userID, key)
}

func encode(r record) string {
	b, _ := json.Marshal(r)
	return string(b)
}

func (i *Idempotency) Claim(ctx context.Context, userID, key, fingerprint string) (ClaimState, string, error) {
	k := idempotencyKey(userID, key)
	pending := encode(record{Fingerprint: fingerprint})

	ok, err := i.Client.SetNX(ctx, k, pending, i.TTL).Result()
	if err != nil {
		return InFlight, "", fmt.Errorf("claim idempotency key: %w", err)
	}
	if ok {
		return Claimed, "", nil
	}

	val, err := i.Client.Get(ctx, k).Result()
	if err == redis.Nil {
		// Expired between SETNX and GET; try once more.
		ok, err = i.Client.SetNX(ctx, k, pending, i.TTL).Result()
		if err != nil {
			return InFlight, "", fmt.Errorf("claim idempotency key: %w", err)
		}
		if ok {
			return Claimed, "", nil
		}
		return InFlight, "", nil
	}
	if err != nil {
		return InFlight, "", fmt.Errorf("read idempotency key: %w", err)
	}

	var rec record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return InFlight, "", fmt.Errorf("decode idempotency key: %w", err)
	}
	if rec.Fingerprint != fingerprint {
		i.Logger.Debug("IDEMPOTENCY", fmt.Sprintf("Key %s reused for %s, first used for %s", k, fingerprint, rec.Fingerprint))
		return Mismatch, "", nil
	}
	if rec.Number == "" {
		return InFlight, "", nil
	}
	i.Logger.Debug("IDEMPOTENCY", fmt.Sprintf("Key %s already produced %s", k, rec.Number))
	return Completed, rec.Number, nil
}

// Complete records the reservation number produced for a claimed key.
func (i *Idempotency) Complete(ctx context.Context, userID, key, fingerprint, reservationNumber string) error {
	val := encode(record{Fingerprint: fingerprint, Number: reservationNumber})
	if err := i.Client.Set(ctx, idempotencyKey(userID, key), val, i.TTL).Err(); err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	return nil
}

// Release drops a claim whose reserve failed so the client may retry. A key
// that already holds a reservation number is left alone.
func (i *Idempotency) Release(ctx context.Context, userID, key string) error {
	k := idempotencyKey(userID, key)
	val, err := i.Client.Get(ctx, k).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	var rec record
	if err := json.Unmarshal([]byte(val), &rec); err == nil && rec.Number != "" {
		return nil
	}
	i.Logger.Debug("IDEMPOTENCY", fmt.Sprintf("Releasing key %s", k))
	return i.Client.Del(ctx, k).Err()
}
