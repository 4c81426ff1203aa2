package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"stagepass/internal/models"
)

const identityKeyPrefix = "identity:"

// IdentityCache keeps resolved identities so the gate doesn't hit the user
// store on every request.
type IdentityCache interface {
	Get(ctx context.Context, userID string) (*models.Identity, error)
	Set(ctx context.Context, identity models.Identity) error
	Invalidate(ctx context.Context, userID string) error
}

type RedisIdentityCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisIdentityCache(client *redis.Client, ttl time.Duration) *RedisIdentityCache {
	return &RedisIdentityCache{Client: client, TTL: ttl}
}

// Get returns nil, nil on a cache miss.
func (c *RedisIdentityCache) Get(ctx context.Context, userID string) (*models.Identity, error) {
	raw, err := c.Client.Get(ctx, identityKeyPrefix+userID).Result()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to get identity from Redis: %w", err)
	}

	var identity models.Identity
	if err := json.Unmarshal([]byte(raw), &identity); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached identity: %w", err)
	}
	return &identity, nil
}

func (c *RedisIdentityCache) Set(ctx context.Context, identity models.Identity) error {
	b, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("failed to marshal identity: %w", err)
	}
	if err := c.Client.Set(ctx, identityKeyPrefix+identity.ID, b, c.TTL).Err(); err != nil {
		return fmt.Errorf("failed to store identity in Redis: %w", err)
	}
	return nil
}

func (c *RedisIdentityCache) Invalidate(ctx context.Context, userID string) error {
	return c.Client.Del(ctx, identityKeyPrefix+userID).Err()
}
