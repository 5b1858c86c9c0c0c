// Package replay enforces single use of issuance secrets across nodes.
package replay

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "fides:replay:"

// RedisGuard marks values as used with SET NX so concurrent nodes agree
// on first use. Values are stored hashed; the secrets themselves never
// reach redis.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisGuard builds a guard. Marks expire after ttl, which should
// exceed the lifetime of the secrets being guarded.
func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	return &RedisGuard{client: client, ttl: ttl}
}

func (g *RedisGuard) FirstUse(ctx context.Context, value string) (bool, error) {
	first, err := g.client.SetNX(ctx, keyPrefix+digest(value), 1, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark value used: %w", err)
	}
	return first, nil
}

func digest(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// MemoryGuard is a process-local guard for single-node deployments and
// tests.
type MemoryGuard struct {
	mu   sync.Mutex
	seen map[string]bool
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{seen: make(map[string]bool)}
}

func (g *MemoryGuard) FirstUse(_ context.Context, value string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seen[value] {
		return false, nil
	}
	g.seen[value] = true
	return true, nil
}
