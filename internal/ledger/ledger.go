// Package ledger records which immediate alerts were already sent so that the
// save-path and sweep-path alerting do not notify twice for the same item,
// alert class and day.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vhvplatform/go-inspection-alert-service/internal/shared/logger"
)

const keyPrefix = "inspection_alerts:ledger:"

// Ledger claims alert keys. Claim returns true exactly once per key until it expires.
type Ledger interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisLedger is a Ledger backed by SETNX with a TTL, shared by every replica
type RedisLedger struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisLedger creates a new Redis ledger
func NewRedisLedger(client redis.Cmdable, ttl time.Duration) *RedisLedger {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &RedisLedger{client: client, ttl: ttl}
}

// Claim marks key as sent. It returns false if the key was already claimed.
func (l *RedisLedger) Claim(ctx context.Context, key string) (bool, error) {
	return l.client.SetNX(ctx, keyPrefix+key, time.Now().Unix(), l.ttl).Result()
}

// Release drops a claim so the alert can be retried
func (l *RedisLedger) Release(ctx context.Context, key string) error {
	return l.client.Del(ctx, keyPrefix+key).Err()
}

// MemoryLedger is a process-local Ledger
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryLedger creates a new in-memory ledger
func NewMemoryLedger(ttl time.Duration) *MemoryLedger {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &MemoryLedger{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Claim marks key as sent. It returns false if the key was already claimed.
func (l *MemoryLedger) Claim(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for k, expires := range l.entries {
		if !now.Before(expires) {
			delete(l.entries, k)
		}
	}

	if _, exists := l.entries[key]; exists {
		return false, nil
	}
	l.entries[key] = now.Add(l.ttl)
	return true, nil
}

// Release drops a claim so the alert can be retried
func (l *MemoryLedger) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
	return nil
}

// Guard sends an alert at most once per ledger key. A nil ledger lets every
// alert through.
type Guard struct {
	ledger Ledger
	log    *logger.Logger
}

// NewGuard creates a new guard
func NewGuard(l Ledger, log *logger.Logger) *Guard {
	return &Guard{ledger: l, log: log}
}

// Fire calls send unless key was already claimed. It reports whether send was
// called. Ledger failures fail open, and a failed send releases the claim.
func (g *Guard) Fire(ctx context.Context, key string, send func(context.Context) error) (bool, error) {
	if g == nil || g.ledger == nil {
		return true, send(ctx)
	}

	claimed, err := g.ledger.Claim(ctx, key)
	if err != nil {
		g.log.Warn("Alert ledger unavailable, sending without dedup", "error", err, "key", key)
		return true, send(ctx)
	}
	if !claimed {
		g.log.Debug("Alert already sent", "key", key)
		return false, nil
	}

	if err := send(ctx); err != nil {
		if relErr := g.ledger.Release(ctx, key); relErr != nil {
			g.log.Warn("Failed to release alert claim", "error", relErr, "key", key)
		}
		return true, err
	}
	return true, nil
}
