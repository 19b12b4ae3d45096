package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	goredis "github.com/redis/go-redis/v9"

	"github.com/vhvplatform/go-inspection-alert-service/internal/shared/logger"
)

// Config holds Redis connection settings
type Config struct {
	Addr     string
	Password string
	DB       int
}

// NewClient connects to Redis and verifies the connection
func NewClient(ctx context.Context, cfg Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: 20,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// Locker is a single named distributed lock
type Locker struct {
	locks *redislock.Client
	key   string
	ttl   time.Duration
	log   *logger.Logger
}

// NewLocker creates a locker for key. The lock expires after ttl if the
// holder dies.
func NewLocker(client redislock.RedisClient, key string, ttl time.Duration, log *logger.Logger) *Locker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Locker{
		locks: redislock.New(client),
		key:   key,
		ttl:   ttl,
		log:   log,
	}
}

// TryLock obtains the lock without waiting. ok is false when someone else
// holds it.
func (l *Locker) TryLock(ctx context.Context) (func(), bool, error) {
	lock, err := l.locks.Obtain(ctx, l.key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.log.Warn("Failed to release redis lock", "error", err, "key", l.key)
		}
	}, true, nil
}
