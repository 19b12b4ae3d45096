package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vhvplatform/go-inspection-alert-service/internal/shared/logger"
)

func TestRedisLedger_Claim(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	l := NewRedisLedger(client, time.Hour)
	ctx := context.Background()

	ok, err := l.Claim(ctx, "expired:facility:f1:2026-01-02")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Claim(ctx, "expired:facility:f1:2026-01-02")
	require.NoError(t, err)
	assert.False(t, ok, "second claim of the same key must be rejected")

	ok, err = l.Claim(ctx, "expired:facility:f1:2026-01-03")
	require.NoError(t, err)
	assert.True(t, ok, "next day is a different key")

	mr.FastForward(2 * time.Hour)
	ok, err = l.Claim(ctx, "expired:facility:f1:2026-01-02")
	require.NoError(t, err)
	assert.True(t, ok, "expired claims can be taken again")
}

func TestRedisLedger_Unavailable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	_, err = NewRedisLedger(client, time.Hour).Claim(context.Background(), "k")
	assert.Error(t, err)
}

func TestMemoryLedger_Claim(t *testing.T) {
	now := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)
	l := NewMemoryLedger(time.Hour)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _ := l.Claim(ctx, "a")
	assert.True(t, ok)
	ok, _ = l.Claim(ctx, "a")
	assert.False(t, ok)

	now = now.Add(time.Hour)
	ok, _ = l.Claim(ctx, "a")
	assert.True(t, ok)
}

func TestRedisLedger_Release(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	l := NewRedisLedger(client, time.Hour)
	ctx := context.Background()

	ok, err := l.Claim(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists(keyPrefix+"k"))

	require.NoError(t, l.Release(ctx, "k"))
	ok, err = l.Claim(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

type failingLedger struct{}

func (failingLedger) Claim(context.Context, string) (bool, error) {
	return false, errors.New("connection refused")
}
func (failingLedger) Release(context.Context, string) error { return nil }

func TestGuard_Fire(t *testing.T) {
	ctx := context.Background()
	calls := 0
	send := func(context.Context) error { calls++; return nil }

	t.Run("nil ledger always sends", func(t *testing.T) {
		calls = 0
		g := NewGuard(nil, logger.NewNop())
		for i := 0; i < 2; i++ {
			sent, err := g.Fire(ctx, "k", send)
			require.NoError(t, err)
			assert.True(t, sent)
		}
		assert.Equal(t, 2, calls)
	})

	t.Run("duplicate suppressed", func(t *testing.T) {
		calls = 0
		g := NewGuard(NewMemoryLedger(time.Hour), logger.NewNop())
		sent, err := g.Fire(ctx, "k", send)
		require.NoError(t, err)
		assert.True(t, sent)
		sent, err = g.Fire(ctx, "k", send)
		require.NoError(t, err)
		assert.False(t, sent)
		assert.Equal(t, 1, calls)
	})

	t.Run("failed send releases claim", func(t *testing.T) {
		g := NewGuard(NewMemoryLedger(time.Hour), logger.NewNop())
		_, err := g.Fire(ctx, "k", func(context.Context) error { return errors.New("broker down") })
		require.Error(t, err)

		calls = 0
		sent, err := g.Fire(ctx, "k", send)
		require.NoError(t, err)
		assert.True(t, sent)
		assert.Equal(t, 1, calls)
	})

	t.Run("ledger failure fails open", func(t *testing.T) {
		calls = 0
		g := NewGuard(failingLedger{}, logger.NewNop())
		sent, err := g.Fire(ctx, "k", send)
		require.NoError(t, err)
		assert.True(t, sent)
		assert.Equal(t, 1, calls)
	})
}
