package lease

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLeaseExcludesSecondHolder(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	release, ok, err := l.Acquire(ctx, "outbox_relay", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.Acquire(ctx, "outbox_relay", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = l.Acquire(ctx, "stock_sweep", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "different keys do not contend")

	require.NoError(t, release(ctx))

	_, ok, err = l.Acquire(ctx, "outbox_relay", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalLeaseExpires(t *testing.T) {
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	l := &localLease{held: map[string]time.Time{}, now: func() time.Time { return now }}
	ctx := context.Background()

	stale, ok, err := l.Acquire(ctx, "outbox_relay", 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(11 * time.Second)
	_, ok, err = l.Acquire(ctx, "outbox_relay", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	// the expired holder must not drop the new holder's claim
	require.NoError(t, stale(ctx))
	_, ok, err = l.Acquire(ctx, "outbox_relay", 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAcquireRejectsEmptyKey(t *testing.T) {
	_, _, err := NewLocal().Acquire(context.Background(), " ", time.Second)
	assert.ErrorIs(t, err, ErrEmptyKey)
}
