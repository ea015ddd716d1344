package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/pantry/internal/clock"
	"github.com/smallbiznis/pantry/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newLedger(t *testing.T) (*Ledger, *gorm.DB, *clock.FakeClock) {
	t.Helper()
	conn := dbtest.Open(t, &Key{})
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))
	return New(conn, zap.NewNop(), clk), conn, clk
}

func TestRunSkipsDuplicateDelivery(t *testing.T) {
	ledger, _, _ := newLedger(t)
	ctx := context.Background()

	calls := 0
	apply := func(*gorm.DB) error {
		calls++
		return nil
	}

	applied, err := ledger.Run(ctx, "order_created", "ORD1", apply)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = ledger.Run(ctx, "order_created", "ORD1", apply)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, 1, calls)

	// a different event type for the same target is independent
	applied, err = ledger.Run(ctx, "order_cancelled", "ORD1", apply)
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestRunFailureAllowsRetry(t *testing.T) {
	ledger, conn, _ := newLedger(t)
	ctx := context.Background()
	boom := errors.New("boom")

	applied, err := ledger.Run(ctx, "order_status_changed", "ORD2:making", func(*gorm.DB) error { return boom })
	require.ErrorIs(t, err, boom)
	assert.False(t, applied)

	var key Key
	require.NoError(t, conn.First(&key, "target_id = ?", "ORD2:making").Error)
	assert.Equal(t, StatusFailed, key.Status)
	require.NotNil(t, key.ErrorMessage)

	applied, err = ledger.Run(ctx, "order_status_changed", "ORD2:making", func(*gorm.DB) error { return nil })
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestBeginInProgressUntilStale(t *testing.T) {
	ledger, conn, clk := newLedger(t)
	ctx := context.Background()

	apply, err := ledger.Begin(ctx, conn, "order_item_cancelled", "ORD3:7")
	require.NoError(t, err)
	require.True(t, apply)

	_, err = ledger.Begin(ctx, conn, "order_item_cancelled", "ORD3:7")
	assert.ErrorIs(t, err, ErrInProgress)

	clk.Advance(StaleAfter + time.Second)
	apply, err = ledger.Begin(ctx, conn, "order_item_cancelled", "ORD3:7")
	require.NoError(t, err)
	assert.True(t, apply)

	var count int64
	require.NoError(t, conn.Model(&Key{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestBeginRejectsBlankKey(t *testing.T) {
	ledger, conn, _ := newLedger(t)
	_, err := ledger.Begin(context.Background(), conn, "order_created", "")
	assert.ErrorIs(t, err, ErrInvalidKey)
}
