package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestGormLoggerTrace(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewGormLogger(zap.New(core), DefaultGormLoggerConfig())
	ctx := context.Background()

	l.Trace(ctx, time.Now(), func() (string, int64) {
		return `SELECT * FROM "orders" WHERE order_id = 'ORD1'`, 0
	}, gormlogger.ErrRecordNotFound)
	assert.Zero(t, logs.Len())

	l.Trace(ctx, time.Now().Add(-time.Second), func() (string, int64) {
		return `SELECT * FROM "ingredients" WHERE id IN (1,2) ORDER BY id FOR UPDATE`, 2
	}, nil)
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zap.WarnLevel, entry.Level)
	assert.Equal(t, true, entry.ContextMap()["row_lock"])
	assert.Equal(t, "SELECT", entry.ContextMap()["operation"])

	l.Trace(ctx, time.Now(), func() (string, int64) {
		return `UPDATE "ingredients" SET current_quantity = 10`, 1
	}, errors.New("boom"))
	require.Equal(t, 2, logs.Len())
	assert.Equal(t, zap.ErrorLevel, logs.All()[1].Level)
	assert.NotContains(t, logs.All()[1].ContextMap(), "row_lock")
}
