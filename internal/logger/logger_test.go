package logger

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestNew(t *testing.T) {
	t.Run("json entries carry service and env", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "pos.log")
		log, err := New(Config{Level: "info", Format: "json", Output: path, Env: "staging"})
		require.NoError(t, err)

		log.Debug("hidden")
		log.Info("Sale finalized", zap.String("bill_id", "20261018-00C0FFEE"))
		require.NoError(t, log.Sync())

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &entry), "exactly one entry is written")
		assert.Equal(t, "Sale finalized", entry["msg"])
		assert.Equal(t, ServiceName, entry["service"])
		assert.Equal(t, "staging", entry["env"])
		assert.Equal(t, "20261018-00C0FFEE", entry["bill_id"])
		assert.Contains(t, entry, "time")
	})

	t.Run("empty level means info", func(t *testing.T) {
		log, err := New(Config{Format: "console", Output: "stderr"})
		require.NoError(t, err)
		assert.True(t, log.Core().Enabled(zapcore.InfoLevel))
		assert.False(t, log.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("unknown level is rejected", func(t *testing.T) {
		_, err := New(Config{Level: "chatty"})
		assert.Error(t, err)
	})
}

func TestGormLogger_Trace(t *testing.T) {
	stmt := func() (string, int64) { return "SELECT * FROM `sales`", 2 }

	t.Run("warn level logs failures and slow queries only", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		l := NewGormLogger(zap.New(core), gormlogger.Warn, 100*time.Millisecond)

		l.Trace(context.Background(), time.Now(), stmt, nil)
		l.Trace(context.Background(), time.Now(), stmt, gorm.ErrRecordNotFound)
		assert.Zero(t, recorded.Len())

		l.Trace(context.Background(), time.Now(), stmt, errors.New("deadlock"))
		l.Trace(context.Background(), time.Now().Add(-time.Second), stmt, nil)

		require.Equal(t, 2, recorded.Len())
		failed := recorded.All()[0]
		assert.Equal(t, zapcore.ErrorLevel, failed.Level)
		assert.Equal(t, "SELECT * FROM `sales`", failed.ContextMap()["sql"])
		assert.Equal(t, zapcore.WarnLevel, recorded.All()[1].Level)
		assert.Equal(t, "gorm", failed.LoggerName)
	})

	t.Run("info level logs every statement at debug", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		l := NewGormLogger(zap.New(core), gormlogger.Info, 0)

		l.Trace(context.Background(), time.Now().Add(-time.Hour), stmt, nil)
		require.Equal(t, 1, recorded.Len())
		assert.Equal(t, zapcore.DebugLevel, recorded.All()[0].Level)
		assert.EqualValues(t, 2, recorded.All()[0].ContextMap()["rows"])
	})

	t.Run("silent mode logs nothing", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		l := NewGormLogger(zap.New(core), gormlogger.Info, 0).LogMode(gormlogger.Silent)

		l.Trace(context.Background(), time.Now(), stmt, errors.New("boom"))
		l.Error(context.Background(), "migration %s", "failed")
		assert.Zero(t, recorded.Len())
	})

	t.Run("request logger is used when present", func(t *testing.T) {
		baseCore, base := observer.New(zapcore.DebugLevel)
		reqCore, req := observer.New(zapcore.DebugLevel)
		l := NewGormLogger(zap.New(baseCore), gormlogger.Warn, 0)

		ctx := WithContext(context.Background(), zap.New(reqCore).With(zap.String("request_id", "r-1")))
		l.Trace(ctx, time.Now(), stmt, errors.New("lock wait timeout"))
		l.Warn(ctx, "slow migration on %s", "sales")

		assert.Zero(t, base.Len())
		require.Equal(t, 2, req.Len())
		assert.Equal(t, "r-1", req.All()[0].ContextMap()["request_id"])
		assert.Equal(t, "slow migration on sales", req.All()[1].Message)
	})
}
