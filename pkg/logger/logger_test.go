package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBuffered(level Level) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(Options{Output: &buf, Level: level, Service: "test"}), &buf
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_WritesFields(t *testing.T) {
	log, buf := newBuffered(LevelInfo)

	log.With(Component("ledger")).Info("version appended",
		LineageID("l-1"),
		VersionNumber(2),
		Duration("took", 1500*time.Millisecond),
		Err(errors.New("boom")),
	)

	entry := decode(t, buf)
	assert.Equal(t, "version appended", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "test", entry["service"])
	assert.Equal(t, "ledger", entry["component"])
	assert.Equal(t, "l-1", entry["lineage_id"])
	assert.Equal(t, float64(2), entry["version_number"])
	assert.Equal(t, "1.5s", entry["took"])
	assert.Equal(t, "boom", entry["error"])
}

func TestLogger_RespectsLevel(t *testing.T) {
	log, buf := newBuffered(LevelWarn)

	log.Info("hidden")
	log.Debug("hidden")
	assert.Zero(t, buf.Len())
	assert.Equal(t, LevelWarn, log.Level())

	log.Warn("shown")
	assert.NotZero(t, buf.Len())
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() { Nop().With(Component("x")).Error("dropped") })
}

func TestFromContext(t *testing.T) {
	log, buf := newBuffered(LevelInfo)
	ctx := WithContext(context.Background(), log.WithRequestID("req-9"))

	FromContext(ctx).Info("hello")

	entry := decode(t, buf)
	assert.Equal(t, "req-9", entry[RequestIDKey])
	assert.NotNil(t, FromContext(context.Background()))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
	assert.Equal(t, LevelInfo, ParseLevel(""))
}
