package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	return line
}

func TestContextFieldsAccumulate(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "rewards-test", Level: zerolog.DebugLevel, Output: buf, Format: "json"})

	ctx := log.WithRequestID(context.Background(), "req-123")
	ctx = log.WithFields(ctx, map[string]any{"order_id": "o-9", "points": 40})
	log.Error(ctx, "settle failed", errors.New("ledger locked"))

	line := decodeLine(t, buf)
	assert.Equal(t, "rewards-test", line["service"])
	assert.Equal(t, "req-123", line["request_id"])
	assert.Equal(t, "o-9", line["order_id"])
	assert.EqualValues(t, 40, line["points"])
	assert.Equal(t, "ledger locked", line["error"])
	assert.NotEmpty(t, line["stack"])
}

func TestDerivedContextDoesNotLeakIntoParent(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{Output: buf, Format: "json"})

	parent := log.WithUserID(context.Background(), "u-1")
	_ = log.WithOrderID(parent, "o-1")
	log.Info(parent, "hello")

	line := decodeLine(t, buf)
	assert.Equal(t, "u-1", line["user_id"])
	assert.NotContains(t, line, "order_id")
}

func TestWarnStackToggle(t *testing.T) {
	for _, enabled := range []bool{false, true} {
		buf := &bytes.Buffer{}
		New(Options{Output: buf, Format: "json", WarnStack: enabled}).Warn(context.Background(), "slow")
		_, has := decodeLine(t, buf)["stack"]
		assert.Equal(t, enabled, has)
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	New(Options{Output: buf, Format: "json", Level: zerolog.WarnLevel}).Info(context.Background(), "hidden")
	assert.Zero(t, buf.Len())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("loud"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" WARN "))
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
}

func TestNop(t *testing.T) {
	log := Nop()
	ctx := log.WithField(context.TODO(), "k", "v")
	log.Error(ctx, "ignored", nil)
}
