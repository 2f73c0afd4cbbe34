package temporal

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapAdapterFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewZapAdapter(zap.New(core))

	l.Info("activity started", "session_id", "s1", "attempt", 2)
	log.With(l, "workflow_id", "wf").Warn("slow", "err", errors.New("boom"))
	l.Debug("odd", "dangling")
	l.Error("weird", 42, "v", "fn", func() {})

	entries := logs.All()
	require.Len(t, entries, 4)

	assert.Equal(t, "temporal", entries[0].LoggerName)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "s1", ctx["session_id"])
	assert.EqualValues(t, 2, ctx["attempt"])

	ctx = entries[1].ContextMap()
	assert.Equal(t, "wf", ctx["workflow_id"])
	assert.Equal(t, "boom", ctx["err"])

	assert.Equal(t, "dangling", entries[2].ContextMap()["extra"])

	ctx = entries[3].ContextMap()
	assert.Equal(t, "v", ctx["42"])
	assert.Equal(t, "<func>", ctx["fn"])
}

func TestZapAdapterNilLogger(t *testing.T) {
	l := NewZapAdapter(nil)
	assert.NotPanics(t, func() { l.Info("noop", "k", nil) })
}
