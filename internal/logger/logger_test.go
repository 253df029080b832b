package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestFrom_AnnotatesCallAndTrace(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	SetupWriter(&buf, "debug")

	ctx := WithCallID(WithTraceID(context.Background(), "01TRACE"), "CA123")
	From(ctx).Info("turn handled")

	out := buf.String()
	assert.Contains(t, out, "turn handled")
	assert.Contains(t, out, "CA123")
	assert.Contains(t, out, "01TRACE")
	assert.Equal(t, "CA123", GetCallID(ctx))
	assert.Equal(t, "", GetCallID(context.Background()))
}
