package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestLogger(t *testing.T, level slog.Level) (*SlogLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: level})
	return NewSlogLogger(slog.New(h)), &buf
}

func TestSlogLogger_Levels(t *testing.T) {
	log, buf := newTestLogger(t, slog.LevelDebug)
	ctx := context.Background()

	log.Debug(ctx, "dbg", "a", 1)
	log.Info(ctx, "inf", "b", 2)
	log.Warn(ctx, "wrn", "c", 3)
	log.Error(ctx, "err", "d", 4)

	out := buf.String()
	for _, want := range []string{
		"level=DEBUG msg=dbg a=1",
		"level=INFO msg=inf b=2",
		"level=WARN msg=wrn c=3",
		"level=ERROR msg=err d=4",
	} {
		assert.Contains(t, out, want)
	}
}

func TestSlogLogger_LevelFilter(t *testing.T) {
	log, buf := newTestLogger(t, slog.LevelWarn)

	log.Info(context.Background(), "quiet")
	log.Warn(context.Background(), "loud")

	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "loud")
}

func TestSlogLogger_WithAndContextFields(t *testing.T) {
	log, buf := newTestLogger(t, slog.LevelDebug)

	ctx := ContextWith(context.Background(), "op", "trash")
	ctx = ContextWith(ctx, "owner", "u1")
	log.With("component", "lifecycle").Info(ctx, "hello", "k", "v")

	assert.Contains(t, buf.String(), "component=lifecycle op=trash owner=u1 k=v")
}

func TestSlogLogger_ContextWithDoesNotLeak(t *testing.T) {
	log, buf := newTestLogger(t, slog.LevelDebug)

	parent := ContextWith(context.Background(), "a", 1)
	_ = ContextWith(parent, "b", 2)
	log.Info(parent, "parent")

	assert.Contains(t, buf.String(), "a=1")
	assert.NotContains(t, buf.String(), "b=2")
}

func TestSlogLogger_NilContext(t *testing.T) {
	log, buf := newTestLogger(t, slog.LevelDebug)

	//nolint:staticcheck // nil context is tolerated
	log.Info(nil, "no ctx")
	assert.Contains(t, buf.String(), "msg=\"no ctx\"")
}
