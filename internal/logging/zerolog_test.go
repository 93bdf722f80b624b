package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newZerologTest(t *testing.T) (*ZerologLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	return NewZerologLogger(zerolog.New(&buf).Level(zerolog.DebugLevel)), &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		m := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestZerologLogger_Levels(t *testing.T) {
	log, buf := newZerologTest(t)
	ctx := context.Background()

	log.Debug(ctx, "dbg", "a", 1)
	log.Info(ctx, "inf", "b", "two")
	log.Warn(ctx, "wrn", "err", errors.New("boom"))
	log.Error(ctx, "err")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 4)

	assert.Equal(t, "debug", lines[0]["level"])
	assert.Equal(t, "dbg", lines[0]["message"])
	assert.EqualValues(t, 1, lines[0]["a"])

	assert.Equal(t, "info", lines[1]["level"])
	assert.Equal(t, "two", lines[1]["b"])

	assert.Equal(t, "warn", lines[2]["level"])
	assert.Equal(t, "boom", lines[2]["err"])

	assert.Equal(t, "error", lines[3]["level"])
}

func TestZerologLogger_With_AddsFields(t *testing.T) {
	log, buf := newZerologTest(t)

	child := log.With("owner_id", "u1")
	child.Info(context.Background(), "hello", "k", "v")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "u1", lines[0]["owner_id"])
	assert.Equal(t, "v", lines[0]["k"])
}

func TestZerologLogger_DanglingKey(t *testing.T) {
	log, buf := newZerologTest(t)
	log.Info(context.Background(), "odd", "lonely")

	lines := decodeLines(t, buf)
	assert.Equal(t, "lonely", lines[0]["!BADKEY"])
}

func TestNew_SelectsBackend(t *testing.T) {
	var buf bytes.Buffer
	_, isSlog := New(FormatJSON, &buf).(*SlogLogger)
	assert.True(t, isSlog)

	_, isZerolog := New(FormatConsole, &buf).(*ZerologLogger)
	assert.True(t, isZerolog)
}

func TestNop_Discards(t *testing.T) {
	l := Nop()
	l.Info(context.Background(), "nothing", "k", 1)
	l.With("a", "b").Error(context.Background(), "still nothing")
}

func TestZerologLogger_ContextFields(t *testing.T) {
	log, buf := newZerologTest(t)

	ctx := ContextWith(context.Background(), "op", "delete_forever")
	log.Warn(ctx, "blob delete failed", "key", "users/u1/x")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "delete_forever", lines[0]["op"])
	assert.Equal(t, "users/u1/x", lines[0]["key"])
}
