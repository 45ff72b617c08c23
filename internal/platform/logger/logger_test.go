package logger

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  slog.Level
		ok    bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{" warn ", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"verbose", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseLevel(tc.input)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.ok, ok)
		})
	}
}

func TestNew_FiltersBelowLevel(t *testing.T) {
	t.Parallel()

	buf := &TestLogBuffer{}
	l := New(buf, "warn", "json")
	l.Info("hidden")
	l.Warn("shown", "component", "test")

	entries, err := buf.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "shown", entries[0]["msg"])
	assert.Equal(t, "test", entries[0]["component"])
}

func TestNew_WarnsOnInvalidLevel(t *testing.T) {
	t.Parallel()

	buf := &TestLogBuffer{}
	New(buf, "loud", "json")
	AssertLogContains(t, buf, "invalid log level configured")
	AssertLogContains(t, buf, `"configured_level":"loud"`)
}

func TestNew_TextFormat(t *testing.T) {
	t.Parallel()

	buf := &TestLogBuffer{}
	New(buf, "info", "text").Info("hello", "k", "v")
	AssertLogContains(t, buf, "msg=hello")
	AssertLogContains(t, buf, "k=v")
}

func TestContextLogger(t *testing.T) {
	t.Parallel()

	buf, l := NewTestLogger(t)
	ctx := WithLogger(context.Background(), l.With("trace_id", "abc"))

	FromContext(ctx).Info("from context")
	AssertLogContains(t, buf, `"trace_id":"abc"`)

	fallback := Discard()
	assert.Same(t, fallback, FromContextOrDefault(context.Background(), fallback))
	assert.NotNil(t, FromContextOrDefault(context.Background(), nil))
}
