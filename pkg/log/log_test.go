package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "INFO", want: slog.LevelInfo},
		{input: "warning", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "verbose", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestNewHandler_JSON(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(NewHandler(&buf, "warn", "json"))
	logger.Info("dropped")
	logger.Warn("Run failed", "run_id", "run-1")

	var entry map[string]any

	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Run failed", entry["msg"])
	assert.Equal(t, "run-1", entry["run_id"])
}

func TestNewHandler_Text(t *testing.T) {
	var buf bytes.Buffer

	handler := NewHandler(&buf, "info", "")
	assert.False(t, handler.Enabled(context.Background(), slog.LevelDebug))

	slog.New(handler).Info("Approval resolved", "module", "approval_gate")
	assert.Contains(t, buf.String(), "module=approval_gate")
}
