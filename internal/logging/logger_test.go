package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestNewHandler_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newHandler(&buf, slog.LevelInfo, "json"))
	logger.Debug("hidden")
	logger.Info("records processed", "count", 1000)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "records processed", rec["msg"])
	assert.EqualValues(t, 1000, rec["count"])
}

func TestTeeHandler_LevelsPerSink(t *testing.T) {
	var console, file bytes.Buffer
	logger := slog.New(teeHandler{
		slog.NewTextHandler(&console, &slog.HandlerOptions{Level: slog.LevelWarn}),
		slog.NewTextHandler(&file, &slog.HandlerOptions{Level: slog.LevelDebug}),
	}).With("run_id", "r1")

	logger.Debug("skipped record", "item", "A1")
	logger.Warn("record run failed")

	assert.NotContains(t, console.String(), "skipped record")
	assert.Contains(t, console.String(), "record run failed")
	assert.Contains(t, file.String(), "skipped record")
	assert.Contains(t, file.String(), "run_id=r1")
}

func TestSetupWithFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "logs", "hunchlab_upload.log")
	logger, closer, err := SetupWithFile("error", "text", path)
	require.NoError(t, err)

	logger.Debug("debug detail")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "debug detail")
}

func TestFromContext_RequestID(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")
	FromContext(ctx).Info("served")
	assert.Contains(t, buf.String(), "request_id=req-42")
}
