// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PCE Contributors

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/pce-editor/pce/pkg/errutil"
)

func setup(t *testing.T, format, level string) (*slog.Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger, err := Setup("pce", "1.0.0", format, level, &buf)
	require.NoError(t, err)
	return logger, &buf
}

func TestSetup_JSONFormat(t *testing.T) {
	logger, buf := setup(t, FormatJSON, "")

	logger.Info("test message")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "Failed to parse JSON: %s", buf.String())

	assert.Equal(t, "test message", entry["msg"])
	assert.Equal(t, "pce", entry["service"])
	assert.Equal(t, "1.0.0", entry["version"])
	assert.Contains(t, entry, "time")
	assert.Contains(t, entry, "level")
}

func TestSetup_TextFormat(t *testing.T) {
	logger, buf := setup(t, FormatText, "")

	logger.Info("test message")

	assert.Contains(t, buf.String(), "msg=\"test message\"")
	assert.Contains(t, buf.String(), "service=pce")
}

func TestSetup_DefaultFormatIsJSON(t *testing.T) {
	logger, buf := setup(t, "", "")

	logger.Info("test message")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
}

func TestSetup_Level(t *testing.T) {
	logger, buf := setup(t, FormatText, "warn")

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestSetup_InvalidConfig(t *testing.T) {
	_, err := Setup("pce", "1.0.0", "xml", "", nil)
	errutil.AssertErrorCode(t, err, "INVALID_CONFIG")
	errutil.AssertErrorContext(t, err, "format", "xml")

	_, err = Setup("pce", "1.0.0", FormatJSON, "loud", nil)
	errutil.AssertErrorCode(t, err, "INVALID_CONFIG")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestHandler_TraceContext(t *testing.T) {
	logger, buf := setup(t, FormatJSON, "debug")

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	logger.InfoContext(ctx, "traced message")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", entry["span_id"])
}

func TestHandler_NoTraceContext(t *testing.T) {
	logger, buf := setup(t, FormatJSON, "")

	logger.Info("no trace message")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.NotContains(t, entry, "trace_id")
	assert.NotContains(t, entry, "span_id")
}

func TestHandler_WithAttrsAndGroupKeepServiceFields(t *testing.T) {
	logger, buf := setup(t, FormatJSON, "")

	logger.With("plugin", "vim-keys").WithGroup("event").Info("grouped", "kind", "key_press")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "vim-keys", entry["plugin"])
	assert.Contains(t, entry, "event")
}

func TestSetDefault(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	logger, err := SetDefault("test-service", "2.0.0", FormatJSON, "info")
	require.NoError(t, err)
	assert.Same(t, logger, slog.Default())
}
