// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

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
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "Failed to parse JSON: %s", buf.String())
	return entry
}

func TestSetup_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("adjudicator", "1.0.0", "json", &buf)

	logger.Info("test message")

	entry := decode(t, &buf)
	assert.Equal(t, "test message", entry["msg"])
	assert.Equal(t, "adjudicator", entry["service"])
	assert.Equal(t, "1.0.0", entry["version"])
	assert.Contains(t, entry, "time")
	assert.Contains(t, entry, "level")
}

func TestSetup_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("adjudicator", "1.0.0", "text", &buf)

	logger.Info("test message")

	assert.Contains(t, buf.String(), "test message")
	assert.Contains(t, buf.String(), "adjudicator")
}

func TestHandler_TraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("adjudicator", "1.0.0", "json", &buf)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	logger.InfoContext(ctx, "traced message")

	entry := decode(t, &buf)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", entry["span_id"])
}

func TestHandler_HandoffContext(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("adjudicator", "1.0.0", "json", &buf)

	ctx := WithRequest(context.Background(), "01HZX")
	ctx = WithParticipant(ctx, "alice")
	logger.InfoContext(ctx, "resumed")

	entry := decode(t, &buf)
	assert.Equal(t, "01HZX", entry["request_id"])
	assert.Equal(t, "alice", entry["participant"])

	id, ok := RequestID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "01HZX", id)
}

func TestHandler_NoContext(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("adjudicator", "1.0.0", "json", &buf)

	logger.Info("plain")

	entry := decode(t, &buf)
	assert.NotContains(t, entry, "trace_id")
	assert.NotContains(t, entry, "request_id")
	assert.NotContains(t, entry, "participant")
}

func TestHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("adjudicator", "1.0.0", "json", &buf).With("component", "engine").WithGroup("test")

	logger.InfoContext(WithRequest(context.Background(), "r1"), "grouped", "kind", "combat")

	entry := decode(t, &buf)
	assert.Equal(t, "engine", entry["component"])
	group, ok := entry["test"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "combat", group["kind"])
}

func TestSetLevel(t *testing.T) {
	t.Cleanup(func() { require.NoError(t, SetLevel("info")) })

	var buf bytes.Buffer
	logger := Setup("adjudicator", "1.0.0", "json", &buf)

	require.NoError(t, SetLevel("warn"))
	logger.Info("hidden")
	assert.Zero(t, buf.Len())

	require.NoError(t, SetLevel("debug"))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))

	assert.Error(t, SetLevel("loud"))
}
