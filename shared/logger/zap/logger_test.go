package zap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	previous := globalLogger
	globalLogger = &logger{zapLogger: zap.New(core)}
	t.Cleanup(func() { globalLogger = previous })

	return logs
}

func TestContextFieldsAreAttached(t *testing.T) {
	logs := observe(t)

	spanContext := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3},
		SpanID:     trace.SpanID{4, 5, 6},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanContext)
	ctx = ContextWithTraceID(ctx, "request-1")
	ctx = ContextWithOwnerID(ctx, "owner-1")

	Info(ctx, "order placed", zap.String("symbol", "BTC"))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "request-1", fields["x-request-id"])
	assert.Equal(t, "owner-1", fields["owner_id"])
	assert.Equal(t, spanContext.TraceID().String(), fields["trace_id"])
	assert.Equal(t, spanContext.SpanID().String(), fields["span_id"])
	assert.Equal(t, "BTC", fields["symbol"])
}

func TestEmptyContextAddsNoFields(t *testing.T) {
	logs := observe(t)

	Warn(context.Background(), "nothing attached")

	require.Equal(t, 1, logs.Len())
	assert.Empty(t, logs.All()[0].ContextMap())
	assert.Equal(t, "", TraceIDFromContext(context.Background()))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{in: "debug", want: zapcore.DebugLevel},
		{in: "WARNING", want: zapcore.WarnLevel},
		{in: "error", want: zapcore.ErrorLevel},
		{in: "bogus", want: zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}
