package tracing

import (
	"context"
	"testing"
	"time"

	"github.com/nastyazhadan/trading-hub/shared/config"
	zapLogger "github.com/nastyazhadan/trading-hub/shared/logger/zap"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestMain(m *testing.M) {
	zapLogger.SetNopLogger()
	m.Run()
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.TracingConfig
		recording bool
	}{
		{
			name:      "enabled samples every span",
			cfg:       config.TracingConfig{Enabled: true, ServiceName: "test", SampleRatio: 1},
			recording: true,
		},
		{
			name:      "disabled never samples",
			cfg:       config.TracingConfig{Enabled: false, ServiceName: "test", SampleRatio: 1},
			recording: false,
		},
		{
			name:      "zero ratio never samples",
			cfg:       config.TracingConfig{Enabled: true, ServiceName: "test", SampleRatio: 0},
			recording: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := NewProvider(tt.cfg)
			t.Cleanup(func() {
				require.NoError(t, Shutdown(context.Background(), provider))
			})

			_, span := otel.Tracer("test").Start(context.Background(), "op")
			defer span.End()

			assert.Equal(t, tt.recording, span.IsRecording())
		})
	}
}

func TestLogProcessorHandlesFinishedSpans(t *testing.T) {
	processor := NewLogProcessor()
	now := time.Now()

	spans := tracetest.SpanStubs{
		{Name: "ok", StartTime: now, EndTime: now.Add(time.Millisecond)},
		{Name: "failed", StartTime: now, EndTime: now, Status: sdktrace.Status{Code: codes.Error, Description: "boom"}},
	}.Snapshots()

	for _, span := range spans {
		assert.NotPanics(t, func() { processor.OnEnd(span) })
	}
	assert.NoError(t, processor.ForceFlush(context.Background()))
	assert.NoError(t, processor.Shutdown(context.Background()))
}
