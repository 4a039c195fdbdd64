package tracing

import (
	"context"
	"fmt"

	"github.com/nastyazhadan/trading-hub/shared/config"
	zapLogger "github.com/nastyazhadan/trading-hub/shared/logger/zap"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// NewProvider builds the tracer provider and installs it globally. A disabled
// config still returns a provider, with sampling turned off.
func NewProvider(cfg config.TracingConfig) *sdktrace.TracerProvider {
	sampler := sdktrace.NeverSample()
	if cfg.Enabled {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sampler),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", cfg.ServiceName),
		)),
		sdktrace.WithSpanProcessor(NewLogProcessor()),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return provider
}

// Shutdown flushes finished spans.
func Shutdown(ctx context.Context, provider *sdktrace.TracerProvider) error {
	if err := provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("tracer provider shutdown: %w", err)
	}
	return nil
}

// LogProcessor writes every finished span as a debug record. Failed spans
// are logged at warn level.
type LogProcessor struct{}

func NewLogProcessor() *LogProcessor {
	return &LogProcessor{}
}

func (p *LogProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (p *LogProcessor) OnEnd(span sdktrace.ReadOnlySpan) {
	fields := []zap.Field{
		zap.String("span", span.Name()),
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
		zap.Duration("duration", span.EndTime().Sub(span.StartTime())),
	}
	for _, attr := range span.Attributes() {
		fields = append(fields, zap.String(string(attr.Key), attr.Value.Emit()))
	}

	status := span.Status()
	if status.Code == codes.Error {
		fields = append(fields, zap.String("status", status.Description))
		zapLogger.Warn(context.Background(), "span failed", fields...)
		return
	}

	zapLogger.Debug(context.Background(), "span finished", fields...)
}

func (p *LogProcessor) Shutdown(context.Context) error {
	return nil
}

func (p *LogProcessor) ForceFlush(context.Context) error {
	return nil
}
