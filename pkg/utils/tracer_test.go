package utils

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func rootDecision(s sdktrace.Sampler) sdktrace.SamplingDecision {
	return s.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		TraceID:       trace.TraceID{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 1},
		Name:          "OrderService.CreateOrder",
	}).Decision
}

func TestNewSampler(t *testing.T) {
	require.Equal(t, sdktrace.RecordAndSample, rootDecision(NewSampler(1)))
	require.Equal(t, sdktrace.Drop, rootDecision(NewSampler(0)))

	sampledParent := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1},
		SpanID:     trace.SpanID{1},
		TraceFlags: trace.FlagsSampled,
	}))
	res := NewSampler(0).ShouldSample(sdktrace.SamplingParameters{
		ParentContext: sampledParent,
		TraceID:       trace.TraceID{1},
		Name:          "kafka_process",
	})
	require.Equal(t, sdktrace.RecordAndSample, res.Decision)
}

func TestInitTracer(t *testing.T) {
	tp, err := InitTracer(context.Background(), TracerConfig{
		ServiceName:    "order-service",
		ServiceVersion: "test",
		Env:            "test",
		Endpoint:       "127.0.0.1:4318",
		SampleRatio:    1,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, tp.Shutdown(ctx))
}
