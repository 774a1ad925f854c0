// Package telemetry wires OpenTelemetry metrics for the interview engine.
// Without an OTLP endpoint the global no-op meter is used, so callers never
// need to check whether export is enabled.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "mockai.interview"

// Config selects the metrics exporter.
type Config struct {
	OTLPEndpoint string // e.g. "localhost:4317"; empty disables export
	Insecure     bool
	Interval     time.Duration
}

// Metrics holds the engine's instruments. A nil *Metrics records nothing.
type Metrics struct {
	violations   metric.Int64Counter
	fallbacks    metric.Int64Counter
	interviews   metric.Int64Counter
	finished     metric.Int64Counter
	integrity    metric.Int64Histogram
	liveSessions metric.Int64UpDownCounter
	denials      metric.Int64Counter
}

// Setup installs the OTLP meter provider when cfg.OTLPEndpoint is set and
// returns the instruments plus a shutdown func.
func Setup(ctx context.Context, cfg Config, log zerolog.Logger) (*Metrics, func(context.Context) error, error) {
	shutdown := func(context.Context) error { return nil }

	if cfg.OTLPEndpoint != "" {
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		exporter, err := otlpmetricgrpc.New(ctx, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("create metric exporter: %w", err)
		}

		interval := cfg.Interval
		if interval <= 0 {
			interval = 15 * time.Second
		}
		provider := sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
		)
		otel.SetMeterProvider(provider)
		shutdown = provider.Shutdown

		log.Info().Str("endpoint", cfg.OTLPEndpoint).Dur("interval", interval).Msg("OTLP metrics enabled")
	} else {
		log.Info().Msg("OTLP endpoint not set, metrics are not exported")
	}

	m, err := New(otel.Meter(meterName))
	if err != nil {
		return nil, nil, err
	}
	return m, shutdown, nil
}

// New creates the instruments on meter.
func New(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)

	if m.violations, err = meter.Int64Counter("mockai.violations.total",
		metric.WithDescription("Proctoring violations recorded"),
		metric.WithUnit("{violation}"),
	); err != nil {
		return nil, fmt.Errorf("violations counter: %w", err)
	}
	if m.fallbacks, err = meter.Int64Counter("mockai.questions.fallbacks.total",
		metric.WithDescription("Question generations answered from a fallback list"),
		metric.WithUnit("{generation}"),
	); err != nil {
		return nil, fmt.Errorf("fallbacks counter: %w", err)
	}
	if m.interviews, err = meter.Int64Counter("mockai.interviews.created.total",
		metric.WithDescription("Interviews created"),
		metric.WithUnit("{interview}"),
	); err != nil {
		return nil, fmt.Errorf("interviews counter: %w", err)
	}
	if m.finished, err = meter.Int64Counter("mockai.interviews.finished.total",
		metric.WithDescription("Interviews that reached the results hand-off"),
		metric.WithUnit("{interview}"),
	); err != nil {
		return nil, fmt.Errorf("finished counter: %w", err)
	}
	if m.integrity, err = meter.Int64Histogram("mockai.interviews.integrity_score",
		metric.WithDescription("Integrity score at hand-off"),
		metric.WithExplicitBucketBoundaries(0, 10, 25, 40, 55, 70, 85, 100),
	); err != nil {
		return nil, fmt.Errorf("integrity histogram: %w", err)
	}
	if m.liveSessions, err = meter.Int64UpDownCounter("mockai.sessions.live",
		metric.WithDescription("Interview sessions with an open live channel"),
		metric.WithUnit("{session}"),
	); err != nil {
		return nil, fmt.Errorf("live sessions counter: %w", err)
	}
	if m.denials, err = meter.Int64Counter("mockai.fullscreen.denials.total",
		metric.WithDescription("Fullscreen requests refused by the client"),
	); err != nil {
		return nil, fmt.Errorf("denials counter: %w", err)
	}
	return &m, nil
}

func (m *Metrics) Violation(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.violations.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) Fallback(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.fallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) InterviewCreated(ctx context.Context) {
	if m == nil {
		return
	}
	m.interviews.Add(ctx, 1)
}

func (m *Metrics) InterviewFinished(ctx context.Context, score int) {
	if m == nil {
		return
	}
	m.finished.Add(ctx, 1)
	m.integrity.Record(ctx, int64(score))
}

// SessionOpened increments the live session gauge; the returned func
// decrements it.
func (m *Metrics) SessionOpened(ctx context.Context) func() {
	if m == nil {
		return func() {}
	}
	m.liveSessions.Add(ctx, 1)
	return func() { m.liveSessions.Add(context.Background(), -1) }
}

func (m *Metrics) FullscreenDenied(ctx context.Context) {
	if m == nil {
		return
	}
	m.denials.Add(ctx, 1)
}
