package signin

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/panyam/signin"

// metrics records attempt counts and outcomes. Instruments that fail to
// register are left nil and skipped.
type metrics struct {
	attempts   metric.Int64Counter
	outcomes   metric.Int64Counter
	rejections metric.Int64Counter
	duration   metric.Float64Histogram
}

func newMetrics(meter metric.Meter, logger *slog.Logger) *metrics {
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	m := &metrics{}
	var err error
	if m.attempts, err = meter.Int64Counter("signin.attempts",
		metric.WithDescription("Sign-in attempts started, by mechanism")); err != nil {
		logger.Warn("failed to create metric", "name", "signin.attempts", "err", err)
	}
	if m.outcomes, err = meter.Int64Counter("signin.outcomes",
		metric.WithDescription("Sign-in attempt outcomes, by mechanism and error kind")); err != nil {
		logger.Warn("failed to create metric", "name", "signin.outcomes", "err", err)
	}
	if m.rejections, err = meter.Int64Counter("signin.rejections",
		metric.WithDescription("Submits rejected without starting an attempt")); err != nil {
		logger.Warn("failed to create metric", "name", "signin.rejections", "err", err)
	}
	if m.duration, err = meter.Float64Histogram("signin.attempt.duration",
		metric.WithDescription("Time spent waiting on the identity provider"),
		metric.WithUnit("s")); err != nil {
		logger.Warn("failed to create metric", "name", "signin.attempt.duration", "err", err)
	}
	return m
}

func (m *metrics) attemptStarted(ctx context.Context, mech Mechanism) {
	if m.attempts != nil {
		m.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("mechanism", mech.String())))
	}
}

// outcome is "succeeded", "challenge_issued", "failed" or "abandoned". started
// and finished come from the same clock; a zero started skips the duration.
func (m *metrics) attemptFinished(ctx context.Context, mech Mechanism, outcome string, kind ErrorKind, started, finished time.Time) {
	attrs := metric.WithAttributes(
		attribute.String("mechanism", mech.String()),
		attribute.String("outcome", outcome),
		attribute.String("kind", string(kind)),
	)
	if m.outcomes != nil {
		m.outcomes.Add(ctx, 1, attrs)
	}
	if m.duration != nil && !started.IsZero() {
		m.duration.Record(ctx, finished.Sub(started).Seconds(), metric.WithAttributes(attribute.String("mechanism", mech.String())))
	}
}

func (m *metrics) rejected(ctx context.Context, mech Mechanism, reason string) {
	if m.rejections != nil {
		m.rejections.Add(ctx, 1, metric.WithAttributes(
			attribute.String("mechanism", mech.String()),
			attribute.String("reason", reason),
		))
	}
}
