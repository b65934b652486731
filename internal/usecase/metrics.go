package usecase

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"pttype/internal/logging"
)

const meterName = "pttype/internal/usecase"

// Reasons recorded on pttype.frames.dropped.
const (
	dropRunClosed = "run_closed"
	dropBacklog   = "backlog"
)

type sessionMetrics struct {
	started     metric.Int64Counter
	completed   metric.Int64Counter
	dropped     metric.Int64Counter
	failures    metric.Int64Counter
	injections  metric.Int64Counter
	durationSec metric.Float64Histogram
}

func newSessionMetrics() *sessionMetrics {
	meter := otel.Meter(meterName)
	m := &sessionMetrics{}
	var err error
	if m.started, err = meter.Int64Counter("pttype.sessions.started",
		metric.WithDescription("Sessions that entered recording")); err != nil {
		logging.Warnw("metric registration failed", "metric", "pttype.sessions.started", "error", err)
	}
	if m.completed, err = meter.Int64Counter("pttype.sessions.completed",
		metric.WithDescription("Sessions that returned to idle, by outcome")); err != nil {
		logging.Warnw("metric registration failed", "metric", "pttype.sessions.completed", "error", err)
	}
	if m.dropped, err = meter.Int64Counter("pttype.frames.dropped",
		metric.WithDescription("Frames the recognition run did not accept, by reason")); err != nil {
		logging.Warnw("metric registration failed", "metric", "pttype.frames.dropped", "error", err)
	}
	if m.failures, err = meter.Int64Counter("pttype.recognition.failures",
		metric.WithDescription("Failed recognition runs")); err != nil {
		logging.Warnw("metric registration failed", "metric", "pttype.recognition.failures", "error", err)
	}
	if m.injections, err = meter.Int64Counter("pttype.injections",
		metric.WithDescription("Text deliveries into the focused application")); err != nil {
		logging.Warnw("metric registration failed", "metric", "pttype.injections", "error", err)
	}
	if m.durationSec, err = meter.Float64Histogram("pttype.session.duration",
		metric.WithDescription("Time from recording start to idle"),
		metric.WithUnit("s")); err != nil {
		logging.Warnw("metric registration failed", "metric", "pttype.session.duration", "error", err)
	}
	return m
}

func (m *sessionMetrics) sessionStarted() {
	if m.started != nil {
		m.started.Add(context.Background(), 1)
	}
}

func (m *sessionMetrics) sessionCompleted(outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	if m.completed != nil {
		m.completed.Add(context.Background(), 1, attrs)
	}
	if m.durationSec != nil && elapsed > 0 {
		m.durationSec.Record(context.Background(), elapsed.Seconds(), attrs)
	}
}

func (m *sessionMetrics) frameDropped(reason string) {
	if m.dropped != nil {
		m.dropped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
}

func (m *sessionMetrics) recognitionFailed(recovered bool) {
	if m.failures != nil {
		m.failures.Add(context.Background(), 1, metric.WithAttributes(attribute.Bool("recovered", recovered)))
	}
}

func (m *sessionMetrics) injected(ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	if m.injections != nil {
		m.injections.Add(context.Background(), 1, metric.WithAttributes(attribute.String("result", result)))
	}
}
