package trial

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// MeterName identifies the trial manager's meter.
	MeterName = "trial-manager"
)

// Metrics holds the trial lifecycle OpenTelemetry metrics. A nil *Metrics
// is valid; all record helpers are nil-safe so the engine works without a
// metrics pipeline.
type Metrics struct {
	Derivations     metric.Int64Counter
	TierTransitions metric.Int64Counter
	UnlockAttempts  metric.Int64Counter
	UnlockFailures  metric.Int64Counter
	Ticks           metric.Int64Counter
	PauseEvents     metric.Int64Counter
	ResumeEvents    metric.Int64Counter
	Expirations     metric.Int64Counter
}

// InitializeMetrics creates the trial metrics on the given meter.
func InitializeMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.Derivations, err = meter.Int64Counter(
		"trial_tier_derivations_total",
		metric.WithDescription("Total number of access tier derivations"),
	); err != nil {
		return nil, fmt.Errorf("failed to create derivations counter: %w", err)
	}

	if m.TierTransitions, err = meter.Int64Counter(
		"trial_tier_transitions_total",
		metric.WithDescription("Total number of access tier transitions"),
	); err != nil {
		return nil, fmt.Errorf("failed to create transitions counter: %w", err)
	}

	if m.UnlockAttempts, err = meter.Int64Counter(
		"trial_unlock_attempts_total",
		metric.WithDescription("Total number of unlock attempts"),
	); err != nil {
		return nil, fmt.Errorf("failed to create unlock attempts counter: %w", err)
	}

	if m.UnlockFailures, err = meter.Int64Counter(
		"trial_unlock_failures_total",
		metric.WithDescription("Total number of failed unlock attempts"),
	); err != nil {
		return nil, fmt.Errorf("failed to create unlock failures counter: %w", err)
	}

	if m.Ticks, err = meter.Int64Counter(
		"trial_ticks_total",
		metric.WithDescription("Total number of countdown ticks"),
	); err != nil {
		return nil, fmt.Errorf("failed to create ticks counter: %w", err)
	}

	if m.PauseEvents, err = meter.Int64Counter(
		"trial_pause_events_total",
		metric.WithDescription("Total number of countdown pauses"),
	); err != nil {
		return nil, fmt.Errorf("failed to create pause counter: %w", err)
	}

	if m.ResumeEvents, err = meter.Int64Counter(
		"trial_resume_events_total",
		metric.WithDescription("Total number of countdown resumes"),
	); err != nil {
		return nil, fmt.Errorf("failed to create resume counter: %w", err)
	}

	if m.Expirations, err = meter.Int64Counter(
		"trial_expirations_total",
		metric.WithDescription("Total number of trial expirations"),
	); err != nil {
		return nil, fmt.Errorf("failed to create expirations counter: %w", err)
	}

	return m, nil
}

func (m *Metrics) recordDerivation(ctx context.Context, tier AccessTier) {
	if m == nil || m.Derivations == nil {
		return
	}
	m.Derivations.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", tier.String())))
}

func (m *Metrics) recordTransition(ctx context.Context, previous, next AccessTier) {
	if m == nil || m.TierTransitions == nil {
		return
	}
	m.TierTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("previous", previous.String()),
		attribute.String("next", next.String()),
	))
}

func (m *Metrics) recordUnlock(ctx context.Context, success bool) {
	if m == nil {
		return
	}
	if m.UnlockAttempts != nil {
		m.UnlockAttempts.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
	}
	if !success && m.UnlockFailures != nil {
		m.UnlockFailures.Add(ctx, 1)
	}
}

func (m *Metrics) recordTick(ctx context.Context) {
	if m == nil || m.Ticks == nil {
		return
	}
	m.Ticks.Add(ctx, 1)
}

func (m *Metrics) recordPause(ctx context.Context) {
	if m == nil || m.PauseEvents == nil {
		return
	}
	m.PauseEvents.Add(ctx, 1)
}

func (m *Metrics) recordResume(ctx context.Context) {
	if m == nil || m.ResumeEvents == nil {
		return
	}
	m.ResumeEvents.Add(ctx, 1)
}

func (m *Metrics) recordExpiration(ctx context.Context) {
	if m == nil || m.Expirations == nil {
		return
	}
	m.Expirations.Add(ctx, 1)
}
