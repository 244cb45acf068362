package trial

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"betagate/internal/channel"
	"betagate/internal/store"
)

// Config is the immutable trial configuration supplied at construction.
type Config struct {
	// TrialDuration is the total active countdown allowance. Must be > 0.
	TrialDuration time.Duration

	// Password is the unlock secret, compared for exact equality. Empty
	// means unlock is impossible.
	Password string

	// SimulationEnabled forces the channel probe to report membership.
	// Meant for non-production builds only.
	SimulationEnabled bool

	// TickInterval is the countdown notification period. Defaults to one
	// second.
	TickInterval time.Duration
}

func (c *Config) validate() error {
	if c.TrialDuration <= 0 {
		return fmt.Errorf("trial duration must be positive, got %s", c.TrialDuration)
	}
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	return nil
}

// API is the manager surface consumed by the service and transport layers.
type API interface {
	CurrentTier(ctx context.Context) AccessTier
	RemainingTime() time.Duration
	StartTrialIfNeeded(ctx context.Context)
	PauseCountdown(ctx context.Context)
	ResumeCountdown(ctx context.Context)
	Unlock(ctx context.Context, password string) bool
	Lock(ctx context.Context)
	ResetTrialTime(ctx context.Context)
	IsPaused() bool
	IsUnlocked() bool
	Subscribe(fn Listener) string
	Unsubscribe(id string)
}

// Manager owns the trial lifecycle for one persistence partition. All
// mutating operations and the tier re-derivation they trigger run inside
// one critical section; the tick callback takes the same lock.
//
// Listeners are invoked synchronously after the lock is released and must
// not call back into the manager from inside the callback.
type Manager struct {
	cfg       Config
	ledger    *Ledger
	probe     channel.Probe
	clock     Clock
	scheduler TickScheduler
	guard     *UnlockGuard
	metrics   *Metrics

	mu       sync.Mutex
	tick     TickHandle
	lastTier AccessTier

	emitMu sync.Mutex
	subMu  sync.RWMutex
	subs   []subscriber
}

var _ API = (*Manager)(nil)

// Option customizes a Manager.
type Option func(*Manager)

// WithClock injects a clock. Tests use this to drive the countdown.
func WithClock(c Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithScheduler injects a tick scheduler.
func WithScheduler(s TickScheduler) Option {
	return func(m *Manager) { m.scheduler = s }
}

// WithMetrics attaches OpenTelemetry metrics.
func WithMetrics(mt *Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithUnlockGuard replaces the default unlock throttle. Passing nil
// disables throttling.
func WithUnlockGuard(g *UnlockGuard) Option {
	return func(m *Manager) { m.guard = g }
}

// NewManager constructs a trial manager over the given store and channel
// probe. The configured password is mirrored into the store so unlock
// keeps working across launches even when later configurations omit it.
func NewManager(cfg Config, st store.Store, probe channel.Probe, opts ...Option) (*Manager, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if probe == nil {
		probe = channel.Static(false)
	}

	m := &Manager{
		cfg:       cfg,
		ledger:    NewLedger(st),
		probe:     probe,
		clock:     SystemClock(),
		scheduler: NewTickerScheduler(),
		guard:     NewUnlockGuard(time.Second, 10),
	}
	for _, opt := range opts {
		opt(m)
	}

	ctx := context.Background()

	if cfg.Password != "" {
		m.ledger.SetPassword(cfg.Password)
	}

	// Establish the initial observed tier without the auto-start side
	// effect; the first external derivation starts the trial if due.
	rec := m.ledger.Load()
	member := m.channelMember(ctx)
	rem := m.remainingLocked(rec, member, m.clock.Now())
	m.lastTier = deriveTier(member, rec.Unlocked, rem, rec.HasStarted)
	m.syncTickLocked(m.lastTier, rec.Paused)

	m.logInfo(ctx, "manager_initialization", "trial manager initialized",
		slog.String("tier", m.lastTier.String()),
		slog.Duration("trial_duration", cfg.TrialDuration),
		slog.Duration("tick_interval", cfg.TickInterval),
		slog.Bool("simulation_enabled", cfg.SimulationEnabled),
		slog.Bool("password_configured", cfg.Password != "" || rec.Password != ""),
	)

	return m, nil
}

// channelMember answers the channel probe, ORed with the simulation
// override.
func (m *Manager) channelMember(ctx context.Context) bool {
	if m.cfg.SimulationEnabled {
		return true
	}
	return m.probe(ctx)
}

// remainingLocked computes the remaining trial allowance for a record.
// Unlock is terminal with respect to the timer: once unlocked the result
// is always zero.
func (m *Manager) remainingLocked(rec Record, member bool, now time.Time) time.Duration {
	if !member || rec.Unlocked {
		return 0
	}
	if !rec.HasStarted || rec.StartedAt.IsZero() {
		return m.cfg.TrialDuration
	}

	var sessionPause time.Duration
	if rec.Paused && !rec.LastPauseAt.IsZero() {
		sessionPause = now.Sub(rec.LastPauseAt)
	}

	activeElapsed := now.Sub(rec.StartedAt) - rec.TotalPaused - sessionPause
	remaining := m.cfg.TrialDuration - activeElapsed
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// refreshLocked re-derives the tier, performs the auto-start side effect
// when requested, records a transition at most once, and reconciles the
// tick producer. Callers must hold m.mu and emit the collected events
// after releasing it.
func (m *Manager) refreshLocked(ctx context.Context, autoStart bool, events *[]Event) (AccessTier, Record) {
	rec := m.ledger.Load()
	now := m.clock.Now()
	member := m.channelMember(ctx)

	rem := m.remainingLocked(rec, member, now)
	tier := deriveTier(member, rec.Unlocked, rem, rec.HasStarted)

	if autoStart && tier == TierTrial && !rec.HasStarted {
		m.ledger.Start(now)
		rec = m.ledger.Load()
		m.logInfo(ctx, "trial_start", "trial started on first derivation",
			slog.Time("started_at", now),
			slog.Duration("trial_duration", m.cfg.TrialDuration),
		)
	}

	m.metrics.recordDerivation(ctx, tier)

	if tier != m.lastTier {
		*events = append(*events, Event{Type: EventStateChanged, Previous: m.lastTier, Next: tier})
		m.metrics.recordTransition(ctx, m.lastTier, tier)
		m.logInfo(ctx, "tier_transition", "access tier changed",
			slog.String("previous", m.lastTier.String()),
			slog.String("next", tier.String()),
		)
		m.lastTier = tier
	}

	m.syncTickLocked(tier, rec.Paused)
	return tier, rec
}

// syncTickLocked keeps the tick producer active exactly while the tier is
// Trial and the countdown is not paused.
func (m *Manager) syncTickLocked(tier AccessTier, paused bool) {
	active := tier == TierTrial && !paused
	switch {
	case active && m.tick == nil:
		m.activateTickLocked()
	case !active && m.tick != nil:
		m.deactivateTickLocked()
	}
}

// activateTickLocked cancels any existing tick before starting a new one,
// so timers never accumulate across repeated activations.
func (m *Manager) activateTickLocked() {
	if m.tick != nil {
		m.tick.Stop()
	}
	m.tick = m.scheduler.Start(m.cfg.TickInterval, m.onTick)
}

func (m *Manager) deactivateTickLocked() {
	if m.tick != nil {
		m.tick.Stop()
		m.tick = nil
	}
}

// onTick runs once per scheduler interval while the countdown is active.
func (m *Manager) onTick() {
	ctx := context.Background()

	m.mu.Lock()
	// A callback that raced a pause, unlock or Close may reach here after
	// the producer was stopped; it must not emit.
	if m.tick == nil {
		m.mu.Unlock()
		return
	}
	rec := m.ledger.Load()
	member := m.channelMember(ctx)
	rem := m.remainingLocked(rec, member, m.clock.Now())

	events := []Event{{Type: EventTimeUpdated, Remaining: rem, TotalPaused: rec.TotalPaused}}
	m.metrics.recordTick(ctx)

	if rem <= 0 {
		m.deactivateTickLocked()
		tier, _ := m.refreshLocked(ctx, false, &events)
		if tier == TierExpiredTrial {
			events = append(events, Event{Type: EventTrialExpired})
			m.metrics.recordExpiration(ctx)
			m.logInfo(ctx, "trial_expired", "trial allowance exhausted")
		}
	}
	m.mu.Unlock()

	m.emit(events)
}

// CurrentTier derives the current access tier. Entering Trial for the
// first time starts the trial as a side effect, inside the same critical
// section as the derivation.
func (m *Manager) CurrentTier(ctx context.Context) AccessTier {
	m.mu.Lock()
	var events []Event
	tier, _ := m.refreshLocked(ctx, true, &events)
	m.mu.Unlock()

	m.emit(events)
	return tier
}

// RemainingTime reports the remaining trial allowance. Zero when the
// build is outside the channel or unlocked; the full allowance when the
// trial has not started yet.
func (m *Manager) RemainingTime() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.ledger.Load()
	member := m.channelMember(context.Background())
	return m.remainingLocked(rec, member, m.clock.Now())
}

// FormatRemaining renders the remaining allowance as MM:SS.
func (m *Manager) FormatRemaining() string {
	return FormatMMSS(m.RemainingTime())
}

// IsPaused reports whether the countdown is inside a pause session.
func (m *Manager) IsPaused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ledger.Load().Paused
}

// IsUnlocked reports whether the password unlock has been granted.
func (m *Manager) IsUnlocked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ledger.Load().Unlocked
}

// StartTrialIfNeeded starts the trial countdown. No-op unless the build
// is a channel member, not unlocked, and the trial has not started.
func (m *Manager) StartTrialIfNeeded(ctx context.Context) {
	m.mu.Lock()
	var events []Event

	rec := m.ledger.Load()
	member := m.channelMember(ctx)
	if member && !rec.Unlocked && !rec.HasStarted {
		now := m.clock.Now()
		m.ledger.Start(now)
		m.logInfo(ctx, "trial_start", "trial started",
			slog.Time("started_at", now),
			slog.Duration("trial_duration", m.cfg.TrialDuration),
		)
	} else {
		m.logDebug(ctx, "trial_start", "start ignored, preconditions not met",
			slog.Bool("channel_member", member),
			slog.Bool("unlocked", rec.Unlocked),
			slog.Bool("already_started", rec.HasStarted),
		)
	}

	m.refreshLocked(ctx, false, &events)
	m.mu.Unlock()

	m.emit(events)
}

// PauseCountdown suspends the countdown. No-op unless the trial has
// started, the tier is Trial, and the countdown is running. A pause
// before the start would otherwise be folded into the accumulator on
// resume and inflate the allowance once the trial begins.
func (m *Manager) PauseCountdown(ctx context.Context) {
	m.mu.Lock()
	var events []Event

	rec := m.ledger.Load()
	now := m.clock.Now()
	member := m.channelMember(ctx)
	rem := m.remainingLocked(rec, member, now)
	tier := deriveTier(member, rec.Unlocked, rem, rec.HasStarted)

	if member && !rec.Unlocked && rec.HasStarted && tier == TierTrial && !rec.Paused {
		m.ledger.Pause(now)
		m.deactivateTickLocked()
		events = append(events, Event{Type: EventCountdownPaused, Remaining: rem})
		m.metrics.recordPause(ctx)
		m.logInfo(ctx, "countdown_pause", "countdown paused",
			slog.Duration("remaining", rem),
		)
		m.refreshLocked(ctx, false, &events)
	} else {
		m.logDebug(ctx, "countdown_pause", "pause ignored, preconditions not met",
			slog.String("tier", tier.String()),
			slog.Bool("started", rec.HasStarted),
			slog.Bool("already_paused", rec.Paused),
		)
	}
	m.mu.Unlock()

	m.emit(events)
}

// ResumeCountdown ends a pause session, folding its wall-clock length into
// the paused-duration accumulator. No-op unless currently paused.
func (m *Manager) ResumeCountdown(ctx context.Context) {
	m.mu.Lock()
	var events []Event

	rec := m.ledger.Load()
	now := m.clock.Now()
	member := m.channelMember(ctx)

	if member && !rec.Unlocked && rec.Paused {
		total := rec.TotalPaused
		if !rec.LastPauseAt.IsZero() {
			total += now.Sub(rec.LastPauseAt)
		}
		m.ledger.Resume(total)

		_, rec = m.refreshLocked(ctx, false, &events)
		rem := m.remainingLocked(rec, member, now)
		events = append(events, Event{Type: EventCountdownResumed, Remaining: rem, TotalPaused: total})
		m.metrics.recordResume(ctx)
		m.logInfo(ctx, "countdown_resume", "countdown resumed",
			slog.Duration("remaining", rem),
			slog.Duration("total_paused", total),
		)
	} else {
		m.logDebug(ctx, "countdown_resume", "resume ignored, preconditions not met",
			slog.Bool("paused", rec.Paused),
		)
	}
	m.mu.Unlock()

	m.emit(events)
}

// Unlock grants unrestricted beta access when the entered password matches
// the configured one exactly (case-sensitive, no trimming). Returns false
// with no effect when no password is configured, the password does not
// match, or the attempt is throttled.
func (m *Manager) Unlock(ctx context.Context, entered string) bool {
	m.mu.Lock()

	if m.guard != nil && !m.guard.Allow() {
		m.metrics.recordUnlock(ctx, false)
		m.logWarn(ctx, "unlock", "unlock attempt throttled")
		m.mu.Unlock()
		return false
	}

	rec := m.ledger.Load()
	password := rec.Password
	if password == "" {
		password = m.cfg.Password
	}

	if password == "" || entered != password {
		if m.guard != nil {
			m.guard.RecordFailure(m.clock.Now())
		}
		m.metrics.recordUnlock(ctx, false)
		m.logWarn(ctx, "unlock", "unlock rejected",
			slog.Bool("password_configured", password != ""),
		)
		m.mu.Unlock()
		return false
	}

	m.ledger.SetUnlocked(true)
	m.metrics.recordUnlock(ctx, true)
	m.logInfo(ctx, "unlock", "beta access unlocked")

	var events []Event
	m.refreshLocked(ctx, false, &events)
	m.mu.Unlock()

	m.emit(events)
	return true
}

// Lock revokes the unlock, returning the build to trial accounting. The
// re-derivation may auto-start a trial that never ran.
func (m *Manager) Lock(ctx context.Context) {
	m.mu.Lock()
	var events []Event

	m.ledger.SetUnlocked(false)
	m.logInfo(ctx, "lock", "beta access locked")
	m.refreshLocked(ctx, true, &events)
	m.mu.Unlock()

	m.emit(events)
}

// ResetTrialTime clears all trial timing facts, leaving the unlock flag
// and password untouched. The re-derivation here deliberately skips the
// auto-start side effect so the started flag stays false until the next
// external derivation.
func (m *Manager) ResetTrialTime(ctx context.Context) {
	m.mu.Lock()
	var events []Event

	m.ledger.Reset()
	m.logInfo(ctx, "trial_reset", "trial timing reset")
	m.refreshLocked(ctx, false, &events)
	m.mu.Unlock()

	m.emit(events)
}

// Close stops the tick producer. Safe to call more than once.
func (m *Manager) Close() {
	m.mu.Lock()
	m.deactivateTickLocked()
	m.mu.Unlock()
}
