package trial

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"betagate/internal/store"
)

// =============================================================================
// Test fakes
// =============================================================================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeHandle struct {
	sched   *fakeScheduler
	stopped bool
}

func (h *fakeHandle) Stop() {
	h.sched.mu.Lock()
	defer h.sched.mu.Unlock()
	if h.stopped {
		return
	}
	h.stopped = true
	h.sched.stops++
	if h.sched.active == h {
		h.sched.active = nil
		h.sched.fn = nil
	}
}

// fakeScheduler hands out at most one live handle and counts starts,
// stops, and handles that were replaced without being stopped first.
type fakeScheduler struct {
	mu     sync.Mutex
	starts int
	stops  int
	leaks  int
	fn     func()
	active *fakeHandle
}

func (s *fakeScheduler) Start(interval time.Duration, fn func()) TickHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		s.leaks++
	}
	s.starts++
	h := &fakeHandle{sched: s}
	s.active = h
	s.fn = fn
	return h
}

// Fire invokes the active tick callback, as the real ticker would.
func (s *fakeScheduler) Fire() {
	s.mu.Lock()
	fn := s.fn
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (s *fakeScheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		return 1
	}
	return 0
}

func (s *fakeScheduler) Leaks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leaks
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *eventRecorder) ofType(t EventType) []Event {
	var out []Event
	for _, ev := range r.all() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// =============================================================================
// Manager lifecycle tests
// =============================================================================

type ManagerTestSuite struct {
	suite.Suite
	clock   *fakeClock
	sched   *fakeScheduler
	st      *store.MemoryStore
	member  bool
	events  *eventRecorder
	manager *Manager
}

func (s *ManagerTestSuite) SetupTest() {
	s.clock = &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	s.sched = &fakeScheduler{}
	s.st = store.NewMemoryStore()
	s.member = true
	s.events = &eventRecorder{}
	s.manager = s.newManager(Config{TrialDuration: 60 * time.Second, Password: "p1"}, s.st)
}

func (s *ManagerTestSuite) newManager(cfg Config, st *store.MemoryStore) *Manager {
	m, err := NewManager(cfg, st,
		func(context.Context) bool { return s.member },
		WithClock(s.clock),
		WithScheduler(s.sched),
	)
	require.NoError(s.T(), err)
	m.Subscribe(s.events.record)
	return m
}

func (s *ManagerTestSuite) TestRejectsNonPositiveDuration() {
	_, err := NewManager(Config{}, store.NewMemoryStore(), nil)
	s.Error(err)
}

func (s *ManagerTestSuite) TestFreshTrialStartsOnDerivation() {
	ctx := context.Background()

	s.Equal(TierTrial, s.manager.CurrentTier(ctx))
	s.Equal(60*time.Second, s.manager.RemainingTime())
	s.Equal(1, s.sched.ActiveCount())

	rec := NewLedger(s.st).Load()
	s.True(rec.HasStarted)
	s.True(rec.StartedAt.Equal(s.clock.Now()))
}

func (s *ManagerTestSuite) TestExpiryAfterDuration() {
	ctx := context.Background()

	s.manager.CurrentTier(ctx)
	s.clock.Advance(70 * time.Second)

	s.Equal(time.Duration(0), s.manager.RemainingTime())
	s.Equal(TierExpiredTrial, s.manager.CurrentTier(ctx))
	s.Equal(0, s.sched.ActiveCount())

	changes := s.events.ofType(EventStateChanged)
	s.Require().Len(changes, 1)
	s.Equal(TierTrial, changes[0].Previous)
	s.Equal(TierExpiredTrial, changes[0].Next)

	// Repeated derivation with the same result stays silent.
	s.Equal(TierExpiredTrial, s.manager.CurrentTier(ctx))
	s.Len(s.events.ofType(EventStateChanged), 1)
}

func (s *ManagerTestSuite) TestPauseResumeAccounting() {
	ctx := context.Background()

	s.manager.StartTrialIfNeeded(ctx)
	s.clock.Advance(10 * time.Second)

	s.manager.PauseCountdown(ctx)
	s.True(s.manager.IsPaused())
	s.Equal(0, s.sched.ActiveCount())

	s.clock.Advance(100 * time.Second)
	s.Equal(50*time.Second, s.manager.RemainingTime(), "paused wall time must not consume the allowance")

	s.manager.ResumeCountdown(ctx)
	s.False(s.manager.IsPaused())
	s.Equal(50*time.Second, s.manager.RemainingTime())
	s.Equal(1, s.sched.ActiveCount())

	paused := s.events.ofType(EventCountdownPaused)
	s.Require().Len(paused, 1)
	s.Equal(50*time.Second, paused[0].Remaining)

	resumed := s.events.ofType(EventCountdownResumed)
	s.Require().Len(resumed, 1)
	s.Equal(50*time.Second, resumed[0].Remaining)
	s.Equal(100*time.Second, resumed[0].TotalPaused)
}

func (s *ManagerTestSuite) TestRepeatedPausesAccumulate() {
	ctx := context.Background()

	s.manager.StartTrialIfNeeded(ctx)
	s.clock.Advance(5 * time.Second)
	before := s.manager.RemainingTime()

	pauses := []time.Duration{3 * time.Second, 45 * time.Second, 600 * time.Second}
	var total time.Duration
	for _, d := range pauses {
		s.manager.PauseCountdown(ctx)
		s.clock.Advance(d)
		s.manager.ResumeCountdown(ctx)
		total += d
	}

	s.Equal(before, s.manager.RemainingTime(), "pause/resume pairs of any length must not cost trial time")

	rec := NewLedger(s.st).Load()
	s.Equal(total, rec.TotalPaused)
}

func (s *ManagerTestSuite) TestPauseGuards() {
	ctx := context.Background()

	s.manager.StartTrialIfNeeded(ctx)
	s.manager.PauseCountdown(ctx)
	s.manager.PauseCountdown(ctx)
	s.Len(s.events.ofType(EventCountdownPaused), 1, "double pause must be a no-op")

	s.manager.ResumeCountdown(ctx)
	s.manager.ResumeCountdown(ctx)
	s.Len(s.events.ofType(EventCountdownResumed), 1, "resume while running must be a no-op")
}

func (s *ManagerTestSuite) TestPauseBeforeStartIsIgnored() {
	ctx := context.Background()

	// No derivation has run, so the trial has not started.
	s.manager.PauseCountdown(ctx)

	s.False(s.manager.IsPaused())
	s.Empty(s.events.ofType(EventCountdownPaused))

	// Wall time before the start must never reach the accumulator.
	s.clock.Advance(100 * time.Second)
	s.manager.ResumeCountdown(ctx)
	s.Empty(s.events.ofType(EventCountdownResumed))

	s.Equal(TierTrial, s.manager.CurrentTier(ctx))
	s.Zero(NewLedger(s.st).Load().TotalPaused)

	s.clock.Advance(30 * time.Second)
	s.Equal(30*time.Second, s.manager.RemainingTime())
}

func (s *ManagerTestSuite) TestStrayTickAfterPauseEmitsNothing() {
	ctx := context.Background()

	s.manager.CurrentTier(ctx)
	s.sched.mu.Lock()
	fn := s.sched.fn
	s.sched.mu.Unlock()
	s.Require().NotNil(fn)

	s.manager.PauseCountdown(ctx)
	before := len(s.events.all())

	// A callback that slipped past the scheduler stop must be swallowed.
	fn()
	s.Len(s.events.all(), before)
}

func (s *ManagerTestSuite) TestPauseIgnoredWhenUnlocked() {
	ctx := context.Background()

	s.Require().True(s.manager.Unlock(ctx, "p1"))
	s.manager.PauseCountdown(ctx)

	s.False(s.manager.IsPaused())
	s.Empty(s.events.ofType(EventCountdownPaused))
}

func (s *ManagerTestSuite) TestTickEmitsTimeUpdated() {
	ctx := context.Background()

	s.manager.CurrentTier(ctx)
	s.clock.Advance(time.Second)
	s.sched.Fire()

	updates := s.events.ofType(EventTimeUpdated)
	s.Require().Len(updates, 1)
	s.Equal(59*time.Second, updates[0].Remaining)
}

func (s *ManagerTestSuite) TestTickExpiryOrder() {
	ctx := context.Background()

	s.manager.CurrentTier(ctx)
	s.clock.Advance(70 * time.Second)
	s.sched.Fire()

	all := s.events.all()
	s.Require().Len(all, 3)
	s.Equal(EventTimeUpdated, all[0].Type)
	s.Equal(time.Duration(0), all[0].Remaining)
	s.Equal(EventStateChanged, all[1].Type)
	s.Equal(TierExpiredTrial, all[1].Next)
	s.Equal(EventTrialExpired, all[2].Type)

	s.Equal(0, s.sched.ActiveCount())
}

func (s *ManagerTestSuite) TestUnlockWrongThenRight() {
	ctx := context.Background()

	s.False(s.manager.Unlock(ctx, "wrong"))
	s.Equal(TierTrial, s.manager.CurrentTier(ctx))

	s.True(s.manager.Unlock(ctx, "p1"))
	s.Equal(TierBeta, s.manager.CurrentTier(ctx))
	s.True(s.manager.IsUnlocked())
	s.Equal(time.Duration(0), s.manager.RemainingTime())
	s.Equal(0, s.sched.ActiveCount())

	changes := s.events.ofType(EventStateChanged)
	s.Require().Len(changes, 1)
	s.Equal(TierTrial, changes[0].Previous)
	s.Equal(TierBeta, changes[0].Next)
}

func (s *ManagerTestSuite) TestUnlockIsExactMatch() {
	ctx := context.Background()

	s.False(s.manager.Unlock(ctx, "P1"), "case differences must mismatch")
	s.False(s.manager.Unlock(ctx, " p1"), "leading whitespace must mismatch")
	s.False(s.manager.Unlock(ctx, "p1 "), "trailing whitespace must mismatch")
	s.False(s.manager.Unlock(ctx, ""))
	s.False(s.manager.IsUnlocked())
}

func (s *ManagerTestSuite) TestUnlockImpossibleWithoutPassword() {
	ctx := context.Background()
	st := store.NewMemoryStore()
	m := s.newManager(Config{TrialDuration: 60 * time.Second}, st)

	s.False(m.Unlock(ctx, ""))
	s.False(m.Unlock(ctx, "anything"))
	s.False(m.IsUnlocked())
}

func (s *ManagerTestSuite) TestUnlockIsTerminalForTimer() {
	ctx := context.Background()

	s.manager.StartTrialIfNeeded(ctx)
	s.Require().True(s.manager.Unlock(ctx, "p1"))

	s.clock.Advance(30 * time.Minute)
	s.Equal(time.Duration(0), s.manager.RemainingTime())

	s.manager.PauseCountdown(ctx)
	s.manager.ResumeCountdown(ctx)
	s.Equal(time.Duration(0), s.manager.RemainingTime())
}

func (s *ManagerTestSuite) TestUnlockThrottled() {
	ctx := context.Background()
	st := store.NewMemoryStore()
	m, err := NewManager(Config{TrialDuration: 60 * time.Second, Password: "p1"}, st,
		func(context.Context) bool { return true },
		WithClock(s.clock),
		WithScheduler(s.sched),
		WithUnlockGuard(NewUnlockGuard(time.Hour, 2)),
	)
	s.Require().NoError(err)

	s.False(m.Unlock(ctx, "wrong"))
	s.False(m.Unlock(ctx, "wrong"))
	s.False(m.Unlock(ctx, "p1"), "throttled attempt must fail closed even with the right password")
}

func (s *ManagerTestSuite) TestLockReturnsToTrial() {
	ctx := context.Background()

	s.Require().True(s.manager.Unlock(ctx, "p1"))
	s.events = &eventRecorder{}
	s.manager.Subscribe(s.events.record)

	s.manager.Lock(ctx)

	s.False(s.manager.IsUnlocked())
	s.Equal(1, s.sched.ActiveCount())

	changes := s.events.ofType(EventStateChanged)
	s.Require().Len(changes, 1)
	s.Equal(TierBeta, changes[0].Previous)
	s.Equal(TierTrial, changes[0].Next)
}

func (s *ManagerTestSuite) TestResetAfterExpiry() {
	ctx := context.Background()

	s.manager.CurrentTier(ctx)
	s.clock.Advance(70 * time.Second)
	s.Require().Equal(TierExpiredTrial, s.manager.CurrentTier(ctx))

	s.manager.ResetTrialTime(ctx)

	rec := NewLedger(s.st).Load()
	s.False(rec.HasStarted, "reset must not auto-start the trial")
	s.True(rec.StartedAt.IsZero())

	changes := s.events.ofType(EventStateChanged)
	s.Require().Len(changes, 2)
	s.Equal(TierExpiredTrial, changes[1].Previous)
	s.Equal(TierTrial, changes[1].Next)

	s.Equal(60*time.Second, s.manager.RemainingTime())
	s.Equal(1, s.sched.ActiveCount())

	// The next external derivation starts the fresh trial.
	s.Equal(TierTrial, s.manager.CurrentTier(ctx))
	s.True(NewLedger(s.st).Load().HasStarted)
}

func (s *ManagerTestSuite) TestStartTrialIfNeededIsIdempotent() {
	ctx := context.Background()

	s.manager.StartTrialIfNeeded(ctx)
	first := NewLedger(s.st).Load().StartedAt

	s.clock.Advance(10 * time.Second)
	s.manager.StartTrialIfNeeded(ctx)

	s.True(NewLedger(s.st).Load().StartedAt.Equal(first), "second start must not move the start time")
}

func (s *ManagerTestSuite) TestRemainingIsNonIncreasingWhileRunning() {
	ctx := context.Background()

	s.manager.CurrentTier(ctx)
	previous := s.manager.RemainingTime()
	for i := 0; i < 10; i++ {
		s.clock.Advance(5 * time.Second)
		current := s.manager.RemainingTime()
		s.LessOrEqual(current, previous)
		previous = current
	}
}

func (s *ManagerTestSuite) TestNonMemberIsProduction() {
	ctx := context.Background()

	s.member = false
	s.Equal(TierProduction, s.manager.CurrentTier(ctx))
	s.Equal(time.Duration(0), s.manager.RemainingTime())

	changes := s.events.ofType(EventStateChanged)
	s.Require().Len(changes, 1)
	s.Equal(TierProduction, changes[0].Next)
}

func (s *ManagerTestSuite) TestUnlockInvisibleOutsideChannel() {
	ctx := context.Background()

	s.Require().True(s.manager.Unlock(ctx, "p1"))
	s.member = false

	s.Equal(TierProduction, s.manager.CurrentTier(ctx), "channel precedence beats unlock")
	s.True(s.manager.IsUnlocked(), "the unlock itself is retained")
}

func (s *ManagerTestSuite) TestSimulationOverridesProbe() {
	ctx := context.Background()

	s.member = false
	m := s.newManager(Config{TrialDuration: 60 * time.Second, SimulationEnabled: true}, store.NewMemoryStore())

	s.Equal(TierTrial, m.CurrentTier(ctx))
}

func (s *ManagerTestSuite) TestCountdownSurvivesRestart() {
	ctx := context.Background()

	s.manager.CurrentTier(ctx)
	s.clock.Advance(20 * time.Second)
	s.manager.Close()

	restarted := s.newManager(Config{TrialDuration: 60 * time.Second, Password: "p1"}, s.st)
	s.Equal(40*time.Second, restarted.RemainingTime())
	s.Equal(TierTrial, restarted.CurrentTier(ctx))
}

func (s *ManagerTestSuite) TestNoTimerLeaksAcrossLifecycle() {
	ctx := context.Background()

	s.manager.CurrentTier(ctx)
	for i := 0; i < 5; i++ {
		s.manager.PauseCountdown(ctx)
		s.manager.ResumeCountdown(ctx)
	}
	s.manager.ResetTrialTime(ctx)
	s.manager.CurrentTier(ctx)
	s.Require().True(s.manager.Unlock(ctx, "p1"))
	s.manager.Lock(ctx)
	s.manager.Close()

	s.Equal(0, s.sched.Leaks())
	s.Equal(0, s.sched.ActiveCount())
}

func (s *ManagerTestSuite) TestUnsubscribeStopsDelivery() {
	ctx := context.Background()

	extra := &eventRecorder{}
	id := s.manager.Subscribe(extra.record)
	s.manager.Unsubscribe(id)

	s.manager.CurrentTier(ctx)
	s.clock.Advance(70 * time.Second)
	s.manager.CurrentTier(ctx)

	s.Empty(extra.all())
	s.NotEmpty(s.events.all())
}

func TestManagerTestSuite(t *testing.T) {
	suite.Run(t, new(ManagerTestSuite))
}
