package trial

import (
	"time"

	"betagate/internal/store"
)

// Persisted ledger keys. These are stable identifiers independent of the
// partition name; the store keeps partitions from colliding.
const (
	keyStartedAt          = "trial.started_at"
	keyHasStarted         = "trial.has_started"
	keyUnlocked           = "trial.unlocked"
	keyPaused             = "trial.paused"
	keyLastPauseAt        = "trial.last_pause_at"
	keyTotalPausedSeconds = "trial.total_paused_seconds"
	keyPassword           = "trial.password"
)

// Record is a point-in-time snapshot of the persisted ledger facts.
// Absent store values read as zero values: a zero StartedAt means the
// trial has not been started.
type Record struct {
	StartedAt   time.Time
	HasStarted  bool
	Unlocked    bool
	Paused      bool
	LastPauseAt time.Time
	TotalPaused time.Duration
	Password    string
}

// Ledger mediates every read and write of trial facts against the store.
// It carries no state of its own; the store is the source of truth so the
// record survives process restarts.
type Ledger struct {
	store store.Store
}

// NewLedger wraps a store.
func NewLedger(s store.Store) *Ledger {
	return &Ledger{store: s}
}

// Load reads the full record, treating absent values as defaults.
func (l *Ledger) Load() Record {
	var rec Record
	if v, ok := l.store.GetTime(keyStartedAt); ok {
		rec.StartedAt = v
	}
	if v, ok := l.store.GetBool(keyHasStarted); ok {
		rec.HasStarted = v
	}
	if v, ok := l.store.GetBool(keyUnlocked); ok {
		rec.Unlocked = v
	}
	if v, ok := l.store.GetBool(keyPaused); ok {
		rec.Paused = v
	}
	if v, ok := l.store.GetTime(keyLastPauseAt); ok {
		rec.LastPauseAt = v
	}
	if v, ok := l.store.GetFloat(keyTotalPausedSeconds); ok {
		rec.TotalPaused = time.Duration(v * float64(time.Second))
	}
	if v, ok := l.store.GetString(keyPassword); ok {
		rec.Password = v
	}
	return rec
}

// Start marks the trial as started at the given instant. Any stale pause
// marker is cleared so the invariant "paused implies last-pause set" holds.
func (l *Ledger) Start(at time.Time) {
	l.store.SetTime(keyStartedAt, at)
	l.store.SetBool(keyHasStarted, true)
	l.store.SetBool(keyPaused, false)
	l.store.Remove(keyLastPauseAt)
}

// SetUnlocked persists the unlock flag.
func (l *Ledger) SetUnlocked(v bool) {
	l.store.SetBool(keyUnlocked, v)
}

// Pause records entry into a pause session at the given instant.
func (l *Ledger) Pause(at time.Time) {
	l.store.SetBool(keyPaused, true)
	l.store.SetTime(keyLastPauseAt, at)
}

// Resume ends the pause session, folding its length into the accumulator.
// The accumulator only ever grows, and only here.
func (l *Ledger) Resume(total time.Duration) {
	l.store.SetFloat(keyTotalPausedSeconds, total.Seconds())
	l.store.SetBool(keyPaused, false)
	l.store.Remove(keyLastPauseAt)
}

// SetPassword persists the configured password mirror.
func (l *Ledger) SetPassword(p string) {
	l.store.SetString(keyPassword, p)
}

// Reset clears all trial timing facts. The unlock flag and the password
// mirror are deliberately left untouched.
func (l *Ledger) Reset() {
	l.store.Remove(keyStartedAt)
	l.store.Remove(keyHasStarted)
	l.store.Remove(keyPaused)
	l.store.Remove(keyLastPauseAt)
	l.store.Remove(keyTotalPausedSeconds)
}
