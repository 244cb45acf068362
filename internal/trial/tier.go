package trial

import "time"

// AccessTier is the derived access level. It is never persisted; every
// derivation recomputes it from ledger facts.
type AccessTier int

const (
	// TierProduction means the build is not distributed through the
	// restricted channel; no trial applies.
	TierProduction AccessTier = iota
	// TierTrial means the countdown is running (or has not started yet).
	TierTrial
	// TierExpiredTrial means the trial was started and has run out.
	TierExpiredTrial
	// TierBeta means the password unlock succeeded; access is unrestricted.
	TierBeta
)

// String returns the wire name of the tier.
func (t AccessTier) String() string {
	switch t {
	case TierProduction:
		return "production"
	case TierTrial:
		return "trial"
	case TierExpiredTrial:
		return "expired_trial"
	case TierBeta:
		return "beta"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the tier as its string name.
func (t AccessTier) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// deriveTier computes the access tier from the derivation inputs.
// Precedence is strict: channel membership beats everything, then unlock,
// then expiry. An unlock granted outside the restricted channel therefore
// has no visible effect until membership becomes true.
func deriveTier(member, unlocked bool, remaining time.Duration, hasStarted bool) AccessTier {
	switch {
	case !member:
		return TierProduction
	case unlocked:
		return TierBeta
	case remaining <= 0 && hasStarted:
		return TierExpiredTrial
	default:
		return TierTrial
	}
}
