// Package trial implements the trial-access lifecycle engine for builds
// distributed through the beta channel.
//
// # Architecture Overview
//
// The package is built from two cooperating pieces:
//
//	- State derivation: a pure function of persisted facts (channel
//	  membership, unlock flag, elapsed active time, started flag) that
//	  computes the current access tier and detects transitions.
//	- Time accounting: the ledger tracks the wall-clock start time, the
//	  cumulative paused duration, and the current pause session, so the
//	  remaining trial time is correct no matter how often the countdown
//	  was paused and resumed.
//
// The Manager composes both behind a single mutex and drives a periodic
// tick producer that is active exactly while the tier is Trial and the
// countdown is not paused.
//
// # Access Tiers
//
// Derivation precedence, first match wins:
//
//	1. Not a channel member        -> Production
//	2. Unlocked                    -> Beta
//	3. Expired and trial started   -> ExpiredTrial
//	4. Otherwise                   -> Trial
//
// Entering Trial for the first time starts the trial as a side effect of
// derivation, inside the same critical section, so an automatic trigger
// can never race an explicit StartTrialIfNeeded call.
//
// # Events
//
// Listeners subscribe with Subscribe and receive StateChanged,
// TimeUpdated, TrialExpired, CountdownPaused and CountdownResumed events
// in the order the operations were applied. StateChanged fires exactly
// once per transition; repeated derivations yielding the same tier stay
// silent.
//
// # Dependencies
//
// The engine consumes four injected collaborators: a channel-membership
// probe, a key/value Store, a TickScheduler and a Clock. All of them have
// production defaults and test fakes.
package trial
