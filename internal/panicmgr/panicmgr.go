// Package panicmgr implements the panic-safety state machine: it
// tracks whether a recently active grill has gone silent for longer
// than is safe to ignore, and arbitrates authentication failures
// before treating them as a real outage. There is no minimum dwell
// time: panic clears on the first fresh online status.
package panicmgr

import (
	"time"

	"pitboss/internal/domain"
)

// Evaluate updates mem.PanicState and mem.ConsecutiveAuthFailures in
// place for one tick, given the freshly observed connectivity and
// (when known) the grill's on/off switch state. It must run before
// reduce.Reduce so the reducer's message-priority chain sees the
// resolved panic state for this tick.
func Evaluate(mem *domain.SessionMemory, connectivity domain.Connectivity, grillOn bool, now time.Time) {
	switch connectivity {
	case domain.Online:
		mem.ConsecutiveAuthFailures = 0
		resolvePanic(mem, true, now)

	case domain.AuthFailing:
		mem.ConsecutiveAuthFailures++
		if mem.ConsecutiveAuthFailures < 2 {
			return // grace: don't act on a single isolated auth failure
		}
		if grillOn {
			enterPanicIfActiveRecently(mem, now)
		}
		// grillOn == false: treated as offline but never enters panic.

	case domain.Offline:
		enterPanicIfActiveRecently(mem, now)
		resolvePanic(mem, false, now)
	}
}

// enterPanicIfActiveRecently transitions false -> true iff the device
// was active within PanicTimeout of now.
func enterPanicIfActiveRecently(mem *domain.SessionMemory, now time.Time) {
	if mem.PanicState {
		return
	}
	if !mem.HasLastActiveTime {
		return
	}
	if now.Sub(mem.LastActiveTime) <= domain.PanicTimeout {
		mem.PanicState = true
	}
}

// resolvePanic transitions true -> false on (a) a fresh online status,
// or (b) an offline spell that has outlasted PanicTimeout — there is
// nothing left to warn about once the grace window itself has lapsed.
func resolvePanic(mem *domain.SessionMemory, online bool, now time.Time) {
	if !mem.PanicState {
		return
	}
	if online {
		mem.PanicState = false
		return
	}
	if mem.HasLastActiveTime && now.Sub(mem.LastActiveTime) > domain.PanicTimeout {
		mem.PanicState = false
	}
}

// Message returns the panic message when panic_state is true, and the
// zero Message otherwise — callers needing the override in isolation
// (outside the full reducer) can use this directly.
func Message(mem *domain.SessionMemory) (domain.Message, bool) {
	if mem.PanicState {
		return domain.MsgPanicLostConnection, true
	}
	return 0, false
}
