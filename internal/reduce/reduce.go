// Package reduce implements the pure status-to-state fold: Reduce
// takes the previous DerivedState, the device's SessionMemory, host
// preferences, one poll result, and the current time, and returns the
// next DerivedState. It performs no I/O and keeps no state of its
// own — every mutation lands in the SessionMemory the caller owns,
// the same derive-from-accumulated-inputs shape a recalculate() step
// uses to fold accumulated sensor inputs into a single output view.
package reduce

import (
	"time"

	"pitboss/internal/domain"
)

// Kind discriminates the three possible poll outcomes a tick can feed
// into Reduce.
type Kind int

const (
	Fresh Kind = iota
	Offline
	AuthFail
)

// Input is the reducer's ReduceInput: a successful Status, an offline
// result, or an authentication failure carrying the last known
// grill-on switch state.
type Input struct {
	Kind    Kind
	Status  domain.Status
	GrillOn bool // valid only when Kind == AuthFail
}

// Reduce folds input into the next DerivedState, mutating mem in
// place. Callers are expected to run the panic manager against
// (connectivity, grillOn, now) before calling Reduce, so mem.PanicState
// already reflects the current tick by the time the message priority
// chain reads it.
func Reduce(prev domain.DerivedState, mem *domain.SessionMemory, prefs domain.Preferences, input Input, now time.Time) domain.DerivedState {
	switch input.Kind {
	case Fresh:
		return reduceFresh(prev, mem, prefs, input.Status, now)
	case AuthFail:
		// A single isolated auth failure is graced: callers are expected
		// to run panicmgr.Evaluate (which owns ConsecutiveAuthFailures)
		// before Reduce, so by the time we get here the counter already
		// reflects this tick. Only the second consecutive failure is
		// surfaced as a state change.
		if mem.ConsecutiveAuthFailures < 2 {
			return prev
		}
		return reduceAbsent(prev, mem, prefs, domain.AuthFailing, input.GrillOn, now)
	default:
		return reduceAbsent(prev, mem, prefs, domain.Offline, mem.LastKnownGrillOn, now)
	}
}

func reduceFresh(prev domain.DerivedState, mem *domain.SessionMemory, prefs domain.Preferences, status domain.Status, now time.Time) domain.DerivedState {
	prevGrillOn := mem.LastKnownGrillOn
	grillOn := status.GrillOn()
	risingEdge := grillOn && !prevGrillOn
	fallingEdge := !grillOn && prevGrillOn

	if risingEdge {
		mem.GrillStartTime = now
		mem.HasGrillStartTime = true
		mem.SessionReachedTemp = false
		// session_ever_reached_temp is deliberately left untouched here:
		// a remembered last_target_temp marks a continuing session.
	}
	if fallingEdge {
		mem.HasGrillStartTime = false
		// Complete shutdown: this poll no longer reports a target.
		if !status.SetTemp.Valid() {
			mem.SessionEverReachedTemp = false
		}
	}
	if grillOn {
		mem.LastActiveTime = now
		mem.HasLastActiveTime = true
	}

	target := status.SetTemp
	current := status.GrillTemp
	sessionEverReachedBefore := mem.SessionEverReachedTemp

	reachedNow := target.Valid() && current.Valid() &&
		float64(current.Value()) >= domain.TempTolerancePercent*float64(target.Value())
	if reachedNow {
		mem.SessionReachedTemp = true
		mem.SessionEverReachedTemp = true
	}

	belowThreshold := target.Valid() && target.Value() > 0 && !reachedNow
	cooling := !grillOn && status.FanState

	preheating := belowThreshold && !mem.SessionReachedTemp
	if risingEdge {
		preheating = belowThreshold && !sessionEverReachedBefore
	}
	heating := belowThreshold && mem.SessionEverReachedTemp

	mem.LastKnownGrillOn = grillOn
	mem.LastTargetTemp = target
	mem.HasLastTargetTemp = target.Valid()
	mem.LastSuccessfulHealthCheck = now
	mem.HasLastSuccessfulHealthCheck = true

	op := operationOf(cooling, grillOn, preheating, heating)

	st := status
	out := domain.DerivedState{
		Connectivity:  domain.Online,
		Operation:     op,
		Panic:         mem.PanicState,
		PowerW:        powerEstimate(&st, cooling),
		LastStatus:    &st,
		TempRangeUnit: st.Unit,
		TempRange:     tempRangeFor(st.Unit),
	}
	out.Message = selectMessage(mem, domain.Online, false, op, &st, now)
	return out
}

func reduceAbsent(prev domain.DerivedState, mem *domain.SessionMemory, prefs domain.Preferences, connectivity domain.Connectivity, grillOn bool, now time.Time) domain.DerivedState {
	if !mem.HasFirstOfflineTime {
		mem.FirstOfflineTime = now
		mem.HasFirstOfflineTime = true
	}

	unit := prefs.Unit
	if prev.LastStatus != nil {
		unit = prev.LastStatus.Unit
	}

	out := domain.DerivedState{
		Connectivity:  connectivity,
		GrillOnAuth:   grillOn,
		Operation:     prev.Operation,
		Panic:         mem.PanicState,
		PowerW:        0,
		LastStatus:    prev.LastStatus,
		TempRangeUnit: unit,
		TempRange:     tempRangeFor(unit),
	}
	out.Message = selectMessage(mem, connectivity, grillOn, prev.Operation, prev.LastStatus, now)
	return out
}

func operationOf(cooling, grillOn, preheating, heating bool) domain.Operation {
	switch {
	case cooling:
		return domain.OpCooling
	case grillOn && preheating:
		return domain.OpPreheating
	case grillOn && heating:
		return domain.OpHeating
	case grillOn:
		return domain.OpAtTemp
	default:
		return domain.OpOff
	}
}

// selectMessage applies the priority chain:
// panic > auth_failure > offline > hardware_error > main_temp_failed >
// using_cached > operational state.
func selectMessage(mem *domain.SessionMemory, connectivity domain.Connectivity, grillOn bool, op domain.Operation, status *domain.Status, now time.Time) domain.Message {
	switch {
	case mem.PanicState:
		return domain.MsgPanicLostConnection
	case connectivity == domain.AuthFailing:
		if grillOn {
			return domain.MsgAuthIssueGrillOn
		}
		return domain.MsgAuthIssueGrillOff
	case connectivity == domain.Offline:
		return domain.MsgDisconnected
	}

	if status == nil {
		return domain.MsgConnected
	}
	if status.Errors.Any() {
		return domain.MsgHardwareError
	}
	if !status.GrillTemp.Valid() {
		if mainTempFailed(mem, status, now) {
			return domain.MsgErrorMainTemp
		}
		return domain.MsgDelayLastKnown
	}
	if status.PrimeState {
		return domain.MsgConnectedGrillPriming
	}
	return operationalMessage(op)
}

// mainTempFailed reports no valid main probe, no other usable probe,
// past the startup grace period, and stale for more than twice that
// grace period since the last successful poll.
func mainTempFailed(mem *domain.SessionMemory, status *domain.Status, now time.Time) bool {
	anyProbeValid := status.P1.Valid() || status.P2.Valid() || status.P3.Valid() || status.P4.Valid()
	if anyProbeValid {
		return false
	}
	if mem.HasGrillStartTime && now.Sub(mem.GrillStartTime) <= domain.StartupGracePeriod {
		return false
	}
	if !mem.HasLastSuccessfulHealthCheck {
		return true
	}
	return now.Sub(mem.LastSuccessfulHealthCheck) > 2*domain.StartupGracePeriod
}

func operationalMessage(op domain.Operation) domain.Message {
	switch op {
	case domain.OpCooling:
		return domain.MsgConnectedCooling
	case domain.OpPreheating:
		return domain.MsgConnectedPreheating
	case domain.OpHeating:
		return domain.MsgConnectedHeating
	case domain.OpAtTemp:
		return domain.MsgConnectedAtTemp
	default:
		return domain.MsgConnectedGrillOff
	}
}

// powerEstimate sums BASE_CONTROLLER plus each active component's
// nominal wattage minus BASE_CONTROLLER, so the base is never
// double-counted. Clamped at 0.
func powerEstimate(status *domain.Status, cooling bool) float64 {
	total := domain.BaseControllerW
	if status.MotorState {
		total += domain.AugerW - domain.BaseControllerW
	}
	if status.HotState {
		total += domain.HotElementW - domain.BaseControllerW
	}
	if status.FanState {
		if cooling {
			total += domain.FanHighCoolingW - domain.BaseControllerW
		} else {
			total += domain.FanLowOperationW - domain.BaseControllerW
		}
	}
	if status.LightState {
		total += domain.LightW - domain.BaseControllerW
	}
	if status.PrimeState {
		total += domain.PrimeW - domain.BaseControllerW
	}
	if total < 0 {
		total = 0
	}
	return total
}

func tempRangeFor(unit domain.Unit) domain.TempRange {
	if unit == domain.Celsius {
		return domain.TempRange{Min: domain.MinTempC, Max: domain.MaxTempC}
	}
	return domain.TempRange{Min: domain.MinTempF, Max: domain.MaxTempF}
}
