package domain

import "time"

// Connectivity is the reducer's view of whether the grill is reachable,
// and if not, whether that absence was an authentication failure.
type Connectivity int

const (
	Online Connectivity = iota
	Offline
	AuthFailing
)

// Operation is the derived cook-cycle phase.
type Operation int

const (
	OpOff Operation = iota
	OpPreheating
	OpHeating
	OpAtTemp
	OpCooling
)

func (o Operation) String() string {
	switch o {
	case OpPreheating:
		return "Preheating"
	case OpHeating:
		return "Heating"
	case OpAtTemp:
		return "At Temp"
	case OpCooling:
		return "Cooling"
	default:
		return "Grill Off"
	}
}

// Message is the enum of user-visible status messages, priority-ordered
// highest-first by the reducer.
type Message int

const (
	MsgConnected Message = iota
	MsgConnectedRediscovered
	MsgConnectedPeriodicRediscovery
	MsgDisconnected
	MsgConnectedCooling
	MsgConnectedPreheating
	MsgConnectedHeating
	MsgConnectedAtTemp
	MsgConnectedGrillOff
	MsgConnectedGrillPriming
	MsgConnectedGrillPrimeOff
	MsgAuthIssueGrillOn
	MsgAuthIssueGrillOff
	MsgDelayLastKnown
	MsgErrorMainTemp
	MsgPanicLostConnection
	MsgHardwareError
)

func (m Message) String() string {
	switch m {
	case MsgConnected:
		return "Connected"
	case MsgConnectedRediscovered:
		return "Connected (Rediscovered)"
	case MsgConnectedPeriodicRediscovery:
		return "Connected (Periodic Rediscovery)"
	case MsgDisconnected:
		return "Disconnected"
	case MsgConnectedCooling:
		return "Connected (Cooling)"
	case MsgConnectedPreheating:
		return "Connected (Preheating)"
	case MsgConnectedHeating:
		return "Connected (Heating)"
	case MsgConnectedAtTemp:
		return "Connected (At Temp)"
	case MsgConnectedGrillOff:
		return "Connected (Grill Off)"
	case MsgConnectedGrillPriming:
		return "Connected (Grill Priming)"
	case MsgConnectedGrillPrimeOff:
		return "Connected (Grill Prime Off)"
	case MsgAuthIssueGrillOn:
		return "Auth Issue (Grill On)"
	case MsgAuthIssueGrillOff:
		return "Auth Issue (Grill Off)"
	case MsgDelayLastKnown:
		return "Msg Delay: Last Known"
	case MsgErrorMainTemp:
		return "Error with Main Temp"
	case MsgPanicLostConnection:
		return "PANIC: Lost Connection (Grill Was On!)"
	case MsgHardwareError:
		return "Hardware Error"
	default:
		return "Unknown"
	}
}

// TempRange is the host-visible min/max for the unit currently in use.
type TempRange struct {
	Min, Max int
}

// DerivedState is the reducer's output: the Controller's view of a
// device after folding in the latest poll (or its absence).
type DerivedState struct {
	Connectivity  Connectivity
	GrillOnAuth   bool // valid only when Connectivity == AuthFailing
	Operation     Operation
	Panic         bool
	Message       Message
	PowerW        float64
	LastStatus    *Status
	TempRangeUnit Unit
	TempRange     TempRange
}

// SessionMemory is the per-device state the reducer carries across
// polls within one controller session.
type SessionMemory struct {
	GrillStartTime          time.Time
	HasGrillStartTime       bool
	LastTargetTemp          Temp
	HasLastTargetTemp       bool
	SessionReachedTemp      bool
	SessionEverReachedTemp  bool
	LastActiveTime          time.Time
	HasLastActiveTime       bool
	PanicState              bool
	ConsecutiveAuthFailures uint32
	FirstOfflineTime        time.Time
	HasFirstOfflineTime     bool

	// LastKnownGrillOn remembers the last observed on/off switch state
	// so the reducer can fall back to it when a poll can't determine it.
	LastKnownGrillOn bool

	// LastSuccessfulHealthCheck backs the "main temp failed" grace-period
	// rule.
	LastSuccessfulHealthCheck time.Time
	HasLastSuccessfulHealthCheck bool
}

// Device is the metadata extracted when a grill is added.
type Device struct {
	ID              string
	MAC             string
	IP              string
	DeviceNetworkID string
}

// Preferences is the host-owned, hashable preference bag the Controller
// diffs on OnPrefsChanged.
type Preferences struct {
	IPAddress              string // empty = "auto" (use discovery)
	RefreshIntervalSeconds int
	AutoRediscovery        bool
	Unit                   Unit
}

// DefaultIPSentinel is the preference value meaning "no explicit IP has
// been set; let discovery manage it".
const DefaultIPSentinel = ""

// CommandResult is returned from Controller.SendCommand.
type CommandResult struct {
	Success bool
	Hex     string
	Err     error
}
