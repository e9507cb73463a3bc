// Package domain holds the types shared across the codec, status,
// reduce, panicmgr, scheduler and grillctl packages: the polled Status
// snapshot, the derived operational state, and the session memory that
// survives across polls.
package domain

// Temp is a probe or setpoint temperature in the unit reported by the
// grill, or the Disconnected sentinel when no probe is attached (or the
// wire blob was too short to contain the field).
type Temp struct {
	valid bool
	value int
}

// Disconnected is the zero Temp: no probe reading available.
var Disconnected = Temp{}

// NewTemp returns a valid Temp carrying value.
func NewTemp(value int) Temp {
	return Temp{valid: true, value: value}
}

// Valid reports whether the probe is connected.
func (t Temp) Valid() bool { return t.valid }

// Value returns the decoded temperature. Only meaningful when Valid().
func (t Temp) Value() int { return t.value }

// Unit is the temperature scale the grill is currently reporting in.
type Unit int

const (
	Fahrenheit Unit = iota
	Celsius
)

func (u Unit) String() string {
	if u == Celsius {
		return "C"
	}
	return "F"
}

// ErrorFlag is a bit in Status.Errors.
type ErrorFlag uint16

const (
	ErrorFlag1 ErrorFlag = 1 << iota
	ErrorFlag2
	ErrorFlag3
	ErrorHighTemp
	ErrorFan
	ErrorHot
	ErrorMotor
	ErrorNoPellets
	ErrorERL
)

var errorFlagNames = map[ErrorFlag]string{
	ErrorFlag1:     "Error 1",
	ErrorFlag2:     "Error 2",
	ErrorFlag3:     "Error 3",
	ErrorHighTemp:  "High Temperature",
	ErrorFan:       "Fan Error",
	ErrorHot:       "Hot Error",
	ErrorMotor:     "Motor Error",
	ErrorNoPellets: "No Pellets",
	ErrorERL:       "ERL Error",
}

// Errors is a bitset over the hardware error flags.
type Errors uint16

// Has reports whether flag is set.
func (e Errors) Has(flag ErrorFlag) bool { return e&Errors(flag) != 0 }

// Any reports whether any hardware error flag is set.
func (e Errors) Any() bool { return e != 0 }

// Names returns the human-readable names of every set flag, in bit
// order, for message formatting.
func (e Errors) Names() []string {
	var names []string
	for _, flag := range []ErrorFlag{
		ErrorFlag1, ErrorFlag2, ErrorFlag3, ErrorHighTemp,
		ErrorFan, ErrorHot, ErrorMotor, ErrorNoPellets, ErrorERL,
	} {
		if e.Has(flag) {
			names = append(names, errorFlagNames[flag])
		}
	}
	return names
}

// RecipeTime is an optional hh:mm:ss countdown/elapsed recipe timer.
type RecipeTime struct {
	Set             bool
	Hours, Mins, Secs int
}

// Status is the decoded polled snapshot of the grill's state.
type Status struct {
	Unit Unit

	GrillTemp, SetTemp, SmokerTemp Temp
	P1, P2, P3, P4                 Temp
	P1Target                       Temp

	ModuleOn, MotorState, HotState, FanState, LightState, PrimeState bool

	Errors Errors

	RecipeStep *uint8
	RecipeTime RecipeTime
}

// GrillOn is true if any of the components that indicate a running
// grill (motor, hot rod, or the "module on" flag) are currently active.
func (s Status) GrillOn() bool {
	return s.MotorState || s.HotState || s.ModuleOn
}
