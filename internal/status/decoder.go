// Package status decodes the two hex blobs the grill returns from
// PB.GetState into a typed domain.Status, applying disconnected-probe
// sentinels and defensive per-field defaults the way a field-device
// driver validates every reading before trusting it.
package status

import (
	"pitboss/internal/codec"
	"pitboss/internal/domain"
)

// sc_12 offsets (1-based byte positions in the decoded blob).
const (
	offUnitFlag = 27

	offP1Target = 3
	offP1       = 6
	offP2       = 9
	offP3       = 12
	offP4       = 15
	offSetTemp  = 21
	offGrillTemp = 24
)

// sc_11 offsets (1-based byte positions in the decoded blob).
const (
	offSmokerTemp  = 21
	offModuleOn    = 25
	offErrorsStart = 26 // 9 bytes: 26..34
	offStatesStart = 35 // 5 bytes: 35..39 (fan, hot, motor, light, prime)
	offRecipeStep  = 41
	offRecipeStart = 42 // 3 bytes: 42..44 (hh, mm, ss)
)

// DecodeHex is re-exported from codec for callers that only need the
// raw byte conversion.
func DecodeHex(s string) []byte { return codec.DecodeHex(s) }

// disconnected sentinel triples.
var sentinels = [][3]int{
	{0, 9, 6},
	{0, 0, 0},
	{255, 255, 255},
}

// ConvertTemperature reads the 3-byte (H, T, U) triple starting at the
// 1-based offset into b and returns the decoded temperature, or
// domain.Disconnected when the triple matches a disconnected sentinel
// or computes to 960. A triple that does not fit inside b is
// domain.Disconnected too.
func ConvertTemperature(b []byte, offset1based int) domain.Temp {
	if offset1based < 1 || offset1based+2 > len(b) {
		return domain.Disconnected
	}
	h := getByte(b, offset1based)
	t := getByte(b, offset1based+1)
	u := getByte(b, offset1based+2)

	for _, s := range sentinels {
		if int(h) == s[0] && int(t) == s[1] && int(u) == s[2] {
			return domain.Disconnected
		}
	}

	value := 100*int(h) + 10*int(t) + int(u)
	if value == 960 {
		return domain.Disconnected
	}
	return domain.NewTemp(value)
}

func getByte(b []byte, pos1based int) byte {
	idx := pos1based - 1
	if idx < 0 || idx >= len(b) {
		return 0
	}
	return b[idx]
}

func getBool(b []byte, pos1based int) bool {
	return getByte(b, pos1based) != 0
}

// errorFlagOrder is the bit-for-byte mapping of sc_11[26..34] to
// domain.ErrorFlag.
var errorFlagOrder = []domain.ErrorFlag{
	domain.ErrorFlag1, domain.ErrorFlag2, domain.ErrorFlag3,
	domain.ErrorHighTemp, domain.ErrorFan, domain.ErrorHot,
	domain.ErrorMotor, domain.ErrorNoPellets, domain.ErrorERL,
}

// ParseStatus decodes sc11Hex and sc12Hex (the hex blobs returned by
// PB.GetState) into a domain.Status. Fields whose backing bytes are
// absent from a too-short blob take their defensive default: booleans
// false, temperatures domain.Disconnected, unit Fahrenheit.
func ParseStatus(sc11Hex, sc12Hex string) domain.Status {
	sc11 := codec.DecodeHex(sc11Hex)
	sc12 := codec.DecodeHex(sc12Hex)

	var s domain.Status

	switch {
	case len(sc12) < offUnitFlag, getByte(sc12, offUnitFlag) == 1:
		s.Unit = domain.Fahrenheit
	default:
		s.Unit = domain.Celsius
	}

	s.P1Target = ConvertTemperature(sc12, offP1Target)
	s.P1 = ConvertTemperature(sc12, offP1)
	s.P2 = ConvertTemperature(sc12, offP2)
	s.P3 = ConvertTemperature(sc12, offP3)
	s.P4 = ConvertTemperature(sc12, offP4)
	s.SetTemp = ConvertTemperature(sc12, offSetTemp)
	s.GrillTemp = ConvertTemperature(sc12, offGrillTemp)

	s.SmokerTemp = ConvertTemperature(sc11, offSmokerTemp)
	s.ModuleOn = getBool(sc11, offModuleOn)

	var errs domain.Errors
	for i, flag := range errorFlagOrder {
		if getBool(sc11, offErrorsStart+i) {
			errs |= domain.Errors(flag)
		}
	}
	s.Errors = errs

	s.FanState = getBool(sc11, offStatesStart+0)
	s.HotState = getBool(sc11, offStatesStart+1)
	s.MotorState = getBool(sc11, offStatesStart+2)
	s.LightState = getBool(sc11, offStatesStart+3)
	s.PrimeState = getBool(sc11, offStatesStart+4)

	if len(sc11) >= offRecipeStep {
		step := getByte(sc11, offRecipeStep)
		s.RecipeStep = &step
	}
	if len(sc11) >= offRecipeStart+2 {
		s.RecipeTime = domain.RecipeTime{
			Set:   true,
			Hours: int(getByte(sc11, offRecipeStart)),
			Mins:  int(getByte(sc11, offRecipeStart+1)),
			Secs:  int(getByte(sc11, offRecipeStart+2)),
		}
	}

	return s
}
