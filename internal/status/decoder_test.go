package status

import (
	"testing"

	"pitboss/internal/codec"
	"pitboss/internal/domain"
)

func TestConvertTemperatureSentinels(t *testing.T) {
	cases := [][3]byte{{0, 9, 6}, {0, 0, 0}, {255, 255, 255}}
	for _, c := range cases {
		b := []byte{c[0], c[1], c[2]}
		got := ConvertTemperature(b, 1)
		if got.Valid() {
			t.Errorf("triple %v: expected Disconnected, got %v", c, got.Value())
		}
	}
}

func TestConvertTemperatureComputesTo960(t *testing.T) {
	// 9,6,0 -> 900+60+0 = 960
	b := []byte{9, 6, 0}
	got := ConvertTemperature(b, 1)
	if got.Valid() {
		t.Errorf("expected Disconnected for triple computing to 960, got %v", got.Value())
	}
}

func TestConvertTemperatureNormal(t *testing.T) {
	// 2,5,0 -> 250
	b := []byte{2, 5, 0}
	got := ConvertTemperature(b, 1)
	if !got.Valid() || got.Value() != 250 {
		t.Fatalf("expected 250, got valid=%v value=%v", got.Valid(), got.Value())
	}
}

func TestConvertTemperatureShortBlobDefaultsDisconnected(t *testing.T) {
	got := ConvertTemperature([]byte{1, 2}, 1)
	if got.Valid() {
		t.Fatalf("expected Disconnected for short blob, got %v", got.Value())
	}
}

// buildSC12 lays out a synthetic sc_12 blob with the triples/unit flag
// at their real field offsets, for scenario tests.
func buildSC12(unitF bool, p1Target, p1, p2, p3, p4, setTemp, grillTemp [3]byte) []byte {
	b := make([]byte, 27)
	put := func(offset1based int, triple [3]byte) {
		idx := offset1based - 1
		b[idx], b[idx+1], b[idx+2] = triple[0], triple[1], triple[2]
	}
	put(offP1Target, p1Target)
	put(offP1, p1)
	put(offP2, p2)
	put(offP3, p3)
	put(offP4, p4)
	put(offSetTemp, setTemp)
	put(offGrillTemp, grillTemp)
	if unitF {
		b[offUnitFlag-1] = 1
	} else {
		b[offUnitFlag-1] = 0
	}
	return b
}

func buildSC11(smoker [3]byte, moduleOn bool, errs []bool, fan, hot, motor, light, prime bool) []byte {
	b := make([]byte, offStatesStart+5)
	idx := offSmokerTemp - 1
	b[idx], b[idx+1], b[idx+2] = smoker[0], smoker[1], smoker[2]
	if moduleOn {
		b[offModuleOn-1] = 1
	}
	for i, e := range errs {
		if e {
			b[offErrorsStart-1+i] = 1
		}
	}
	setBool := func(pos int, v bool) {
		if v {
			b[pos-1] = 1
		}
	}
	setBool(offStatesStart+0, fan)
	setBool(offStatesStart+1, hot)
	setBool(offStatesStart+2, motor)
	setBool(offStatesStart+3, light)
	setBool(offStatesStart+4, prime)
	return b
}

func TestParseStatusS1SteadyHealthyPoll(t *testing.T) {
	sc12 := buildSC12(true, [3]byte{0, 0, 0}, [3]byte{0, 0, 0}, [3]byte{0, 0, 0}, [3]byte{0, 0, 0},
		[3]byte{0, 0, 0}, [3]byte{2, 5, 0}, [3]byte{2, 5, 0})
	sc11 := buildSC11([3]byte{0, 0, 0}, true, make([]bool, 9), true, false, true, false, false)

	st := ParseStatus(codec.EncodeHex(sc11), codec.EncodeHex(sc12))

	if st.Unit != domain.Fahrenheit {
		t.Errorf("expected Fahrenheit unit")
	}
	if !st.GrillTemp.Valid() || st.GrillTemp.Value() != 250 {
		t.Errorf("expected grill_temp 250, got %+v", st.GrillTemp)
	}
	if !st.SetTemp.Valid() || st.SetTemp.Value() != 250 {
		t.Errorf("expected set_temp 250, got %+v", st.SetTemp)
	}
	if !st.ModuleOn || !st.MotorState || st.HotState != false || !st.FanState {
		t.Errorf("unexpected component states: %+v", st)
	}
	if st.Errors.Any() {
		t.Errorf("expected no errors, got %v", st.Errors.Names())
	}
}

func TestParseStatusDefensiveDefaultsOnShortBlobs(t *testing.T) {
	st := ParseStatus("", "")
	if st.Unit != domain.Fahrenheit {
		t.Errorf("expected default unit F, got %v", st.Unit)
	}
	if st.GrillTemp.Valid() || st.SetTemp.Valid() || st.P1.Valid() {
		t.Errorf("expected all temps disconnected on empty blob, got %+v", st)
	}
	if st.ModuleOn || st.MotorState || st.HotState || st.FanState || st.LightState || st.PrimeState {
		t.Errorf("expected all bools false on empty blob")
	}
	if st.RecipeStep != nil {
		t.Errorf("expected no recipe step on empty blob")
	}
	if st.RecipeTime.Set {
		t.Errorf("expected no recipe time on empty blob")
	}
}
