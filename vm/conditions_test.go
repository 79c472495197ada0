package vm

import (
	"reflect"
	"testing"
)

func TestDefaultRegistryNames(t *testing.T) {
	want := []string{
		"allscanned", "blocked", "cointoss", "facingscanned", "false",
		"movingdown", "movingleft", "movingright", "movingup",
		"onscanned", "rolled", "true",
	}
	if got := DefaultRegistry().Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
	c, ok := DefaultRegistry().Lookup("rolled")
	if !ok || !c.TakesOperand {
		t.Error("rolled should take an operand")
	}
}

func TestRegisterRejects(t *testing.T) {
	eval := func(Env, int) bool { return true }
	tests := []struct {
		name string
		cond Condition
	}{
		{"empty name", Condition{Eval: eval}},
		{"upper case", Condition{Name: "Blocked", Eval: eval}},
		{"space", Condition{Name: "is blocked", Eval: eval}},
		{"reserved", Condition{Name: "not", Eval: eval}},
		{"no predicate", Condition{Name: "sunny"}},
		{"duplicate", Condition{Name: "blocked", Eval: eval}},
	}
	r := DefaultRegistry()
	for _, tt := range tests {
		if err := r.Register(tt.cond); err == nil {
			t.Errorf("%s: Register succeeded", tt.name)
		}
	}
	if err := r.Register(Condition{Name: "sunny_day2", Eval: eval}); err != nil {
		t.Errorf("Register(sunny_day2) = %v", err)
	}
}

func TestBuiltinConditions(t *testing.T) {
	agent := &fakeAgent{facing: West, blocked: true}
	env := Env{Agent: agent, Dice: 4, Rand: maxRandom{}}
	r := DefaultRegistry()

	tests := []struct {
		name    string
		operand int
		want    bool
	}{
		{"blocked", 0, true},
		{"movingleft", 0, true},
		{"movingright", 0, false},
		{"movingup", 0, false},
		{"movingdown", 0, false},
		{"true", 0, true},
		{"false", 0, false},
		{"allscanned", 0, true},
		{"onscanned", 0, false},
		{"facingscanned", 0, false},
		{"rolled", 4, true},
		{"rolled", 3, false},
		// maxRandom.IntN(2) is 1, so the coin lands tails.
		{"cointoss", 0, false},
	}
	for _, tt := range tests {
		got, err := r.Evaluate(tt.name, env, tt.operand)
		if err != nil {
			t.Errorf("%s: %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s %d = %v, want %v", tt.name, tt.operand, got, tt.want)
		}
	}
}

func TestDirectionTurns(t *testing.T) {
	d := North
	for _, want := range []Direction{East, South, West, North} {
		d = d.Right()
		if d != want {
			t.Errorf("Right() = %v, want %v", d, want)
		}
	}
	for _, want := range []Direction{West, South, East, North} {
		d = d.Left()
		if d != want {
			t.Errorf("Left() = %v, want %v", d, want)
		}
	}
	if got, ok := ParseDirection("s"); !ok || got != South {
		t.Errorf("ParseDirection(s) = %v, %v", got, ok)
	}
	if _, ok := ParseDirection("up"); ok {
		t.Error("ParseDirection(up) should fail")
	}
}
