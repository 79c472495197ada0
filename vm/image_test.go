package vm

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
)

func sampleProgram() *Program {
	return build(
		Instruction{Op: OpLoopBegin, Count: 3, End: 5},
		Instruction{Op: OpConditional, Cond: "rolled", Operand: 2, HasOperand: true, Negated: true, Target: 4},
		Instruction{Op: OpPrint, Text: "two; or not"},
		Instruction{Op: OpLoopLeave, Begin: 0, Target: 6},
		Instruction{Op: OpRollDice, Sides: 4},
		Instruction{Op: OpLoopEnd, Begin: 0},
		Instruction{Op: OpStop},
	)
}

func TestImageRoundTrip(t *testing.T) {
	p := sampleProgram()
	data, err := MarshalProgram(p, "begin 3\n...")
	if err != nil {
		t.Fatalf("MarshalProgram: %v", err)
	}
	if !bytes.HasPrefix(data, ImageMagic) {
		t.Errorf("image does not start with magic")
	}

	got, src, err := UnmarshalProgram(data)
	if err != nil {
		t.Fatalf("UnmarshalProgram: %v", err)
	}
	if src != "begin 3\n..." {
		t.Errorf("source = %q", src)
	}
	if !reflect.DeepEqual(got.Instructions, p.Instructions) {
		t.Errorf("instructions differ after round trip:\n got %+v\nwant %+v", got.Instructions, p.Instructions)
	}
}

func TestImageDeterministic(t *testing.T) {
	a, err := MarshalProgram(sampleProgram(), "")
	if err != nil {
		t.Fatal(err)
	}
	b, err := MarshalProgram(sampleProgram(), "")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("encoding the same program twice gave different bytes")
	}

	h1, _ := ProgramHash(sampleProgram())
	p := sampleProgram()
	p.Instructions[2].Text = "three"
	h2, _ := ProgramHash(p)
	if h1 == h2 {
		t.Error("hash did not change when an operand changed")
	}
}

func TestUnmarshalRejects(t *testing.T) {
	good, err := MarshalProgram(sampleProgram(), "")
	if err != nil {
		t.Fatal(err)
	}
	bad := build(Instruction{Op: OpJump, Target: 9})
	badData, err := MarshalProgram(bad, "")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"no magic", []byte("nope"), "not a program image"},
		{"truncated", good[:len(good)-3], "unmarshal program"},
		{"invalid program", badData, "invalid image"},
	}
	for _, tt := range tests {
		_, _, err := UnmarshalProgram(tt.data)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: error = %v, want containing %q", tt.name, err, tt.want)
		}
	}
}

func TestDecompileRejectsBrokenChain(t *testing.T) {
	p := build(
		Instruction{Op: OpMoveForward},
		Instruction{Op: OpJump, Target: 2},
	)
	if _, err := Decompile(p); err == nil {
		t.Error("expected error for a jump outside an if chain")
	}
}
