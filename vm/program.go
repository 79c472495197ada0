package vm

import (
	"fmt"
	"strings"
)

// FaultError reports an internal-consistency fault: a program whose
// addresses or operands could not have come out of a correct compile. It is
// never the user's fault and is kept distinct from syntax errors.
type FaultError struct {
	Addr int
	Msg  string
}

func (e *FaultError) Error() string {
	if e.Addr < 0 {
		return "vm fault: " + e.Msg
	}
	return fmt.Sprintf("vm fault at %d: %s", e.Addr, e.Msg)
}

func faultf(addr int, format string, args ...any) *FaultError {
	return &FaultError{Addr: addr, Msg: fmt.Sprintf(format, args...)}
}

// Program is an ordered, address-resolved instruction sequence. Its address
// space is [0, Len()); a jump to Len() falls off the end and halts.
type Program struct {
	Instructions []Instruction
}

// NewProgram creates an empty program.
func NewProgram() *Program {
	return &Program{Instructions: make([]Instruction, 0, 32)}
}

// Emit appends an instruction, stamping its address, and returns that address.
func (p *Program) Emit(inst Instruction) int {
	addr := len(p.Instructions)
	inst.Addr = addr
	p.Instructions = append(p.Instructions, inst)
	return addr
}

// Len returns the number of instructions.
func (p *Program) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Instructions)
}

// At returns a pointer to the instruction at addr for patching.
// Panics if addr is out of range.
func (p *Program) At(addr int) *Instruction {
	return &p.Instructions[addr]
}

// Validate checks every address operand and loop pairing. A program produced
// by a successful compile always validates; images loaded from disk may not.
func (p *Program) Validate() error {
	n := p.Len()
	inRange := func(a int) bool { return a >= 0 && a <= n }
	opAt := func(a int) Opcode {
		if a < 0 || a >= n {
			return OpInvalid
		}
		return p.Instructions[a].Op
	}

	for i, inst := range p.Instructions {
		if inst.Addr != i {
			return faultf(i, "instruction records address %d", inst.Addr)
		}
		if !inst.Op.Valid() {
			return faultf(i, "unknown opcode %d", inst.Op)
		}
		switch inst.Op {
		case OpJump:
			if !inRange(inst.Target) {
				return faultf(i, "jump target %d outside [0,%d]", inst.Target, n)
			}
		case OpConditional:
			if inst.Cond == "" {
				return faultf(i, "conditional without a condition")
			}
			if !inRange(inst.Target) {
				return faultf(i, "false-jump target %d outside [0,%d]", inst.Target, n)
			}
		case OpLoopBegin:
			if inst.Count < 0 {
				return faultf(i, "negative loop bound %d", inst.Count)
			}
			if opAt(inst.End) != OpLoopEnd || p.Instructions[inst.End].Begin != i {
				return faultf(i, "loop begin not paired with end at %d", inst.End)
			}
		case OpLoopEnd:
			if opAt(inst.Begin) != OpLoopBegin || p.Instructions[inst.Begin].End != i {
				return faultf(i, "loop end not paired with begin at %d", inst.Begin)
			}
		case OpLoopLeave:
			if opAt(inst.Begin) != OpLoopBegin {
				return faultf(i, "leave refers to %d, which is not a loop begin", inst.Begin)
			}
			if inst.Target != p.Instructions[inst.Begin].End+1 {
				return faultf(i, "leave exits to %d, loop ends at %d", inst.Target, p.Instructions[inst.Begin].End)
			}
		case OpRollDice:
			if inst.Sides < 1 {
				return faultf(i, "dice with %d sides", inst.Sides)
			}
		}
	}
	return nil
}

// Disassemble returns a human-readable listing of the program.
func (p *Program) Disassemble() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("; %d instructions\n", p.Len()))
	for _, inst := range p.Instructions {
		sb.WriteString(fmt.Sprintf("%4d  %-40s ; line %d\n", inst.Addr, inst.String(), inst.Line))
	}
	return sb.String()
}
