package vm

import (
	"fmt"
	"strconv"
	"strings"
)

// Opcode identifies an instruction variant.
type Opcode uint8

const (
	OpInvalid Opcode = iota

	// Agent actions
	OpMoveForward
	OpTurnLeft
	OpTurnRight
	OpScan

	// Output
	OpPrint
	OpRollDice

	// Loops
	OpLoopBegin
	OpLoopEnd
	OpLoopLeave

	// Control flow
	OpConditional
	OpJump
	OpStop
)

// OpcodeInfo provides metadata about each opcode for disassembly and validation.
type OpcodeInfo struct {
	Name     string // Mnemonic used in listings
	Keyword  string // Source keyword that produces it (empty for synthesised ops)
	Branches bool   // True if Target is a jump address
}

var opcodeInfoTable = map[Opcode]OpcodeInfo{
	OpMoveForward: {"MOVE", "forward", false},
	OpTurnLeft:    {"LEFT", "left", false},
	OpTurnRight:   {"RIGHT", "right", false},
	OpScan:        {"SCAN", "scan", false},
	OpPrint:       {"PRINT", "say", false},
	OpRollDice:    {"ROLL", "roll", false},
	OpLoopBegin:   {"BEGIN", "begin", false},
	OpLoopEnd:     {"END", "end", false},
	OpLoopLeave:   {"LEAVE", "leave", true},
	OpConditional: {"IF", "if", true},
	OpJump:        {"JUMP", "", true},
	OpStop:        {"STOP", "stop", false},
}

// GetOpcodeInfo returns metadata for an opcode.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("OP_%02X", uint8(op))}
}

func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// Valid reports whether op is one of the defined instruction variants.
func (op Opcode) Valid() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// Instruction is one compiled action. Op selects the variant; only the
// operand fields belonging to that variant are meaningful.
//
// Line and Addr are stamped when the instruction is emitted and never
// change afterwards. Address operands (Begin, End, Target) are resolved by
// the compiler before the program is handed to a Machine.
type Instruction struct {
	Op   Opcode `cbor:"1,keyasint"`
	Line int    `cbor:"2,keyasint"` // 1-based source line
	Addr int    `cbor:"3,keyasint"` // index in Program.Instructions

	Text string `cbor:"4,keyasint,omitempty"` // OpPrint

	Count   int  `cbor:"5,keyasint,omitempty"` // OpLoopBegin iteration bound
	Forever bool `cbor:"6,keyasint,omitempty"` // OpLoopBegin without a bound
	End     int  `cbor:"7,keyasint,omitempty"` // OpLoopBegin: address of matching OpLoopEnd
	Begin   int  `cbor:"8,keyasint,omitempty"` // OpLoopEnd, OpLoopLeave: address of OpLoopBegin

	// Target is the jump address of OpJump, the false-jump address of
	// OpConditional and the exit address of OpLoopLeave.
	Target int `cbor:"9,keyasint,omitempty"`

	Cond       string `cbor:"10,keyasint,omitempty"` // OpConditional
	Operand    int    `cbor:"11,keyasint,omitempty"`
	HasOperand bool   `cbor:"12,keyasint,omitempty"`
	Negated    bool   `cbor:"13,keyasint,omitempty"`
	ElseIf     bool   `cbor:"14,keyasint,omitempty"` // continues an if chain

	Sides int `cbor:"15,keyasint,omitempty"` // OpRollDice
}

// Condition renders the condition of an OpConditional as source text.
func (inst Instruction) Condition() string {
	var sb strings.Builder
	if inst.Negated {
		sb.WriteString("not ")
	}
	sb.WriteString(inst.Cond)
	if inst.HasOperand {
		sb.WriteByte(' ')
		sb.WriteString(strconv.Itoa(inst.Operand))
	}
	return sb.String()
}

// Operands returns a compact operand description for listings.
func (inst Instruction) Operands() string {
	switch inst.Op {
	case OpPrint:
		return strconv.Quote(inst.Text)
	case OpRollDice:
		return fmt.Sprintf("sides=%d", inst.Sides)
	case OpLoopBegin:
		if inst.Forever {
			return fmt.Sprintf("times=forever end=%d", inst.End)
		}
		return fmt.Sprintf("times=%d end=%d", inst.Count, inst.End)
	case OpLoopEnd:
		return fmt.Sprintf("begin=%d jump=%d", inst.Begin, inst.Begin+1)
	case OpLoopLeave:
		return fmt.Sprintf("begin=%d jump=%d", inst.Begin, inst.Target)
	case OpConditional:
		s := fmt.Sprintf("%s jumponfalse=%d", inst.Condition(), inst.Target)
		if inst.ElseIf {
			s += " elseif"
		}
		return s
	case OpJump:
		return fmt.Sprintf("jump=%d", inst.Target)
	}
	return ""
}

func (inst Instruction) String() string {
	ops := inst.Operands()
	if ops == "" {
		return inst.Op.String()
	}
	return inst.Op.String() + " " + ops
}
