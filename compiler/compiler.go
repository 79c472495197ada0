// Package compiler turns rover program text into an address-resolved
// vm.Program.
//
// Forward jumps are resolved by address. Two stacks track open blocks: the
// loop stack holds the addresses of pending loop begins, the conditional
// stack holds the addresses of pending conditionals and else-jumps. Side
// tables keyed by address collect jumps that can only be patched when the
// closing keyword is seen.
package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/exomars/vm"
)

var log = commonlog.GetLogger("exomars.compiler")

type loopEntry struct {
	begin     int // address of the LoopBegin
	line      int
	condDepth int // conditional stack depth when the loop opened
}

type ifEntry struct {
	addr      int  // Conditional or Jump awaiting its target
	head      int  // address of the chain's opening if
	isElse    bool // addr is the Jump emitted by `else`
	line      int
	loopDepth int // loop stack depth when the chain opened
}

type compiler struct {
	prog  *vm.Program
	conds *vm.Registry
	line  int

	loops []loopEntry
	ifs   []ifEntry

	chainJumps map[int][]int // chain head -> jumps ending earlier branches
	leaves     map[int][]int // loop begin -> leave instructions
}

// Compile compiles src into a program, checking conditions against conds
// (the built-in registry when nil). On error the partial program is
// discarded and the error is a *SyntaxError.
func Compile(src string, conds *vm.Registry) (*vm.Program, error) {
	if conds == nil {
		conds = vm.DefaultRegistry()
	}
	c := &compiler{
		prog:       vm.NewProgram(),
		conds:      conds,
		chainJumps: make(map[int][]int),
		leaves:     make(map[int][]int),
	}

	for i, raw := range sourceLines(src) {
		c.line = i + 1
		for _, action := range normalizeLine(raw) {
			log.Debugf("compiling %q (line %d, loops=%d, ifs=%d)", action, c.line, len(c.loops), len(c.ifs))
			if err := c.compileAction(action); err != nil {
				return nil, err
			}
		}
	}

	if n := len(c.loops); n > 0 {
		return nil, &SyntaxError{Msg: "'begin' without an 'end'", Line: c.loops[n-1].line}
	}
	if n := len(c.ifs); n > 0 {
		return nil, &SyntaxError{Msg: "'if' without an 'endif'", Line: c.ifs[n-1].line}
	}
	if err := c.prog.Validate(); err != nil {
		return nil, fmt.Errorf("compiler: produced an invalid program: %w", err)
	}
	return c.prog, nil
}

func (c *compiler) errorf(format string, args ...any) error {
	return &SyntaxError{Msg: fmt.Sprintf(format, args...), Line: c.line}
}

func (c *compiler) emit(inst vm.Instruction) int {
	inst.Line = c.line
	return c.prog.Emit(inst)
}

func (c *compiler) compileAction(action string) error {
	keyword, rest := splitKeyword(action)

	switch keyword {
	case "forward", "move":
		return c.simple(keyword, rest, vm.OpMoveForward)
	case "turnleft", "left":
		return c.simple(keyword, rest, vm.OpTurnLeft)
	case "turnright", "right":
		return c.simple(keyword, rest, vm.OpTurnRight)
	case "scan":
		return c.simple(keyword, rest, vm.OpScan)
	case "stop":
		return c.simple(keyword, rest, vm.OpStop)
	case "say", "print":
		return c.compilePrint(keyword, rest)
	case "begin", "repeat":
		return c.compileBegin(keyword, rest)
	case "end":
		return c.compileEnd(rest)
	case "leave":
		return c.compileLeave(rest)
	case "roll":
		return c.compileRoll(rest)
	case "if":
		return c.compileIf(rest)
	case "else":
		if rest == "" {
			return c.compileElse()
		}
		if kw, cond := splitKeyword(rest); kw == "if" {
			return c.compileElseIf(cond)
		}
	case "endif":
		return c.compileEndif(rest)
	}
	return c.errorf("unknown action: %s", action)
}

func (c *compiler) noArguments(keyword, rest string) error {
	if rest != "" {
		return c.errorf("'%s' takes no arguments", keyword)
	}
	return nil
}

func (c *compiler) simple(keyword, rest string, op vm.Opcode) error {
	if err := c.noArguments(keyword, rest); err != nil {
		return err
	}
	c.emit(vm.Instruction{Op: op})
	return nil
}

// compilePrint takes the text between the first pair of double quotes.
func (c *compiler) compilePrint(keyword, rest string) error {
	if !strings.HasPrefix(rest, `"`) {
		return c.errorf("error in '%s' action: the text must be surrounded by quotes", keyword)
	}
	end := strings.IndexByte(rest[1:], '"')
	if end < 0 {
		return c.errorf("error in '%s' action: unterminated quoted text", keyword)
	}
	text := rest[1 : end+1]
	if trailing := strings.TrimSpace(rest[end+2:]); trailing != "" {
		return c.errorf("error in '%s' action: unexpected %q after the quoted text", keyword, trailing)
	}
	c.emit(vm.Instruction{Op: vm.OpPrint, Text: text})
	return nil
}

// optionalCount parses an optional non-negative integer operand.
func (c *compiler) optionalCount(keyword, rest string) (n int, present bool, err error) {
	fields := strings.Fields(rest)
	switch len(fields) {
	case 0:
		return 0, false, nil
	case 1:
		n, convErr := strconv.Atoi(fields[0])
		if convErr != nil {
			return 0, false, c.errorf("'%s' expects a whole number, got %q", keyword, fields[0])
		}
		if n < 0 {
			return 0, false, c.errorf("'%s' needs a number that is not negative", keyword)
		}
		return n, true, nil
	}
	return 0, false, c.errorf("'%s' takes at most one number", keyword)
}

func (c *compiler) compileBegin(keyword, rest string) error {
	n, present, err := c.optionalCount(keyword, rest)
	if err != nil {
		return err
	}
	addr := c.emit(vm.Instruction{Op: vm.OpLoopBegin, Count: n, Forever: !present, End: -1})
	c.loops = append(c.loops, loopEntry{begin: addr, line: c.line, condDepth: len(c.ifs)})
	return nil
}

func (c *compiler) compileEnd(rest string) error {
	if err := c.noArguments("end", rest); err != nil {
		return err
	}
	if len(c.loops) == 0 {
		return c.errorf("'end' without a 'begin'")
	}
	top := c.loops[len(c.loops)-1]
	if top.condDepth != len(c.ifs) {
		return c.errorf("'end' inside an unclosed 'if'")
	}
	c.loops = c.loops[:len(c.loops)-1]

	end := c.emit(vm.Instruction{Op: vm.OpLoopEnd, Begin: top.begin})
	c.prog.At(top.begin).End = end
	for _, addr := range c.leaves[top.begin] {
		c.prog.At(addr).Target = end + 1
	}
	delete(c.leaves, top.begin)
	return nil
}

func (c *compiler) compileLeave(rest string) error {
	if err := c.noArguments("leave", rest); err != nil {
		return err
	}
	if len(c.loops) == 0 {
		return c.errorf("'leave' without a 'begin'")
	}
	begin := c.loops[len(c.loops)-1].begin
	addr := c.emit(vm.Instruction{Op: vm.OpLoopLeave, Begin: begin, Target: -1})
	c.leaves[begin] = append(c.leaves[begin], addr)
	return nil
}

func (c *compiler) compileRoll(rest string) error {
	sides, present, err := c.optionalCount("roll", rest)
	if err != nil {
		return err
	}
	if !present {
		sides = 6
	}
	if sides < 1 {
		return c.errorf("'roll' needs a dice with at least one side")
	}
	c.emit(vm.Instruction{Op: vm.OpRollDice, Sides: sides})
	return nil
}

func (c *compiler) compileIf(rest string) error {
	inst, err := c.parseCondition("if", rest)
	if err != nil {
		return err
	}
	addr := c.emit(inst)
	c.ifs = append(c.ifs, ifEntry{addr: addr, head: addr, line: c.line, loopDepth: len(c.loops)})
	return nil
}

// popBranch pops the innermost pending branch for an else/else if/endif.
func (c *compiler) popBranch(keyword string) (ifEntry, error) {
	if len(c.ifs) == 0 {
		return ifEntry{}, c.errorf("'%s' without an 'if'", keyword)
	}
	top := c.ifs[len(c.ifs)-1]
	if top.loopDepth != len(c.loops) {
		return ifEntry{}, c.errorf("'%s' inside an unclosed 'begin'", keyword)
	}
	c.ifs = c.ifs[:len(c.ifs)-1]
	return top, nil
}

func (c *compiler) compileElseIf(rest string) error {
	prev, err := c.popBranch("else if")
	if err != nil {
		return err
	}
	if prev.isElse {
		return c.errorf("'else if' after 'else'")
	}
	inst, err := c.parseCondition("else if", rest)
	if err != nil {
		return err
	}
	inst.ElseIf = true

	jump := c.emit(vm.Instruction{Op: vm.OpJump, Target: -1})
	c.chainJumps[prev.head] = append(c.chainJumps[prev.head], jump)
	c.prog.At(prev.addr).Target = jump + 1

	addr := c.emit(inst)
	c.ifs = append(c.ifs, ifEntry{addr: addr, head: prev.head, line: c.line, loopDepth: prev.loopDepth})
	return nil
}

func (c *compiler) compileElse() error {
	prev, err := c.popBranch("else")
	if err != nil {
		return err
	}
	if prev.isElse {
		return c.errorf("'else' after 'else'")
	}
	jump := c.emit(vm.Instruction{Op: vm.OpJump, Target: -1})
	c.prog.At(prev.addr).Target = jump + 1
	c.ifs = append(c.ifs, ifEntry{addr: jump, head: prev.head, isElse: true, line: c.line, loopDepth: prev.loopDepth})
	return nil
}

func (c *compiler) compileEndif(rest string) error {
	if err := c.noArguments("endif", rest); err != nil {
		return err
	}
	top, err := c.popBranch("endif")
	if err != nil {
		return err
	}
	here := c.prog.Len()
	c.prog.At(top.addr).Target = here
	for _, addr := range c.chainJumps[top.head] {
		c.prog.At(addr).Target = here
	}
	delete(c.chainJumps, top.head)
	return nil
}

// parseCondition parses `[not] <name> [value]` into a Conditional.
func (c *compiler) parseCondition(keyword, text string) (vm.Instruction, error) {
	inst := vm.Instruction{Op: vm.OpConditional, Target: -1}
	fields := strings.Fields(text)
	if len(fields) > 0 && fields[0] == "not" {
		inst.Negated = true
		fields = fields[1:]
	}
	if len(fields) == 0 {
		return inst, c.errorf("'%s' needs a condition", keyword)
	}

	name, args := fields[0], fields[1:]
	cond, ok := c.conds.Lookup(name)
	if !ok {
		return inst, c.errorf("unknown condition: %s", name)
	}
	inst.Cond = name

	if !cond.TakesOperand {
		if len(args) > 0 {
			return inst, c.errorf("condition '%s' does not take a value", name)
		}
		return inst, nil
	}
	if len(args) != 1 {
		return inst, c.errorf("condition '%s' needs exactly one integer value", name)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return inst, c.errorf("condition '%s' needs exactly one integer value", name)
	}
	inst.Operand = n
	inst.HasOperand = true
	return inst, nil
}
