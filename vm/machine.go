package vm

import (
	"errors"
	"math/rand/v2"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("exomars.vm")

var (
	// ErrNoCompiler is returned by Compile when no compiler has been installed.
	ErrNoCompiler = errors.New("vm: no compiler installed")
	// ErrNoProgram is returned by drivers asked to run a machine that has
	// nothing compiled.
	ErrNoProgram = errors.New("vm: no program")
)

// CompileFunc turns program text into a Program using the given conditions.
// The compiler package provides one; it is injected to keep vm free of
// a dependency on it.
type CompileFunc func(src string, conds *Registry) (*Program, error)

// LineError is implemented by compile errors that know their source line.
type LineError interface {
	error
	Message() string
	LineNumber() int
}

// DiagnosticSink receives compile failures as (message, line).
// line is 0 when the error carries no position.
type DiagnosticSink func(message string, line int)

// HaltReason records why a machine stopped running.
type HaltReason uint8

const (
	HaltNone      HaltReason = iota // still running
	HaltEnd                         // ran off the end of the program
	HaltStop                        // executed a stop instruction
	HaltRequested                   // Stop was called by the driver
	HaltFault                       // internal-consistency fault
	HaltNoProgram                   // nothing compiled, or the last compile failed
)

var haltReasonNames = [...]string{"running", "end", "stop", "requested", "fault", "no-program"}

func (r HaltReason) String() string {
	if int(r) < len(haltReasonNames) {
		return haltReasonNames[r]
	}
	return "unknown"
}

// Frame is the run-time record of one active loop.
type Frame struct {
	Begin     int  // address of the LoopBegin that pushed it
	Remaining int  // iterations left, counting the current one
	Forever   bool // unbounded loop; Remaining is unused
	Iteration int  // completed passes through the body
}

// State is a snapshot of a machine's run registers.
type State struct {
	PC       int
	NextLine int // source line of the instruction at PC, 0 if none
	LastLine int // source line of the last executed instruction
	Frames   []Frame
	Dice     int
	Steps    int
	Halted   bool
	Reason   HaltReason
}

// Machine holds a compiled program and its run state, and executes it one
// instruction per Step. A Machine is not safe for concurrent use; drivers
// serialise Compile, Step and Stop (see server.Worker).
type Machine struct {
	agent   Agent
	out     Output
	conds   *Registry
	rand    Random
	compile CompileFunc
	diag    DiagnosticSink

	prog     *Program
	pc       int
	frames   []Frame
	dice     int
	steps    int
	halted   bool
	reason   HaltReason
	lastLine int
}

// Option configures a Machine.
type Option func(*Machine)

// WithConditions replaces the default condition registry.
func WithConditions(r *Registry) Option {
	return func(m *Machine) { m.conds = r }
}

// WithRandom sets the source used for dice rolls and coin tosses.
func WithRandom(r Random) Option {
	return func(m *Machine) { m.rand = r }
}

// WithCompiler installs the compiler used by Compile.
func WithCompiler(fn CompileFunc) Option {
	return func(m *Machine) { m.compile = fn }
}

// WithDiagnostics sets the sink that receives compile failures.
func WithDiagnostics(sink DiagnosticSink) Option {
	return func(m *Machine) { m.diag = sink }
}

type globalRandom struct{}

func (globalRandom) IntN(n int) int { return rand.IntN(n) }

// New creates a machine driving agent and writing to out. The agent is
// supplied, not owned: recompiling never touches it.
func New(agent Agent, out Output, opts ...Option) *Machine {
	m := &Machine{
		agent:  agent,
		out:    out,
		conds:  DefaultRegistry(),
		rand:   globalRandom{},
		halted: true,
		reason: HaltNoProgram,
	}
	if m.out == nil {
		m.out = discardOutput{}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// UseCompiler installs the compiler used by Compile.
func (m *Machine) UseCompiler(fn CompileFunc) {
	m.compile = fn
}

// Conditions returns the machine's condition registry.
func (m *Machine) Conditions() *Registry {
	return m.conds
}

// Compile replaces the program with one compiled from src and resets all
// run state. On failure nothing is runnable afterwards and the error is
// also reported to the diagnostic sink.
func (m *Machine) Compile(src string) error {
	if m.compile == nil {
		return ErrNoCompiler
	}
	prog, err := m.compile(src, m.conds)
	if err != nil {
		m.install(nil)
		m.report(err)
		return err
	}
	return m.Load(prog)
}

func (m *Machine) report(err error) {
	if m.diag == nil {
		return
	}
	var le LineError
	if errors.As(err, &le) {
		m.diag(le.Message(), le.LineNumber())
		return
	}
	m.diag(err.Error(), 0)
}

// Load validates p and installs it, resetting all run state. An invalid
// program is rejected and leaves the machine without a program.
func (m *Machine) Load(p *Program) error {
	if err := p.Validate(); err != nil {
		m.install(nil)
		return err
	}
	m.install(p)
	log.Debugf("loaded program of %d instructions", p.Len())
	return nil
}

func (m *Machine) install(p *Program) {
	m.prog = p
	m.Reset()
}

// Reset rewinds the current program to its first instruction and clears the
// loop frames, dice register, halt flag and step counter.
func (m *Machine) Reset() {
	m.pc = 0
	m.frames = m.frames[:0]
	m.dice = 0
	m.steps = 0
	m.lastLine = 0
	m.halted = false
	m.reason = HaltNone
	switch {
	case m.prog == nil:
		m.halted, m.reason = true, HaltNoProgram
	case m.prog.Len() == 0:
		m.halted, m.reason = true, HaltEnd
	}
}

// Program returns the installed program, or nil.
func (m *Machine) Program() *Program {
	return m.prog
}

// HasProgram reports whether a non-empty program is installed.
func (m *Machine) HasProgram() bool {
	return m.prog.Len() > 0
}

// Halted reports whether further steps would be no-ops.
func (m *Machine) Halted() bool {
	return m.halted
}

// Stop requests a halt. It takes effect at the next step boundary; the
// program is not rewound.
func (m *Machine) Stop() {
	if m.halted {
		return
	}
	m.halted = true
	m.reason = HaltRequested
}

// State returns a snapshot of the run registers.
func (m *Machine) State() State {
	s := State{
		PC:       m.pc,
		LastLine: m.lastLine,
		Frames:   append([]Frame(nil), m.frames...),
		Dice:     m.dice,
		Steps:    m.steps,
		Halted:   m.halted,
		Reason:   m.reason,
	}
	if m.pc >= 0 && m.pc < m.prog.Len() {
		s.NextLine = m.prog.Instructions[m.pc].Line
	}
	return s
}

// Step executes exactly one instruction. It is a no-op once the machine has
// halted. A FaultError halts the machine and is returned.
func (m *Machine) Step() error {
	if m.halted {
		return nil
	}
	if m.pc < 0 || m.pc >= m.prog.Len() {
		m.halt(HaltEnd)
		return nil
	}

	inst := m.prog.Instructions[m.pc]
	log.Debugf("running %d: %s", m.pc, inst)
	t, err := m.exec(inst)
	m.steps++
	m.lastLine = inst.Line
	if err != nil {
		return m.fault(inst.Addr, err)
	}

	switch t.kind {
	case advance:
		m.pc++
	case jump:
		if t.addr < 0 || t.addr > m.prog.Len() {
			return m.fault(inst.Addr, faultf(inst.Addr, "jump to %d outside [0,%d]", t.addr, m.prog.Len()))
		}
		log.Debugf("  jump to %d", t.addr)
		m.pc = t.addr
	case halt:
		m.halt(HaltStop)
		return nil
	}

	if m.pc >= m.prog.Len() {
		m.halt(HaltEnd)
	}
	return nil
}

func (m *Machine) halt(reason HaltReason) {
	m.halted = true
	m.reason = reason
}

func (m *Machine) fault(addr int, err error) error {
	m.halt(HaltFault)
	var fe *FaultError
	if errors.As(err, &fe) {
		if fe.Addr < 0 {
			fe.Addr = addr
		}
		log.Errorf("%s", fe)
		return fe
	}
	fe = &FaultError{Addr: addr, Msg: err.Error()}
	log.Errorf("%s", fe)
	return fe
}
