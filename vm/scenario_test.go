package vm_test

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/chazu/exomars/compiler"
	"github.com/chazu/exomars/vm"
	"github.com/chazu/exomars/world"
)

type countingAgent struct {
	moves, lefts, scans int
	blocked             bool
	unscanned           int
}

func (a *countingAgent) MoveForward() error {
	a.moves++
	if a.unscanned > 0 {
		a.unscanned--
	}
	return nil
}
func (a *countingAgent) TurnLeft()               { a.lefts++ }
func (a *countingAgent) TurnRight()              {}
func (a *countingAgent) IsBlocked() bool         { return a.blocked }
func (a *countingAgent) Direction() vm.Direction { return vm.East }
func (a *countingAgent) TriggerScan()            { a.scans++ }
func (a *countingAgent) IsFacingScanned() bool   { return false }
func (a *countingAgent) IsOnScanned() bool       { return false }
func (a *countingAgent) UnscannedCount() int     { return a.unscanned }

type sixes struct{}

func (sixes) IntN(n int) int { return n - 1 }

func newMachine(t *testing.T, agent vm.Agent, src string) (*vm.Machine, *vm.Transcript) {
	t.Helper()
	out := &vm.Transcript{}
	m := vm.New(agent, out, vm.WithCompiler(compiler.Compile), vm.WithRandom(sixes{}))
	if err := m.Compile(src); err != nil {
		t.Fatalf("Compile(%q): %v", src, err)
	}
	return m, out
}

func run(m *vm.Machine, limit int) {
	for i := 0; i < limit && !m.Halted(); i++ {
		m.Step()
	}
}

func TestScenarioStraightLine(t *testing.T) {
	agent := &countingAgent{}
	m, _ := newMachine(t, agent, "forward; forward; left; scan")
	run(m, 100)

	if agent.moves != 2 || agent.lefts != 1 || agent.scans != 1 {
		t.Errorf("moves=%d lefts=%d scans=%d, want 2/1/1", agent.moves, agent.lefts, agent.scans)
	}
	if s := m.State(); !s.Halted || s.PC != 4 {
		t.Errorf("state = %+v, want halted at 4", s)
	}
	for i, inst := range m.Program().Instructions {
		if inst.Line != 1 {
			t.Errorf("instruction %d has line %d, want 1", i, inst.Line)
		}
	}
}

func TestScenarioStopWhenBlocked(t *testing.T) {
	agent := &countingAgent{blocked: true}
	m, out := newMachine(t, agent, "if blocked\nstop\nendif\nforward")
	run(m, 100)

	if s := m.State(); s.Reason != vm.HaltStop {
		t.Errorf("Reason = %v, want stop", s.Reason)
	}
	if agent.moves != 0 {
		t.Error("forward ran after stop")
	}
	lines := out.Lines()
	if len(lines) != 1 || !strings.HasPrefix(lines[0], "Run stopped after") {
		t.Errorf("output = %q, want a stop summary", lines)
	}
}

func TestScenarioCountedLoop(t *testing.T) {
	agent := &countingAgent{}
	m, _ := newMachine(t, agent, "begin 2\nforward\nend")
	run(m, 1000)

	if !m.Halted() {
		t.Fatal("loop did not terminate")
	}
	if agent.moves != 2 {
		t.Errorf("moves = %d, want 2", agent.moves)
	}
}

func TestScenarioLucky(t *testing.T) {
	m, out := newMachine(t, &countingAgent{}, "roll 6\nif rolled 6\nsay \"lucky\"\nelse\nsay \"unlucky\"\nendif")
	run(m, 100)

	want := []string{"Rolled a 6", "lucky"}
	if got := out.Lines(); !reflect.DeepEqual(got, want) {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestScenarioLeaveWhenAllScanned(t *testing.T) {
	agent := &countingAgent{unscanned: 7}
	m, out := newMachine(t, agent, "begin\nforward\nif allscanned\nleave\nendif\nend")
	run(m, 100000)

	if s := m.State(); !s.Halted || s.Reason != vm.HaltEnd {
		t.Fatalf("state = %+v, want halted at end", s)
	}
	if agent.moves != 7 {
		t.Errorf("moves = %d, want 7", agent.moves)
	}
	for _, line := range out.Lines() {
		if strings.HasPrefix(line, "Loop finished") {
			t.Errorf("loop ended by exhaustion: %q", line)
		}
	}
}

func TestScenarioEndWithoutBegin(t *testing.T) {
	var diag []string
	m := vm.New(&countingAgent{}, nil,
		vm.WithCompiler(compiler.Compile),
		vm.WithDiagnostics(func(msg string, line int) {
			diag = append(diag, msg)
			if line != 1 {
				t.Errorf("diagnostic line = %d, want 1", line)
			}
		}),
	)
	err := m.Compile("end")

	var se *compiler.SyntaxError
	if !errors.As(err, &se) {
		t.Fatalf("Compile error = %v, want *SyntaxError", err)
	}
	if se.Line != 1 {
		t.Errorf("Line = %d, want 1", se.Line)
	}
	if m.HasProgram() || !m.Halted() {
		t.Error("machine runnable after failed compile")
	}
	if len(diag) != 1 || diag[0] != "'end' without a 'begin'" {
		t.Errorf("diagnostics = %q", diag)
	}
}

func TestElseIfChainRunsOneBranch(t *testing.T) {
	src := `
if false
	say "first"
else if true
	say "second"
else if true
	say "third"
else
	say "fourth"
endif
say "after"`
	m, out := newMachine(t, &countingAgent{}, src)
	run(m, 100)

	want := []string{"second", "after"}
	if got := out.Lines(); !reflect.DeepEqual(got, want) {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestRecompileResetsState(t *testing.T) {
	agent := &countingAgent{}
	m, _ := newMachine(t, agent, "roll 6\nbegin 5\nforward\nend")
	run(m, 3)
	if s := m.State(); s.Dice != 6 || len(s.Frames) != 1 {
		t.Fatalf("unexpected state before recompile: %+v", s)
	}

	if err := m.Compile("left"); err != nil {
		t.Fatal(err)
	}
	s := m.State()
	if s.PC != 0 || s.Dice != 0 || s.Steps != 0 || len(s.Frames) != 0 || s.Halted {
		t.Errorf("state after recompile = %+v", s)
	}
	if agent.moves != 1 {
		t.Errorf("agent was touched by recompile: moves=%d", agent.moves)
	}
}

func TestRoverExploresWorld(t *testing.T) {
	grid := world.NewGrid(3, 3, []world.Point{{X: 1, Y: 1}})
	var reports []string
	rover := world.NewRover(grid, world.Point{}, vm.East,
		world.WithLifeChance(0),
		world.WithReporter(func(s string) { reports = append(reports, s) }),
	)
	// Walk the ring around the central obstacle, scanning each cell.
	src := `
begin
	scan
	if allscanned
		leave
	endif
	if blocked
		right
	endif
	forward
end
say "done"`
	m, out := newMachine(t, rover, src)
	run(m, 10000)

	if grid.Unscanned() != 0 {
		t.Errorf("unscanned = %d, want 0\n%s", grid.Unscanned(), rover.Render())
	}
	if len(reports) != 8 {
		t.Errorf("scan reports = %d, want 8", len(reports))
	}
	lines := out.Lines()
	if len(lines) == 0 || lines[len(lines)-1] != "done" {
		t.Errorf("output = %q", lines)
	}
}
