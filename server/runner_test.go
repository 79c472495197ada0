package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chazu/exomars/compiler"
	"github.com/chazu/exomars/vm"
	"github.com/chazu/exomars/world"
)

func newTestWorker(t *testing.T, src string) (*Worker, *vm.Transcript, *world.Rover) {
	t.Helper()
	grid := world.NewGrid(5, 5, nil)
	rover := world.NewRover(grid, world.Point{}, vm.East, world.WithLifeChance(0))
	out := &vm.Transcript{}
	w := NewWorker(vm.New(rover, out, vm.WithCompiler(compiler.Compile)))
	t.Cleanup(w.Stop)
	if src != "" {
		if err := w.Compile(context.Background(), src); err != nil {
			t.Fatalf("Compile: %v", err)
		}
	}
	return w, out, rover
}

func TestWorkerRecoversPanic(t *testing.T) {
	w, _, _ := newTestWorker(t, "")
	err := w.Do(context.Background(), func(*vm.Machine) error { panic("boom") })
	if err == nil || err.Error() != "panic: boom" {
		t.Errorf("Do error = %v, want panic: boom", err)
	}
	// The worker keeps serving after a panic.
	if _, err := w.State(context.Background()); err != nil {
		t.Errorf("State after panic: %v", err)
	}
}

func TestWorkerStopped(t *testing.T) {
	grid := world.NewGrid(1, 1, nil)
	w := NewWorker(vm.New(world.NewRover(grid, world.Point{}, vm.North), nil))
	w.Stop()
	if err := w.Do(context.Background(), func(*vm.Machine) error { return nil }); !errors.Is(err, ErrWorkerStopped) {
		t.Errorf("Do after Stop = %v, want ErrWorkerStopped", err)
	}
}

func TestWorkerSerializesAccess(t *testing.T) {
	w, _, rover := newTestWorker(t, "begin 100\nforward\nright\nend")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				w.Step(context.Background())
			}
		}()
	}
	wg.Wait()

	s, err := w.State(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if s.Steps != 200 {
		t.Errorf("Steps = %d, want 200", s.Steps)
	}
	if p := rover.Position(); !rover.Grid().Inside(p) {
		t.Errorf("rover left the grid: %v", p)
	}
}

func TestRunnerRunsToEnd(t *testing.T) {
	w, out, rover := newTestWorker(t, "begin 3\nforward\nend\nsay \"there\"")
	var seen int
	r := &Runner{Worker: w, OnStep: func(vm.State) { seen++ }}

	s, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !s.Halted || s.Reason != vm.HaltEnd {
		t.Errorf("state = %+v, want halted at end", s)
	}
	if rover.Position() != (world.Point{X: 3, Y: 0}) {
		t.Errorf("rover at %v, want (3,0)", rover.Position())
	}
	if seen != s.Steps {
		t.Errorf("OnStep called %d times for %d steps", seen, s.Steps)
	}
	lines := out.Lines()
	if len(lines) != 2 || lines[0] != "Loop finished after 3 iterations" || lines[1] != "there" {
		t.Errorf("output = %q", lines)
	}
}

func TestRunnerStepLimit(t *testing.T) {
	w, _, _ := newTestWorker(t, "begin\nleft\nend")
	r := &Runner{Worker: w, MaxSteps: 50}

	s, err := r.Run(context.Background())
	if !errors.Is(err, ErrStepLimit) {
		t.Fatalf("Run error = %v, want ErrStepLimit", err)
	}
	if s.Steps != 50 {
		t.Errorf("Steps = %d, want 50", s.Steps)
	}
	if s.Reason != vm.HaltRequested {
		t.Errorf("Reason = %v, want requested", s.Reason)
	}
}

func TestRunnerCancel(t *testing.T) {
	w, _, _ := newTestWorker(t, "begin\nleft\nend")
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		Worker: w,
		Delay:  time.Millisecond,
		OnStep: func(s vm.State) {
			if s.Steps == 10 {
				cancel()
			}
		},
	}

	s, err := r.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	if s.Steps != 10 {
		t.Errorf("Steps = %d, want 10", s.Steps)
	}
	if !s.Halted {
		t.Error("machine not halted after cancel")
	}
}

func TestRunnerStopRequest(t *testing.T) {
	w, _, _ := newTestWorker(t, "begin\nforward\nleft\nend")
	r := &Runner{
		Worker: w,
		OnStep: func(s vm.State) {
			if s.Steps == 5 {
				w.RequestStop(context.Background())
			}
		},
	}

	s, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.Reason != vm.HaltRequested || s.Steps != 5 {
		t.Errorf("state = %+v, want stopped after 5 steps", s)
	}
}

func TestRunnerNoProgram(t *testing.T) {
	w, _, _ := newTestWorker(t, "")
	if err := w.Compile(context.Background(), "fly"); err == nil {
		t.Fatal("expected compile error")
	}
	r := &Runner{Worker: w}
	if _, err := r.Run(context.Background()); !errors.Is(err, vm.ErrNoProgram) {
		t.Errorf("Run error = %v, want ErrNoProgram", err)
	}
}
