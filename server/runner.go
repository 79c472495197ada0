package server

import (
	"context"
	"errors"
	"time"

	"github.com/chazu/exomars/vm"
)

// ErrStepLimit is returned by Run when a program is still running after
// MaxSteps instructions.
var ErrStepLimit = errors.New("step limit reached")

// Runner steps a machine until it halts. Stop requests, cancellation and
// the step limit all take effect between instructions.
type Runner struct {
	Worker *Worker

	// Delay pauses between steps, for animation.
	Delay time.Duration

	// MaxSteps bounds the number of instructions Run executes; 0 means no
	// limit.
	MaxSteps int

	// OnStep is called with the state after every step.
	OnStep func(vm.State)
}

// Run steps until the machine halts, ctx is done or MaxSteps is reached.
// It returns the final state. A fault, ctx.Err() or ErrStepLimit is
// returned as the error; in the last two cases the machine is asked to
// stop so that a later Step does nothing.
func (r *Runner) Run(ctx context.Context) (vm.State, error) {
	s, err := r.Worker.State(ctx)
	if err != nil {
		return s, err
	}
	if s.Reason == vm.HaltNoProgram {
		return s, vm.ErrNoProgram
	}

	var timer *time.Timer
	if r.Delay > 0 {
		timer = time.NewTimer(r.Delay)
		defer timer.Stop()
	}

	for n := 0; !s.Halted; n++ {
		if r.MaxSteps > 0 && n >= r.MaxSteps {
			log.Warningf("stopping after %d steps", n)
			return r.halt(s, ErrStepLimit)
		}
		if err := ctx.Err(); err != nil {
			return r.halt(s, err)
		}

		s, err = r.Worker.Step(ctx)
		if r.OnStep != nil {
			r.OnStep(s)
		}
		if err != nil {
			return s, err
		}

		if timer != nil && !s.Halted {
			timer.Reset(r.Delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				return r.halt(s, ctx.Err())
			}
		}
	}
	return s, nil
}

func (r *Runner) halt(s vm.State, cause error) (vm.State, error) {
	// The caller's ctx may already be done.
	if err := r.Worker.RequestStop(context.Background()); err != nil {
		return s, err
	}
	if st, err := r.Worker.State(context.Background()); err == nil {
		s = st
	}
	return s, cause
}
