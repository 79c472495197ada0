package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/chazu/exomars/vm"
)

// ErrWorkerStopped is returned by Do once the worker has been stopped.
var ErrWorkerStopped = errors.New("machine worker stopped")

// request represents a unit of work to be executed on the machine goroutine.
type request struct {
	fn   func(*vm.Machine) error
	done chan error
}

// Worker serializes all machine access through a single goroutine.
// A Machine is not safe for concurrent use; compile, step and stop
// requests from drivers and editors must all go through the worker.
type Worker struct {
	machine  *vm.Machine
	requests chan request
	quit     chan struct{}
}

// NewWorker creates a Worker and starts the processing goroutine.
func NewWorker(m *vm.Machine) *Worker {
	w := &Worker{
		machine:  m,
		requests: make(chan request, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

// loop processes requests sequentially on a dedicated goroutine.
func (w *Worker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs a function on the machine, recovering from panics.
func (w *Worker) execute(fn func(*vm.Machine) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("panic on machine goroutine: %v", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(w.machine)
}

// Do submits fn for execution on the machine goroutine and blocks until it
// completes or ctx is done. A request already accepted always runs to
// completion, so an in-flight step is never cut short.
func (w *Worker) Do(ctx context.Context, fn func(*vm.Machine) error) error {
	req := request{fn: fn, done: make(chan error, 1)}
	select {
	case w.requests <- req:
	case <-w.quit:
		return ErrWorkerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-w.quit:
		return ErrWorkerStopped
	}
}

// Compile compiles src on the machine goroutine.
func (w *Worker) Compile(ctx context.Context, src string) error {
	return w.Do(ctx, func(m *vm.Machine) error { return m.Compile(src) })
}

// Step runs one instruction and returns the state after it.
func (w *Worker) Step(ctx context.Context) (vm.State, error) {
	var s vm.State
	err := w.Do(ctx, func(m *vm.Machine) error {
		err := m.Step()
		s = m.State()
		return err
	})
	return s, err
}

// RequestStop asks the machine to halt at the next step boundary.
func (w *Worker) RequestStop(ctx context.Context) error {
	return w.Do(ctx, func(m *vm.Machine) error {
		m.Stop()
		return nil
	})
}

// State returns a snapshot of the machine's registers.
func (w *Worker) State(ctx context.Context) (vm.State, error) {
	var s vm.State
	err := w.Do(ctx, func(m *vm.Machine) error {
		s = m.State()
		return nil
	})
	return s, err
}

// Stop shuts down the worker goroutine.
func (w *Worker) Stop() {
	close(w.quit)
}
