package vm

import (
	"errors"
	"sync"
)

// Direction is the heading of an agent on the grid.
type Direction uint8

const (
	North Direction = iota
	East
	South
	West
)

var directionNames = [...]string{"N", "E", "S", "W"}

func (d Direction) String() string {
	if int(d) < len(directionNames) {
		return directionNames[d]
	}
	return "?"
}

// Left returns the heading after a quarter turn anticlockwise.
func (d Direction) Left() Direction { return (d + 3) % 4 }

// Right returns the heading after a quarter turn clockwise.
func (d Direction) Right() Direction { return (d + 1) % 4 }

// ParseDirection accepts N/E/S/W in either case.
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "N", "n":
		return North, true
	case "E", "e":
		return East, true
	case "S", "s":
		return South, true
	case "W", "w":
		return West, true
	}
	return North, false
}

// Reasons an agent may refuse to move. Agents return these (possibly
// wrapped) from MoveForward.
var (
	ErrOutsideGrid = errors.New("outside grid")
	ErrObstacle    = errors.New("obstacle")
)

// Agent is the movable entity a program drives. The world, its physics and
// scan results live behind this interface.
type Agent interface {
	MoveForward() error
	TurnLeft()
	TurnRight()
	IsBlocked() bool
	Direction() Direction
	// TriggerScan scans the current cell. Scanning an already scanned cell
	// is a no-op.
	TriggerScan()
	IsFacingScanned() bool
	IsOnScanned() bool
	UnscannedCount() int
}

// Output receives lines emitted by a running program, in order.
type Output interface {
	Emit(line string)
}

// OutputFunc adapts a function to Output.
type OutputFunc func(line string)

func (f OutputFunc) Emit(line string) { f(line) }

// Transcript is an Output that keeps every emitted line.
type Transcript struct {
	mu    sync.Mutex
	lines []string
}

func (t *Transcript) Emit(line string) {
	t.mu.Lock()
	t.lines = append(t.lines, line)
	t.mu.Unlock()
}

// Lines returns a copy of the lines emitted so far.
func (t *Transcript) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.lines...)
}

// Reset discards all lines.
func (t *Transcript) Reset() {
	t.mu.Lock()
	t.lines = nil
	t.mu.Unlock()
}

// Random is the source for dice rolls and coin tosses.
// *rand.Rand from math/rand/v2 satisfies it.
type Random interface {
	IntN(n int) int
}

type discardOutput struct{}

func (discardOutput) Emit(string) {}
