// Package world is the grid world a rover program runs in: a rectangular
// grid with obstacles, and a rover that moves, turns and scans cells for
// signs of life. Rover implements vm.Agent.
package world

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/exomars/vm"
)

var log = commonlog.GetLogger("exomars.world")

// Point is a cell position; (0,0) is the top-left corner and y grows down.
type Point struct {
	X, Y int
}

func (p Point) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// Step returns the neighbouring cell in direction d.
func (p Point) Step(d vm.Direction) Point {
	switch d {
	case vm.North:
		return Point{p.X, p.Y - 1}
	case vm.South:
		return Point{p.X, p.Y + 1}
	case vm.East:
		return Point{p.X + 1, p.Y}
	case vm.West:
		return Point{p.X - 1, p.Y}
	}
	return p
}

// Grid holds the static layout and the scan record of every cell.
type Grid struct {
	Width, Height int

	obstacles map[Point]bool
	scanned   map[Point]bool // value is true when life was detected
}

// NewGrid creates a width x height grid. Obstacles outside the grid are ignored.
func NewGrid(width, height int, obstacles []Point) *Grid {
	g := &Grid{
		Width:     width,
		Height:    height,
		obstacles: make(map[Point]bool),
		scanned:   make(map[Point]bool),
	}
	for _, o := range obstacles {
		if g.Inside(o) {
			g.obstacles[o] = true
		}
	}
	return g
}

// Inside reports whether p lies on the grid.
func (g *Grid) Inside(p Point) bool {
	return p.X >= 0 && p.X < g.Width && p.Y >= 0 && p.Y < g.Height
}

// IsObstacle reports whether p holds an obstacle.
func (g *Grid) IsObstacle(p Point) bool {
	return g.obstacles[p]
}

// IsScanned reports whether p has been scanned.
func (g *Grid) IsScanned(p Point) bool {
	_, ok := g.scanned[p]
	return ok
}

// LifeAt reports whether a scan of p detected life.
func (g *Grid) LifeAt(p Point) bool {
	return g.scanned[p]
}

// markScanned records a scan result. The first result for a cell wins.
func (g *Grid) markScanned(p Point, life bool) bool {
	if g.IsScanned(p) {
		return false
	}
	g.scanned[p] = life
	return true
}

// Unscanned returns the number of free cells not yet scanned.
func (g *Grid) Unscanned() int {
	return g.Width*g.Height - len(g.scanned) - len(g.obstacles)
}

// LifeFound returns how many scanned cells showed signs of life.
func (g *Grid) LifeFound() int {
	n := 0
	for _, life := range g.scanned {
		if life {
			n++
		}
	}
	return n
}

// Chance is the random source for life detection.
// *rand.Rand from math/rand/v2 satisfies it.
type Chance interface {
	Float64() float64
}

type globalChance struct{}

func (globalChance) Float64() float64 { return rand.Float64() }

// DefaultLifeChance is the probability that a scan detects life.
const DefaultLifeChance = 0.15

// Rover is an agent on a Grid.
type Rover struct {
	grid       *Grid
	pos        Point
	facing     vm.Direction
	lifeChance float64
	chance     Chance
	report     func(string)
}

// RoverOption configures a Rover.
type RoverOption func(*Rover)

// WithLifeChance sets the probability that a scan detects life.
func WithLifeChance(p float64) RoverOption {
	return func(r *Rover) { r.lifeChance = p }
}

// WithChance sets the random source for life detection.
func WithChance(c Chance) RoverOption {
	return func(r *Rover) { r.chance = c }
}

// WithReporter sets where the rover reports scan results and refused moves.
func WithReporter(fn func(string)) RoverOption {
	return func(r *Rover) { r.report = fn }
}

// NewRover places a rover on g at start, facing the given direction.
func NewRover(g *Grid, start Point, facing vm.Direction, opts ...RoverOption) *Rover {
	r := &Rover{
		grid:       g,
		pos:        start,
		facing:     facing,
		lifeChance: DefaultLifeChance,
		chance:     globalChance{},
		report:     func(string) {},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Grid returns the grid the rover is on.
func (r *Rover) Grid() *Grid { return r.grid }

// Position returns the rover's cell.
func (r *Rover) Position() Point { return r.pos }

func (r *Rover) Direction() vm.Direction { return r.facing }

func (r *Rover) TurnLeft() { r.facing = r.facing.Left() }

func (r *Rover) TurnRight() { r.facing = r.facing.Right() }

func (r *Rover) checkAhead() (Point, error) {
	ahead := r.pos.Step(r.facing)
	if !r.grid.Inside(ahead) {
		return ahead, vm.ErrOutsideGrid
	}
	if r.grid.IsObstacle(ahead) {
		return ahead, vm.ErrObstacle
	}
	return ahead, nil
}

func (r *Rover) IsBlocked() bool {
	_, err := r.checkAhead()
	return err != nil
}

func (r *Rover) MoveForward() error {
	ahead, err := r.checkAhead()
	if err != nil {
		log.Debugf("move from %s blocked: %s", r.pos, err)
		return fmt.Errorf("world: move to %s: %w", ahead, err)
	}
	r.pos = ahead
	return nil
}

func (r *Rover) TriggerScan() {
	if r.grid.IsScanned(r.pos) {
		return
	}
	life := r.chance.Float64() < r.lifeChance
	r.grid.markScanned(r.pos, life)
	if life {
		r.report(fmt.Sprintf("Alien life detected at %s!", r.pos))
	} else {
		r.report(fmt.Sprintf("No signs of alien life at %s.", r.pos))
	}
}

func (r *Rover) IsFacingScanned() bool {
	return r.grid.IsScanned(r.pos.Step(r.facing))
}

func (r *Rover) IsOnScanned() bool {
	return r.grid.IsScanned(r.pos)
}

func (r *Rover) UnscannedCount() int {
	return r.grid.Unscanned()
}

var roverGlyphs = [...]byte{'^', '>', 'v', '<'}

// Render draws the grid as text: '#' obstacle, '*' life, '+' scanned,
// '.' unscanned, and the rover as an arrow.
func (r *Rover) Render() string {
	var sb strings.Builder
	g := r.grid
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			p := Point{x, y}
			switch {
			case p == r.pos:
				sb.WriteByte(roverGlyphs[r.facing%4])
			case g.IsObstacle(p):
				sb.WriteByte('#')
			case g.LifeAt(p):
				sb.WriteByte('*')
			case g.IsScanned(p):
				sb.WriteByte('+')
			default:
				sb.WriteByte('.')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
