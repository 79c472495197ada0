package world

import (
	"errors"
	"testing"

	"github.com/chazu/exomars/vm"
)

type fixedChance float64

func (c fixedChance) Float64() float64 { return float64(c) }

func TestPointStep(t *testing.T) {
	p := Point{2, 2}
	tests := []struct {
		d    vm.Direction
		want Point
	}{
		{vm.North, Point{2, 1}},
		{vm.East, Point{3, 2}},
		{vm.South, Point{2, 3}},
		{vm.West, Point{1, 2}},
	}
	for _, tt := range tests {
		if got := p.Step(tt.d); got != tt.want {
			t.Errorf("Step(%s) = %v, want %v", tt.d, got, tt.want)
		}
	}
	if s := p.String(); s != "(2,2)" {
		t.Errorf("String() = %q", s)
	}
}

func TestNewGridIgnoresOutsideObstacles(t *testing.T) {
	g := NewGrid(3, 2, []Point{{1, 1}, {5, 0}, {-1, 0}})
	if !g.IsObstacle(Point{1, 1}) {
		t.Error("obstacle at (1,1) missing")
	}
	if g.IsObstacle(Point{5, 0}) {
		t.Error("obstacle outside the grid kept")
	}
	if n := g.Unscanned(); n != 5 {
		t.Errorf("Unscanned() = %d, want 5", n)
	}
}

func TestMoveForward(t *testing.T) {
	g := NewGrid(3, 3, []Point{{1, 0}})
	tests := []struct {
		name   string
		start  Point
		facing vm.Direction
		want   error
		end    Point
	}{
		{"free", Point{0, 0}, vm.South, nil, Point{0, 1}},
		{"edge", Point{0, 0}, vm.North, vm.ErrOutsideGrid, Point{0, 0}},
		{"west edge", Point{0, 2}, vm.West, vm.ErrOutsideGrid, Point{0, 2}},
		{"obstacle", Point{0, 0}, vm.East, vm.ErrObstacle, Point{0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRover(g, tt.start, tt.facing)
			blocked := r.IsBlocked()
			err := r.MoveForward()
			if tt.want == nil {
				if err != nil || blocked {
					t.Fatalf("MoveForward() = %v, blocked = %v", err, blocked)
				}
			} else {
				if !errors.Is(err, tt.want) {
					t.Fatalf("MoveForward() = %v, want %v", err, tt.want)
				}
				if !blocked {
					t.Error("IsBlocked() = false before a refused move")
				}
			}
			if r.Position() != tt.end {
				t.Errorf("position = %v, want %v", r.Position(), tt.end)
			}
		})
	}
}

func TestTurns(t *testing.T) {
	r := NewRover(NewGrid(1, 1, nil), Point{}, vm.North)
	r.TurnRight()
	if r.Direction() != vm.East {
		t.Errorf("after right: %s", r.Direction())
	}
	r.TurnLeft()
	r.TurnLeft()
	if r.Direction() != vm.West {
		t.Errorf("after two lefts: %s", r.Direction())
	}
}

func TestScan(t *testing.T) {
	g := NewGrid(2, 1, nil)
	var reports []string
	r := NewRover(g, Point{}, vm.East,
		WithChance(fixedChance(0.1)),
		WithLifeChance(0.5),
		WithReporter(func(s string) { reports = append(reports, s) }))

	if r.IsOnScanned() || r.IsFacingScanned() {
		t.Fatal("fresh grid reports scanned cells")
	}
	r.TriggerScan()
	r.TriggerScan()
	if len(reports) != 1 || reports[0] != "Alien life detected at (0,0)!" {
		t.Errorf("reports = %q", reports)
	}
	if !r.IsOnScanned() || !g.LifeAt(Point{}) {
		t.Error("scan not recorded")
	}
	if n := r.UnscannedCount(); n != 1 {
		t.Errorf("UnscannedCount() = %d, want 1", n)
	}

	r.TurnLeft()
	r.TurnLeft()
	if r.IsFacingScanned() {
		t.Error("facing outside the grid reported as scanned")
	}
	r.TurnRight()
	r.TurnRight()
	if err := r.MoveForward(); err != nil {
		t.Fatal(err)
	}
	r.TurnLeft()
	r.TurnLeft()
	if !r.IsFacingScanned() {
		t.Error("facing the scanned cell not reported")
	}

	r2 := NewRover(g, Point{1, 0}, vm.West,
		WithChance(fixedChance(0.9)),
		WithLifeChance(0.5),
		WithReporter(func(s string) { reports = append(reports, s) }))
	r2.TriggerScan()
	if reports[len(reports)-1] != "No signs of alien life at (1,0)." {
		t.Errorf("last report = %q", reports[len(reports)-1])
	}
	if g.Unscanned() != 0 || g.LifeFound() != 1 {
		t.Errorf("Unscanned = %d, LifeFound = %d", g.Unscanned(), g.LifeFound())
	}
}

func TestRender(t *testing.T) {
	g := NewGrid(4, 2, []Point{{2, 0}})
	chance := &stubChance{}
	r := NewRover(g, Point{}, vm.East, WithChance(chance), WithLifeChance(0.5))

	r.TriggerScan()
	r.TurnRight()
	if err := r.MoveForward(); err != nil {
		t.Fatal(err)
	}
	chance.v = 0.9
	r.TriggerScan()
	r.TurnLeft()
	if err := r.MoveForward(); err != nil {
		t.Fatal(err)
	}

	want := "*.#.\n+>..\n"
	if got := r.Render(); got != want {
		t.Errorf("Render() =\n%s\nwant\n%s", got, want)
	}
}

type stubChance struct{ v float64 }

func (c *stubChance) Float64() float64 { return c.v }
