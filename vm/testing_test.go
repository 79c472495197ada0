package vm

// fakeAgent records effects and answers conditions from fixed fields.
type fakeAgent struct {
	moves, lefts, rights, scans int
	blocked                     bool
	moveErr                     error
	facing                      Direction
	unscanned                   int
	// scanOnMove, when set, decrements unscanned on every successful move.
	scanOnMove bool
}

func (a *fakeAgent) MoveForward() error {
	if a.moveErr != nil {
		return a.moveErr
	}
	a.moves++
	if a.scanOnMove && a.unscanned > 0 {
		a.unscanned--
	}
	return nil
}

func (a *fakeAgent) TurnLeft()             { a.lefts++; a.facing = a.facing.Left() }
func (a *fakeAgent) TurnRight()            { a.rights++; a.facing = a.facing.Right() }
func (a *fakeAgent) IsBlocked() bool       { return a.blocked }
func (a *fakeAgent) Direction() Direction  { return a.facing }
func (a *fakeAgent) TriggerScan()          { a.scans++ }
func (a *fakeAgent) IsFacingScanned() bool { return false }
func (a *fakeAgent) IsOnScanned() bool     { return a.scans > 0 }
func (a *fakeAgent) UnscannedCount() int   { return a.unscanned }

// maxRandom always returns the largest value, so an n-sided roll is n.
type maxRandom struct{}

func (maxRandom) IntN(n int) int { return n - 1 }

func runToHalt(m *Machine, limit int) int {
	n := 0
	for !m.Halted() && n < limit {
		m.Step()
		n++
	}
	return n
}
