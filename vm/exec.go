package vm

import (
	"errors"
	"fmt"
)

type transferKind uint8

const (
	advance transferKind = iota
	jump
	halt
)

// transfer is the single control effect of one instruction.
type transfer struct {
	kind transferKind
	addr int
}

var next = transfer{kind: advance}

func jumpTo(addr int) transfer { return transfer{kind: jump, addr: addr} }

// exec runs the effect of inst and reports how control moves on.
func (m *Machine) exec(inst Instruction) (transfer, error) {
	switch inst.Op {
	case OpMoveForward:
		if err := m.agent.MoveForward(); err != nil {
			m.out.Emit("Move blocked: " + blockedReason(err))
		}
		return next, nil

	case OpTurnLeft:
		m.agent.TurnLeft()
		return next, nil

	case OpTurnRight:
		m.agent.TurnRight()
		return next, nil

	case OpScan:
		m.agent.TriggerScan()
		return next, nil

	case OpPrint:
		m.out.Emit(inst.Text)
		return next, nil

	case OpRollDice:
		m.dice = m.rand.IntN(inst.Sides) + 1
		m.out.Emit(fmt.Sprintf("Rolled a %d", m.dice))
		return next, nil

	case OpLoopBegin:
		return m.loopBegin(inst), nil

	case OpLoopEnd:
		return m.loopEnd(inst)

	case OpLoopLeave:
		if len(m.frames) == 0 {
			return next, nil
		}
		m.frames = m.frames[:len(m.frames)-1]
		return jumpTo(inst.Target), nil

	case OpConditional:
		env := Env{Agent: m.agent, Dice: m.dice, Rand: m.rand}
		ok, err := m.conds.Evaluate(inst.Cond, env, inst.Operand)
		if err != nil {
			return next, err
		}
		if ok != inst.Negated {
			return next, nil
		}
		return jumpTo(inst.Target), nil

	case OpJump:
		return jumpTo(inst.Target), nil

	case OpStop:
		m.out.Emit(fmt.Sprintf("Run stopped after %d actions!", m.steps))
		return transfer{kind: halt}, nil
	}
	return next, faultf(inst.Addr, "unknown opcode %d", inst.Op)
}

func (m *Machine) loopBegin(inst Instruction) transfer {
	if !inst.Forever && inst.Count == 0 {
		return jumpTo(inst.End + 1)
	}
	m.frames = append(m.frames, Frame{
		Begin:     inst.Addr,
		Remaining: inst.Count,
		Forever:   inst.Forever,
	})
	return next
}

func (m *Machine) loopEnd(inst Instruction) (transfer, error) {
	if len(m.frames) == 0 {
		return next, faultf(inst.Addr, "loop end with no active loop")
	}
	top := &m.frames[len(m.frames)-1]
	if top.Begin != inst.Begin {
		return next, faultf(inst.Addr, "loop end for %d, innermost loop began at %d", inst.Begin, top.Begin)
	}
	top.Iteration++
	if top.Forever {
		return jumpTo(inst.Begin + 1), nil
	}
	top.Remaining--
	if top.Remaining > 0 {
		return jumpTo(inst.Begin + 1), nil
	}
	iterations := top.Iteration
	m.frames = m.frames[:len(m.frames)-1]
	m.out.Emit(fmt.Sprintf("Loop finished after %d iterations", iterations))
	return next, nil
}

func blockedReason(err error) string {
	switch {
	case errors.Is(err, ErrOutsideGrid):
		return ErrOutsideGrid.Error()
	case errors.Is(err, ErrObstacle):
		return ErrObstacle.Error()
	}
	return err.Error()
}
