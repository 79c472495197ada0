package vm

import (
	"fmt"
	"strconv"
	"strings"
)

// ifBlock tracks an open if chain while decompiling.
type ifBlock struct {
	loop    bool
	sawElse bool
	closeAt int // false-jump target before an else, chain end after it
}

// Decompile rebuilds canonical, tab-indented source from a program's
// addresses and operands alone. Compiling the result yields the same
// instruction sequence apart from line numbers.
func Decompile(p *Program) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}

	var sb strings.Builder
	var open []ifBlock
	depth := 0
	line := func(s string) {
		sb.WriteString(strings.Repeat("\t", depth))
		sb.WriteString(s)
		sb.WriteByte('\n')
	}
	closeIfs := func(addr int) {
		for len(open) > 0 {
			top := open[len(open)-1]
			if top.loop || top.closeAt != addr {
				return
			}
			open = open[:len(open)-1]
			depth--
			line("endif")
		}
	}

	n := p.Len()
	for addr := 0; addr < n; addr++ {
		closeIfs(addr)
		inst := p.Instructions[addr]
		switch inst.Op {
		case OpMoveForward:
			line("forward")
		case OpTurnLeft:
			line("left")
		case OpTurnRight:
			line("right")
		case OpScan:
			line("scan")
		case OpPrint:
			line(`say "` + inst.Text + `"`)
		case OpRollDice:
			line("roll " + strconv.Itoa(inst.Sides))
		case OpStop:
			line("stop")
		case OpLoopBegin:
			if inst.Forever {
				line("begin")
			} else {
				line("begin " + strconv.Itoa(inst.Count))
			}
			open = append(open, ifBlock{loop: true})
			depth++
		case OpLoopEnd:
			if len(open) == 0 || !open[len(open)-1].loop {
				return "", faultf(addr, "loop end does not close the innermost block")
			}
			open = open[:len(open)-1]
			depth--
			line("end")
		case OpLoopLeave:
			line("leave")
		case OpConditional:
			if inst.ElseIf {
				return "", faultf(addr, "else-if condition without a preceding branch")
			}
			line("if " + inst.Condition())
			open = append(open, ifBlock{closeAt: inst.Target})
			depth++
		case OpJump:
			if len(open) == 0 || open[len(open)-1].loop || open[len(open)-1].sawElse {
				return "", faultf(addr, "jump outside an if chain")
			}
			top := &open[len(open)-1]
			if addr+1 < n && top.closeAt == addr+1 {
				if nxt := p.Instructions[addr+1]; nxt.Op == OpConditional && nxt.ElseIf {
					depth--
					line("else if " + nxt.Condition())
					depth++
					top.closeAt = nxt.Target
					addr++
					continue
				}
			}
			if top.closeAt != addr+1 {
				return "", faultf(addr, "else jump does not follow its branch")
			}
			depth--
			line("else")
			depth++
			top.sawElse = true
			top.closeAt = inst.Target
		default:
			return "", faultf(addr, "cannot decompile %s", inst.Op)
		}
	}
	closeIfs(n)
	if len(open) > 0 {
		return "", &FaultError{Addr: n, Msg: fmt.Sprintf("%d blocks left open", len(open))}
	}
	return sb.String(), nil
}
