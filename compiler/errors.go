package compiler

import "fmt"

// SyntaxError is a compile failure at a 1-based source line.
type SyntaxError struct {
	Msg  string
	Line int
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// Message returns the error text without its position.
func (e *SyntaxError) Message() string { return e.Msg }

// LineNumber returns the 1-based line the error was found on.
func (e *SyntaxError) LineNumber() int { return e.Line }
