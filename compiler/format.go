package compiler

import (
	"strings"
	"unicode"
)

// ---------------------------------------------------------------------------
// Format - indenter for rover programs
// ---------------------------------------------------------------------------

// Format re-indents program text with one tab per open block. Each action
// goes on its own line; a trailing comment stays on the last action of its
// line and a comment-only line keeps its original indentation. Format works
// on text alone, so it also formats programs that do not compile.
func Format(source string) string {
	f := &formatter{buf: &strings.Builder{}}
	lines := sourceLines(source)
	for i, raw := range lines {
		f.formatLine(raw)
		if i < len(lines)-1 {
			f.buf.WriteByte('\n')
		}
	}
	return f.buf.String()
}

type formatter struct {
	indent int
	buf    *strings.Builder
}

func (f *formatter) formatLine(raw string) {
	if strings.TrimSpace(raw) == "" {
		return
	}
	leading := raw[:len(raw)-len(strings.TrimLeftFunc(raw, unicode.IsSpace))]
	code, comment := splitComment(raw)

	var formatted []string
	for _, stmt := range splitStatements(code) {
		kind := blockKind(stmt)
		if kind == blockClose || kind == blockMiddle {
			f.dedent()
		}
		formatted = append(formatted, strings.Repeat("\t", f.indent)+stmt)
		if kind == blockOpen || kind == blockMiddle {
			f.indent++
		}
	}

	if comment != "" {
		if len(formatted) == 0 {
			formatted = append(formatted, leading+comment)
		} else {
			formatted[len(formatted)-1] += " " + comment
		}
	}
	f.buf.WriteString(strings.Join(formatted, "\n"))
}

func (f *formatter) dedent() {
	if f.indent > 0 {
		f.indent--
	}
}

type block int

const (
	blockNone block = iota
	blockOpen
	blockMiddle
	blockClose
)

// blockKind classifies a statement by its keyword, ignoring case.
func blockKind(stmt string) block {
	keyword, _ := splitKeyword(strings.ToLower(stmt))
	switch keyword {
	case "begin", "repeat", "if":
		return blockOpen
	case "else":
		return blockMiddle
	case "end", "endif":
		return blockClose
	}
	return blockNone
}
