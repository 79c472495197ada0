package compiler

import "strings"

// splitComment separates code from a trailing '#' comment. A '#' inside a
// double-quoted string does not start a comment.
func splitComment(raw string) (code, comment string) {
	inQuote := false
	for i := 0; i < len(raw); i++ {
		switch raw[i] {
		case '"':
			inQuote = !inQuote
		case '#':
			if !inQuote {
				return raw[:i], raw[i:]
			}
		}
	}
	return raw, ""
}

// splitStatements splits code on ';' outside double quotes, trimming each
// statement and dropping blanks.
func splitStatements(code string) []string {
	var out []string
	inQuote := false
	start := 0
	flush := func(end int) {
		if s := strings.TrimSpace(code[start:end]); s != "" {
			out = append(out, s)
		}
	}
	for i := 0; i < len(code); i++ {
		switch code[i] {
		case '"':
			inQuote = !inQuote
		case ';':
			if !inQuote {
				flush(i)
				start = i + 1
			}
		}
	}
	flush(len(code))
	return out
}

// normalizeLine applies the per-line preprocessing: trim, case-fold, strip
// the comment and split into actions.
func normalizeLine(raw string) []string {
	code, _ := splitComment(strings.ToLower(strings.TrimSpace(raw)))
	return splitStatements(code)
}

// splitKeyword returns the leading keyword of an action and the trimmed
// remainder. The keyword ends at whitespace or an opening quote.
func splitKeyword(action string) (keyword, rest string) {
	i := strings.IndexAny(action, " \t\"")
	if i < 0 {
		return action, ""
	}
	return action[:i], strings.TrimSpace(action[i:])
}

// sourceLines splits program text into lines, accepting \r\n endings.
func sourceLines(src string) []string {
	lines := strings.Split(src, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
