package compiler

// Keyword describes one action keyword for editors and help output.
type Keyword struct {
	Name    string
	Aliases []string
	Syntax  string
	Doc     string
}

// Keywords lists every action keyword in the order they are documented.
var Keywords = []Keyword{
	{Name: "forward", Aliases: []string{"move"}, Syntax: "forward", Doc: "Move one cell in the current direction."},
	{Name: "turnleft", Aliases: []string{"left"}, Syntax: "left", Doc: "Turn a quarter turn anticlockwise."},
	{Name: "turnright", Aliases: []string{"right"}, Syntax: "right", Doc: "Turn a quarter turn clockwise."},
	{Name: "scan", Syntax: "scan", Doc: "Scan the current cell for signs of life."},
	{Name: "say", Aliases: []string{"print"}, Syntax: `say "text"`, Doc: "Write the quoted text to the output."},
	{Name: "begin", Aliases: []string{"repeat"}, Syntax: "begin [n]", Doc: "Start a loop that runs n times, or until `leave` or `stop` when n is omitted."},
	{Name: "end", Syntax: "end", Doc: "Close the innermost loop."},
	{Name: "leave", Syntax: "leave", Doc: "Jump out of the innermost loop."},
	{Name: "stop", Syntax: "stop", Doc: "Stop the program."},
	{Name: "roll", Syntax: "roll [n]", Doc: "Roll an n-sided dice (6 by default); test the result with `if rolled N`."},
	{Name: "if", Syntax: "if [not] condition", Doc: "Run the following actions only when the condition holds."},
	{Name: "else", Syntax: "else | else if [not] condition", Doc: "Start the alternative branch of an if."},
	{Name: "endif", Syntax: "endif", Doc: "Close an if."},
}

// LookupKeyword finds a keyword by name or alias.
func LookupKeyword(word string) (Keyword, bool) {
	for _, kw := range Keywords {
		if kw.Name == word {
			return kw, true
		}
		for _, alias := range kw.Aliases {
			if alias == word {
				return kw, true
			}
		}
	}
	return Keyword{}, false
}
