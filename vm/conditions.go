package vm

import (
	"fmt"
	"sort"
	"sync"
)

// Env is what a condition can observe when it is checked.
type Env struct {
	Agent Agent
	Dice  int
	Rand  Random
}

// Predicate evaluates a condition. operand is zero unless the condition
// takes a value.
type Predicate func(env Env, operand int) bool

// Condition is a named predicate usable after `if`.
type Condition struct {
	Name         string
	TakesOperand bool   // accepts exactly one integer value, e.g. "rolled 3"
	Doc          string // one-line description for editors
	Eval         Predicate
}

// Registry maps condition names to predicates. Adding a condition is a
// Register call; neither the compiler nor the machine changes.
type Registry struct {
	mu    sync.RWMutex
	conds map[string]Condition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{conds: make(map[string]Condition)}
}

// DefaultRegistry returns a registry holding the built-in conditions.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, c := range builtinConditions() {
		if err := r.Register(c); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a condition. Names must be unique, non-empty and usable as a
// single lower-case word in program text.
func (r *Registry) Register(c Condition) error {
	if c.Name == "" {
		return fmt.Errorf("condition has no name")
	}
	for _, ch := range c.Name {
		if !(ch >= 'a' && ch <= 'z' || ch >= '0' && ch <= '9' || ch == '_') {
			return fmt.Errorf("condition name %q must be a lower-case word", c.Name)
		}
	}
	if c.Name == "not" {
		return fmt.Errorf("condition name %q is reserved", c.Name)
	}
	if c.Eval == nil {
		return fmt.Errorf("condition %q has no predicate", c.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.conds[c.Name]; exists {
		return fmt.Errorf("condition %q already registered", c.Name)
	}
	r.conds[c.Name] = c
	return nil
}

// Lookup returns the condition registered under name.
func (r *Registry) Lookup(name string) (Condition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conds[name]
	return c, ok
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.conds))
	for name := range r.conds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Evaluate checks the named condition. An unknown name is a FaultError: the
// compiler rejects unknown names, so reaching here means the program and the
// registry disagree.
func (r *Registry) Evaluate(name string, env Env, operand int) (bool, error) {
	c, ok := r.Lookup(name)
	if !ok {
		return false, &FaultError{Addr: -1, Msg: "unknown condition: " + name}
	}
	return c.Eval(env, operand), nil
}

func facing(d Direction) Predicate {
	return func(env Env, _ int) bool { return env.Agent.Direction() == d }
}

func builtinConditions() []Condition {
	return []Condition{
		{Name: "blocked", Doc: "the rover cannot move forward",
			Eval: func(env Env, _ int) bool { return env.Agent.IsBlocked() }},
		{Name: "facingscanned", Doc: "the cell ahead has been scanned",
			Eval: func(env Env, _ int) bool { return env.Agent.IsFacingScanned() }},
		{Name: "onscanned", Doc: "the current cell has been scanned",
			Eval: func(env Env, _ int) bool { return env.Agent.IsOnScanned() }},
		{Name: "movingright", Doc: "the rover faces east", Eval: facing(East)},
		{Name: "movingleft", Doc: "the rover faces west", Eval: facing(West)},
		{Name: "movingup", Doc: "the rover faces north", Eval: facing(North)},
		{Name: "movingdown", Doc: "the rover faces south", Eval: facing(South)},
		{Name: "true", Doc: "always true",
			Eval: func(Env, int) bool { return true }},
		{Name: "false", Doc: "always false",
			Eval: func(Env, int) bool { return false }},
		{Name: "allscanned", Doc: "no free cell is left unscanned",
			Eval: func(env Env, _ int) bool { return env.Agent.UnscannedCount() == 0 }},
		{Name: "cointoss", Doc: "true half of the time",
			Eval: func(env Env, _ int) bool { return env.Rand.IntN(2) == 0 }},
		{Name: "rolled", TakesOperand: true, Doc: "the last dice roll equals N",
			Eval: func(env Env, n int) bool { return env.Dice == n }},
	}
}
