// Package config handles exomars.toml project configuration: the world the
// rover explores, how programs are run, logging and the run history store.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/BurntSushi/toml"

	"github.com/chazu/exomars/vm"
	"github.com/chazu/exomars/world"
)

// FileName is the project configuration file looked up by FindAndLoad.
const FileName = "exomars.toml"

//go:embed schema.cue
var schemaSource string

// Config represents an exomars.toml project configuration.
type Config struct {
	World   World   `toml:"world" json:"world"`
	Rover   Rover   `toml:"rover" json:"rover"`
	Run     Run     `toml:"run" json:"run"`
	Log     Log     `toml:"log" json:"log"`
	History History `toml:"history" json:"history"`

	// Dir is the directory containing the exomars.toml file (set at load time).
	Dir string `toml:"-" json:"-"`
}

// World describes the grid.
type World struct {
	Width      int     `toml:"width" json:"width"`
	Height     int     `toml:"height" json:"height"`
	Obstacles  [][]int `toml:"obstacles" json:"obstacles"` // [x, y] pairs
	LifeChance float64 `toml:"life-chance" json:"lifeChance"`
}

// Rover sets the rover's starting position and heading.
type Rover struct {
	X      int    `toml:"x" json:"x"`
	Y      int    `toml:"y" json:"y"`
	Facing string `toml:"facing" json:"facing"`
}

// Run configures the driver that steps programs.
type Run struct {
	Delay    string `toml:"delay" json:"delay"`         // pause between steps, e.g. "300ms"
	MaxSteps int    `toml:"max-steps" json:"maxSteps"`  // 0 means no limit
	Seed     int64  `toml:"seed" json:"seed"`           // 0 means a random seed
}

// Log configures commonlog.
type Log struct {
	Verbosity int    `toml:"verbosity" json:"verbosity"`
	File      string `toml:"file" json:"file"`
}

// History configures the run history database.
type History struct {
	Path string `toml:"path" json:"path"`
}

// Default returns the configuration used when no exomars.toml is found: a
// 10x10 world with three obstacles near the centre and the rover in the
// top-left corner facing east.
func Default() *Config {
	return &Config{
		World: World{
			Width:      10,
			Height:     10,
			Obstacles:  [][]int{{4, 4}, {5, 4}, {4, 5}},
			LifeChance: world.DefaultLifeChance,
		},
		Rover: Rover{Facing: "E"},
		Run: Run{
			Delay:    "0",
			MaxSteps: 100000,
		},
		History: History{Path: filepath.Join(".exomars", "history.db")},
	}
}

// Load parses the exomars.toml file in dir over the defaults and validates
// the result.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	cfg, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	cfg.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return cfg, nil
}

// Parse decodes configuration text over the defaults and validates it.
// Keys the configuration does not know are an error.
func Parse(text string) (*Config, error) {
	cfg := Default()
	md, err := toml.Decode(text, cfg)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	if cfg.World.Obstacles == nil {
		cfg.World.Obstacles = [][]int{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FindAndLoad walks up from startDir to find an exomars.toml file, then
// loads and returns it. Returns nil if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// Validate checks the configuration against the embedded CUE schema, then
// checks what the schema cannot express.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	val := def.Unify(ctx.Encode(c))
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{Details: cueerrors.Details(err, nil)}
	}

	if _, err := c.Delay(); err != nil {
		return &ValidationError{Details: err.Error()}
	}
	start := c.Start()
	for _, o := range c.ObstaclePoints() {
		if o == start {
			return &ValidationError{Details: fmt.Sprintf("rover starts on the obstacle at %s", o)}
		}
	}
	return nil
}

// ValidationError reports a configuration that does not satisfy the schema.
type ValidationError struct {
	Details string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.TrimSpace(e.Details)
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Delay returns the configured pause between steps.
func (c *Config) Delay() (time.Duration, error) {
	if c.Run.Delay == "" || c.Run.Delay == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Run.Delay)
	if err != nil {
		return 0, fmt.Errorf("run.delay: %w", err)
	}
	return d, nil
}

// ObstaclePoints returns the obstacles as grid points.
func (c *Config) ObstaclePoints() []world.Point {
	points := make([]world.Point, 0, len(c.World.Obstacles))
	for _, o := range c.World.Obstacles {
		if len(o) == 2 {
			points = append(points, world.Point{X: o[0], Y: o[1]})
		}
	}
	return points
}

// Start returns the rover's starting cell.
func (c *Config) Start() world.Point {
	return world.Point{X: c.Rover.X, Y: c.Rover.Y}
}

// Facing returns the rover's starting heading, east if unset.
func (c *Config) Facing() vm.Direction {
	if d, ok := vm.ParseDirection(c.Rover.Facing); ok {
		return d
	}
	return vm.East
}

// HistoryPath returns the history database path, resolved against Dir.
func (c *Config) HistoryPath() string {
	if c.History.Path == "" || filepath.IsAbs(c.History.Path) || c.Dir == "" {
		return c.History.Path
	}
	return filepath.Join(c.Dir, c.History.Path)
}

// NewRover builds the configured world and places a rover in it.
func (c *Config) NewRover(opts ...world.RoverOption) *world.Rover {
	grid := world.NewGrid(c.World.Width, c.World.Height, c.ObstaclePoints())
	opts = append([]world.RoverOption{world.WithLifeChance(c.World.LifeChance)}, opts...)
	return world.NewRover(grid, c.Start(), c.Facing(), opts...)
}
