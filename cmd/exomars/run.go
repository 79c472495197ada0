package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/chazu/exomars/compiler"
	"github.com/chazu/exomars/config"
	"github.com/chazu/exomars/history"
	"github.com/chazu/exomars/server"
	"github.com/chazu/exomars/vm"
	"github.com/chazu/exomars/world"
)

// session is a rover in the configured world and a machine driving it.
type session struct {
	rover      *world.Rover
	machine    *vm.Machine
	transcript *vm.Transcript
}

func newSession(cfg *config.Config, seed int64, echo bool) *session {
	s := &session{transcript: &vm.Transcript{}}
	out := vm.OutputFunc(func(line string) {
		if echo {
			fmt.Println(line)
		}
		s.transcript.Emit(line)
	})

	var roverOpts []world.RoverOption
	vmOpts := []vm.Option{vm.WithCompiler(compiler.Compile)}
	if seed != 0 {
		r := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
		roverOpts = append(roverOpts, world.WithChance(r))
		vmOpts = append(vmOpts, vm.WithRandom(r))
	}
	roverOpts = append(roverOpts, world.WithReporter(out.Emit))

	s.rover = cfg.NewRover(roverOpts...)
	s.machine = vm.New(s.rover, out, vmOpts...)
	return s
}

// handleRunCommand processes the `exomars run` subcommand.
// Usage:
//
//	exomars run spiral.rover
//	exomars run -delay 200ms -map spiral.rover
func handleRunCommand(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	delay := fs.Duration("delay", -1, "Pause between steps (overrides run.delay)")
	maxSteps := fs.Int("max-steps", cfg.Run.MaxSteps, "Stop after this many instructions (0 for no limit)")
	seed := fs.Int64("seed", cfg.Run.Seed, "Random seed for dice and scans (0 for a random seed)")
	showMap := fs.Bool("map", false, "Print the grid after every step")
	noHistory := fs.Bool("no-history", false, "Do not record the run")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: exomars run [options] <file>\n\n")
		fmt.Fprintf(os.Stderr, "Runs a source file or program image until it halts.\n\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)
	path := oneArg(fs)

	if *delay < 0 {
		d, err := cfg.Delay()
		if err != nil {
			fatal(err)
		}
		*delay = d
	}

	p, err := readProgram(path)
	if err != nil {
		fatal(err)
	}

	s := newSession(cfg, *seed, true)
	if err := p.install(s.machine); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	worker := server.NewWorker(s.machine)
	defer worker.Stop()
	runner := &server.Runner{
		Worker:   worker,
		Delay:    *delay,
		MaxSteps: *maxSteps,
	}
	if *showMap {
		runner.OnStep = func(vm.State) {
			// OnStep runs between requests, so reading the rover is safe.
			fmt.Print(s.rover.Render())
			fmt.Println()
		}
	}

	started := time.Now()
	state, runErr := runner.Run(ctx)
	elapsed := time.Since(started)

	fmt.Print(s.rover.Render())
	g := s.rover.Grid()
	fmt.Printf("%s after %d steps; %d cells unscanned, life found in %d\n",
		state.Reason, state.Steps, g.Unscanned(), g.LifeFound())

	if !*noHistory {
		if err := recordRun(ctx, cfg, s, state, elapsed, started, p, runErr); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not record run: %v\n", err)
		}
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			fmt.Fprintln(os.Stderr, "Interrupted")
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		}
		os.Exit(1)
	}
}

func recordRun(ctx context.Context, cfg *config.Config, s *session, state vm.State, elapsed time.Duration, started time.Time, p *program, runErr error) error {
	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		return err
	}
	defer store.Close()

	hash, err := vm.ProgramHash(s.machine.Program())
	if err != nil {
		return err
	}
	run := &history.Run{
		Started:     started,
		Duration:    elapsed,
		ProgramHash: hex.EncodeToString(hash[:]),
		Source:      p.source,
		Steps:       state.Steps,
		Reason:      state.Reason.String(),
		Output:      s.transcript.Lines(),
	}
	if runErr != nil {
		run.Err = runErr.Error()
	}
	// The run may have been interrupted; recording still goes ahead.
	if err := store.Record(context.WithoutCancel(ctx), run); err != nil {
		return err
	}
	fmt.Printf("Recorded run %s\n", short(run.ID, 8))
	return nil
}

// handleStepCommand processes the `exomars step` subcommand: an interactive
// loop that executes one instruction per Enter.
func handleStepCommand(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("step", flag.ExitOnError)
	seed := fs.Int64("seed", cfg.Run.Seed, "Random seed for dice and scans (0 for a random seed)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: exomars step [options] <file>\n\n")
		fmt.Fprintf(os.Stderr, "Commands at the prompt:\n")
		fmt.Fprintf(os.Stderr, "  <Enter>, s   step one instruction\n")
		fmt.Fprintf(os.Stderr, "  c            continue to the end\n")
		fmt.Fprintf(os.Stderr, "  r            rewind the program\n")
		fmt.Fprintf(os.Stderr, "  m            print the map\n")
		fmt.Fprintf(os.Stderr, "  q            stop and quit\n\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)
	path := oneArg(fs)

	p, err := readProgram(path)
	if err != nil {
		fatal(err)
	}
	s := newSession(cfg, *seed, true)
	if err := p.install(s.machine); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
		os.Exit(1)
	}

	lines := strings.Split(p.source, "\n")
	printNext := func() {
		st := s.machine.State()
		if st.Halted {
			fmt.Printf("halted: %s after %d steps\n", st.Reason, st.Steps)
			return
		}
		text := ""
		if st.NextLine > 0 && st.NextLine <= len(lines) {
			text = strings.TrimSpace(lines[st.NextLine-1])
		}
		fmt.Printf("%4d  %s\n", st.NextLine, text)
	}

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)
	ln.SetCompleter(func(line string) []string {
		var out []string
		for _, c := range stepCommands {
			if strings.HasPrefix(c, line) {
				out = append(out, c)
			}
		}
		return out
	})

	printNext()
	for {
		line, err := ln.Prompt("step> ")
		if errors.Is(err, liner.ErrPromptAborted) {
			line = "q"
		} else if err != nil {
			fmt.Println()
			return
		}
		cmd := strings.TrimSpace(line)
		if cmd != "" {
			ln.AppendHistory(cmd)
		}
		switch cmd {
		case "", "s":
			if err := s.machine.Step(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
			printNext()
		case "c":
			runner := &server.Runner{Worker: server.NewWorker(s.machine), MaxSteps: cfg.Run.MaxSteps}
			_, err := runner.Run(context.Background())
			runner.Worker.Stop()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
			printNext()
		case "r":
			s.machine.Reset()
			printNext()
		case "m":
			fmt.Print(s.rover.Render())
		case "q":
			s.machine.Stop()
			printNext()
			return
		default:
			fmt.Println("commands: <Enter>/s step, c continue, r rewind, m map, q quit")
		}
	}
}

var stepCommands = []string{"s", "c", "r", "m", "q"}
