package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/chazu/exomars/config"
	"github.com/chazu/exomars/history"
)

// handleHistoryCommand processes the `exomars history` subcommand.
// Usage:
//
//	exomars history                  # list recent runs
//	exomars history list -n 50
//	exomars history show <id>        # an unambiguous id prefix is enough
//	exomars history delete <id>
//	exomars history export -o runs.yaml
func handleHistoryCommand(cfg *config.Config, args []string) {
	sub := "list"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		sub, args = args[0], args[1:]
	}

	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	switch sub {
	case "list":
		fs := flag.NewFlagSet("history list", flag.ExitOnError)
		limit := fs.Int("n", 20, "Number of runs to show")
		fs.Parse(args)
		if err := listRuns(ctx, store, *limit); err != nil {
			fatal(err)
		}
	case "show":
		fs := flag.NewFlagSet("history show", flag.ExitOnError)
		withSource := fs.Bool("source", false, "Print the program source")
		fs.Parse(args)
		run, err := store.Get(ctx, oneArg(fs))
		if err != nil {
			fatal(historyError(err))
		}
		showRun(run, *withSource)
	case "delete":
		fs := flag.NewFlagSet("history delete", flag.ExitOnError)
		fs.Parse(args)
		id := oneArg(fs)
		run, err := store.Get(ctx, id)
		if err != nil {
			fatal(historyError(err))
		}
		if err := store.Delete(ctx, run.ID); err != nil {
			fatal(err)
		}
		fmt.Printf("Deleted run %s\n", run.ID)
	case "export":
		fs := flag.NewFlagSet("history export", flag.ExitOnError)
		limit := fs.Int("n", 0, "Number of runs to export (0 for all)")
		output := fs.String("o", "", "Write the report to this file instead of stdout")
		fs.Parse(args)
		if err := exportRuns(ctx, store, *limit, *output); err != nil {
			fatal(err)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown history command %q (want list, show, delete or export)\n", sub)
		os.Exit(2)
	}
}

func historyError(err error) error {
	switch {
	case errors.Is(err, history.ErrRunNotFound):
		return fmt.Errorf("no run with that id")
	case errors.Is(err, history.ErrAmbiguousID):
		return fmt.Errorf("id prefix matches several runs; give more characters")
	}
	return err
}

func listRuns(ctx context.Context, store *history.Store, limit int) error {
	runs, err := store.List(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tSTEPS\tHALT\tPROGRAM")
	for _, r := range runs {
		reason := r.Reason
		if r.Err != "" {
			reason += " (error)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			short(r.ID, 8), r.Started.Local().Format(time.DateTime), r.Steps, reason, short(r.ProgramHash, 12))
	}
	return tw.Flush()
}

func exportRuns(ctx context.Context, store *history.Store, limit int, path string) error {
	if path == "" {
		return store.Export(ctx, os.Stdout, limit)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := store.Export(ctx, f, limit); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func showRun(r *history.Run, withSource bool) {
	fmt.Printf("Run %s\n", r.ID)
	fmt.Printf("  started:  %s\n", r.Started.Local().Format(time.DateTime))
	fmt.Printf("  duration: %s\n", r.Duration.Round(time.Millisecond))
	fmt.Printf("  program:  %s\n", r.ProgramHash)
	fmt.Printf("  steps:    %d\n", r.Steps)
	fmt.Printf("  halt:     %s\n", r.Reason)
	if r.Err != "" {
		fmt.Printf("  error:    %s\n", r.Err)
	}
	if withSource {
		fmt.Println("\nSource:")
		for _, line := range strings.Split(strings.TrimRight(r.Source, "\n"), "\n") {
			fmt.Printf("  %s\n", line)
		}
	}
	fmt.Println("\nOutput:")
	for _, line := range r.Output {
		fmt.Printf("  %s\n", line)
	}
}

func short(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
