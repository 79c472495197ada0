package history

import (
	"context"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// report is the on-disk form of an exported history.
type report struct {
	Generated string      `yaml:"generated"`
	Runs      []runReport `yaml:"runs"`
}

type runReport struct {
	ID       string   `yaml:"id"`
	Started  string   `yaml:"started"`
	Duration string   `yaml:"duration"`
	Program  string   `yaml:"program"`
	Steps    int      `yaml:"steps"`
	Halt     string   `yaml:"halt"`
	Error    string   `yaml:"error,omitempty"`
	Source   string   `yaml:"source"`
	Output   []string `yaml:"output"`
}

// Export writes up to limit runs, newest first, to w as a YAML report.
func (s *Store) Export(ctx context.Context, w io.Writer, limit int) error {
	runs, err := s.List(ctx, limit)
	if err != nil {
		return err
	}

	r := report{
		Generated: time.Now().UTC().Format(time.RFC3339),
		Runs:      make([]runReport, 0, len(runs)),
	}
	for _, run := range runs {
		output := run.Output
		if output == nil {
			output = []string{}
		}
		r.Runs = append(r.Runs, runReport{
			ID:       run.ID,
			Started:  run.Started.UTC().Format(time.RFC3339Nano),
			Duration: run.Duration.String(),
			Program:  run.ProgramHash,
			Steps:    run.Steps,
			Halt:     run.Reason,
			Error:    run.Err,
			Source:   run.Source,
			Output:   output,
		})
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("history: export: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("history: encoder close: %w", err)
	}
	log.Debugf("exported %d runs", len(r.Runs))
	return nil
}
