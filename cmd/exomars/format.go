package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/exomars/compiler"
)

const (
	sourceExt = ".rover"
	imageExt  = ".rvi"
)

// ---------------------------------------------------------------------------
// CLI command: exomars fmt
// ---------------------------------------------------------------------------

func handleFmtCommand(args []string) {
	checkMode := false
	var files []string

	for _, arg := range args {
		if arg == "--check" {
			checkMode = true
		} else if arg == "--help" || arg == "-h" {
			fmt.Fprintf(os.Stderr, "Usage: exomars fmt [--check] <files or directories...>\n\n")
			fmt.Fprintf(os.Stderr, "Indent rover programs, one tab per open block.\n\n")
			fmt.Fprintf(os.Stderr, "Options:\n")
			fmt.Fprintf(os.Stderr, "  --check   Check formatting without modifying files.\n")
			fmt.Fprintf(os.Stderr, "            Exits with code 1 if any files need formatting.\n\n")
			fmt.Fprintf(os.Stderr, "If no files are given, formats all %s files in the current directory.\n", sourceExt)
			os.Exit(0)
		} else {
			files = append(files, arg)
		}
	}

	if len(files) == 0 {
		files = []string{"."}
	}

	sources, err := collectSourceFiles(files)
	if err != nil {
		fatal(err)
	}
	if len(sources) == 0 {
		fmt.Fprintf(os.Stderr, "No %s files found\n", sourceExt)
		os.Exit(0)
	}

	anyChanged := false
	for _, path := range sources {
		changed, err := formatFile(path, checkMode)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error formatting %s: %v\n", path, err)
			os.Exit(1)
		}
		if changed {
			anyChanged = true
		}
	}

	if checkMode && anyChanged {
		os.Exit(1)
	}
}

// formatFile formats a single source file.
// In check mode, returns true if the file would be changed.
// Otherwise, rewrites the file in place and returns true if it changed.
func formatFile(path string, checkMode bool) (bool, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}

	original := string(content)
	formatted := compiler.Format(strings.TrimRight(original, "\n")) + "\n"
	if original == formatted {
		return false, nil
	}

	if checkMode {
		fmt.Printf("would format: %s\n", path)
		return true, nil
	}

	if err := os.WriteFile(path, []byte(formatted), 0644); err != nil {
		return false, err
	}
	fmt.Printf("formatted: %s\n", path)
	return true, nil
}

// collectSourceFiles resolves paths to a flat list of source files.
// Directories are walked recursively; named files are taken as given.
func collectSourceFiles(paths []string) ([]string, error) {
	var result []string

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("cannot access %q: %w", p, err)
		}

		if !info.IsDir() {
			result = append(result, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(path, sourceExt) {
				result = append(result, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}
