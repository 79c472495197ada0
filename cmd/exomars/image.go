package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/chazu/exomars/compiler"
	"github.com/chazu/exomars/vm"
)

// handleCheckCommand compiles each file and reports errors as
// file:line: message. Exits 1 if any file fails.
func handleCheckCommand(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: exomars check <files or directories...>")
		os.Exit(2)
	}
	files, err := collectSourceFiles(args)
	if err != nil {
		fatal(err)
	}

	failed := false
	for _, path := range files {
		src, err := os.ReadFile(path)
		if err != nil {
			fatal(err)
		}
		if _, err := compiler.Compile(string(src), nil); err != nil {
			failed = true
			var se *compiler.SyntaxError
			if errors.As(err, &se) {
				fmt.Fprintf(os.Stderr, "%s:%d: %s\n", path, se.Line, se.Msg)
			} else {
				fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			}
		}
	}
	if failed {
		os.Exit(1)
	}
}

// compileArg compiles a source file or loads an image named by the single
// argument of fs.
func compileArg(fs *flag.FlagSet) (*program, *vm.Program) {
	p, err := readProgram(oneArg(fs))
	if err != nil {
		fatal(err)
	}
	if p.prog != nil {
		return p, p.prog
	}
	prog, err := compiler.Compile(p.source, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", p.path, err)
		os.Exit(1)
	}
	return p, prog
}

// handleDisasmCommand prints the instruction listing of a program.
func handleDisasmCommand(args []string) {
	fs := flag.NewFlagSet("disasm", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: exomars disasm <file>\n")
	}
	fs.Parse(args)
	_, prog := compileArg(fs)
	fmt.Print(prog.Disassemble())
}

// handleBuildCommand processes the `exomars build` subcommand.
// Usage:
//
//	exomars build spiral.rover               # spiral.rvi
//	exomars build -o out.rvi spiral.rover
//	exomars build -strip spiral.rover        # no embedded source
func handleBuildCommand(args []string) {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	output := fs.String("o", "", "Output image path (default: <file>.rvi)")
	strip := fs.Bool("strip", false, "Omit the source text from the image")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: exomars build [-o output] [-strip] <file>\n\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)
	p, prog := compileArg(fs)

	source := p.source
	if *strip {
		source = ""
	}
	data, err := vm.MarshalProgram(prog, source)
	if err != nil {
		fatal(err)
	}

	out := *output
	if out == "" {
		out = strings.TrimSuffix(p.path, sourceExt) + imageExt
	}
	if err := os.WriteFile(out, data, 0644); err != nil {
		fatal(err)
	}
	hash, err := vm.ProgramHash(prog)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("Wrote %s (%d instructions, %x)\n", out, prog.Len(), hash[:6])
}

// handleDecompileCommand prints source for an image. The embedded source is
// preferred unless -regen is given.
func handleDecompileCommand(args []string) {
	fs := flag.NewFlagSet("decompile", flag.ExitOnError)
	regen := fs.Bool("regen", false, "Regenerate source from instructions even if the image embeds it")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: exomars decompile [-regen] <image>\n\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)
	p, prog := compileArg(fs)

	if p.source != "" && !*regen && p.prog != nil {
		fmt.Print(p.source)
		if !strings.HasSuffix(p.source, "\n") {
			fmt.Println()
		}
		return
	}
	src, err := vm.Decompile(prog)
	if err != nil {
		fatal(err)
	}
	fmt.Print(src)
}
