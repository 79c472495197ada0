// ExoMars CLI - compile, run and inspect rover programs
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/exomars/config"
	"github.com/chazu/exomars/vm"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: exomars [options] <command> [arguments]\n\n")
	fmt.Fprintf(os.Stderr, "Compiles and runs rover programs in a grid world.\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  run <file>         Run a program to completion\n")
	fmt.Fprintf(os.Stderr, "  step <file>        Step through a program one instruction at a time\n")
	fmt.Fprintf(os.Stderr, "  check <files...>   Report compile errors\n")
	fmt.Fprintf(os.Stderr, "  disasm <file>      Print the compiled instructions\n")
	fmt.Fprintf(os.Stderr, "  build <file>       Write a program image\n")
	fmt.Fprintf(os.Stderr, "  decompile <image>  Print source for a program image\n")
	fmt.Fprintf(os.Stderr, "  fmt [--check] ...  Indent source files\n")
	fmt.Fprintf(os.Stderr, "  history ...        List, show or delete recorded runs\n")
	fmt.Fprintf(os.Stderr, "  lsp                Start the language server on stdio\n")
	fmt.Fprintf(os.Stderr, "\nOptions:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nSettings are read from the nearest %s; see 'exomars run -h'.\n", config.FileName)
}

func main() {
	verbose := flag.Int("v", -1, "Log verbosity (overrides log.verbosity)")
	configDir := flag.String("C", ".", "Directory to search for "+config.FileName)
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *verbose >= 0 {
		cfg.Log.Verbosity = *verbose
	}
	setupLogging(cfg)

	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	case "run":
		handleRunCommand(cfg, args)
	case "step":
		handleStepCommand(cfg, args)
	case "check":
		handleCheckCommand(args)
	case "disasm":
		handleDisasmCommand(args)
	case "build":
		handleBuildCommand(args)
	case "decompile":
		handleDecompileCommand(args)
	case "fmt":
		handleFmtCommand(args)
	case "history":
		handleHistoryCommand(cfg, args)
	case "lsp":
		handleLSPCommand()
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}
}

// loadConfig finds the nearest exomars.toml, falling back to the defaults.
func loadConfig(dir string) (*config.Config, error) {
	cfg, err := config.FindAndLoad(dir)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config) {
	if cfg.Log.File == "" {
		commonlog.Configure(cfg.Log.Verbosity, nil)
		return
	}
	path := cfg.Log.File
	commonlog.Configure(cfg.Log.Verbosity, &path)
}

// program is a compiled program together with the source it came from.
type program struct {
	path   string
	source string
	prog   *vm.Program // set when loaded from an image
}

// readProgram reads a source file or a program image.
func readProgram(path string) (*program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(data, vm.ImageMagic) {
		return &program{path: path, source: string(data)}, nil
	}
	prog, source, err := vm.UnmarshalProgram(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &program{path: path, source: source, prog: prog}, nil
}

// install puts p on m, compiling it unless it came from an image.
func (p *program) install(m *vm.Machine) error {
	if p.prog != nil {
		return m.Load(p.prog)
	}
	return m.Compile(p.source)
}

// fatal prints err and exits with status 1.
func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// oneArg returns the single positional argument of fs or exits with usage.
func oneArg(fs *flag.FlagSet) string {
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}
	return fs.Arg(0)
}
