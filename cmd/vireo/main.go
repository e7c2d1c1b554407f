// Vireo CLI - runs Vireo programs and an interactive REPL.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/vireo/builtin"
	"github.com/chazu/vireo/interp"
	"github.com/chazu/vireo/manifest"
	"github.com/chazu/vireo/pkg/parser"
	"github.com/chazu/vireo/vm"
)

func main() {
	verbose := flag.Bool("v", false, "Verbose output")
	interactive := flag.Bool("i", false, "Start interactive REPL")
	trace := flag.Bool("trace", false, "Log every executed instruction")
	disasm := flag.Bool("disasm", false, "Print the compiled instruction listing before running")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: vireo [options] [file.vireo]\n\n")
		fmt.Fprintf(os.Stderr, "Runs a Vireo program, or a REPL when no file is given.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  vireo -i                 # Start REPL\n")
		fmt.Fprintf(os.Stderr, "  vireo examples/point.vireo\n")
	}
	flag.Parse()

	verbosity := 0
	if *verbose {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	mf, err := manifest.FindAndLoad(cwd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	rt := vm.NewRuntime()
	rt.Trace = *trace
	if mf != nil {
		if mf.Runtime.MaxFrames > 0 {
			rt.MaxFrames = mf.Runtime.MaxFrames
		}
		if mf.Runtime.Trace {
			rt.Trace = true
		}
	}
	if err := builtin.Register(rt); err != nil {
		fmt.Fprintf(os.Stderr, "Error registering builtins: %v\n", err)
		os.Exit(1)
	}

	path := flag.Arg(0)
	if path == "" && mf != nil && !*interactive {
		path = mf.EntryPath()
	}

	if path != "" {
		if err := runFile(rt, path, *disasm); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if !*interactive {
			return
		}
	}

	if *interactive || isatty.IsTerminal(os.Stdin.Fd()) {
		runREPL(rt, mf)
		return
	}
	flag.Usage()
	os.Exit(2)
}

func runFile(rt *vm.Runtime, path string, disasm bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	expr, err := parser.Parse(string(data))
	if err != nil {
		return err
	}
	if disasm {
		code, err := vm.CompileToplevel(expr)
		if err != nil {
			return err
		}
		fmt.Print(vm.Disassemble(code))
	}
	_, err = rt.EvalToplevel(expr, nil)
	return err
}

func runREPL(rt *vm.Runtime, mf *manifest.Manifest) {
	prompt := ">> "
	if mf != nil && mf.Repl.Prompt != "" {
		prompt = mf.Repl.Prompt
	}
	fmt.Println("Vireo REPL. Ctrl-D to exit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(prompt)
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		value, err := interp.EvalString(rt, line)
		if err != nil {
			// Parse errors and runtime failures alike end only this
			// statement; the REPL resumes at the next one.
			fmt.Fprintf(os.Stderr, "%v\n", err)
			continue
		}
		fmt.Println(value)
	}
}
