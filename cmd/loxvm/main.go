// Command loxvm is the CLI and REPL entry point (spec §6), the external
// collaborator the core compiler/runtime packages are deliberately silent
// about. Grounded on ProbeChain-go-probe/cmd/gprobe's use of
// gopkg.in/urfave/cli.v1 for the command surface.
package main

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/peterh/liner"
	"gopkg.in/urfave/cli.v1"

	"github.com/loxvm/loxvm/compiler"
	"github.com/loxvm/loxvm/runtime"
)

// Exit codes per spec §6.
const (
	exitSuccess    = 0
	exitDataErr    = 65
	exitRuntimeErr = 1
	exitUsageErr   = 64
)

func main() {
	app := cli.NewApp()
	app.Name = "loxvm"
	app.Usage = "a bytecode compiler and VM for the scripting language described in this repository"
	app.ArgsUsage = "[script]"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "debug-gc",
			Usage: "dump the heap object list (github.com/davecgh/go-spew) after the program runs",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUsageErr)
	}
}

func run(ctx *cli.Context) error {
	debugGC := ctx.Bool("debug-gc")
	switch ctx.NArg() {
	case 0:
		repl()
		return nil
	case 1:
		os.Exit(runFile(ctx.Args().Get(0), debugGC))
		return nil
	default:
		fmt.Fprintln(os.Stderr, "usage: loxvm [script]")
		os.Exit(exitUsageErr)
		return nil
	}
}

// runFile compiles and runs one script, returning the process exit code
// spec §6 assigns to its outcome. With debugGC set, it prints a go-spew dump
// of the VM's heap object list to stderr once the program has finished
// running (or failed), regardless of outcome.
func runFile(path string, debugGC bool) int {
	src, err := ioutil.ReadFile(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsageErr
	}

	vm := runtime.New()
	defer vm.Close()

	fn, err := compiler.Compile(vm, string(src))
	if err != nil {
		fmt.Fprintln(os.Stderr, diagString(err))
		return exitDataErr
	}

	runErr := vm.Interpret(fn)
	if debugGC {
		fmt.Fprintln(os.Stderr, vm.DumpHeap())
	}
	if runErr != nil {
		fmt.Fprintln(os.Stderr, diagString(runErr))
		return exitRuntimeErr
	}
	return exitSuccess
}

// diagString renders a compile/runtime error for stderr, in red when stderr
// is a terminal.
func diagString(err error) string {
	if isatty.IsTerminal(os.Stderr.Fd()) {
		return color.RedString(err.Error())
	}
	return err.Error()
}

// repl runs a line-at-a-time read-eval-print loop against a single
// long-lived VM, terminating on EOF of standard input (spec §6). Each line
// is compiled and run independently, so a compile error on one line leaves
// the VM's globals from earlier lines intact -- there is no shared
// top-level lexical scope to unwind.
func repl() {
	vm := runtime.New()
	defer vm.Close()

	out := stdoutWriter()
	vm.Stdout = out
	vm.Stderr = os.Stderr

	prompt := "> "
	if isatty.IsTerminal(os.Stdout.Fd()) {
		prompt = color.CyanString("loxvm> ")
	}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		text, err := line.Prompt(prompt)
		if err == io.EOF {
			fmt.Fprintln(out)
			return
		}
		if err == liner.ErrPromptAborted {
			continue
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return
		}
		if text == "" {
			continue
		}
		line.AppendHistory(text)
		evalLine(vm, text)
	}
}

func evalLine(vm *runtime.VM, text string) {
	fn, err := compiler.Compile(vm, text)
	if err != nil {
		fmt.Fprintln(vm.Stderr, diagString(err))
		return
	}
	if err := vm.Interpret(fn); err != nil {
		fmt.Fprintln(vm.Stderr, diagString(err))
	}
}

// stdoutWriter wraps os.Stdout with colorable on platforms (Windows) where
// ANSI escapes written by github.com/fatih/color need translation; it is a
// no-op passthrough elsewhere.
func stdoutWriter() io.Writer {
	return colorable.NewColorableStdout()
}
