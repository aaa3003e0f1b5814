// Command npp runs npp bytecode assembly files, disassembles them and
// provides a line-at-a-time REPL.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

// Exit statuses follow sysexits.h.
const (
	exitOK       = 0
	exitUsage    = 64
	exitDataErr  = 65
	exitSoftware = 70
	exitIOErr    = 74
	exitConfig   = 78
)

// exitError carries the process status for a failed command. Reported
// errors were already written to stderr by the virtual machine.
type exitError struct {
	code     int
	err      error
	reported bool
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitf(code int, format string, args ...any) error {
	return &exitError{code: code, err: fmt.Errorf(format, args...)}
}

type app struct {
	stdin       io.Reader
	stdout      io.Writer
	stderr      io.Writer
	interactive bool

	configPath string
	logLevel   string
	maxFrames  int
	stressGC   bool
	noColor    bool
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "npp [file.npp] [-- args...]",
		Short:         "Run npp bytecode programs",
		Long:          "npp assembles and runs bytecode programs. With no file it starts a REPL.",
		Version:       version,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return a.repl(cmd)
			}
			path, scriptArgs, err := splitScriptArgs(args, cmd.ArgsLenAtDash())
			if err != nil {
				return err
			}
			return a.runFile(cmd, path, scriptArgs)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "path to an npp.toml file")
	flags.StringVar(&a.logLevel, "log-level", "warn", "log level (trace|debug|info|warn|error)")
	flags.IntVar(&a.maxFrames, "max-frames", 0, "maximum call depth")
	flags.BoolVar(&a.stressGC, "stress-gc", false, "collect garbage on every allocation")
	flags.BoolVar(&a.noColor, "no-color", false, "disable colored output")

	root.SetHelpCommand(&cobra.Command{
		Use:   "help",
		Short: "Print usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(a.stdout, root.UsageString())
			return &exitError{code: exitUsage, err: errors.New("usage requested"), reported: true}
		},
	})
	root.AddCommand(newDisCmd(a))

	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	return root
}

// execute runs the CLI and returns the process exit status.
func execute(a *app, args []string) int {
	root := newRootCmd(a)
	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if !ee.reported {
			a.fatal(ee.err)
		}
		return ee.code
	}
	// Flag and argument parsing errors.
	a.fatal(err)
	return exitUsage
}

func main() {
	a := &app{
		stdin:       os.Stdin,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		interactive: isTerminalIO(),
	}
	os.Exit(execute(a, os.Args[1:]))
}
