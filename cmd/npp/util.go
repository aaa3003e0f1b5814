package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/deepnoodle-ai/npp/config"
)

var red = color.New(color.FgRed).SprintFunc()

func (a *app) fatal(msg any) {
	var s string
	switch msg := msg.(type) {
	case string:
		s = msg
	case error:
		s = msg.Error()
	default:
		s = fmt.Sprintf("%v", msg)
	}
	fmt.Fprintf(a.stderr, "%s\n", red(s))
}

func isTerminalIO() bool {
	stdin := os.Stdin.Fd()
	stdout := os.Stdout.Fd()
	inTerm := isatty.IsTerminal(stdin) || isatty.IsCygwinTerminal(stdin)
	outTerm := isatty.IsTerminal(stdout) || isatty.IsCygwinTerminal(stdout)
	return inTerm && outTerm
}

func indexOf(arr []string, val string) int {
	for i, v := range arr {
		if v == val {
			return i
		}
	}
	return -1
}

// splitScriptArgs separates the script path from the arguments meant for
// the script. Script arguments follow "--" or "//".
func splitScriptArgs(args []string, dash int) (string, []string, error) {
	positional, scriptArgs := args, []string{}
	if dash >= 0 {
		positional, scriptArgs = args[:dash], args[dash:]
	} else if i := indexOf(args, "//"); i >= 0 {
		positional, scriptArgs = args[:i], args[i+1:]
	}
	if len(positional) != 1 {
		return "", nil, exitf(exitUsage, "Usage: npp [file.npp] [-- args...]")
	}
	return positional[0], scriptArgs, nil
}

func (a *app) useColor() bool {
	return a.interactive && !a.noColor
}

// loadConfig reads npp.toml and applies flag overrides.
func (a *app) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = config.Load(a.configPath)
	} else {
		cfg, err = config.FindAndLoad(".")
	}
	if err != nil {
		return nil, &exitError{code: exitConfig, err: err}
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = a.logLevel
	}
	if flags.Changed("max-frames") {
		cfg.VM.MaxFrames = a.maxFrames
	}
	if flags.Changed("stress-gc") {
		cfg.GC.Stress = a.stressGC
	}
	if err := cfg.Validate(); err != nil {
		return nil, &exitError{code: exitConfig, err: err}
	}
	color.NoColor = !a.useColor()
	return cfg, nil
}

func (a *app) logger(cfg *config.Config) zerolog.Logger {
	level, err := cfg.Level()
	if err != nil {
		level = zerolog.WarnLevel
	}
	var out io.Writer = a.stderr
	if strings.EqualFold(cfg.Log.Format, "console") {
		out = zerolog.ConsoleWriter{Out: a.stderr, NoColor: !a.useColor()}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
