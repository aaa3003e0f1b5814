package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

const prompt = "> "

// repl interprets one line at a time on a shared machine until stdin
// closes. Errors are reported and the session continues.
func (a *app) repl(cmd *cobra.Command) error {
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return err
	}
	machine := a.newMachine(cfg, "", nil)
	defer machine.Free()

	// Share the machine's reader so receive() sees the same buffered input.
	reader := machine.Stdin()
	for {
		if a.interactive {
			fmt.Fprint(a.stdout, prompt)
		}
		line, err := reader.ReadString('\n')
		if text := strings.TrimRight(line, "\r\n"); strings.TrimSpace(text) != "" {
			machine.Interpret(text)
		}
		if errors.Is(err, io.EOF) {
			if a.interactive {
				fmt.Fprintln(a.stdout)
			}
			return nil
		}
		if err != nil {
			return &exitError{code: exitIOErr, err: err}
		}
	}
}
