package natives

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/deepnoodle-ai/npp/heap"
	"github.com/deepnoodle-ai/npp/value"
)

// MaxInputLine is the longest line receive returns.
const MaxInputLine = 1023

// Broadcast prints its argument followed by a newline.
func (n *Natives) Broadcast(args []value.Value) (value.Value, error) {
	if err := Arity(args, 1); err != nil {
		return value.Null(), err
	}
	fmt.Fprintln(n.host.Stdout(), n.heap.Format(args[0]))
	return value.Null(), nil
}

// Receive prints its argument as a prompt and returns one line of input
// without the trailing newline.
func (n *Natives) Receive(args []value.Value) (value.Value, error) {
	if err := Arity(args, 1); err != nil {
		return value.Null(), err
	}
	fmt.Fprint(n.host.Stdout(), n.heap.Format(args[0]))
	line, err := n.host.Stdin().ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return value.Null(), Error("Could not read input: %s", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if len(line) > MaxInputLine {
		line = line[:MaxInputLine]
	}
	return value.Object(n.heap.Intern(line)), nil
}

// System runs a shell command and returns its exit status.
func (n *Natives) System(args []value.Value) (value.Value, error) {
	if err := Arity(args, 1); err != nil {
		return value.Null(), err
	}
	if !n.heap.Is(args[0], heap.KindString) {
		return value.Null(), TypeError("Argument must be a string.")
	}
	cmd := exec.Command("sh", "-c", n.heap.Text(args[0].AsRef()))
	cmd.Stdin = n.host.Stdin()
	cmd.Stdout = n.host.Stdout()
	cmd.Stderr = n.host.Stderr()
	err := cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return value.Number(0), nil
	case errors.As(err, &exitErr):
		return value.Number(float64(exitErr.ExitCode())), nil
	default:
		return value.Null(), Error("Could not run command: %s", err)
	}
}
