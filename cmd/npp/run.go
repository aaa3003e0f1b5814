package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/deepnoodle-ai/npp/asm"
	"github.com/deepnoodle-ai/npp/config"
	"github.com/deepnoodle-ai/npp/errz"
	"github.com/deepnoodle-ai/npp/vm"
)

const extension = ".npp"

func (a *app) newMachine(cfg *config.Config, filename string, args []string) *vm.VirtualMachine {
	logger := a.logger(cfg)
	options := append(cfg.Options(),
		vm.WithCompiler(asm.New(asm.WithFilename(filename), asm.WithLogger(logger))),
		vm.WithStdin(a.stdin),
		vm.WithStdout(a.stdout),
		vm.WithStderr(a.stderr),
		vm.WithLogger(logger),
		vm.WithArgs(args),
		vm.WithErrorFormatter(errz.NewFormatter(a.useColor())),
	)
	return vm.New(options...)
}

// readScript checks the extension and reads the file at path.
func readScript(path string) (string, error) {
	if !strings.HasSuffix(path, extension) {
		return "", exitf(exitIOErr, "Error: The file %q does not have the required %q extension.", path, extension)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", exitf(exitIOErr, "Error: Could not open file %q: %s", path, unwrapPathError(err))
	}
	return string(data), nil
}

func unwrapPathError(err error) error {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return pathErr.Err
	}
	return err
}

func (a *app) runFile(cmd *cobra.Command, path string, scriptArgs []string) error {
	source, err := readScript(path)
	if err != nil {
		return err
	}
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return err
	}
	machine := a.newMachine(cfg, filepath.Base(path), scriptArgs)
	defer machine.Free()
	result, err := machine.Interpret(source)
	return resultError(result, err)
}

// resultError maps an interpreter outcome onto an exit status. The machine
// has already reported compile and runtime errors.
func resultError(result vm.Result, err error) error {
	switch result {
	case vm.ResultOK:
		return nil
	case vm.ResultCompileError:
		if errors.Is(err, vm.ErrNoCompiler) {
			return &exitError{code: exitSoftware, err: err}
		}
		return &exitError{code: exitDataErr, err: err, reported: true}
	default:
		if err == nil {
			err = fmt.Errorf("runtime error")
		}
		return &exitError{code: exitSoftware, err: err, reported: true}
	}
}
