package vm

import (
	"fmt"

	"github.com/deepnoodle-ai/npp/errz"
)

// RuntimeError builds a runtime error carrying the current backtrace. Natives
// return it to abort execution.
func (vm *VirtualMachine) RuntimeError(format string, args ...any) error {
	return vm.runtimeError(errz.ErrRuntime, format, args...)
}

func (vm *VirtualMachine) runtimeError(kind errz.ErrorKind, format string, args ...any) *errz.StructuredError {
	return errz.NewStructuredErrorf(kind, vm.currentLocation(), vm.captureStack(), format, args...)
}

func (vm *VirtualMachine) arityError(expected, got int) *errz.StructuredError {
	return vm.runtimeError(errz.ErrArity, "Expected %d arguments but got %d.", expected, got)
}

// nativeError attaches the backtrace to an error returned by a native.
// Errors that already carry one, such as those raised by a nested
// execution, pass through unchanged.
func (vm *VirtualMachine) nativeError(err error) error {
	if structured, ok := errz.As(err); ok {
		if structured.Stack != nil {
			return err
		}
		return vm.runtimeError(structured.Kind, "%s", structured.Message).WithCause(structured.Cause)
	}
	return vm.runtimeError(errz.ErrRuntime, "%s", err.Error()).WithCause(err)
}

// captureStack returns the active frames, innermost first.
func (vm *VirtualMachine) captureStack() []errz.StackFrame {
	stack := make([]errz.StackFrame, 0, vm.fp)
	for i := vm.fp - 1; i >= 0; i-- {
		f := &vm.frames[i]
		stack = append(stack, errz.StackFrame{
			Function: vm.functionName(f.fn),
			Line:     f.line(),
		})
	}
	return stack
}

func (vm *VirtualMachine) currentLocation() errz.SourceLocation {
	if vm.fp == 0 {
		return errz.SourceLocation{}
	}
	return errz.SourceLocation{Line: vm.frames[vm.fp-1].line()}
}

// fail reports err, resets the stacks and returns the runtime-error outcome.
// It is the single reporting path for every error raised while executing.
func (vm *VirtualMachine) fail(err error) (Result, error) {
	vm.logger.Debug().Err(err).Int("frames", vm.fp).Msg("runtime error")
	fmt.Fprint(vm.stderr, vm.formatter.Format(err))
	vm.resetStack()
	return ResultRuntimeError, err
}
