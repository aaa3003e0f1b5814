package vm

import (
	"bufio"
	"io"

	"github.com/rs/zerolog"

	"github.com/deepnoodle-ai/npp/errz"
)

// Option is a configuration function for a Virtual Machine.
type Option func(*VirtualMachine)

// WithMaxFrames sets the depth of the frame stack. The value stack holds
// SlotsPerFrame slots per frame. Values below 1 are ignored.
func WithMaxFrames(n int) Option {
	return func(vm *VirtualMachine) {
		if n > 0 {
			vm.maxFrames = n
		}
	}
}

// WithCompiler sets the compiler used by Interpret and the interpret native.
func WithCompiler(c Compiler) Option {
	return func(vm *VirtualMachine) {
		vm.compiler = c
	}
}

// WithStdout sets the writer used by print and the output natives.
func WithStdout(w io.Writer) Option {
	return func(vm *VirtualMachine) {
		vm.stdout = w
	}
}

// WithStderr sets the writer diagnostics are reported to.
func WithStderr(w io.Writer) Option {
	return func(vm *VirtualMachine) {
		vm.stderr = w
	}
}

// WithStdin sets the reader used by the input natives.
func WithStdin(r io.Reader) Option {
	return func(vm *VirtualMachine) {
		vm.stdin = bufio.NewReader(r)
	}
}

// WithLogger sets the logger. The VM adds its ID to the logger context.
func WithLogger(logger zerolog.Logger) Option {
	return func(vm *VirtualMachine) {
		vm.logger = logger
	}
}

// WithObserver sets an observer for VM execution events.
//
// Observer methods are called synchronously during execution, so
// implementations should be fast to avoid impacting performance.
// Returning false from OnCall or OnReturn aborts execution with a runtime
// error.
func WithObserver(observer Observer) Option {
	return func(vm *VirtualMachine) {
		vm.observer = observer
	}
}

// WithArgs sets the arguments exposed through the argc and argv natives.
func WithArgs(args []string) Option {
	return func(vm *VirtualMachine) {
		vm.args = args
	}
}

// WithHeapLimit caps the number of heap bytes. Exceeding it is fatal.
func WithHeapLimit(n int) Option {
	return func(vm *VirtualMachine) {
		vm.heapLimit = n
	}
}

// WithGCThreshold sets the byte count that triggers the first collection.
func WithGCThreshold(n int) Option {
	return func(vm *VirtualMachine) {
		vm.gcThreshold = n
	}
}

// WithStressGC collects on every growing allocation.
func WithStressGC(enabled bool) Option {
	return func(vm *VirtualMachine) {
		vm.stressGC = enabled
	}
}

// WithoutNatives skips registration of the standard natives.
func WithoutNatives() Option {
	return func(vm *VirtualMachine) {
		vm.noNatives = true
	}
}

// WithErrorFormatter sets the formatter used to report errors.
func WithErrorFormatter(f *errz.Formatter) Option {
	return func(vm *VirtualMachine) {
		vm.formatter = f
	}
}

// WithExhaustedHandler replaces the handler run when the heap limit is
// exceeded. By default the process exits.
func WithExhaustedHandler(fn func(error)) Option {
	return func(vm *VirtualMachine) {
		vm.onExhausted = fn
	}
}
