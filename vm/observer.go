package vm

import "github.com/deepnoodle-ai/npp/heap"

// Observer is an interface for observing VM execution events.
// Implementations can be used for profiling, call tracing or collector
// monitoring without modifying the VM.
//
// Implementations can embed NoOpObserver to provide default no-op
// implementations for methods they don't need.
type Observer interface {
	// OnCall is called when a closure, class initializer or native is
	// invoked. Returns false to halt execution.
	OnCall(event CallEvent) bool

	// OnReturn is called when a closure returns. Returns false to halt
	// execution.
	OnReturn(event ReturnEvent) bool

	// OnCollect is called after every garbage collection.
	OnCollect(event CollectEvent)
}

// CallEvent contains information about a function call.
type CallEvent struct {
	// FunctionName is the name of the function being called. The top-level
	// script has an empty name.
	FunctionName string

	// ArgCount is the number of arguments passed to the function.
	ArgCount int

	// Line is the source line of the call site, 0 for calls made by the host.
	Line int

	// FrameDepth is the call stack depth after the call. Natives do not
	// push a frame.
	FrameDepth int

	// Native is set for calls to host functions.
	Native bool
}

// ReturnEvent contains information about a function return.
type ReturnEvent struct {
	// FunctionName is the name of the function returning.
	FunctionName string

	// Line is the source line of the return.
	Line int

	// FrameDepth is the call stack depth after returning.
	FrameDepth int
}

// CollectEvent describes a completed garbage collection.
type CollectEvent struct {
	heap.Cycle
}

// NoOpObserver is an Observer implementation that does nothing.
type NoOpObserver struct{}

func (NoOpObserver) OnCall(CallEvent) bool     { return true }
func (NoOpObserver) OnReturn(ReturnEvent) bool { return true }
func (NoOpObserver) OnCollect(CollectEvent)    {}

// Ensure NoOpObserver implements Observer.
var _ Observer = NoOpObserver{}

func (vm *VirtualMachine) onCollect(cycle heap.Cycle) {
	if vm.observer != nil {
		vm.observer.OnCollect(CollectEvent{Cycle: cycle})
	}
}
