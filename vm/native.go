package vm

import (
	"github.com/deepnoodle-ai/npp/heap"
	"github.com/deepnoodle-ai/npp/value"
)

// DefineNative binds name to fn in the globals table. The name and the
// native are kept on the stack while the binding is made, so a collection
// triggered by either allocation cannot reclaim them.
func (vm *VirtualMachine) DefineNative(name string, fn heap.NativeFn) {
	vm.push(value.Object(vm.heap.Intern(name)))
	vm.push(value.Object(vm.heap.NewNative(name, fn)))
	vm.globals.Set(vm.peek(1).AsRef(), vm.peek(0))
	vm.pop()
	vm.pop()
}
