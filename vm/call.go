package vm

import (
	"github.com/deepnoodle-ai/npp/errz"
	"github.com/deepnoodle-ai/npp/heap"
	"github.com/deepnoodle-ai/npp/value"
)

// callValue calls the callee sitting below argc arguments on the stack.
func (vm *VirtualMachine) callValue(callee value.Value, argc int) error {
	if callee.IsObject() {
		switch obj := vm.heap.Get(callee.AsRef()).(type) {
		case *heap.Closure:
			return vm.call(callee.AsRef(), argc)
		case *heap.Native:
			return vm.callNative(obj, argc)
		case *heap.BoundMethod:
			vm.stack[vm.sp-argc-1] = obj.Receiver
			return vm.call(obj.Method, argc)
		case *heap.Class:
			// The class stays reachable in the callee slot until the
			// instance replaces it.
			instance := vm.heap.NewInstance(callee.AsRef())
			vm.stack[vm.sp-argc-1] = value.Object(instance)
			if initializer, ok := obj.Methods.Get(vm.initString); ok {
				return vm.call(initializer.AsRef(), argc)
			}
			if argc != 0 {
				return vm.arityError(0, argc)
			}
			return nil
		}
	}
	return vm.runtimeError(errz.ErrType, "Can only call functions and classes.")
}

// call pushes a frame for closure whose window starts at the callee slot.
func (vm *VirtualMachine) call(closure value.Ref, argc int) error {
	fn := heap.MustAs[*heap.Function](vm.heap, heap.MustAs[*heap.Closure](vm.heap, closure).Function)
	if argc != fn.Arity {
		return vm.arityError(fn.Arity, argc)
	}
	if vm.fp == len(vm.frames) {
		return vm.runtimeError(errz.ErrStackOverflow, "Stack overflow.")
	}
	vm.frames[vm.fp].activate(closure, fn, vm.sp-argc-1)
	vm.fp++
	if vm.observer != nil {
		event := CallEvent{
			FunctionName: vm.functionName(fn),
			ArgCount:     argc,
			Line:         vm.lineAt(vm.fp - 2),
			FrameDepth:   vm.fp,
		}
		if !vm.observer.OnCall(event) {
			return vm.runtimeError(errz.ErrRuntime, "Execution halted by observer.")
		}
	}
	return nil
}

// callNative runs a host function on the argument window and replaces the
// callee and arguments with its result.
func (vm *VirtualMachine) callNative(native *heap.Native, argc int) error {
	if vm.observer != nil {
		event := CallEvent{
			FunctionName: native.Name,
			ArgCount:     argc,
			Line:         vm.lineAt(vm.fp - 1),
			FrameDepth:   vm.fp,
			Native:       true,
		}
		if !vm.observer.OnCall(event) {
			return vm.runtimeError(errz.ErrRuntime, "Execution halted by observer.")
		}
	}
	args := vm.stack[vm.sp-argc : vm.sp]
	result, err := native.Fn(args)
	if err != nil {
		return vm.nativeError(err)
	}
	vm.sp -= argc + 1
	vm.push(result)
	return nil
}

func (vm *VirtualMachine) invoke(name value.Ref, argc int) error {
	receiver := vm.peek(argc)
	instance, ok := heap.As[*heap.Instance](vm.heap, receiver)
	if !ok {
		return vm.runtimeError(errz.ErrType, "Only instances have methods.")
	}
	if field, ok := instance.Fields.Get(name); ok {
		vm.stack[vm.sp-argc-1] = field
		return vm.callValue(field, argc)
	}
	return vm.invokeFromClass(instance.Class, name, argc)
}

func (vm *VirtualMachine) invokeFromClass(class, name value.Ref, argc int) error {
	method, ok := heap.MustAs[*heap.Class](vm.heap, class).Methods.Get(name)
	if !ok {
		return vm.runtimeError(errz.ErrName, "Undefined property '%s'.", vm.heap.Text(name))
	}
	return vm.call(method.AsRef(), argc)
}

// bindMethod replaces the instance on top of the stack with its method
// name bound to it.
func (vm *VirtualMachine) bindMethod(class, name value.Ref) error {
	method, ok := heap.MustAs[*heap.Class](vm.heap, class).Methods.Get(name)
	if !ok {
		return vm.runtimeError(errz.ErrName, "Undefined property '%s'.", vm.heap.Text(name))
	}
	bound := vm.heap.NewBoundMethod(vm.peek(0), method.AsRef())
	vm.pop()
	vm.push(value.Object(bound))
	return nil
}

// makeClosure decodes a CLOSURE instruction. The closure is pushed before
// its upvalues are captured so it is reachable while they are allocated.
func (vm *VirtualMachine) makeClosure(f *frame) error {
	fnRef := f.chunk.Constants[f.fetch()].AsRef()
	count := f.fetch()
	fn := heap.MustAs[*heap.Function](vm.heap, fnRef)
	if count != fn.UpvalueCount {
		return vm.runtimeError(errz.ErrRuntime, "Closure captures %d variables but '%s' declares %d.",
			count, vm.functionName(fn), fn.UpvalueCount)
	}
	ref := vm.heap.NewClosure(fnRef)
	vm.push(value.Object(ref))
	enclosing := heap.MustAs[*heap.Closure](vm.heap, f.closure)
	for i := 0; i < count; i++ {
		isLocal := f.fetch()
		index := f.fetch()
		var upvalue value.Ref
		if isLocal != 0 {
			upvalue = vm.captureUpvalue(f.base + index)
		} else {
			upvalue = enclosing.Upvalues[index]
		}
		heap.MustAs[*heap.Closure](vm.heap, ref).Upvalues[i] = upvalue
	}
	return nil
}

// captureUpvalue returns the open upvalue for slot, creating and linking a
// new one if none exists. The open list is kept sorted by descending slot.
func (vm *VirtualMachine) captureUpvalue(slot int) value.Ref {
	prev := value.NoRef
	current := vm.openUpvalues
	for !current.IsZero() {
		upvalue := heap.MustAs[*heap.Upvalue](vm.heap, current)
		s, _ := upvalue.Slot()
		if s <= slot {
			if s == slot {
				return current
			}
			break
		}
		prev = current
		current = upvalue.Next
	}
	created := vm.heap.NewUpvalue(slot)
	heap.MustAs[*heap.Upvalue](vm.heap, created).Next = current
	if prev.IsZero() {
		vm.openUpvalues = created
	} else {
		heap.MustAs[*heap.Upvalue](vm.heap, prev).Next = created
	}
	return created
}

// closeUpvalues closes every open upvalue at or above slot last.
func (vm *VirtualMachine) closeUpvalues(last int) {
	for !vm.openUpvalues.IsZero() {
		upvalue := heap.MustAs[*heap.Upvalue](vm.heap, vm.openUpvalues)
		slot, _ := upvalue.Slot()
		if slot < last {
			return
		}
		next := upvalue.Next
		upvalue.Close(vm.stack[slot])
		vm.openUpvalues = next
	}
}

func (vm *VirtualMachine) notifyReturn(f *frame) error {
	if vm.observer == nil {
		return nil
	}
	event := ReturnEvent{
		FunctionName: vm.functionName(f.fn),
		Line:         f.line(),
		FrameDepth:   vm.fp - 1,
	}
	if !vm.observer.OnReturn(event) {
		return vm.runtimeError(errz.ErrRuntime, "Execution halted by observer.")
	}
	return nil
}

func (vm *VirtualMachine) functionName(fn *heap.Function) string {
	if fn.Name.IsZero() {
		return ""
	}
	return vm.heap.Text(fn.Name)
}

// lineAt returns the current line of the frame at index, or 0 if there is
// no such frame.
func (vm *VirtualMachine) lineAt(index int) int {
	if index < 0 || index >= vm.fp || vm.frames[index].ip == 0 {
		return 0
	}
	return vm.frames[index].line()
}
