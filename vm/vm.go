// Package vm provides a VirtualMachine that executes npp bytecode.
package vm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog"

	"github.com/deepnoodle-ai/npp/errz"
	"github.com/deepnoodle-ai/npp/heap"
	"github.com/deepnoodle-ai/npp/memory"
	"github.com/deepnoodle-ai/npp/natives"
	"github.com/deepnoodle-ai/npp/op"
	"github.com/deepnoodle-ai/npp/value"
)

const (
	// DefaultMaxFrames is the default depth of the frame stack.
	DefaultMaxFrames = 88

	// InitName is the method run when a class is called.
	InitName = "init"
)

// Result is the outcome of an Interpret call.
type Result int

const (
	ResultOK Result = iota
	ResultCompileError
	ResultRuntimeError
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultCompileError:
		return "compile error"
	case ResultRuntimeError:
		return "runtime error"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

var (
	// ErrNoCompiler is returned by Interpret when no compiler is configured.
	ErrNoCompiler = errors.New("no compiler configured")

	// ErrRunning is returned when a top-level run is requested while the VM
	// is executing.
	ErrRunning = errors.New("vm is already running")

	errStackOverflow = errors.New("value stack overflow")
)

// Compiler turns source text into a top-level function on the given heap.
// Objects it allocates while compiling must stay reachable, for example by
// registering a heap.RootSource for the duration of the call.
type Compiler interface {
	Compile(h *heap.Heap, source string) (value.Ref, error)
}

// VirtualMachine executes bytecode. It owns its heap, value stack, frame
// stack and globals, so independent instances do not interact. It is not
// safe for concurrent use.
type VirtualMachine struct {
	id           uuid.UUID
	heap         *heap.Heap
	frames       []frame
	fp           int
	stack        []value.Value
	sp           int
	openUpvalues value.Ref
	globals      heap.Table
	initString   value.Ref

	compiler    Compiler
	stdout      io.Writer
	stderr      io.Writer
	stdin       *bufio.Reader
	formatter   *errz.Formatter
	logger      zerolog.Logger
	observer    Observer
	args        []string
	maxFrames   int
	heapLimit   int
	gcThreshold int
	stressGC    bool
	noNatives   bool
	onExhausted func(error)
}

// New creates a VirtualMachine with the standard natives registered.
func New(options ...Option) *VirtualMachine {
	vm := &VirtualMachine{
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		logger:      zerolog.Nop(),
		maxFrames:   DefaultMaxFrames,
		gcThreshold: memory.DefaultThreshold,
		formatter:   errz.NewFormatter(false),
	}
	for _, opt := range options {
		opt(vm)
	}
	vm.id = uuid.Must(uuid.NewV4())
	vm.logger = vm.logger.With().Str("vm", vm.id.String()).Logger()
	if vm.stdin == nil {
		vm.stdin = bufio.NewReader(os.Stdin)
	}

	allocOpts := []memory.Option{
		memory.WithThreshold(vm.gcThreshold),
		memory.WithLimit(vm.heapLimit),
		memory.WithStress(vm.stressGC),
		memory.WithLogger(vm.logger),
	}
	if vm.onExhausted != nil {
		allocOpts = append(allocOpts, memory.WithExhaustedHandler(vm.onExhausted))
	}
	vm.heap = heap.New(
		heap.WithAllocator(memory.New(allocOpts...)),
		heap.WithLogger(vm.logger),
	)
	vm.heap.SetCollectHook(vm.onCollect)
	vm.frames = make([]frame, vm.maxFrames)
	vm.stack = make([]value.Value, vm.maxFrames*SlotsPerFrame)
	vm.heap.AddRootSource(vm)
	vm.initString = vm.heap.Intern(InitName)

	if !vm.noNatives {
		natives.Register(vm)
	}
	vm.logger.Debug().
		Int("max_frames", vm.maxFrames).
		Int("stack_slots", len(vm.stack)).
		Bool("stress_gc", vm.stressGC).
		Msg("vm initialized")
	return vm
}

// ID returns the identifier used in this VM's log context.
func (vm *VirtualMachine) ID() uuid.UUID {
	return vm.id
}

// Heap returns the heap owned by the VM.
func (vm *VirtualMachine) Heap() *heap.Heap {
	return vm.heap
}

// Args returns the script arguments.
func (vm *VirtualMachine) Args() []string {
	return vm.args
}

// Stdout returns the writer used by print.
func (vm *VirtualMachine) Stdout() io.Writer {
	return vm.stdout
}

// Stderr returns the writer used for diagnostics.
func (vm *VirtualMachine) Stderr() io.Writer {
	return vm.stderr
}

// Stdin returns the reader used by input natives.
func (vm *VirtualMachine) Stdin() *bufio.Reader {
	return vm.stdin
}

// MarkRoots marks the value stack, active closures, open upvalues, globals
// and the init string.
func (vm *VirtualMachine) MarkRoots(m *heap.Marker) {
	for _, v := range vm.stack[:vm.sp] {
		m.MarkValue(v)
	}
	for i := 0; i < vm.fp; i++ {
		m.MarkRef(vm.frames[i].closure)
	}
	for ref := vm.openUpvalues; !ref.IsZero(); {
		m.MarkRef(ref)
		ref = heap.MustAs[*heap.Upvalue](vm.heap, ref).Next
	}
	m.MarkTable(&vm.globals)
	m.MarkRef(vm.initString)
}

// Interpret compiles source with the configured compiler and runs it.
func (vm *VirtualMachine) Interpret(source string) (Result, error) {
	if vm.compiler == nil {
		return ResultCompileError, ErrNoCompiler
	}
	if vm.fp != 0 {
		return ResultRuntimeError, ErrRunning
	}
	fn, err := vm.compiler.Compile(vm.heap, source)
	if err != nil {
		vm.logger.Debug().Err(err).Msg("compile failed")
		fmt.Fprint(vm.stderr, vm.formatter.Format(err))
		return ResultCompileError, err
	}
	return vm.InterpretFunction(fn)
}

// InterpretFunction runs an already compiled top-level function.
func (vm *VirtualMachine) InterpretFunction(fn value.Ref) (Result, error) {
	if vm.fp != 0 {
		return ResultRuntimeError, ErrRunning
	}
	if err := vm.start(fn); err != nil {
		return vm.fail(err)
	}
	if err := vm.execute(0); err != nil {
		return vm.fail(err)
	}
	vm.pop()
	return ResultOK, nil
}

// Exec compiles and runs source on top of the current execution, returning
// when the new top-level function returns. Errors are returned to the caller
// without resetting the VM.
func (vm *VirtualMachine) Exec(source string) error {
	if vm.compiler == nil {
		return ErrNoCompiler
	}
	fn, err := vm.compiler.Compile(vm.heap, source)
	if err != nil {
		return errz.NewStructuredErrorf(errz.ErrRuntime, errz.SourceLocation{}, nil,
			"Could not compile source: %s", err).WithCause(err)
	}
	depth := vm.fp
	if err := vm.start(fn); err != nil {
		return err
	}
	if err := vm.execute(depth); err != nil {
		return err
	}
	vm.pop()
	return nil
}

// start wraps fn in a closure and pushes a frame for it.
func (vm *VirtualMachine) start(fn value.Ref) (err error) {
	defer vm.recoverInto(&err)
	vm.push(value.Object(fn))
	closure := vm.heap.NewClosure(fn)
	vm.pop()
	vm.push(value.Object(closure))
	return vm.call(closure, 0)
}

// execute runs until the frame count drops back to depth, converting panics
// raised while executing into runtime errors.
func (vm *VirtualMachine) execute(depth int) (err error) {
	defer vm.recoverInto(&err)
	return vm.run(depth)
}

func (vm *VirtualMachine) recoverInto(err *error) {
	r := recover()
	if r == nil {
		return
	}
	if e, ok := r.(error); ok && errors.Is(e, errStackOverflow) {
		*err = vm.runtimeError(errz.ErrStackOverflow, "Stack overflow.")
		return
	}
	if e, ok := r.(error); ok {
		*err = vm.runtimeError(errz.ErrRuntime, "%s", e).WithCause(e)
		return
	}
	*err = vm.runtimeError(errz.ErrRuntime, "%v", r)
}

func (vm *VirtualMachine) run(depth int) error {
	for {
		f := &vm.frames[vm.fp-1]
		if f.ip >= len(f.chunk.Code) {
			return vm.runtimeError(errz.ErrRuntime, "Instruction pointer out of range.")
		}
		opcode := f.chunk.Code[f.ip]
		f.ip++

		switch opcode {
		case op.Constant:
			vm.push(f.chunk.Constants[f.fetch()])
		case op.Nil:
			vm.push(value.Null())
		case op.True:
			vm.push(value.Bool(true))
		case op.False:
			vm.push(value.Bool(false))
		case op.Pop:
			vm.pop()
		case op.GetLocal:
			vm.push(vm.stack[f.base+f.fetch()])
		case op.SetLocal:
			vm.stack[f.base+f.fetch()] = vm.peek(0)
		case op.GetGlobal:
			name := vm.readString(f)
			v, ok := vm.globals.Get(name)
			if !ok {
				return vm.runtimeError(errz.ErrName, "Undefined variable '%s'.", vm.heap.Text(name))
			}
			vm.push(v)
		case op.DefineGlobal:
			vm.globals.Set(vm.readString(f), vm.peek(0))
			vm.pop()
		case op.SetGlobal:
			name := vm.readString(f)
			if vm.globals.Set(name, vm.peek(0)) {
				vm.globals.Delete(name)
				return vm.runtimeError(errz.ErrName, "Undefined variable '%s'.", vm.heap.Text(name))
			}
		case op.GetUpvalue:
			upvalue := vm.upvalue(f, f.fetch())
			if slot, open := upvalue.Slot(); open {
				vm.push(vm.stack[slot])
			} else {
				vm.push(upvalue.State.(heap.Closed).Value)
			}
		case op.SetUpvalue:
			upvalue := vm.upvalue(f, f.fetch())
			if slot, open := upvalue.Slot(); open {
				vm.stack[slot] = vm.peek(0)
			} else {
				upvalue.State = heap.Closed{Value: vm.peek(0)}
			}
		case op.GetProperty:
			instance, ok := heap.As[*heap.Instance](vm.heap, vm.peek(0))
			if !ok {
				return vm.runtimeError(errz.ErrType, "Only instances have properties.")
			}
			name := vm.readString(f)
			if v, ok := instance.Fields.Get(name); ok {
				vm.pop()
				vm.push(v)
				break
			}
			if err := vm.bindMethod(instance.Class, name); err != nil {
				return err
			}
		case op.SetProperty:
			target := vm.peek(1)
			if !vm.heap.Is(target, heap.KindInstance) {
				return vm.runtimeError(errz.ErrType, "Only instances have fields.")
			}
			vm.heap.SetField(target.AsRef(), vm.readString(f), vm.peek(0))
			v := vm.pop()
			vm.pop()
			vm.push(v)
		case op.Equal:
			b := vm.pop()
			a := vm.pop()
			vm.push(value.Bool(value.Equal(a, b)))
		case op.Greater:
			if err := vm.binaryNumber(func(a, b float64) value.Value { return value.Bool(a > b) }); err != nil {
				return err
			}
		case op.Less:
			if err := vm.binaryNumber(func(a, b float64) value.Value { return value.Bool(a < b) }); err != nil {
				return err
			}
		case op.Add:
			if err := vm.add(); err != nil {
				return err
			}
		case op.Subtract:
			if err := vm.binaryNumber(func(a, b float64) value.Value { return value.Number(a - b) }); err != nil {
				return err
			}
		case op.Multiply:
			if err := vm.binaryNumber(func(a, b float64) value.Value { return value.Number(a * b) }); err != nil {
				return err
			}
		case op.Divide:
			if err := vm.binaryNumber(func(a, b float64) value.Value { return value.Number(a / b) }); err != nil {
				return err
			}
		case op.Not:
			vm.push(value.Bool(vm.pop().IsFalsey()))
		case op.Negate:
			if !vm.peek(0).IsNumber() {
				return vm.runtimeError(errz.ErrType, "Operand must be a number.")
			}
			vm.push(value.Number(-vm.pop().AsNumber()))
		case op.Print:
			fmt.Fprintln(vm.stdout, vm.heap.Format(vm.pop()))
		case op.Jump:
			offset := f.fetch()
			f.ip += offset
		case op.JumpIfFalse:
			offset := f.fetch()
			if vm.peek(0).IsFalsey() {
				f.ip += offset
			}
		case op.Loop:
			offset := f.fetch()
			f.ip -= offset
		case op.Call:
			argc := f.fetch()
			if err := vm.callValue(vm.peek(argc), argc); err != nil {
				return err
			}
		case op.Invoke:
			name := vm.readString(f)
			argc := f.fetch()
			if err := vm.invoke(name, argc); err != nil {
				return err
			}
		case op.Closure:
			if err := vm.makeClosure(f); err != nil {
				return err
			}
		case op.CloseUpvalue:
			vm.closeUpvalues(vm.sp - 1)
			vm.pop()
		case op.Return:
			if err := vm.notifyReturn(f); err != nil {
				return err
			}
			result := vm.pop()
			vm.closeUpvalues(f.base)
			vm.fp--
			vm.sp = f.base
			vm.push(result)
			if vm.fp == depth {
				return nil
			}
		case op.Class:
			vm.push(value.Object(vm.heap.NewClass(vm.readString(f))))
		case op.Method:
			name := vm.readString(f)
			class := vm.peek(1)
			if !vm.heap.Is(class, heap.KindClass) {
				return vm.runtimeError(errz.ErrType, "Methods can only be defined on classes.")
			}
			vm.heap.SetMethod(class.AsRef(), name, vm.peek(0))
			vm.pop()
		default:
			return vm.runtimeError(errz.ErrRuntime, "Unknown opcode %d.", opcode)
		}
	}
}

func (vm *VirtualMachine) readString(f *frame) value.Ref {
	return f.chunk.Constants[f.fetch()].AsRef()
}

func (vm *VirtualMachine) upvalue(f *frame, index int) *heap.Upvalue {
	closure := heap.MustAs[*heap.Closure](vm.heap, f.closure)
	return heap.MustAs[*heap.Upvalue](vm.heap, closure.Upvalues[index])
}

func (vm *VirtualMachine) binaryNumber(fn func(a, b float64) value.Value) error {
	if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		return vm.runtimeError(errz.ErrType, "Operands must be numbers.")
	}
	b := vm.pop().AsNumber()
	a := vm.pop().AsNumber()
	vm.push(fn(a, b))
	return nil
}

// add leaves both string operands on the stack while concatenating so they
// stay reachable if interning the result collects.
func (vm *VirtualMachine) add() error {
	a, b := vm.peek(1), vm.peek(0)
	switch {
	case vm.heap.Is(a, heap.KindString) && vm.heap.Is(b, heap.KindString):
		result := vm.heap.Concat(a.AsRef(), b.AsRef())
		vm.pop()
		vm.pop()
		vm.push(value.Object(result))
	case a.IsNumber() && b.IsNumber():
		vm.pop()
		vm.pop()
		vm.push(value.Number(a.AsNumber() + b.AsNumber()))
	default:
		return vm.runtimeError(errz.ErrType, "Operands must be two numbers or two strings.")
	}
	return nil
}

// Push pushes v onto the value stack.
func (vm *VirtualMachine) Push(v value.Value) {
	vm.push(v)
}

// Pop removes and returns the top of the value stack. It panics if the
// stack is empty.
func (vm *VirtualMachine) Pop() value.Value {
	if vm.sp == 0 {
		panic("vm: pop from empty stack")
	}
	return vm.pop()
}

// Peek returns the value distance slots below the top of the stack.
func (vm *VirtualMachine) Peek(distance int) value.Value {
	return vm.peek(distance)
}

// StackDepth returns the number of values on the stack.
func (vm *VirtualMachine) StackDepth() int {
	return vm.sp
}

// FrameDepth returns the number of active frames.
func (vm *VirtualMachine) FrameDepth() int {
	return vm.fp
}

func (vm *VirtualMachine) push(v value.Value) {
	if vm.sp >= len(vm.stack) {
		panic(errStackOverflow)
	}
	vm.stack[vm.sp] = v
	vm.sp++
}

func (vm *VirtualMachine) pop() value.Value {
	vm.sp--
	return vm.stack[vm.sp]
}

func (vm *VirtualMachine) peek(distance int) value.Value {
	return vm.stack[vm.sp-1-distance]
}

// Global returns the global bound to name.
func (vm *VirtualMachine) Global(name string) (value.Value, bool) {
	ref, ok := vm.heap.Lookup(name)
	if !ok {
		return value.Null(), false
	}
	return vm.globals.Get(ref)
}

// SetGlobal binds name to v. Object values must be reachable by the caller
// until the binding is made.
func (vm *VirtualMachine) SetGlobal(name string, v value.Value) {
	vm.push(v)
	key := vm.heap.Intern(name)
	vm.globals.Set(key, vm.peek(0))
	vm.pop()
}

// Format returns the printed representation of v.
func (vm *VirtualMachine) Format(v value.Value) string {
	return vm.heap.Format(v)
}

// CollectGarbage forces a full collection.
func (vm *VirtualMachine) CollectGarbage() {
	vm.heap.Collect()
}

// Free releases every heap object. The VM must not be used afterwards.
func (vm *VirtualMachine) Free() {
	vm.resetStack()
	vm.globals = heap.Table{}
	vm.initString = value.NoRef
	vm.heap.RemoveRootSource(vm)
	vm.heap.Free()
	vm.logger.Debug().Msg("vm freed")
}

func (vm *VirtualMachine) resetStack() {
	vm.sp = 0
	vm.fp = 0
	vm.openUpvalues = value.NoRef
}
