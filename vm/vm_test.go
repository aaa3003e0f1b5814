package vm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/npp/asm"
	"github.com/deepnoodle-ai/npp/errz"
	"github.com/deepnoodle-ai/npp/heap"
	"github.com/deepnoodle-ai/npp/memory"
	"github.com/deepnoodle-ai/npp/value"
)

type testVM struct {
	*VirtualMachine
	out    *bytes.Buffer
	errOut *bytes.Buffer
}

func newTestVM(t *testing.T, options ...Option) *testVM {
	t.Helper()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	options = append([]Option{
		WithCompiler(asm.New()),
		WithStdout(out),
		WithStderr(errOut),
		WithStdin(strings.NewReader("")),
	}, options...)
	machine := New(options...)
	t.Cleanup(machine.Free)
	return &testVM{VirtualMachine: machine, out: out, errOut: errOut}
}

func (tv *testVM) mustRun(t *testing.T, source string) string {
	t.Helper()
	result, err := tv.Interpret(source)
	require.NoError(t, err, tv.errOut.String())
	require.Equal(t, ResultOK, result)
	return tv.out.String()
}

func (tv *testVM) mustFail(t *testing.T, source string) *errz.StructuredError {
	t.Helper()
	result, err := tv.Interpret(source)
	require.Equal(t, ResultRuntimeError, result)
	structured, ok := errz.As(err)
	require.True(t, ok, "expected a structured error, got %v", err)
	require.Equal(t, 0, tv.StackDepth())
	require.Equal(t, 0, tv.FrameDepth())
	return structured
}

func TestArithmetic(t *testing.T) {
	tv := newTestVM(t)
	out := tv.mustRun(t, `
constant 1; constant 2; add
constant 3; multiply
print
constant 10; constant 4; divide; negate
print
constant 1; constant 2; less; print
constant 1; constant 1; equal; not; print
nil; print
`)
	require.Equal(t, "9\n-2.5\ntrue\nfalse\nnull\n", out)
}

func TestStringConcat(t *testing.T) {
	tv := newTestVM(t)
	out := tv.mustRun(t, `constant "foo"; constant "bar"; add; print`)
	require.Equal(t, "foobar\n", out)

	err := tv.mustFail(t, `constant "foo"; constant 1; add`)
	require.Equal(t, "Operands must be two numbers or two strings.", err.Message)
	require.Equal(t, errz.ErrType, err.Kind)
}

func TestTypeErrors(t *testing.T) {
	cases := []struct {
		source  string
		message string
	}{
		{`constant "a"; negate`, "Operand must be a number."},
		{`true; constant 1; subtract`, "Operands must be numbers."},
		{`constant 1; constant 1; greater; constant 1; less`, "Operands must be numbers."},
		{`constant 1; call 0`, "Can only call functions and classes."},
		{`constant 1; get_property x`, "Only instances have properties."},
		{`constant 1; constant 2; set_property x`, "Only instances have fields."},
		{`constant 1; invoke m 0`, "Only instances have methods."},
		{`constant 1; nil; method m`, "Methods can only be defined on classes."},
	}
	for _, tc := range cases {
		tv := newTestVM(t)
		err := tv.mustFail(t, tc.source)
		require.Equal(t, tc.message, err.Message, tc.source)
	}
}

func TestGlobals(t *testing.T) {
	tv := newTestVM(t)
	out := tv.mustRun(t, `
constant 1; define_global x
get_global x; constant 2; add; set_global x; pop
get_global x; print
`)
	require.Equal(t, "3\n", out)
	v, ok := tv.Global("x")
	require.True(t, ok)
	require.Equal(t, value.Number(3), v)

	err := tv.mustFail(t, "get_global nope")
	require.Equal(t, "Undefined variable 'nope'.", err.Message)
	require.Equal(t, errz.ErrName, err.Kind)

	err = tv.mustFail(t, "constant 1; set_global ghost")
	require.Equal(t, "Undefined variable 'ghost'.", err.Message)
	_, ok = tv.Global("ghost")
	require.False(t, ok)
}

func TestSetGlobalFromHost(t *testing.T) {
	tv := newTestVM(t)
	tv.SetGlobal("greeting", value.Object(tv.Heap().Intern("hello")))
	require.Equal(t, "hello\n", tv.mustRun(t, "get_global greeting; print"))
}

func TestLoop(t *testing.T) {
	tv := newTestVM(t)
	out := tv.mustRun(t, `
constant 0; define_global i
top:
    get_global i; constant 3; less
    jump_if_false done
    pop
    get_global i; print
    get_global i; constant 1; add; set_global i; pop
    loop top
done:
    pop
`)
	require.Equal(t, "0\n1\n2\n", out)
}

const addProgram = `
closure add
define_global add
get_global add
constant 1
constant 2
call %s
print

.func add 2
    get_local 1
    get_local 2
    add
    return
.end
`

func TestFunctionCall(t *testing.T) {
	tv := newTestVM(t)
	out := tv.mustRun(t, strings.Replace(addProgram, "%s", "2", 1))
	require.Equal(t, "3\n", out)
}

func TestFunctionArity(t *testing.T) {
	tv := newTestVM(t)
	source := strings.Replace(addProgram, "%s", "2", 1)
	source = strings.Replace(source, "constant 2\ncall 2", "call 1", 1)
	err := tv.mustFail(t, source)
	require.Equal(t, errz.ErrArity, err.Kind)
	require.Equal(t, "Expected 2 arguments but got 1.", err.Message)
	require.Empty(t, tv.out.String())
}

func TestClosureCounter(t *testing.T) {
	tv := newTestVM(t)
	out := tv.mustRun(t, `
closure makeCounter
call 0
define_global counter
get_global counter; call 0; print
get_global counter; call 0; print

.func makeCounter 0
    constant 0
    closure inc local 1
    return
.end

.func inc 0 1
    get_upvalue 0
    constant 1
    add
    set_upvalue 0
    return
.end
`)
	require.Equal(t, "1\n2\n", out)
	require.True(t, tv.openUpvalues.IsZero())
}

func TestSharedUpvalue(t *testing.T) {
	tv := newTestVM(t)
	out := tv.mustRun(t, `
closure pair; call 0; pop
get_global setter; constant 42; call 1; pop
get_global getter; call 0; print

.func pair 0
    constant 10
    closure get local 1
    define_global getter
    closure set local 1
    define_global setter
    nil
    return
.end

.func get 0 1
    get_upvalue 0
    return
.end

.func set 1 1
    get_local 1
    set_upvalue 0
    return
.end
`)
	require.Equal(t, "42\n", out)
	require.True(t, tv.openUpvalues.IsZero())

	getter, ok := tv.Global("getter")
	require.True(t, ok)
	setter, ok := tv.Global("setter")
	require.True(t, ok)
	a := heap.MustAs[*heap.Closure](tv.Heap(), getter.AsRef())
	b := heap.MustAs[*heap.Closure](tv.Heap(), setter.AsRef())
	require.Equal(t, a.Upvalues[0], b.Upvalues[0])
	upvalue := heap.MustAs[*heap.Upvalue](tv.Heap(), a.Upvalues[0])
	require.False(t, upvalue.IsOpen())
}

func TestUpvalueOpenWritesAndClosedSnapshot(t *testing.T) {
	tv := newTestVM(t)
	out := tv.mustRun(t, `
closure outer; call 0; pop
get_global clobber; call 0; pop
get_global getter; call 0; print

# While open, a write through setter lands in the stack slot and is seen
# by getter.
.func outer 0
    constant 1
    closure get local 1
    define_global getter
    closure set local 1
    define_global setter
    get_global setter; constant 5; call 1; pop
    get_local 1; print
    get_global getter; call 0; print
    nil
    return
.end

# Reuses the stack index outer's local occupied. The closed upvalue keeps
# the snapshot.
.func clobber 0
    constant 99
    constant 98
    set_local 1
    print
    nil
    return
.end

.func get 0 1
    get_upvalue 0
    return
.end

.func set 1 1
    get_local 1
    set_upvalue 0
    return
.end
`)
	require.Equal(t, "5\n5\n98\n5\n", out)
	require.True(t, tv.openUpvalues.IsZero())
}

func TestCloseUpvalueInstruction(t *testing.T) {
	tv := newTestVM(t)
	out := tv.mustRun(t, `
constant 7
closure show local 1
define_global show
close_upvalue
get_global show; call 0; print

.func show 0 1
    get_upvalue 0
    return
.end
`)
	require.Equal(t, "7\n", out)
	require.True(t, tv.openUpvalues.IsZero())
}

const recurseProgram = `
constant 0; define_global depth
closure recurse; define_global recurse
get_global recurse; constant 1; call 1
print

.func recurse 1
    get_local 1; set_global depth; pop
    get_local 1; constant 100; less
    jump_if_false done
    pop
    get_global recurse
    get_local 1; constant 1; add
    call 1
    return
done:
    pop
    get_local 1
    return
.end
`

func TestStackOverflow(t *testing.T) {
	tv := newTestVM(t, WithMaxFrames(64))
	err := tv.mustFail(t, recurseProgram)
	require.Equal(t, errz.ErrStackOverflow, err.Kind)
	require.Equal(t, "Stack overflow.", err.Message)
	require.Contains(t, tv.errOut.String(), "Stack overflow.")

	// The script occupies the first frame.
	depth, ok := tv.Global("depth")
	require.True(t, ok)
	require.Equal(t, value.Number(63), depth)
	require.Len(t, err.Stack, 64)
	require.Equal(t, "recurse", err.Stack[0].Function)
	require.Equal(t, "", err.Stack[63].Function)
}

func TestDeepRecursionWithinLimit(t *testing.T) {
	tv := newTestVM(t, WithMaxFrames(128))
	require.Equal(t, "100\n", tv.mustRun(t, recurseProgram))
}

func TestNativeArity(t *testing.T) {
	tv := newTestVM(t)
	err := tv.mustFail(t, `
get_global hypot
constant 3
call 1
print
constant "after"
print
`)
	require.Equal(t, errz.ErrArity, err.Kind)
	require.Equal(t, "Expected 2 arguments but got 1.", err.Message)
	require.Equal(t, 4, err.Location.Line)
	require.Empty(t, tv.out.String())
	require.Contains(t, tv.errOut.String(), "[line 4] in script")
}

func TestNativeCall(t *testing.T) {
	tv := newTestVM(t, WithArgs([]string{"a", "b"}))
	out := tv.mustRun(t, `
get_global hypot; constant 3; constant 4; call 2; print
get_global argc; call 0; print
get_global argv; constant 1; call 1; print
get_global isStr; constant "s"; call 1; print
`)
	require.Equal(t, "5\n2\nb\ntrue\n", out)
}

func TestRuntimeErrorNative(t *testing.T) {
	tv := newTestVM(t)
	err := tv.mustFail(t, `
closure fail
call 0

.func fail 0
    get_global runtimeError
    constant "boom"
    call 1
    return
.end
`)
	require.Equal(t, "boom", err.Message)
	require.Len(t, err.Stack, 2)
	require.Equal(t, errz.StackFrame{Function: "fail", Line: 8}, err.Stack[0])
	require.Equal(t, errz.StackFrame{Function: "", Line: 3}, err.Stack[1])
	require.Equal(t, "runtime error: boom (8)\n  [line 8] in fail()\n  [line 3] in script\n", tv.errOut.String())
}

func TestInterpretNative(t *testing.T) {
	tv := newTestVM(t)
	out := tv.mustRun(t, `
get_global interpret
constant "constant 5; define_global five; get_global five; print"
call 1
pop
get_global five
constant 1
add
print
`)
	require.Equal(t, "5\n6\n", out)

	err := tv.mustFail(t, `get_global interpret; constant "bogus"; call 1`)
	require.True(t, strings.HasPrefix(err.Message, "Could not compile source:"), err.Message)

	err = tv.mustFail(t, `get_global interpret; constant "get_global missing"; call 1`)
	require.Equal(t, "Undefined variable 'missing'.", err.Message)
	require.Len(t, err.Stack, 2)
}

const pointProgram = `
class Point
closure Point.init
method init
closure Point.sum
method sum
define_global Point

get_global Point; constant 3; constant 4; call 2
define_global p

get_global p; invoke sum 0; print
get_global p; get_property sum; define_global bound
get_global bound; call 0; print
get_global p; get_property x; print
get_global p; print
get_global Point; print
get_global bound; print

.func Point.init 2
    get_local 0; get_local 1; set_property x; pop
    get_local 0; get_local 2; set_property y; pop
    get_local 0
    return
.end

.func Point.sum 0
    get_local 0; get_property x
    get_local 0; get_property y
    add
    return
.end
`

func TestClasses(t *testing.T) {
	tv := newTestVM(t)
	out := tv.mustRun(t, pointProgram)
	require.Equal(t, "7\n7\n3\nPoint instance\nPoint\n<fn Point.sum>\n", out)
}

func TestClassWithoutInit(t *testing.T) {
	tv := newTestVM(t)
	out := tv.mustRun(t, `
class Empty
define_global Empty
get_global Empty; call 0; define_global e
get_global e; constant 1; set_property f; pop
get_global e; get_property f; print
`)
	require.Equal(t, "1\n", out)

	err := tv.mustFail(t, "get_global Empty; constant 1; call 1")
	require.Equal(t, "Expected 0 arguments but got 1.", err.Message)

	err = tv.mustFail(t, "get_global e; get_property nothing")
	require.Equal(t, "Undefined property 'nothing'.", err.Message)

	err = tv.mustFail(t, "get_global e; invoke nothing 0")
	require.Equal(t, "Undefined property 'nothing'.", err.Message)
}

func TestInvokeField(t *testing.T) {
	tv := newTestVM(t)
	out := tv.mustRun(t, `
class Box; define_global Box
get_global Box; call 0; define_global box
get_global box; get_global sqrt; set_property root; pop
get_global box; constant 9; invoke root 1; print
`)
	require.Equal(t, "3\n", out)
}

func TestCompileError(t *testing.T) {
	tv := newTestVM(t)
	result, err := tv.Interpret("bogus")
	require.Equal(t, ResultCompileError, result)
	require.Error(t, err)
	require.Contains(t, tv.errOut.String(), "unknown instruction 'bogus'")
}

func TestNoCompiler(t *testing.T) {
	machine := New(WithStdout(&bytes.Buffer{}))
	defer machine.Free()
	result, err := machine.Interpret("print")
	require.Equal(t, ResultCompileError, result)
	require.ErrorIs(t, err, ErrNoCompiler)
}

func TestRecoversAfterRuntimeError(t *testing.T) {
	tv := newTestVM(t)
	tv.mustFail(t, "get_global missing")
	require.Equal(t, "ok\n", tv.mustRun(t, `constant "ok"; print`))
}

func TestPushPop(t *testing.T) {
	tv := newTestVM(t)
	tv.Push(value.Number(1))
	tv.Push(value.Bool(true))
	require.Equal(t, 2, tv.StackDepth())
	require.Equal(t, value.Number(1), tv.Peek(1))
	require.Equal(t, value.Bool(true), tv.Pop())
	require.Equal(t, value.Number(1), tv.Pop())
	require.Panics(t, func() { tv.Pop() })
}

func TestValueStackOverflow(t *testing.T) {
	tv := newTestVM(t, WithMaxFrames(1))
	err := tv.mustFail(t, `
top:
    nil
    loop top
`)
	require.Equal(t, errz.ErrStackOverflow, err.Kind)
}

func TestStressGC(t *testing.T) {
	tv := newTestVM(t, WithStressGC(true))
	out := tv.mustRun(t, pointProgram)
	require.Equal(t, "7\n7\n3\nPoint instance\nPoint\n<fn Point.sum>\n", out)
	require.Greater(t, tv.Heap().Stats().Collections, 0)
}

func TestStressGCWithClosures(t *testing.T) {
	tv := newTestVM(t, WithStressGC(true))
	out := tv.mustRun(t, `
closure makeCounter
call 0
define_global counter
get_global counter; call 0; pop
get_global counter; call 0; print
get_global collectGarbage; call 0; pop
get_global counter; call 0; print

.func makeCounter 0
    constant 0
    closure inc local 1
    return
.end

.func inc 0 1
    get_upvalue 0
    constant 1
    add
    set_upvalue 0
    return
.end
`)
	require.Equal(t, "2\n3\n", out)
}

type recordingObserver struct {
	NoOpObserver
	calls    []CallEvent
	returns  []ReturnEvent
	collects []CollectEvent
	haltOn   string
}

func (o *recordingObserver) OnCall(event CallEvent) bool {
	o.calls = append(o.calls, event)
	return event.FunctionName != o.haltOn || o.haltOn == ""
}

func (o *recordingObserver) OnReturn(event ReturnEvent) bool {
	o.returns = append(o.returns, event)
	return true
}

func (o *recordingObserver) OnCollect(event CollectEvent) {
	o.collects = append(o.collects, event)
}

func TestObserver(t *testing.T) {
	observer := &recordingObserver{}
	tv := newTestVM(t, WithObserver(observer))
	tv.mustRun(t, strings.Replace(addProgram, "%s", "2", 1)+"\nget_global collectGarbage\ncall 0\n")

	require.Len(t, observer.calls, 3)
	require.Equal(t, CallEvent{FunctionName: "", FrameDepth: 1}, observer.calls[0])
	require.Equal(t, CallEvent{FunctionName: "add", ArgCount: 2, Line: 7, FrameDepth: 2}, observer.calls[1])
	require.Equal(t, "collectGarbage", observer.calls[2].FunctionName)
	require.True(t, observer.calls[2].Native)

	require.Len(t, observer.returns, 2)
	require.Equal(t, ReturnEvent{FunctionName: "add", Line: 14, FrameDepth: 1}, observer.returns[0])
	require.Equal(t, 0, observer.returns[1].FrameDepth)
	require.Len(t, observer.collects, 1)
}

func TestObserverHalts(t *testing.T) {
	observer := &recordingObserver{haltOn: "add"}
	tv := newTestVM(t, WithObserver(observer))
	err := tv.mustFail(t, strings.Replace(addProgram, "%s", "2", 1))
	require.Equal(t, "Execution halted by observer.", err.Message)
	require.Empty(t, tv.out.String())
}

func TestGCThreshold(t *testing.T) {
	observer := &recordingObserver{}
	tv := newTestVM(t, WithGCThreshold(4096), WithObserver(observer))
	tv.mustRun(t, `
constant 0; define_global i
top:
    get_global i; constant 500; less
    jump_if_false done
    pop
    get_global stringize; get_global i; call 1
    constant "-garbage"; add; pop
    get_global i; constant 1; add; set_global i; pop
    loop top
done:
    pop
`)
	require.NotEmpty(t, observer.collects)
	freedStrings := 0
	for _, cycle := range observer.collects {
		require.Equal(t, cycle.BytesAfter*2, cycle.NextGC)
		require.LessOrEqual(t, cycle.BytesAfter, cycle.BytesBefore)
		freedStrings += cycle.FreedStrings
	}
	require.Greater(t, freedStrings, 0)
}

func TestHeapLimitExhaustion(t *testing.T) {
	var exhausted error
	tv := newTestVM(t,
		WithoutNatives(),
		WithHeapLimit(2048),
		WithExhaustedHandler(func(err error) { exhausted = err }),
	)
	err := tv.mustFail(t, `
constant "x"; define_global s
top:
    get_global s; get_global s; add; set_global s; pop
    loop top
`)
	require.ErrorIs(t, err, memory.ErrExhausted)
	require.ErrorIs(t, exhausted, memory.ErrExhausted)
}

func TestRun(t *testing.T) {
	out := &bytes.Buffer{}
	result, err := Run(`constant "hi"; print`, WithCompiler(asm.New()), WithStdout(out))
	require.NoError(t, err)
	require.Equal(t, ResultOK, result)
	require.Equal(t, "hi\n", out.String())
}

func TestFreeReleasesHeap(t *testing.T) {
	machine := New(WithCompiler(asm.New()), WithStdout(&bytes.Buffer{}))
	_, err := machine.Interpret(pointProgram)
	require.NoError(t, err)
	require.Greater(t, machine.Heap().Stats().Allocated, 0)
	machine.Free()
	require.Equal(t, 0, machine.Heap().Stats().Allocated)
	require.Equal(t, 0, machine.Heap().Len())
}

func TestIDsAreUnique(t *testing.T) {
	a := newTestVM(t)
	b := newTestVM(t)
	require.NotEqual(t, a.ID(), b.ID())
}
