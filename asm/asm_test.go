package asm

import (
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/npp/errz"
	"github.com/deepnoodle-ai/npp/heap"
	"github.com/deepnoodle-ai/npp/memory"
	"github.com/deepnoodle-ai/npp/op"
	"github.com/deepnoodle-ai/npp/value"
)

func assemble(t *testing.T, source string) (*heap.Heap, *heap.Function) {
	t.Helper()
	h := heap.New()
	ref, err := Assemble(h, source)
	require.NoError(t, err)
	return h, heap.MustAs[*heap.Function](h, ref)
}

func compileErrors(t *testing.T, source string) []error {
	t.Helper()
	_, err := Assemble(heap.New(), source)
	require.Error(t, err)
	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	for _, e := range merr.Errors {
		require.Equal(t, errz.ErrCompile, errz.KindOf(e))
	}
	return merr.Errors
}

func TestScanLine(t *testing.T) {
	stmts, err := scanLine(4, `top: constant "a;b # c" ; print # trailing`)
	require.NoError(t, err)
	require.Len(t, stmts, 3)
	require.Equal(t, "top", stmts[0].label)
	require.Equal(t, "constant", stmts[1].mnemonic)
	require.Equal(t, []token{{kind: tokenString, text: "a;b # c"}}, stmts[1].args)
	require.Equal(t, "print", stmts[2].mnemonic)
	require.Equal(t, 4, stmts[2].line)

	stmts, err = scanLine(1, "   # only a comment")
	require.NoError(t, err)
	require.Empty(t, stmts)

	_, err = scanLine(1, `constant "open`)
	require.Error(t, err)
}

func TestScript(t *testing.T) {
	h, fn := assemble(t, `
constant 1.5
constant "hi"
constant 1.5
print
`)
	require.True(t, fn.Name.IsZero())
	require.Equal(t, 0, fn.Arity)
	require.Len(t, fn.Chunk.Constants, 2)
	require.Equal(t, value.Number(1.5), fn.Chunk.Constants[0])
	require.Equal(t, "hi", h.Format(fn.Chunk.Constants[1]))
	require.Equal(t, []op.Code{
		op.Constant, 0,
		op.Constant, 1,
		op.Constant, 0,
		op.Print,
		op.Nil, op.Return,
	}, fn.Chunk.Code)
	require.Equal(t, 2, fn.Chunk.LineAt(0))
	require.Equal(t, 5, fn.Chunk.LineAt(6))
}

func TestExplicitReturn(t *testing.T) {
	_, fn := assemble(t, "true\nreturn")
	require.Equal(t, []op.Code{op.True, op.Return}, fn.Chunk.Code)
}

func TestFunctions(t *testing.T) {
	h, script := assemble(t, `
closure outer
define_global outer

.func outer 1 0
    closure inner local 1
    return
.end

.func inner 0 1
    get_upvalue 0
    return
.end
`)
	require.Equal(t, []op.Code{
		op.Closure, 0, 0,
		op.DefineGlobal, 1,
		op.Nil, op.Return,
	}, script.Chunk.Code)

	outer := heap.MustAs[*heap.Function](h, script.Chunk.Constants[0].AsRef())
	require.Equal(t, "outer", h.Text(outer.Name))
	require.Equal(t, 1, outer.Arity)
	require.Equal(t, "outer", h.Format(script.Chunk.Constants[1]))
	require.Equal(t, []op.Code{op.Closure, 0, 1, 1, 1, op.Return}, outer.Chunk.Code)

	inner := heap.MustAs[*heap.Function](h, outer.Chunk.Constants[0].AsRef())
	require.Equal(t, 1, inner.UpvalueCount)
	require.Equal(t, "<fn inner>", h.Format(outer.Chunk.Constants[0]))
}

func TestLabels(t *testing.T) {
	_, fn := assemble(t, `
start:
    get_global x
    jump_if_false done
    pop
    loop start
done:
    pop
`)
	code := fn.Chunk.Code
	// start=0: GET_GLOBAL 0 (0,1) JUMP_IF_FALSE (2,3) POP 4 LOOP (5,6) done=7.
	require.Equal(t, op.JumpIfFalse, code[2])
	require.Equal(t, op.Code(7-4), code[3])
	require.Equal(t, op.Loop, code[5])
	require.Equal(t, op.Code(7), code[6])
	require.Equal(t, []op.Code{op.Pop, op.Nil, op.Return}, code[7:])
}

func TestInvokeAndClasses(t *testing.T) {
	h, fn := assemble(t, `
class Point
invoke "move" 2
method Point
`)
	require.Equal(t, []op.Code{
		op.Class, 0,
		op.Invoke, 1, 2,
		op.Method, 0,
		op.Nil, op.Return,
	}, fn.Chunk.Code)
	require.Equal(t, "move", h.Format(fn.Chunk.Constants[1]))
}

func TestLiterals(t *testing.T) {
	_, fn := assemble(t, "constant nil\nconstant true\nconstant false\nconstant -2")
	require.Equal(t, []value.Value{
		value.Null(), value.Bool(true), value.Bool(false), value.Number(-2),
	}, fn.Chunk.Constants)
}

func TestErrors(t *testing.T) {
	errs := compileErrors(t, `
bogus
add 1
get_local x
jump nowhere
constant "a" "b"
constant word
`)
	require.Len(t, errs, 6)
	structured, ok := errz.As(errs[0])
	require.True(t, ok)
	require.Equal(t, "unknown instruction 'bogus'", structured.Message)
	require.Equal(t, 2, structured.Location.Line)
}

func TestBlockErrors(t *testing.T) {
	errs := compileErrors(t, `
.func a 0
.func b 0
.end
.func a 0
.end
.func c
.end
.func open 1
`)
	messages := make([]string, len(errs))
	for i, err := range errs {
		s, _ := errz.As(err)
		messages[i] = s.Message
	}
	require.Contains(t, messages, "nested .func inside 'a'")
	require.Contains(t, messages, "function 'a' already defined on line 2")
	require.Contains(t, messages, ".func expects a name, an arity and an optional upvalue count")
	require.Contains(t, messages, "missing .end for 'open' opened on line 9")
}

func TestClosureCaptureMismatch(t *testing.T) {
	errs := compileErrors(t, `
closure f
closure g local 1
closure f upvalue
closure missing
.func f 0 1
.end
.func g 0 0
.end
`)
	require.Len(t, errs, 4)
}

func TestDuplicateLabel(t *testing.T) {
	errs := compileErrors(t, "a:\na:\nloop b")
	require.Len(t, errs, 2)
}

func TestForwardJumpAsLoop(t *testing.T) {
	errs := compileErrors(t, "loop later\nnil\nlater:")
	require.Len(t, errs, 1)
	require.Contains(t, errs[0].Error(), "loop target 3 follows loop at 1")
}

func TestFilename(t *testing.T) {
	_, err := New(WithFilename("prog.npp")).Compile(heap.New(), "\n\nbogus")
	require.Error(t, err)
	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	s, ok := errz.As(merr.Errors[0])
	require.True(t, ok)
	require.Equal(t, "prog.npp:3", s.Location.String())
}

func TestSurvivesStressCollection(t *testing.T) {
	h := heap.New(heap.WithAllocator(memory.New(memory.WithStress(true))))
	ref, err := Assemble(h, `
closure f
define_global f
.func f 2
    get_local 1
    get_local 2
    add
    return
.end
`)
	require.NoError(t, err)
	h.PushRoot(value.Object(ref))
	h.Collect()
	script := heap.MustAs[*heap.Function](h, ref)
	f := heap.MustAs[*heap.Function](h, script.Chunk.Constants[0].AsRef())
	require.Equal(t, "f", h.Text(f.Name))
	h.PopRoot()
}
