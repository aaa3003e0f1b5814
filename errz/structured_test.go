package errz

import (
	"errors"
	"fmt"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/require"
)

func TestStructuredError(t *testing.T) {
	err := NewStructuredErrorf(ErrArity, SourceLocation{Line: 4}, []StackFrame{
		{Function: "inner", Line: 4},
		{Function: "", Line: 9},
	}, "Expected %d arguments but got %d.", 2, 1)

	require.Equal(t, "arity error: Expected 2 arguments but got 1. (4)", err.Error())
	require.Equal(t, "[line 4] in inner()", err.Stack[0].String())
	require.Equal(t, "[line 9] in script", err.Stack[1].String())
}

func TestAsAndKindOf(t *testing.T) {
	cause := errors.New("boom")
	err := NewStructuredError(ErrName, "Undefined variable 'x'.", SourceLocation{}, nil).WithCause(cause)
	wrapped := fmt.Errorf("run: %w", err)

	structured, ok := As(wrapped)
	require.True(t, ok)
	require.Same(t, err, structured)
	require.True(t, errors.Is(wrapped, cause))
	require.Equal(t, ErrName, KindOf(wrapped))
	require.Equal(t, ErrRuntime, KindOf(cause))
}

func TestSourceLocationString(t *testing.T) {
	require.Equal(t, "3", SourceLocation{Line: 3}.String())
	require.Equal(t, "a.npp:3:7", SourceLocation{Filename: "a.npp", Line: 3, Column: 7}.String())
	require.True(t, SourceLocation{}.IsZero())
}

func TestFormatter(t *testing.T) {
	f := NewFormatter(false)
	err := NewStructuredError(ErrRuntime, "Stack overflow.", SourceLocation{Line: 2}, []StackFrame{{Function: "f", Line: 2}})
	require.Equal(t, "runtime error: Stack overflow. (2)\n  [line 2] in f()\n", f.Format(err))
	require.Equal(t, "error: plain\n", f.Format(errors.New("plain")))

	var agg *multierror.Error
	agg = Append(agg, NewStructuredError(ErrCompile, "first", SourceLocation{Line: 1}, nil))
	require.Equal(t, "compile error: first (1)\n", f.Format(agg))
	agg = Append(agg, NewStructuredError(ErrCompile, "second", SourceLocation{Line: 2}, nil))
	require.Equal(t, "[1/2] compile error: first (1)\n[2/2] compile error: second (2)\nfound 2 errors\n", f.Format(agg))
	require.Equal(t, "2 errors occurred:\ncompile error: first (1)\ncompile error: second (2)", agg.Error())
}
