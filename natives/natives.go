// Package natives defines the standard set of host functions available to
// npp programs.
//
// Every native validates its own argument count and types and reports
// violations by returning an error, which the virtual machine turns into a
// runtime error with a backtrace.
package natives

import (
	"bufio"
	"io"
	"math"
	"time"

	"github.com/deepnoodle-ai/npp/errz"
	"github.com/deepnoodle-ai/npp/heap"
	"github.com/deepnoodle-ai/npp/value"
)

// Host is the part of the virtual machine the natives depend on.
type Host interface {
	Heap() *heap.Heap
	DefineNative(name string, fn heap.NativeFn)
	Args() []string
	Stdout() io.Writer
	Stderr() io.Writer
	Stdin() *bufio.Reader
	CollectGarbage()
	Exec(source string) error
}

// Natives binds the standard natives to a host.
type Natives struct {
	host  Host
	heap  *heap.Heap
	start time.Time
}

// New returns the natives for host without registering them.
func New(host Host) *Natives {
	return &Natives{host: host, heap: host.Heap(), start: time.Now()}
}

// Register defines every standard native in host's globals.
func Register(host Host) {
	n := New(host)
	for _, entry := range n.Table() {
		host.DefineNative(entry.Name, entry.Fn)
	}
}

// Entry is a named native.
type Entry struct {
	Name string
	Fn   heap.NativeFn
}

// Table returns the standard natives in registration order.
func (n *Natives) Table() []Entry {
	return []Entry{
		// Time
		{"clock", n.Clock},

		// Arguments and conversions
		{"argc", n.Argc},
		{"argv", n.Argv},
		{"stringize", n.Stringize},
		{"integize", n.Integize},

		// Value checks
		{"isNum", n.isKind(func(v value.Value) bool { return v.IsNumber() })},
		{"isBool", n.isKind(func(v value.Value) bool { return v.IsBool() })},
		{"isObj", n.isKind(func(v value.Value) bool { return v.IsObject() })},
		{"isStr", n.isObject(heap.KindString)},
		{"isNull", n.isKind(func(v value.Value) bool { return v.IsNull() })},
		{"isInst", n.isObject(heap.KindInstance)},
		{"isNative", n.isObject(heap.KindNative)},
		{"isClass", n.isObject(heap.KindClass)},
		{"isBoundMethod", n.isObject(heap.KindBoundMethod)},

		// I/O
		{"broadcast", n.Broadcast},
		{"receive", n.Receive},
		{"system", n.System},

		// Trigonometry
		{"sin", unaryMath(math.Sin)},
		{"cos", unaryMath(math.Cos)},
		{"tan", unaryMath(math.Tan)},
		{"abs", unaryMath(math.Abs)},
		{"asin", unaryMath(math.Asin)},
		{"acos", unaryMath(math.Acos)},
		{"atan", unaryMath(math.Atan)},
		{"hypot", binaryMath(math.Hypot)},

		// Math
		{"sqrt", unaryMath(math.Sqrt)},
		{"powr", binaryMath(math.Pow)},
		{"mdls", Mdls},

		// Language development kit
		{"collectGarbage", n.CollectGarbage},
		{"runtimeError", n.RuntimeError},
		{"interpret", n.Interpret},
	}
}

// Arity returns an error unless exactly n arguments were passed.
func Arity(args []value.Value, n int) error {
	if len(args) != n {
		return errz.NewStructuredErrorf(errz.ErrArity, errz.SourceLocation{}, nil,
			"Expected %d arguments but got %d.", n, len(args))
	}
	return nil
}

// TypeError returns a type error with the given message.
func TypeError(format string, args ...any) error {
	return errz.NewStructuredErrorf(errz.ErrType, errz.SourceLocation{}, nil, format, args...)
}

// Error returns a runtime error with the given message.
func Error(format string, args ...any) error {
	return errz.NewStructuredErrorf(errz.ErrRuntime, errz.SourceLocation{}, nil, format, args...)
}

// Clock returns the seconds elapsed since the natives were registered.
func (n *Natives) Clock(args []value.Value) (value.Value, error) {
	if err := Arity(args, 0); err != nil {
		return value.Null(), err
	}
	return value.Number(time.Since(n.start).Seconds()), nil
}
