package natives

import (
	"strconv"

	"github.com/deepnoodle-ai/npp/heap"
	"github.com/deepnoodle-ai/npp/value"
)

// Argc returns the number of script arguments.
func (n *Natives) Argc(args []value.Value) (value.Value, error) {
	if err := Arity(args, 0); err != nil {
		return value.Null(), err
	}
	return value.Number(float64(len(n.host.Args()))), nil
}

// Argv returns the script argument at the given index.
func (n *Natives) Argv(args []value.Value) (value.Value, error) {
	if err := Arity(args, 1); err != nil {
		return value.Null(), err
	}
	if !args[0].IsNumber() {
		return value.Null(), TypeError("Argument must be a number.")
	}
	all := n.host.Args()
	index := int(args[0].AsNumber())
	if index < 0 || index >= len(all) {
		return value.Null(), Error("Index out of bounds. There are %d arguments.", len(all))
	}
	return value.Object(n.heap.Intern(all[index])), nil
}

// Stringize converts a number to a string. Strings are returned unchanged.
func (n *Natives) Stringize(args []value.Value) (value.Value, error) {
	if err := Arity(args, 1); err != nil {
		return value.Null(), err
	}
	switch {
	case n.heap.Is(args[0], heap.KindString):
		return args[0], nil
	case args[0].IsNumber():
		return value.Object(n.heap.Intern(value.FormatNumber(args[0].AsNumber()))), nil
	default:
		return value.Null(), TypeError("Unsupported type for stringize.")
	}
}

// Integize parses a string as a number. Numbers are returned unchanged.
func (n *Natives) Integize(args []value.Value) (value.Value, error) {
	if err := Arity(args, 1); err != nil {
		return value.Null(), err
	}
	switch {
	case n.heap.Is(args[0], heap.KindString):
		f, err := strconv.ParseFloat(n.heap.Text(args[0].AsRef()), 64)
		if err != nil {
			return value.Null(), Error("String could not be converted to a number.")
		}
		return value.Number(f), nil
	case args[0].IsNumber():
		return args[0], nil
	default:
		return value.Null(), TypeError("Unsupported type for integize.")
	}
}

func (n *Natives) isKind(pred func(value.Value) bool) heap.NativeFn {
	return func(args []value.Value) (value.Value, error) {
		if err := Arity(args, 1); err != nil {
			return value.Null(), err
		}
		return value.Bool(pred(args[0])), nil
	}
}

func (n *Natives) isObject(kind heap.Kind) heap.NativeFn {
	return n.isKind(func(v value.Value) bool {
		return n.heap.Is(v, kind)
	})
}
