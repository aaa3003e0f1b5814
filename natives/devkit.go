package natives

import (
	"github.com/deepnoodle-ai/npp/heap"
	"github.com/deepnoodle-ai/npp/value"
)

// CollectGarbage forces a collection.
func (n *Natives) CollectGarbage(args []value.Value) (value.Value, error) {
	if err := Arity(args, 0); err != nil {
		return value.Null(), err
	}
	n.host.CollectGarbage()
	return value.Null(), nil
}

// RuntimeError aborts execution with the given message.
func (n *Natives) RuntimeError(args []value.Value) (value.Value, error) {
	if err := Arity(args, 1); err != nil {
		return value.Null(), err
	}
	if !n.heap.Is(args[0], heap.KindString) {
		return value.Null(), TypeError("Argument 1 must be a string.")
	}
	return value.Null(), Error("%s", n.heap.Text(args[0].AsRef()))
}

// Interpret compiles and runs source on the calling VM.
func (n *Natives) Interpret(args []value.Value) (value.Value, error) {
	if err := Arity(args, 1); err != nil {
		return value.Null(), err
	}
	if !n.heap.Is(args[0], heap.KindString) {
		return value.Null(), TypeError("Argument 1 must be a string.")
	}
	if err := n.host.Exec(n.heap.Text(args[0].AsRef())); err != nil {
		return value.Null(), err
	}
	return value.Null(), nil
}
