package heap

import (
	"fmt"

	"github.com/deepnoodle-ai/npp/value"
)

// Format returns the printed representation of v.
func (h *Heap) Format(v value.Value) string {
	if !v.IsObject() {
		return v.String()
	}
	switch obj := h.Get(v.AsRef()).(type) {
	case *String:
		return obj.String()
	case *Function:
		return h.formatFunction(obj)
	case *Closure:
		return h.formatFunction(MustAs[*Function](h, obj.Function))
	case *Upvalue:
		return "upvalue"
	case *Native:
		return "<native fn>"
	case *BoundMethod:
		closure := MustAs[*Closure](h, obj.Method)
		return h.formatFunction(MustAs[*Function](h, closure.Function))
	case *Class:
		return h.Text(obj.Name)
	case *Instance:
		return h.Text(MustAs[*Class](h, obj.Class).Name) + " instance"
	default:
		return fmt.Sprintf("<%s>", obj.Kind())
	}
}

// FunctionName returns the name of fn, or "script" for the top level.
func (h *Heap) FunctionName(fn *Function) string {
	if fn.Name.IsZero() {
		return "script"
	}
	return h.Text(fn.Name)
}

func (h *Heap) formatFunction(fn *Function) string {
	if fn.Name.IsZero() {
		return "<script>"
	}
	return "<fn " + h.Text(fn.Name) + ">"
}
