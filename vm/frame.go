package vm

import (
	"github.com/deepnoodle-ai/npp/bytecode"
	"github.com/deepnoodle-ai/npp/heap"
	"github.com/deepnoodle-ai/npp/value"
)

// SlotsPerFrame is the number of value stack slots reserved per frame.
const SlotsPerFrame = 256

// frame is one active closure invocation. Base is the stack index of slot
// zero, which holds the callee (or receiver) followed by the arguments.
type frame struct {
	closure value.Ref
	fn      *heap.Function
	chunk   *bytecode.Chunk
	ip      int
	base    int
}

func (f *frame) activate(closure value.Ref, fn *heap.Function, base int) {
	f.closure = closure
	f.fn = fn
	f.chunk = fn.Chunk
	f.ip = 0
	f.base = base
}

// fetch reads the operand at the cursor and advances past it.
func (f *frame) fetch() int {
	operand := f.chunk.Code[f.ip]
	f.ip++
	return int(operand)
}

// line returns the source line of the instruction being executed.
func (f *frame) line() int {
	return f.chunk.LineAt(f.ip - 1)
}
