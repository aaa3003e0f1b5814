package heap

import (
	"fmt"

	"github.com/deepnoodle-ai/npp/bytecode"
	"github.com/deepnoodle-ai/npp/value"
)

// Kind discriminates heap object variants.
type Kind uint8

const (
	KindString Kind = iota + 1
	KindFunction
	KindClosure
	KindUpvalue
	KindNative
	KindBoundMethod
	KindClass
	KindInstance
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindFunction:
		return "function"
	case KindClosure:
		return "closure"
	case KindUpvalue:
		return "upvalue"
	case KindNative:
		return "native"
	case KindBoundMethod:
		return "bound_method"
	case KindClass:
		return "class"
	case KindInstance:
		return "instance"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Approximate byte costs charged to the allocator for each variant. The
// payload of a string and the entries of a table are charged on top.
const (
	headerSize      = 16
	stringSize      = headerSize + 8
	functionSize    = headerSize + 32
	closureSize     = headerSize + 16
	upvalueSize     = headerSize + 24
	nativeSize      = headerSize + 16
	boundMethodSize = headerSize + 32
	classSize       = headerSize + 16
	instanceSize    = headerSize + 16
	refSize         = 8
	entrySize       = 24
)

// Object is implemented by every heap variant.
type Object interface {
	Kind() Kind
	// size returns the number of bytes currently charged for the object.
	size() int
	// blacken marks every object the receiver references.
	blacken(m *Marker)
}

// String is an immutable, interned character sequence.
type String struct {
	chars []byte
	hash  uint32
}

func (s *String) Kind() Kind      { return KindString }
func (s *String) size() int       { return stringSize + len(s.chars) }
func (s *String) blacken(*Marker) {}

// String returns the characters as a Go string.
func (s *String) String() string { return string(s.chars) }

// Len returns the number of bytes in the string.
func (s *String) Len() int { return len(s.chars) }

// Hash returns the cached FNV-1a hash of the contents.
func (s *String) Hash() uint32 { return s.hash }

// Function is a compiled function body. A zero Name marks the top-level
// script.
type Function struct {
	Name         value.Ref
	Arity        int
	UpvalueCount int
	Chunk        *bytecode.Chunk
}

func (f *Function) Kind() Kind { return KindFunction }
func (f *Function) size() int  { return functionSize }

func (f *Function) blacken(m *Marker) {
	m.MarkRef(f.Name)
	if f.Chunk == nil {
		return
	}
	for _, constant := range f.Chunk.Constants {
		m.MarkValue(constant)
	}
}

// Closure pairs a function with its captured variables.
type Closure struct {
	Function value.Ref
	Upvalues []value.Ref
}

func (c *Closure) Kind() Kind { return KindClosure }
func (c *Closure) size() int  { return closureSize + refSize*len(c.Upvalues) }

func (c *Closure) blacken(m *Marker) {
	m.MarkRef(c.Function)
	for _, upvalue := range c.Upvalues {
		m.MarkRef(upvalue)
	}
}

// UpvalueState is either OpenSlot or Closed.
type UpvalueState interface {
	isUpvalueState()
}

// OpenSlot is the state of an upvalue still backed by a stack slot.
type OpenSlot int

// Closed is the state of an upvalue that owns its value.
type Closed struct {
	Value value.Value
}

func (OpenSlot) isUpvalueState() {}
func (Closed) isUpvalueState()   {}

// Upvalue is a captured variable. Open upvalues are linked through Next in
// order of descending stack slot.
type Upvalue struct {
	State UpvalueState
	Next  value.Ref
}

func (u *Upvalue) Kind() Kind { return KindUpvalue }
func (u *Upvalue) size() int  { return upvalueSize }

func (u *Upvalue) blacken(m *Marker) {
	if closed, ok := u.State.(Closed); ok {
		m.MarkValue(closed.Value)
	}
}

// Slot returns the stack slot of an open upvalue.
func (u *Upvalue) Slot() (int, bool) {
	slot, ok := u.State.(OpenSlot)
	return int(slot), ok
}

// IsOpen reports whether the upvalue still refers to a stack slot.
func (u *Upvalue) IsOpen() bool {
	_, ok := u.State.(OpenSlot)
	return ok
}

// Close moves v into the upvalue. An upvalue can be closed only once.
func (u *Upvalue) Close(v value.Value) {
	if !u.IsOpen() {
		panic("heap: upvalue already closed")
	}
	u.State = Closed{Value: v}
	u.Next = value.NoRef
}

// NativeFn is a host function callable from bytecode. A non-nil error is
// reported as a runtime error.
type NativeFn func(args []value.Value) (value.Value, error)

// Native is a host function bound to a name.
type Native struct {
	Name string
	Fn   NativeFn
}

func (n *Native) Kind() Kind      { return KindNative }
func (n *Native) size() int       { return nativeSize }
func (n *Native) blacken(*Marker) {}

// BoundMethod is a method closure paired with its receiver.
type BoundMethod struct {
	Receiver value.Value
	Method   value.Ref
}

func (b *BoundMethod) Kind() Kind { return KindBoundMethod }
func (b *BoundMethod) size() int  { return boundMethodSize }

func (b *BoundMethod) blacken(m *Marker) {
	m.MarkValue(b.Receiver)
	m.MarkRef(b.Method)
}

// Class holds a name and a method table.
type Class struct {
	Name    value.Ref
	Methods Table
}

func (c *Class) Kind() Kind { return KindClass }
func (c *Class) size() int  { return classSize + entrySize*c.Methods.Len() }

func (c *Class) blacken(m *Marker) {
	m.MarkRef(c.Name)
	m.MarkTable(&c.Methods)
}

// Instance holds a class reference and a field table.
type Instance struct {
	Class  value.Ref
	Fields Table
}

func (i *Instance) Kind() Kind { return KindInstance }
func (i *Instance) size() int  { return instanceSize + entrySize*i.Fields.Len() }

func (i *Instance) blacken(m *Marker) {
	m.MarkRef(i.Class)
	m.MarkTable(&i.Fields)
}
