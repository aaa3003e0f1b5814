// Package heap implements the object model and the mark-sweep collector.
//
// Objects live in an arena of slots addressed by generational handles
// (value.Ref). Every live slot is linked into one intrusive list that the
// sweep phase walks. Freed slots are recycled with a bumped generation, so a
// handle to a freed object never resolves again.
//
// All memory is charged through a memory.Allocator, which runs the heap's
// collector synchronously when the allocation threshold is crossed. Host
// code that holds object handles across an allocation must keep them
// reachable, either from a registered RootSource or with PushRoot.
package heap

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/deepnoodle-ai/npp/bytecode"
	"github.com/deepnoodle-ai/npp/memory"
	"github.com/deepnoodle-ai/npp/value"
)

type slot struct {
	obj    Object
	block  []byte
	gen    uint32
	marked bool
	next   uint32
}

// Heap owns every runtime object. It is not safe for concurrent use.
type Heap struct {
	alloc     *memory.Allocator
	slots     []slot
	free      []uint32
	head      uint32
	live      int
	strings   map[uint32][]value.Ref
	sources   []RootSource
	temps     []value.Value
	gray      []value.Ref
	logger    zerolog.Logger
	stats     Stats
	onCollect func(Cycle)
}

// Option configures a Heap.
type Option func(*Heap)

// WithAllocator sets the allocator the heap charges. The heap registers
// itself as the allocator's collector.
func WithAllocator(a *memory.Allocator) Option {
	return func(h *Heap) {
		h.alloc = a
	}
}

// WithLogger sets the logger used for collection diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(h *Heap) {
		h.logger = logger
	}
}

// New returns an empty heap.
func New(options ...Option) *Heap {
	h := &Heap{
		slots:   make([]slot, 1, 256),
		strings: map[uint32][]value.Ref{},
		logger:  zerolog.Nop(),
	}
	for _, opt := range options {
		opt(h)
	}
	if h.alloc == nil {
		h.alloc = memory.New()
	}
	h.alloc.SetCollector(h)
	return h
}

// Allocator returns the allocator backing the heap.
func (h *Heap) Allocator() *memory.Allocator {
	return h.alloc
}

// SetCollectHook registers fn to be called after every collection.
func (h *Heap) SetCollectHook(fn func(Cycle)) {
	h.onCollect = fn
}

// Len returns the number of live objects.
func (h *Heap) Len() int {
	return h.live
}

// allocate charges size bytes and links obj into the object list. The charge
// happens first, so a collection it triggers never sees obj.
func (h *Heap) allocate(obj Object, size int) (value.Ref, []byte) {
	block := h.alloc.Resize(nil, 0, size)
	var index uint32
	if n := len(h.free); n > 0 {
		index = h.free[n-1]
		h.free = h.free[:n-1]
	} else {
		h.slots = append(h.slots, slot{gen: 1})
		index = uint32(len(h.slots) - 1)
	}
	s := &h.slots[index]
	s.obj = obj
	s.block = block
	s.marked = false
	s.next = h.head
	h.head = index
	h.live++
	return value.Ref{Index: index, Gen: s.gen}, block
}

// release frees the slot behind index. The caller must have unlinked it.
func (h *Heap) release(index uint32) int {
	s := &h.slots[index]
	size := len(s.block)
	switch obj := s.obj.(type) {
	case *String:
		obj.chars = nil
	case *Closure:
		obj.Upvalues = nil
	case *Class:
		obj.Methods.clear()
	case *Instance:
		obj.Fields.clear()
	case *Function:
		obj.Chunk = nil
	}
	h.alloc.Resize(s.block, size, 0)
	s.obj = nil
	s.block = nil
	s.marked = false
	s.next = 0
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	h.free = append(h.free, index)
	h.live--
	return size
}

func (h *Heap) slotFor(ref value.Ref) *slot {
	if ref.IsZero() || int(ref.Index) >= len(h.slots) {
		panic(fmt.Sprintf("heap: invalid handle %s", ref))
	}
	s := &h.slots[ref.Index]
	if s.gen != ref.Gen || s.obj == nil {
		panic(fmt.Sprintf("heap: use after free: handle %s (current generation %d)", ref, s.gen))
	}
	return s
}

// Valid reports whether ref refers to a live object.
func (h *Heap) Valid(ref value.Ref) bool {
	if ref.IsZero() || int(ref.Index) >= len(h.slots) {
		return false
	}
	s := &h.slots[ref.Index]
	return s.gen == ref.Gen && s.obj != nil
}

// Get returns the object behind ref. It panics if ref is stale.
func (h *Heap) Get(ref value.Ref) Object {
	return h.slotFor(ref).obj
}

// KindOf returns the object kind of v, or false if v is not an object.
func (h *Heap) KindOf(v value.Value) (Kind, bool) {
	if !v.IsObject() {
		return 0, false
	}
	return h.Get(v.AsRef()).Kind(), true
}

// Is reports whether v is an object of the given kind.
func (h *Heap) Is(v value.Value, kind Kind) bool {
	k, ok := h.KindOf(v)
	return ok && k == kind
}

// As returns the object behind v as type T.
func As[T Object](h *Heap, v value.Value) (T, bool) {
	var zero T
	if !v.IsObject() {
		return zero, false
	}
	obj, ok := h.Get(v.AsRef()).(T)
	return obj, ok
}

// MustAs returns the object behind ref as type T, panicking on a kind
// mismatch.
func MustAs[T Object](h *Heap, ref value.Ref) T {
	obj := h.Get(ref)
	t, ok := obj.(T)
	if !ok {
		panic(fmt.Sprintf("heap: handle %s is a %s", ref, obj.Kind()))
	}
	return t
}

// grow recharges the object behind ref after it gained delta bytes. It may
// collect, so the object must be reachable.
func (h *Heap) grow(ref value.Ref, delta int) {
	s := h.slotFor(ref)
	old := len(s.block)
	block := h.alloc.Resize(s.block, old, old+delta)
	h.slots[ref.Index].block = block
}

// NewFunction allocates a function. Name, when set, must be reachable.
func (h *Heap) NewFunction(name value.Ref, arity, upvalueCount int, chunk *bytecode.Chunk) value.Ref {
	if chunk == nil {
		chunk = bytecode.NewChunk()
	}
	ref, _ := h.allocate(&Function{
		Name:         name,
		Arity:        arity,
		UpvalueCount: upvalueCount,
		Chunk:        chunk,
	}, functionSize)
	return ref
}

// NewClosure allocates a closure over fn with room for its upvalues, all
// initially unset. Fn must be reachable.
func (h *Heap) NewClosure(fn value.Ref) value.Ref {
	count := MustAs[*Function](h, fn).UpvalueCount
	ref, _ := h.allocate(&Closure{
		Function: fn,
		Upvalues: make([]value.Ref, count),
	}, closureSize+refSize*count)
	return ref
}

// NewUpvalue allocates an open upvalue for the given stack slot.
func (h *Heap) NewUpvalue(stackSlot int) value.Ref {
	ref, _ := h.allocate(&Upvalue{State: OpenSlot(stackSlot)}, upvalueSize)
	return ref
}

// NewNative allocates a native function.
func (h *Heap) NewNative(name string, fn NativeFn) value.Ref {
	ref, _ := h.allocate(&Native{Name: name, Fn: fn}, nativeSize)
	return ref
}

// NewBoundMethod allocates a method bound to receiver. Both must be
// reachable.
func (h *Heap) NewBoundMethod(receiver value.Value, method value.Ref) value.Ref {
	ref, _ := h.allocate(&BoundMethod{Receiver: receiver, Method: method}, boundMethodSize)
	return ref
}

// NewClass allocates a class with no methods. Name must be reachable.
func (h *Heap) NewClass(name value.Ref) value.Ref {
	ref, _ := h.allocate(&Class{Name: name}, classSize)
	return ref
}

// NewInstance allocates an instance of class with no fields. Class must be
// reachable.
func (h *Heap) NewInstance(class value.Ref) value.Ref {
	ref, _ := h.allocate(&Instance{Class: class}, instanceSize)
	return ref
}

// SetField stores v in the instance field named key. The instance, key and
// v must be reachable, since adding a field may collect.
func (h *Heap) SetField(instance, key value.Ref, v value.Value) {
	if !MustAs[*Instance](h, instance).Fields.Has(key) {
		h.grow(instance, entrySize)
	}
	MustAs[*Instance](h, instance).Fields.Set(key, v)
}

// SetMethod stores method in the class method table under key, with the
// same reachability requirements as SetField.
func (h *Heap) SetMethod(class, key value.Ref, method value.Value) {
	if !MustAs[*Class](h, class).Methods.Has(key) {
		h.grow(class, entrySize)
	}
	MustAs[*Class](h, class).Methods.Set(key, method)
}

// PushRoot keeps v reachable until the matching PopRoot.
func (h *Heap) PushRoot(v value.Value) {
	h.temps = append(h.temps, v)
}

// PopRoot releases the most recently pushed temporary root.
func (h *Heap) PopRoot() {
	h.temps = h.temps[:len(h.temps)-1]
}

// AddRootSource registers src to be consulted when marking roots.
func (h *Heap) AddRootSource(src RootSource) {
	h.sources = append(h.sources, src)
}

// RemoveRootSource unregisters src.
func (h *Heap) RemoveRootSource(src RootSource) {
	for i, s := range h.sources {
		if s == src {
			h.sources = append(h.sources[:i], h.sources[i+1:]...)
			return
		}
	}
}

// Free releases every object. The heap is empty and reusable afterwards;
// all outstanding handles become invalid.
func (h *Heap) Free() {
	for index := h.head; index != 0; {
		next := h.slots[index].next
		h.release(index)
		index = next
	}
	h.head = 0
	h.gray = nil
	h.temps = nil
	clear(h.strings)
}
