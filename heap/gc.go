package heap

import (
	"github.com/deepnoodle-ai/npp/value"
)

// GrowthFactor scales the live byte count into the next threshold.
const GrowthFactor = 2

// RootSource contributes roots at the start of every collection.
type RootSource interface {
	MarkRoots(m *Marker)
}

// Marker marks objects during the root phase and while tracing.
type Marker struct {
	h *Heap
}

// MarkValue marks the object behind v, if any.
func (m *Marker) MarkValue(v value.Value) {
	if v.IsObject() {
		m.MarkRef(v.AsRef())
	}
}

// MarkRef marks the object behind ref and queues it for tracing. Zero
// handles are ignored.
func (m *Marker) MarkRef(ref value.Ref) {
	if ref.IsZero() {
		return
	}
	s := m.h.slotFor(ref)
	if s.marked {
		return
	}
	s.marked = true
	m.h.gray = append(m.h.gray, ref)
}

// MarkTable marks every key and value in t.
func (m *Marker) MarkTable(t *Table) {
	for k, v := range t.entries {
		m.MarkRef(k)
		m.MarkValue(v)
	}
}

// Cycle describes one completed collection.
type Cycle struct {
	Number       int
	BytesBefore  int
	BytesAfter   int
	FreedObjects int
	FreedStrings int
	NextGC       int
}

// Stats summarizes collector activity.
type Stats struct {
	Collections int
	Objects     int
	Allocated   int
	NextGC      int
	LastCycle   Cycle
}

// Stats returns a snapshot of collector activity.
func (h *Heap) Stats() Stats {
	s := h.stats
	s.Objects = h.live
	s.Allocated = h.alloc.Allocated()
	s.NextGC = h.alloc.NextGC()
	return s
}

// Collect runs a full collection: mark roots, trace, purge unmarked intern
// entries, sweep and reset the threshold to twice the surviving bytes.
func (h *Heap) Collect() {
	before := h.alloc.Allocated()
	number := h.stats.Collections + 1
	h.logger.Debug().Int("cycle", number).Int("allocated", before).Msg("gc begin")

	m := &Marker{h: h}
	h.markRoots(m)
	h.trace(m)
	purged := h.removeWhiteStrings()
	freed := h.sweep()

	after := h.alloc.Allocated()
	next := after * GrowthFactor
	h.alloc.SetNextGC(next)

	cycle := Cycle{
		Number:       number,
		BytesBefore:  before,
		BytesAfter:   after,
		FreedObjects: freed,
		FreedStrings: purged,
		NextGC:       next,
	}
	h.stats.Collections = number
	h.stats.LastCycle = cycle
	h.logger.Debug().
		Int("cycle", number).
		Int("collected", before-after).
		Int("from", before).
		Int("to", after).
		Int("freed_objects", freed).
		Int("next", next).
		Msg("gc end")
	if h.onCollect != nil {
		h.onCollect(cycle)
	}
}

func (h *Heap) markRoots(m *Marker) {
	for _, v := range h.temps {
		m.MarkValue(v)
	}
	for _, src := range h.sources {
		src.MarkRoots(m)
	}
}

func (h *Heap) trace(m *Marker) {
	for len(h.gray) > 0 {
		ref := h.gray[len(h.gray)-1]
		h.gray = h.gray[:len(h.gray)-1]
		h.slots[ref.Index].obj.blacken(m)
	}
}

// sweep frees every unmarked object and clears the mark on survivors.
func (h *Heap) sweep() int {
	freed := 0
	var prev uint32
	for index := h.head; index != 0; {
		s := &h.slots[index]
		next := s.next
		if s.marked {
			s.marked = false
			prev = index
		} else {
			if prev == 0 {
				h.head = next
			} else {
				h.slots[prev].next = next
			}
			h.release(index)
			freed++
		}
		index = next
	}
	return freed
}
