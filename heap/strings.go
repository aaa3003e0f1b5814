package heap

import (
	"hash/fnv"

	"github.com/deepnoodle-ai/npp/value"
)

func hashString(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

// Intern returns the canonical string object for s, allocating it on first
// use. The intern table holds its entries weakly.
func (h *Heap) Intern(s string) value.Ref {
	hash := hashString(s)
	if ref, ok := h.findString(s, hash); ok {
		return ref
	}
	ref, block := h.allocate(nil, stringSize+len(s))
	chars := block[stringSize:]
	copy(chars, s)
	h.slots[ref.Index].obj = &String{chars: chars, hash: hash}
	h.strings[hash] = append(h.strings[hash], ref)
	return ref
}

// CopyString is Intern for a byte slice.
func (h *Heap) CopyString(b []byte) value.Ref {
	return h.Intern(string(b))
}

// Concat interns the concatenation of two strings.
func (h *Heap) Concat(a, b value.Ref) value.Ref {
	left := MustAs[*String](h, a)
	right := MustAs[*String](h, b)
	return h.Intern(string(left.chars) + string(right.chars))
}

// Lookup returns the interned string for s without allocating.
func (h *Heap) Lookup(s string) (value.Ref, bool) {
	return h.findString(s, hashString(s))
}

// Text returns the contents of the string behind ref.
func (h *Heap) Text(ref value.Ref) string {
	return MustAs[*String](h, ref).String()
}

func (h *Heap) findString(s string, hash uint32) (value.Ref, bool) {
	for _, ref := range h.strings[hash] {
		if string(MustAs[*String](h, ref).chars) == s {
			return ref, true
		}
	}
	return value.NoRef, false
}

// removeWhiteStrings drops intern entries whose string was not marked.
func (h *Heap) removeWhiteStrings() int {
	removed := 0
	for hash, bucket := range h.strings {
		kept := bucket[:0]
		for _, ref := range bucket {
			if h.slots[ref.Index].marked {
				kept = append(kept, ref)
			} else {
				removed++
			}
		}
		if len(kept) == 0 {
			delete(h.strings, hash)
		} else {
			h.strings[hash] = kept
		}
	}
	return removed
}

// Interned returns the number of strings in the intern table.
func (h *Heap) Interned() int {
	n := 0
	for _, bucket := range h.strings {
		n += len(bucket)
	}
	return n
}
