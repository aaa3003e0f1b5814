package heap

import "github.com/deepnoodle-ai/npp/value"

// Table maps interned string handles to values. The zero Table is empty and
// ready to use.
type Table struct {
	entries map[value.Ref]value.Value
}

// Get returns the value stored under key.
func (t *Table) Get(key value.Ref) (value.Value, bool) {
	v, ok := t.entries[key]
	return v, ok
}

// Set stores v under key and reports whether key was new.
func (t *Table) Set(key value.Ref, v value.Value) bool {
	if t.entries == nil {
		t.entries = map[value.Ref]value.Value{}
	}
	_, exists := t.entries[key]
	t.entries[key] = v
	return !exists
}

// Has reports whether key is present.
func (t *Table) Has(key value.Ref) bool {
	_, ok := t.entries[key]
	return ok
}

// Delete removes key and reports whether it was present.
func (t *Table) Delete(key value.Ref) bool {
	if _, ok := t.entries[key]; !ok {
		return false
	}
	delete(t.entries, key)
	return true
}

// Len returns the number of entries.
func (t *Table) Len() int {
	return len(t.entries)
}

// Each calls fn for every entry in unspecified order.
func (t *Table) Each(fn func(key value.Ref, v value.Value)) {
	for k, v := range t.entries {
		fn(k, v)
	}
}

func (t *Table) clear() {
	t.entries = nil
}
