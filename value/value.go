// Package value defines the fixed-size Value type manipulated by the virtual
// machine.
//
// A Value is one of four kinds: null, boolean, number or a reference to a
// heap object. Values never allocate; heap objects are addressed through a
// generational handle (Ref) owned by the heap package.
package value

import (
	"fmt"
	"strconv"
)

// Kind discriminates the variants of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindObject
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Ref is a generational handle to a heap object. The zero Ref refers to
// nothing.
type Ref struct {
	Index uint32
	Gen   uint32
}

// NoRef is the invalid handle.
var NoRef = Ref{}

// IsZero reports whether the handle refers to nothing.
func (r Ref) IsZero() bool {
	return r.Gen == 0
}

func (r Ref) String() string {
	return fmt.Sprintf("#%d.%d", r.Index, r.Gen)
}

// Value is a tagged union. Booleans are stored in the numeric payload.
type Value struct {
	kind Kind
	num  float64
	ref  Ref
}

var (
	nullValue  = Value{kind: KindNull}
	trueValue  = Value{kind: KindBool, num: 1}
	falseValue = Value{kind: KindBool}
)

// Null returns the null value.
func Null() Value { return nullValue }

// Bool returns a boolean value.
func Bool(b bool) Value {
	if b {
		return trueValue
	}
	return falseValue
}

// Number returns a numeric value.
func Number(n float64) Value {
	return Value{kind: KindNumber, num: n}
}

// Object returns a value referencing the heap object behind ref.
func Object(ref Ref) Value {
	return Value{kind: KindObject, ref: ref}
}

func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsNull() bool   { return v.kind == KindNull }
func (v Value) IsBool() bool   { return v.kind == KindBool }
func (v Value) IsNumber() bool { return v.kind == KindNumber }
func (v Value) IsObject() bool { return v.kind == KindObject }

// AsBool returns the boolean payload. The caller must check IsBool first.
func (v Value) AsBool() bool { return v.num != 0 }

// AsNumber returns the numeric payload. The caller must check IsNumber first.
func (v Value) AsNumber() float64 { return v.num }

// AsRef returns the object handle. The caller must check IsObject first.
func (v Value) AsRef() Ref { return v.ref }

// IsFalsey reports whether v is null or false.
func (v Value) IsFalsey() bool {
	return v.kind == KindNull || (v.kind == KindBool && v.num == 0)
}

// Equal compares two values. Objects compare by identity, which is sound for
// strings because they are interned.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.AsBool() == b.AsBool()
	case KindNumber:
		return a.num == b.num
	case KindObject:
		return a.ref == b.ref
	default:
		return false
	}
}

// String formats non-object values. Objects are formatted by the heap, which
// knows their contents; here they print as their handle.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.AsBool())
	case KindNumber:
		return FormatNumber(v.num)
	default:
		return "<object " + v.ref.String() + ">"
	}
}

// FormatNumber renders a number the way print and stringize do.
func FormatNumber(n float64) string {
	return strconv.FormatFloat(n, 'g', -1, 64)
}
