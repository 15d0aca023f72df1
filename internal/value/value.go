// Package value implements Tokudae's tagged value model (spec section 3,
// 4.1): the Value sum type, integer/float conversion rules and the raw
// arithmetic used by constant folding in the code emitter.
//
// Values that require a GC-managed heap (lists, tables, closures,
// classes, instances, userdata, threads) are represented here only as
// opaque Handles — the allocator, garbage collector and runtime
// representation of those objects are the VM's responsibility (spec
// section 1, "explicitly out of scope").
package value

import (
	"math"
)

// Kind discriminates the variants of Value (spec section 3).
type Kind uint8

const (
	KNil Kind = iota
	KBool
	KInt
	KFloat
	KShortString
	KLongString
	KLightUserdata
	KUserdata
	KList
	KTable
	KFunction
	KBoundMethod
	KClass
	KInstance
	KThread
)

func (k Kind) String() string {
	switch k {
	case KNil:
		return "nil"
	case KBool:
		return "bool"
	case KInt:
		return "int"
	case KFloat:
		return "float"
	case KShortString, KLongString:
		return "string"
	case KLightUserdata:
		return "lightuserdata"
	case KUserdata:
		return "userdata"
	case KList:
		return "list"
	case KTable:
		return "table"
	case KFunction:
		return "function"
	case KBoundMethod:
		return "boundmethod"
	case KClass:
		return "class"
	case KInstance:
		return "instance"
	case KThread:
		return "thread"
	default:
		return "unknown"
	}
}

// String is an interned or heap string payload. ShortString values are
// assumed to come from an intern table (the string-interning collaborator,
// out of scope per spec section 1); LongString values are heap-resident
// and compared by content.
type String struct {
	Data string
	// Interned is true for ShortString; false for LongString. Kept on the
	// payload (rather than inferred from length) because interning policy
	// belongs to the external collaborator, not this package.
	Interned bool
}

// Value is Tokudae's tagged union. Handle carries the opaque
// representation of any GC-managed object (list/table/function/class/
// instance/userdata/thread); this package never dereferences it.
type Value struct {
	kind   Kind
	b      bool
	i      int64
	f      float64
	s      *String
	Handle interface{}
}

func Nil() Value                { return Value{kind: KNil} }
func Bool(b bool) Value         { return Value{kind: KBool, b: b} }
func Int(i int64) Value         { return Value{kind: KInt, i: i} }
func Float(f float64) Value     { return Value{kind: KFloat, f: f} }
func ShortStr(s *String) Value  { return Value{kind: KShortString, s: s} }
func LongStr(s *String) Value   { return Value{kind: KLongString, s: s} }

func Handle(k Kind, h interface{}) Value { return Value{kind: k, Handle: h} }

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNil() bool  { return v.kind == KNil }
func (v Value) AsBool() bool { return v.b }
func (v Value) AsInt() int64 { return v.i }
func (v Value) AsFloat() float64 { return v.f }
func (v Value) AsString() *String { return v.s }

func (v Value) IsNumber() bool { return v.kind == KInt || v.kind == KFloat }
func (v Value) IsString() bool { return v.kind == KShortString || v.kind == KLongString }

// Falsey mirrors t_isfalse: only nil and false are falsey.
func (v Value) Falsey() bool {
	return v.kind == KNil || (v.kind == KBool && !v.b)
}

func (v Value) Truthy() bool { return !v.Falsey() }

// Equal implements Tokudae's primitive equality, including the rule that
// an integer and a float compare equal when they denote the same
// mathematical value (spec section 3).
func (v Value) Equal(o Value) bool {
	vIsStr := v.kind == KShortString || v.kind == KLongString
	oIsStr := o.kind == KShortString || o.kind == KLongString
	switch {
	case v.kind == KInt && o.kind == KInt:
		return v.i == o.i
	case v.kind == KFloat && o.kind == KFloat:
		return v.f == o.f
	case v.kind == KInt && o.kind == KFloat:
		return floatEqInt(o.f, v.i)
	case v.kind == KFloat && o.kind == KInt:
		return floatEqInt(v.f, o.i)
	case vIsStr && oIsStr:
		return v.s != nil && o.s != nil && v.s.Data == o.s.Data
	case v.kind != o.kind:
		return false
	case v.kind == KNil:
		return true
	case v.kind == KBool:
		return v.b == o.b
	default:
		return v.Handle == o.Handle
	}
}

func floatEqInt(f float64, i int64) bool {
	if math.IsNaN(f) || math.Trunc(f) != f {
		return false
	}
	return f == float64(i) && int64(f) == i
}

// HashKey returns a value usable as a Go map key that respects int/float
// cross-kind equality: an integral float hashes identically to the
// equal-valued integer.
func (v Value) HashKey() interface{} {
	switch v.kind {
	case KNil:
		return nil
	case KBool:
		return v.b
	case KInt:
		return v.i
	case KFloat:
		if i, ok := FloatToInt(v.f, N2IEQ); ok {
			return i
		}
		return v.f
	case KShortString, KLongString:
		return v.s.Data
	default:
		return v.Handle
	}
}
