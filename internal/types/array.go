package types

import "strings"

// Array is a one-dimensional array with an explicit lower bound, the shape
// PL/SQL index-by tables and PostgreSQL arrays share.
type Array struct {
	Elem  OID
	Lower int
	Elems []Value
}

// NewArray builds a 1-based array of elem-typed values.
func NewArray(elem OID, elems ...Value) *Array {
	return &Array{Elem: elem, Lower: 1, Elems: elems}
}

// Len returns the number of elements.
func (a *Array) Len() int {
	if a == nil {
		return 0
	}
	return len(a.Elems)
}

// Upper returns the last valid index. It is Lower-1 for an empty array.
func (a *Array) Upper() int { return a.Lower + a.Len() - 1 }

// At returns the element stored under index i.
func (a *Array) At(i int) (Value, bool) {
	if a == nil || i < a.Lower || i > a.Upper() {
		return Value{}, false
	}
	return a.Elems[i-a.Lower], true
}

// Slice copies the elements lo..hi (inclusive, in index space) into a new
// 1-based array. The caller validates the bounds.
func (a *Array) Slice(lo, hi int) *Array {
	out := make([]Value, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		out = append(out, a.Elems[i-a.Lower].Clone())
	}
	return &Array{Elem: a.Elem, Lower: 1, Elems: out}
}

func (a *Array) String() string {
	if a == nil {
		return "NULL"
	}
	var sb strings.Builder
	sb.WriteByte('{')
	for i, e := range a.Elems {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(e.String())
	}
	sb.WriteByte('}')
	return sb.String()
}
