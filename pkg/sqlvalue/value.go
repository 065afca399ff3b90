// Package sqlvalue implements the scalar tagged union shared by the row
// store, secondary indexes, and the query executor (spec.md §3).
//
// It generalizes the teacher's per-tag Comparable key types
// (IntKey/VarcharKey/FloatKey/BoolKey/DateKey in pkg/types) into a single sum
// type so that equality, ordering, and hashing rules for cross-tag
// comparison live in one place instead of being duplicated per key type.
package sqlvalue

import (
	"fmt"
	"hash/fnv"
	"math"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindText
	KindBool
	KindVector
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "NULL"
	case KindInt:
		return "INT"
	case KindFloat:
		return "FLOAT"
	case KindText:
		return "TEXT"
	case KindBool:
		return "BOOL"
	case KindVector:
		return "VECTOR"
	default:
		return "UNKNOWN"
	}
}

// Value is an immutable scalar: int64, float64, string, bool, a fixed-width
// float32 vector, or null. Zero value is Null.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
	b    bool
	vec  []float32
}

func Null() Value                { return Value{kind: KindNull} }
func Int(v int64) Value          { return Value{kind: KindInt, i: v} }
func Float(v float64) Value      { return Value{kind: KindFloat, f: v} }
func Text(v string) Value        { return Value{kind: KindText, s: v} }
func Bool(v bool) Value          { return Value{kind: KindBool, b: v} }
func Vector(v []float32) Value {
	cp := make([]float32, len(v))
	copy(cp, v)
	return Value{kind: KindVector, vec: cp}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsInt() (int64, bool)       { return v.i, v.kind == KindInt }
func (v Value) AsFloat() (float64, bool)   { return v.f, v.kind == KindFloat }
func (v Value) AsText() (string, bool)     { return v.s, v.kind == KindText }
func (v Value) AsBool() (bool, bool)       { return v.b, v.kind == KindBool }
func (v Value) AsVector() ([]float32, bool) {
	if v.kind != KindVector {
		return nil, false
	}
	return v.vec, true
}

// numeric reports whether v is int or float, returning its float64 view.
func (v Value) numeric() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	default:
		return 0, false
	}
}

// Equal implements tagged equality: null is never equal to anything
// (including another null), numeric tags promote across int/float, and
// every other cross-tag comparison is unequal.
func (v Value) Equal(other Value) bool {
	if v.kind == KindNull || other.kind == KindNull {
		return false
	}
	if vn, ok := v.numeric(); ok {
		if on, ok2 := other.numeric(); ok2 {
			return vn == on
		}
		return false
	}
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindText:
		return v.s == other.s
	case KindBool:
		return v.b == other.b
	case KindVector:
		if len(v.vec) != len(other.vec) {
			return false
		}
		for i := range v.vec {
			if v.vec[i] != other.vec[i] {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Compare gives a total order across all tags: null sorts below every
// non-null value (spec.md §3); cross-tag non-numeric comparisons fall back
// to ordering by Kind so a sort is still total and deterministic.
func (v Value) Compare(other Value) int {
	if v.kind == KindNull && other.kind == KindNull {
		return 0
	}
	if v.kind == KindNull {
		return -1
	}
	if other.kind == KindNull {
		return 1
	}
	if vn, ok := v.numeric(); ok {
		if on, ok2 := other.numeric(); ok2 {
			switch {
			case vn < on:
				return -1
			case vn > on:
				return 1
			default:
				return 0
			}
		}
	}
	if v.kind != other.kind {
		if v.kind < other.kind {
			return -1
		}
		return 1
	}
	switch v.kind {
	case KindText:
		switch {
		case v.s < other.s:
			return -1
		case v.s > other.s:
			return 1
		default:
			return 0
		}
	case KindBool:
		if v.b == other.b {
			return 0
		}
		if !v.b {
			return -1
		}
		return 1
	case KindVector:
		// Vectors have no natural total order beyond lexicographic fallback;
		// used only to give ORDER BY a deterministic tiebreak, never for
		// similarity ranking (that is cosine distance, see pkg/hnsw).
		for i := 0; i < len(v.vec) && i < len(other.vec); i++ {
			if v.vec[i] != other.vec[i] {
				if v.vec[i] < other.vec[i] {
					return -1
				}
				return 1
			}
		}
		return len(v.vec) - len(other.vec)
	default:
		return 0
	}
}

// Hash returns a content hash consistent with Equal: numerically equal
// int/float values hash identically.
func (v Value) Hash() uint64 {
	h := fnv.New64a()
	switch {
	case v.kind == KindNull:
		h.Write([]byte{0})
	case v.kind == KindInt || v.kind == KindFloat:
		n, _ := v.numeric()
		var buf [8]byte
		bits := math.Float64bits(n)
		for i := 0; i < 8; i++ {
			buf[i] = byte(bits >> (8 * i))
		}
		h.Write([]byte{1})
		h.Write(buf[:])
	case v.kind == KindText:
		h.Write([]byte{2})
		h.Write([]byte(v.s))
	case v.kind == KindBool:
		h.Write([]byte{3})
		if v.b {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	case v.kind == KindVector:
		h.Write([]byte{4})
		for _, f := range v.vec {
			var buf [4]byte
			bits := math.Float32bits(f)
			for i := 0; i < 4; i++ {
				buf[i] = byte(bits >> (8 * i))
			}
			h.Write(buf[:])
		}
	}
	return h.Sum64()
}

// String renders a human-readable form, used for error messages and debug
// printing of query results — never for persistence.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindText:
		return v.s
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindVector:
		return fmt.Sprintf("%v", v.vec)
	default:
		return "?"
	}
}
