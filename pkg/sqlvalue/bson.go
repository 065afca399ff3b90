package sqlvalue

import (
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// wireValue is Value's on-the-wire shape for WAL row records and table-file
// persistence (spec.md §6), following the teacher's bson.D-everywhere
// convention rather than a typed codec per kind.
type wireValue struct {
	Kind uint8     `bson:"k"`
	I    int64     `bson:"i,omitempty"`
	F    float64   `bson:"f,omitempty"`
	S    string    `bson:"s,omitempty"`
	B    bool      `bson:"b,omitempty"`
	Vec  []float32 `bson:"vec,omitempty"`
}

func (v Value) toWire() wireValue {
	return wireValue{Kind: uint8(v.kind), I: v.i, F: v.f, S: v.s, B: v.b, Vec: v.vec}
}

func fromWire(w wireValue) Value {
	return Value{kind: Kind(w.Kind), i: w.I, f: w.F, s: w.S, b: w.B, vec: w.Vec}
}

// EncodeMap renders a row's values as a bson.D suitable for a WAL row record
// or a table-file entry.
func EncodeMap(values map[string]Value) (bson.D, error) {
	doc := make(bson.D, 0, len(values))
	for k, v := range values {
		doc = append(doc, bson.E{Key: k, Value: v.toWire()})
	}
	return doc, nil
}

// DecodeMap reverses EncodeMap. The input is typically a bson.D produced by
// unmarshaling into that generic type (e.g. wal.RowRecord.Values), so each
// element's Value is itself a nested bson.D rather than a wireValue — it is
// re-marshaled and decoded into wireValue here.
func DecodeMap(doc bson.D) (map[string]Value, error) {
	out := make(map[string]Value, len(doc))
	for _, elem := range doc {
		raw, err := bson.Marshal(elem.Value)
		if err != nil {
			return nil, fmt.Errorf("re-marshal column %q: %w", elem.Key, err)
		}
		var w wireValue
		if err := bson.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("decode column %q: %w", elem.Key, err)
		}
		out[elem.Key] = fromWire(w)
	}
	return out, nil
}
