package sqlvalue

import "testing"

func TestNullOrdering(t *testing.T) {
	if Null().Compare(Int(1)) >= 0 {
		t.Fatalf("null must sort below non-null values")
	}
	if Int(1).Compare(Null()) <= 0 {
		t.Fatalf("non-null must sort above null")
	}
	if Null().Equal(Null()) {
		t.Fatalf("null must not equal null")
	}
}

func TestNumericPromotion(t *testing.T) {
	if !Int(2).Equal(Float(2.0)) {
		t.Fatalf("int and float with same numeric value must be equal")
	}
	if Int(2).Compare(Float(2.0)) != 0 {
		t.Fatalf("int and float with same numeric value must compare equal")
	}
	if !Text("x").Equal(Text("x")) {
		t.Fatalf("text equality broken")
	}
	if Int(1).Equal(Text("1")) {
		t.Fatalf("cross-tag non-numeric comparison must be unequal")
	}
}

func TestHashConsistentWithEqual(t *testing.T) {
	if Int(5).Hash() != Float(5.0).Hash() {
		t.Fatalf("numerically equal values must hash equally")
	}
}

func TestVectorRoundtrip(t *testing.T) {
	src := []float32{1, 2, 3}
	v := Vector(src)
	src[0] = 99
	got, ok := v.AsVector()
	if !ok || len(got) != 3 {
		t.Fatalf("vector accessor broken")
	}
	if got[0] == 99 {
		t.Fatalf("Vector() must deep-copy its input slice on construction")
	}
}
