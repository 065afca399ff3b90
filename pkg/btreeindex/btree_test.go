package btreeindex

import (
	"reflect"
	"testing"

	"github.com/heliosdb/heliosdb/pkg/sqlvalue"
)

func TestInsertLookupMultiRowPerValue(t *testing.T) {
	idx := New()
	idx.Insert(sqlvalue.Int(42), 1)
	idx.Insert(sqlvalue.Int(42), 2)
	idx.Insert(sqlvalue.Int(7), 3)

	got := sortRowIDs(idx.Lookup(sqlvalue.Int(42)))
	want := []uint64{1, 2}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Lookup(42) = %v, want %v", got, want)
	}

	got = idx.Lookup(sqlvalue.Int(7))
	if !reflect.DeepEqual(got, []uint64{3}) {
		t.Fatalf("Lookup(7) = %v, want [3]", got)
	}

	if got := idx.Lookup(sqlvalue.Int(99)); len(got) != 0 {
		t.Fatalf("Lookup(99) = %v, want empty", got)
	}
}

func TestRemoveDeletesOnlyTargetedEntry(t *testing.T) {
	idx := New()
	idx.Insert(sqlvalue.Int(1), 10)
	idx.Insert(sqlvalue.Int(1), 20)

	idx.Remove(sqlvalue.Int(1), 10)

	got := idx.Lookup(sqlvalue.Int(1))
	if !reflect.DeepEqual(got, []uint64{20}) {
		t.Fatalf("after remove, Lookup(1) = %v, want [20]", got)
	}
}

func TestRangeScanAscendingOrder(t *testing.T) {
	idx := New()
	for _, v := range []int64{5, 1, 3, 9, 7, 2, 8, 4, 6} {
		idx.Insert(sqlvalue.Int(v), uint64(v))
	}

	var seen []uint64
	idx.RangeScan(
		RangeBound{Value: sqlvalue.Int(3), Inclusive: true},
		RangeBound{Value: sqlvalue.Int(7), Inclusive: true},
		func(rowID uint64) bool {
			seen = append(seen, rowID)
			return true
		},
	)
	want := []uint64{3, 4, 5, 6, 7}
	if !reflect.DeepEqual(seen, want) {
		t.Fatalf("RangeScan[3,7] = %v, want %v", seen, want)
	}
}

func TestRangeScanExclusiveBounds(t *testing.T) {
	idx := New()
	for _, v := range []int64{1, 2, 3, 4, 5} {
		idx.Insert(sqlvalue.Int(v), uint64(v))
	}

	var seen []uint64
	idx.RangeScan(
		RangeBound{Value: sqlvalue.Int(1), Inclusive: false},
		RangeBound{Value: sqlvalue.Int(5), Inclusive: false},
		func(rowID uint64) bool {
			seen = append(seen, rowID)
			return true
		},
	)
	want := []uint64{2, 3, 4}
	if !reflect.DeepEqual(seen, want) {
		t.Fatalf("RangeScan(1,5) = %v, want %v", seen, want)
	}
}

func TestRangeScanUnboundedLow(t *testing.T) {
	idx := New()
	for _, v := range []int64{3, 1, 2} {
		idx.Insert(sqlvalue.Int(v), uint64(v))
	}
	var seen []uint64
	idx.RangeScan(
		RangeBound{Unbounded: true},
		RangeBound{Value: sqlvalue.Int(2), Inclusive: true},
		func(rowID uint64) bool {
			seen = append(seen, rowID)
			return true
		},
	)
	want := []uint64{1, 2}
	if !reflect.DeepEqual(seen, want) {
		t.Fatalf("RangeScan(-inf,2] = %v, want %v", seen, want)
	}
}

func TestAllWalksEveryEntryInOrderAcrossSplits(t *testing.T) {
	idx := New()
	const n = 500
	for i := int64(n - 1); i >= 0; i-- {
		idx.Insert(sqlvalue.Int(i), uint64(i))
	}

	var values []int64
	idx.All(func(v sqlvalue.Value, rowID uint64) bool {
		iv, ok := v.AsInt()
		if !ok {
			t.Fatalf("expected int value, got %v", v)
		}
		if uint64(iv) != rowID {
			t.Fatalf("value/rowID mismatch: %d vs %d", iv, rowID)
		}
		values = append(values, iv)
		return true
	})

	if len(values) != n {
		t.Fatalf("All() visited %d entries, want %d", len(values), n)
	}
	for i := 1; i < len(values); i++ {
		if values[i-1] >= values[i] {
			t.Fatalf("All() not in ascending order at %d: %d >= %d", i, values[i-1], values[i])
		}
	}
}

func TestVisitFalseStopsScanEarly(t *testing.T) {
	idx := New()
	for _, v := range []int64{1, 2, 3, 4, 5} {
		idx.Insert(sqlvalue.Int(v), uint64(v))
	}
	count := 0
	idx.All(func(v sqlvalue.Value, rowID uint64) bool {
		count++
		return count < 2
	})
	if count != 2 {
		t.Fatalf("expected scan to stop after 2 visits, stopped after %d", count)
	}
}
