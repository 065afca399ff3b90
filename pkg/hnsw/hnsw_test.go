package hnsw

import (
	"math/rand"
	"testing"

	"github.com/heliosdb/heliosdb/pkg/dberrors"
)

func randVec(r *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = r.Float32()*2 - 1
	}
	return v
}

func TestInsertDuplicateExternalIdRejected(t *testing.T) {
	ix := New(DefaultParams(4))
	if err := ix.Insert(1, []float32{1, 0, 0, 0}); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := ix.Insert(1, []float32{0, 1, 0, 0})
	if err == nil {
		t.Fatal("expected DuplicateExternalId error")
	}
	if _, ok := err.(*dberrors.DuplicateExternalId); !ok {
		t.Fatalf("expected *dberrors.DuplicateExternalId, got %T", err)
	}
}

func TestSearchReturnsClosestByCosine(t *testing.T) {
	ix := New(DefaultParams(3))
	must(t, ix.Insert(1, []float32{1, 0, 0}))
	must(t, ix.Insert(2, []float32{0, 1, 0}))
	must(t, ix.Insert(3, []float32{0, 0, 1}))
	must(t, ix.Insert(4, []float32{0.99, 0.01, 0}))

	results := ix.Search([]float32{1, 0, 0}, 2)
	if len(results) < 1 {
		t.Fatalf("expected at least one result, got %d", len(results))
	}
	if results[0].External != 1 {
		t.Fatalf("expected external id 1 (exact match) first, got %d", results[0].External)
	}
}

func TestSearchRecallOnRandomData(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	ix := New(DefaultParams(16))

	const n = 200
	vectors := make(map[uint64][]float32, n)
	for i := uint64(1); i <= n; i++ {
		v := randVec(r, 16)
		vectors[i] = v
		must(t, ix.Insert(i, v))
	}

	query := vectors[50]
	results := ix.Search(query, 5)
	if len(results) == 0 {
		t.Fatal("expected non-empty search results")
	}
	found := false
	for _, res := range results {
		if res.External == 50 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected exact match (id 50) to appear in its own nearest neighbors, got %+v", results)
	}
}

func TestRemoveUnlinksNodeFromGraph(t *testing.T) {
	ix := New(DefaultParams(3))
	must(t, ix.Insert(1, []float32{1, 0, 0}))
	must(t, ix.Insert(2, []float32{0.9, 0.1, 0}))
	must(t, ix.Insert(3, []float32{0, 1, 0}))

	ix.Remove(2)
	if ix.Len() != 2 {
		t.Fatalf("expected 2 nodes after remove, got %d", ix.Len())
	}
	for _, res := range ix.Search([]float32{1, 0, 0}, 3) {
		if res.External == 2 {
			t.Fatal("removed node still appears in search results")
		}
	}

	// Re-inserting the same external id after removal must succeed.
	if err := ix.Insert(2, []float32{0, 0, 1}); err != nil {
		t.Fatalf("re-insert after remove: %v", err)
	}
}

func TestInsertWithMetadataAndTypeIndex(t *testing.T) {
	ix := New(DefaultParams(2))
	must(t, ix.InsertWithMetadata(1, []float32{1, 0}, Metadata{NodeType: "document", ContentRef: "doc-1"}))
	must(t, ix.InsertWithMetadata(2, []float32{0, 1}, Metadata{NodeType: "chunk", ContentRef: "chunk-1"}))
	must(t, ix.InsertWithMetadata(3, []float32{0.9, 0.1}, Metadata{NodeType: "document", ContentRef: "doc-2"}))

	docs := ix.ByType("document")
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d: %v", len(docs), docs)
	}

	meta, ok := ix.Metadata(2)
	if !ok || meta.NodeType != "chunk" {
		t.Fatalf("expected chunk metadata for id 2, got %+v ok=%v", meta, ok)
	}
}

func TestUpdateMetadataMovesTypeIndexBucket(t *testing.T) {
	ix := New(DefaultParams(2))
	must(t, ix.InsertWithMetadata(1, []float32{1, 0}, Metadata{NodeType: "draft"}))

	if err := ix.UpdateMetadata(1, Metadata{NodeType: "published"}); err != nil {
		t.Fatalf("update metadata: %v", err)
	}
	if ids := ix.ByType("draft"); len(ids) != 0 {
		t.Fatalf("expected draft bucket empty, got %v", ids)
	}
	if ids := ix.ByType("published"); len(ids) != 1 {
		t.Fatalf("expected published bucket to contain id 1, got %v", ids)
	}
}

func TestSearchByTypeOversamples(t *testing.T) {
	ix := New(DefaultParams(2))
	for i := uint64(1); i <= 20; i++ {
		nt := "chunk"
		if i%5 == 0 {
			nt = "document"
		}
		must(t, ix.InsertWithMetadata(i, []float32{float32(i), 1}, Metadata{NodeType: nt}))
	}

	results := ix.SearchByType([]float32{10, 1}, 3, "document")
	if len(results) == 0 {
		t.Fatal("expected some document matches")
	}
	for _, r := range results {
		meta, _ := ix.Metadata(r.External)
		if meta.NodeType != "document" {
			t.Fatalf("expected only document-typed results, got %q for id %d", meta.NodeType, r.External)
		}
	}
}

func TestCosineDistanceZeroVectorIsMaximallyDissimilar(t *testing.T) {
	d := cosineDistance([]float32{0, 0, 0}, []float32{0, 0, 0})
	if d != 2.0 {
		t.Fatalf("expected zero-vector distance sentinel 2.0, got %v", d)
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
