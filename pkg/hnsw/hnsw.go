// Package hnsw implements the layered proximity graph vector index from
// spec.md §4.5: cosine distance, per-node layer drawn from a geometric
// distribution, greedy-descent search, and a diversity-heuristic neighbor
// selection on insert. It is grounded on the incremental-index shape of
// other_examples/mjm918-tur's HNSW file (insert/remove/update wrapping a
// change log) but rebuilt against HeliosDB's own node/metadata/edge model
// instead of that file's on-disk layout.
package hnsw

import (
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/heliosdb/heliosdb/pkg/dberrors"
)

// Params configures graph construction.
type Params struct {
	Dimension      int
	M              int // max neighbors per layer (2M on layer 0)
	EfConstruction int
}

// DefaultParams mirrors the teacher pack's typical HNSW defaults: M=16,
// efConstruction=200, scaled to the column's declared vector width.
func DefaultParams(dimension int) Params {
	return Params{Dimension: dimension, M: 16, EfConstruction: 200}
}

// Attribute is a typed scalar attached to node metadata.
type Attribute struct {
	Kind  AttrKind
	Str   string
	Int   int64
	Float float64
	Bool  bool
}

type AttrKind uint8

const (
	AttrString AttrKind = iota
	AttrInt
	AttrFloat
	AttrBool
)

// Metadata is a node's typed side-payload (spec.md §3).
type Metadata struct {
	NodeType   string
	ContentRef string
	Timestamp  int64
	Attributes map[string]Attribute
}

func (m Metadata) clone() Metadata {
	attrs := make(map[string]Attribute, len(m.Attributes))
	for k, v := range m.Attributes {
		attrs[k] = v
	}
	return Metadata{NodeType: m.NodeType, ContentRef: m.ContentRef, Timestamp: m.Timestamp, Attributes: attrs}
}

type node struct {
	internal  uint64
	external  uint64
	point     []float32
	layer     int
	neighbors [][]uint64 // neighbors[l] = internal ids of neighbors at layer l
	metadata  *Metadata  // nil if insertWithMetadata was never called
	removed   bool
}

// Index is a single (dimension, column) HNSW vector index.
type Index struct {
	mu     sync.RWMutex
	params Params

	nodes        map[uint64]*node // internal id -> node
	extToInt     map[uint64]uint64
	nextInternal uint64

	entry    uint64
	hasEntry bool

	byType map[string]map[uint64]bool // node_type -> set of external ids

	rnd *rand.Rand
}

func New(p Params) *Index {
	return &Index{
		params:   p,
		nodes:    make(map[uint64]*node),
		extToInt: make(map[uint64]uint64),
		byType:   make(map[string]map[uint64]bool),
		rnd:      rand.New(rand.NewSource(1)), // fixed seed: deterministic layer assignment given insert order
	}
}

// randomLevel draws a layer from the geometric distribution with parameter
// mL = 1/ln(M): level = floor(-ln(U) * mL), per spec.md §4.5.
func (ix *Index) randomLevel() int {
	m := ix.params.M
	if m < 2 {
		m = 2
	}
	mL := 1.0 / math.Log(float64(m))
	u := ix.rnd.Float64()
	if u <= 0 {
		u = 1e-12
	}
	return int(-math.Log(u) * mL)
}

// cosineDistance is 1 minus normalized dot product. Zero vectors are
// treated as maximally dissimilar to everything, including each other
// (spec.md §4.5).
func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 2.0 // maximal cosine distance is 2; reserved as the "undefined" sentinel
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if sim > 1 {
		sim = 1
	}
	if sim < -1 {
		sim = -1
	}
	return 1 - sim
}

// CosineDistance exports cosineDistance for callers outside the package that
// need the same distance metric against a vector that isn't indexed — e.g.
// the executor's SIMILARITY TO evaluator, scoring a row's stored vector
// against an embedded query text without going through Search.
func CosineDistance(a, b []float32) float64 { return cosineDistance(a, b) }

// Dimension reports the vector width this index was constructed for.
func (ix *Index) Dimension() int { return ix.params.Dimension }

type candidate struct {
	internal uint64
	dist     float64
}

// Insert adds external with vector point. Re-inserting an existing
// external id fails with DuplicateExternalId (spec.md §4.5).
func (ix *Index) Insert(external uint64, point []float32) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.insertLocked(external, point, nil)
}

// InsertWithMetadata is Insert plus type-index maintenance.
func (ix *Index) InsertWithMetadata(external uint64, point []float32, meta Metadata) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	m := meta.clone()
	if err := ix.insertLocked(external, point, &m); err != nil {
		return err
	}
	ix.addToTypeIndex(external, m.NodeType)
	return nil
}

func (ix *Index) insertLocked(external uint64, point []float32, meta *Metadata) error {
	if _, exists := ix.extToInt[external]; exists {
		return &dberrors.DuplicateExternalId{ExternalID: external}
	}

	vec := make([]float32, len(point))
	copy(vec, point)

	internal := ix.nextInternal
	ix.nextInternal++

	level := ix.randomLevel()
	n := &node{
		internal:  internal,
		external:  external,
		point:     vec,
		layer:     level,
		neighbors: make([][]uint64, level+1),
		metadata:  meta,
	}
	ix.nodes[internal] = n
	ix.extToInt[external] = internal

	if !ix.hasEntry {
		ix.entry = internal
		ix.hasEntry = true
		return nil
	}

	entry := ix.nodes[ix.entry]
	cur := entry.internal
	curDist := cosineDistance(vec, entry.point)

	// Descend greedily (beam 1) from the top layer down to level+1.
	for l := entry.layer; l > level; l-- {
		cur, curDist = ix.greedyDescend(cur, curDist, vec, l)
	}

	// From level down to 0, expand with beam ef_construction and connect.
	for l := min(level, entry.layer); l >= 0; l-- {
		found := ix.searchLayer(vec, cur, ix.params.EfConstruction, l)
		if len(found) == 0 {
			found = []candidate{{internal: cur, dist: curDist}}
		}
		cap := ix.params.M
		if l == 0 {
			cap *= 2
		}
		selected := ix.selectNeighborsHeuristic(vec, found, cap)

		n.neighbors[l] = make([]uint64, 0, len(selected))
		for _, c := range selected {
			n.neighbors[l] = append(n.neighbors[l], c.internal)
			ix.connect(c.internal, internal, l, cap)
		}
		if len(found) > 0 {
			cur = found[0].internal
			curDist = found[0].dist
		}
	}

	if level > entry.layer {
		ix.entry = internal
	}
	return nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// greedyDescend walks layer l from cur toward the single closest neighbor
// to query, returning once no neighbor improves on cur.
func (ix *Index) greedyDescend(cur uint64, curDist float64, query []float32, l int) (uint64, float64) {
	improved := true
	for improved {
		improved = false
		for _, nb := range ix.neighborsAt(cur, l) {
			d := cosineDistance(query, ix.nodes[nb].point)
			if d < curDist {
				cur, curDist = nb, d
				improved = true
			}
		}
	}
	return cur, curDist
}

func (ix *Index) neighborsAt(internal uint64, l int) []uint64 {
	n := ix.nodes[internal]
	if n == nil || l >= len(n.neighbors) {
		return nil
	}
	return n.neighbors[l]
}

// searchLayer performs a best-first beam search of width ef on layer l
// starting from entry, returning candidates sorted ascending by distance.
func (ix *Index) searchLayer(query []float32, entry uint64, ef int, l int) []candidate {
	visited := map[uint64]bool{entry: true}
	entryDist := cosineDistance(query, ix.nodes[entry].point)

	candidates := []candidate{{entry, entryDist}}
	result := []candidate{{entry, entryDist}}

	for len(candidates) > 0 {
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })
		c := candidates[0]
		candidates = candidates[1:]

		sort.Slice(result, func(i, j int) bool { return result[i].dist < result[j].dist })
		if len(result) >= ef && c.dist > result[len(result)-1].dist {
			break
		}

		for _, nb := range ix.neighborsAt(c.internal, l) {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			if ix.nodes[nb].removed {
				continue
			}
			d := cosineDistance(query, ix.nodes[nb].point)
			sort.Slice(result, func(i, j int) bool { return result[i].dist < result[j].dist })
			if len(result) < ef || d < result[len(result)-1].dist {
				candidates = append(candidates, candidate{nb, d})
				result = append(result, candidate{nb, d})
			}
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].dist < result[j].dist })
	if len(result) > ef {
		result = result[:ef]
	}
	return result
}

// selectNeighborsHeuristic prefers diverse directions: a candidate is kept
// only if no already-kept neighbor is closer to it than it is to the query
// (spec.md §4.5).
func (ix *Index) selectNeighborsHeuristic(query []float32, found []candidate, cap int) []candidate {
	sort.Slice(found, func(i, j int) bool { return found[i].dist < found[j].dist })

	var selected []candidate
	for _, c := range found {
		if len(selected) >= cap {
			break
		}
		diverse := true
		for _, s := range selected {
			if cosineDistance(ix.nodes[c.internal].point, ix.nodes[s.internal].point) < c.dist {
				diverse = false
				break
			}
		}
		if diverse {
			selected = append(selected, c)
		}
	}
	return selected
}

// connect adds a bidirectional edge (from, to) at layer l, pruning from's
// list back to cap with the same diversity heuristic if it overflows.
func (ix *Index) connect(from, to uint64, l int, cap int) {
	n := ix.nodes[from]
	if l >= len(n.neighbors) {
		grown := make([][]uint64, l+1)
		copy(grown, n.neighbors)
		n.neighbors = grown
	}
	for _, existing := range n.neighbors[l] {
		if existing == to {
			return
		}
	}
	n.neighbors[l] = append(n.neighbors[l], to)

	if len(n.neighbors[l]) <= cap {
		return
	}
	cands := make([]candidate, 0, len(n.neighbors[l]))
	for _, nb := range n.neighbors[l] {
		cands = append(cands, candidate{nb, cosineDistance(n.point, ix.nodes[nb].point)})
	}
	selected := ix.selectNeighborsHeuristic(n.point, cands, cap)
	pruned := make([]uint64, 0, len(selected))
	for _, c := range selected {
		pruned = append(pruned, c.internal)
	}
	n.neighbors[l] = pruned
}

// SearchResult is one ranked hit.
type SearchResult struct {
	External uint64
	Distance float64
}

// Search returns the k closest nodes to query (spec.md §4.5: beam
// ef_search = max(ef, k) on layer 0).
func (ix *Index) Search(query []float32, k int) []SearchResult {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.searchLocked(query, k, ix.params.EfConstruction)
}

func (ix *Index) searchLocked(query []float32, k int, ef int) []SearchResult {
	if !ix.hasEntry {
		return nil
	}
	entry := ix.nodes[ix.entry]
	cur, curDist := entry.internal, cosineDistance(query, entry.point)

	for l := entry.layer; l > 0; l-- {
		cur, curDist = ix.greedyDescend(cur, curDist, query, l)
	}
	_ = curDist

	beam := ef
	if k > beam {
		beam = k
	}
	found := ix.searchLayer(query, cur, beam, 0)

	out := make([]SearchResult, 0, k)
	for _, c := range found {
		if ix.nodes[c.internal].removed {
			continue
		}
		out = append(out, SearchResult{External: ix.nodes[c.internal].external, Distance: c.dist})
		if len(out) == k {
			break
		}
	}
	return out
}

// Remove unlinks external from every neighbor list and promotes a new
// entry point if necessary (spec.md §4.5).
func (ix *Index) Remove(external uint64) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	internal, ok := ix.extToInt[external]
	if !ok {
		return
	}
	n := ix.nodes[internal]
	n.removed = true

	for _, other := range ix.nodes {
		if other.internal == internal {
			continue
		}
		for l := range other.neighbors {
			other.neighbors[l] = removeID(other.neighbors[l], internal)
		}
	}

	if n.metadata != nil {
		ix.removeFromTypeIndex(external, n.metadata.NodeType)
	}

	delete(ix.extToInt, external)
	delete(ix.nodes, internal)

	if ix.hasEntry && ix.entry == internal {
		ix.promoteEntryPoint()
	}
}

func (ix *Index) promoteEntryPoint() {
	var best *node
	for _, n := range ix.nodes {
		if best == nil || n.layer > best.layer {
			best = n
		}
	}
	if best == nil {
		ix.hasEntry = false
		return
	}
	ix.entry = best.internal
}

func removeID(ids []uint64, target uint64) []uint64 {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

// UpdateMetadata replaces external's metadata, moving it between type index
// buckets if node_type changed.
func (ix *Index) UpdateMetadata(external uint64, meta Metadata) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	internal, ok := ix.extToInt[external]
	if !ok {
		return &dberrors.NotFound{RowID: external}
	}
	n := ix.nodes[internal]
	oldType := ""
	if n.metadata != nil {
		oldType = n.metadata.NodeType
	}
	m := meta.clone()
	n.metadata = &m

	if oldType != m.NodeType {
		ix.removeFromTypeIndex(external, oldType)
		ix.addToTypeIndex(external, m.NodeType)
	}
	return nil
}

func (ix *Index) addToTypeIndex(external uint64, nodeType string) {
	if nodeType == "" {
		return
	}
	bucket, ok := ix.byType[nodeType]
	if !ok {
		bucket = make(map[uint64]bool)
		ix.byType[nodeType] = bucket
	}
	bucket[external] = true
}

func (ix *Index) removeFromTypeIndex(external uint64, nodeType string) {
	if bucket, ok := ix.byType[nodeType]; ok {
		delete(bucket, external)
	}
}

// ByType returns every external id currently filed under nodeType.
func (ix *Index) ByType(nodeType string) []uint64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	bucket := ix.byType[nodeType]
	out := make([]uint64, 0, len(bucket))
	for id := range bucket {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Metadata returns a copy of external's metadata, if any.
func (ix *Index) Metadata(external uint64) (Metadata, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	internal, ok := ix.extToInt[external]
	if !ok || ix.nodes[internal].metadata == nil {
		return Metadata{}, false
	}
	return ix.nodes[internal].metadata.clone(), true
}

// SearchByType oversamples the vector search until k matches of nodeType
// are found or the index is exhausted (spec.md §4.5).
func (ix *Index) SearchByType(query []float32, k int, nodeType string) []SearchResult {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	total := len(ix.nodes)
	ef := k
	for {
		found := ix.searchLocked(query, ef, ef)
		out := make([]SearchResult, 0, k)
		for _, r := range found {
			internal := ix.extToInt[r.External]
			if n := ix.nodes[internal]; n != nil && n.metadata != nil && n.metadata.NodeType == nodeType {
				out = append(out, r)
			}
			if len(out) == k {
				return out
			}
		}
		if ef >= total {
			return out
		}
		ef *= 2
		if ef > total {
			ef = total
		}
	}
}

// Len reports the number of live nodes, used by callers sizing oversampling.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.nodes)
}
