// Package graph implements the GraphRAG layer from spec.md §4.5: typed
// edges between HNSW node external ids, a type/category index, and BFS
// traversal. It is grounded on other_examples/…vthunder-bud2__internal-graph-db.go's
// (from, to, relation_type, weight) edge tuple and type index, adapted from
// that file's SQLite-backed store onto HeliosDB's in-memory + HNSW-file
// persistence model (see pkg/hnsw for why: graph nodes here are never
// independent of their vectors, so the edge set persists alongside the
// vector index rather than in its own store).
package graph

import "hash/fnv"

// Edge is a directed, typed, weighted relation between two HNSW external
// ids (spec.md §3).
type Edge struct {
	Src      uint64
	Dst      uint64
	EdgeType string
	Weight   float32
}

type edgeKey struct {
	src, dst uint64
	typeHash uint64
}

func hashType(edgeType string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(edgeType))
	return h.Sum64()
}

// Store owns the directed edge set over one HNSW index's node space.
// Concurrency is the caller's responsibility — HeliosDB always reaches
// Store through hnsw.Index's reader-writer discipline (spec.md §4.5).
type Store struct {
	edges    map[edgeKey]Edge
	outgoing map[uint64][]edgeKey
	incoming map[uint64][]edgeKey
}

func New() *Store {
	return &Store{
		edges:    make(map[edgeKey]Edge),
		outgoing: make(map[uint64][]edgeKey),
		incoming: make(map[uint64][]edgeKey),
	}
}

// AddEdge inserts or overwrites the edge uniquely keyed by
// (src, dst, edge_type_hash) — distinct edge types between the same pair
// coexist (spec.md §3).
func (s *Store) AddEdge(src, dst uint64, edgeType string, weight float32) {
	key := edgeKey{src, dst, hashType(edgeType)}
	if _, exists := s.edges[key]; !exists {
		s.outgoing[src] = append(s.outgoing[src], key)
		s.incoming[dst] = append(s.incoming[dst], key)
	}
	s.edges[key] = Edge{Src: src, Dst: dst, EdgeType: edgeType, Weight: weight}
}

// GetEdges returns every outgoing edge from node, optionally filtered to
// one edge type.
func (s *Store) GetEdges(node uint64, edgeType string) []Edge {
	return s.filterByType(s.outgoing[node], edgeType)
}

// GetOutgoing is an alias for GetEdges with no type filter, matching
// spec.md §4.5's named operation.
func (s *Store) GetOutgoing(node uint64) []Edge {
	return s.filterByType(s.outgoing[node], "")
}

// GetIncoming returns every edge whose destination is node.
func (s *Store) GetIncoming(node uint64) []Edge {
	return s.filterByType(s.incoming[node], "")
}

func (s *Store) filterByType(keys []edgeKey, edgeType string) []Edge {
	out := make([]Edge, 0, len(keys))
	for _, k := range keys {
		e, ok := s.edges[k]
		if !ok {
			continue
		}
		if edgeType != "" && e.EdgeType != edgeType {
			continue
		}
		out = append(out, e)
	}
	return out
}

// All returns every edge in the store, in no particular order — used by
// persistence to serialize the store alongside its paired HNSW index.
func (s *Store) All() []Edge {
	out := make([]Edge, 0, len(s.edges))
	for _, e := range s.edges {
		out = append(out, e)
	}
	return out
}

// RemoveNode drops every edge touching node (both endpoints), called when
// the node itself is removed from the HNSW index (spec.md §4.5).
func (s *Store) RemoveNode(node uint64) {
	for _, k := range s.outgoing[node] {
		delete(s.edges, k)
		s.incoming[k.dst] = removeKey(s.incoming[k.dst], k)
	}
	for _, k := range s.incoming[node] {
		delete(s.edges, k)
		s.outgoing[k.src] = removeKey(s.outgoing[k.src], k)
	}
	delete(s.outgoing, node)
	delete(s.incoming, node)
}

func removeKey(keys []edgeKey, target edgeKey) []edgeKey {
	out := keys[:0]
	for _, k := range keys {
		if k != target {
			out = append(out, k)
		}
	}
	return out
}

// Traverse performs a breadth-first walk from start up to maxDepth hops,
// optionally restricted to one edge type, returning visited external ids
// in discovery order and excluding start itself (spec.md §4.5).
func (s *Store) Traverse(start uint64, maxDepth int, edgeType string) []uint64 {
	visited := map[uint64]bool{start: true}
	var order []uint64

	frontier := []uint64{start}
	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []uint64
		for _, node := range frontier {
			for _, e := range s.GetEdges(node, edgeType) {
				if visited[e.Dst] {
					continue
				}
				visited[e.Dst] = true
				order = append(order, e.Dst)
				next = append(next, e.Dst)
			}
		}
		frontier = next
	}
	return order
}
