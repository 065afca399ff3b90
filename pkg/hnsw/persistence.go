package hnsw

import (
	"encoding/binary"
	"io"
	"math/rand"

	"github.com/heliosdb/heliosdb/pkg/dberrors"
	"github.com/heliosdb/heliosdb/pkg/graph"
)

// File format (spec.md §6): header (magic, version, dimension, M,
// ef_construction, entry point), then nodes (internal id, external id, layer,
// point bytes, per-layer neighbor lists), then a metadata section keyed by
// internal id, then
// the paired GraphRAG edge set. A v1 file predates the metadata/edges
// sections; Load fills both in as empty for one.
const (
	fileMagic      uint32 = 0x484e5357 // "HNSW"
	fileVersion1   uint32 = 1
	fileVersion2   uint32 = 2
	currentVersion        = fileVersion2
)

// Save writes ix and its paired edge store es to w. Tombstoned (removed)
// nodes are never written: Remove already unlinks them from every neighbor
// list, so they carry nothing worth persisting.
func Save(ix *Index, es *graph.Store, w io.Writer) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if err := writeHeader(w, ix); err != nil {
		return err
	}
	if err := writeNodes(w, ix); err != nil {
		return err
	}
	if err := writeMetadata(w, ix); err != nil {
		return err
	}
	if err := writeEdges(w, es); err != nil {
		return err
	}
	return nil
}

// Load rebuilds an Index and its paired Store from r, reconstructing the
// exact neighbor lists on disk rather than replaying inserts through the
// construction heuristic — so a search against the loaded index returns the
// same top-k as the index that was saved (spec.md's serialize/deserialize
// acceptance test).
func Load(r io.Reader) (*Index, *graph.Store, error) {
	params, hasEntry, entry, version, err := readHeader(r)
	if err != nil {
		return nil, nil, err
	}

	ix := &Index{
		params:   params,
		nodes:    make(map[uint64]*node),
		extToInt: make(map[uint64]uint64),
		byType:   make(map[string]map[uint64]bool),
		hasEntry: hasEntry,
		entry:    entry,
		rnd:      rand.New(rand.NewSource(1)),
	}
	if err := readNodes(r, ix, int(params.Dimension)); err != nil {
		return nil, nil, err
	}

	es := graph.New()
	if version == fileVersion1 {
		return ix, es, nil
	}
	if err := readMetadata(r, ix); err != nil {
		return nil, nil, err
	}
	if err := readEdges(r, es); err != nil {
		return nil, nil, err
	}
	return ix, es, nil
}

func writeHeader(w io.Writer, ix *Index) error {
	fields := []any{
		fileMagic, currentVersion,
		uint32(ix.params.Dimension), uint32(ix.params.M), uint32(ix.params.EfConstruction),
		ix.hasEntry, ix.entry,
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return &dberrors.IOError{Op: "write hnsw header", Err: err}
		}
	}
	return nil
}

func readHeader(r io.Reader) (Params, bool, uint64, uint32, error) {
	var magic, version, dimension, m, ef uint32
	var hasEntry bool
	var entry uint64

	for _, f := range []any{&magic, &version} {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return Params{}, false, 0, 0, &dberrors.IOError{Op: "read hnsw header", Err: err}
		}
	}
	if magic != fileMagic {
		return Params{}, false, 0, 0, &dberrors.CorruptionError{Location: "hnsw file", Reason: "magic mismatch"}
	}
	if version != fileVersion1 && version != fileVersion2 {
		return Params{}, false, 0, 0, &dberrors.CorruptionError{Location: "hnsw file", Reason: "unsupported version"}
	}

	for _, f := range []any{&dimension, &m, &ef, &hasEntry, &entry} {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return Params{}, false, 0, 0, &dberrors.IOError{Op: "read hnsw header", Err: err}
		}
	}
	params := Params{Dimension: int(dimension), M: int(m), EfConstruction: int(ef)}
	return params, hasEntry, entry, version, nil
}

func writeNodes(w io.Writer, ix *Index) error {
	live := make([]*node, 0, len(ix.nodes))
	for _, n := range ix.nodes {
		if !n.removed {
			live = append(live, n)
		}
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(live))); err != nil {
		return &dberrors.IOError{Op: "write hnsw node count", Err: err}
	}

	for _, n := range live {
		if err := binary.Write(w, binary.LittleEndian, n.internal); err != nil {
			return &dberrors.IOError{Op: "write hnsw node", Err: err}
		}
		if err := binary.Write(w, binary.LittleEndian, n.external); err != nil {
			return &dberrors.IOError{Op: "write hnsw node", Err: err}
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(n.layer)); err != nil {
			return &dberrors.IOError{Op: "write hnsw node", Err: err}
		}
		if err := binary.Write(w, binary.LittleEndian, n.point); err != nil {
			return &dberrors.IOError{Op: "write hnsw point", Err: err}
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(n.neighbors))); err != nil {
			return &dberrors.IOError{Op: "write hnsw neighbor layers", Err: err}
		}
		for _, layerNeighbors := range n.neighbors {
			if err := binary.Write(w, binary.LittleEndian, uint32(len(layerNeighbors))); err != nil {
				return &dberrors.IOError{Op: "write hnsw neighbor list", Err: err}
			}
			if err := binary.Write(w, binary.LittleEndian, layerNeighbors); err != nil {
				return &dberrors.IOError{Op: "write hnsw neighbor list", Err: err}
			}
		}
	}
	return nil
}

func readNodes(r io.Reader, ix *Index, dimension int) error {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return &dberrors.IOError{Op: "read hnsw node count", Err: err}
	}

	var maxInternal uint64
	for i := uint32(0); i < count; i++ {
		var internal, external uint64
		var layer uint32
		if err := binary.Read(r, binary.LittleEndian, &internal); err != nil {
			return &dberrors.IOError{Op: "read hnsw node", Err: err}
		}
		if err := binary.Read(r, binary.LittleEndian, &external); err != nil {
			return &dberrors.IOError{Op: "read hnsw node", Err: err}
		}
		if err := binary.Read(r, binary.LittleEndian, &layer); err != nil {
			return &dberrors.IOError{Op: "read hnsw node", Err: err}
		}

		point := make([]float32, dimension)
		if err := binary.Read(r, binary.LittleEndian, point); err != nil {
			return &dberrors.IOError{Op: "read hnsw point", Err: err}
		}

		var layerCount uint32
		if err := binary.Read(r, binary.LittleEndian, &layerCount); err != nil {
			return &dberrors.IOError{Op: "read hnsw neighbor layers", Err: err}
		}
		neighbors := make([][]uint64, layerCount)
		for l := range neighbors {
			var n uint32
			if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
				return &dberrors.IOError{Op: "read hnsw neighbor list", Err: err}
			}
			ids := make([]uint64, n)
			if n > 0 {
				if err := binary.Read(r, binary.LittleEndian, ids); err != nil {
					return &dberrors.IOError{Op: "read hnsw neighbor list", Err: err}
				}
			}
			neighbors[l] = ids
		}

		ix.nodes[internal] = &node{
			internal:  internal,
			external:  external,
			point:     point,
			layer:     int(layer),
			neighbors: neighbors,
		}
		ix.extToInt[external] = internal
		if i == 0 || internal > maxInternal {
			maxInternal = internal
		}
	}
	if count > 0 {
		ix.nextInternal = maxInternal + 1
	}
	return nil
}

func writeMetadata(w io.Writer, ix *Index) error {
	withMeta := make([]*node, 0)
	for _, n := range ix.nodes {
		if !n.removed && n.metadata != nil {
			withMeta = append(withMeta, n)
		}
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(withMeta))); err != nil {
		return &dberrors.IOError{Op: "write hnsw metadata count", Err: err}
	}
	for _, n := range withMeta {
		if err := binary.Write(w, binary.LittleEndian, n.internal); err != nil {
			return &dberrors.IOError{Op: "write hnsw metadata", Err: err}
		}
		if err := writeString(w, n.metadata.NodeType); err != nil {
			return err
		}
		if err := writeString(w, n.metadata.ContentRef); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, n.metadata.Timestamp); err != nil {
			return &dberrors.IOError{Op: "write hnsw metadata", Err: err}
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(n.metadata.Attributes))); err != nil {
			return &dberrors.IOError{Op: "write hnsw attribute count", Err: err}
		}
		for k, a := range n.metadata.Attributes {
			if err := writeString(w, k); err != nil {
				return err
			}
			if err := binary.Write(w, binary.LittleEndian, a.Kind); err != nil {
				return &dberrors.IOError{Op: "write hnsw attribute", Err: err}
			}
			switch a.Kind {
			case AttrString:
				if err := writeString(w, a.Str); err != nil {
					return err
				}
			case AttrInt:
				if err := binary.Write(w, binary.LittleEndian, a.Int); err != nil {
					return &dberrors.IOError{Op: "write hnsw attribute", Err: err}
				}
			case AttrFloat:
				if err := binary.Write(w, binary.LittleEndian, a.Float); err != nil {
					return &dberrors.IOError{Op: "write hnsw attribute", Err: err}
				}
			case AttrBool:
				if err := binary.Write(w, binary.LittleEndian, a.Bool); err != nil {
					return &dberrors.IOError{Op: "write hnsw attribute", Err: err}
				}
			}
		}
	}
	return nil
}

func readMetadata(r io.Reader, ix *Index) error {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return &dberrors.IOError{Op: "read hnsw metadata count", Err: err}
	}
	for i := uint32(0); i < count; i++ {
		var internal uint64
		if err := binary.Read(r, binary.LittleEndian, &internal); err != nil {
			return &dberrors.IOError{Op: "read hnsw metadata", Err: err}
		}
		nodeType, err := readString(r)
		if err != nil {
			return err
		}
		contentRef, err := readString(r)
		if err != nil {
			return err
		}
		var timestamp int64
		if err := binary.Read(r, binary.LittleEndian, &timestamp); err != nil {
			return &dberrors.IOError{Op: "read hnsw metadata", Err: err}
		}

		var attrCount uint32
		if err := binary.Read(r, binary.LittleEndian, &attrCount); err != nil {
			return &dberrors.IOError{Op: "read hnsw attribute count", Err: err}
		}
		attrs := make(map[string]Attribute, attrCount)
		for j := uint32(0); j < attrCount; j++ {
			key, err := readString(r)
			if err != nil {
				return err
			}
			var kind AttrKind
			if err := binary.Read(r, binary.LittleEndian, &kind); err != nil {
				return &dberrors.IOError{Op: "read hnsw attribute", Err: err}
			}
			a := Attribute{Kind: kind}
			switch kind {
			case AttrString:
				if a.Str, err = readString(r); err != nil {
					return err
				}
			case AttrInt:
				if err := binary.Read(r, binary.LittleEndian, &a.Int); err != nil {
					return &dberrors.IOError{Op: "read hnsw attribute", Err: err}
				}
			case AttrFloat:
				if err := binary.Read(r, binary.LittleEndian, &a.Float); err != nil {
					return &dberrors.IOError{Op: "read hnsw attribute", Err: err}
				}
			case AttrBool:
				if err := binary.Read(r, binary.LittleEndian, &a.Bool); err != nil {
					return &dberrors.IOError{Op: "read hnsw attribute", Err: err}
				}
			}
			attrs[key] = a
		}

		n, ok := ix.nodes[internal]
		if !ok {
			continue // node was removed between save and a hand-edited file; skip orphaned metadata
		}
		m := Metadata{NodeType: nodeType, ContentRef: contentRef, Timestamp: timestamp, Attributes: attrs}
		n.metadata = &m
		ix.addToTypeIndex(n.external, nodeType)
	}
	return nil
}

func writeEdges(w io.Writer, es *graph.Store) error {
	edges := es.All()
	if err := binary.Write(w, binary.LittleEndian, uint32(len(edges))); err != nil {
		return &dberrors.IOError{Op: "write hnsw edge count", Err: err}
	}
	for _, e := range edges {
		if err := binary.Write(w, binary.LittleEndian, e.Src); err != nil {
			return &dberrors.IOError{Op: "write hnsw edge", Err: err}
		}
		if err := binary.Write(w, binary.LittleEndian, e.Dst); err != nil {
			return &dberrors.IOError{Op: "write hnsw edge", Err: err}
		}
		if err := writeString(w, e.EdgeType); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, e.Weight); err != nil {
			return &dberrors.IOError{Op: "write hnsw edge", Err: err}
		}
	}
	return nil
}

func readEdges(r io.Reader, es *graph.Store) error {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return &dberrors.IOError{Op: "read hnsw edge count", Err: err}
	}
	for i := uint32(0); i < count; i++ {
		var src, dst uint64
		if err := binary.Read(r, binary.LittleEndian, &src); err != nil {
			return &dberrors.IOError{Op: "read hnsw edge", Err: err}
		}
		if err := binary.Read(r, binary.LittleEndian, &dst); err != nil {
			return &dberrors.IOError{Op: "read hnsw edge", Err: err}
		}
		edgeType, err := readString(r)
		if err != nil {
			return err
		}
		var weight float32
		if err := binary.Read(r, binary.LittleEndian, &weight); err != nil {
			return &dberrors.IOError{Op: "read hnsw edge", Err: err}
		}
		es.AddEdge(src, dst, edgeType, weight)
	}
	return nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return &dberrors.IOError{Op: "write string length", Err: err}
	}
	if _, err := w.Write([]byte(s)); err != nil {
		return &dberrors.IOError{Op: "write string", Err: err}
	}
	return nil
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", &dberrors.IOError{Op: "read string length", Err: err}
	}
	buf := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", &dberrors.IOError{Op: "read string", Err: err}
		}
	}
	return string(buf), nil
}
