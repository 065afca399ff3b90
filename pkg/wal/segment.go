package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const segmentExt = ".wal"

// segmentPath names a segment file by its zero-padded sequence number, so a
// plain directory listing already sorts in log order (spec.md §4.6: "rotated
// files named by sequence number").
func segmentPath(dir string, seq uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%020d%s", seq, segmentExt))
}

// listSegments returns every segment's sequence number in ascending order.
func listSegments(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var seqs []uint64
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), segmentExt) {
			continue
		}
		numPart := strings.TrimSuffix(e.Name(), segmentExt)
		seq, err := strconv.ParseUint(numPart, 10, 64)
		if err != nil {
			continue // not one of ours; ignore
		}
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs, nil
}
