// Package index builds, caches and serves the in-memory vector index over case records.
package index

import (
	"container/heap"
	"fmt"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/entities"
)

// Hit is one search result. Position refers to the entry order the index was built from.
type Hit struct {
	Position int
	RecordID string
	Score    float64
}

// FlatIndex is an exact inner-product index over L2-normalised vectors, so
// scores are cosine similarities. It is immutable once built.
type FlatIndex struct {
	dim     int
	ids     []string
	vectors []float32 // row-major, len(ids)*dim
}

// NewFlatIndex copies entries into a contiguous matrix.
func NewFlatIndex(dim int, entries []entities.EmbeddingEntry) (*FlatIndex, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid index dimension %d", dim)
	}
	x := &FlatIndex{
		dim:     dim,
		ids:     make([]string, len(entries)),
		vectors: make([]float32, len(entries)*dim),
	}
	for i, e := range entries {
		if len(e.Vector) != dim {
			return nil, fmt.Errorf("entry %s has dimension %d, want %d", e.RecordID, len(e.Vector), dim)
		}
		x.ids[i] = e.RecordID
		copy(x.vectors[i*dim:(i+1)*dim], e.Vector)
	}
	return x, nil
}

// Len returns the number of indexed vectors.
func (x *FlatIndex) Len() int { return len(x.ids) }

// Dimension returns the vector length.
func (x *FlatIndex) Dimension() int { return x.dim }

// Search returns up to k hits ordered by descending score.
func (x *FlatIndex) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != x.dim {
		return nil, fmt.Errorf("query has dimension %d, index has %d", len(query), x.dim)
	}
	if k <= 0 || len(x.ids) == 0 {
		return nil, nil
	}
	if k > len(x.ids) {
		k = len(x.ids)
	}

	h := make(minHeap, 0, k)
	for i := range x.ids {
		row := x.vectors[i*x.dim : (i+1)*x.dim]
		score := 0.0
		for j, v := range row {
			score += float64(v) * float64(query[j])
		}
		if len(h) < k {
			heap.Push(&h, Hit{Position: i, RecordID: x.ids[i], Score: score})
			continue
		}
		if score > h[0].Score {
			h[0] = Hit{Position: i, RecordID: x.ids[i], Score: score}
			heap.Fix(&h, 0)
		}
	}

	out := make([]Hit, len(h))
	for i := len(h) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&h).(Hit)
	}
	return out, nil
}

// minHeap keeps the current best k hits with the weakest on top. Equal scores
// prefer the earlier position so results are deterministic.
type minHeap []Hit

func (h minHeap) Len() int { return len(h) }
func (h minHeap) Less(i, j int) bool {
	if h[i].Score == h[j].Score {
		return h[i].Position > h[j].Position
	}
	return h[i].Score < h[j].Score
}
func (h minHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(v any)   { *h = append(*h, v.(Hit)) }
func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}
