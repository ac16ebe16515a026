// Package vector provides an exact, append-only vector index ranked by squared L2 distance.
package vector

import (
	"errors"
	"fmt"
	"sort"
)

// ErrDimensionMismatch is returned when a vector's length disagrees with the index dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Result is a single search hit. Position is the storage position of the vector.
type Result struct {
	Position int
	Distance float64 // squared Euclidean distance; smaller is closer
}

// FlatIndex stores vectors in insertion order and answers nearest-neighbor queries
// by linear scan. The dimension is fixed by the first Add after creation or Clear.
// FlatIndex is not safe for concurrent use.
type FlatIndex struct {
	dimensions int
	vectors    [][]float32
}

// NewFlatIndex returns an empty index with no dimension set.
func NewFlatIndex() *FlatIndex {
	return &FlatIndex{}
}

// Add appends vectors in order. Every vector of the call is checked before any is
// stored, so a mismatch leaves the index unchanged.
func (x *FlatIndex) Add(vectors [][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	dim := x.dimensions
	if dim == 0 {
		dim = len(vectors[0])
		if dim == 0 {
			return fmt.Errorf("%w: empty vector", ErrDimensionMismatch)
		}
	}
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: vector %d has %d dimensions, index has %d", ErrDimensionMismatch, i, len(v), dim)
		}
	}
	x.dimensions = dim
	for _, v := range vectors {
		vec := make([]float32, dim)
		copy(vec, v)
		x.vectors = append(x.vectors, vec)
	}
	return nil
}

// Search returns the min(k, Size()) stored vectors closest to query, ascending by
// distance with ties broken by ascending position. An empty index yields no results.
func (x *FlatIndex) Search(query []float32, k int) ([]Result, error) {
	if k <= 0 || len(x.vectors) == 0 {
		return nil, nil
	}
	if len(query) != x.dimensions {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", ErrDimensionMismatch, len(query), x.dimensions)
	}
	scored := make([]Result, len(x.vectors))
	for i, vec := range x.vectors {
		scored[i] = Result{Position: i, Distance: SquaredL2(query, vec)}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Distance != scored[j].Distance {
			return scored[i].Distance < scored[j].Distance
		}
		return scored[i].Position < scored[j].Position
	})
	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k], nil
}

// Truncate drops every vector at position n and beyond. Used to undo an append
// whose persistence failed. Truncating to zero unsets the dimension.
func (x *FlatIndex) Truncate(n int) {
	if n < 0 {
		n = 0
	}
	if n >= len(x.vectors) {
		return
	}
	for i := n; i < len(x.vectors); i++ {
		x.vectors[i] = nil
	}
	x.vectors = x.vectors[:n]
	if n == 0 {
		x.dimensions = 0
	}
}

// Clear discards all vectors and unsets the dimension.
func (x *FlatIndex) Clear() {
	x.vectors = nil
	x.dimensions = 0
}

// Size returns the number of stored vectors.
func (x *FlatIndex) Size() int {
	return len(x.vectors)
}

// Dimensions returns the fixed dimension, or 0 when the index is empty.
func (x *FlatIndex) Dimensions() int {
	return x.dimensions
}
