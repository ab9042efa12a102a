package vector

import "github.com/hyperjump/miwake/internal/models"

// ExhaustiveIndex compares the query against every row.
// Suitable for small descriptor sets and as the exact reference for LSHIndex.
type ExhaustiveIndex struct {
	desc *models.Descriptors
}

// NewExhaustiveIndex indexes desc without copying it.
func NewExhaustiveIndex(desc *models.Descriptors) *ExhaustiveIndex {
	return &ExhaustiveIndex{desc: desc}
}

// KNN returns up to k nearest rows by Hamming distance.
func (e *ExhaustiveIndex) KNN(query []byte, k int) []Neighbor {
	if k <= 0 || e.desc.Empty() {
		return nil
	}
	top := newTopK(k)
	for i := 0; i < e.desc.Rows; i++ {
		top.push(Neighbor{Index: i, Distance: HammingDistance(query, e.desc.Row(i))})
	}
	return top.items
}

// Len returns the number of indexed rows.
func (e *ExhaustiveIndex) Len() int {
	if e.desc == nil {
		return 0
	}
	return e.desc.Rows
}
