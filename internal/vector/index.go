// Package vector provides nearest-neighbour search over fixed-width binary descriptors.
package vector

// Index answers k-nearest-neighbour queries over a fixed set of binary vectors.
// Implementations are read-only after construction and safe for concurrent use.
type Index interface {
	KNN(query []byte, k int) []Neighbor
	Len() int
}

// Neighbor is a single search hit: the row index in the indexed set and its Hamming distance.
type Neighbor struct {
	Index    int
	Distance int
}
