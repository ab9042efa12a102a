package vector

import (
	"encoding/binary"
	"math/bits"
)

// HammingDistance returns the number of differing bits between a and b.
// Only the common prefix is compared when lengths differ.
func HammingDistance(a, b []byte) int {
	n := min(len(a), len(b))
	var dist int
	i := 0
	for ; i+8 <= n; i += 8 {
		dist += bits.OnesCount64(binary.LittleEndian.Uint64(a[i:]) ^ binary.LittleEndian.Uint64(b[i:]))
	}
	for ; i < n; i++ {
		dist += bits.OnesCount8(a[i] ^ b[i])
	}
	return dist
}

// RatioTest accepts the nearest neighbour only when it is strictly closer than
// ratio times the second-nearest. Fewer than two neighbours never pass.
func RatioTest(neighbors []Neighbor, ratio float64) (Neighbor, bool) {
	if len(neighbors) < 2 {
		return Neighbor{}, false
	}
	best, second := neighbors[0], neighbors[1]
	if float64(best.Distance) < ratio*float64(second.Distance) {
		return best, true
	}
	return Neighbor{}, false
}

// topK keeps the k smallest-distance neighbours in ascending order, ties by index.
type topK struct {
	k     int
	items []Neighbor
}

func newTopK(k int) *topK {
	return &topK{k: k, items: make([]Neighbor, 0, k+1)}
}

func (t *topK) push(n Neighbor) {
	if len(t.items) == t.k && !less(n, t.items[len(t.items)-1]) {
		return
	}
	pos := len(t.items)
	for pos > 0 && less(n, t.items[pos-1]) {
		pos--
	}
	t.items = append(t.items, Neighbor{})
	copy(t.items[pos+1:], t.items[pos:])
	t.items[pos] = n
	if len(t.items) > t.k {
		t.items = t.items[:t.k]
	}
}

func less(a, b Neighbor) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.Index < b.Index
}
