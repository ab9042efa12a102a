package vector

import (
	"math/rand"

	"github.com/hyperjump/miwake/internal/models"
)

// LSHIndex is a bit-sampling locality sensitive hash over binary descriptors.
// Each table hashes a row by a fixed random subset of its bits; a query is
// compared exactly against the rows sharing a bucket with it in any table.
type LSHIndex struct {
	desc   *models.Descriptors
	tables []lshTable
	exact  *ExhaustiveIndex
}

type lshTable struct {
	bits    []int
	buckets map[uint32][]int32
}

// LSHOptions configures an LSHIndex.
type LSHOptions struct {
	Tables  int
	KeyBits int
	Seed    int64
}

// NewLSHIndex builds the hash tables over desc. KeyBits is capped at 32 and at the descriptor width.
func NewLSHIndex(desc *models.Descriptors, opts LSHOptions) *LSHIndex {
	idx := &LSHIndex{desc: desc, exact: NewExhaustiveIndex(desc)}
	if desc.Empty() {
		return idx
	}
	width := desc.Cols * 8
	keyBits := min(max(opts.KeyBits, 1), 32, width)
	tables := max(opts.Tables, 1)
	rng := rand.New(rand.NewSource(opts.Seed))
	idx.tables = make([]lshTable, tables)
	for t := range idx.tables {
		perm := rng.Perm(width)
		tbl := lshTable{bits: perm[:keyBits], buckets: make(map[uint32][]int32)}
		for i := 0; i < desc.Rows; i++ {
			key := tbl.key(desc.Row(i))
			tbl.buckets[key] = append(tbl.buckets[key], int32(i))
		}
		idx.tables[t] = tbl
	}
	return idx
}

func (t *lshTable) key(v []byte) uint32 {
	var key uint32
	for i, b := range t.bits {
		if v[b>>3]&(1<<(uint(b)&7)) != 0 {
			key |= 1 << uint(i)
		}
	}
	return key
}

// KNN returns up to k approximate nearest rows. When the hash tables yield
// fewer than k distinct candidates the query falls back to an exhaustive scan.
func (l *LSHIndex) KNN(query []byte, k int) []Neighbor {
	if k <= 0 || l.desc.Empty() {
		return nil
	}
	seen := make(map[int32]struct{}, 16)
	top := newTopK(k)
	for i := range l.tables {
		tbl := &l.tables[i]
		for _, row := range tbl.buckets[tbl.key(query)] {
			if _, ok := seen[row]; ok {
				continue
			}
			seen[row] = struct{}{}
			top.push(Neighbor{Index: int(row), Distance: HammingDistance(query, l.desc.Row(int(row)))})
		}
	}
	if len(seen) < k && len(seen) < l.desc.Rows {
		return l.exact.KNN(query, k)
	}
	return top.items
}

// Len returns the number of indexed rows.
func (l *LSHIndex) Len() int {
	return l.exact.Len()
}
