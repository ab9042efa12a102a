package vector

import (
	"fmt"

	"github.com/hyperjump/miwake/internal/models"
)

// IndexType represents the type of descriptor index to use.
type IndexType string

const (
	// IndexTypeLSH uses bit-sampling LSH for approximate search.
	IndexTypeLSH IndexType = "lsh"
	// IndexTypeExhaustive compares against every row.
	IndexTypeExhaustive IndexType = "exhaustive"
)

// NewIndex creates an index of the specified type over desc.
// Supported types: "lsh" (default), "exhaustive".
func NewIndex(indexType string, desc *models.Descriptors, opts LSHOptions) (Index, error) {
	switch IndexType(indexType) {
	case IndexTypeLSH, "":
		return NewLSHIndex(desc, opts), nil
	case IndexTypeExhaustive:
		return NewExhaustiveIndex(desc), nil
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: lsh, exhaustive)", indexType)
	}
}
