package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHomography_Project(t *testing.T) {
	p, ok := Identity().Project(Point{3, 4})
	assert.True(t, ok)
	assert.Equal(t, Point{3, 4}, p)

	shift := Homography{1, 0, 10, 0, 1, -5, 0, 0, 1}
	p, ok = shift.Project(Point{1, 1})
	assert.True(t, ok)
	assert.InDelta(t, 11, p.X, 1e-12)
	assert.InDelta(t, -4, p.Y, 1e-12)

	degenerate := Homography{1, 0, 0, 0, 1, 0, 0, 0, 0}
	_, ok = degenerate.Project(Point{0, 0})
	assert.False(t, ok)
}

func TestArea(t *testing.T) {
	assert.InDelta(t, 49*49, Area(ReferenceQuad(50)), 1e-9)
	tri := Quad{{0, 0}, {4, 0}, {4, 0}, {0, 3}}
	assert.InDelta(t, 6, Area(tri), 1e-9)
}

func TestIsConvex(t *testing.T) {
	tests := []struct {
		name string
		q    Quad
		want bool
	}{
		{"square", ReferenceQuad(50), true},
		{"square reversed", Quad{{0, 0}, {10, 0}, {10, 10}, {0, 10}}, true},
		{"trapezoid", Quad{{0, 0}, {2, 10}, {8, 10}, {10, 0}}, true},
		{"bowtie", Quad{{0, 0}, {10, 10}, {10, 0}, {0, 10}}, false},
		{"dart", Quad{{0, 0}, {5, 2}, {10, 0}, {5, 10}}, false},
		{"collinear", Quad{{0, 0}, {5, 0}, {10, 0}, {5, 5}}, false},
		{"repeated corner", Quad{{0, 0}, {0, 0}, {10, 10}, {10, 0}}, false},
		{"nan", Quad{{math.NaN(), 0}, {0, 1}, {1, 1}, {1, 0}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsConvex(tt.q))
		})
	}
}

func TestPlausible(t *testing.T) {
	assert.True(t, Plausible(Identity(), 50, 100), "identity keeps the full square")

	shrink := Homography{0.1, 0, 0, 0, 0.1, 0, 0, 0, 1}
	assert.False(t, Plausible(shrink, 50, 100), "area 4.9^2 is below the minimum")

	// Sends the line x = 25 to infinity, folding the far corners back over the near ones.
	fold := Homography{1, 0, 0, 0, 1, 0, -1.0 / 25, 0, 1}
	q, ok := fold.ProjectQuad(ReferenceQuad(50))
	assert.True(t, ok)
	assert.False(t, IsConvex(q))
	assert.False(t, Plausible(fold, 50, 100))

	mirror := Homography{-1, 0, 49, 0, 1, 0, 0, 0, 1}
	assert.True(t, Plausible(mirror, 50, 100), "a reflection is still convex")

	infinite := Homography{1, 0, 0, 0, 1, 0, -1.0 / 49, 0, 1}
	assert.False(t, Plausible(infinite, 50, 100))
}
