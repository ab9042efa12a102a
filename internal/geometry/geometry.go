// Package geometry provides planar homography projection and the quadrilateral
// plausibility checks applied to estimated transforms.
package geometry

import "math"

// Point is a 2D point.
type Point struct {
	X, Y float64
}

// Homography is a 3x3 perspective transform in row-major order.
type Homography [9]float64

// Identity returns the identity transform.
func Identity() Homography {
	return Homography{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// Project maps p through h. ok is false when p maps to infinity.
func (h Homography) Project(p Point) (Point, bool) {
	w := h[6]*p.X + h[7]*p.Y + h[8]
	if math.Abs(w) < 1e-12 {
		return Point{}, false
	}
	return Point{
		X: (h[0]*p.X + h[1]*p.Y + h[2]) / w,
		Y: (h[3]*p.X + h[4]*p.Y + h[5]) / w,
	}, true
}

// Quad is a quadrilateral given by its corners in traversal order.
type Quad [4]Point

// ReferenceQuad returns the corners of a size x size image: (0,0), (0,size-1), (size-1,size-1), (size-1,0).
func ReferenceQuad(size float64) Quad {
	s := size - 1
	return Quad{{0, 0}, {0, s}, {s, s}, {s, 0}}
}

// ProjectQuad maps every corner of q through h.
func (h Homography) ProjectQuad(q Quad) (Quad, bool) {
	var out Quad
	for i, p := range q {
		pp, ok := h.Project(p)
		if !ok {
			return Quad{}, false
		}
		out[i] = pp
	}
	return out, true
}

// IsConvex reports whether q is a strictly convex, non self-intersecting polygon.
// Collinear or repeated corners are not convex.
func IsConvex(q Quad) bool {
	sign := 0
	for i := range q {
		a, b, c := q[i], q[(i+1)%4], q[(i+2)%4]
		cross := (b.X-a.X)*(c.Y-b.Y) - (b.Y-a.Y)*(c.X-b.X)
		if math.IsNaN(cross) || math.Abs(cross) < 1e-9 {
			return false
		}
		s := 1
		if cross < 0 {
			s = -1
		}
		if sign == 0 {
			sign = s
		} else if s != sign {
			return false
		}
	}
	return true
}

// Area returns the absolute enclosed area of q by the shoelace formula.
func Area(q Quad) float64 {
	var sum float64
	for i := range q {
		a, b := q[i], q[(i+1)%4]
		sum += a.X*b.Y - b.X*a.Y
	}
	return math.Abs(sum) / 2
}

// Plausible reports whether h maps the size x size reference square onto a
// convex quadrilateral with area above minArea.
func Plausible(h Homography, size, minArea float64) bool {
	q, ok := h.ProjectQuad(ReferenceQuad(size))
	if !ok {
		return false
	}
	return IsConvex(q) && Area(q) > minArea
}

