package matcher

import (
	"github.com/hyperjump/miwake/internal/geometry"
	"gocv.io/x/gocv"
)

// Estimator fits a homography mapping src points onto dst points.
type Estimator interface {
	Estimate(src, dst []geometry.Point) (geometry.Homography, bool)
}

// EstimatorFunc adapts a function to Estimator.
type EstimatorFunc func(src, dst []geometry.Point) (geometry.Homography, bool)

func (f EstimatorFunc) Estimate(src, dst []geometry.Point) (geometry.Homography, bool) {
	return f(src, dst)
}

// RANSACEstimator fits a homography with OpenCV's RANSAC estimator.
type RANSACEstimator struct {
	Threshold  float64
	MaxIters   int
	Confidence float64
}

// Estimate returns false when fewer than four correspondences are given or
// no homography could be found.
func (r RANSACEstimator) Estimate(src, dst []geometry.Point) (geometry.Homography, bool) {
	if len(src) < 4 || len(src) != len(dst) {
		return geometry.Homography{}, false
	}
	srcVec := gocv.NewPoint2fVectorFromPoints(toPoint2f(src))
	defer srcVec.Close()
	dstVec := gocv.NewPoint2fVectorFromPoints(toPoint2f(dst))
	defer dstVec.Close()
	srcMat := gocv.NewMatFromPoint2fVector(srcVec, true)
	defer srcMat.Close()
	dstMat := gocv.NewMatFromPoint2fVector(dstVec, true)
	defer dstMat.Close()
	mask := gocv.NewMat()
	defer mask.Close()

	hm := gocv.FindHomography(srcMat, dstMat, gocv.HomographyMethodRANSAC, r.Threshold, &mask, r.MaxIters, r.Confidence)
	defer hm.Close()
	if hm.Empty() || hm.Rows() != 3 || hm.Cols() != 3 {
		return geometry.Homography{}, false
	}
	var h geometry.Homography
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			h[i*3+j] = hm.GetDoubleAt(i, j)
		}
	}
	return h, true
}

func toPoint2f(pts []geometry.Point) []gocv.Point2f {
	out := make([]gocv.Point2f, len(pts))
	for i, p := range pts {
		out[i] = gocv.Point2f{X: float32(p.X), Y: float32(p.Y)}
	}
	return out
}
