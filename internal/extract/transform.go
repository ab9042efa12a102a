package extract

import (
	"fmt"

	"gocv.io/x/gocv"
)

// Mirror returns the horizontal mirror of img. The caller closes the Mat.
func Mirror(img gocv.Mat) gocv.Mat {
	out := gocv.NewMat()
	gocv.Flip(img, &out, 1)
	return out
}

// Normalize thresholds img to black and white with Otsu's method and returns it PNG-encoded.
func Normalize(img gocv.Mat) ([]byte, error) {
	gray := toGray(img)
	defer gray.Close()
	bin := gocv.NewMat()
	defer bin.Close()
	gocv.Threshold(gray, &bin, 0, 255, gocv.ThresholdBinary+gocv.ThresholdOtsu)

	buf, err := gocv.IMEncode(gocv.PNGFileExt, bin)
	if err != nil {
		return nil, fmt.Errorf("encode binary image: %w", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}
