// Package extract turns raster images into keypoints and binary descriptors.
package extract

import (
	"errors"
	"fmt"
	"image"

	"github.com/hyperjump/miwake/internal/config"
	"github.com/hyperjump/miwake/internal/models"
	"gocv.io/x/gocv"
)

var (
	// ErrDecode is returned when image bytes or a file cannot be decoded.
	ErrDecode = errors.New("image could not be decoded")
	// ErrNoFeatures marks an image that decoded but yielded no keypoints.
	ErrNoFeatures = errors.New("image yielded no keypoints")
)

// Options configures the detector.
type Options struct {
	MaxFeatures   int
	BlurKernel    int
	ScaleFactor   float64
	Levels        int
	EdgeThreshold int
	PatchSize     int
	FastThreshold int
}

// OptionsFromConfig converts extract settings into detector options.
func OptionsFromConfig(cfg *config.ExtractConfig) Options {
	return Options{
		MaxFeatures:   cfg.MaxFeatures,
		BlurKernel:    cfg.BlurKernel,
		ScaleFactor:   cfg.ScaleFactor,
		Levels:        cfg.Levels,
		EdgeThreshold: cfg.EdgeThreshold,
		PatchSize:     cfg.PatchSize,
		FastThreshold: cfg.FastThreshold,
	}
}

// DefaultOptions returns the detector settings used when no config is supplied.
func DefaultOptions() Options {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return OptionsFromConfig(&cfg.Extract)
}

// Extractor detects ORB keypoints and computes their descriptors.
// It holds no native state and is safe for concurrent use.
type Extractor struct {
	opts Options
}

// NewExtractor returns an extractor with the given options.
func NewExtractor(opts Options) *Extractor {
	return &Extractor{opts: opts}
}

// Load reads the image at path as 8-bit grayscale. The caller closes the Mat.
func (e *Extractor) Load(path string) (gocv.Mat, error) {
	m := gocv.IMRead(path, gocv.IMReadGrayScale)
	if m.Empty() {
		_ = m.Close()
		return gocv.NewMat(), fmt.Errorf("%s: %w", path, ErrDecode)
	}
	return m, nil
}

// Decode decodes encoded image bytes as 8-bit grayscale. The caller closes the Mat.
func (e *Extractor) Decode(data []byte) (gocv.Mat, error) {
	if len(data) == 0 {
		return gocv.NewMat(), ErrDecode
	}
	m, err := gocv.IMDecode(data, gocv.IMReadGrayScale)
	if err != nil {
		_ = m.Close()
		return gocv.NewMat(), fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if m.Empty() {
		_ = m.Close()
		return gocv.NewMat(), ErrDecode
	}
	return m, nil
}

// FromImage converts an already decoded Go image to an 8-bit grayscale Mat.
// The caller closes the Mat.
func FromImage(img image.Image) (gocv.Mat, error) {
	if img == nil || img.Bounds().Empty() {
		return gocv.NewMat(), ErrDecode
	}
	gray, ok := img.(*image.Gray)
	if !ok || gray.Rect.Min != (image.Point{}) {
		b := img.Bounds()
		gray = image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				gray.Set(x, y, img.At(b.Min.X+x, b.Min.Y+y))
			}
		}
	}
	m, err := gocv.ImageGrayToMatGray(gray)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return m, nil
}

// Extract blurs img, detects up to MaxFeatures keypoints, and computes one
// descriptor per keypoint. ok is false when the image is empty or nothing was detected.
func (e *Extractor) Extract(img gocv.Mat) (features *models.Features, ok bool) {
	if img.Empty() {
		return nil, false
	}
	gray := toGray(img)
	defer gray.Close()

	blurred := gocv.NewMat()
	defer blurred.Close()
	k := e.opts.BlurKernel
	if k > 1 {
		gocv.GaussianBlur(gray, &blurred, image.Pt(k, k), 0, 0, gocv.BorderDefault)
	} else {
		gray.CopyTo(&blurred)
	}

	orb := gocv.NewORBWithParams(
		e.opts.MaxFeatures,
		float32(e.opts.ScaleFactor),
		e.opts.Levels,
		e.opts.EdgeThreshold,
		0,
		2,
		gocv.ORBScoreTypeHarris,
		e.opts.PatchSize,
		e.opts.FastThreshold,
	)
	defer orb.Close()

	mask := gocv.NewMat()
	defer mask.Close()
	kps, desc := orb.DetectAndCompute(blurred, mask)
	defer desc.Close()
	if len(kps) == 0 || desc.Empty() || desc.Rows() != len(kps) {
		return nil, false
	}

	keypoints := make([]models.Keypoint, len(kps))
	for i, kp := range kps {
		keypoints[i] = models.Keypoint{
			X:        kp.X,
			Y:        kp.Y,
			Size:     kp.Size,
			Angle:    kp.Angle,
			Response: kp.Response,
			Octave:   kp.Octave,
			ClassID:  kp.ClassID,
		}
	}
	descriptors, err := models.NewDescriptors(desc.Rows(), desc.Cols(), desc.ToBytes())
	if err != nil {
		return nil, false
	}
	return &models.Features{Keypoints: keypoints, Descriptors: descriptors}, true
}

// toGray returns a single-channel copy of img.
func toGray(img gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	switch img.Channels() {
	case 3:
		gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
	case 4:
		gocv.CvtColor(img, &gray, gocv.ColorBGRAToGray)
	default:
		img.CopyTo(&gray)
	}
	return gray
}
