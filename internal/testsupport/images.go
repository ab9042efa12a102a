// Package testsupport provides synthetic images and configs for tests.
package testsupport

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/miwake/internal/config"
	"github.com/hyperjump/miwake/internal/models"
)

// PatternImage returns a w x h grayscale image of overlapping random
// rectangles and diagonal bars. Different seeds give unrelated patterns
// with plenty of corners for a feature detector.
func PatternImage(w, h int, seed int64) *image.Gray {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.Gray{Y: uint8(rng.Intn(60))}}, image.Point{}, draw.Src)
	for i := 0; i < 30; i++ {
		x0, y0 := rng.Intn(w), rng.Intn(h)
		x1 := x0 + 8 + rng.Intn(w/4)
		y1 := y0 + 8 + rng.Intn(h/4)
		shade := color.Gray{Y: uint8(80 + rng.Intn(176))}
		draw.Draw(img, image.Rect(x0, y0, x1, y1), &image.Uniform{shade}, image.Point{}, draw.Src)
	}
	for i := 0; i < 6; i++ {
		x0, y0 := rng.Intn(w), rng.Intn(h)
		length := 20 + rng.Intn(w/3)
		shade := color.Gray{Y: uint8(rng.Intn(256))}
		for d := 0; d < length; d++ {
			for t := 0; t < 3; t++ {
				img.SetGray(x0+d+t, y0+d, shade)
			}
		}
	}
	return img
}

// NoiseImage returns a w x h image of uniform random pixels.
func NoiseImage(w, h int, seed int64) *image.Gray {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, w, h))
	rng.Read(img.Pix)
	return img
}

// BlankImage returns a w x h image of a single gray level.
func BlankImage(w, h int, level uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = level
	}
	return img
}

// WritePNG encodes img as PNG at dir/name and returns the path.
func WritePNG(t testing.TB, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

// NewConfig returns a defaulted config whose storage lives under a fresh temp dir.
func NewConfig(t testing.TB) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Storage.CachePath = filepath.Join(base, "reference_cache.csv")
	cfg.Storage.DatabasePath = filepath.Join(base, "reference_cache.db")
	cfg.Corpus.Directory = filepath.Join(base, "corpus")
	cfg.Corpus.Workers = 2
	cfg.Corpus.BatchSize = 4
	cfg.Match.Workers = 2
	if err := os.MkdirAll(cfg.Corpus.Directory, 0755); err != nil {
		t.Fatal(err)
	}
	return cfg
}

// UnambiguousRows counts descriptor rows that have no exact duplicate in d.
// Matching a descriptor set against itself can pass the ratio test on at
// most this many rows.
func UnambiguousRows(d *models.Descriptors) int {
	n := 0
	for i := 0; i < d.Rows; i++ {
		unique := true
		for j := 0; j < d.Rows && unique; j++ {
			if j != i && bytes.Equal(d.Row(i), d.Row(j)) {
				unique = false
			}
		}
		if unique {
			n++
		}
	}
	return n
}
