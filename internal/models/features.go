// Package models defines core data structures for keypoints, catalog entries, and match results.
package models

import "fmt"

// Keypoint is a detected interest point. Fields mirror the detector's output.
type Keypoint struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Size     float64 `json:"size"`
	Angle    float64 `json:"angle"`
	Response float64 `json:"response"`
	Octave   int     `json:"octave"`
	ClassID  int     `json:"class_id"`
}

// Descriptors is a row-major matrix of fixed-width binary feature vectors.
// Row i describes the keypoint at index i of the same image.
type Descriptors struct {
	Rows int
	Cols int
	Data []byte
}

// NewDescriptors wraps data as a rows x cols matrix.
func NewDescriptors(rows, cols int, data []byte) (*Descriptors, error) {
	if rows < 0 || cols < 0 || len(data) != rows*cols {
		return nil, fmt.Errorf("descriptor data length %d does not match %dx%d", len(data), rows, cols)
	}
	return &Descriptors{Rows: rows, Cols: cols, Data: data}, nil
}

// Row returns descriptor i. The slice aliases the matrix data.
func (d *Descriptors) Row(i int) []byte {
	return d.Data[i*d.Cols : (i+1)*d.Cols]
}

// Empty reports whether the matrix has no rows.
func (d *Descriptors) Empty() bool {
	return d == nil || d.Rows == 0
}

// Features is the output of the extractor for one image.
type Features struct {
	Keypoints   []Keypoint
	Descriptors *Descriptors
}

// Validate checks that every keypoint has exactly one descriptor row.
func (f *Features) Validate() error {
	rows := 0
	if f.Descriptors != nil {
		rows = f.Descriptors.Rows
	}
	if len(f.Keypoints) != rows {
		return fmt.Errorf("keypoint count %d does not match descriptor rows %d", len(f.Keypoints), rows)
	}
	return nil
}
