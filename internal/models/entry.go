package models

// CatalogEntry is one reference image's persisted feature representation.
// BinaryImage holds the PNG-encoded thresholded image; it is kept for
// re-derivation and is not used during matching.
type CatalogEntry struct {
	ID          string
	Keypoints   []Keypoint
	Descriptors *Descriptors
	BinaryImage []byte
}

// Features returns the entry's keypoints and descriptors as a Features value.
func (e *CatalogEntry) Features() *Features {
	return &Features{Keypoints: e.Keypoints, Descriptors: e.Descriptors}
}
