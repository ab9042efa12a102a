// Package fileid derives catalog entry identifiers from corpus file paths.
package fileid

import (
	"path/filepath"
	"strings"
)

// MirrorSuffix marks the horizontally mirrored variant of a corpus image.
const MirrorSuffix = "_flipped"

// EntryID returns the identifier for the image at path: its base name without extension.
func EntryID(path string) string {
	base := filepath.Base(filepath.Clean(path))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// MirroredID returns the identifier of the mirrored variant of id.
func MirroredID(id string) string {
	return id + MirrorSuffix
}

// BaseID strips one trailing mirror suffix so both variants report the same identity.
func BaseID(id string) string {
	return strings.TrimSuffix(id, MirrorSuffix)
}

// IsMirrored reports whether id names a mirrored variant.
func IsMirrored(id string) bool {
	return strings.HasSuffix(id, MirrorSuffix)
}
