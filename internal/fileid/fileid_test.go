package fileid

import (
	"path/filepath"
	"testing"
)

func TestEntryID(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/corpus/alpha.png", "alpha"},
		{"beta.jpeg", "beta"},
		{filepath.Join("a", "b", "gamma.v2.webp"), "gamma.v2"},
		{"/corpus/noext", "noext"},
		{"/corpus/./delta.png", "delta"},
	}
	for _, tt := range tests {
		if got := EntryID(tt.path); got != tt.want {
			t.Errorf("EntryID(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestMirroredAndBaseID(t *testing.T) {
	m := MirroredID("alpha")
	if m != "alpha_flipped" {
		t.Fatalf("MirroredID = %q", m)
	}
	if !IsMirrored(m) {
		t.Error("IsMirrored should be true for mirrored id")
	}
	if BaseID(m) != "alpha" {
		t.Errorf("BaseID(%q) = %q", m, BaseID(m))
	}
	if BaseID("alpha") != "alpha" {
		t.Error("BaseID should leave plain ids unchanged")
	}
	if BaseID("x_flipped_flipped") != "x_flipped" {
		t.Error("BaseID should strip only one suffix")
	}
}
