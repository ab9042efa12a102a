package models

import "testing"

func TestNewDescriptors(t *testing.T) {
	tests := []struct {
		name       string
		rows, cols int
		data       []byte
		wantErr    bool
	}{
		{"exact", 2, 3, make([]byte, 6), false},
		{"empty", 0, 32, nil, false},
		{"short", 2, 3, make([]byte, 5), true},
		{"negative", -1, 3, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDescriptors(tt.rows, tt.cols, tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewDescriptors() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDescriptors_Row(t *testing.T) {
	d, err := NewDescriptors(2, 2, []byte{1, 2, 3, 4})
	if err != nil {
		t.Fatal(err)
	}
	if r := d.Row(1); r[0] != 3 || r[1] != 4 {
		t.Errorf("Row(1) = %v", r)
	}
	var nilDesc *Descriptors
	if !nilDesc.Empty() {
		t.Error("nil descriptors should be empty")
	}
}

func TestFeatures_Validate(t *testing.T) {
	d, _ := NewDescriptors(1, 2, []byte{0, 1})
	ok := &Features{Keypoints: []Keypoint{{X: 1}}, Descriptors: d}
	if err := ok.Validate(); err != nil {
		t.Errorf("aligned features: %v", err)
	}
	bad := &Features{Keypoints: []Keypoint{{X: 1}, {X: 2}}, Descriptors: d}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for misaligned features")
	}
	if err := (&Features{}).Validate(); err != nil {
		t.Errorf("empty features: %v", err)
	}
}
