package core

import (
	"testing"
)

func TestNewHashDeterminism(t *testing.T) {
	first := NewHash([]byte("dose-response"))
	second := NewHash([]byte("dose-response"))
	if !first.Equals(second) {
		t.Error("Expected identical input to produce identical hashes")
	}
	if first.Equals(NewHash([]byte("dose-responsE"))) {
		t.Error("Expected different input to produce different hashes")
	}
	if len(first.String()) != 64 {
		t.Errorf("Expected a 64-char hex digest, got %d chars", len(first.String()))
	}
	if len(first.Short()) != 12 {
		t.Errorf("Expected a 12-char prefix, got %q", first.Short())
	}
}

func TestComputeDatasetFingerprint(t *testing.T) {
	y := [][]float64{{1}, {2}, {3}}
	v := [][]float64{{0.5}, {0.5}, {0.5}}

	base := ComputeDatasetFingerprint(y, v, nil, nil)
	same := ComputeDatasetFingerprint(y, v, nil, nil)
	if base != same {
		t.Error("Expected identical blocks to share a fingerprint")
	}
	if base.IsEmpty() {
		t.Error("Expected a non-empty fingerprint")
	}

	changed := ComputeDatasetFingerprint([][]float64{{1}, {2}, {4}}, v, nil, nil)
	if base == changed {
		t.Error("Expected a changed value to change the fingerprint")
	}

	// Moving a block boundary must not collide even when the flattened
	// values agree.
	shifted := ComputeDatasetFingerprint(y, nil, v, nil)
	if base == shifted {
		t.Error("Expected block position to participate in the fingerprint")
	}

	reshaped := ComputeDatasetFingerprint([][]float64{{1, 2}, {3, 0.5}, {0.5, 0.5}}, nil, nil, nil)
	if base == reshaped {
		t.Error("Expected row shape to participate in the fingerprint")
	}
}
