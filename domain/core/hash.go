package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Equals checks if two hashes are equal
func (h Hash) Equals(other Hash) bool {
	return h == other
}

// Short returns a display-sized prefix of the hash
func (h Hash) Short() string {
	if len(h) <= 12 {
		return string(h)
	}
	return string(h[:12])
}

// DatasetFingerprint identifies the numeric content of an input bundle,
// independent of its stored name or source.
type DatasetFingerprint Hash

// String returns the string representation
func (f DatasetFingerprint) String() string { return Hash(f).String() }

// IsEmpty checks if the fingerprint is empty
func (f DatasetFingerprint) IsEmpty() bool { return Hash(f).IsEmpty() }

// Short returns a display-sized prefix of the fingerprint
func (f DatasetFingerprint) Short() string { return Hash(f).Short() }

// ComputeDatasetFingerprint hashes numeric blocks in order. Each block
// and row is length-prefixed so that reshaping the same values produces
// a different digest.
func ComputeDatasetFingerprint(blocks ...[][]float64) DatasetFingerprint {
	h := sha256.New()
	var buf [8]byte
	for _, block := range blocks {
		binary.LittleEndian.PutUint64(buf[:], uint64(len(block)))
		h.Write(buf[:])
		for _, row := range block {
			binary.LittleEndian.PutUint64(buf[:], uint64(len(row)))
			h.Write(buf[:])
			for _, x := range row {
				binary.LittleEndian.PutUint64(buf[:], math.Float64bits(x))
				h.Write(buf[:])
			}
		}
	}
	return DatasetFingerprint(hex.EncodeToString(h.Sum(nil)))
}
