// Package sha256 fingerprints snapshot content.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements availability.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex digest of data.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
