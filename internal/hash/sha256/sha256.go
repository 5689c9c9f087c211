// Package sha256 fingerprints captured verdict text.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hasher produces hex SHA-256 digests of verdict bodies.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex digest of data.
func (h *Hasher) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashText digests text after collapsing whitespace runs, so re-rendered
// markup with identical wording hashes the same.
func (h *Hasher) HashText(text string) string {
	return h.Hash([]byte(strings.Join(strings.Fields(text), " ")))
}
