package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a 32-character random hex ID, used for request ids and
// object key suffixes.
func NewID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
