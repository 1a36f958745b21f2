package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewRequestID returns a short hex string used to correlate request logs.
func NewRequestID() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
