package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash16 returns the first 16 hex chars of the SHA-256 of b.
// Short enough for readable keys, long enough to make collisions a non-issue
// for in-process key spaces.
func Hash16(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:8])
}
