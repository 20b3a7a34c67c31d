// Package checksum provides the digest helpers used for cache keys.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Key derives a cache key from its parts. Parts are joined with a separator
// that cannot appear inside provider identifiers or ISO dates.
func Key(parts ...string) string {
	return Sum([]byte(strings.Join(parts, "|")))
}
