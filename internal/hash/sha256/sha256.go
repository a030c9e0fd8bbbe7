// Package sha256 derives short hex digests used in artifact names.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hex returns the full hex digest of data.
func Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Short returns the first n hex characters of the digest of s. n is clamped
// to the digest length.
func Short(s string, n int) string {
	full := Hex([]byte(s))
	if n <= 0 || n > len(full) {
		return full
	}
	return full[:n]
}
