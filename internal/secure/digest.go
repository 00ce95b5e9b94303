// internal/secure/digest.go
package secure

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
)

// ErrUnsupportedAlgorithm is returned for digest algorithms outside the
// supported set.
var ErrUnsupportedAlgorithm = fmt.Errorf("unsupported digest algorithm")

// Supported digest algorithms.
const (
	AlgorithmSHA256 = "sha256"
	AlgorithmSHA512 = "sha512"
)

// Digest hashes input with the named algorithm and returns the digest
// hex-encoded. A non-empty salt is mixed in ahead of the input. Unknown
// algorithms are rejected, never silently substituted.
func Digest(input string, algorithm string, salt []byte) (string, error) {
	var h hash.Hash
	switch algorithm {
	case AlgorithmSHA256:
		h = sha256.New()
	case AlgorithmSHA512:
		h = sha512.New()
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}

	if len(salt) > 0 {
		h.Write(salt)
	}
	h.Write([]byte(input))
	return hex.EncodeToString(h.Sum(nil)), nil
}
