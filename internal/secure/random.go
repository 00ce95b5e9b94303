// internal/secure/random.go
package secure

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
)

// ErrInvalidLength is returned when a requested length is not positive.
var ErrInvalidLength = fmt.Errorf("length must be positive")

// ErrUnsupportedCharset is returned for charsets outside the supported set.
var ErrUnsupportedCharset = fmt.Errorf("unsupported charset")

// Supported charsets for RandomString.
const (
	CharsetAlphanumeric = "alphanumeric"
	CharsetNumeric      = "numeric"
	CharsetHex          = "hex"
)

// DefaultSaltLength is the byte length used by RandomSalt when the
// caller passes zero.
const DefaultSaltLength = 16

var charsets = map[string]string{
	CharsetAlphanumeric: "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789",
	CharsetNumeric:      "0123456789",
	CharsetHex:          "0123456789abcdef",
}

// RandomBytes returns n cryptographically random bytes.
func RandomBytes(n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLength, n)
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("reading random bytes: %w", err)
	}
	return buf, nil
}

// RandomString returns a random string of the given length drawn from
// the named charset. Each position is sampled uniformly via crypto/rand,
// so no modulo bias is introduced.
func RandomString(length int, charset string) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidLength, length)
	}
	chars, ok := charsets[charset]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCharset, charset)
	}

	max := big.NewInt(int64(len(chars)))
	out := make([]byte, length)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("sampling random index: %w", err)
		}
		out[i] = chars[idx.Int64()]
	}
	return string(out), nil
}

// RandomSalt returns length random bytes hex-encoded (so the string is
// twice as long as the byte count). Zero means DefaultSaltLength;
// negative lengths are rejected.
func RandomSalt(length int) (string, error) {
	if length == 0 {
		length = DefaultSaltLength
	}
	buf, err := RandomBytes(length)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
