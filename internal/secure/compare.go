// internal/secure/compare.go
package secure

import "crypto/subtle"

// ConstantTimeEqual reports whether a and b are equal without leaking
// the position of the first differing byte through timing. Inputs of
// different lengths compare false; that is a result, not an error.
func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
