// internal/secure/random_test.go
package secure

import (
	"errors"
	"strings"
	"testing"
)

func TestRandomBytes(t *testing.T) {
	buf, err := RandomBytes(32)
	if err != nil {
		t.Fatalf("RandomBytes: %v", err)
	}
	if len(buf) != 32 {
		t.Errorf("len = %d, want 32", len(buf))
	}

	other, err := RandomBytes(32)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf) == string(other) {
		t.Error("two reads returned identical bytes")
	}
}

func TestRandomBytes_InvalidLength(t *testing.T) {
	for _, n := range []int{0, -1} {
		if _, err := RandomBytes(n); !errors.Is(err, ErrInvalidLength) {
			t.Errorf("RandomBytes(%d): expected ErrInvalidLength, got %v", n, err)
		}
	}
}

func TestRandomString_Charsets(t *testing.T) {
	tests := []struct {
		charset string
		allowed string
	}{
		{CharsetAlphanumeric, "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"},
		{CharsetNumeric, "0123456789"},
		{CharsetHex, "0123456789abcdef"},
	}

	for _, tt := range tests {
		t.Run(tt.charset, func(t *testing.T) {
			got, err := RandomString(64, tt.charset)
			if err != nil {
				t.Fatalf("RandomString: %v", err)
			}
			if len(got) != 64 {
				t.Errorf("len = %d, want 64", len(got))
			}
			for _, r := range got {
				if !strings.ContainsRune(tt.allowed, r) {
					t.Errorf("character %q outside charset %s", r, tt.charset)
				}
			}
		})
	}
}

func TestRandomString_Errors(t *testing.T) {
	if _, err := RandomString(0, CharsetHex); !errors.Is(err, ErrInvalidLength) {
		t.Errorf("expected ErrInvalidLength, got %v", err)
	}
	if _, err := RandomString(8, "base64"); !errors.Is(err, ErrUnsupportedCharset) {
		t.Errorf("expected ErrUnsupportedCharset, got %v", err)
	}
}

func TestRandomSalt(t *testing.T) {
	salt, err := RandomSalt(8)
	if err != nil {
		t.Fatalf("RandomSalt: %v", err)
	}
	// hex encoding doubles the byte count
	if len(salt) != 16 {
		t.Errorf("len = %d, want 16", len(salt))
	}
}

func TestRandomSalt_ZeroMeansDefault(t *testing.T) {
	salt, err := RandomSalt(0)
	if err != nil {
		t.Fatalf("RandomSalt: %v", err)
	}
	if len(salt) != DefaultSaltLength*2 {
		t.Errorf("len = %d, want %d", len(salt), DefaultSaltLength*2)
	}
}

func TestRandomSalt_NegativeRejected(t *testing.T) {
	if _, err := RandomSalt(-1); !errors.Is(err, ErrInvalidLength) {
		t.Errorf("expected ErrInvalidLength, got %v", err)
	}
}
