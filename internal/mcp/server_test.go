// internal/mcp/server_test.go
package mcp

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func intPtr(n int) *int { return &n }

func TestHandleMask_Defaults(t *testing.T) {
	s := NewServer()

	_, out, err := s.handleMask(context.Background(), nil, MaskInput{Text: "secret1234"})
	if err != nil {
		t.Fatalf("handleMask: %v", err)
	}
	// hidden span 6, medium ratio -> round(4.2) = 4 mask chars
	if out.Masked != "se****34" {
		t.Errorf("Masked = %q, want %q", out.Masked, "se****34")
	}
}

func TestHandleMask_ExplicitZeroBoundaries(t *testing.T) {
	s := NewServer()

	// Pointer fields distinguish an explicit 0 from an absent key
	_, out, err := s.handleMask(context.Background(), nil, MaskInput{
		Text:         "12345",
		VisibleStart: intPtr(0),
		VisibleEnd:   intPtr(0),
		Sensitivity:  "high",
		MaskChar:     "#",
	})
	if err != nil {
		t.Fatalf("handleMask: %v", err)
	}
	if out.Masked != "#####" {
		t.Errorf("Masked = %q, want %q", out.Masked, "#####")
	}
}

func TestHandleMask_PartialOverrides(t *testing.T) {
	s := NewServer()

	_, out, err := s.handleMask(context.Background(), nil, MaskInput{
		Text:         "1234-5678-9012-3456",
		VisibleStart: intPtr(4),
		VisibleEnd:   intPtr(4),
		Sensitivity:  "high",
	})
	if err != nil {
		t.Fatalf("handleMask: %v", err)
	}
	if out.Masked != "1234***********3456" {
		t.Errorf("Masked = %q", out.Masked)
	}
}

func TestHandleRedact(t *testing.T) {
	dir := t.TempDir()
	rulesPath := filepath.Join(dir, "rules.yaml")
	doc := `rules:
  "\\d+":
    visible_start: 0
    visible_end: 0
    sensitivity: high
`
	if err := os.WriteFile(rulesPath, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	s := NewServer()
	_, out, err := s.handleRedact(context.Background(), nil, RedactInput{
		Text:      "order 12345 shipped",
		RulesFile: rulesPath,
	})
	if err != nil {
		t.Fatalf("handleRedact: %v", err)
	}
	if out.Redacted != "order ***** shipped" {
		t.Errorf("Redacted = %q", out.Redacted)
	}
	if out.Matches != 1 {
		t.Errorf("Matches = %d, want 1", out.Matches)
	}
	if len(out.RuleErrors) != 0 {
		t.Errorf("RuleErrors = %v", out.RuleErrors)
	}
}

func TestHandleRedact_BadRuleSurfacesAsRuleError(t *testing.T) {
	dir := t.TempDir()
	rulesPath := filepath.Join(dir, "rules.yaml")
	doc := `rules:
  "([":
    name: broken
  "\\d+":
    visible_start: 0
    visible_end: 0
    sensitivity: high
`
	if err := os.WriteFile(rulesPath, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	s := NewServer()
	_, out, err := s.handleRedact(context.Background(), nil, RedactInput{
		Text:      "pin 9876",
		RulesFile: rulesPath,
	})
	if err != nil {
		t.Fatalf("handleRedact: %v", err)
	}
	if out.Redacted != "pin ****" {
		t.Errorf("Redacted = %q", out.Redacted)
	}
	if len(out.RuleErrors) != 1 || !strings.Contains(out.RuleErrors[0], "broken") {
		t.Errorf("RuleErrors = %v", out.RuleErrors)
	}
}

func TestHandleRedact_MissingRulesFile(t *testing.T) {
	s := NewServer()
	_, _, err := s.handleRedact(context.Background(), nil, RedactInput{
		Text:      "anything",
		RulesFile: filepath.Join(t.TempDir(), "absent.yaml"),
	})
	if err == nil {
		t.Fatal("expected error for missing rules file")
	}
	if !strings.Contains(err.Error(), "loading rules") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestHandleDigest_DefaultAlgorithm(t *testing.T) {
	s := NewServer()

	_, out, err := s.handleDigest(context.Background(), nil, DigestInput{Text: "abc"})
	if err != nil {
		t.Fatalf("handleDigest: %v", err)
	}
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if out.Digest != want {
		t.Errorf("Digest = %s, want %s", out.Digest, want)
	}
}

func TestHandleDigest_SaltedSHA512(t *testing.T) {
	s := NewServer()

	_, salted, err := s.handleDigest(context.Background(), nil, DigestInput{
		Text: "abc", Algorithm: "sha512", Salt: "s",
	})
	if err != nil {
		t.Fatalf("handleDigest: %v", err)
	}
	_, concat, err := s.handleDigest(context.Background(), nil, DigestInput{
		Text: "sabc", Algorithm: "sha512",
	})
	if err != nil {
		t.Fatal(err)
	}
	if salted.Digest != concat.Digest {
		t.Errorf("salted digest should equal digest of salt+input")
	}
}

func TestHandleDigest_UnknownAlgorithm(t *testing.T) {
	s := NewServer()
	_, _, err := s.handleDigest(context.Background(), nil, DigestInput{
		Text: "abc", Algorithm: "md5",
	})
	if err == nil {
		t.Fatal("expected error for unsupported algorithm")
	}
}

func TestHandleRandomString(t *testing.T) {
	s := NewServer()

	// Empty charset defaults to alphanumeric
	_, out, err := s.handleRandomString(context.Background(), nil, RandomStringInput{Length: 24})
	if err != nil {
		t.Fatalf("handleRandomString: %v", err)
	}
	if len(out.Value) != 24 {
		t.Errorf("len = %d, want 24", len(out.Value))
	}

	_, hexOut, err := s.handleRandomString(context.Background(), nil, RandomStringInput{
		Length: 16, Charset: "hex",
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range hexOut.Value {
		if !strings.ContainsRune("0123456789abcdef", r) {
			t.Errorf("character %q outside hex charset", r)
		}
	}
}

func TestHandleRandomString_Errors(t *testing.T) {
	s := NewServer()

	if _, _, err := s.handleRandomString(context.Background(), nil, RandomStringInput{Length: 0}); err == nil {
		t.Error("expected error for zero length")
	}
	if _, _, err := s.handleRandomString(context.Background(), nil, RandomStringInput{
		Length: 8, Charset: "base64",
	}); err == nil {
		t.Error("expected error for unsupported charset")
	}
}
