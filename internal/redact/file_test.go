// internal/redact/file_test.go
package redact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/veilproject/veil/internal/mask"
)

func TestRedactFile_InPlace(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(src, []byte("token 12345 end"), 0644); err != nil {
		t.Fatal(err)
	}

	rules := RuleSet{{Pattern: `\d+`, Mask: fullMask("*")}}

	report, err := RedactFile(src, "", rules)
	if err != nil {
		t.Fatalf("RedactFile: %v", err)
	}
	if report.Dest != src {
		t.Errorf("empty dst should default to in-place, got %q", report.Dest)
	}
	if report.Matches != 1 {
		t.Errorf("matches = %d, want 1", report.Matches)
	}

	data, err := os.ReadFile(src)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "token ***** end" {
		t.Errorf("file content = %q", string(data))
	}
}

func TestRedactFile_SeparateOutput(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.txt")
	dst := filepath.Join(dir, "out.txt")
	original := "secret abc123"
	if err := os.WriteFile(src, []byte(original), 0644); err != nil {
		t.Fatal(err)
	}

	rules := RuleSet{{Pattern: `[a-z]+\d+`, Mask: fullMask("#")}}

	report, err := RedactFile(src, dst, rules)
	if err != nil {
		t.Fatalf("RedactFile: %v", err)
	}

	// Source untouched
	data, _ := os.ReadFile(src)
	if string(data) != original {
		t.Errorf("source was modified: %q", string(data))
	}

	data, err = os.ReadFile(dst)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if string(data) != "secret ######" {
		t.Errorf("output content = %q", string(data))
	}

	if report.BytesIn != len(original) {
		t.Errorf("BytesIn = %d, want %d", report.BytesIn, len(original))
	}
	if report.BytesOut != len(data) {
		t.Errorf("BytesOut = %d, want %d", report.BytesOut, len(data))
	}
	if len(report.Digest) != 64 {
		t.Errorf("Digest should be a hex sha256, got %q", report.Digest)
	}
	if report.Duration <= 0 {
		t.Errorf("Duration not recorded: %v", report.Duration)
	}
}

func TestRedactFile_MissingSource(t *testing.T) {
	_, err := RedactFile(filepath.Join(t.TempDir(), "nope.txt"), "", nil)
	if err == nil {
		t.Fatal("expected error for missing source")
	}
}

func TestRedactFile_RuleErrorsSurfaceInReport(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(src, []byte("value 42"), 0644); err != nil {
		t.Fatal(err)
	}

	rules := RuleSet{
		{Name: "bad", Pattern: `(`, Mask: mask.DefaultConfig()},
		{Name: "good", Pattern: `\d+`, Mask: fullMask("*")},
	}

	report, err := RedactFile(src, "", rules)
	if err != nil {
		t.Fatalf("RedactFile: %v", err)
	}
	if len(report.RuleErrors) != 1 {
		t.Fatalf("expected 1 rule error, got %d", len(report.RuleErrors))
	}
	if report.RuleErrors[0].Rule != "bad" {
		t.Errorf("wrong rule reported: %q", report.RuleErrors[0].Rule)
	}

	data, _ := os.ReadFile(src)
	if string(data) != "value **" {
		t.Errorf("file content = %q", string(data))
	}
}
