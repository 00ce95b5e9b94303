// internal/redact/file.go
package redact

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// Report summarizes one file redaction. Digest is the sha256 of the
// written output, used by the daemon to recognize already-redacted
// content on later events.
type Report struct {
	Source     string
	Dest       string
	Matches    int
	RuleErrors []*RuleError
	BytesIn    int
	BytesOut   int
	Digest     string
	Duration   time.Duration
}

// RedactFile reads src, applies the rule set in memory, and writes the
// result to dst in a single write. An empty dst means in-place overwrite
// of src. All rule application happens before the write, so a write
// failure leaves the destination untouched; there is no rollback to
// perform. Per-rule failures are carried in the Report and do not fail
// the call.
func RedactFile(src, dst string, rules RuleSet) (*Report, error) {
	if dst == "" {
		dst = src
	}

	started := time.Now()

	data, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", src, err)
	}

	out := Apply(string(data), rules)

	// Carry the source file's permission bits to the destination;
	// redacted copies of restricted files must not end up world-readable.
	mode := fs.FileMode(0644)
	if info, err := os.Stat(src); err == nil {
		mode = info.Mode().Perm()
	}

	if err := os.WriteFile(dst, []byte(out.Text), mode); err != nil {
		return nil, fmt.Errorf("writing %s: %w", dst, err)
	}

	sum := sha256.Sum256([]byte(out.Text))

	return &Report{
		Source:     src,
		Dest:       dst,
		Matches:    out.Matches,
		RuleErrors: out.Errors,
		BytesIn:    len(data),
		BytesOut:   len(out.Text),
		Digest:     hex.EncodeToString(sum[:]),
		Duration:   time.Since(started),
	}, nil
}
