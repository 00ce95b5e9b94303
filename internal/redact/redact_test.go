// internal/redact/redact_test.go
package redact

import (
	"strings"
	"testing"

	"github.com/veilproject/veil/internal/mask"
)

func fullMask(maskChar string) mask.Config {
	return mask.Config{Sensitivity: mask.SensitivityHigh, MaskChar: maskChar}
}

func TestRedact_EmptyRuleSet(t *testing.T) {
	text := "nothing to hide here"
	got, errs := Redact(text, nil)
	if got != text {
		t.Errorf("empty rule set changed text: %q", got)
	}
	if len(errs) != 0 {
		t.Errorf("unexpected errors: %v", errs)
	}
}

func TestRedact_ZeroMatchesIsNoOp(t *testing.T) {
	rules := RuleSet{{Pattern: `\d{10}`, Mask: mask.DefaultConfig()}}
	text := "no long digit runs"
	got, errs := Redact(text, rules)
	if got != text {
		t.Errorf("zero-match rule changed text: %q", got)
	}
	if len(errs) != 0 {
		t.Errorf("unexpected errors: %v", errs)
	}
}

func TestRedact_CardAndEmail(t *testing.T) {
	text := "My credit card is 1234-5678-9012-3456 and my email is test@example.com"

	cardCfg := mask.DefaultConfig()
	cardCfg.VisibleStart = 4
	cardCfg.VisibleEnd = 4

	emailCfg := mask.DefaultConfig()
	emailCfg.Sensitivity = mask.SensitivityHigh

	rules := RuleSet{
		{Name: "card", Pattern: `\d{4}-\d{4}-\d{4}-\d{4}`, Mask: cardCfg},
		{Name: "email", Pattern: `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`, Mask: emailCfg},
	}

	got, errs := Redact(text, rules)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}

	// Card: hidden span 11 at medium -> round(7.7) = 8 mask chars.
	// Email: hidden span 12 at high, default 2/2 boundary.
	want := "My credit card is 1234********3456 and my email is te************om"
	if got != want {
		t.Errorf("Redact = %q, want %q", got, want)
	}
}

func TestRedact_InvalidRuleDoesNotAbort(t *testing.T) {
	rules := RuleSet{
		{Name: "broken", Pattern: `([`, Mask: mask.DefaultConfig()},
		{Name: "digits", Pattern: `\d+`, Mask: fullMask("*")},
	}

	got, errs := Redact("order 12345 shipped", rules)
	if len(errs) != 1 {
		t.Fatalf("expected 1 rule error, got %d", len(errs))
	}
	if errs[0].Rule != "broken" {
		t.Errorf("wrong rule reported: %q", errs[0].Rule)
	}
	if strings.Contains(got, "12345") {
		t.Errorf("valid rule was not applied: %q", got)
	}
	if got != "order ***** shipped" {
		t.Errorf("Redact = %q", got)
	}
}

func TestRedact_SequentialApplication(t *testing.T) {
	// The second rule matches mask characters the first rule inserted,
	// proving rules see the evolving text rather than independent copies.
	rules := RuleSet{
		{Pattern: `\d{4}`, Mask: fullMask("X")},
		{Pattern: `XXXX`, Mask: fullMask("Y")},
	}

	got, errs := Redact("abcd1234efgh", rules)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if got != "abcdYYYYefgh" {
		t.Errorf("Redact = %q, want %q", got, "abcdYYYYefgh")
	}
}

func TestRedact_MultipleMatchesPerRule(t *testing.T) {
	rules := RuleSet{{Pattern: `\d{3}`, Mask: fullMask("#")}}

	out := Apply("a 111 b 222 c 333", rules)
	if out.Matches != 3 {
		t.Errorf("expected 3 matches, got %d", out.Matches)
	}
	if out.Text != "a ### b ### c ###" {
		t.Errorf("Apply = %q", out.Text)
	}
}

func TestRedact_MaskOutputNotReinterpreted(t *testing.T) {
	// The replacement is textual; a mask literal that looks like regex
	// syntax must not break the substitution.
	cfg := fullMask("$1")
	rules := RuleSet{{Pattern: `secret`, Mask: cfg}}

	got, errs := Redact("my secret value", rules)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if !strings.Contains(got, "$1") {
		t.Errorf("mask literal was reinterpreted: %q", got)
	}
}

func TestRedact_GeneratorPanicIsPerRuleError(t *testing.T) {
	panicCfg := mask.DefaultConfig()
	panicCfg.Generator = mask.GeneratorFunc(func(int) string {
		panic("generator exploded")
	})

	rules := RuleSet{
		{Name: "panics", Pattern: `\d+`, Mask: panicCfg},
		{Name: "letters", Pattern: `[a-z]{5}`, Mask: fullMask("*")},
	}

	got, errs := Redact("abcde 12345", rules)
	if len(errs) != 1 {
		t.Fatalf("expected 1 rule error, got %d: %v", len(errs), errs)
	}
	if errs[0].Rule != "panics" {
		t.Errorf("wrong rule reported: %q", errs[0].Rule)
	}
	// The panicking rule contributes nothing; the next rule still runs
	if got != "***** 12345" {
		t.Errorf("Redact = %q", got)
	}
}

func TestValidate(t *testing.T) {
	rules := RuleSet{
		{Name: "good", Pattern: `\d+`},
		{Name: "bad", Pattern: `(`},
		{Pattern: `*also bad`},
	}

	errs := Validate(rules)
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(errs))
	}
	if errs[0].Rule != "bad" {
		t.Errorf("first error rule = %q", errs[0].Rule)
	}
	// Unnamed rules are identified by their pattern
	if errs[1].Rule != `*also bad` {
		t.Errorf("second error rule = %q", errs[1].Rule)
	}
}
