// internal/redact/redact.go
package redact

import (
	"fmt"
	"regexp"

	"github.com/veilproject/veil/internal/mask"
)

// Rule pairs a regular-expression pattern with the masking configuration
// applied to each of its matches. Name is optional and only used in
// error reporting and logs; when empty the pattern identifies the rule.
type Rule struct {
	Name    string
	Pattern string
	Mask    mask.Config
}

func (r Rule) label() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Pattern
}

// RuleSet is an ordered list of rules. Order matters: rules are applied
// sequentially over the evolving text, so later rules see the output of
// earlier ones (including any mask characters they inserted).
type RuleSet []Rule

// RuleError reports a single rule that could not be applied. One bad
// rule never aborts a redaction; the remaining rules still run.
type RuleError struct {
	Rule    string
	Pattern string
	Err     error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %q: %v", e.Rule, e.Err)
}

func (e *RuleError) Unwrap() error { return e.Err }

// Outcome is the result of applying a rule set to a text buffer.
type Outcome struct {
	Text    string
	Matches int
	Errors  []*RuleError
}

// Apply folds the rule set over text: each rule compiles its pattern,
// finds all non-overlapping matches left to right, and substitutes each
// match with its masked form. The substitution is plain text replacement;
// the match is never re-interpreted as a pattern. Rules that fail to
// compile (or whose mask generator panics) are recorded and skipped.
func Apply(text string, rules RuleSet) Outcome {
	out := Outcome{Text: text}
	for _, rule := range rules {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			out.Errors = append(out.Errors, &RuleError{Rule: rule.label(), Pattern: rule.Pattern, Err: err})
			continue
		}

		replaced, matches, err := applyRule(out.Text, re, rule.Mask)
		if err != nil {
			out.Errors = append(out.Errors, &RuleError{Rule: rule.label(), Pattern: rule.Pattern, Err: err})
			continue
		}
		out.Text = replaced
		out.Matches += matches
	}
	return out
}

// Redact applies the rule set to text and returns the transformed text
// plus any per-rule errors. An empty rule set returns text unchanged.
func Redact(text string, rules RuleSet) (string, []*RuleError) {
	out := Apply(text, rules)
	return out.Text, out.Errors
}

// applyRule runs one rule's substitution pass. A panic from a custom
// mask generator is converted to an error and the text is left as it
// was before this rule.
func applyRule(text string, re *regexp.Regexp, cfg mask.Config) (result string, matches int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mask generator panicked: %v", r)
		}
	}()

	result = re.ReplaceAllStringFunc(text, func(m string) string {
		matches++
		return mask.Mask(m, cfg)
	})
	return result, matches, nil
}

// Validate compiles every pattern in the rule set and reports the ones
// that fail. It applies nothing.
func Validate(rules RuleSet) []*RuleError {
	var errs []*RuleError
	for _, rule := range rules {
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			errs = append(errs, &RuleError{Rule: rule.label(), Pattern: rule.Pattern, Err: err})
		}
	}
	return errs
}
