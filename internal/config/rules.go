// internal/config/rules.go
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/veilproject/veil/internal/mask"
	"github.com/veilproject/veil/internal/redact"
)

// MaskOptions is the per-pattern configuration block in a rules file.
// Every field is optional; unset fields take the masking defaults.
// Pointers distinguish an explicit 0 from an absent key.
type MaskOptions struct {
	Name         string `yaml:"name"`
	VisibleStart *int   `yaml:"visible_start"`
	VisibleEnd   *int   `yaml:"visible_end"`
	Sensitivity  string `yaml:"sensitivity"`
	MaskChar     string `yaml:"mask_char"`
}

// rulesFile is the top-level shape of a rules document. The rules
// mapping itself is kept as a raw node so key order survives decoding;
// a plain Go map would shuffle it.
type rulesFile struct {
	Rules yaml.Node `yaml:"rules"`
}

// LoadRules reads a rules file and returns the rule set in document
// order. Patterns are not compiled here; the redaction pipeline handles
// invalid patterns per rule.
func LoadRules(path string) (redact.RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	rules, err := ParseRules(data)
	if err != nil {
		return nil, fmt.Errorf("parsing rules file %s: %w", path, err)
	}
	return rules, nil
}

// ParseRules parses a YAML rules document. The rules: key must hold a
// mapping of regex pattern to MaskOptions; the order of entries becomes
// the order of rule application. Duplicate patterns are an error since
// the second entry would silently shadow the first.
func ParseRules(data []byte) (redact.RuleSet, error) {
	var doc rulesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	if doc.Rules.Kind == 0 || doc.Rules.Tag == "!!null" {
		return nil, nil
	}
	if doc.Rules.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("rules must be a mapping of pattern to options")
	}

	seen := make(map[string]bool)
	var rules redact.RuleSet

	// Mapping nodes store key/value pairs flattened into Content.
	for i := 0; i+1 < len(doc.Rules.Content); i += 2 {
		keyNode := doc.Rules.Content[i]
		valNode := doc.Rules.Content[i+1]

		pattern := keyNode.Value
		if seen[pattern] {
			return nil, fmt.Errorf("duplicate rule pattern %q (line %d)", pattern, keyNode.Line)
		}
		seen[pattern] = true

		var opts MaskOptions
		if valNode.Tag != "!!null" {
			if err := valNode.Decode(&opts); err != nil {
				return nil, fmt.Errorf("rule %q: %w", pattern, err)
			}
		}

		rules = append(rules, redact.Rule{
			Name:    opts.Name,
			Pattern: pattern,
			Mask:    opts.MaskConfig(),
		})
	}

	return rules, nil
}

// MaskConfig converts the YAML options to a mask.Config, filling unset
// fields with the documented defaults. Unknown sensitivity values are
// passed through; the masking table falls back to medium for them.
func (o MaskOptions) MaskConfig() mask.Config {
	cfg := mask.DefaultConfig()
	if o.VisibleStart != nil {
		cfg.VisibleStart = *o.VisibleStart
	}
	if o.VisibleEnd != nil {
		cfg.VisibleEnd = *o.VisibleEnd
	}
	if o.Sensitivity != "" {
		cfg.Sensitivity = mask.Sensitivity(o.Sensitivity)
	}
	if o.MaskChar != "" {
		cfg.MaskChar = o.MaskChar
	}
	return cfg.Normalize()
}
