// internal/mask/mask.go
package mask

import (
	"math"
	"strings"
)

// Sensitivity controls what fraction of the hidden span is replaced
// with mask characters.
type Sensitivity string

const (
	SensitivityLow    Sensitivity = "low"
	SensitivityMedium Sensitivity = "medium"
	SensitivityHigh   Sensitivity = "high"
)

// sensitivityRatios maps each level to the fraction of the hidden span
// that gets masked. Unrecognized levels fall back to medium rather than
// erroring — masking never fails on configuration.
var sensitivityRatios = map[Sensitivity]float64{
	SensitivityLow:    0.3,
	SensitivityMedium: 0.7,
	SensitivityHigh:   1.0,
}

// Ratio returns the masking fraction for a sensitivity level, falling
// back to medium for unknown levels.
func (s Sensitivity) Ratio() float64 {
	if r, ok := sensitivityRatios[s]; ok {
		return r
	}
	return sensitivityRatios[SensitivityMedium]
}

// Generator produces a replacement string for a hidden span. The result
// is used verbatim; implementations are trusted (but not required) to
// return a string of the requested length.
type Generator interface {
	GenerateMask(length int) string
}

// GeneratorFunc adapts a plain function to the Generator interface.
type GeneratorFunc func(length int) string

func (f GeneratorFunc) GenerateMask(length int) string { return f(length) }

const (
	// DefaultVisible is the default number of characters kept verbatim
	// at each end of the input.
	DefaultVisible = 2
	// DefaultMaskChar is the literal repeated over the masked span when
	// no Generator is configured.
	DefaultMaskChar = "*"
)

// Config describes how a single string is masked. The zero value is not
// useful; construct with DefaultConfig and override fields as needed.
type Config struct {
	// VisibleStart and VisibleEnd are rune counts kept verbatim at the
	// start and end of the input. Negative values are treated as the
	// default by Normalize.
	VisibleStart int
	VisibleEnd   int

	// MaskChar is the literal repeated maskedLength times. Multi-rune
	// strings are repeated whole, so the output can be longer than the
	// requested span.
	MaskChar string

	Sensitivity Sensitivity

	// Generator, when non-nil, produces the masked part instead of
	// repeating MaskChar.
	Generator Generator
}

// DefaultConfig returns the documented defaults: 2 visible runes at each
// end, "*" as the mask literal, medium sensitivity.
func DefaultConfig() Config {
	return Config{
		VisibleStart: DefaultVisible,
		VisibleEnd:   DefaultVisible,
		MaskChar:     DefaultMaskChar,
		Sensitivity:  SensitivityMedium,
	}
}

// Normalize returns a copy of the config with out-of-range fields
// replaced by their defaults. Boundary validation lives here so Mask
// itself stays a straight transform.
func (c Config) Normalize() Config {
	if c.VisibleStart < 0 {
		c.VisibleStart = DefaultVisible
	}
	if c.VisibleEnd < 0 {
		c.VisibleEnd = DefaultVisible
	}
	if c.MaskChar == "" {
		c.MaskChar = DefaultMaskChar
	}
	if c.Sensitivity == "" {
		c.Sensitivity = SensitivityMedium
	}
	return c
}

// Mask obscures the middle of input, keeping cfg.VisibleStart runes at
// the front and cfg.VisibleEnd runes at the back. The hidden span is
// replaced by round(hiddenSpan * ratio) mask characters, rounding half
// away from zero. When the ratio is below 1.0 the uncovered hidden
// characters are dropped, not padded, so the result can be shorter than
// the input.
//
// If the visible prefix and suffix cover the whole input the string is
// returned unchanged. Mask never fails: malformed configuration
// degrades to the defaults.
func Mask(input string, cfg Config) string {
	cfg = cfg.Normalize()

	runes := []rune(input)
	n := len(runes)
	if cfg.VisibleStart+cfg.VisibleEnd >= n {
		return input
	}

	hiddenSpan := n - cfg.VisibleStart - cfg.VisibleEnd
	maskedLength := int(math.Round(float64(hiddenSpan) * cfg.Sensitivity.Ratio()))

	var maskedPart string
	if cfg.Generator != nil {
		maskedPart = cfg.Generator.GenerateMask(maskedLength)
	} else {
		maskedPart = strings.Repeat(cfg.MaskChar, maskedLength)
	}

	return string(runes[:cfg.VisibleStart]) + maskedPart + string(runes[n-cfg.VisibleEnd:])
}
