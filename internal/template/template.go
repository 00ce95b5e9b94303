// internal/template/template.go
package template

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var templateVar = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Expand replaces {{variable}} placeholders with values from data
func Expand(tmpl string, data map[string]any) string {
	return templateVar.ReplaceAllStringFunc(tmpl, func(match string) string {
		varName := match[2 : len(match)-2]
		if val, ok := data[varName]; ok {
			return fmt.Sprintf("%v", val)
		}
		// Unknown variables expand to nothing rather than leaking the
		// placeholder into a file path.
		return ""
	})
}

// OutputPath expands an output template against a source file path.
// Available variables: {{path}} (full source path), {{dir}}, {{base}}
// (file name with extension), {{name}} (file name without extension),
// {{ext}} (extension including the dot). An empty template means the
// source path itself, i.e. in-place redaction.
func OutputPath(tmpl, src string) string {
	if tmpl == "" {
		return src
	}
	base := filepath.Base(src)
	ext := filepath.Ext(base)
	return Expand(tmpl, map[string]any{
		"path": src,
		"dir":  filepath.Dir(src),
		"base": base,
		"name": strings.TrimSuffix(base, ext),
		"ext":  ext,
	})
}
