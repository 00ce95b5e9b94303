// internal/trigger/paths.go
package trigger

import (
	"os"
	"path/filepath"
	"strings"
)

// expandHome resolves a leading ~ to the current user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
