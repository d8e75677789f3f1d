package validation

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidatePathWithinRoot validates that a constructed path stays within the
// root directory. Certificate material is written through this check so a
// hostile domain string cannot place files outside the TLS directory.
func ValidatePathWithinRoot(rootDir, fullPath string) error {
	cleanRoot := filepath.Clean(rootDir)
	cleanPath := filepath.Clean(fullPath)

	if !strings.HasPrefix(cleanPath, cleanRoot+string(filepath.Separator)) && cleanPath != cleanRoot {
		return fmt.Errorf("path escapes root directory")
	}

	return nil
}
