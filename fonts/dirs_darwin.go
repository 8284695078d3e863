package fonts

import (
	"os"
	"path/filepath"
)

// SystemDirs returns directories fonts are normally installed to.
func SystemDirs() []string {
	dirs := []string{"/System/Library/Fonts", "/Library/Fonts"}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, "Library", "Fonts"))
	}
	return dirs
}
