//go:build !windows

package epub

import (
	"os"
)

// replaceFile atomically moves finished archive into place.
func replaceFile(from, to string) error {
	return os.Rename(from, to)
}

// syncDir persists directory entry after rename.
func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
