//go:build windows

package fonts

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/windows"
)

// SystemDirs returns directories fonts are normally installed to.
func SystemDirs() []string {
	var dirs []string
	if win, err := windows.GetWindowsDirectory(); err == nil {
		dirs = append(dirs, filepath.Join(win, "Fonts"))
	} else if win := os.Getenv("WINDIR"); win != "" {
		dirs = append(dirs, filepath.Join(win, "Fonts"))
	}
	// per user installation, Windows 10 1809 and later
	if local := os.Getenv("LOCALAPPDATA"); local != "" {
		dirs = append(dirs, filepath.Join(local, "Microsoft", "Windows", "Fonts"))
	}
	return dirs
}
