//go:build windows

package epub

import (
	"golang.org/x/sys/windows"
)

// replaceFile moves finished archive into place replacing existing file.
func replaceFile(from, to string) error {
	fromp, err := windows.UTF16PtrFromString(from)
	if err != nil {
		return err
	}
	top, err := windows.UTF16PtrFromString(to)
	if err != nil {
		return err
	}
	return windows.MoveFileEx(fromp, top, windows.MOVEFILE_REPLACE_EXISTING|windows.MOVEFILE_WRITE_THROUGH)
}

// syncDir is not available on Windows, MOVEFILE_WRITE_THROUGH covers it.
func syncDir(string) error { return nil }
