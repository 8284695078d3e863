// Package archive handles zip files on both ends of conversion: zipped book
// folders on input and produced EPUB containers on output.
package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// WalkFunc is called for each file in archive satisfying match condition.
// If an error is returned, processing stops.
type WalkFunc func(archive string, file *zip.File) error

// Walk visits all regular files in the archive for which match returns true
// (nil match visits everything). Archives having entries with absolute paths
// or path traversal components are rejected as a whole.
func Walk(archive string, match func(name string) bool, walkFn WalkFunc) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		if !isSafePath(f.Name) {
			return fmt.Errorf("zip entry %q: unsafe path (absolute or contains path traversal)", f.Name)
		}
		if f.FileInfo().IsDir() {
			continue
		}
		if match != nil && !match(f.Name) {
			continue
		}
		if err := walkFn(archive, f); err != nil {
			return err
		}
	}
	return nil
}

// Extract unpacks archive into dest directory, which is created if
// necessary.
func Extract(ctx context.Context, archive, dest string) error {
	return Walk(archive, nil, func(_ string, f *zip.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		target := filepath.Join(dest, filepath.FromSlash(f.Name))
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		return extractFile(f, target)
	})
}

func extractFile(f *zip.File, target string) error {
	in, err := f.Open()
	if err != nil {
		return fmt.Errorf("unable to open zip entry %q: %w", f.Name, err)
	}
	defer in.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("unable to extract zip entry %q: %w", f.Name, err)
	}
	return out.Close()
}

// isSafePath returns false for paths that could escape the extraction
// directory: absolute paths and those containing ".." components.
func isSafePath(name string) bool {
	if path.IsAbs(name) || strings.HasPrefix(name, `\`) || filepath.VolumeName(name) != "" {
		return false
	}
	for _, part := range strings.FieldsFunc(name, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return false
		}
	}
	return true
}
