package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/beevik/etree"
	"go.uber.org/multierr"
)

const (
	epubMimetype  = "application/epub+zip"
	containerPath = "META-INF/container.xml"
)

// ErrInvalidContainer is wrapped by every problem VerifyEPUB finds.
var ErrInvalidContainer = errors.New("invalid EPUB container")

// VerifyEPUB checks the container invariants readers rely on. All problems
// found are returned combined.
func VerifyEPUB(name string) error {
	r, err := zip.OpenReader(name)
	if err != nil {
		return fmt.Errorf("unable to open %s: %w", name, err)
	}
	defer r.Close()

	var errs error
	problem := func(format string, args ...any) {
		errs = multierr.Append(errs, fmt.Errorf("%w: %s", ErrInvalidContainer, fmt.Sprintf(format, args...)))
	}

	if len(r.File) == 0 {
		problem("archive is empty")
		return errs
	}

	first := r.File[0]
	switch {
	case first.Name != "mimetype":
		problem("first entry is %q, not mimetype", first.Name)
	case first.Method != zip.Store:
		problem("mimetype is compressed")
	default:
		data, err := readEntry(first)
		if err != nil {
			problem("unable to read mimetype: %v", err)
		} else if string(data) != epubMimetype {
			problem("mimetype content is %q", data)
		}
	}

	entries := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		entries[f.Name] = f
		if !isSafePath(f.Name) {
			problem("entry %q has unsafe path", f.Name)
		}
		if strings.Contains(f.Name, " ") {
			problem("entry %q has space in its name", f.Name)
		}
	}

	container, ok := entries[containerPath]
	if !ok {
		problem("%s is missing", containerPath)
		return errs
	}
	rootfiles, err := containerRootfiles(container)
	if err != nil {
		problem("%s: %v", containerPath, err)
		return errs
	}
	if len(rootfiles) == 0 {
		problem("%s has no rootfile", containerPath)
	}
	for _, rf := range rootfiles {
		if _, ok := entries[path.Clean(rf)]; !ok {
			problem("rootfile %q is not in the archive", rf)
		}
	}
	return errs
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func containerRootfiles(f *zip.File) ([]string, error) {
	data, err := readEntry(f)
	if err != nil {
		return nil, err
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, err
	}
	var res []string
	for _, rf := range doc.FindElements("//rootfiles/rootfile") {
		res = append(res, rf.SelectAttrValue("full-path", ""))
	}
	return res, nil
}
