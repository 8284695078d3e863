package epub

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/h2non/filetype"
	"go.uber.org/zap"
)

// sniffLen is enough for every matcher filetype has.
const sniffLen = 262

// Assets copies files referenced by the book into staging content
// directory. Every source gets exactly one destination name for the lifetime
// of an export and destination names never clash.
type Assets struct {
	folder     string
	contentDir string
	sniff      bool
	log        *zap.Logger

	bySource map[string]string // cleaned source path -> destination
	used     map[string]string // lower case destination -> source
	renamed  map[string]string // name as referenced -> destination, only when they differ
}

func NewAssets(folder, contentDir string, sniff bool, log *zap.Logger) *Assets {
	a := &Assets{
		folder:     folder,
		contentDir: contentDir,
		sniff:      sniff,
		log:        log.Named("assets"),
	}
	a.Reset()
	return a
}

// Reset forgets all assignments, staging directory content is not touched.
func (a *Assets) Reset() {
	a.bySource = make(map[string]string)
	a.used = make(map[string]string)
	a.renamed = make(map[string]string)
}

// Copy places file into staging directory and returns its archive name
// relative to content directory. Second result is false when the source was
// already copied before.
func (a *Assets) Copy(src string) (string, bool, error) {
	src = a.source(src)
	return a.copyAs(src, a.reference(src))
}

// CopyAs is Copy for files markup refers to by name rather than by
// location, stylesheets for example. Destination is derived from name.
func (a *Assets) CopyAs(src, name string) (string, bool, error) {
	return a.copyAs(a.source(src), name)
}

func (a *Assets) source(src string) string {
	if !filepath.IsAbs(src) {
		src = filepath.Join(a.folder, src)
	}
	return filepath.Clean(src)
}

func (a *Assets) copyAs(src, ref string) (string, bool, error) {
	if dest, ok := a.bySource[src]; ok {
		return dest, false, nil
	}

	in, err := os.Open(src)
	if err != nil {
		return "", false, notFound(ref, 0, err)
	}
	defer in.Close()
	if fi, err := in.Stat(); err != nil || fi.IsDir() {
		if err == nil {
			err = fs.ErrInvalid
		}
		return "", false, notFound(ref, 0, err)
	}

	dest := a.assign(src, ref)
	if err := a.write(dest, in); err != nil {
		return "", false, err
	}
	return dest, true, nil
}

// AddData stores generated or embedded content under name as if it was a
// file from the book folder.
func (a *Assets) AddData(name string, data []byte) (string, bool, error) {
	key := "\x00" + name
	if dest, ok := a.bySource[key]; ok {
		return dest, false, nil
	}
	dest := a.assign(key, name)
	if err := a.write(dest, bytes.NewReader(data)); err != nil {
		return "", false, err
	}
	return dest, true, nil
}

// Reserve keeps name for a document generated later with AddData, no book
// file is given that name.
func (a *Assets) Reserve(name string) {
	a.used[strings.ToLower(name)] = "\x00" + name
}

// Renamed returns destination for the name as markup references it, if it
// had to be changed.
func (a *Assets) Renamed(ref string) (string, bool) {
	dest, ok := a.renamed[ref]
	return dest, ok
}

// Path returns absolute location of staged file.
func (a *Assets) Path(dest string) string {
	return filepath.Join(a.contentDir, filepath.FromSlash(dest))
}

// reference is the name markup uses for the source: path relative to book
// folder or simply base name for files coming from elsewhere.
func (a *Assets) reference(src string) string {
	if rel, err := filepath.Rel(a.folder, src); err == nil && !strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel) {
		return filepath.ToSlash(rel)
	}
	return filepath.Base(src)
}

func (a *Assets) assign(key, ref string) string {
	candidate := strings.ReplaceAll(ref, " ", "_")
	ext := path.Ext(candidate)
	stem := strings.TrimSuffix(candidate, ext)

	dest := candidate
	for n := 1; ; n++ {
		owner, taken := a.used[strings.ToLower(dest)]
		if !taken || owner == key {
			break
		}
		dest = stem + strconv.Itoa(n) + ext
	}
	a.used[strings.ToLower(dest)] = key
	a.bySource[key] = dest
	if dest != ref {
		a.renamed[ref] = dest
		a.log.Debug("Asset renamed", zap.String("from", ref), zap.String("to", dest))
	}
	return dest
}

func (a *Assets) write(dest string, r io.Reader) error {
	target := a.Path(dest)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return ioError(dest, err)
	}
	out, err := os.Create(target)
	if err != nil {
		return ioError(dest, err)
	}
	defer out.Close()

	var head []byte
	if a.sniff {
		head = make([]byte, sniffLen)
		n, err := io.ReadFull(r, head)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			return ioError(dest, fmt.Errorf("unable to read source: %w", err))
		}
		head = head[:n]
		a.checkKind(dest, head)
		if _, err := out.Write(head); err != nil {
			return ioError(dest, err)
		}
	}
	if _, err := io.Copy(out, r); err != nil {
		return ioError(dest, err)
	}
	if err := out.Close(); err != nil {
		return ioError(dest, err)
	}
	return nil
}

// checkKind complains when image content does not match its extension,
// some readers refuse such images.
func (a *Assets) checkKind(dest string, head []byte) {
	if !filetype.IsImage(head) {
		return
	}
	kind, err := filetype.Match(head)
	if err != nil || kind == filetype.Unknown {
		return
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(dest)), ".")
	if ext == "jpeg" {
		ext = "jpg"
	}
	if ext != kind.Extension {
		a.log.Warn("Image content does not match its extension",
			zap.String("file", dest), zap.String("detected", kind.MIME.Value))
	}
}
