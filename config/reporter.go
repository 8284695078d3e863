package config

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"time"

	"github.com/maruel/natural"

	"bloomepub/misc"
)

type ReporterConfig struct {
	Destination string `yaml:"destination" sanitize:"path_clean,assure_dir_exists_for_file" validate:"required,filepath"`
}

// Prepare opens debug archive. When destination cannot be created archive
// goes to temporary directory, Name tells where.
func (conf *ReporterConfig) Prepare() (*Report, error) {
	f, err := os.Create(conf.Destination)
	if err != nil {
		if f, err = os.CreateTemp("", misc.TempPattern("report.*.zip")); err != nil {
			return nil, fmt.Errorf("unable to create report: %w", err)
		}
	}
	return &Report{entries: make(map[string]entry), file: f}, nil
}

// entry is a single item of the archive. Exactly one of data or path is
// used when archive is written.
type entry struct {
	source string // location as given by caller
	path   string // absolute location read when archive is written
	data   []byte
	stamp  time.Time
	// snapshot directory made by StoreCopy, removed on Close
	snapshot string
}

// Report collects what is needed to investigate a conversion: effective
// configuration, logs, book summary, staging directory and resulting epub.
// Nil report is valid and ignores everything, so callers never check whether
// reporting was requested. Not safe for concurrent use.
type Report struct {
	entries map[string]entry
	file    *os.File
}

// StoreConfig keeps processed configuration under config/.
func (r *Report) StoreConfig(name string, data []byte) {
	r.StoreData(path.Join("config", name), data)
}

// StoreLog keeps log file which is still being written to.
func (r *Report) StoreLog(name, file string) {
	r.Store(name+".log", file)
}

// StoreBook keeps textual summary of the loaded book.
func (r *Report) StoreBook(id, summary string) {
	r.StoreData("book-"+id+".txt", []byte(summary))
}

// StoreResult keeps produced epub.
func (r *Report) StoreResult(id, file string) {
	r.Store("result-"+id+".epub", file)
}

// StoreStaging snapshots epub staging directory, which is removed as soon as
// the book is packed.
func (r *Report) StoreStaging(dir string) error {
	return r.StoreCopy("staging", dir)
}

// Store remembers file or directory to be read when archive is written.
// Storing different location under the same name is a programming error.
func (r *Report) Store(name, file string) {
	if r == nil {
		return
	}
	if old, exists := r.entries[name]; exists && old.source != file {
		panic(fmt.Sprintf("report entry [%s] already refers to %s, not %s", name, old.source, file))
	}
	e := entry{source: file, path: file}
	if p, err := filepath.Abs(file); err == nil {
		e.path = p
	}
	r.entries[name] = e
}

// StoreData puts data into archive as a file.
func (r *Report) StoreData(name string, data []byte) {
	if r == nil {
		return
	}
	if _, exists := r.entries[name]; exists {
		panic(fmt.Sprintf("report entry [%s] already has data", name))
	}
	r.entries[name] = entry{data: data, stamp: time.Now()}
}

// StoreCopy snapshots file or directory as it is at the moment of the call.
// Repeated names get a timestamp suffix.
func (r *Report) StoreCopy(name, file string) error {
	if r == nil {
		return nil
	}

	e := entry{source: file, stamp: time.Now()}
	abs, err := filepath.Abs(file)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return err
	}
	if _, exists := r.entries[name]; exists {
		name = fmt.Sprintf("%s-%d", name, e.stamp.UnixNano())
	}

	if e.snapshot, err = os.MkdirTemp("", misc.TempPattern("r-")); err != nil {
		return err
	}
	switch {
	case info.Mode().IsRegular():
		e.path = filepath.Join(e.snapshot, filepath.Base(abs))
		err = copyFile(e.path, abs, info.ModTime())
	case info.IsDir():
		e.path = e.snapshot
		err = walkFiles(abs, func(rel, src string, info fs.FileInfo) error {
			return copyFile(filepath.Join(e.snapshot, rel), src, info.ModTime())
		})
	}
	if err != nil {
		os.RemoveAll(e.snapshot)
		return err
	}
	r.entries[name] = e
	return nil
}

// Name returns absolute location of the archive.
func (r *Report) Name() string {
	if r == nil || r.file == nil {
		return ""
	}
	if n, err := filepath.Abs(r.file.Name()); err == nil {
		return n
	}
	return r.file.Name()
}

// Close writes archive and removes snapshots.
func (r *Report) Close() error {
	if r == nil || r.file == nil {
		return nil
	}
	defer r.file.Close()
	defer func() {
		for _, e := range r.entries {
			if len(e.snapshot) > 0 {
				os.RemoveAll(e.snapshot)
			}
		}
	}()
	return r.write()
}

// write produces archive with MANIFEST first, entries follow in manifest
// order. Locations which disappeared are silently skipped.
func (r *Report) write() error {
	arc := zip.NewWriter(r.file)
	defer arc.Close()

	names, manifest := r.manifest()
	if err := addFile(arc, "MANIFEST", time.Now(), manifest); err != nil {
		return err
	}

	for _, name := range names {
		e := r.entries[name]
		if len(e.data) > 0 {
			if err := addFile(arc, name, e.stamp, bytes.NewReader(e.data)); err != nil {
				return err
			}
			continue
		}
		info, err := os.Stat(e.path)
		if err != nil {
			continue
		}
		if info.Mode().IsRegular() {
			err = addLocal(arc, name, e.path, info)
		} else if info.IsDir() {
			err = walkFiles(e.path, func(rel, src string, info fs.FileInfo) error {
				return addLocal(arc, path.Join(name, filepath.ToSlash(rel)), src, info)
			})
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// manifest lists entries one per line: time, name, location given by caller
// and location actually archived. Names are in natural order so staging
// snapshots follow each other.
func (r *Report) manifest() ([]string, *bytes.Buffer) {
	buf := new(bytes.Buffer)
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	slices.SortFunc(names, natural.Compare)

	now := time.Now()
	for _, name := range names {
		e := r.entries[name]
		stamp := e.stamp
		if stamp.IsZero() {
			stamp = now
		}
		fmt.Fprintf(buf, "%s\t%s\t%s : %s\n", stamp.UTC().Format(time.UnixDate), name, e.source, e.path)
	}
	return names, buf
}

// walkFiles calls fn for every regular file under dir with its path relative
// to dir. Links, sockets and the like are skipped.
func walkFiles(dir string, fn func(rel, src string, info fs.FileInfo) error) error {
	return filepath.WalkDir(dir, func(src string, d fs.DirEntry, err error) error {
		if err != nil || !d.Type().IsRegular() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, src)
		if err != nil {
			return err
		}
		return fn(rel, src, info)
	})
}

func copyFile(dst, src string, modTime time.Time) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0700); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, modTime, modTime)
}

func addLocal(arc *zip.Writer, name, src string, info fs.FileInfo) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	return addFile(arc, name, info.ModTime(), f)
}

func addFile(arc *zip.Writer, name string, t time.Time, src io.Reader) error {
	w, err := arc.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: t})
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}
