package epub

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/beevik/etree"
	fixzip "github.com/hidez8891/zip"
	"github.com/maruel/natural"
	"go.uber.org/zap"

	"bloomepub/archive"
)

// packageOptions controls final archive assembly.
type packageOptions struct {
	fixZip bool
	verify bool
}

// writePackage zips staged content directory into EPUB container at dest.
// Archive is assembled next to destination and moved into place only when
// complete, nothing is left at dest on failure.
func writePackage(stagingDir, dest string, opts packageOptions, log *zap.Logger) (err error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return ioError(dest, fmt.Errorf("unable to create output directory: %w", err))
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return ioError(dest, fmt.Errorf("unable to create output file: %w", err))
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if err := writeArchive(tmp, stagingDir); err != nil {
		tmp.Close()
		return ioError(dest, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return ioError(dest, err)
	}
	if err := tmp.Close(); err != nil {
		return ioError(dest, fmt.Errorf("unable to finalize output file: %w", err))
	}

	if opts.fixZip {
		fixed, err := copyZipWithoutDataDescriptors(tmpName, dir, filepath.Base(dest))
		if err != nil {
			return ioError(dest, err)
		}
		os.Remove(tmpName)
		tmpName = fixed
	}

	if opts.verify {
		if err := archive.VerifyEPUB(tmpName); err != nil {
			return fmt.Errorf("produced archive is not valid: %w", err)
		}
		log.Debug("Archive verified", zap.String("file", tmpName))
	}

	if err := replaceFile(tmpName, dest); err != nil {
		return ioError(dest, fmt.Errorf("unable to move archive into place: %w", err))
	}
	if err := syncDir(dir); err != nil {
		log.Debug("Unable to sync output directory", zap.String("dir", dir), zap.Error(err))
	}
	return nil
}

func writeArchive(w io.Writer, stagingDir string) error {
	zw := zip.NewWriter(w)

	if err := writeMimetype(zw); err != nil {
		return fmt.Errorf("unable to write mimetype: %w", err)
	}
	if err := writeXMLToZip(zw, "META-INF/container.xml", renderContainer()); err != nil {
		return fmt.Errorf("unable to write container: %w", err)
	}

	files, err := stagedFiles(filepath.Join(stagingDir, contentDir))
	if err != nil {
		return err
	}
	for _, rel := range files {
		if err := writeFileToZip(zw, contentDir+"/"+rel, filepath.Join(stagingDir, contentDir, filepath.FromSlash(rel))); err != nil {
			return fmt.Errorf("unable to write %s: %w", rel, err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("unable to close output archive: %w", err)
	}
	return nil
}

// stagedFiles lists content directory in natural order using slash
// separated relative names.
func stagedFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("unable to list staging directory: %w", err)
	}
	sort.Sort(natural.StringSlice(files))
	return files, nil
}

func writeMimetype(zw *zip.Writer) error {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:   "mimetype",
		Method: zip.Store,
	})
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, mimetypeContent)
	return err
}

func writeXMLToZip(zw *zip.Writer, name string, doc *etree.Document) error {
	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return err
	}
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(buf.Bytes())
	return err
}

func writeFileToZip(zw *zip.Writer, name, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, in)
	return err
}

// copyZipWithoutDataDescriptors rewrites archive clearing data descriptor
// flags some readers choke on, returns name of the new file.
func copyZipWithoutDataDescriptors(from, dir, base string) (string, error) {
	out, err := os.CreateTemp(dir, "."+base+".*.fix")
	if err != nil {
		return "", fmt.Errorf("unable to create target file: %w", err)
	}
	name := out.Name()

	if err := rewriteZip(from, out); err != nil {
		out.Close()
		os.Remove(name)
		return "", err
	}
	if err := out.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("unable to finalize target file (%s): %w", name, err)
	}
	return name, nil
}

func rewriteZip(from string, out *os.File) error {
	r, err := fixzip.OpenReader(from)
	if err != nil {
		return fmt.Errorf("unable to read archive file (%s): %w", from, err)
	}
	defer r.Close()

	w := fixzip.NewWriter(out)
	for _, file := range r.File {
		// unset data descriptor flag.
		file.Flags &= ^fixzip.FlagDataDescriptor

		// copy zip entry
		if err := w.CopyFile(file); err != nil {
			return fmt.Errorf("unable to write target file (%s): %w", out.Name(), err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("unable to write target file (%s): %w", out.Name(), err)
	}
	return out.Sync()
}
