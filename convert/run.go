package convert

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"bloomepub/archive"
	"bloomepub/content"
	"bloomepub/convert/epub"
	"bloomepub/fonts"
	"bloomepub/misc"
	"bloomepub/state"
)

//go:embed styles/*.css
var factoryStyles embed.FS

func Run(ctx context.Context, cmd *cli.Command) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("convert")

	src := cmd.Args().Get(0)
	if len(src) == 0 {
		return errors.New("no input source has been specified")
	}
	if src, err = filepath.Abs(src); err != nil {
		return err
	}

	dst := cmd.Args().Get(1)
	if len(dst) == 0 {
		if dst, err = os.Getwd(); err != nil {
			return fmt.Errorf("unable to get working directory: %w", err)
		}
	}
	if dst, err = filepath.Abs(dst); err != nil {
		return err
	}
	if cmd.Args().Len() > 2 {
		log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[2:]))
	}

	env.Overwrite = cmd.Bool("overwrite")
	if cmd.Bool("unpaginated") {
		env.Cfg.Document.Unpaginated = true
	}
	if dir := cmd.String("fonts"); len(dir) > 0 {
		env.Cfg.Document.Fonts.Directory = dir
	}

	if env.DefaultStyles, err = loadFactoryStyles(); err != nil {
		return err
	}

	log.Info("Processing starting", zap.String("source", src), zap.String("destination", dst), zap.Bool("unpaginated", env.Cfg.Document.Unpaginated))
	defer func(start time.Time) {
		log.Info("Processing completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	return process(ctx, src, dst, newCatalog(env), log)
}

func newCatalog(env *state.LocalEnv) *fonts.Catalog {
	var dirs []string
	if dir := env.Cfg.Document.Fonts.Directory; len(dir) > 0 {
		dirs = append(dirs, dir)
	}
	return fonts.NewCatalog(env.Log, dirs...)
}

func loadFactoryStyles() (map[string][]byte, error) {
	entries, err := fs.ReadDir(factoryStyles, "styles")
	if err != nil {
		return nil, fmt.Errorf("unable to read embedded stylesheets: %w", err)
	}
	res := make(map[string][]byte, len(entries))
	for _, e := range entries {
		data, err := fs.ReadFile(factoryStyles, "styles/"+e.Name())
		if err != nil {
			return nil, fmt.Errorf("unable to read embedded stylesheet %s: %w", e.Name(), err)
		}
		res[e.Name()] = data
	}
	return res, nil
}

// process handles the core conversion logic independently of CLI framework.
// Source is a book folder, book file or zipped book folder.
func process(ctx context.Context, src, dst string, catalog epub.FontCatalog, log *zap.Logger) error {
	fi, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("input source was not found: %w", err)
	}

	if fi.Mode().IsRegular() {
		zipped, err := isArchiveFile(src)
		if err != nil {
			return fmt.Errorf("unable to check archive type: %w", err)
		}
		if zipped {
			return processArchive(ctx, src, dst, catalog, log)
		}
		return processBook(ctx, src, filepath.Base(filepath.Dir(src)), dst, catalog, log)
	}
	if !fi.IsDir() {
		return fmt.Errorf("unexpected path mode for (%s)", src)
	}
	return processBook(ctx, src, filepath.Base(src), dst, catalog, log)
}

// processArchive unpacks zipped book folder into temporary directory and
// converts it from there.
func processArchive(ctx context.Context, path, dst string, catalog epub.FontCatalog, log *zap.Logger) error {
	tmp, err := os.MkdirTemp("", misc.TempPattern("book-"))
	if err != nil {
		return fmt.Errorf("unable to create temporary directory: %w", err)
	}
	defer os.RemoveAll(tmp)

	if err := archive.Extract(ctx, path, tmp); err != nil {
		return fmt.Errorf("unable to unpack archive (%s): %w", path, err)
	}
	folder, err := findBookFolder(tmp)
	if err != nil {
		return fmt.Errorf("archive (%s): %w", path, err)
	}
	log.Debug("Archive unpacked", zap.String("archive", path), zap.String("folder", folder))

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if folder != tmp {
		name = filepath.Base(folder)
	}
	return processBook(ctx, folder, name, dst, catalog, log)
}

// findBookFolder returns dir itself when it holds book document or its only
// sub directory when it does not.
func findBookFolder(dir string) (string, error) {
	for {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return "", err
		}
		var subdirs []string
		for _, e := range entries {
			if e.Type().IsRegular() && isBookFileName(e.Name()) {
				return dir, nil
			}
			if e.IsDir() {
				subdirs = append(subdirs, e.Name())
			}
		}
		if len(subdirs) != 1 {
			return "", errors.New("no book document found")
		}
		dir = filepath.Join(dir, subdirs[0])
	}
}

func isBookFileName(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".htm", ".html":
		return true
	}
	return false
}

// processBook converts single book. "src" is book folder or book file, "name"
// is what default output name is derived from and "dst" is either
// destination directory or full name of the resulting file.
func processBook(ctx context.Context, src, name, dst string, catalog epub.FontCatalog, log *zap.Logger) (rerr error) {
	env := state.EnvFromContext(ctx)

	var bookID, outputName string

	log.Info("Conversion starting", zap.String("from", src))
	defer func(start time.Time) {
		// NOTE: image decoders are not always robust, we want panic in one
		// book to be reported as regular error.
		if r := recover(); r != nil {
			log.Error("Conversion ended with panic",
				zap.Any("panic", r), zap.Duration("elapsed", time.Since(start)), zap.String("to", outputName), zap.ByteString("stack", debug.Stack()))
			rerr = fmt.Errorf("conversion panic: %v", r)
		} else if rerr == nil {
			log.Info("Conversion completed", zap.Duration("elapsed", time.Since(start)), zap.String("to", outputName), zap.String("book_id", bookID))
		}
	}(time.Now())

	book, err := content.Prepare(ctx, src, &env.Cfg.Document.Languages, log)
	if err != nil {
		return fmt.Errorf("unable to load book (%s): %w", src, err)
	}
	bookID = book.ID
	if env.Rpt != nil {
		env.Rpt.StoreBook(bookID, book.String())
	}

	outputName = buildOutputPath(book, name, dst, env)

	// existing file is replaced only when generation succeeds
	if _, err := os.Stat(outputName); err == nil {
		if !env.Overwrite {
			return fmt.Errorf("output file already exists: %s", outputName)
		}
		log.Warn("Overwriting existing file", zap.String("file", outputName))
	} else if !os.IsNotExist(err) {
		return err
	}

	report, err := epub.Generate(ctx, book, outputName, &env.Cfg.Document, catalog, log)
	for _, w := range report.Warnings() {
		log.Warn("Conversion problem", zap.String("problem", w))
	}
	if err != nil {
		return fmt.Errorf("unable to generate output: %w", err)
	}

	// Store conversion result for debugging
	env.Rpt.StoreResult(bookID, outputName)
	return nil
}
