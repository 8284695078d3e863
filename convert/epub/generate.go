// Package epub converts loaded Bloom book into EPUB3 container.
package epub

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"bloomepub/config"
	"bloomepub/content"
	"bloomepub/css"
	"bloomepub/fonts"
	"bloomepub/misc"
	"bloomepub/state"
)

// FontCatalog resolves font families to files which could be embedded.
type FontCatalog interface {
	FilesForFamily(ctx context.Context, name string) (fonts.Group, error)
	Excluded(ctx context.Context, family string) ([]*fonts.FontError, error)
}

type generator struct {
	ctx     context.Context
	book    *content.Book
	cfg     *config.DocumentConfig
	catalog FontCatalog
	log     *zap.Logger

	staging  string
	assets   *Assets
	manifest *Manifest
	report   *Report

	head        []*node
	stylesheets []string
	// stylesheet name -> hrefs book links it by
	styleSources map[string][]string

	// staged stylesheet names, in link order
	styleFiles []string
	// factory stylesheets by name
	defaultStyles map[string][]byte

	cover        string
	firstContent string
	// first fatal problem found while transforming page
	err error
}

// Generate converts book into EPUB file at outputPath. Problems which do
// not prevent producing usable book are returned in the report, any error
// means there is no output.
func Generate(ctx context.Context, book *content.Book, outputPath string, cfg *config.DocumentConfig, catalog FontCatalog, log *zap.Logger) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// program state is optional, without it there is no debug report and no
	// factory stylesheets
	var (
		rpt      *config.Report
		defaults map[string][]byte
	)
	if env, ok := state.LookupEnv(ctx); ok {
		rpt, defaults = env.Rpt, env.DefaultStyles
	}
	log = log.Named("epub")

	log.Info("Generating EPUB", zap.String("output", outputPath), zap.Int("pages", len(book.Pages)), zap.Bool("unpaginated", cfg.Unpaginated))

	staging, err := os.MkdirTemp("", misc.TempPattern("epub-"))
	if err != nil {
		return nil, ioError(os.TempDir(), fmt.Errorf("unable to create staging directory: %w", err))
	}
	defer func() {
		if err := rpt.StoreStaging(staging); err != nil {
			log.Debug("Unable to save staging directory to report", zap.Error(err))
		}
		os.RemoveAll(staging)
	}()

	g := &generator{
		ctx:           ctx,
		book:          book,
		cfg:           cfg,
		catalog:       catalog,
		log:           log,
		staging:       staging,
		assets:        NewAssets(book.Folder, filepath.Join(staging, contentDir), cfg.Images.Sniff, log),
		manifest:      NewManifest(),
		report:        &Report{},
		defaultStyles: defaults,
	}
	if err := g.run(outputPath); err != nil {
		return g.report, err
	}
	return g.report, nil
}

func (g *generator) run(outputPath string) error {
	if err := os.MkdirAll(filepath.Join(g.staging, contentDir), 0755); err != nil {
		return ioError(contentDir, err)
	}

	for _, name := range []string{packageDocument, navDocument, fontsStylesheet} {
		g.assets.Reserve(name)
	}
	for _, p := range g.book.Pages {
		name := pageDocument(p)
		g.assets.Reserve(name)
		g.assets.Reserve(overlayName(name))
	}

	g.head = headNodes(g.book.Head)
	g.stylesheets = PageStylesheets(g.book.Stylesheets, g.cfg.Unpaginated)
	g.styleSources = make(map[string][]string)
	for _, href := range g.book.Stylesheets {
		name := StylesheetName(href)
		g.styleSources[name] = append(g.styleSources[name], href)
	}

	firstContent := g.book.FirstContentPage()
	for _, p := range g.book.Pages {
		if err := g.ctx.Err(); err != nil {
			return err
		}
		if err := g.addPage(p, p.Index == firstContent); err != nil {
			return fmt.Errorf("page %d: %w", p.Index, err)
		}
	}

	// must be done after stylesheets are staged
	if err := g.embedFonts(); err != nil {
		return err
	}

	if err := g.writeDocument(navDocument, renderNav(navEntries(g.cover, g.firstContent))); err != nil {
		return err
	}
	if _, err := g.manifest.Add(navDocument, "nav"); err != nil {
		return err
	}

	lang := g.book.Languages.Tag()
	if lang == "" {
		lang = "und"
		g.log.Warn("Book language is unknown, using 'und' in package metadata")
	}
	meta := packageMeta{
		ID:       g.book.ID,
		Title:    g.book.Title,
		Language: lang,
		Modified: g.book.Modified,

		FixedLayout: !g.cfg.Unpaginated,
		Landscape:   len(g.book.Pages) > 0 && strings.Contains(g.book.Pages[0].SizeClass, "Landscape"),
	}
	if err := g.writeDocument(packageDocument, renderOPF(meta, g.manifest)); err != nil {
		return err
	}

	if err := g.ctx.Err(); err != nil {
		return err
	}
	return writePackage(g.staging, outputPath, packageOptions{fixZip: g.cfg.FixZip, verify: g.cfg.Verify}, g.log)
}

func pageDocument(p *content.Page) string {
	return strconv.Itoa(p.Index) + ".xhtml"
}

func (g *generator) addPage(p *content.Page, firstContent bool) error {
	name := pageDocument(p)

	t := &pageTransformer{
		page:      p,
		langs:     g.book.Languages,
		copyImage: func(src string) string { return g.copyImage(src, p.Index) },
		rename:    g.assets.Renamed,
	}
	res := t.transform()
	if g.err != nil {
		return g.err
	}

	if _, err := g.manifest.Add(name); err != nil {
		return err
	}
	if err := g.manifest.AddSpine(name); err != nil {
		return err
	}
	if err := g.addOverlay(name, p.Index, res.spans); err != nil {
		return err
	}

	if p.Index == 1 {
		g.cover = name
		// all pages share the same stylesheets
		if err := g.stageStylesheets(); err != nil {
			return err
		}
		if err := g.addThumbnail(res.images); err != nil {
			return err
		}
	}
	if firstContent {
		g.firstContent = name
	}

	links := make([]string, 0, len(g.stylesheets))
	for _, s := range g.stylesheets {
		if renamed, ok := g.assets.Renamed(s); ok {
			s = renamed
		}
		links = append(links, s)
	}
	return g.writeDocument(name, renderPage(g.head, g.book.Title, res.root, links))
}

// stage copies file into staging directory and registers it in the
// manifest. Missing file is recorded as a problem and yields empty name.
func (g *generator) stage(src string, page int, props ...string) (string, error) {
	dest, fresh, err := g.assets.Copy(src)
	return g.register(dest, fresh, err, page, props)
}

func (g *generator) register(dest string, fresh bool, err error, page int, props []string) (string, error) {
	if err != nil {
		if !errors.Is(err, ErrResourceNotFound) {
			return "", err
		}
		var ae *AssetError
		if errors.As(err, &ae) {
			ae.Page = page
		}
		g.log.Debug("Referenced file is missing", zap.Error(err))
		g.report.Add(err)
		return "", nil
	}
	if fresh || len(props) > 0 {
		if _, err := g.manifest.Add(dest, props...); err != nil {
			return "", err
		}
	}
	return dest, nil
}

// copyImage is called by page transformer for every local image, it returns
// the name image should be referenced by.
func (g *generator) copyImage(src string, page int) string {
	if g.err != nil {
		return src
	}
	path := filepath.Join(g.book.Folder, filepath.FromSlash(src))
	if _, err := os.Stat(path); err != nil {
		// markup may carry URL escaped names
		if unescaped, uerr := url.PathUnescape(src); uerr == nil && unescaped != src {
			alt := filepath.Join(g.book.Folder, filepath.FromSlash(unescaped))
			if _, err := os.Stat(alt); err == nil {
				path = alt
			}
		}
	}
	dest, err := g.stage(path, page)
	if err != nil {
		g.err = err
		return src
	}
	if dest == "" {
		return src
	}
	return dest
}

func (g *generator) addOverlay(page string, index int, spans []string) error {
	var parts []narration
	for _, id := range spans {
		rel, ok := findAudio(g.book.Folder, id)
		if !ok {
			continue
		}
		dest, err := g.stage(rel, index)
		if err != nil {
			return err
		}
		if dest != "" {
			parts = append(parts, narration{id: id, audio: dest})
		}
	}
	if len(parts) == 0 {
		return nil
	}

	overlay := overlayName(page)
	if err := g.writeDocument(overlay, renderOverlay(page, parts)); err != nil {
		return err
	}
	if _, err := g.manifest.Add(overlay); err != nil {
		return err
	}
	g.log.Debug("Audio overlay added", zap.String("page", page), zap.Int("fragments", len(parts)))
	return g.manifest.SetMediaOverlay(page, overlay)
}

// stageStylesheets copies stylesheets pages link to. Book folder is searched
// first, then places book links them from, then configured styles directory
// and finally built in copies.
func (g *generator) stageStylesheets() error {
	for _, name := range g.stylesheets {
		var (
			dest  string
			fresh bool
			err   error
		)
		if src, ok := g.locateStylesheet(name); ok {
			// pages link stylesheets by name whatever folder they came from
			dest, fresh, err = g.assets.CopyAs(src, name)
		} else if data, ok := g.defaultStyles[name]; ok {
			dest, fresh, err = g.assets.AddData(name, data)
		} else {
			g.report.Add(notFound(name, 1, nil))
			continue
		}
		if dest, err = g.register(dest, fresh, err, 1, nil); err != nil {
			return err
		}
		if dest != "" {
			g.styleFiles = append(g.styleFiles, dest)
		}
	}
	return nil
}

func (g *generator) locateStylesheet(name string) (string, bool) {
	candidates := []string{filepath.Join(g.book.Folder, name)}
	for _, href := range g.styleSources[name] {
		href = strings.TrimPrefix(strings.TrimPrefix(href, "file:///"), "file://")
		if u, err := url.PathUnescape(href); err == nil {
			href = u
		}
		href = filepath.FromSlash(href)
		if !filepath.IsAbs(href) {
			href = filepath.Join(g.book.Folder, href)
		}
		candidates = append(candidates, href)
	}
	if dir := g.cfg.Styles.Directory; dir != "" {
		candidates = append(candidates, filepath.Join(dir, name))
	}
	for _, c := range candidates {
		if fi, err := os.Stat(c); err == nil && fi.Mode().IsRegular() {
			return c, true
		}
	}
	return "", false
}

// addThumbnail registers cover image, generating it from the first picture
// of the cover page when book does not have one.
func (g *generator) addThumbnail(images []string) error {
	src := filepath.Join(g.book.Folder, thumbnailName)
	if fi, err := os.Stat(src); err == nil && fi.Mode().IsRegular() {
		_, err := g.stage(src, 0, "cover-image")
		return err
	}

	tc := g.cfg.Images.Thumbnail
	if !tc.Generate || len(images) == 0 {
		g.log.Debug("Book has no thumbnail")
		return nil
	}
	data, err := makeThumbnail(g.assets.Path(images[0]), tc.Width)
	if err != nil {
		g.log.Warn("Unable to generate thumbnail", zap.String("image", images[0]), zap.Error(err))
		return nil
	}
	dest, _, err := g.assets.AddData(thumbnailName, data)
	if err != nil {
		return err
	}
	_, err = g.manifest.Add(dest, "cover-image")
	return err
}

// embedFonts writes fonts.css with @font-face rules for every family book
// stylesheets use and catalog has files for.
func (g *generator) embedFonts() error {
	if _, err := g.manifest.Add(fontsStylesheet); err != nil {
		return err
	}

	var (
		faces    []css.FontFace
		consults int
	)
	for _, family := range g.fontFamilies() {
		if strings.EqualFold(family, g.cfg.Fonts.DefaultFamily) {
			continue
		}
		consults++
		group, err := g.catalog.FilesForFamily(g.ctx, family)
		if err != nil {
			return err
		}
		if group.Empty() {
			excluded, err := g.catalog.Excluded(g.ctx, family)
			if err != nil {
				return err
			}
			for _, e := range excluded {
				if errors.Is(e, fonts.ErrLicenseForbidsEmbedding) {
					g.report.Add(e)
				}
			}
			g.log.Debug("Font is not available for embedding, reader default will be used", zap.String("family", family))
			continue
		}
		for _, s := range fonts.Slots {
			if group[s] == "" {
				continue
			}
			dest, err := g.stage(group[s], 0)
			if err != nil {
				return err
			}
			if dest == "" {
				continue
			}
			faces = append(faces, css.FontFace{Family: family, Weight: s.Weight(), Style: s.Style(), URL: dest})
		}
	}

	if consults > 0 {
		excluded, err := g.catalog.Excluded(g.ctx, "")
		if err != nil {
			return err
		}
		for _, e := range excluded {
			if errors.Is(e, fonts.ErrFontParse) {
				g.report.Add(e)
			}
		}
	}

	var buf bytes.Buffer
	if err := css.WriteFontFaces(&buf, faces); err != nil {
		return err
	}
	if _, _, err := g.assets.AddData(fontsStylesheet, buf.Bytes()); err != nil {
		return err
	}
	g.log.Debug("Fonts embedded", zap.Int("faces", len(faces)))
	return nil
}

// fontFamilies collects families declared by staged stylesheets, other
// stylesheets in the book folder and style elements of the book head.
func (g *generator) fontFamilies() []string {
	parser := css.NewParser(g.log)

	var (
		res  []string
		seen = make(map[string]bool)
	)
	add := func(families []string) {
		for _, f := range families {
			if !seen[f] {
				seen[f] = true
				res = append(res, f)
			}
		}
	}

	for _, name := range g.styleFiles {
		data, err := os.ReadFile(g.assets.Path(name))
		if err != nil {
			g.log.Warn("Unable to read stylesheet", zap.String("file", name), zap.Error(err))
			continue
		}
		add(parser.FontFamilies(data, name))
	}

	entries, err := os.ReadDir(g.book.Folder)
	if err != nil {
		g.log.Warn("Unable to list book folder", zap.Error(err))
	}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".css") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(g.book.Folder, e.Name()))
		if err != nil {
			g.log.Warn("Unable to read stylesheet", zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		add(parser.FontFamilies(data, e.Name()))
	}
	if style := headStyles(g.book.Head); len(style) > 0 {
		add(parser.FontFamilies(style, "head"))
	}
	return res
}

func headStyles(head *html.Node) []byte {
	if head == nil {
		return nil
	}
	var buf bytes.Buffer
	for c := head.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.Data != "style" {
			continue
		}
		for t := c.FirstChild; t != nil; t = t.NextSibling {
			if t.Type == html.TextNode {
				buf.WriteString(t.Data)
			}
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func (g *generator) writeDocument(name string, doc *etree.Document) error {
	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return ioError(name, err)
	}
	_, _, err := g.assets.AddData(name, buf.Bytes())
	return err
}
