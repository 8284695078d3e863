// Package content loads Bloom book folder into a read-only representation
// the rest of the program works with.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/maruel/natural"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/language"

	"bloomepub/config"
)

// Languages book text is kept in. National language is only retained on
// front and back matter pages.
type Languages struct {
	Primary   string
	Secondary string
	Tertiary  string
	National  string
}

// Keep reports whether editable block in lang should survive export.
func (l Languages) Keep(lang string, xmatter bool) bool {
	if lang == "" {
		return false
	}
	switch lang {
	case l.Primary, l.Secondary, l.Tertiary:
		return true
	}
	return xmatter && lang == l.National
}

// Tag returns canonical BCP 47 form of primary language suitable for package
// metadata. Codes x/text cannot parse are returned as is.
func (l Languages) Tag() string {
	if tag, err := language.Parse(l.Primary); err == nil {
		return tag.String()
	}
	return l.Primary
}

// Page is a single bloom-page of the book.
type Page struct {
	// 1-based position in the book
	Index     int
	SizeClass string
	Classes   []string
	Node      *html.Node
}

func (p *Page) HasClass(name string) bool {
	for _, c := range p.Classes {
		if c == name {
			return true
		}
	}
	return false
}

// XMatter reports whether page belongs to front or back matter.
func (p *Page) XMatter() bool {
	return p.HasClass("bloom-frontMatter") || p.HasClass("bloom-backMatter")
}

// Book is assembled Bloom book as found on disk.
type Book struct {
	Folder string
	// book file name, relative to Folder
	File      string
	ID        string
	Title     string
	Languages Languages
	Pages     []*Page
	// head of the book document, shared by all pages
	Head *html.Node
	// hrefs of head stylesheet links in document order
	Stylesheets []string
	// index of the last front matter page, 0 when book has none
	FrontMatterLast int
	Modified        time.Time
}

// FirstContentPage returns index of the page following front matter or 0 if
// there is no such page.
func (b *Book) FirstContentPage() int {
	if idx := b.FrontMatterLast + 1; idx <= len(b.Pages) {
		return idx
	}
	return 0
}

type metaData struct {
	BookInstanceID string `json:"bookInstanceId"`
	Title          string `json:"title"`
}

// Prepare locates book document under src (book folder or the book file
// itself), parses it and collects everything conversion needs.
func Prepare(ctx context.Context, src string, langs *config.LanguagesConfig, log *zap.Logger) (*Book, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	folder, file, err := locateBookFile(src, log)
	if err != nil {
		return nil, err
	}

	fi, err := os.Stat(folder)
	if err != nil {
		return nil, fmt.Errorf("unable to access book folder: %w", err)
	}

	doc, err := readDocument(filepath.Join(folder, file))
	if err != nil {
		return nil, err
	}

	b := &Book{
		Folder:   folder,
		File:     file,
		Modified: fi.ModTime().UTC().Truncate(time.Second),
	}

	if head := doc.Find("head").First(); head.Length() > 0 {
		b.Head = head.Nodes[0]
	}
	doc.Find("head link").Each(func(_ int, s *goquery.Selection) {
		if !strings.EqualFold(s.AttrOr("rel", ""), "stylesheet") {
			return
		}
		if href := strings.TrimSpace(s.AttrOr("href", "")); href != "" {
			b.Stylesheets = append(b.Stylesheets, href)
		}
	})

	doc.Find("div.bloom-page").Each(func(i int, s *goquery.Selection) {
		p := &Page{
			Index:   i + 1,
			Classes: strings.Fields(s.AttrOr("class", "")),
			Node:    s.Nodes[0],
		}
		p.SizeClass = sizeClass(p.Classes)
		if p.HasClass("bloom-frontMatter") {
			b.FrontMatterLast = p.Index
		}
		b.Pages = append(b.Pages, p)
	})
	if len(b.Pages) == 0 {
		return nil, fmt.Errorf("book %q has no pages", filepath.Join(folder, file))
	}

	b.Languages = discoverLanguages(doc, langs)
	if b.Languages.Primary == "" {
		log.Warn("Book does not specify primary content language, only language neutral content will be kept")
	}

	meta := readMetaData(folder, log)

	b.ID = bookID(meta, doc)
	if b.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("unable to generate new book UUID: %w", err)
		}
		b.ID = id.String()
		log.Warn("Book has no ID, generating", zap.String("new_id", b.ID))
	}
	b.Title = bookTitle(meta, doc, b.Languages.Primary, folder)

	log.Debug("Book loaded",
		zap.String("file", file),
		zap.String("id", b.ID),
		zap.String("title", b.Title),
		zap.Int("pages", len(b.Pages)),
		zap.Int("front_matter_last", b.FrontMatterLast),
		zap.Any("languages", b.Languages))

	return b, nil
}

// locateBookFile returns book folder and name of the book document inside it.
func locateBookFile(src string, log *zap.Logger) (string, string, error) {
	fi, err := os.Stat(src)
	if err != nil {
		return "", "", fmt.Errorf("input source was not found: %w", err)
	}
	if fi.Mode().IsRegular() {
		if !isBookFileName(src) {
			return "", "", fmt.Errorf("input (%s) is not html document", src)
		}
		return filepath.Dir(src), filepath.Base(src), nil
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return "", "", fmt.Errorf("unable to read book folder: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && isBookFileName(e.Name()) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", "", fmt.Errorf("no html document found in book folder (%s)", src)
	}
	sort.Sort(natural.StringSlice(names))
	if len(names) > 1 {
		log.Warn("Book folder has several html documents, using first one", zap.String("using", names[0]), zap.Strings("ignoring", names[1:]))
	}
	return src, names[0], nil
}

func isBookFileName(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".htm", ".html":
		return true
	}
	return false
}

func readDocument(path string) (*goquery.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open book document: %w", err)
	}
	defer f.Close()

	r, err := charset.NewReader(f, "text/html")
	if err != nil {
		return nil, fmt.Errorf("unable to detect book document encoding: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("unable to parse book document: %w", err)
	}
	return doc, nil
}

// sizeClass returns first class token which names page size and orientation.
func sizeClass(classes []string) string {
	for _, c := range classes {
		if strings.Contains(c, "Portrait") || strings.Contains(c, "Landscape") {
			return c
		}
	}
	return ""
}

func dataBook(doc *goquery.Document, key, lang string) string {
	var val string
	doc.Find("#bloomDataDiv [data-book]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.AttrOr("data-book", "") != key {
			return true
		}
		if lang != "" && s.AttrOr("lang", "") != lang {
			return true
		}
		val = strings.TrimSpace(s.Text())
		return len(val) == 0
	})
	return val
}

func discoverLanguages(doc *goquery.Document, override *config.LanguagesConfig) Languages {
	l := Languages{
		Primary:   dataBook(doc, "contentLanguage1", ""),
		Secondary: dataBook(doc, "contentLanguage2", ""),
		Tertiary:  dataBook(doc, "contentLanguage3", ""),
		National:  dataBook(doc, "contentNational1", ""),
	}
	if l.National == "" {
		l.National = doc.Find(".bloom-contentNational1[lang]").First().AttrOr("lang", "")
	}
	if override != nil {
		for _, o := range []struct {
			dst *string
			src string
		}{
			{&l.Primary, override.Primary},
			{&l.Secondary, override.Secondary},
			{&l.Tertiary, override.Tertiary},
			{&l.National, override.National},
		} {
			if o.src != "" {
				*o.dst = o.src
			}
		}
	}
	return l
}

func readMetaData(folder string, log *zap.Logger) *metaData {
	data, err := os.ReadFile(filepath.Join(folder, "meta.json"))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn("Unable to read book meta data", zap.Error(err))
		}
		return &metaData{}
	}
	var md metaData
	if err := json.Unmarshal(data, &md); err != nil {
		log.Warn("Unable to parse book meta data, ignoring", zap.Error(err))
		return &metaData{}
	}
	return &md
}

func bookID(meta *metaData, doc *goquery.Document) string {
	if id := strings.TrimSpace(meta.BookInstanceID); id != "" {
		return id
	}
	return strings.TrimSpace(doc.Find(`meta[name="bloom-book-id"]`).First().AttrOr("content", ""))
}

func bookTitle(meta *metaData, doc *goquery.Document, lang, folder string) string {
	if t := strings.TrimSpace(meta.Title); t != "" {
		return t
	}
	if lang != "" {
		if t := dataBook(doc, "bookTitle", lang); t != "" {
			return t
		}
	}
	if t := strings.TrimSpace(doc.Find("head title").First().Text()); t != "" {
		return t
	}
	return filepath.Base(folder)
}
