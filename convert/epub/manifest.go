package epub

import (
	"fmt"
	"path"
	"slices"
	"strconv"
	"strings"
)

var mediaTypes = map[string]string{
	".xml":   "application/xhtml+xml",
	".xhtml": "application/xhtml+xml",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".png":   "image/png",
	".css":   "text/css",
	".woff":  "application/font-woff",
	".woff2": "font/woff2",
	".ttf":   "application/font-sfnt",
	".otf":   "application/font-sfnt",
	".smil":  "application/smil+xml",
	".mp4":   "audio/mp4",
	".mp3":   "audio/mpeg",
}

// MediaType maps file extension to media type declared in the manifest.
func MediaType(name string) (string, error) {
	if mt, ok := mediaTypes[strings.ToLower(path.Ext(name))]; ok {
		return mt, nil
	}
	return "", &AssetError{Path: name, Kind: ErrUnsupportedAssetType}
}

// Item is single manifest entry, Href is relative to content.opf.
type Item struct {
	ID           string
	Href         string
	MediaType    string
	Properties   []string
	MediaOverlay string
}

// Manifest accumulates package items and reading order during one export.
type Manifest struct {
	items  []*Item
	byHref map[string]*Item
	usedID map[string]bool // lower case
	spine  []string
}

func NewManifest() *Manifest {
	return &Manifest{
		byHref: make(map[string]*Item),
		usedID: make(map[string]bool),
	}
}

// Add registers href (repeated calls return the same id) and merges
// properties into the item.
func (m *Manifest) Add(href string, props ...string) (string, error) {
	if it, ok := m.byHref[href]; ok {
		for _, p := range props {
			if !slices.Contains(it.Properties, p) {
				it.Properties = append(it.Properties, p)
			}
		}
		return it.ID, nil
	}

	mt, err := MediaType(href)
	if err != nil {
		return "", err
	}
	it := &Item{ID: m.newID(href), Href: href, MediaType: mt}
	for _, p := range props {
		if !slices.Contains(it.Properties, p) {
			it.Properties = append(it.Properties, p)
		}
	}
	m.items = append(m.items, it)
	m.byHref[href] = it
	return it.ID, nil
}

// newID derives XML safe identifier from file name.
func (m *Manifest) newID(href string) string {
	base := path.Base(href)
	base = strings.TrimSuffix(base, path.Ext(base))

	var b strings.Builder
	b.WriteByte('f')
	for _, r := range base {
		switch {
		case r == ' ':
		case r < 128 && (r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'):
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	original := b.String()

	id := original
	for n := 1; m.usedID[strings.ToLower(id)]; n++ {
		id = original + strconv.Itoa(n)
	}
	m.usedID[strings.ToLower(id)] = true
	return id
}

// AddSpine appends item to reading order.
func (m *Manifest) AddSpine(href string) error {
	it, ok := m.byHref[href]
	if !ok {
		return fmt.Errorf("spine entry %s is not in the manifest", href)
	}
	m.spine = append(m.spine, it.ID)
	return nil
}

// SetMediaOverlay links page document with its SMIL overlay.
func (m *Manifest) SetMediaOverlay(page, overlay string) error {
	p, ok := m.byHref[page]
	if !ok {
		return fmt.Errorf("page %s is not in the manifest", page)
	}
	o, ok := m.byHref[overlay]
	if !ok {
		return fmt.Errorf("overlay %s is not in the manifest", overlay)
	}
	p.MediaOverlay = o.ID
	return nil
}

func (m *Manifest) Lookup(href string) (*Item, bool) {
	it, ok := m.byHref[href]
	return it, ok
}

// Items returns entries in the order they were added.
func (m *Manifest) Items() []*Item {
	return m.items
}

// Spine returns item ids in reading order.
func (m *Manifest) Spine() []string {
	return m.spine
}
