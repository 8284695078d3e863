// Package fonts finds font files which may be embedded into a book.
package fonts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/h2non/filetype"
	"github.com/maruel/natural"
	tdfont "github.com/tdewolff/font"
	"go.uber.org/zap"
	xsfnt "golang.org/x/image/font/sfnt"
	"seehuhn.de/go/sfnt/header"
	"seehuhn.de/go/sfnt/os2"
)

// Slot is one of the four faces of a family.
type Slot int

const (
	SlotNormal Slot = iota
	SlotBold
	SlotItalic
	SlotBoldItalic
	slotCount
)

// Slots lists faces in the order @font-face rules are emitted.
var Slots = [...]Slot{SlotNormal, SlotBold, SlotItalic, SlotBoldItalic}

func slotFor(bold, italic bool) Slot {
	switch {
	case bold && italic:
		return SlotBoldItalic
	case bold:
		return SlotBold
	case italic:
		return SlotItalic
	}
	return SlotNormal
}

// Weight returns CSS font-weight keyword for the slot.
func (s Slot) Weight() string {
	if s == SlotBold || s == SlotBoldItalic {
		return "bold"
	}
	return "normal"
}

// Style returns CSS font-style keyword for the slot.
func (s Slot) Style() string {
	if s == SlotItalic || s == SlotBoldItalic {
		return "italic"
	}
	return "normal"
}

func (s Slot) String() string {
	switch s {
	case SlotNormal:
		return "normal"
	case SlotBold:
		return "bold"
	case SlotItalic:
		return "italic"
	case SlotBoldItalic:
		return "bold-italic"
	}
	return fmt.Sprintf("Slot(%d)", int(s))
}

// Group holds up to four font files of a single family indexed by Slot.
// Empty path means family has no file for that face.
type Group [slotCount]string

// Files returns non empty paths in slot order.
func (g Group) Files() []string {
	var files []string
	for _, s := range Slots {
		if g[s] != "" {
			files = append(files, g[s])
		}
	}
	return files
}

func (g Group) Empty() bool {
	return len(g.Files()) == 0
}

// Face is what catalog learned about a single font file.
type Face struct {
	Path   string
	Family string
	Weight int
	Italic bool
	Rights os2.Permissions
}

var extensions = map[string]string{
	".ttf":   "ttf",
	".otf":   "otf",
	".woff":  "woff",
	".woff2": "woff2",
}

// boldWeight is the lowest weight class treated as bold.
const boldWeight = 600

// Catalog groups font files found under a set of directories by family.
// Directories are scanned once, on first request.
type Catalog struct {
	dirs []string
	log  *zap.Logger

	once     sync.Once
	loadErr  error
	groups   map[string]*Group
	faces    []Face
	excluded []*FontError
}

// NewCatalog creates catalog over dirs. When dirs is empty system font
// directories are used.
func NewCatalog(log *zap.Logger, dirs ...string) *Catalog {
	if len(dirs) == 0 {
		dirs = SystemDirs()
	}
	return &Catalog{
		dirs: dirs,
		log:  log.Named("fonts"),
	}
}

// Dirs returns directories catalog is built from.
func (c *Catalog) Dirs() []string {
	return c.dirs
}

// Load scans directories if it has not been done yet. Only context
// cancellation makes it fail, unreadable files are excluded and remembered.
func (c *Catalog) Load(ctx context.Context) error {
	c.once.Do(func() {
		c.groups = make(map[string]*Group)
		for _, dir := range c.dirs {
			if err := c.scanDir(ctx, dir); err != nil {
				c.loadErr = err
				return
			}
		}
		c.log.Debug("Font catalog loaded",
			zap.Strings("dirs", c.dirs),
			zap.Int("families", len(c.groups)),
			zap.Int("faces", len(c.faces)),
			zap.Int("excluded", len(c.excluded)))
	})
	return c.loadErr
}

// FilesForFamily returns the group of files for family name. Family without
// files yields an empty group.
func (c *Catalog) FilesForFamily(ctx context.Context, name string) (Group, error) {
	if err := c.Load(ctx); err != nil {
		return Group{}, err
	}
	if g, ok := c.groups[name]; ok {
		return *g, nil
	}
	return Group{}, nil
}

// Families returns names of all families with at least one usable file.
func (c *Catalog) Families(ctx context.Context) ([]string, error) {
	if err := c.Load(ctx); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(c.groups))
	for name := range c.groups {
		names = append(names, name)
	}
	sort.Sort(natural.StringSlice(names))
	return names, nil
}

// Faces returns accepted font files in scan order.
func (c *Catalog) Faces(ctx context.Context) ([]Face, error) {
	if err := c.Load(ctx); err != nil {
		return nil, err
	}
	return c.faces, nil
}

// Excluded returns problems with files left out of the catalog. When
// family is not empty only problems for that family are returned.
func (c *Catalog) Excluded(ctx context.Context, family string) ([]*FontError, error) {
	if err := c.Load(ctx); err != nil {
		return nil, err
	}
	if family == "" {
		return c.excluded, nil
	}
	var res []*FontError
	for _, e := range c.excluded {
		if e.Family == family {
			res = append(res, e)
		}
	}
	return res, nil
}

func (c *Catalog) scanDir(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.log.Debug("Font directory does not exist", zap.String("dir", dir))
		} else {
			c.log.Warn("Unable to read font directory", zap.String("dir", dir), zap.Error(err))
		}
		return nil
	}
	// first seen file wins the slot, so order has to be stable
	sort.Slice(entries, func(i, j int) bool {
		return natural.Less(entries[i].Name(), entries[j].Name())
	})

	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if e.IsDir() {
			if err := c.scanDir(ctx, path); err != nil {
				return err
			}
			continue
		}
		kind, ok := extensions[strings.ToLower(filepath.Ext(e.Name()))]
		if !ok || !e.Type().IsRegular() {
			continue
		}
		face, ferr := readFace(path, kind)
		if ferr != nil {
			c.log.Debug("Excluding font file", zap.String("file", path), zap.Error(ferr))
			c.excluded = append(c.excluded, ferr)
			continue
		}
		c.add(face)
	}
	return nil
}

func (c *Catalog) add(face *Face) {
	c.faces = append(c.faces, *face)
	g, ok := c.groups[face.Family]
	if !ok {
		g = &Group{}
		c.groups[face.Family] = g
	}
	slot := slotFor(face.Weight > boldWeight, face.Italic)
	if g[slot] == "" {
		g[slot] = face.Path
		return
	}
	c.log.Debug("Font face slot already taken",
		zap.String("family", face.Family), zap.Stringer("slot", slot), zap.String("file", face.Path), zap.String("using", g[slot]))
}

// readFace reads font file and checks embedding rights.
func readFace(path, kind string) (*Face, *FontError) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, parseError(path, err)
	}
	if !filetype.Is(data, kind) {
		// some OpenType fonts carry .ttf extension and vice versa
		if strings.HasPrefix(kind, "woff") || !(filetype.Is(data, "ttf") || filetype.Is(data, "otf")) {
			return nil, parseError(path, fmt.Errorf("content is not %s font", kind))
		}
	}
	// web fonts are unpacked to examine their tables
	if data, err = tdfont.ToSFNT(data); err != nil {
		return nil, parseError(path, err)
	}
	return parseFace(path, data)
}

// parseFace examines plain sfnt data.
func parseFace(path string, data []byte) (*Face, *FontError) {
	r := bytes.NewReader(data)
	hdr, err := header.Read(r)
	if err != nil {
		return nil, parseError(path, err)
	}
	os2Data, err := hdr.ReadTableBytes(r, "OS/2")
	if err != nil {
		return nil, parseError(path, fmt.Errorf("no usable OS/2 table: %w", err))
	}
	info, err := os2.Read(bytes.NewReader(os2Data))
	if err != nil {
		return nil, parseError(path, err)
	}

	f, err := xsfnt.Parse(data)
	if err != nil {
		return nil, parseError(path, err)
	}
	family, err := f.Name(nil, xsfnt.NameIDFamily)
	if err != nil || strings.TrimSpace(family) == "" {
		return nil, parseError(path, fmt.Errorf("no family name: %w", err))
	}

	face := &Face{
		Path:   path,
		Family: strings.TrimSpace(family),
		Weight: int(info.WeightClass),
		Italic: info.IsItalic,
		Rights: info.PermUse,
	}

	if !embeddable(info) {
		return nil, &FontError{
			Path:   path,
			Family: face.Family,
			Kind:   ErrLicenseForbidsEmbedding,
			Cause:  fmt.Errorf("embedding rights: %s, bitmap only: %t", info.PermUse, info.PermOnlyBitmap),
		}
	}
	return face, nil
}

// embeddable accepts installable, editable and preview & print fonts with or
// without subsetting restriction.
func embeddable(info *os2.Info) bool {
	if info.PermOnlyBitmap {
		return false
	}
	switch info.PermUse {
	case os2.PermInstall, os2.PermEdit, os2.PermView:
		return true
	}
	return false
}
