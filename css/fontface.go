package css

import (
	"fmt"
	"io"
	"path"
	"strings"
)

// FontFace is a single @font-face rule pointing to embedded font file.
type FontFace struct {
	Family string
	Weight string
	Style  string
	// archive relative name of the font file
	URL string
}

// Format returns value for format() hint of the src descriptor.
func (f FontFace) Format() string {
	switch strings.ToLower(path.Ext(f.URL)) {
	case ".woff":
		return "woff"
	case ".woff2":
		return "woff2"
	}
	return "opentype"
}

func (f FontFace) String() string {
	return fmt.Sprintf("@font-face {font-family:'%s'; font-weight:%s; font-style:%s; src:url(%s) format('%s');}",
		f.Family, f.Weight, f.Style, f.URL, f.Format())
}

// WriteFontFaces writes rules one per line.
func WriteFontFaces(w io.Writer, faces []FontFace) error {
	for _, f := range faces {
		if _, err := io.WriteString(w, f.String()+"\n"); err != nil {
			return err
		}
	}
	return nil
}
