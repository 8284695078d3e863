package epub

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

const (
	nsSMIL   = "http://www.w3.org/ns/SMIL"
	audioDir = "audio"
)

// audioExtensions in order of preference.
var audioExtensions = []string{".mp3", ".mp4"}

// narration pairs text fragment with its audio file.
type narration struct {
	id    string
	audio string // staged name
}

// findAudio returns path of recorded narration for span id relative to the
// book folder.
func findAudio(folder, id string) (string, bool) {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return "", false
	}
	for _, ext := range audioExtensions {
		rel := audioDir + "/" + id + ext
		if fi, err := os.Stat(filepath.Join(folder, filepath.FromSlash(rel))); err == nil && fi.Mode().IsRegular() {
			return rel, true
		}
	}
	return "", false
}

func overlayName(page string) string {
	return strings.TrimSuffix(page, filepath.Ext(page)) + "_overlay.smil"
}

// renderOverlay produces SMIL media overlay synchronizing page text with
// narration.
func renderOverlay(page string, parts []narration) *etree.Document {
	doc := newXMLDocument()

	smil := doc.CreateElement("smil")
	smil.CreateAttr("xmlns", nsSMIL)
	smil.CreateAttr("xmlns:epub", nsOPS)
	smil.CreateAttr("version", "3.0")

	seq := smil.CreateElement("body").CreateElement("seq")
	seq.CreateAttr("id", "id1")
	seq.CreateAttr("epub:textref", page)
	seq.CreateAttr("epub:type", "bodymatter chapter")

	for i, p := range parts {
		par := seq.CreateElement("par")
		par.CreateAttr("id", "s"+strconv.Itoa(i+1))
		par.CreateElement("text").CreateAttr("src", page+"#"+p.id)
		par.CreateElement("audio").CreateAttr("src", p.audio)
	}
	return doc
}
