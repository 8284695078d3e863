package epub

import (
	"strings"
	"time"

	"github.com/beevik/etree"
)

const (
	nsOPF       = "http://www.idpf.org/2007/opf"
	nsDC        = "http://purl.org/dc/elements/1.1/"
	nsContainer = "urn:oasis:names:tc:opendocument:xmlns:container"
	nsRendition = "http://www.idpf.org/vocab/rendition/#"

	mimetypeContent = "application/epub+zip"
	contentDir      = "content"
	packageDocument = "content.opf"
	modifiedLayout  = "2006-01-02T15:04:05Z"
)

// packageMeta is what goes into package metadata.
type packageMeta struct {
	ID       string
	Title    string
	Language string
	Modified time.Time
	// FixedLayout asks readers not to reflow pages
	FixedLayout bool
	Landscape   bool
}

func renderContainer() *etree.Document {
	doc := newXMLDocument()

	container := doc.CreateElement("container")
	container.CreateAttr("version", "1.0")
	container.CreateAttr("xmlns", nsContainer)

	rootfile := container.CreateElement("rootfiles").CreateElement("rootfile")
	rootfile.CreateAttr("full-path", contentDir+"/"+packageDocument)
	rootfile.CreateAttr("media-type", "application/oebps-package+xml")
	return doc
}

func renderOPF(meta packageMeta, m *Manifest) *etree.Document {
	doc := newXMLDocument()

	pkg := doc.CreateElement("package")
	pkg.CreateAttr("xmlns", nsOPF)
	pkg.CreateAttr("version", "3.0")
	pkg.CreateAttr("unique-identifier", "I"+meta.ID)
	if meta.FixedLayout {
		pkg.CreateAttr("prefix", "rendition: "+nsRendition)
	}

	metadata := pkg.CreateElement("metadata")
	metadata.CreateAttr("xmlns:dc", nsDC)

	metadata.CreateElement("dc:title").SetText(meta.Title)
	metadata.CreateElement("dc:language").SetText(meta.Language)

	id := metadata.CreateElement("dc:identifier")
	id.CreateAttr("id", "I"+meta.ID)
	id.SetText("bloomlibrary.org." + meta.ID)

	modified := metadata.CreateElement("meta")
	modified.CreateAttr("property", "dcterms:modified")
	modified.SetText(meta.Modified.UTC().Format(modifiedLayout))

	if meta.FixedLayout {
		property := func(name, value string) {
			m := metadata.CreateElement("meta")
			m.CreateAttr("property", name)
			m.SetText(value)
		}
		property("rendition:layout", "pre-paginated")
		if meta.Landscape {
			property("rendition:orientation", "landscape")
			// some readers put two landscape pages side by side otherwise
			property("rendition:spread", "none")
		}
	}

	manifest := pkg.CreateElement("manifest")
	for _, it := range m.Items() {
		item := manifest.CreateElement("item")
		item.CreateAttr("id", it.ID)
		item.CreateAttr("href", it.Href)
		item.CreateAttr("media-type", it.MediaType)
		if len(it.Properties) > 0 {
			item.CreateAttr("properties", strings.Join(it.Properties, " "))
		}
		if it.MediaOverlay != "" {
			item.CreateAttr("media-overlay", it.MediaOverlay)
		}
	}

	spine := pkg.CreateElement("spine")
	for _, ref := range m.Spine() {
		spine.CreateElement("itemref").CreateAttr("idref", ref)
	}
	return doc
}
