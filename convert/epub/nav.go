package epub

import (
	"github.com/beevik/etree"
)

const navDocument = "nav.xhtml"

// navEntry is single table of contents line.
type navEntry struct {
	label string
	href  string
}

// navEntries decides what goes into the table of contents. Content entry
// is dropped when there is no content page, cover entry when it would point
// to the same document as content.
func navEntries(cover, firstContent string) []navEntry {
	var res []navEntry
	if cover != "" && cover != firstContent {
		res = append(res, navEntry{label: "Cover", href: cover})
	}
	if firstContent != "" {
		res = append(res, navEntry{label: "Content", href: firstContent})
	}
	return res
}

func renderNav(entries []navEntry) *etree.Document {
	doc := newXMLDocument()

	html := doc.CreateElement("html")
	html.CreateAttr("xmlns", nsXHTML)
	html.CreateAttr("xmlns:epub", nsOPS)

	head := html.CreateElement("head")
	head.CreateElement("meta").CreateAttr("charset", "utf-8")
	head.CreateElement("title").SetText("Contents")

	nav := html.CreateElement("body").CreateElement("nav")
	nav.CreateAttr("epub:type", "toc")
	nav.CreateAttr("id", "toc")

	ol := nav.CreateElement("ol")
	for _, e := range entries {
		a := ol.CreateElement("li").CreateElement("a")
		a.CreateAttr("href", e.href)
		a.SetText(e.label)
	}
	return doc
}
