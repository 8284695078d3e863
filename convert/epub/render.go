package epub

import (
	"slices"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/net/html"
)

const (
	nsXHTML = "http://www.w3.org/1999/xhtml"
	nsOPS   = "http://www.idpf.org/2007/ops"
	nsSVG   = "http://www.w3.org/2000/svg"
	nsXLink = "http://www.w3.org/1999/xlink"
	nsMath  = "http://www.w3.org/1998/Math/MathML"
)

func newXMLDocument() *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	return doc
}

// headNodes copies book head leaving out scripts, stylesheet links and
// encoding declarations, output always declares its own.
func headNodes(head *html.Node) []*node {
	if head == nil {
		return nil
	}
	var res []*node
	for c := head.FirstChild; c != nil; c = c.NextSibling {
		if n := copyHeadNode(c); n != nil {
			res = append(res, n)
		}
	}
	return res
}

func copyHeadNode(n *html.Node) *node {
	switch n.Type {
	case html.TextNode:
		return &node{text: n.Data}
	case html.ElementNode:
	default:
		return nil
	}
	switch n.Data {
	case "script":
		return nil
	case "link":
		if strings.EqualFold(attrVal(n, "rel"), "stylesheet") {
			return nil
		}
	case "meta":
		if attrVal(n, "charset") != "" || strings.EqualFold(attrVal(n, "http-equiv"), "content-type") {
			return nil
		}
	}
	out := &node{tag: n.Data, ns: n.Namespace, attrs: append([]html.Attribute(nil), n.Attr...)}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if k := copyHeadNode(c); k != nil {
			out.kids = append(out.kids, k)
		}
	}
	return out
}

// renderPage serializes page as XHTML document. Stylesheets are linked in
// the given order followed by fonts.css.
func renderPage(head []*node, title string, page *node, stylesheets []string) *etree.Document {
	doc := newXMLDocument()

	root := doc.CreateElement("html")
	root.CreateAttr("xmlns", nsXHTML)

	h := root.CreateElement("head")
	meta := h.CreateElement("meta")
	meta.CreateAttr("charset", "UTF-8")

	haveTitle := false
	for _, n := range head {
		if n.tag == "title" {
			haveTitle = true
		}
		n.appendTo(h, "")
	}
	if !haveTitle {
		h.CreateElement("title").SetText(title)
	}
	for _, name := range slices.Concat(stylesheets, []string{fontsStylesheet}) {
		link := h.CreateElement("link")
		link.CreateAttr("rel", "stylesheet")
		link.CreateAttr("href", name)
		link.CreateAttr("type", "text/css")
	}

	body := root.CreateElement("body")
	body.CreateAttr("class", "publishMode")
	if page != nil {
		page.appendTo(body, "")
	}
	return doc
}

func (n *node) appendTo(parent *etree.Element, parentNS string) {
	if n.tag == "" {
		parent.CreateText(n.text)
		return
	}
	el := parent.CreateElement(n.tag)
	if n.ns != parentNS {
		switch n.ns {
		case "svg":
			el.CreateAttr("xmlns", nsSVG)
			el.CreateAttr("xmlns:xlink", nsXLink)
		case "math":
			el.CreateAttr("xmlns", nsMath)
		}
	}
	for _, a := range n.attrs {
		key := a.Key
		if a.Namespace != "" {
			key = a.Namespace + ":" + a.Key
		}
		if !validXMLName(key) || key == "xmlns" || strings.HasPrefix(key, "xmlns:") {
			continue
		}
		el.CreateAttr(key, a.Val)
	}
	for _, k := range n.kids {
		k.appendTo(el, n.ns)
	}
}

// validXMLName rejects attribute names HTML parser accepts but XML does not.
func validXMLName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_' || r == ':' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z':
		case i > 0 && (r == '-' || r == '.' || r >= '0' && r <= '9'):
		default:
			return false
		}
	}
	return true
}
