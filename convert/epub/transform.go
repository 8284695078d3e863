package epub

import (
	"slices"
	"strings"

	"golang.org/x/net/html"

	"bloomepub/content"
)

// node is retained markup ready to be serialized. Tree is built once from
// the source page and never shares nodes with it.
type node struct {
	tag   string // empty for text
	ns    string // foreign content namespace, "svg" or "math"
	text  string
	attrs []html.Attribute
	kids  []*node
}

func (n *node) attr(key string) (string, bool) {
	for _, a := range n.attrs {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func (n *node) hasClass(name string) bool {
	v, _ := n.attr("class")
	return slices.Contains(strings.Fields(v), name)
}

// shallow returns copy of element without children and without id.
func (n *node) shallow() *node {
	c := &node{tag: n.tag, ns: n.ns}
	for _, a := range n.attrs {
		if a.Namespace == "" && a.Key == "id" {
			continue
		}
		c.attrs = append(c.attrs, a)
	}
	return c
}

// childWithClass returns index of first element child with class or -1.
func (n *node) childWithClass(name string) int {
	for i, k := range n.kids {
		if k.tag != "" && k.hasClass(name) {
			return i
		}
	}
	return -1
}

// pageResult is everything one page contributed to the export.
type pageResult struct {
	root   *node
	images []string // staged names in document order
	spans  []string // ids of span elements
}

// pageTransformer builds retained representation of a single page. Asset
// references are resolved through callbacks so transformer has no knowledge
// of staging.
type pageTransformer struct {
	page  *content.Page
	langs content.Languages

	// copyImage stages image and returns name to reference it by
	copyImage func(src string) string
	// rename returns new name for reference if asset was renamed
	rename func(ref string) (string, bool)

	res        *pageResult
	rearranged bool
}

func (t *pageTransformer) transform() *pageResult {
	t.res = &pageResult{}
	t.rearranged = false
	t.res.root = t.build(t.page.Node)
	return t.res
}

func (t *pageTransformer) build(n *html.Node) *node {
	switch n.Type {
	case html.TextNode:
		return &node{text: n.Data}
	case html.ElementNode:
	default:
		// comments, doctype and anything else is dropped
		return nil
	}

	if t.unwanted(n) {
		return nil
	}

	out := &node{tag: n.Data, ns: n.Namespace}
	for _, a := range n.Attr {
		if a, ok := t.fixAttr(n, a); ok {
			out.attrs = append(out.attrs, a)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if k := t.build(c); k != nil {
			out.kids = append(out.kids, k)
		}
	}

	if n.Data == "span" {
		if id, ok := out.attr("id"); ok && id != "" {
			t.res.spans = append(t.res.spans, id)
		}
	}
	if n.Data == "div" && hasClass(n, "marginBox") && n.Parent == t.page.Node && !t.rearranged {
		t.rearranged = true
		t.rearrangeImageOnTop(out)
	}
	return out
}

// unwanted is true for elements which are not exported at all.
func (t *pageTransformer) unwanted(n *html.Node) bool {
	switch n.Data {
	case "script":
		return true
	case "label":
		return hasClass(n, "bubble")
	case "div":
		if hasClass(n, "pageLabel") {
			return true
		}
		if hasClass(n, "bloom-editable") {
			return !t.langs.Keep(attrVal(n, "lang"), t.page.XMatter())
		}
	}
	return false
}

func (t *pageTransformer) fixAttr(n *html.Node, a html.Attribute) (html.Attribute, bool) {
	if a.Namespace != "" {
		return a, true
	}
	switch a.Key {
	case "aria-describedby":
		return a, false
	case "lang":
		if a.Val == "" || a.Val == "*" {
			return a, false
		}
	case "id":
		if a.Val != "" && a.Val[0] >= '0' && a.Val[0] <= '9' {
			a.Val = "i" + a.Val
		}
	case "style":
		if n.Data == "img" && inMarginBox(n) {
			if style, ok := FixImageStyle(a.Val, t.page.SizeClass); ok {
				a.Val = style
			}
		}
	case "src":
		if n.Data == "img" {
			if a.Val != "" && isLocalRef(a.Val) {
				a.Val = t.copyImage(a.Val)
				t.res.images = append(t.res.images, a.Val)
			}
			break
		}
		fallthrough
	case "href":
		if name, ok := t.rename(a.Val); ok {
			a.Val = name
		}
	}
	return a, true
}

// rearrangeImageOnTop moves first language text above the picture on image
// on top pages shown in more than one language.
func (t *pageTransformer) rearrangeImageOnTop(marginBox *node) {
	if !t.page.HasClass("bloom-page") || !t.page.HasClass("imageOnTop") {
		return
	}
	if !t.page.HasClass("bloom-bilingual") && !t.page.HasClass("bloom-trilingual") {
		return
	}
	ic := marginBox.childWithClass("bloom-imageContainer")
	tg := marginBox.childWithClass("bloom-translationGroup")
	if ic < 0 || tg < 0 {
		return
	}
	group := marginBox.kids[tg]
	c1, c2 := group.childWithClass("bloom-content1"), group.childWithClass("bloom-content2")
	if c1 < 0 || c2 < 0 {
		return
	}

	dup := group.shallow()
	dup.kids = []*node{group.kids[c1]}
	rest := &node{tag: group.tag, ns: group.ns, attrs: group.attrs}
	rest.kids = slices.Delete(slices.Clone(group.kids), c1, c1+1)

	kids := slices.Clone(marginBox.kids)
	kids[tg] = rest
	marginBox.kids = slices.Insert(kids, ic, dup)
}

// inMarginBox reports whether image is laid out relative to the page margin
// box. Only images at least two levels below margin box which is direct
// child of a page qualify.
func inMarginBox(img *html.Node) bool {
	if img.Parent == nil {
		return false
	}
	for mb := img.Parent.Parent; mb != nil; mb = mb.Parent {
		if mb.Type == html.ElementNode && hasClass(mb, "marginBox") {
			return mb.Parent != nil && hasClass(mb.Parent, "bloom-page")
		}
	}
	return false
}

func isLocalRef(ref string) bool {
	l := strings.ToLower(ref)
	for _, p := range []string{"http:", "https:", "data:", "file:", "#"} {
		if strings.HasPrefix(l, p) {
			return false
		}
	}
	return true
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, name string) bool {
	return slices.Contains(strings.Fields(attrVal(n, "class")), name)
}
