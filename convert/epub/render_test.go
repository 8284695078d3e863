package epub

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/google/go-cmp/cmp"
	"golang.org/x/net/html"
)

func parseHead(t *testing.T, markup string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader("<html><head>" + markup + "</head><body></body></html>"))
	if err != nil {
		t.Fatal(err)
	}
	var find func(*html.Node) *html.Node
	find = func(n *html.Node) *html.Node {
		if n.Type == html.ElementNode && n.Data == "head" {
			return n
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if h := find(c); h != nil {
				return h
			}
		}
		return nil
	}
	return find(doc)
}

func attrValues(els []*etree.Element, key string) []string {
	var res []string
	for _, el := range els {
		res = append(res, el.SelectAttrValue(key, ""))
	}
	return res
}

func TestRenderPage_Head(t *testing.T) {
	head := headNodes(parseHead(t, `
<meta charset="windows-1252">
<meta http-equiv="Content-Type" content="text/html; charset=windows-1252">
<meta name="bloom-book-id" content="abc">
<script src="bloom.js"></script>
<link rel="stylesheet" href="basePage.css">
<link rel="icon" href="icon.png">
<style>.x { color: red; }</style>`))

	doc := renderPage(head, "Fallback", &node{tag: "div"}, []string{"basePage.css", "customBookStyles.css"})

	metas := doc.FindElements("//head/meta")
	if got := attrValues(metas, "charset"); !cmp.Equal(got, []string{"UTF-8", ""}) {
		t.Errorf("charset metas = %q, want only generated one", got)
	}
	if doc.FindElement("//head/script") != nil {
		t.Error("script copied to head")
	}
	if doc.FindElement("//head/style") == nil {
		t.Error("style element lost")
	}
	if got := doc.FindElement("//head/title"); got == nil || got.Text() != "Fallback" {
		t.Error("title was not added")
	}

	var sheets []*etree.Element
	for _, l := range doc.FindElements("//head/link") {
		if l.SelectAttrValue("rel", "") == "stylesheet" {
			sheets = append(sheets, l)
		}
	}
	if diff := cmp.Diff([]string{"basePage.css", "customBookStyles.css", "fonts.css"}, attrValues(sheets, "href")); diff != "" {
		t.Errorf("stylesheet links mismatch (-want +got):\n%s", diff)
	}
	if doc.FindElement("//head/link[@rel='icon']") == nil {
		t.Error("non stylesheet link lost")
	}

	body := doc.FindElement("//body")
	if body.SelectAttrValue("class", "") != "publishMode" {
		t.Errorf("body class = %q", body.SelectAttrValue("class", ""))
	}
	if root := doc.Root(); root.Tag != "html" || root.SelectAttrValue("xmlns", "") != nsXHTML {
		t.Error("root is not XHTML html element")
	}
}

func TestRenderPage_KeepsTitle(t *testing.T) {
	head := headNodes(parseHead(t, `<title>Book</title>`))
	doc := renderPage(head, "Fallback", nil, nil)
	titles := doc.FindElements("//head/title")
	if len(titles) != 1 || titles[0].Text() != "Book" {
		t.Errorf("got %d titles", len(titles))
	}
}

func TestValidXMLName(t *testing.T) {
	for name, want := range map[string]bool{
		"class":      true,
		"data-x":     true,
		"xlink:href": true,
		"_a.b":       true,
		"":           false,
		"1a":         false,
		"-a":         false,
		`a"b`:        false,
		"a=b":        false,
	} {
		if got := validXMLName(name); got != want {
			t.Errorf("validXMLName(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestNavEntries(t *testing.T) {
	tests := []struct {
		name         string
		cover, first string
		want         []navEntry
	}{
		{
			name:  "cover and content",
			cover: "1.xhtml", first: "3.xhtml",
			want: []navEntry{{label: "Cover", href: "1.xhtml"}, {label: "Content", href: "3.xhtml"}},
		},
		{
			name:  "content is cover",
			cover: "1.xhtml", first: "1.xhtml",
			want: []navEntry{{label: "Content", href: "1.xhtml"}},
		},
		{
			name:  "no content",
			cover: "1.xhtml",
			want:  []navEntry{{label: "Cover", href: "1.xhtml"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := navEntries(tt.cover, tt.first)
			if diff := cmp.Diff(tt.want, got, cmp.AllowUnexported(navEntry{})); diff != "" {
				t.Errorf("navEntries() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRenderNav(t *testing.T) {
	doc := renderNav([]navEntry{{label: "Cover", href: "1.xhtml"}, {label: "Content", href: "3.xhtml"}})

	nav := doc.FindElement("//nav")
	if nav == nil || nav.SelectAttrValue("epub:type", "") != "toc" {
		t.Fatal("toc nav missing")
	}
	links := doc.FindElements("//nav/ol/li/a")
	if diff := cmp.Diff([]string{"1.xhtml", "3.xhtml"}, attrValues(links, "href")); diff != "" {
		t.Errorf("hrefs mismatch (-want +got):\n%s", diff)
	}
	if links[0].Text() != "Cover" || links[1].Text() != "Content" {
		t.Errorf("labels = %q, %q", links[0].Text(), links[1].Text())
	}
}

func TestFindAudio(t *testing.T) {
	folder := t.TempDir()
	writeFile(t, filepath.Join(folder, "audio", "a1.mp3"), []byte("mp3"))
	writeFile(t, filepath.Join(folder, "audio", "a2.mp4"), []byte("mp4"))
	writeFile(t, filepath.Join(folder, "audio", "both.mp3"), []byte("mp3"))
	writeFile(t, filepath.Join(folder, "audio", "both.mp4"), []byte("mp4"))
	writeFile(t, filepath.Join(folder, "audio", "a3.wav"), []byte("wav"))

	for id, want := range map[string]string{
		"a1":      "audio/a1.mp3",
		"a2":      "audio/a2.mp4",
		"both":    "audio/both.mp3",
		"a3":      "",
		"missing": "",
		"../a1":   "",
		"":        "",
	} {
		got, ok := findAudio(folder, id)
		if got != want || ok != (want != "") {
			t.Errorf("findAudio(%q) = (%q, %v), want %q", id, got, ok, want)
		}
	}
}

func TestRenderOverlay(t *testing.T) {
	if got := overlayName("3.xhtml"); got != "3_overlay.smil" {
		t.Errorf("overlayName() = %q", got)
	}

	doc := renderOverlay("3.xhtml", []narration{{id: "s1", audio: "audio/s1.mp3"}, {id: "s2", audio: "audio/s2.mp4"}})

	smil := doc.Root()
	if smil.Tag != "smil" || smil.SelectAttrValue("xmlns", "") != nsSMIL || smil.SelectAttrValue("version", "") != "3.0" {
		t.Fatal("bad smil root")
	}
	seq := doc.FindElement("//body/seq")
	if seq == nil || seq.SelectAttrValue("epub:textref", "") != "3.xhtml" {
		t.Fatal("seq does not reference page")
	}
	pars := doc.FindElements("//seq/par")
	if diff := cmp.Diff([]string{"s1", "s2"}, attrValues(pars, "id")); diff != "" {
		t.Errorf("par ids mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"3.xhtml#s1", "3.xhtml#s2"}, attrValues(doc.FindElements("//par/text"), "src")); diff != "" {
		t.Errorf("text src mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"audio/s1.mp3", "audio/s2.mp4"}, attrValues(doc.FindElements("//par/audio"), "src")); diff != "" {
		t.Errorf("audio src mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderOPF(t *testing.T) {
	m := NewManifest()
	mustAdd := func(href string, props ...string) {
		t.Helper()
		if _, err := m.Add(href, props...); err != nil {
			t.Fatal(err)
		}
	}
	mustAdd("1.xhtml")
	mustAdd("1_overlay.smil")
	mustAdd("thumbnail.png", "cover-image")
	mustAdd("nav.xhtml", "nav")
	if err := m.AddSpine("1.xhtml"); err != nil {
		t.Fatal(err)
	}
	if err := m.SetMediaOverlay("1.xhtml", "1_overlay.smil"); err != nil {
		t.Fatal(err)
	}

	modified := time.Date(2024, 3, 5, 7, 8, 9, 0, time.FixedZone("X", 3600))
	doc := renderOPF(packageMeta{ID: "abc", Title: "Title", Language: "tpi", Modified: modified}, m)

	pkg := doc.Root()
	if pkg.SelectAttrValue("version", "") != "3.0" || pkg.SelectAttrValue("unique-identifier", "") != "Iabc" {
		t.Error("package attributes are wrong")
	}
	id := doc.FindElement("//metadata/dc:identifier")
	if id == nil || id.SelectAttrValue("id", "") != "Iabc" || id.Text() != "bloomlibrary.org.abc" {
		t.Error("identifier is wrong")
	}
	if got := doc.FindElement("//metadata/dc:language").Text(); got != "tpi" {
		t.Errorf("language = %q", got)
	}
	if got := doc.FindElement("//metadata/meta[@property='dcterms:modified']").Text(); got != "2024-03-05T06:08:09Z" {
		t.Errorf("modified = %q", got)
	}

	items := doc.FindElements("//manifest/item")
	if diff := cmp.Diff([]string{"f1", "f1_overlay", "fthumbnail", "fnav"}, attrValues(items, "id")); diff != "" {
		t.Errorf("item ids mismatch (-want +got):\n%s", diff)
	}
	if items[0].SelectAttrValue("media-overlay", "") != "f1_overlay" {
		t.Error("page is not linked to overlay")
	}
	if items[2].SelectAttrValue("properties", "") != "cover-image" || items[3].SelectAttrValue("properties", "") != "nav" {
		t.Error("properties are wrong")
	}
	if items[1].SelectAttrValue("media-type", "") != "application/smil+xml" {
		t.Error("overlay media type is wrong")
	}
	if diff := cmp.Diff([]string{"f1"}, attrValues(doc.FindElements("//spine/itemref"), "idref")); diff != "" {
		t.Errorf("spine mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderOPF_Rendition(t *testing.T) {
	tests := []struct {
		name       string
		meta       packageMeta
		wantPrefix string
		want       []string
	}{
		{name: "reflowable"},
		{
			name:       "fixed portrait",
			meta:       packageMeta{FixedLayout: true},
			wantPrefix: "rendition: http://www.idpf.org/vocab/rendition/#",
			want:       []string{"rendition:layout=pre-paginated"},
		},
		{
			name:       "fixed landscape",
			meta:       packageMeta{FixedLayout: true, Landscape: true},
			wantPrefix: "rendition: http://www.idpf.org/vocab/rendition/#",
			want:       []string{"rendition:layout=pre-paginated", "rendition:orientation=landscape", "rendition:spread=none"},
		},
		{name: "landscape alone changes nothing", meta: packageMeta{Landscape: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.meta.ID = "abc"
			doc := renderOPF(tt.meta, NewManifest())
			if got := doc.Root().SelectAttrValue("prefix", ""); got != tt.wantPrefix {
				t.Errorf("prefix = %q, want %q", got, tt.wantPrefix)
			}
			var got []string
			for _, m := range doc.FindElements("//metadata/meta") {
				if p := m.SelectAttrValue("property", ""); p != "dcterms:modified" {
					got = append(got, p+"="+m.Text())
				}
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("rendition metadata mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRenderContainer(t *testing.T) {
	doc := renderContainer()
	rf := doc.FindElement("//rootfiles/rootfile")
	if rf == nil || rf.SelectAttrValue("full-path", "") != "content/content.opf" {
		t.Error("rootfile is wrong")
	}
}
