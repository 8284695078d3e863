package epub

import (
	"errors"
	"regexp"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMediaType(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"1.xhtml", "application/xhtml+xml", false},
		{"page.xml", "application/xhtml+xml", false},
		{"a.jpg", "image/jpeg", false},
		{"a.JPEG", "image/jpeg", false},
		{"images/a.png", "image/png", false},
		{"fonts.css", "text/css", false},
		{"f.woff", "application/font-woff", false},
		{"f.woff2", "font/woff2", false},
		{"f.ttf", "application/font-sfnt", false},
		{"f.otf", "application/font-sfnt", false},
		{"1_overlay.smil", "application/smil+xml", false},
		{"audio/x.mp4", "audio/mp4", false},
		{"audio/x.mp3", "audio/mpeg", false},
		{"a.gif", "", true},
		{"noext", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MediaType(tt.name)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedAssetType) {
					t.Fatalf("MediaType(%q) error = %v, want ErrUnsupportedAssetType", tt.name, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("MediaType(%q) error = %v", tt.name, err)
			}
			if got != tt.want {
				t.Errorf("MediaType(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestManifest_IDs(t *testing.T) {
	m := NewManifest()
	hrefs := []string{
		"1.xhtml", "2.xhtml", "cover photo.png", "coverphoto.jpg", "CoverPhoto.png",
		"audio/a-b.mp3", "images/1.png", "fonts.css", "nav.xhtml", "x.y.png",
	}
	want := []string{
		"f1", "f2", "fcoverphoto", "fcoverphoto1", "fCoverPhoto2",
		"fa_b", "f11", "ffonts", "fnav", "fx_y",
	}

	var got []string
	for _, h := range hrefs {
		id, err := m.Add(h)
		if err != nil {
			t.Fatalf("Add(%q): %v", h, err)
		}
		got = append(got, id)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}

	re := regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
	seen := make(map[string]bool)
	for _, it := range m.Items() {
		if !re.MatchString(it.ID) {
			t.Errorf("id %q is not XML safe", it.ID)
		}
		if seen[it.ID] {
			t.Errorf("duplicate id %q", it.ID)
		}
		seen[it.ID] = true
	}
}

func TestManifest_Idempotent(t *testing.T) {
	m := NewManifest()
	id1, err := m.Add("thumbnail.png")
	if err != nil {
		t.Fatal(err)
	}
	id2, err := m.Add("thumbnail.png", "cover-image")
	if err != nil {
		t.Fatal(err)
	}
	if id1 != id2 {
		t.Errorf("ids differ: %q != %q", id1, id2)
	}
	if len(m.Items()) != 1 {
		t.Fatalf("got %d items, want 1", len(m.Items()))
	}
	if diff := cmp.Diff([]string{"cover-image"}, m.Items()[0].Properties); diff != "" {
		t.Errorf("properties mismatch (-want +got):\n%s", diff)
	}
}

func TestManifest_Unsupported(t *testing.T) {
	m := NewManifest()
	if _, err := m.Add("picture.gif"); !errors.Is(err, ErrUnsupportedAssetType) {
		t.Errorf("Add() error = %v, want ErrUnsupportedAssetType", err)
	}
	if len(m.Items()) != 0 {
		t.Errorf("unsupported item was added")
	}
}

func TestManifest_SpineAndOverlay(t *testing.T) {
	m := NewManifest()
	for _, h := range []string{"1.xhtml", "2.xhtml", "2_overlay.smil"} {
		if _, err := m.Add(h); err != nil {
			t.Fatal(err)
		}
	}
	for _, h := range []string{"1.xhtml", "2.xhtml"} {
		if err := m.AddSpine(h); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.AddSpine("3.xhtml"); err == nil {
		t.Error("AddSpine() for unknown item should fail")
	}
	if err := m.SetMediaOverlay("2.xhtml", "2_overlay.smil"); err != nil {
		t.Fatal(err)
	}
	if err := m.SetMediaOverlay("2.xhtml", "missing.smil"); err == nil {
		t.Error("SetMediaOverlay() for unknown overlay should fail")
	}

	if diff := cmp.Diff([]string{"f1", "f2"}, m.Spine()); diff != "" {
		t.Errorf("spine mismatch (-want +got):\n%s", diff)
	}
	it, ok := m.Lookup("2.xhtml")
	if !ok {
		t.Fatal("page 2 not found")
	}
	if it.MediaOverlay != "f2_overlay" {
		t.Errorf("media overlay = %q, want f2_overlay", it.MediaOverlay)
	}

	ids := make(map[string]bool)
	for _, it := range m.Items() {
		ids[it.ID] = true
	}
	for _, ref := range m.Spine() {
		if !ids[ref] {
			t.Errorf("spine idref %q does not resolve", ref)
		}
	}
}
