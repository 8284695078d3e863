package epub

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"

	"bloomepub/archive"
)

func stageContent(t *testing.T, files map[string]string) string {
	t.Helper()
	staging := t.TempDir()
	for name, data := range files {
		writeFile(t, filepath.Join(staging, contentDir, filepath.FromSlash(name)), []byte(data))
	}
	return staging
}

func zipNames(t *testing.T, name string) []*zip.File {
	t.Helper()
	r, err := zip.OpenReader(name)
	if err != nil {
		t.Fatalf("unable to open result: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r.File
}

func TestWritePackage(t *testing.T) {
	for _, fix := range []bool{false, true} {
		name := "plain"
		if fix {
			name = "fixed"
		}
		t.Run(name, func(t *testing.T) {
			staging := stageContent(t, map[string]string{
				"content.opf":    "<package/>",
				"10.xhtml":       "<html/>",
				"2.xhtml":        "<html/>",
				"images/a.png":   "png",
				"audio/a1.mp3":   "mp3",
				"fonts.css":      "",
				"basePage.css":   "body{}",
				"1_overlay.smil": "<smil/>",
			})
			outDir := t.TempDir()
			dest := filepath.Join(outDir, "sub", "book.epub")

			if err := writePackage(staging, dest, packageOptions{fixZip: fix, verify: true}, zaptest.NewLogger(t)); err != nil {
				t.Fatalf("writePackage() error = %v", err)
			}

			files := zipNames(t, dest)
			var names []string
			for _, f := range files {
				names = append(names, f.Name)
			}
			want := []string{
				"mimetype",
				"META-INF/container.xml",
				"content/1_overlay.smil",
				"content/2.xhtml",
				"content/10.xhtml",
				"content/audio/a1.mp3",
				"content/basePage.css",
				"content/content.opf",
				"content/fonts.css",
				"content/images/a.png",
			}
			if diff := cmp.Diff(want, names); diff != "" {
				t.Errorf("entries mismatch (-want +got):\n%s", diff)
			}

			if files[0].Method != zip.Store {
				t.Error("mimetype must be stored")
			}
			rc, err := files[0].Open()
			if err != nil {
				t.Fatal(err)
			}
			data, _ := io.ReadAll(rc)
			rc.Close()
			if string(data) != mimetypeContent {
				t.Errorf("mimetype = %q", data)
			}
			if fix {
				for _, f := range files {
					if f.Flags&0x8 != 0 {
						t.Errorf("%s still has data descriptor", f.Name)
					}
				}
			}

			if err := archive.VerifyEPUB(dest); err != nil {
				t.Errorf("VerifyEPUB() error = %v", err)
			}

			entries, err := os.ReadDir(filepath.Dir(dest))
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) != 1 {
				t.Errorf("output directory has %d entries, temporary files left behind", len(entries))
			}
		})
	}
}

func TestWritePackage_Replaces(t *testing.T) {
	staging := stageContent(t, map[string]string{"content.opf": "<package/>"})
	dest := filepath.Join(t.TempDir(), "book.epub")
	writeFile(t, dest, []byte("old"))

	if err := writePackage(staging, dest, packageOptions{verify: true}, zaptest.NewLogger(t)); err != nil {
		t.Fatalf("writePackage() error = %v", err)
	}
	if len(zipNames(t, dest)) != 3 {
		t.Error("existing file was not replaced")
	}
}

func TestWritePackage_FailureLeavesNothing(t *testing.T) {
	// no content directory staged
	staging := t.TempDir()
	outDir := t.TempDir()
	dest := filepath.Join(outDir, "book.epub")

	if err := writePackage(staging, dest, packageOptions{verify: true}, zaptest.NewLogger(t)); err == nil {
		t.Fatal("writePackage() should fail without staged content")
	}
	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("output directory is not empty: %d entries", len(entries))
	}
}
