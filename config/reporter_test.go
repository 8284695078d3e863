package config

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReport_NilIsSafe(t *testing.T) {
	var r *Report
	r.Store("x", "y")
	r.StoreData("x", []byte("y"))
	if err := r.StoreCopy("x", "y"); err != nil {
		t.Errorf("StoreCopy() on nil report error = %v", err)
	}
	if r.Name() != "" {
		t.Errorf("Name() on nil report = %q", r.Name())
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close() on nil report error = %v", err)
	}
}

func TestReport_Finalize(t *testing.T) {
	tmpDir := t.TempDir()

	conf := ReporterConfig{Destination: filepath.Join(tmpDir, "report.zip")}
	r, err := conf.Prepare()
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	staging := filepath.Join(tmpDir, "staging")
	if err := os.MkdirAll(filepath.Join(staging, "content"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(staging, "content", "1.xhtml"), []byte("<html/>"), 0644); err != nil {
		t.Fatal(err)
	}

	r.StoreConfig("test.yaml", []byte("version: 1\n"))
	if err := r.StoreStaging(staging); err != nil {
		t.Fatalf("StoreStaging() error = %v", err)
	}
	// staging directory is gone before report is closed
	if err := os.RemoveAll(staging); err != nil {
		t.Fatal(err)
	}
	copyDir := r.entries["staging"].snapshot

	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	zr, err := zip.OpenReader(conf.Destination)
	if err != nil {
		t.Fatalf("open report: %v", err)
	}
	defer zr.Close()

	found := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		found[f.Name] = string(data)
	}

	if !strings.Contains(found["MANIFEST"], "config/test.yaml") {
		t.Errorf("MANIFEST does not list stored data: %q", found["MANIFEST"])
	}
	if found["config/test.yaml"] != "version: 1\n" {
		t.Errorf("stored data = %q", found["config/test.yaml"])
	}
	if found["staging/content/1.xhtml"] != "<html/>" {
		t.Errorf("staging copy missing from report, have %v", keys(found))
	}
	if _, err := os.Stat(copyDir); !os.IsNotExist(err) {
		t.Errorf("temporary copy %s was not removed", copyDir)
	}
}

func TestReport_StoreTwicePanics(t *testing.T) {
	r := &Report{entries: make(map[string]entry)}
	r.StoreData("a", []byte("1"))
	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate StoreData")
		}
	}()
	r.StoreData("a", []byte("2"))
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestReport_Layout(t *testing.T) {
	tmpDir := t.TempDir()

	epub := filepath.Join(tmpDir, "Book.epub")
	if err := os.WriteFile(epub, []byte("PK"), 0644); err != nil {
		t.Fatal(err)
	}
	logFile := filepath.Join(tmpDir, "run.log")
	if err := os.WriteFile(logFile, []byte("started\n"), 0644); err != nil {
		t.Fatal(err)
	}

	conf := ReporterConfig{Destination: filepath.Join(tmpDir, "report.zip")}
	r, err := conf.Prepare()
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	r.StoreLog("final", logFile)
	r.StoreBook("abc", "Title: Book\n")
	r.StoreResult("abc", epub)
	// second snapshot of the same directory gets versioned name
	for range 2 {
		if err := r.StoreStaging(tmpDir); err != nil {
			t.Fatalf("StoreStaging() error = %v", err)
		}
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	zr, err := zip.OpenReader(conf.Destination)
	if err != nil {
		t.Fatalf("open report: %v", err)
	}
	defer zr.Close()

	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	for _, want := range []string{"MANIFEST", "final.log", "book-abc.txt", "result-abc.epub", "staging/Book.epub"} {
		if !names[want] {
			t.Errorf("report has no %s, have %v", want, names)
		}
	}
	versioned := 0
	for name := range names {
		if strings.HasPrefix(name, "staging-") && strings.HasSuffix(name, "/run.log") {
			versioned++
		}
	}
	if versioned != 1 {
		t.Errorf("versioned staging snapshots = %d, want 1", versioned)
	}
}
