package convert

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"bloomepub/config"
	"bloomepub/content"
	"bloomepub/state"
)

func setupTestEnvForOutputPath(t *testing.T, transliterate bool, template string) *state.LocalEnv {
	t.Helper()
	logger := zaptest.NewLogger(t, zaptest.WrapOptions(zap.AddCaller(), zap.AddCallerSkip(1)))
	cfg, err := config.LoadConfiguration("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.Document.FileNameTransliterate = transliterate
	cfg.Document.OutputNameTemplate = template

	return &state.LocalEnv{
		Log: logger,
		Cfg: cfg,
	}
}

func setupTestBook(t *testing.T) *content.Book {
	t.Helper()
	return &content.Book{
		ID:        "0d6e2b5a-1111",
		Title:     "Buk Bilong Mi",
		Languages: content.Languages{Primary: "tpi", Secondary: "en"},
		Pages:     []*content.Page{{Index: 1}, {Index: 2}},
	}
}

func TestBuildOutputPath(t *testing.T) {
	dst := filepath.Join("out", "books")

	tests := []struct {
		name          string
		transliterate bool
		template      string
		source        string
		dst           string
		want          string
	}{
		{
			name:   "default name",
			source: "My Book",
			dst:    dst,
			want:   filepath.Join(dst, "My Book.epub"),
		},
		{
			name:   "dots are kept",
			source: "Book v1.2",
			dst:    dst,
			want:   filepath.Join(dst, "Book v1.2.epub"),
		},
		{
			name:          "transliterated",
			transliterate: true,
			source:        "Über Café",
			dst:           dst,
			want:          filepath.Join(dst, "uber-cafe.epub"),
		},
		{
			name:   "explicit file",
			source: "My Book",
			dst:    filepath.Join("out", "Result.EPUB"),
			want:   filepath.Join("out", "Result.EPUB"),
		},
		{
			name:     "template",
			template: "{{ .Language }}/{{ .Title }}",
			source:   "My Book",
			dst:      dst,
			want:     filepath.Join(dst, "tpi", "Buk Bilong Mi.epub"),
		},
		{
			name:     "template with sprig",
			template: `{{ .SourceFolder | upper }}-{{ .Pages }}-{{ join "+" .Languages }}`,
			source:   "My Book",
			dst:      dst,
			want:     filepath.Join(dst, "MY BOOK-2-tpi+en.epub"),
		},
		{
			name:          "template transliterated",
			transliterate: true,
			template:      "{{ .Title }}",
			source:        "My Book",
			dst:           dst,
			want:          filepath.Join(dst, "buk-bilong-mi.epub"),
		},
		{
			name:     "broken template falls back",
			template: "{{ .Missing ",
			source:   "My Book",
			dst:      dst,
			want:     filepath.Join(dst, "My Book.epub"),
		},
		{
			name:     "empty expansion falls back",
			template: "{{ if false }}x{{ end }}",
			source:   "My Book",
			dst:      dst,
			want:     filepath.Join(dst, "My Book.epub"),
		},
		{
			name:     "parent references dropped",
			template: "../{{ .BookID }}",
			source:   "My Book",
			dst:      dst,
			want:     filepath.Join(dst, "0d6e2b5a-1111.epub"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEnvForOutputPath(t, tt.transliterate, tt.template)
			got := buildOutputPath(setupTestBook(t), tt.source, tt.dst, env)
			if got != tt.want {
				t.Errorf("buildOutputPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSplitAndCleanPath(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{in: "a", want: 1},
		{in: filepath.Join("a", "b", "c"), want: 3},
		{in: filepath.Join("a", "b") + string(filepath.Separator), want: 2},
		{in: "", want: 0},
	}
	for _, tt := range tests {
		if got := splitAndCleanPath(tt.in); len(got) != tt.want {
			t.Errorf("splitAndCleanPath(%q) = %q, want %d segments", tt.in, got, tt.want)
		}
	}
}
