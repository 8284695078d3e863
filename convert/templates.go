package convert

import (
	"bytes"
	"fmt"
	"text/template"

	sprig "github.com/go-task/slim-sprig/v3"

	"bloomepub/config"
	"bloomepub/content"
)

// Values is a struct that holds variables we make available for template expansion
type Values struct {
	Context      string
	Title        string
	Language     string
	Languages    []string
	BookID       string
	SourceFolder string
	Pages        int
}

func buildLanguages(l content.Languages) []string {
	result := make([]string, 0, 3)
	for _, code := range []string{l.Primary, l.Secondary, l.Tertiary} {
		if code != "" {
			result = append(result, code)
		}
	}
	return result
}

func expandTemplate(book *content.Book, name config.TemplateFieldName, field, sourceFolder string) (string, error) {
	funcMap := sprig.FuncMap()

	tmpl, err := template.New(string(name)).Funcs(funcMap).Parse(field)
	if err != nil {
		return "", fmt.Errorf("unable to parse template field %s: %w", name, err)
	}

	values := Values{
		Context:      string(name),
		Title:        book.Title,
		Language:     book.Languages.Tag(),
		Languages:    buildLanguages(book.Languages),
		BookID:       book.ID,
		SourceFolder: sourceFolder,
		Pages:        len(book.Pages),
	}

	buf := new(bytes.Buffer)
	if err := tmpl.Execute(buf, values); err != nil {
		return "", err
	}
	return buf.String(), nil
}
