package epub

import (
	"path"
	"slices"
	"strings"
)

const (
	fontsStylesheet       = "fonts.css"
	unpaginatedStylesheet = "epubUnpaginated.css"
	settingsStylesheet    = "settingsCollectionStyles.css"
)

var paginatedStylesheets = []string{"basePage.css", "previewMode.css", "origami.css"}

// Known stylesheets in order of precedence, lower case name prefixes.
// Unknown names go between leading and trailing groups.
var (
	leadingStylesheets = []string{
		"basepage", "languagedisplay", "editmode", "editoriginalmode",
		"edittranslationmode", "previewmode", "origami",
	}
	trailingStylesheets = []string{
		"settingscollectionstyles", "customcollectionstyles", "custombookstyles",
	}
)

// StylesheetName strips file URL scheme and directories from href.
func StylesheetName(href string) string {
	href = strings.TrimPrefix(href, "file:///")
	href = strings.TrimPrefix(href, "file://")
	href = strings.ReplaceAll(href, `\`, "/")
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	return path.Base(href)
}

func isModeStylesheet(href string) bool {
	name := strings.ToLower(StylesheetName(href))
	return strings.Contains(name, "edit") || strings.Contains(name, "preview")
}

func keptUnpaginated(href string) bool {
	name := StylesheetName(href)
	return strings.HasPrefix(strings.ToLower(name), "custom") || strings.EqualFold(name, settingsStylesheet)
}

func stylesheetRank(href string) int {
	name := strings.ToLower(StylesheetName(href))
	for i, p := range leadingStylesheets {
		if strings.HasPrefix(name, p) {
			return i
		}
	}
	for i, p := range trailingStylesheets {
		if strings.HasPrefix(name, p) {
			return len(leadingStylesheets) + 1 + i
		}
	}
	return len(leadingStylesheets)
}

// SortStylesheets orders links by precedence, unknown ones alphabetically.
// Order of equal entries is kept.
func SortStylesheets(links []string) []string {
	res := slices.Clone(links)
	slices.SortStableFunc(res, func(a, b string) int {
		ra, rb := stylesheetRank(a), stylesheetRank(b)
		if ra != rb {
			return ra - rb
		}
		if ra != len(leadingStylesheets) {
			return 0
		}
		return strings.Compare(strings.ToLower(StylesheetName(a)), strings.ToLower(StylesheetName(b)))
	})
	return res
}

// PageStylesheets turns stylesheet links of the source book into the list
// of file names output page links to, fonts.css is not included.
func PageStylesheets(links []string, unpaginated bool) []string {
	var res []string
	for _, l := range links {
		if isModeStylesheet(l) {
			continue
		}
		if unpaginated && !keptUnpaginated(l) {
			continue
		}
		res = append(res, l)
	}
	if unpaginated {
		res = append(res, unpaginatedStylesheet)
	} else {
		res = append(res, paginatedStylesheets...)
	}

	res = SortStylesheets(res)

	names := make([]string, 0, len(res))
	seen := make(map[string]bool, len(res))
	for _, l := range res {
		name := StylesheetName(l)
		if name == "" || name == "." || name == "/" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}
