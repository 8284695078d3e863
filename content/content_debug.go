package content

import (
	"fmt"
	"strings"
)

// String returns readable summary of the loaded book. It exists solely for
// debug reports and manual inspection.
func (b *Book) String() string {
	if b == nil {
		return "<nil Book>"
	}

	var sb strings.Builder
	line := func(depth int, format string, args ...any) {
		sb.WriteString(strings.Repeat("  ", depth))
		fmt.Fprintf(&sb, format, args...)
		sb.WriteByte('\n')
	}

	line(0, "Book %q id[%s]", b.Title, b.ID)
	line(1, "Folder: %s", b.Folder)
	line(1, "File: %s", b.File)
	line(1, "Modified: %s", b.Modified.Format("2006-01-02T15:04:05Z"))
	line(1, "Languages: primary[%s] secondary[%s] tertiary[%s] national[%s]",
		b.Languages.Primary, b.Languages.Secondary, b.Languages.Tertiary, b.Languages.National)
	line(1, "Stylesheets: %d", len(b.Stylesheets))
	for _, href := range b.Stylesheets {
		line(2, "%s", href)
	}
	line(1, "Pages: %d, front matter ends at %d, content starts at %d", len(b.Pages), b.FrontMatterLast, b.FirstContentPage())
	for _, p := range b.Pages {
		line(2, "Page[%d] size[%s] xmatter[%t] class=%q", p.Index, p.SizeClass, p.XMatter(), strings.Join(p.Classes, " "))
	}
	return sb.String()
}
