package export

import (
	"strings"
)

// RenderMarkdown writes the outline as a nested bullet list, two spaces per
// level. Continuation lines of multi-line content stay inside their bullet.
func RenderMarkdown(title string, items []Item) string {
	var b strings.Builder
	if title != "" {
		b.WriteString("# ")
		b.WriteString(title)
		b.WriteString("\n\n")
	}
	writeItems(&b, items, 0)
	return b.String()
}

func writeItems(b *strings.Builder, items []Item, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, item := range items {
		b.WriteString(indent)
		b.WriteString("- ")
		b.WriteString(strings.ReplaceAll(item.Content, "\n", "\n"+indent+"  "))
		b.WriteString("\n")
		writeItems(b, item.Children, depth+1)
	}
}
