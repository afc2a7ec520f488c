package export

import (
	"bytes"
	"embed"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var outlineTemplate = template.Must(template.New("outline.html").Funcs(template.FuncMap{
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
}).ParseFS(templateFS, "templates/outline.html"))

// TemplateData holds data for outline template rendering
type TemplateData struct {
	Title       string
	Items       []Item
	Nodes       int
	GeneratedAt time.Time
}

func RenderHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := outlineTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
