package mdadapter

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"go.abhg.dev/goldmark/frontmatter"
)

const pageTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{ .Title }}</title>
</head>
<body>
{{ .ContentHTML }}
</body>
</html>
`

type Frontmatter struct {
	Title string `yaml:"title"`
}

type PageContext struct {
	Title       string
	ContentHTML template.HTML
}

type mdAdapter struct {
	md   goldmark.Markdown
	tmpl *template.Template
}

func NewMDAdapter() *mdAdapter {
	return &mdAdapter{
		md: goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				&frontmatter.Extender{},
				NewStatExtension(),
			),
			goldmark.WithRendererOptions(
				html.WithHardWraps(),
				html.WithXHTML(),
			),
		),
		tmpl: template.Must(template.New("page").Parse(pageTemplate)),
	}
}

// Render converts a markdown document with optional frontmatter into a full HTML page.
// counts feeds the {{ stat: <status> }} directives.
func (a *mdAdapter) Render(src []byte, counts map[string]int) (string, error) {
	pc := parser.NewContext()
	pc.Set(CountsKey, counts)

	var buf bytes.Buffer
	if err := a.md.Convert(src, &buf, parser.WithContext(pc)); err != nil {
		return "", fmt.Errorf("cannot convert markdown: %w", err)
	}

	var fm Frontmatter
	if data := frontmatter.Get(pc); data != nil {
		if err := data.Decode(&fm); err != nil {
			return "", fmt.Errorf("cannot decode frontmatter: %w", err)
		}
	}

	var page bytes.Buffer
	if err := a.tmpl.Execute(&page, &PageContext{Title: fm.Title, ContentHTML: template.HTML(buf.String())}); err != nil {
		return "", fmt.Errorf("cannot build page: %w", err)
	}

	return page.String(), nil
}
