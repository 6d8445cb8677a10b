// ABOUTME: HTML templates and markdown rendering for the web front-end
// ABOUTME: Assistant replies are markdown; raw HTML in replies is never passed through

package web

import (
	"bytes"
	"embed"
	"html/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

//go:embed templates/*.html
var templateFS embed.FS

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// renderMarkdown converts markdown to HTML. goldmark omits raw HTML unless
// html.WithUnsafe is set, so the result is safe to embed.
func renderMarkdown(src string) template.HTML {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(buf.String())
}

func parseTemplates() (*template.Template, error) {
	return template.New("").
		Funcs(template.FuncMap{"md": renderMarkdown}).
		ParseFS(templateFS, "templates/*.html")
}
