// Package render converts model output between formats: Markdown answers to
// sanitized HTML for web clients, and Confluence storage-format HTML to
// plain text the model can read.
package render

import (
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

var sanitizer = bluemonday.UGCPolicy()

// MarkdownHTML renders a Markdown document to sanitized HTML. The output is
// safe to embed in a browser frontend.
func MarkdownHTML(md string) string {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	doc := p.Parse([]byte(md))

	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags,
	})
	raw := markdown.Render(doc, renderer)

	return string(sanitizer.SanitizeBytes(raw))
}
