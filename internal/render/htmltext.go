package render

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	tagPattern        = regexp.MustCompile(`(?s)<(?:p|div|br|table|span|a|ul|ol|li|h[1-6]|ac:[a-z-]+)\b`)
	whitespacePattern = regexp.MustCompile(`[ \t]+`)
	blankLinePattern  = regexp.MustCompile(`\n{3,}`)
)

// LooksLikeHTML reports whether a tool result payload appears to be
// Confluence storage-format or other HTML markup rather than plain text.
func LooksLikeHTML(s string) bool {
	return tagPattern.MatchString(s)
}

// FlattenHTML extracts the readable text from an HTML fragment. Block
// elements become line breaks so lists and tables stay legible. Input that
// cannot be parsed is returned unchanged.
func FlattenHTML(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}

	// Line breaks around block-level elements keep structure readable
	// once the tags are gone.
	doc.Find("p, div, li, tr, h1, h2, h3, h4, h5, h6, br").Each(func(_ int, sel *goquery.Selection) {
		sel.AfterHtml("\n")
	})

	text := doc.Text()
	text = whitespacePattern.ReplaceAllString(text, " ")

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		lines = append(lines, strings.TrimSpace(line))
	}
	text = strings.Join(lines, "\n")
	text = blankLinePattern.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}
