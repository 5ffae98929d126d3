package utils

import (
	"bytes"
	"html/template"
	"regexp"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

// a line holding nothing but an image address; chain front-ends show these
// as images, so the forum does too
var bareImageLine = regexp.MustCompile(`(?im)^[ \t]*(https?://\S+\.(?:png|jpe?g|gif|webp))[ \t]*$`)

var (
	// bodies written on other front-ends mix markdown with raw HTML; the
	// policy decides what survives
	bodyMarkdown = goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Linkify),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithXHTML(),
			html.WithUnsafe(),
		),
	)
	bodyPolicy = newBodyPolicy()
)

func newBodyPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowImages()
	p.AllowAttrs("class").OnElements("div", "span", "p")
	p.AllowElements("center", "sub", "sup")
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)
	return p
}

// RenderMarkdown converts a post body to sanitized HTML
func RenderMarkdown(source string) template.HTML {
	source = bareImageLine.ReplaceAllString(source, "![]($1)")

	var buf bytes.Buffer
	if err := bodyMarkdown.Convert([]byte(source), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(source))
	}
	return EnhanceHTMLContent(string(bodyPolicy.SanitizeBytes(buf.Bytes())))
}

// Excerpt renders source and returns at most max runes of plain text
func Excerpt(source string, max int) string {
	return PlainText(string(RenderMarkdown(source)), max)
}
