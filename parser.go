package main

import (
	"bytes"
	"html"
	"regexp"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	emoji "github.com/yuin/goldmark-emoji"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

// markdown is the shared goldmark instance for post bodies. URLs are
// linkified; email autolinking is disabled with a never-matching regexp
// (nil would fall back to goldmark's default email finder).
var markdown = goldmark.New(
	goldmark.WithExtensions(
		emoji.Emoji,
		extension.Strikethrough,
		extension.NewLinkify(
			extension.WithLinkifyEmailRegexp(regexp.MustCompile(`^$`)),
		),
	),
	goldmark.WithRendererOptions(
		gmhtml.WithUnsafe(),
	),
)

func parseMarkdownToHTML(text string) string {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		return text
	}
	return buf.String()
}

// parseHTMLStrict strips all markup and unescapes entities, leaving
// plain text. Used for topic titles and prompts.
func parseHTMLStrict(text string) string {
	return html.UnescapeString(bluemonday.StrictPolicy().Sanitize(text))
}

func parseHTMLLessStrict(text string) string {
	return bodyPolicy().Sanitize(text)
}

// renderPostBody turns a stored markdown body into sanitized HTML for the
// API response. Topic titles and prompts go through the strict policy
// instead; they render as plain text.
func renderPostBody(body string) string {
	return parseHTMLLessStrict(parseMarkdownToHTML(body))
}

// bodyPolicy is the bluemonday policy for post bodies: UGC-style inline
// and block formatting, no headings, no tables, no images.
func bodyPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()

	// Allowed block elements (no h1-h6, no tables)
	p.AllowElements("p", "br", "hr", "div", "span")
	p.AllowElements("blockquote", "pre")
	p.AllowElements("ul", "ol", "li")

	// Inline formatting
	p.AllowElements("b", "i", "strong", "em", "u", "s", "strike", "del", "ins")
	p.AllowElements("sub", "sup", "small", "mark")

	// Code
	p.AllowElements("code")
	p.AllowAttrs("class").Matching(regexp.MustCompile(`^language-[\w-]+$`)).OnElements("code")

	// Links
	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("title").OnElements("a")
	p.AllowRelativeURLs(true)
	p.RequireNoFollowOnLinks(true)
	p.RequireNoReferrerOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)

	return p
}
