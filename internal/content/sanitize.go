// ABOUTME: Allow-list HTML sanitizer and markdown renderer for user content
// ABOUTME: Every rendered post, comment, description and chat message passes through here

package content

import (
	"bytes"
	"regexp"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/2389/chorale/internal/store"
)

// safeURL accepts http(s), data: and root-relative URLs. Protocol-relative
// URLs ("//host") are rejected.
var safeURL = regexp.MustCompile(`^(https?:|data:|/[^/])`)

var policy = newPolicy()

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.Linkify, extension.Strikethrough),
	goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
)

func newPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "strong", "b", "em", "i", "u", "s", "strike", "span", "div",
		"blockquote", "pre", "code", "h1", "h2", "h3", "h4", "hr", "ul", "ol", "li",
	)

	p.AllowAttrs("href").Matching(safeURL).OnElements("a")
	p.AllowAttrs("target", "rel").OnElements("a")

	p.AllowAttrs("src").Matching(safeURL).OnElements("img", "video", "audio", "source", "iframe")
	p.AllowAttrs("alt").OnElements("img")
	p.AllowAttrs("width", "height").OnElements("img", "video", "audio", "iframe")
	p.AllowAttrs("controls", "poster", "playsinline", "preload").OnElements("video", "audio")
	p.AllowAttrs("type").OnElements("source")
	p.AllowAttrs("allow", "allowfullscreen", "frameborder").OnElements("iframe")

	// media containers are kept even when their own src was dropped,
	// since <source> children may still carry one
	p.AllowNoAttrs().OnElements("video", "audio")

	return p
}

// Sanitize strips everything outside the allow-list from html.
func Sanitize(html string) string {
	return policy.Sanitize(html)
}

// RenderHTML prepares stored rich-text content for display: placeholders are
// re-resolved leniently against atts, then the result is sanitized.
func RenderHTML(html string, atts []store.Attachment) string {
	return Sanitize(ResolveLenient(html, atts))
}

// RenderMarkdown converts plain text or markdown to sanitized HTML. Raw HTML in
// the source is not passed through.
func RenderMarkdown(src string) string {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return Sanitize("<p>" + bluemonday.StrictPolicy().Sanitize(src) + "</p>")
	}
	return Sanitize(buf.String())
}
