package render

import (
	"bytes"
	"html"
	"regexp"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	ghtml "github.com/yuin/goldmark/renderer/html"
)

// codeSpanPattern matches <code>…</code> spans and <pre><code>…</code></pre>
// blocks, non-greedily, across lines.
var codeSpanPattern = regexp.MustCompile(`(?is)(<pre><code[^>]*>|<code[^>]*>)(.*?)(</code></pre>|</code>)`)

// Markdown converts comment and preview text to HTML. The dialect is
// GitHub-flavored with raw HTML passthrough and hard line breaks.
type Markdown struct {
	md goldmark.Markdown
}

func NewMarkdown() *Markdown {
	return &Markdown{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(
				ghtml.WithUnsafe(),
				ghtml.WithHardWraps(),
			),
		),
	}
}

// ToInlineHTML renders text to HTML. Comment text arrives here already
// HTML-escaped from write time, so the inner content of any code span
// the parser produces is entity-decoded once; otherwise literal code
// samples inside comments would show doubly escaped entities.
func (m *Markdown) ToInlineHTML(text string) string {
	var buf bytes.Buffer
	if err := m.md.Convert([]byte(text), &buf); err != nil {
		return html.EscapeString(text)
	}
	return unescapeCodeSpans(buf.String())
}

func unescapeCodeSpans(s string) string {
	return codeSpanPattern.ReplaceAllStringFunc(s, func(span string) string {
		parts := codeSpanPattern.FindStringSubmatch(span)
		if parts == nil {
			return span
		}
		return parts[1] + html.UnescapeString(parts[2]) + parts[3]
	})
}
