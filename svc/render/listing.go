package render

import (
	"fmt"
	"html"
	"strings"

	"linepaste/pkg/domain"
)

// Listing describes one highlighted, comment-overlaid view: either the
// full paste or a windowed excerpt whose numbering continues from
// StartLine.
type Listing struct {
	UID       string
	Lines     []string
	Language  string
	StartLine int
	Comments  []domain.Comment
}

// BuildListing assembles the line-addressable HTML structure: per line
// a stable L<n> anchor, a comment-entry affordance, the comments
// already anchored to that line (append order, markdown-rendered), and
// an empty slot for an inline comment form.
func BuildListing(l Listing, md *Markdown) string {
	byLine := make(map[int][]domain.Comment)
	for _, c := range l.Comments {
		byLine[c.Line] = append(byLine[c.Line], c)
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<div class="hljs"><ol class="linenums" start="%d">`, l.StartLine)
	for i, line := range l.Lines {
		n := l.StartLine + i
		var commentHTML strings.Builder
		for _, c := range byLine[n] {
			commentHTML.WriteString(renderComment(c, md))
		}
		fmt.Fprintf(&b, `
<li id="L%d" class="line-number">
	<span class="edit" data-uid="%s" data-line="%d">&#9998;</span>
	<pre><code class="%s">%s</code></pre>
	<div class="comment-form-container"></div>
	<div class="comments">%s</div>
</li>`, n, html.EscapeString(l.UID), n, html.EscapeString(l.Language), line, commentHTML.String())
	}
	b.WriteString("</ol></div>")
	return b.String()
}

func renderComment(c domain.Comment, md *Markdown) string {
	return fmt.Sprintf(`<div class="comment" style="border-left-color:#%s">
	<span class="comment-author" style="color:#%s">%s</span>
	<span class="comment-time" data-time="%d"></span>
	<div class="comment-body">%s</div>
</div>`, c.Color, c.Color, html.EscapeString(c.Name), c.Time, md.ToInlineHTML(c.Comment))
}
