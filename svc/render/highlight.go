package render

import (
	"html"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/pkg/errors"
)

// AutodetectLanguages is the fixed closed set of candidates when no
// language hint is declared. Auto-detection always resolves to exactly
// one of these, defaulting to plaintext on ambiguity.
var AutodetectLanguages = []string{
	"php", "sql", "markdown", "diff", "javascript", "json",
	"bash", "css", "go", "xml", "ini", "apache", "plaintext",
}

// Window selects a contiguous slice of rendered lines: 0-based Offset,
// Length lines. Used only for notification excerpts.
type Window struct {
	Offset int
	Length int
}

type Highlighted struct {
	// Lines holds one HTML fragment per source line. Token spans never
	// cross a line: a span open at a newline is closed and reopened on
	// the next rendered line.
	Lines    []string
	Language string
}

type Highlighter struct{}

func NewHighlighter() *Highlighter {
	return &Highlighter{}
}

// Highlight tokenizes content into per-line HTML fragments, detecting
// the language from the closed candidate set when hint is empty.
func (h *Highlighter) Highlight(content, hint string, window *Window) (*Highlighted, error) {
	var (
		lexer chroma.Lexer
		lang  string
	)
	if hint != "" {
		lang = strings.ToLower(strings.TrimSpace(hint))
		lexer = lexers.Get(lang)
		if lexer == nil {
			lang = "plaintext"
		}
	} else {
		lang = detectLanguage(content)
		lexer = lexers.Get(lang)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	it, err := lexer.Tokenise(nil, content)
	if err != nil {
		return nil, errors.Wrap(err, "tokenise content")
	}
	lines := emitLines(it.Tokens())

	// content always renders as at least one line, like the raw text
	// split on \n would
	if len(lines) == 0 {
		lines = []string{""}
	}
	if window != nil {
		lines = sliceWindow(lines, window)
	}
	return &Highlighted{Lines: lines, Language: lang}, nil
}

// detectLanguage scores every candidate lexer's analyser against the
// content and keeps the best. Ambiguity (no analyser scores above
// zero) resolves to plaintext.
func detectLanguage(content string) string {
	best := "plaintext"
	var bestScore float32
	for _, name := range AutodetectLanguages {
		if name == "plaintext" {
			continue
		}
		lexer := lexers.Get(name)
		if lexer == nil {
			continue
		}
		if score := lexer.AnalyseText(content); score > bestScore {
			bestScore = score
			best = name
		}
	}
	return best
}

// emitLines walks the token stream once and re-emits it per source
// line. The only open-tag state is the current token's span, which by
// construction is closed before every newline and reopened after it.
func emitLines(tokens []chroma.Token) []string {
	var (
		lines []string
		cur   strings.Builder
	)
	for _, tok := range tokens {
		cls := tokenClass(tok.Type)
		parts := strings.Split(tok.Value, "\n")
		for i, part := range parts {
			if i > 0 {
				lines = append(lines, cur.String())
				cur.Reset()
			}
			if part == "" {
				continue
			}
			if cls != "" {
				cur.WriteString(`<span class="`)
				cur.WriteString(cls)
				cur.WriteString(`">`)
				cur.WriteString(html.EscapeString(part))
				cur.WriteString(`</span>`)
			} else {
				cur.WriteString(html.EscapeString(part))
			}
		}
	}
	lines = append(lines, cur.String())
	return lines
}

func tokenClass(tt chroma.TokenType) string {
	for t := tt; t != 0; t = t.Parent() {
		if cls, ok := chroma.StandardTypes[t]; ok {
			return cls
		}
	}
	return ""
}

func sliceWindow(lines []string, w *Window) []string {
	offset := w.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > len(lines) {
		offset = len(lines)
	}
	end := offset + w.Length
	if w.Length < 0 || end > len(lines) {
		end = len(lines)
	}
	return lines[offset:end]
}
