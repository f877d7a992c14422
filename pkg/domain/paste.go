package domain

import (
	"bytes"
	"encoding/json"
	"regexp"

	"github.com/pkg/errors"
)

// Paste is the root aggregate: the paste plus its full ordered comment
// list, persisted and mutated as one unit. Content is stored verbatim;
// comment text is HTML-escaped before it ever reaches this struct.
type Paste struct {
	UID      string    `json:"uid"`
	Content  string    `json:"content"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Language string    `json:"language"`
	Time     int64     `json:"time"`
	Comments []Comment `json:"comments"`
}

// Comment is anchored to a 1-based line of its parent paste. An anchor
// past the last line is legal and simply never matches a rendered line.
type Comment struct {
	UID     string `json:"uid"`
	Line    int    `json:"line"`
	Comment string `json:"comment"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Time    int64  `json:"time"`
	Color   string `json:"color"`
}

type CreateParams struct {
	Content  string
	Name     string
	Email    string
	Language string
}

type AddCommentParams struct {
	Line    int
	Comment string
	Name    string
	Email   string
}

// PasteView is what the web layer gets back from a rendered read.
type PasteView struct {
	UID                 string        `json:"uid"`
	Content             string        `json:"content"`
	Name                string        `json:"name"`
	Email               string        `json:"email"`
	Language            string        `json:"language"`
	Time                int64         `json:"time"`
	Comments            []CommentView `json:"comments"`
	HighlightedContent  string        `json:"highlighted_content,omitempty"`
	HighlightedLanguage string        `json:"highlighted_language,omitempty"`
	PreviewHTML         string        `json:"preview_html,omitempty"`
}

type CommentView struct {
	UID     string `json:"uid"`
	Line    int    `json:"line"`
	Comment string `json:"comment"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Time    int64  `json:"time"`
	Color   string `json:"color"`
}

// ScanMatch is one hit from the keyword scan utility.
type ScanMatch struct {
	UID     string `json:"uid"`
	Content string `json:"content"`
}

var uidPattern = regexp.MustCompile(`^[A-Za-z0-9]{4,128}$`)

// ValidUID reports whether uid is storable: URL-safe alphanumeric,
// 4-128 chars. Every path derivation goes through this check.
func ValidUID(uid string) bool {
	return uidPattern.MatchString(uid)
}

// EncodeDocument serializes the aggregate to its canonical JSON form.
func EncodeDocument(p *Paste) ([]byte, error) {
	if p == nil {
		return nil, errors.New("nil paste")
	}
	if !ValidUID(p.UID) {
		return nil, errors.Wrapf(ErrValidation, "bad uid %q", p.UID)
	}
	doc, err := json.Marshal(p)
	if err != nil {
		return nil, errors.Wrap(err, "marshal paste document")
	}
	return doc, nil
}

// DecodeDocument deserializes and shape-checks a stored document. It
// fails fast on type mismatches and malformed aggregates instead of
// producing partial objects.
func DecodeDocument(data []byte) (*Paste, error) {
	var p Paste
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&p); err != nil {
		return nil, errors.Wrap(ErrDecryption, err.Error())
	}
	if !ValidUID(p.UID) {
		return nil, errors.Wrapf(ErrDecryption, "document uid %q out of shape", p.UID)
	}
	if p.Comments == nil {
		p.Comments = []Comment{}
	}
	for i := range p.Comments {
		if p.Comments[i].Line < 1 {
			return nil, errors.Wrapf(ErrDecryption, "comment %d anchored to line %d", i, p.Comments[i].Line)
		}
	}
	return &p, nil
}
