package render

import (
	"strings"
	"testing"

	"linepaste/pkg/domain"
)

func TestBuildListingAnchors(t *testing.T) {
	md := NewMarkdown()
	out := BuildListing(Listing{
		UID:       "abcd1234",
		Lines:     []string{"one", "two", "three"},
		Language:  "plaintext",
		StartLine: 1,
	}, md)
	if !strings.Contains(out, `<ol class="linenums" start="1">`) {
		t.Errorf("missing ordered list start: %s", out)
	}
	for _, anchor := range []string{`id="L1"`, `id="L2"`, `id="L3"`} {
		if !strings.Contains(out, anchor) {
			t.Errorf("missing anchor %s", anchor)
		}
	}
	if strings.Contains(out, `id="L4"`) {
		t.Error("unexpected fourth line anchor")
	}
	if strings.Count(out, `<div class="comment-form-container"></div>`) != 3 {
		t.Error("every line needs an empty comment form slot")
	}
}

func TestBuildListingWindowNumbering(t *testing.T) {
	md := NewMarkdown()
	out := BuildListing(Listing{
		UID:       "abcd1234",
		Lines:     []string{"five", "six"},
		Language:  "go",
		StartLine: 5,
	}, md)
	if !strings.Contains(out, `<ol class="linenums" start="5">`) {
		t.Errorf("excerpt numbering should continue from the window offset: %s", out)
	}
	if !strings.Contains(out, `id="L5"`) || !strings.Contains(out, `id="L6"`) {
		t.Errorf("excerpt anchors should use absolute line numbers: %s", out)
	}
}

func TestBuildListingCommentPlacement(t *testing.T) {
	md := NewMarkdown()
	comments := []domain.Comment{
		{UID: "abcd1234", Line: 2, Comment: "first", Name: "alice", Time: 100, Color: "aabbcc"},
		{UID: "abcd1234", Line: 2, Comment: "second", Name: "bob", Time: 200, Color: "ddeeff"},
		{UID: "abcd1234", Line: 9, Comment: "off screen", Name: "carol", Time: 300, Color: "112233"},
	}
	out := BuildListing(Listing{
		UID:       "abcd1234",
		Lines:     []string{"a", "b", "c"},
		Language:  "plaintext",
		StartLine: 1,
		Comments:  comments,
	}, md)
	if !strings.Contains(out, "first") || !strings.Contains(out, "second") {
		t.Errorf("line 2 comments missing: %s", out)
	}
	if strings.Index(out, "first") > strings.Index(out, "second") {
		t.Error("same-line comments must keep append order")
	}
	if strings.Contains(out, "off screen") {
		t.Error("comment anchored outside the rendered lines must not appear")
	}
	if !strings.Contains(out, "border-left-color:#aabbcc") {
		t.Errorf("author color missing: %s", out)
	}
}

func TestBuildListingEscapesMetadata(t *testing.T) {
	md := NewMarkdown()
	out := BuildListing(Listing{
		UID:       "abcd1234",
		Lines:     []string{"x"},
		Language:  `"><script>`,
		StartLine: 1,
		Comments: []domain.Comment{
			{UID: "abcd1234", Line: 1, Comment: "hi", Name: `<img src=x>`, Time: 1, Color: "ffffff"},
		},
	}, md)
	if strings.Contains(out, "<script>") || strings.Contains(out, "<img") {
		t.Errorf("metadata not escaped: %s", out)
	}
}
