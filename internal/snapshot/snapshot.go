// Package snapshot turns a rendered page into readable, sanitized text for
// failure reports.
package snapshot

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

// MaxTextLen caps the extracted text kept in a snapshot.
const MaxTextLen = 4000

// Page is the readable content of a page at the moment a step failed.
type Page struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Excerpt string `json:"excerpt,omitempty"`
	Text    string `json:"text"`
}

// FromHTML extracts the main content of html. pageURL may be empty.
func FromHTML(html, pageURL string) (*Page, error) {
	if strings.TrimSpace(html) == "" {
		return nil, fmt.Errorf("empty document")
	}

	base, err := url.Parse(pageURL)
	if err != nil || pageURL == "" {
		base = &url.URL{Scheme: "about", Opaque: "blank"}
	}

	article, err := readability.FromReader(strings.NewReader(html), base)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	p := bluemonday.StrictPolicy()
	text := collapseSpace(p.Sanitize(article.TextContent))
	if len(text) > MaxTextLen {
		text = truncate(text, MaxTextLen) + " ... (truncated)"
	}

	return &Page{
		URL:     pageURL,
		Title:   p.Sanitize(article.Title),
		Excerpt: p.Sanitize(article.Excerpt),
		Text:    text,
	}, nil
}

// String renders the snapshot as a plain-text report block.
func (p *Page) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\n", p.URL)
	fmt.Fprintf(&b, "TITLE: %s\n", p.Title)
	if p.Excerpt != "" {
		fmt.Fprintf(&b, "EXCERPT: %s\n", p.Excerpt)
	}
	b.WriteString("-- CONTENT --\n")
	b.WriteString(p.Text)
	return b.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
