// Package pagemeta extracts document metadata from captured HTML. Used as a
// fallback when the driver cannot resolve a title directly.
package pagemeta

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Meta holds the bits of page metadata the report surfaces.
type Meta struct {
	Title string
	Lang  string
}

// Extract parses html and pulls the title and document language. Parse
// failures yield an empty Meta rather than an error: metadata is best-effort.
func Extract(html string) Meta {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Meta{}
	}

	var m Meta
	m.Title = strings.TrimSpace(doc.Find("title").First().Text())
	if lang, ok := doc.Find("html").First().Attr("lang"); ok {
		m.Lang = strings.TrimSpace(lang)
	}
	return m
}
