// Package htmldoc decodes directory pages into goquery documents.
package htmldoc

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// Parse decodes body to UTF-8 and builds a document. Bodies that are already
// valid UTF-8 are taken as-is, since the fetch layer may have transcoded them
// while the page still declares Latin-1. Anything else goes through charset
// sniffing, falling back to windows-1252.
func Parse(body []byte) (*goquery.Document, error) {
	var r io.Reader = bytes.NewReader(body)
	if !utf8.Valid(body) {
		decoded, err := charset.NewReader(r, "")
		if err != nil {
			return nil, fmt.Errorf("decode charset: %w", err)
		}
		r = decoded
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// Text returns the selection's text with runs of whitespace collapsed.
func Text(s *goquery.Selection) string {
	return Clean(s.Text())
}

// Clean collapses whitespace runs into single spaces and trims the ends.
func Clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Attr returns a trimmed attribute value, or "" when absent.
func Attr(s *goquery.Selection, name string) string {
	v, _ := s.Attr(name)
	return strings.TrimSpace(v)
}

// Lines renders s keeping <br> elements as line breaks. Each line is cleaned
// and blank lines are dropped.
func Lines(s *goquery.Selection) []string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			b.WriteString(n.Data)
		case n.Type == html.ElementNode && n.Data == "br":
			b.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range s.Nodes {
		walk(n)
	}
	var out []string
	for _, line := range strings.Split(b.String(), "\n") {
		if line = Clean(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
