// Package listing extracts record summaries from directory search result pages.
package listing

import (
	"fmt"
	"regexp"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/directory-crawler/internal/config"
	"github.com/JakeFAU/directory-crawler/internal/crawler"
	"github.com/JakeFAU/directory-crawler/internal/htmldoc"
	"github.com/JakeFAU/directory-crawler/internal/site"
)

const (
	emailSelector    = `a[href^="mailto:"]`
	websiteSelector  = `a[href^="click.php"]`
	productsSelector = `img[src="pic/prod.gif"]`
)

// Tooltip values are embedded as onmouseover="return escape('...')".
var tooltipRe = regexp.MustCompile(`return escape\('([^']+)'\)`)

// Parser implements crawler.ListingParser.
type Parser struct {
	layout       *site.Layout
	rowSelector  string
	linkSelector string
}

// NewParser builds a listing parser for the configured markup.
func NewParser(cfg config.SiteConfig, layout *site.Layout) *Parser {
	return &Parser{
		layout:       layout,
		rowSelector:  cfg.ListingRowSelector,
		linkSelector: cfg.RecordLinkSelector,
	}
}

// ParseListing returns the page's record summaries in listing order. Rows
// without a detail link or a record id are skipped.
func (p *Parser) ParseListing(body []byte) ([]crawler.RecordSummary, error) {
	doc, err := htmldoc.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("listing: %w", err)
	}
	var out []crawler.RecordSummary
	doc.Find(p.rowSelector).Each(func(_ int, row *goquery.Selection) {
		link := row.Find(p.linkSelector).First()
		if link.Length() == 0 {
			return
		}
		href := htmldoc.Attr(link, "href")
		id, ok := p.layout.RecordID(href)
		if !ok {
			return
		}
		out = append(out, crawler.RecordSummary{
			ID:       id,
			Name:     htmldoc.Text(link),
			URL:      href,
			Email:    tooltip(row.Find(emailSelector).First()),
			Website:  tooltip(row.Find(websiteSelector).First()),
			Products: tooltip(row.Find(productsSelector).First()),
		})
	})
	return out, nil
}

func tooltip(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}
	m := tooltipRe.FindStringSubmatch(htmldoc.Attr(s, "onmouseover"))
	if len(m) < 2 {
		return ""
	}
	return m[1]
}
