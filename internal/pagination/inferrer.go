// Package pagination infers where a region's listing continues.
//
// The directory's pagination control is unreliable, so the next page is
// chosen by an ordered ladder of strategies; the first that proposes an index
// wins.
package pagination

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/directory-crawler/internal/config"
	"github.com/JakeFAU/directory-crawler/internal/crawler"
	"github.com/JakeFAU/directory-crawler/internal/htmldoc"
	"github.com/JakeFAU/directory-crawler/internal/site"
)

// Link labels are 1-based and sometimes bracketed, e.g. "[3]".
var labelRe = regexp.MustCompile(`\[?(\d+)\]?`)

// Inferrer implements crawler.PaginationInferrer.
type Inferrer struct {
	layout        *site.Layout
	totalRe       *regexp.Regexp
	totalSelector string
	linkSelector  string
	strategies    []Strategy
}

// NewInferrer builds an inferrer with the default ladder: pagination links,
// then total-count arithmetic.
func NewInferrer(cfg config.SiteConfig, layout *site.Layout) (*Inferrer, error) {
	totalRe, err := regexp.Compile(cfg.TotalPattern)
	if err != nil {
		return nil, fmt.Errorf("compile total pattern: %w", err)
	}
	if totalRe.NumSubexp() < 1 {
		return nil, fmt.Errorf("total pattern %q needs one capture group", cfg.TotalPattern)
	}
	return &Inferrer{
		layout:        layout,
		totalRe:       totalRe,
		totalSelector: cfg.TotalSelector,
		linkSelector:  cfg.PaginationSelector,
		strategies:    []Strategy{LinkStrategy{}, ArithmeticStrategy{PageSize: cfg.PageSize}},
	}, nil
}

// Strategies exposes the ladder in evaluation order.
func (i *Inferrer) Strategies() []Strategy {
	return slices.Clone(i.strategies)
}

// Infer reads total, candidates and continuation token from a listing page.
// Next is nil when no strategy proposes a page past pageIndex.
func (i *Inferrer) Infer(body []byte, pageIndex int, currentURL string) (crawler.PaginationInfo, error) {
	doc, err := htmldoc.Parse(body)
	if err != nil {
		return crawler.PaginationInfo{}, fmt.Errorf("pagination: %w", err)
	}

	sig := Signals{PageIndex: pageIndex, Total: i.total(doc)}
	info := crawler.PaginationInfo{TotalEntries: sig.Total}

	links := doc.Find(i.linkSelector)
	info.LinkCount = links.Length()
	links.Each(func(_ int, link *goquery.Selection) {
		href := htmldoc.Attr(link, "href")
		if n, ok := i.layout.PageFromURL(href); ok {
			sig.Candidates = append(sig.Candidates, n)
		}
		if info.Token == "" {
			if token, ok := i.layout.TokenFromHref(href); ok {
				info.Token = token
			}
		}
		if m := labelRe.FindStringSubmatch(htmldoc.Text(link)); m != nil {
			if label, err := strconv.Atoi(m[1]); err == nil && label > 1 {
				sig.Candidates = append(sig.Candidates, label-1)
			}
		}
	})
	slices.Sort(sig.Candidates)
	sig.Candidates = slices.Compact(sig.Candidates)

	for _, s := range i.strategies {
		next, ok := s.Next(sig)
		if !ok {
			continue
		}
		info.Strategy = s.Name()
		info.Next = &crawler.PageCursor{
			PageIndex: next,
			Token:     info.Token,
			URL:       i.layout.WithPage(currentURL, next),
		}
		break
	}
	return info, nil
}

func (i *Inferrer) total(doc *goquery.Document) int {
	total := 0
	doc.Find(i.totalSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		m := i.totalRe.FindStringSubmatch(htmldoc.Text(s))
		if m == nil {
			return true
		}
		if n, err := strconv.Atoi(m[1]); err == nil {
			total = n
			return false
		}
		return true
	})
	return total
}
