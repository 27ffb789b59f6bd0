// Package site knows how the directory lays out its URLs: where a region's
// first listing page lives, how continuation pages are addressed, and how
// record ids and continuation tokens are embedded in links.
package site

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/JakeFAU/directory-crawler/internal/config"
	"github.com/JakeFAU/directory-crawler/internal/crawler"
)

// Layout builds and dissects directory URLs.
type Layout struct {
	base         *url.URL
	firstPage    string
	continuation string
	alternate    string
	detail       string
	pageParam    string
	tokenParam   string
	defaultToken string
	recordID     *regexp.Regexp
	pageRe       *regexp.Regexp
	tokenRe      *regexp.Regexp
}

// New compiles a Layout from configuration.
func New(cfg config.SiteConfig) (*Layout, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", cfg.BaseURL)
	}
	if cfg.PageParam == "" || cfg.TokenParam == "" {
		return nil, errors.New("page and token parameter names are required")
	}
	recordID, err := regexp.Compile(cfg.RecordIDPattern)
	if err != nil {
		return nil, fmt.Errorf("compile record id pattern: %w", err)
	}
	if recordID.NumSubexp() < 1 {
		return nil, errors.New("record id pattern needs one capture group")
	}
	return &Layout{
		base:         base,
		firstPage:    cfg.FirstPageTemplate,
		continuation: cfg.ContinuationTemplate,
		alternate:    cfg.AlternateTemplate,
		detail:       cfg.DetailTemplate,
		pageParam:    cfg.PageParam,
		tokenParam:   cfg.TokenParam,
		defaultToken: cfg.DefaultToken,
		recordID:     recordID,
		pageRe:       regexp.MustCompile(`([?&]` + regexp.QuoteMeta(cfg.PageParam) + `=)(\d+)`),
		tokenRe:      regexp.MustCompile(`[?&]` + regexp.QuoteMeta(cfg.TokenParam) + `=([^&#]+)`),
	}, nil
}

// PageParam returns the query parameter carrying the 0-based page index.
func (l *Layout) PageParam() string {
	return l.pageParam
}

// FirstPageURL addresses page 0 of a region.
func (l *Layout) FirstPageURL(region crawler.Region) string {
	return l.expand(l.firstPage, map[string]string{"{region}": region.ID})
}

// ContinuationURL addresses page index page using a continuation token.
func (l *Layout) ContinuationURL(token string, page int) string {
	return l.expand(l.continuation, map[string]string{
		"{token}": token,
		"{page}":  strconv.Itoa(page),
	})
}

// AlternateURL addresses page index page without a continuation token. The
// server falls back to the session's last search.
func (l *Layout) AlternateURL(page int) string {
	return l.expand(l.alternate, map[string]string{"{page}": strconv.Itoa(page)})
}

// PageURL addresses the listing page a cursor points at.
func (l *Layout) PageURL(cursor crawler.PageCursor) string {
	if cursor.PageIndex == 0 {
		return l.FirstPageURL(cursor.Region)
	}
	return l.ContinuationURL(cursor.Token, cursor.PageIndex)
}

// DetailURL addresses a record's detail page.
func (l *Layout) DetailURL(id crawler.RecordID) string {
	return l.expand(l.detail, map[string]string{"{id}": string(id)})
}

// RecordID extracts the record identifier from a detail link.
func (l *Layout) RecordID(href string) (crawler.RecordID, bool) {
	m := l.recordID.FindStringSubmatch(href)
	if len(m) < 2 || m[1] == "" {
		return "", false
	}
	return crawler.RecordID(m[1]), true
}

// TokenFromHref extracts a continuation token from a pagination link.
func (l *Layout) TokenFromHref(href string) (string, bool) {
	m := l.tokenRe.FindStringSubmatch(href)
	if len(m) < 2 || m[1] == "" {
		return "", false
	}
	return m[1], true
}

// PageFromURL returns the page index carried by a URL.
func (l *Layout) PageFromURL(raw string) (int, bool) {
	m := l.pageRe.FindStringSubmatch(raw)
	if len(m) < 3 {
		return 0, false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, false
	}
	return n, true
}

// WithPage substitutes the page index in raw, appending the parameter when it
// is absent. The rest of the query is left byte-for-byte intact.
func (l *Layout) WithPage(raw string, page int) string {
	if l.pageRe.MatchString(raw) {
		return l.pageRe.ReplaceAllString(raw, "${1}"+strconv.Itoa(page))
	}
	sep := "?"
	if strings.Contains(raw, "?") {
		sep = "&"
	}
	return raw + sep + l.pageParam + "=" + strconv.Itoa(page)
}

// ResolveToken picks the continuation token for a region. A token extracted
// from the region's own pages wins, then the region's static token, then the
// directory-wide default.
func (l *Layout) ResolveToken(region crawler.Region, extracted string) (string, crawler.TokenSource) {
	switch {
	case extracted != "":
		return extracted, crawler.TokenExtracted
	case region.Token != "":
		return region.Token, crawler.TokenStatic
	case l.defaultToken != "":
		return l.defaultToken, crawler.TokenDefault
	default:
		return "", crawler.TokenUnknown
	}
}

// expand fills a template and resolves it against the base URL. Values are
// inserted verbatim because region ids and tokens arrive pre-escaped.
func (l *Layout) expand(template string, values map[string]string) string {
	out := template
	for key, value := range values {
		out = strings.ReplaceAll(out, key, value)
	}
	if strings.HasPrefix(out, "http://") || strings.HasPrefix(out, "https://") {
		return out
	}
	return l.base.String() + strings.TrimLeft(out, "/")
}
