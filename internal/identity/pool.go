// Package identity rotates the browser identities presented to the directory.
package identity

import (
	"errors"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
)

// Pool hands out a freshly chosen header set per request attempt. The
// browser header layer is fixed; only the User-Agent rotates.
type Pool struct {
	mu         sync.Mutex
	rng        *rand.Rand
	userAgents []string
	base       http.Header
}

// NewPool layers configured headers over the browser defaults. referer is
// usually the directory's base URL. rng may be nil for a time-seeded source.
func NewPool(userAgents []string, headers map[string]string, referer string, rng *rand.Rand) (*Pool, error) {
	agents := make([]string, 0, len(userAgents))
	for _, ua := range userAgents {
		if ua = strings.TrimSpace(ua); ua != "" {
			agents = append(agents, ua)
		}
	}
	if len(agents) == 0 {
		return nil, errors.New("identity pool needs at least one user agent")
	}
	base := defaultHeaders(referer)
	for name, value := range headers {
		base.Set(name, value)
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Pool{rng: rng, userAgents: agents, base: base}, nil
}

// Pick returns a new header set with a uniformly chosen User-Agent. Callers
// own the returned map.
func (p *Pool) Pick() http.Header {
	p.mu.Lock()
	ua := p.userAgents[p.rng.IntN(len(p.userAgents))]
	p.mu.Unlock()

	h := p.base.Clone()
	h.Set("User-Agent", ua)
	return h
}

// Size reports how many identities rotate.
func (p *Pool) Size() int {
	return len(p.userAgents)
}

func defaultHeaders(referer string) http.Header {
	h := http.Header{}
	h.Set("Accept-Language", "de-DE,de;q=0.9,en-US;q=0.8,en;q=0.7")
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Pragma", "no-cache")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Sec-Fetch-Site", "same-origin")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-User", "?1")
	h.Set("Sec-Fetch-Dest", "document")
	if referer != "" {
		h.Set("Referer", referer)
	}
	return h
}
