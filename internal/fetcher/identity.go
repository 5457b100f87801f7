package fetcher

import (
	"math/rand/v2"
	"net/http"
	"strconv"
	"sync"
)

// DefaultUserAgents is used when the configuration supplies no pool.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
}

// IdentityPool hands out a browser-like header set per request. Each fetcher
// owns its pool so rotation state is never shared between sites.
type IdentityPool struct {
	mu         sync.Mutex
	rng        *rand.Rand
	userAgents []string
}

// NewIdentityPool builds a pool over userAgents, falling back to
// DefaultUserAgents when the list is empty.
func NewIdentityPool(userAgents []string, rng *rand.Rand) *IdentityPool {
	if len(userAgents) == 0 {
		userAgents = DefaultUserAgents
	}
	return &IdentityPool{rng: rng, userAgents: userAgents}
}

// Next returns a fresh header set with a randomly chosen user agent.
func (p *IdentityPool) Next() http.Header {
	p.mu.Lock()
	ua := p.userAgents[p.rng.IntN(len(p.userAgents))]
	width := 1200 + p.rng.IntN(400)
	p.mu.Unlock()

	h := http.Header{}
	h.Set("User-Agent", ua)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/json;q=0.9,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Accept-Encoding", "gzip")
	h.Set("DNT", "1")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-Site", "none")
	h.Set("Viewport-Width", strconv.Itoa(width))
	return h
}
