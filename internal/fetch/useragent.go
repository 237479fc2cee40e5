package fetch

import "sync"

// defaultUserAgents is the rotation pool used when none is configured.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/121.0",
}

// agentRotator hands out user agents round-robin.
type agentRotator struct {
	mu     sync.Mutex
	agents []string
	cursor int
}

func newAgentRotator(agents []string) *agentRotator {
	if len(agents) == 0 {
		agents = defaultUserAgents
	}
	return &agentRotator{agents: agents}
}

func (r *agentRotator) next() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.agents[r.cursor]
	r.cursor = (r.cursor + 1) % len(r.agents)
	return a
}
