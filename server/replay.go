package server

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// replayCacheSize bounds the number of remembered owner requests
const replayCacheSize = 10000

// replayGuard remembers the owner requests already accepted. A request stays remembered
// for twice the signature validity, which covers a timestamp issued up to one validity
// period ahead of the server clock.
type replayGuard struct {
	mu   sync.Mutex
	seen *expirable.LRU[string, struct{}]
}

func newReplayGuard(validity time.Duration) *replayGuard {
	return &replayGuard{seen: expirable.NewLRU[string, struct{}](replayCacheSize, nil, 2*validity)}
}

// consume records the request and reports false when it was already recorded
func (g *replayGuard) consume(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seen.Contains(key) {
		return false
	}
	g.seen.Add(key, struct{}{})
	return true
}
