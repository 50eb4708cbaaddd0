package resolver

import (
	"strings"
	"sync"

	"github.com/willibrandon/gorestore/version"
)

// proposal is a request's claim on the resolved version of an id.
type proposal struct {
	depth   int
	version *version.NuGetVersion
	order   int

	// request indexes the level's request slice; -1 for committed entries.
	request int
	cand    candidate
}

// outranks applies nearest-wins: lower depth first, then the higher
// version, then the earlier request. It is a total order on proposals, so
// the winner does not depend on the order proposals arrive in.
func (p proposal) outranks(other proposal) bool {
	if p.depth != other.depth {
		return p.depth < other.depth
	}
	if c := p.version.Compare(other.version); c != 0 {
		return c > 0
	}
	return p.order < other.order
}

// resolvedTable is the per-target resolved-version map. Concurrent branches
// propose; a proposal replaces the entry only if it outranks it.
type resolvedTable struct {
	mu      sync.Mutex
	entries map[string]proposal
}

func newResolvedTable() *resolvedTable {
	return &resolvedTable{entries: make(map[string]proposal)}
}

// propose stores p for id unless the current entry outranks it. It reports
// whether p is now the entry.
func (t *resolvedTable) propose(id string, p proposal) bool {
	key := strings.ToLower(id)

	t.mu.Lock()
	defer t.mu.Unlock()

	current, ok := t.entries[key]
	if ok && !p.outranks(current) {
		return false
	}
	t.entries[key] = p
	return true
}

func (t *resolvedTable) get(id string) (proposal, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.entries[strings.ToLower(id)]
	return p, ok
}
