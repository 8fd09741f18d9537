package crawler

import (
	"context"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/BenjaminSRussell/seo_audit/internal/types"
)

const (
	// Bloom filter sizing per page of budget; 0.1% false positives fall
	// through to the exact set
	bloomURLsPerPage = 50
	bloomMinURLs     = 10_000
	bloomFalsePos    = 0.001
)

// Frontier is the FIFO queue of URLs to audit plus the visited set.
// Every URL is claimed at most once, whether it is queued or reached as a
// redirect hop, so no URL is fetched twice.
type Frontier struct {
	mu sync.Mutex

	queue []types.FrontierEntry
	head  int

	// seen is a fast negative check in front of visited
	seen    *bloom.BloomFilter
	visited map[types.CanonicalURL]struct{}

	// tooDeep holds links dropped by the depth limit that were never claimed
	tooDeep map[types.CanonicalURL]struct{}

	// states tracks every claimed URL through its lifecycle
	states map[types.CanonicalURL]types.URLState

	maxPages int
	reserved int
	inflight int

	// changed is closed and replaced whenever waiters should re-check
	changed chan struct{}
}

// NewFrontier creates a frontier that hands out at most maxPages reservations
func NewFrontier(maxPages int) *Frontier {
	estimate := maxPages * bloomURLsPerPage
	if estimate < bloomMinURLs {
		estimate = bloomMinURLs
	}
	return &Frontier{
		seen:     bloom.NewWithEstimates(uint(estimate), bloomFalsePos),
		visited:  make(map[types.CanonicalURL]struct{}),
		tooDeep:  make(map[types.CanonicalURL]struct{}),
		states:   make(map[types.CanonicalURL]types.URLState),
		maxPages: maxPages,
		changed:  make(chan struct{}),
	}
}

// claimLocked is insert-if-absent on the visited set
func (f *Frontier) claimLocked(u types.CanonicalURL) bool {
	key := []byte(u)
	if f.seen.Test(key) {
		if _, ok := f.visited[u]; ok {
			return false
		}
	}
	f.seen.Add(key)
	f.visited[u] = struct{}{}
	f.states[u] = types.StateDiscovered
	delete(f.tooDeep, u)
	return true
}

// Claim marks u visited without queueing it. It reports false if u was
// already claimed.
func (f *Frontier) Claim(u types.CanonicalURL) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.claimLocked(u)
}

// Push claims entry.URL and queues it. It reports false for duplicates.
func (f *Frontier) Push(entry types.FrontierEntry) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.claimLocked(entry.URL) {
		return false
	}
	f.queue = append(f.queue, entry)
	f.broadcastLocked()
	return true
}

// SkipTooDeep records a link the depth limit kept out of the queue
func (f *Frontier) SkipTooDeep(u types.CanonicalURL) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.visited[u]; !ok {
		f.tooDeep[u] = struct{}{}
	}
}

// Next blocks until an entry is available. It reports false once the
// queue is drained with nothing in flight, the budget is spent, or ctx ends.
// Every entry returned must be released with Done.
func (f *Frontier) Next(ctx context.Context) (types.FrontierEntry, bool) {
	for {
		if ctx.Err() != nil {
			return types.FrontierEntry{}, false
		}
		f.mu.Lock()
		if f.reserved >= f.maxPages {
			f.mu.Unlock()
			return types.FrontierEntry{}, false
		}
		if f.head < len(f.queue) {
			entry := f.queue[f.head]
			f.queue[f.head] = types.FrontierEntry{}
			f.head++
			f.inflight++
			f.compactLocked()
			f.mu.Unlock()
			return entry, true
		}
		if f.inflight == 0 {
			f.mu.Unlock()
			return types.FrontierEntry{}, false
		}
		changed := f.changed
		f.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return types.FrontierEntry{}, false
		}
	}
}

// Reserve takes one unit of the page budget and assigns the dispatch
// sequence number. It reports false when the budget is spent.
func (f *Frontier) Reserve(entry *types.FrontierEntry) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.reserved >= f.maxPages {
		return false
	}
	entry.Seq = f.reserved
	f.reserved++
	if f.reserved >= f.maxPages {
		f.broadcastLocked()
	}
	return true
}

// Done releases an entry returned by Next
func (f *Frontier) Done() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.inflight--
	f.broadcastLocked()
}

// Pending returns the number of queued entries not yet dispatched
func (f *Frontier) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue) - f.head
}

// Drain removes and returns every queued entry
func (f *Frontier) Drain() []types.FrontierEntry {
	f.mu.Lock()
	defer f.mu.Unlock()

	rest := append([]types.FrontierEntry(nil), f.queue[f.head:]...)
	f.queue = nil
	f.head = 0
	return rest
}

// Mark moves a claimed URL to state s. Terminal states are final.
func (f *Frontier) Mark(u types.CanonicalURL, s types.URLState) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cur, ok := f.states[u]
	if !ok || cur.Terminal() {
		return
	}
	f.states[u] = s
}

// State returns the lifecycle state of u
func (f *Frontier) State(u types.CanonicalURL) (types.URLState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.states[u]
	return s, ok
}

// StateCounts tallies claimed URLs by state name
func (f *Frontier) StateCounts() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()

	counts := make(map[string]int)
	for _, s := range f.states {
		counts[s.String()]++
	}
	return counts
}

// Unsettled counts claimed URLs that never reached a terminal state
func (f *Frontier) Unsettled() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, s := range f.states {
		if !s.Terminal() {
			n++
		}
	}
	return n
}

// BudgetSpent reports whether no further reservations are possible
func (f *Frontier) BudgetSpent() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reserved >= f.maxPages
}

// TooDeep returns the depth-limited links that were never claimed
func (f *Frontier) TooDeep() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tooDeep)
}

func (f *Frontier) broadcastLocked() {
	close(f.changed)
	f.changed = make(chan struct{})
}

// compactLocked drops the consumed prefix once it dominates the slice
func (f *Frontier) compactLocked() {
	if f.head > 1024 && f.head*2 > len(f.queue) {
		f.queue = append([]types.FrontierEntry(nil), f.queue[f.head:]...)
		f.head = 0
	}
}
