package crawler

import (
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maltedev/property-crawler/internal/discovery"
)

// VisitedSet records every URL handed to the fetcher during one run. It only
// grows.
type VisitedSet struct {
	mu   sync.RWMutex
	urls map[string]struct{}
}

func NewVisitedSet() *VisitedSet {
	return &VisitedSet{urls: make(map[string]struct{})}
}

func (v *VisitedSet) Contains(u string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.urls[u]
	return ok
}

// Add inserts u and reports whether it was new.
func (v *VisitedSet) Add(u string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.urls[u]; ok {
		return false
	}
	v.urls[u] = struct{}{}
	return true
}

func (v *VisitedSet) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.urls)
}

// Stats are the aggregate counts of a crawl run.
type Stats struct {
	PagesVisited    int64 `json:"pages_visited"`
	URLsDispatched  int64 `json:"urls_dispatched"`
	FetchFailures   int64 `json:"fetch_failures"`
	ListingsFound   int64 `json:"listings_found"`
	ListingsWritten int64 `json:"listings_written"`
	ListingsSkipped int64 `json:"listings_skipped"`
	ListingsInvalid int64 `json:"listings_invalid"`
	ListingsFailed  int64 `json:"listings_failed"`
}

type counters struct {
	pagesVisited    atomic.Int64
	urlsDispatched  atomic.Int64
	fetchFailures   atomic.Int64
	listingsFound   atomic.Int64
	listingsWritten atomic.Int64
	listingsSkipped atomic.Int64
	listingsInvalid atomic.Int64
	listingsFailed  atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		PagesVisited:    c.pagesVisited.Load(),
		URLsDispatched:  c.urlsDispatched.Load(),
		FetchFailures:   c.fetchFailures.Load(),
		ListingsFound:   c.listingsFound.Load(),
		ListingsWritten: c.listingsWritten.Load(),
		ListingsSkipped: c.listingsSkipped.Load(),
		ListingsInvalid: c.listingsInvalid.Load(),
		ListingsFailed:  c.listingsFailed.Load(),
	}
}

// CrawlRun is the state owned by one invocation of Controller.Run.
type CrawlRun struct {
	ID         string
	BaseURL    string
	BaseDomain string
	MaxDepth   int
	Strategy   string
	Visited    *VisitedSet
	StartedAt  time.Time

	stats      counters
	mu         sync.RWMutex
	finishedAt time.Time
}

// NewRun normalizes seedURL and prepares an empty run rooted at it.
func NewRun(id, seedURL string, strategy Strategy) (*CrawlRun, error) {
	seed, err := discovery.Normalize(seedURL)
	if err != nil {
		return nil, fmt.Errorf("invalid seed url: %w", err)
	}
	u, err := url.Parse(seed)
	if err != nil {
		return nil, fmt.Errorf("invalid seed url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid seed url: unsupported scheme %q", u.Scheme)
	}

	return &CrawlRun{
		ID:         id,
		BaseURL:    seed,
		BaseDomain: u.Host,
		MaxDepth:   strategy.MaxDepth(),
		Strategy:   strategy.Name(),
		Visited:    NewVisitedSet(),
		StartedAt:  time.Now(),
	}, nil
}

// Stats returns a snapshot of the counters. Safe from any goroutine.
func (r *CrawlRun) Stats() Stats {
	return r.stats.snapshot()
}

func (r *CrawlRun) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finishedAt = time.Now()
}

// Summary describes the run for status endpoints and reports.
type Summary struct {
	ID         string        `json:"id"`
	BaseURL    string        `json:"base_url"`
	Strategy   string        `json:"strategy"`
	MaxDepth   int           `json:"max_depth"`
	Running    bool          `json:"running"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
	Stats      Stats         `json:"stats"`
}

func (r *CrawlRun) Summary() Summary {
	r.mu.RLock()
	finished := r.finishedAt
	r.mu.RUnlock()

	s := Summary{
		ID:        r.ID,
		BaseURL:   r.BaseURL,
		Strategy:  r.Strategy,
		MaxDepth:  r.MaxDepth,
		Running:   finished.IsZero(),
		StartedAt: r.StartedAt,
		Stats:     r.Stats(),
	}
	if finished.IsZero() {
		s.Duration = time.Since(r.StartedAt)
	} else {
		s.FinishedAt = &finished
		s.Duration = finished.Sub(r.StartedAt)
	}
	return s
}
