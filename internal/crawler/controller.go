// Package crawler drives a crawl: it walks the frontier, fetches each page
// once, writes the listings found on it and asks a Strategy where to go next.
package crawler

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/maltedev/property-crawler/internal/discovery"
	"github.com/maltedev/property-crawler/internal/extractor"
	"github.com/maltedev/property-crawler/internal/models"
	"github.com/maltedev/property-crawler/internal/parser"
	"github.com/maltedev/property-crawler/internal/queue"
	"github.com/maltedev/property-crawler/internal/ratelimit"
	"github.com/maltedev/property-crawler/internal/writer"
)

// Fetcher retrieves one page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) models.FetchResult
}

// ListingWriter stores one extracted listing.
type ListingWriter interface {
	Write(ctx context.Context, raw models.RawListing, sourceURL string) (string, error)
}

// Controller owns the pipeline components. One Controller can run several
// crawls in sequence; each Run gets its own CrawlRun.
type Controller struct {
	fetcher   Fetcher
	extractor *extractor.Extractor
	writer    ListingWriter
	strategy  Strategy
	limiter   ratelimit.RateLimiter
	logger    *slog.Logger

	mu      sync.RWMutex
	current *CrawlRun
}

func NewController(
	fetcher Fetcher,
	ext *extractor.Extractor,
	w ListingWriter,
	strategy Strategy,
	limiter ratelimit.RateLimiter,
	logger *slog.Logger,
) *Controller {
	if limiter == nil {
		limiter = ratelimit.NewFixedDelay(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		fetcher:   fetcher,
		extractor: ext,
		writer:    w,
		strategy:  strategy,
		limiter:   limiter,
		logger:    logger.With("component", "crawler"),
	}
}

// CurrentRun returns the most recent run, if any.
func (c *Controller) CurrentRun() (*CrawlRun, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current, c.current != nil
}

// Run crawls from seedURL until the frontier is exhausted or ctx is done. It
// fails only on an invalid seed; on cancellation it returns the partial stats
// together with ctx.Err().
func (c *Controller) Run(ctx context.Context, seedURL string) (Stats, error) {
	run, err := NewRun(uuid.New().String(), seedURL, c.strategy)
	if err != nil {
		return Stats{}, err
	}

	c.mu.Lock()
	c.current = run
	c.mu.Unlock()
	defer run.finish()

	logger := c.logger.With("run_id", run.ID)
	logger.Info("starting crawl",
		"seed", run.BaseURL,
		"strategy", run.Strategy,
		"max_depth", run.MaxDepth)

	frontier := queue.NewInMemoryFrontier()
	defer frontier.Close()

	if err := frontier.Push(models.CrawlTarget{URL: run.BaseURL, Depth: 0}); err != nil {
		return run.Stats(), err
	}

	for {
		if err := ctx.Err(); err != nil {
			stats := run.Stats()
			logger.Warn("crawl cancelled",
				"pages_visited", stats.PagesVisited,
				"listings_written", stats.ListingsWritten,
				"pending", frontier.Size())
			return stats, err
		}

		target, err := frontier.Pop()
		if errors.Is(err, queue.ErrQueueEmpty) {
			break
		}
		if err != nil {
			return run.Stats(), err
		}

		if err := frontier.PushAll(c.Visit(ctx, run, target)); err != nil {
			return run.Stats(), err
		}
	}

	stats := run.Stats()
	logger.Info("crawl finished",
		"pages_visited", stats.PagesVisited,
		"listings_written", stats.ListingsWritten,
		"listings_skipped", stats.ListingsSkipped,
		"listings_invalid", stats.ListingsInvalid,
		"listings_failed", stats.ListingsFailed,
		"fetch_failures", stats.FetchFailures)

	return stats, nil
}

// Visit processes one target and returns the targets discovered from it.
// Visiting a URL already in run.Visited, or beyond run.MaxDepth, does nothing.
// A URL enters run.Visited only once its request is about to be sent.
func (c *Controller) Visit(ctx context.Context, run *CrawlRun, target models.CrawlTarget) []models.CrawlTarget {
	if ctx.Err() != nil {
		return nil
	}

	logger := c.logger.With("url", target.URL, "depth", target.Depth)

	key, err := discovery.Normalize(target.URL)
	if err != nil {
		logger.Warn("skip invalid url", "error", err)
		return nil
	}

	if run.Visited.Contains(key) {
		logger.Debug("skip visited")
		return nil
	}
	if target.Depth > run.MaxDepth {
		logger.Debug("skip depth", "max_depth", run.MaxDepth)
		return nil
	}

	if target.Depth > 0 {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
	}

	if !run.Visited.Add(key) {
		logger.Debug("skip visited")
		return nil
	}
	run.stats.urlsDispatched.Add(1)

	result := c.fetcher.Fetch(ctx, key)
	if !result.OK() {
		run.stats.fetchFailures.Add(1)
		logger.Warn("fetch failed",
			"status", result.Status.String(),
			"status_code", result.StatusCode,
			"error", result.Failure())
		return nil
	}

	pageURL, ok := c.resolveFinalURL(run, key, result, logger)
	if !ok {
		return nil
	}
	if result.Truncated {
		logger.Warn("page body truncated, listings may be missing", "bytes", len(result.Body))
	}
	run.stats.pagesVisited.Add(1)

	doc, err := parser.Parse(result.Body, result.ContentType, pageURL)
	if err != nil {
		logger.Warn("failed to parse page", "error", err)
		return nil
	}

	valid := c.processListings(ctx, run, doc, logger)
	logger.Info("page processed", "listings", valid)

	if target.Depth >= run.MaxDepth {
		return nil
	}

	next := c.strategy.Next(Page{
		Target:     target,
		Doc:        doc,
		BaseDomain: run.BaseDomain,
		Listings:   valid,
	})

	targets := make([]models.CrawlTarget, 0, len(next))
	for _, u := range next {
		if run.Visited.Contains(u) {
			continue
		}
		targets = append(targets, models.CrawlTarget{URL: u, Depth: target.Depth + 1})
	}
	return targets
}

// resolveFinalURL returns the URL the page was actually served from. A page
// that ended up on another host counts as a failed fetch; one that ended up
// on an already visited URL is not processed again.
func (c *Controller) resolveFinalURL(run *CrawlRun, key string, result models.FetchResult, logger *slog.Logger) (string, bool) {
	if result.FinalURL == "" {
		return key, true
	}

	final, err := discovery.Normalize(result.FinalURL)
	if err != nil {
		return key, true
	}
	if final == key {
		return key, true
	}

	u, err := url.Parse(final)
	if err != nil || !strings.EqualFold(u.Host, run.BaseDomain) {
		run.stats.fetchFailures.Add(1)
		logger.Warn("redirected off site", "final_url", result.FinalURL)
		return "", false
	}

	if !run.Visited.Add(final) {
		logger.Debug("redirect target already visited", "final_url", final)
		return "", false
	}
	run.stats.urlsDispatched.Add(1)
	logger.Debug("redirected", "final_url", final)
	return final, true
}

// processListings extracts and writes every listing block on doc and returns
// how many carried all required fields. A failed write never stops the next
// block from being tried.
func (c *Controller) processListings(ctx context.Context, run *CrawlRun, doc *parser.Document, logger *slog.Logger) int {
	raws := c.extractor.ExtractAll(doc)
	if len(raws) == 0 {
		logger.Info("no listings found on page")
		return 0
	}

	valid := 0
	for i, raw := range raws {
		run.stats.listingsFound.Add(1)

		if href, ok := raw.Get(models.FieldURL); ok {
			if u, err := doc.Resolve(href); err == nil {
				raw[models.FieldURL] = u.String()
			}
		}

		id, err := c.writer.Write(ctx, raw, doc.URL.String())
		if !errors.Is(err, writer.ErrMissingFields) {
			valid++
		}
		switch {
		case err == nil:
			run.stats.listingsWritten.Add(1)
			logger.Info("listing written", "id", id, "name", raw[models.FieldName])
		case errors.Is(err, writer.ErrMissingFields):
			run.stats.listingsSkipped.Add(1)
			logger.Warn("skipping listing with missing data", "block", i, "error", err)
		case errors.Is(err, writer.ErrInvalidField):
			run.stats.listingsInvalid.Add(1)
			logger.Warn("skipping listing with invalid data", "block", i, "error", err)
		default:
			run.stats.listingsFailed.Add(1)
			logger.Error("failed to write listing", "block", i, "error", err)
		}
	}

	return valid
}
