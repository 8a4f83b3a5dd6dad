package crawler

import (
	"fmt"

	"github.com/maltedev/property-crawler/internal/discovery"
	"github.com/maltedev/property-crawler/internal/models"
	"github.com/maltedev/property-crawler/internal/parser"
)

const (
	StrategyPagination = "pagination"
	StrategyLinks      = "links"
)

// Page is what a Strategy sees after the controller has processed a fetched
// page.
type Page struct {
	Target     models.CrawlTarget
	Doc        *parser.Document
	BaseDomain string
	// Listings counts the blocks that carried every required field.
	Listings int
}

// Strategy decides which URLs follow a processed page. Both strategies share
// the same visit pipeline and differ only here.
type Strategy interface {
	Name() string
	MaxDepth() int
	Next(page Page) []string
}

// PaginationStrategy follows a single "next page" link per page.
type PaginationStrategy struct {
	Options   discovery.PaginationOptions
	PageLimit int
	// StopWhenEmpty ends the chain on a page without a complete listing.
	StopWhenEmpty bool
}

func NewPaginationStrategy(pageLimit int, opts discovery.PaginationOptions) *PaginationStrategy {
	return &PaginationStrategy{
		Options:       opts,
		PageLimit:     pageLimit,
		StopWhenEmpty: true,
	}
}

func (s *PaginationStrategy) Name() string { return StrategyPagination }

// MaxDepth maps the page limit onto hop depth: the seed is page 1.
func (s *PaginationStrategy) MaxDepth() int {
	if s.PageLimit < 1 {
		return 0
	}
	return s.PageLimit - 1
}

func (s *PaginationStrategy) Next(page Page) []string {
	if s.StopWhenEmpty && page.Listings == 0 {
		return nil
	}
	next, ok := discovery.FindPagination(page.Doc, s.Options)
	if !ok {
		return nil
	}
	return []string{next}
}

// LinkFollowingStrategy follows every in-domain link up to a hop depth.
type LinkFollowingStrategy struct {
	Depth         int
	ExcludedPaths []string
}

func NewLinkFollowingStrategy(maxDepth int, excludedPaths []string) *LinkFollowingStrategy {
	return &LinkFollowingStrategy{Depth: maxDepth, ExcludedPaths: excludedPaths}
}

func (s *LinkFollowingStrategy) Name() string { return StrategyLinks }

func (s *LinkFollowingStrategy) MaxDepth() int {
	if s.Depth < 0 {
		return 0
	}
	return s.Depth
}

func (s *LinkFollowingStrategy) Next(page Page) []string {
	return discovery.FindOutboundLinks(page.Doc, page.BaseDomain, s.ExcludedPaths)
}

// StrategyOptions carries the settings either strategy may need.
type StrategyOptions struct {
	MaxDepth      int
	PageLimit     int
	StopWhenEmpty bool
	Pagination    discovery.PaginationOptions
	ExcludedPaths []string
}

// NewStrategy builds a strategy by name.
func NewStrategy(name string, opts StrategyOptions) (Strategy, error) {
	switch name {
	case StrategyPagination, "":
		s := NewPaginationStrategy(opts.PageLimit, opts.Pagination)
		s.StopWhenEmpty = opts.StopWhenEmpty
		return s, nil
	case StrategyLinks:
		return NewLinkFollowingStrategy(opts.MaxDepth, opts.ExcludedPaths), nil
	default:
		return nil, fmt.Errorf("unknown crawl strategy %q", name)
	}
}
