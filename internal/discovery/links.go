package discovery

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/property-crawler/internal/parser"
)

// PaginationOptions describe how a site marks its "next page" anchor.
type PaginationOptions struct {
	// Selectors are tried first, in order (e.g. `a[rel="next"]`).
	Selectors []string
	// Texts are matched case-insensitively against trimmed anchor text.
	Texts []string
}

func DefaultPaginationOptions() PaginationOptions {
	return PaginationOptions{
		Selectors: []string{`a[rel="next"]`},
		Texts:     []string{"Load more", "Next"},
	}
}

// FindPagination locates the "load more / next page" anchor and returns its
// absolute URL.
func FindPagination(doc *parser.Document, opts PaginationOptions) (string, bool) {
	for _, selector := range opts.Selectors {
		var found string
		doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if u, ok := resolveAnchor(doc, s); ok {
				found = u
				return false
			}
			return true
		})
		if found != "" {
			return found, true
		}
	}

	if len(opts.Texts) == 0 {
		return "", false
	}

	needles := make([]string, 0, len(opts.Texts))
	for _, t := range opts.Texts {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			needles = append(needles, t)
		}
	}

	var found string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.ToLower(strings.TrimSpace(s.Text()))
		if text == "" {
			text = strings.ToLower(strings.TrimSpace(s.AttrOr("aria-label", "")))
		}
		for _, n := range needles {
			if strings.Contains(text, n) {
				if u, ok := resolveAnchor(doc, s); ok {
					found = u
					return false
				}
			}
		}
		return true
	})

	return found, found != ""
}

// FindOutboundLinks collects every same-host anchor on the page, skipping
// paths under any excluded prefix. The result is de-duplicated and sorted.
func FindOutboundLinks(doc *parser.Document, baseDomain string, excludedPathPrefixes []string) []string {
	host := hostOf(baseDomain)
	seen := make(map[string]struct{})

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		link, ok := resolveAnchor(doc, s)
		if !ok {
			return
		}
		u, err := url.Parse(link)
		if err != nil || !sameHost(u, host) {
			return
		}
		if isExcluded(u.Path, excludedPathPrefixes) {
			return
		}
		seen[link] = struct{}{}
	})

	links := make([]string, 0, len(seen))
	for l := range seen {
		links = append(links, l)
	}
	sort.Strings(links)
	return links
}

// Normalize produces the canonical form used for visited-set keys: lower-cased
// scheme and host, no fragment, "/" for an empty path.
func Normalize(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q is not absolute", rawURL)
	}
	return normalizeURL(u), nil
}

func normalizeURL(u *url.URL) string {
	n := *u
	n.Fragment = ""
	n.RawFragment = ""
	n.Scheme = strings.ToLower(n.Scheme)
	n.Host = strings.ToLower(n.Host)
	if n.Path == "" {
		n.Path = "/"
	}
	return n.String()
}

func resolveAnchor(doc *parser.Document, s *goquery.Selection) (string, bool) {
	href, ok := s.Attr("href")
	if !ok {
		return "", false
	}
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") {
		return "", false
	}

	u, err := doc.Resolve(href)
	if err != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return normalizeURL(u), true
}

func isExcluded(path string, prefixes []string) bool {
	if path == "" {
		path = "/"
	}
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// hostOf accepts either a bare host ("www.example.com") or a URL.
func hostOf(baseDomain string) string {
	if strings.Contains(baseDomain, "://") {
		if u, err := url.Parse(baseDomain); err == nil {
			return u.Host
		}
	}
	return strings.TrimSuffix(baseDomain, "/")
}

// sameHost compares ports only when the base domain names one.
func sameHost(u *url.URL, host string) bool {
	if strings.Contains(host, ":") {
		return strings.EqualFold(u.Host, host)
	}
	return strings.EqualFold(u.Hostname(), host)
}
