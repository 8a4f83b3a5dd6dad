// Package extractor pulls listing attributes out of parsed pages using
// per-site CSS selectors.
package extractor

import (
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/property-crawler/internal/models"
	"github.com/maltedev/property-crawler/internal/parser"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Selector targets one field inside a listing block. A selector written as
// "css@attr" reads the attribute instead of the element text.
type Selector struct {
	CSS  string
	Attr string
}

// ParseSelector splits "h2.title" or "a.link@href" into its parts.
func ParseSelector(s string) Selector {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "@"); i >= 0 && !strings.Contains(s[i:], "]") {
		return Selector{CSS: strings.TrimSpace(s[:i]), Attr: strings.TrimSpace(s[i+1:])}
	}
	return Selector{CSS: s}
}

// Extractor applies a fixed field-selector map to listing blocks.
type Extractor struct {
	blockSelector string
	fields        map[string]Selector
	order         []string
}

// New builds an extractor. blockSelector finds listing blocks on a page;
// fields maps field names to selectors relative to a block.
func New(blockSelector string, fields map[string]string) *Extractor {
	e := &Extractor{
		blockSelector: blockSelector,
		fields:        make(map[string]Selector, len(fields)),
	}
	for name, sel := range fields {
		e.fields[name] = ParseSelector(sel)
		e.order = append(e.order, name)
	}
	sort.Strings(e.order)
	return e
}

// Blocks returns every listing block on the page.
func (e *Extractor) Blocks(doc *parser.Document) *goquery.Selection {
	return doc.Find(e.blockSelector)
}

// Extract reads every configured field from block. Fields whose selector
// matches nothing, or matches only whitespace, are left out of the result.
func (e *Extractor) Extract(block *goquery.Selection) models.RawListing {
	raw := make(models.RawListing, len(e.fields))

	for _, name := range e.order {
		sel := e.fields[name]
		if v, ok := extractField(block, sel); ok {
			raw[name] = v
		}
	}

	return raw
}

// ExtractAll runs Extract over every block on the page.
func (e *Extractor) ExtractAll(doc *parser.Document) []models.RawListing {
	blocks := e.Blocks(doc)
	out := make([]models.RawListing, 0, blocks.Length())
	blocks.Each(func(_ int, s *goquery.Selection) {
		out = append(out, e.Extract(s))
	})
	return out
}

func extractField(block *goquery.Selection, sel Selector) (string, bool) {
	target := block
	if sel.CSS != "" {
		target = block.Find(sel.CSS).First()
	}
	if target.Length() == 0 {
		return "", false
	}

	var value string
	if sel.Attr != "" {
		v, ok := target.Attr(sel.Attr)
		if !ok {
			return "", false
		}
		value = v
	} else {
		value = target.Text()
	}

	value = strings.TrimSpace(whitespaceRe.ReplaceAllString(value, " "))
	if value == "" {
		return "", false
	}
	return value, true
}
