package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
)

// Document is a parsed HTML page together with the URL that relative links
// on it resolve against.
type Document struct {
	*goquery.Document
	URL  *url.URL
	Base *url.URL
}

// Parse decodes body to UTF-8 using the declared or sniffed charset and
// builds a goquery document for it.
func Parse(body []byte, contentType, pageURL string) (*Document, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page url %q: %w", pageURL, err)
	}

	data := body
	enc, _, _ := charset.DetermineEncoding(body, contentType)
	if decoded, err := enc.NewDecoder().Bytes(body); err == nil {
		data = decoded
	} else if !utf8.Valid(body) {
		return nil, fmt.Errorf("failed to decode page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	d := &Document{Document: doc, URL: u, Base: u}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b, err := u.Parse(strings.TrimSpace(href)); err == nil {
			d.Base = b
		}
	}

	return d, nil
}

// Resolve turns href into an absolute URL against the document base.
func (d *Document) Resolve(href string) (*url.URL, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return nil, fmt.Errorf("empty href")
	}
	ref, err := url.Parse(href)
	if err != nil {
		return nil, err
	}
	return d.Base.ResolveReference(ref), nil
}
