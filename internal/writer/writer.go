// Package writer turns extracted listing fields into stored listings.
package writer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/maltedev/property-crawler/internal/models"
	"github.com/maltedev/property-crawler/internal/parser"
)

var (
	// ErrMissingFields means a required field was absent or empty.
	ErrMissingFields = errors.New("missing required fields")
	// ErrInvalidField means the built listing failed validation.
	ErrInvalidField = errors.New("invalid field value")
	// ErrStoreFailure means the store rejected the insert and rolled back.
	ErrStoreFailure = errors.New("store failure")
)

// WriteError describes why a listing was not written. Kind is one of the
// package sentinels so callers can use errors.Is.
type WriteError struct {
	Kind   error
	Fields []string
	Cause  error
}

func (e *WriteError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if len(e.Fields) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Fields, ", "))
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *WriteError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// Store persists a single listing. InsertListing must be atomic: on error
// nothing from the call may remain in the store.
type Store interface {
	InsertListing(ctx context.Context, listing *models.Listing) error
}

// Options configures the values a Writer fills in for every listing.
type Options struct {
	Defaults   models.ListingDefaults
	References models.ListingReferences
}

func DefaultOptions() Options {
	return Options{
		Defaults:   models.DefaultListingDefaults(),
		References: models.DefaultListingReferences(),
	}
}

// Writer validates raw listings, fills in defaults and hands them to a Store.
type Writer struct {
	store  Store
	opts   Options
	logger *slog.Logger
	newID  func() string
}

func New(store Store, opts Options, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		store:  store,
		opts:   opts,
		logger: logger.With("component", "writer"),
		newID:  func() string { return uuid.New().String() },
	}
}

// Write stores one listing and returns its slug as the record ID. sourceURL is
// the page the listing was extracted from.
func (w *Writer) Write(ctx context.Context, raw models.RawListing, sourceURL string) (string, error) {
	if missing := raw.Missing(); len(missing) > 0 {
		return "", &WriteError{Kind: ErrMissingFields, Fields: missing}
	}

	listing, err := w.build(raw)
	if err != nil {
		return "", err
	}
	listing.SourceURL = sourceURL

	if err := w.store.InsertListing(ctx, listing); err != nil {
		return "", &WriteError{Kind: ErrStoreFailure, Cause: err}
	}

	w.logger.Debug("listing written",
		"slug", listing.Slug,
		"name", listing.Name,
		"price", listing.Price,
		"source_url", sourceURL)

	return listing.Slug, nil
}

func (w *Writer) build(raw models.RawListing) (*models.Listing, error) {
	name, _ := raw.Get(models.FieldName)
	address, _ := raw.Get(models.FieldAddress)
	priceText, _ := raw.Get(models.FieldPrice)

	listing := models.NewListing(w.opts.Defaults, w.opts.References)
	listing.Name = name
	listing.Address = address
	listing.PriceText = priceText

	// Price stays 0 when the text holds no amount ("Price on call").
	if price, err := parser.ParsePrice(priceText); err == nil {
		listing.Price = price
	} else {
		w.logger.Debug("price not numeric, keeping raw text", "price_text", priceText, "error", err)
	}
	listing.Slug = w.slug(name)
	listing.Description = name

	if v, ok := raw.Get(models.FieldDescription); ok {
		listing.Description = v
	}
	if v, ok := raw.Get(models.FieldBedrooms); ok {
		if n, ok := parser.ParseInt(v); ok && n > 0 {
			listing.Bedrooms = n
		}
	}
	if v, ok := raw.Get(models.FieldBathrooms); ok {
		if n, ok := parser.ParseInt(v); ok && n > 0 {
			listing.Bathrooms = n
		}
	}
	if v, ok := raw.Get(models.FieldArea); ok {
		if f, ok := parser.ParseFloat(v); ok && f > 0 {
			listing.AreaSize = f
		}
	}

	if problems := listing.Validate(); len(problems) > 0 {
		return nil, &WriteError{Kind: ErrInvalidField, Cause: errors.New(strings.Join(problems, "; "))}
	}

	return listing, nil
}

var nonSlugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lower-cases s and joins its alphanumeric runs with dashes.
func Slugify(s string) string {
	slug := nonSlugRe.ReplaceAllString(strings.ToLower(s), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 80 {
		slug = strings.TrimRight(slug[:80], "-")
	}
	if slug == "" {
		return "property"
	}
	return slug
}

func (w *Writer) slug(name string) string {
	id := strings.ReplaceAll(w.newID(), "-", "")
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s-%s", Slugify(name), id)
}
