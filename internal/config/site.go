package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/maltedev/property-crawler/internal/discovery"
	"github.com/maltedev/property-crawler/internal/models"
)

var (
	// ErrProfileNotFound is returned when a site profile file does not exist.
	ErrProfileNotFound = errors.New("site profile not found")
	// ErrInvalidProfile is returned for profiles that cannot drive a crawl.
	ErrInvalidProfile = errors.New("invalid site profile")
)

// SiteProfile describes how to crawl one listings site.
type SiteProfile struct {
	Name          string                   `yaml:"name"`
	Seed          string                   `yaml:"seed"`
	Listing       ListingSelectors         `yaml:"listing"`
	Pagination    PaginationSelectors      `yaml:"pagination"`
	StopWhenEmpty bool                     `yaml:"stop_when_empty"`
	ExcludedPaths []string                 `yaml:"excluded_paths"`
	Defaults      models.ListingDefaults   `yaml:"defaults"`
	References    models.ListingReferences `yaml:"references"`
}

// ListingSelectors locate listing blocks and the fields inside each block.
// Field selectors use the "css" or "css@attr" form.
type ListingSelectors struct {
	Block  string            `yaml:"block"`
	Fields map[string]string `yaml:"fields"`
}

type PaginationSelectors struct {
	Selectors []string `yaml:"selectors"`
	Texts     []string `yaml:"texts"`
}

// DefaultSiteProfile targets the OLX Pakistan "property for sale" category.
func DefaultSiteProfile() *SiteProfile {
	return &SiteProfile{
		Name: "olx-pk",
		Seed: "https://www.olx.com.pk/property-for-sale_c2",
		Listing: ListingSelectors{
			Block: "div._3VfJj2",
			Fields: map[string]string{
				models.FieldName:    "h2._89yzn1",
				models.FieldPrice:   "span._2vNptt",
				models.FieldAddress: "span._2BmUPh",
				models.FieldURL:     "a@href",
			},
		},
		Pagination: PaginationSelectors{
			Selectors: []string{`a[rel="next"]`},
			Texts:     []string{"Load more", "Next"},
		},
		StopWhenEmpty: true,
		ExcludedPaths: []string{"/login", "/account", "/myads", "/post-ad", "/help"},
		Defaults:      models.DefaultListingDefaults(),
		References:    models.DefaultListingReferences(),
	}
}

// LoadSiteProfile reads a YAML profile. Keys the file omits keep the values
// of the default profile, except the listing selectors, which are replaced as
// a whole when the file sets any of them.
func LoadSiteProfile(path string) (*SiteProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, path)
		}
		return nil, err
	}

	return ParseSiteProfile(data)
}

func ParseSiteProfile(data []byte) (*SiteProfile, error) {
	profile := DefaultSiteProfile()
	defaultListing := profile.Listing
	profile.Listing = ListingSelectors{}

	if err := yaml.Unmarshal(data, profile); err != nil {
		return nil, fmt.Errorf("failed to parse site profile: %w", err)
	}

	if profile.Listing.Block == "" && len(profile.Listing.Fields) == 0 {
		profile.Listing = defaultListing
	}

	if err := profile.Validate(); err != nil {
		return nil, err
	}
	return profile, nil
}

func (p *SiteProfile) Validate() error {
	if p.Listing.Block == "" {
		return fmt.Errorf("%w: listing.block is required", ErrInvalidProfile)
	}
	for _, field := range models.RequiredFields {
		if p.Listing.Fields[field] == "" {
			return fmt.Errorf("%w: listing.fields.%s is required", ErrInvalidProfile, field)
		}
	}
	return nil
}

// PaginationOptions converts the pagination selectors for the discoverer.
func (p *SiteProfile) PaginationOptions() discovery.PaginationOptions {
	return discovery.PaginationOptions{
		Selectors: p.Pagination.Selectors,
		Texts:     p.Pagination.Texts,
	}
}
