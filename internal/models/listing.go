package models

import (
	"time"
)

// Field names understood by the extractor and the listing writer.
const (
	FieldName        = "name"
	FieldPrice       = "price"
	FieldAddress     = "address"
	FieldDescription = "description"
	FieldBedrooms    = "bedrooms"
	FieldBathrooms   = "bathrooms"
	FieldArea        = "area"
	FieldURL         = "url"
)

// RequiredFields must be present and non-empty before a listing is stored.
var RequiredFields = []string{FieldName, FieldPrice, FieldAddress}

// CrawlTarget is a URL waiting to be visited and its hop count from the seed.
type CrawlTarget struct {
	URL   string `json:"url"`
	Depth int    `json:"depth"`
}

// RawListing holds the values extracted from one listing block. A field that
// the page did not expose is simply missing from the map.
type RawListing map[string]string

// Get returns the value of a field and whether it was extracted.
func (r RawListing) Get(field string) (string, bool) {
	v, ok := r[field]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Missing returns the required fields that are absent or empty.
func (r RawListing) Missing() []string {
	var missing []string
	for _, f := range RequiredFields {
		if _, ok := r.Get(f); !ok {
			missing = append(missing, f)
		}
	}
	return missing
}

// Listing is the record written to the properties store.
type Listing struct {
	ID                  int64     `json:"id,omitempty"`
	Name                string    `json:"name"`
	Slug                string    `json:"slug"`
	Purpose             string    `json:"purpose"`
	Description         string    `json:"descriptions"`
	Address             string    `json:"address"`
	Price               float64   `json:"price"`
	PriceText           string    `json:"price_text"`
	Bedrooms            int       `json:"no_of_bed_room"`
	Bathrooms           int       `json:"no_of_bath_room"`
	PropertySize        int       `json:"property_size"`
	YearBuilt           int       `json:"year_build"`
	TotalFloors         int       `json:"total_floors"`
	Accommodations      string    `json:"accommodations"`
	CeilingHeight       float64   `json:"ceiling_height"`
	DistanceFromCenter  float64   `json:"distance_from_center"`
	Parking             string    `json:"parking"`
	Heating             string    `json:"heating"`
	AreaSize            float64   `json:"area_size"`
	Garage              bool      `json:"garage"`
	UtilityCost         int       `json:"utility_cost"`
	CableTVCost         int       `json:"cable_tv_cost"`
	ElectricityCost     string    `json:"electricity_cost"`
	Deposit             float64   `json:"deposit"`
	PetAllowed          bool      `json:"pet_allowed"`
	PaymentPeriod       string    `json:"payment_period"`
	Habitable           string    `json:"habitable"`
	MinimumStayDuration int       `json:"minimum_stay_duration"`
	PropertyTypeID      int64     `json:"property_type_id"`
	AgentID             int64     `json:"agent_id"`
	CityID              int64     `json:"city_id"`
	SourceURL           string    `json:"source_url"`
	CreatedAt           time.Time `json:"created_at"`
}

// ListingDefaults are the values stored for attributes a listing page does
// not expose.
type ListingDefaults struct {
	Purpose             string  `yaml:"purpose"`
	Bedrooms            int     `yaml:"bedrooms"`
	Bathrooms           int     `yaml:"bathrooms"`
	PropertySize        int     `yaml:"property_size"`
	YearBuilt           int     `yaml:"year_built"`
	TotalFloors         int     `yaml:"total_floors"`
	Accommodations      string  `yaml:"accommodations"`
	CeilingHeight       float64 `yaml:"ceiling_height"`
	DistanceFromCenter  float64 `yaml:"distance_from_center"`
	Parking             string  `yaml:"parking"`
	Heating             string  `yaml:"heating"`
	AreaSize            float64 `yaml:"area_size"`
	Garage              bool    `yaml:"garage"`
	UtilityCost         int     `yaml:"utility_cost"`
	CableTVCost         int     `yaml:"cable_tv_cost"`
	ElectricityCost     string  `yaml:"electricity_cost"`
	Deposit             float64 `yaml:"deposit"`
	PetAllowed          bool    `yaml:"pet_allowed"`
	PaymentPeriod       string  `yaml:"payment_period"`
	Habitable           string  `yaml:"habitable"`
	MinimumStayDuration int     `yaml:"minimum_stay_duration"`
}

// DefaultListingDefaults returns the default table used when a site profile
// does not override it.
func DefaultListingDefaults() ListingDefaults {
	return ListingDefaults{
		Purpose:             "For Sale",
		Bedrooms:            3,
		Bathrooms:           2,
		PropertySize:        1000,
		YearBuilt:           2020,
		TotalFloors:         1,
		Accommodations:      "N/A",
		CeilingHeight:       10.0,
		DistanceFromCenter:  5.0,
		Parking:             "Available",
		Heating:             "None",
		AreaSize:            1200.0,
		Garage:              false,
		UtilityCost:         100,
		CableTVCost:         50,
		ElectricityCost:     "Rs 1000",
		Deposit:             10000.0,
		PetAllowed:          false,
		PaymentPeriod:       "Monthly",
		Habitable:           "Yes",
		MinimumStayDuration: 12,
	}
}

// ListingReferences are the foreign keys attached to every listing of a site.
type ListingReferences struct {
	PropertyTypeID int64 `yaml:"property_type_id"`
	AgentID        int64 `yaml:"agent_id"`
	CityID         int64 `yaml:"city_id"`
}

// DefaultListingReferences points at the "Houses" property type and the
// catch-all agent and city rows.
func DefaultListingReferences() ListingReferences {
	return ListingReferences{
		PropertyTypeID: 29,
		AgentID:        1,
		CityID:         1,
	}
}

// NewListing builds a listing pre-filled with defaults and references.
func NewListing(defaults ListingDefaults, refs ListingReferences) *Listing {
	return &Listing{
		Purpose:             defaults.Purpose,
		Bedrooms:            defaults.Bedrooms,
		Bathrooms:           defaults.Bathrooms,
		PropertySize:        defaults.PropertySize,
		YearBuilt:           defaults.YearBuilt,
		TotalFloors:         defaults.TotalFloors,
		Accommodations:      defaults.Accommodations,
		CeilingHeight:       defaults.CeilingHeight,
		DistanceFromCenter:  defaults.DistanceFromCenter,
		Parking:             defaults.Parking,
		Heating:             defaults.Heating,
		AreaSize:            defaults.AreaSize,
		Garage:              defaults.Garage,
		UtilityCost:         defaults.UtilityCost,
		CableTVCost:         defaults.CableTVCost,
		ElectricityCost:     defaults.ElectricityCost,
		Deposit:             defaults.Deposit,
		PetAllowed:          defaults.PetAllowed,
		PaymentPeriod:       defaults.PaymentPeriod,
		Habitable:           defaults.Habitable,
		MinimumStayDuration: defaults.MinimumStayDuration,
		PropertyTypeID:      refs.PropertyTypeID,
		AgentID:             refs.AgentID,
		CityID:              refs.CityID,
		CreatedAt:           time.Now(),
	}
}

// Validate reports problems that would make the listing unusable.
func (l *Listing) Validate() []string {
	var errors []string

	if l.Name == "" {
		errors = append(errors, "name is required")
	}

	if l.Address == "" {
		errors = append(errors, "address is required")
	}

	if l.PriceText == "" {
		errors = append(errors, "price text is required")
	}

	if l.Price < 0 {
		errors = append(errors, "price must not be negative")
	}

	if l.Slug == "" {
		errors = append(errors, "slug is required")
	}

	return errors
}
