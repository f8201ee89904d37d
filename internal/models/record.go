package models

// SchemaVersion is stamped into every NormalizedRecord so stored payloads can be migrated
const SchemaVersion = 2

// FieldMapping is the flat, source-shaped mapping produced by the field mapper.
// Values are string, []any or map[string]any.
type FieldMapping map[string]any

// PriceType classifies how a price figure should be read
type PriceType string

const (
	PricePerSqft   PriceType = "per_sqft"
	PricePerAnnum  PriceType = "per_annum"
	PriceTotal     PriceType = "total"
	PriceOnRequest PriceType = "poa"
)

// SizeRange is a min/max pair in square feet. Nil bounds mean unavailable.
type SizeRange struct {
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
}

// PriceRange is a min/max pair with the unit the figures are expressed in
type PriceRange struct {
	Min  *float64  `json:"min"`
	Max  *float64  `json:"max"`
	Type PriceType `json:"type"`
}

// NormalizedRecord is the canonical unit of the pipeline. It is built once per feed item
// per run and never mutated after construction.
type NormalizedRecord struct {
	Meta              Meta              `json:"meta"`
	Property          Property          `json:"property"`
	Location          Location          `json:"location"`
	Pricing           Pricing           `json:"pricing"`
	BusinessFinancial BusinessFinancial `json:"business_financial"`
	LegalRegulatory   LegalRegulatory   `json:"legal_regulatory"`
	PhysicalFeatures  PhysicalFeatures  `json:"physical_features"`
	Size              Size              `json:"size"`
	Marketing         Marketing         `json:"marketing"`
	SellingPoints     []string          `json:"selling_points"`
	Certifications    Certifications    `json:"certifications"`
	Units             []UnitRecord      `json:"units"`
	Media             Media             `json:"media"`
	Contacts          []ContactRecord   `json:"contacts"`
	Extras            map[string]string `json:"extras,omitempty"`
}

type Meta struct {
	ExternalID    string `json:"external_id"`
	CreatedAt     string `json:"created_at"`
	LastUpdated   string `json:"last_updated"`
	IsFeatured    bool   `json:"is_featured"`
	SchemaVersion int    `json:"schema_version"`
}

type Property struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Summary        string   `json:"summary"`
	Status         string   `json:"status"`
	Types          []string `json:"types"`
	Availabilities []string `json:"availabilities"`
}

type Location struct {
	Address1    string   `json:"address1"`
	Address2    string   `json:"address2"`
	Address3    string   `json:"address3"`
	Town        string   `json:"town"`
	County      string   `json:"county"`
	Postcode    string   `json:"postcode"`
	OutwardCode string   `json:"outward_code"`
	Country     string   `json:"country"`
	Area        string   `json:"area"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
}

type Pricing struct {
	Display      string     `json:"display"`
	Price        *float64   `json:"price"`
	PricePerSqft *float64   `json:"price_per_sqft"`
	Qualifier    string     `json:"qualifier"`
	Currency     string     `json:"currency"`
	ForSale      bool       `json:"for_sale"`
	ToLet        bool       `json:"to_let"`
	Range        PriceRange `json:"range"`
}

// RentComponents is the rent sub-block, keyed consistently whatever the source called it
type RentComponents struct {
	Amount    *float64 `json:"amount"`
	Frequency string   `json:"frequency"`
	PerSqft   *float64 `json:"per_sqft"`
	Notes     string   `json:"notes"`
}

type ServiceCharge struct {
	Amount  *float64 `json:"amount"`
	Period  string   `json:"period"`
	PerSqft *float64 `json:"per_sqft"`
	Notes   string   `json:"notes"`
}

type BusinessFinancial struct {
	RentComponents RentComponents `json:"rent_components"`
	ServiceCharge  ServiceCharge  `json:"service_charge"`
	BusinessRates  *float64       `json:"business_rates"`
	RateableValue  *float64       `json:"rateable_value"`
	VATApplicable  *bool          `json:"vat_applicable"`
	Premium        *float64       `json:"premium"`
}

type LegalRegulatory struct {
	Tenure        string `json:"tenure"`
	UseClass      string `json:"use_class"`
	LeaseLength   string `json:"lease_length"`
	PlanningNotes string `json:"planning_notes"`
}

// SpecPair is one amenity/specification name-value entry
type SpecPair struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type PhysicalFeatures struct {
	Floors         *int       `json:"floors"`
	YearBuilt      *int       `json:"year_built"`
	ParkingSpaces  *int       `json:"parking_spaces"`
	CeilingHeight  string     `json:"ceiling_height"`
	LandSize       string     `json:"land_size"`
	Specifications []SpecPair `json:"specifications"`
}

// Size keeps the total property size apart from the unit size range; the two are
// different measurements and must never be merged.
type Size struct {
	TotalSqft *float64  `json:"total_sqft"`
	Unit      string    `json:"unit"`
	Display   string    `json:"display"`
	UnitRange SizeRange `json:"unit_range"`
}

type Marketing struct {
	Headline  string `json:"headline"`
	Strapline string `json:"strapline"`
	Text      string `json:"text"`
}

type Certifications struct {
	EPCRating      string            `json:"epc_rating"`
	EPCCertificate string            `json:"epc_certificate"`
	BREEAM         string            `json:"breeam"`
	Other          map[string]string `json:"other,omitempty"`
}

// UnitRecord is one leasable or sellable sub-unit owned by its parent record
type UnitRecord struct {
	UnitExternalID   string         `json:"unit_external_id"`
	FloorLabel       string         `json:"floor_label"`
	SizeSqft         *float64       `json:"size_sqft"`
	SizeDisplay      string         `json:"size_display"`
	RentMin          *float64       `json:"rent_min"`
	RentMax          *float64       `json:"rent_max"`
	RentDisplay      string         `json:"rent_display"`
	RentMetric       string         `json:"rent_metric"`
	Status           string         `json:"status"`
	AvailabilityDate string         `json:"availability_date"`
	SortOrder        int            `json:"sort_order"`
	Raw              map[string]any `json:"raw,omitempty"`
}

type ContactRecord struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Company   string `json:"company"`
	Role      string `json:"role"`
	IsPrimary bool   `json:"is_primary"`
	SortOrder int    `json:"sort_order"`
}

// MediaRecord has the same shape for every media kind; the containing collection tells them apart
type MediaRecord struct {
	URL       string         `json:"url"`
	Title     string         `json:"title"`
	SortOrder int            `json:"sort_order"`
	Raw       map[string]any `json:"raw,omitempty"`
}

type Media struct {
	Images     []MediaRecord `json:"images"`
	Brochures  []MediaRecord `json:"brochures"`
	Floorplans []MediaRecord `json:"floorplans"`
	Videos     []MediaRecord `json:"videos"`
}

// Classifications are the taxonomy-like terms assigned to a stored entity after upsert
type Classifications struct {
	Types          []string `json:"types"`
	Location       string   `json:"location"`
	Availabilities []string `json:"availabilities"`
}

// Classifications derives the taxonomy terms from the already deduplicated record lists
func (r *NormalizedRecord) Classifications() Classifications {
	loc := r.Location.Town
	if loc == "" {
		loc = r.Location.Area
	}
	return Classifications{
		Types:          append([]string(nil), r.Property.Types...),
		Location:       loc,
		Availabilities: append([]string(nil), r.Property.Availabilities...),
	}
}

// ImageURLs returns the image URLs in feed order
func (r *NormalizedRecord) ImageURLs() []string {
	urls := make([]string, 0, len(r.Media.Images))
	for _, img := range r.Media.Images {
		urls = append(urls, img.URL)
	}
	return urls
}
