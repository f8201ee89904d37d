package normalizer

import (
	"errors"
	"strings"

	"github.com/Guizzs26/go-feed-sync/internal/models"
	"github.com/Guizzs26/go-feed-sync/internal/ranges"
	"github.com/Guizzs26/go-feed-sync/internal/values"
)

// ErrMissingExternalID rejects records that cannot be reconciled
var ErrMissingExternalID = errors.New("normalized record has no external id")

// knownFields are the mapping keys consumed by a section; anything else scalar lands in extras
var knownFields = map[string]bool{
	"external_id": true, "created": true, "last_updated": true, "featured": true,
	"title": true, "description": true, "summary": true, "status": true,
	"types": true, "availabilities": true, "key_selling_points": true,
	"tenure": true, "use_class": true, "lease_length": true, "planning_notes": true,
	"headline": true, "strapline": true, "marketing_text": true,
	"address1": true, "address2": true, "address3": true, "town": true, "county": true,
	"postcode": true, "country": true, "location": true,
	"lat": true, "latitude": true, "lng": true, "lon": true, "longitude": true,
	"price": true, "price_text": true, "rent": true, "price_per_sqft": true,
	"price_qualifier": true, "currency": true, "business_rates": true, "rateable_value": true,
	"vat": true, "premium": true, "rent_components": true, "service_charge": true,
	"size": true, "size_from": true, "size_to": true, "size_unit": true, "total_size": true,
	"floors": true, "year_built": true, "parking_spaces": true, "ceiling_height": true,
	"land_size": true, "epc_rating": true, "epc_certificate": true, "breeam": true,
	"certifications": true, "specifications": true, "floor_units": true, "contacts": true,
	"images": true, "brochures": true, "floorplans": true, "videos": true, "extras": true,
}

// Normalize turns a field mapping into the canonical record. Every optional field may
// be absent. Keys are snake_cased first so camelCase sources map onto the same names.
func Normalize(raw models.FieldMapping) (*models.NormalizedRecord, error) {
	fm := models.FieldMapping(values.ToSnakeCaseKeys(raw))

	rec := &models.NormalizedRecord{
		Meta: models.Meta{
			ExternalID:    str(fm, "external_id"),
			CreatedAt:     str(fm, "created"),
			LastUpdated:   str(fm, "last_updated"),
			IsFeatured:    boolOf(fm["featured"]),
			SchemaVersion: models.SchemaVersion,
		},
		Property: models.Property{
			Title:          str(fm, "title"),
			Description:    str(fm, "description"),
			Summary:        str(fm, "summary"),
			Status:         str(fm, "status"),
			Types:          stringList(fm["types"]),
			Availabilities: stringList(fm["availabilities"]),
		},
		Location:          location(fm),
		BusinessFinancial: businessFinancial(fm),
		LegalRegulatory: models.LegalRegulatory{
			Tenure:        str(fm, "tenure"),
			UseClass:      str(fm, "use_class"),
			LeaseLength:   str(fm, "lease_length"),
			PlanningNotes: str(fm, "planning_notes"),
		},
		PhysicalFeatures: models.PhysicalFeatures{
			Floors:         values.ParseInt(fm["floors"]),
			YearBuilt:      values.ParseInt(fm["year_built"]),
			ParkingSpaces:  values.ParseInt(fm["parking_spaces"]),
			CeilingHeight:  str(fm, "ceiling_height"),
			LandSize:       str(fm, "land_size"),
			Specifications: specPairs(fm["specifications"]),
		},
		Size: models.Size{
			TotalSqft: ranges.TotalSize(fm),
			Unit:      values.FirstNonEmpty(str(fm, "size_unit"), "sq ft"),
			Display:   values.FirstNonEmpty(str(fm, "size"), sizeDisplay(fm)),
			UnitRange: ranges.SizeRange(fm),
		},
		Marketing: models.Marketing{
			Headline:  str(fm, "headline"),
			Strapline: str(fm, "strapline"),
			Text:      str(fm, "marketing_text"),
		},
		SellingPoints:  stringList(fm["key_selling_points"]),
		Certifications: certifications(fm),
		Units:          Units(fm["floor_units"]),
		Media: models.Media{
			Images:     media(fm["images"]),
			Brochures:  media(fm["brochures"]),
			Floorplans: media(fm["floorplans"]),
			Videos:     media(fm["videos"]),
		},
		Contacts: contacts(fm["contacts"]),
		Extras:   extras(fm),
	}
	rec.Pricing = pricing(fm, rec.Property.Availabilities)

	if strings.TrimSpace(rec.Meta.ExternalID) == "" {
		return nil, ErrMissingExternalID
	}
	return rec, nil
}

func location(fm models.FieldMapping) models.Location {
	postcode := strings.ToUpper(str(fm, "postcode"))
	return models.Location{
		Address1:    str(fm, "address1"),
		Address2:    str(fm, "address2"),
		Address3:    str(fm, "address3"),
		Town:        str(fm, "town"),
		County:      str(fm, "county"),
		Postcode:    postcode,
		OutwardCode: OutwardCode(postcode),
		Country:     str(fm, "country"),
		Area:        str(fm, "location"),
		Latitude:    coordinate(fm, "lat", "latitude"),
		Longitude:   coordinate(fm, "lng", "lon", "longitude"),
	}
}

// OutwardCode is the part of a postcode before the first space
func OutwardCode(postcode string) string {
	postcode = strings.TrimSpace(postcode)
	if i := strings.IndexByte(postcode, ' '); i >= 0 {
		return postcode[:i]
	}
	return postcode
}

// coordinate returns the first alias holding a parseable value
func coordinate(fm models.FieldMapping, aliases ...string) *float64 {
	for _, a := range aliases {
		if s := str(fm, a); s != "" {
			if f := values.ParseNumber(s); f != nil {
				return f
			}
		}
	}
	return nil
}

func pricing(fm models.FieldMapping, availabilities []string) models.Pricing {
	forSale, toLet := ranges.Availability(availabilities)
	display := values.FirstNonEmpty(str(fm, "price_text"), str(fm, "price"), str(fm, "rent"))

	var price *float64
	if r := ranges.ParsePriceText(values.FirstNonEmpty(str(fm, "price"), str(fm, "rent")), availabilities); r.Min != nil {
		price = r.Min
	}

	return models.Pricing{
		Display:      display,
		Price:        price,
		PricePerSqft: values.ParseNumber(str(fm, "price_per_sqft")),
		Qualifier:    str(fm, "price_qualifier"),
		Currency:     values.FirstNonEmpty(str(fm, "currency"), "GBP"),
		ForSale:      forSale,
		ToLet:        toLet,
		Range:        ranges.PriceRange(fm),
	}
}

func businessFinancial(fm models.FieldMapping) models.BusinessFinancial {
	rc := nested(fm["rent_components"])
	sc := nested(fm["service_charge"])

	return models.BusinessFinancial{
		RentComponents: models.RentComponents{
			Amount:    values.ParseNumber(first(rc, "amount", "rent", "annual_rent", "value")),
			Frequency: first(rc, "frequency", "period", "rent_frequency", "basis"),
			PerSqft:   values.ParseNumber(first(rc, "per_sqft", "rent_per_sqft", "psf", "price_per_sqft")),
			Notes:     first(rc, "notes", "note", "comments", "text"),
		},
		ServiceCharge: models.ServiceCharge{
			Amount:  values.ParseNumber(first(sc, "amount", "service_charge", "annual", "value")),
			Period:  first(sc, "period", "frequency", "basis"),
			PerSqft: values.ParseNumber(first(sc, "per_sqft", "service_charge_per_sqft", "psf")),
			Notes:   first(sc, "notes", "note", "comments", "text"),
		},
		BusinessRates: values.ParseNumber(str(fm, "business_rates")),
		RateableValue: values.ParseNumber(str(fm, "rateable_value")),
		VATApplicable: values.TriStateBool(str(fm, "vat")),
		Premium:       values.ParseNumber(str(fm, "premium")),
	}
}

func certifications(fm models.FieldMapping) models.Certifications {
	c := models.Certifications{
		EPCRating:      strings.ToUpper(str(fm, "epc_rating")),
		EPCCertificate: str(fm, "epc_certificate"),
		BREEAM:         str(fm, "breeam"),
	}
	if other := nested(fm["certifications"]); len(other) > 0 {
		c.Other = make(map[string]string, len(other))
		for k, v := range other {
			if s := values.AsString(v); s != "" {
				c.Other[k] = s
			}
		}
		if c.EPCRating == "" {
			c.EPCRating = strings.ToUpper(first(other, "epc", "epc_rating"))
		}
		if c.BREEAM == "" {
			c.BREEAM = first(other, "breeam", "breeam_rating")
		}
	}
	return c
}

func sizeDisplay(fm models.FieldMapping) string {
	from, to := str(fm, "size_from"), str(fm, "size_to")
	switch {
	case from != "" && to != "" && from != to:
		return from + " - " + to
	case from != "":
		return from
	default:
		return to
	}
}

func specPairs(v any) []models.SpecPair {
	list, _ := v.([]any)
	out := make([]models.SpecPair, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name := values.AsString(m["name"])
		if name == "" {
			continue
		}
		out = append(out, models.SpecPair{Name: name, Value: values.AsString(m["value"])})
	}
	return out
}

func media(v any) []models.MediaRecord {
	list, _ := v.([]any)
	out := make([]models.MediaRecord, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		url := values.AsString(m["url"])
		if url == "" {
			continue
		}
		raw, _ := m["raw"].(map[string]any)
		out = append(out, models.MediaRecord{
			URL:       url,
			Title:     values.AsString(m["name"]),
			SortOrder: i,
			Raw:       raw,
		})
	}
	return out
}

func contacts(v any) []models.ContactRecord {
	list, _ := v.([]any)
	out := make([]models.ContactRecord, 0, len(list))
	primarySeen := false
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		c := models.ContactRecord{
			Name:      values.AsString(m["name"]),
			Email:     strings.ToLower(values.AsString(m["email"])),
			Phone:     values.AsString(m["phone"]),
			Company:   values.AsString(m["company"]),
			Role:      values.AsString(m["role"]),
			SortOrder: len(out),
		}
		if c.Name == "" && c.Email == "" {
			continue
		}
		if p := values.TriStateBool(m["is_primary"]); p != nil && *p && !primarySeen {
			c.IsPrimary = true
			primarySeen = true
		}
		out = append(out, c)
	}
	// the first contact is primary unless the feed marked one
	if !primarySeen && len(out) > 0 {
		out[0].IsPrimary = true
	}
	return out
}

func extras(fm models.FieldMapping) map[string]string {
	out := make(map[string]string)
	if m, ok := fm["extras"].(map[string]any); ok {
		for k, v := range m {
			if s := values.AsString(v); s != "" {
				out[k] = s
			}
		}
	}
	for k, v := range fm {
		if knownFields[k] {
			continue
		}
		if s, ok := v.(string); ok && s != "" {
			out[k] = s
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func str(fm models.FieldMapping, key string) string {
	return values.AsString(fm[key])
}

func stringList(v any) []string {
	list, _ := v.([]any)
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s := values.AsString(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func boolOf(v any) bool {
	b := values.TriStateBool(v)
	return b != nil && *b
}

// nested reads a sub-block that may be a map, a single scalar, or missing
func nested(v any) map[string]any {
	switch t := v.(type) {
	case map[string]any:
		return t
	case string:
		if t != "" {
			return map[string]any{"value": t}
		}
	}
	return map[string]any{}
}

// first returns the first non-empty value among the aliases, in alias order
func first(m map[string]any, aliases ...string) string {
	for _, a := range aliases {
		if s := values.AsString(m[a]); s != "" {
			return s
		}
	}
	return ""
}
