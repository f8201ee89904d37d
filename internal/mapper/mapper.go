package mapper

import (
	"strings"

	"github.com/Guizzs26/go-feed-sync/internal/models"
	"github.com/Guizzs26/go-feed-sync/internal/values"
	"github.com/Guizzs26/go-feed-sync/internal/xmlfeed"
)

// fieldGroup copies one family of named fields from the element map into the mapping
// and reports which element names it consumed
type fieldGroup func(em xmlfeed.ElementMap, fm models.FieldMapping, used map[string]bool)

// FieldMapper applies the fixed field groups to an extracted feed item
type FieldMapper struct {
	groups []fieldGroup
}

// NewFieldMapper builds a mapper with the basic, location, pricing, specification,
// agent and media groups, in that order
func NewFieldMapper() *FieldMapper {
	return &FieldMapper{
		groups: []fieldGroup{
			basicInfo,
			locationInfo,
			pricingInfo,
			specificationInfo,
			agentInfo,
			mediaInfo,
		},
	}
}

// Map never fails on missing optional fields: absent scalars become "" and absent
// collections become empty lists
func (m *FieldMapper) Map(em xmlfeed.ElementMap) models.FieldMapping {
	fm := make(models.FieldMapping, 64)
	used := make(map[string]bool, len(em))

	for _, group := range m.groups {
		group(em, fm, used)
	}

	extras := make(map[string]any)
	for k, v := range em {
		if used[k] {
			continue
		}
		if s, ok := v.(string); ok && s != "" {
			extras[k] = s
		}
	}
	fm["extras"] = extras
	return fm
}

func basicInfo(em xmlfeed.ElementMap, fm models.FieldMapping, used map[string]bool) {
	fm["external_id"] = pick(em, used, "id", "property_id", "propertyId", "reference", "ref")
	fm["created"] = pick(em, used, "created", "created_at", "createdAt", "date_created")
	fm["last_updated"] = pick(em, used, "last_updated", "lastUpdated", "updated", "modified", "date_modified", "updated_at")
	fm["featured"] = pick(em, used, "featured", "is_featured", "isFeatured")
	fm["title"] = pick(em, used, "title", "name", "property_name")
	fm["description"] = pick(em, used, "description", "full_description")
	fm["summary"] = pick(em, used, "summary", "short_description")
	fm["status"] = pick(em, used, "status")
	fm["tenure"] = pick(em, used, "tenure")
	fm["use_class"] = pick(em, used, "use_class", "useClass", "planning_use_class")
	fm["lease_length"] = pick(em, used, "lease_length", "leaseLength", "lease_term")
	fm["planning_notes"] = pick(em, used, "planning", "planning_notes")
	fm["headline"] = pick(em, used, "headline")
	fm["strapline"] = pick(em, used, "strapline", "tagline")
	fm["marketing_text"] = pick(em, used, "marketing_text", "marketingText", "marketing")

	fm["types"] = toAny(Types(wrapper(em, used, "types", "type")))
	fm["availabilities"] = toAny(Availabilities(wrapper(em, used, "availabilities", "availability")))
	fm["key_selling_points"] = toAny(KeySellingPoints(wrapper(em, used, "key_selling_points", "selling_points", "ksps")))
}

func locationInfo(em xmlfeed.ElementMap, fm models.FieldMapping, used map[string]bool) {
	fm["address1"] = pick(em, used, "address1", "address_1", "street")
	fm["address2"] = pick(em, used, "address2", "address_2")
	fm["address3"] = pick(em, used, "address3", "address_3")
	fm["town"] = pick(em, used, "town", "city")
	fm["county"] = pick(em, used, "county", "region")
	fm["postcode"] = pick(em, used, "postcode", "post_code", "postal_code", "zip")
	fm["country"] = pick(em, used, "country")
	fm["location"] = pick(em, used, "location", "area", "district")

	// coordinates may sit at item level or inside a <geo> block; every alias is kept
	// so the normalizer can apply its precedence
	sources := []xmlfeed.ElementMap{em}
	if geo, ok := em["geo"].(xmlfeed.ElementMap); ok {
		used["geo"] = true
		sources = append(sources, geo)
	}
	for _, src := range sources {
		for _, key := range []string{"lat", "latitude", "lng", "lon", "longitude"} {
			if s := values.AsString(src[key]); s != "" {
				if _, set := fm[key]; !set {
					fm[key] = s
				}
				used[key] = true
			}
		}
	}
}

func pricingInfo(em xmlfeed.ElementMap, fm models.FieldMapping, used map[string]bool) {
	fm["price"] = pick(em, used, "price", "asking_price")
	fm["price_text"] = pick(em, used, "price_text", "priceText", "price_display")
	fm["rent"] = pick(em, used, "rent", "rent_text")
	fm["price_per_sqft"] = pick(em, used, "price_per_sqft", "pricePerSqft", "price_psf")
	fm["price_qualifier"] = pick(em, used, "price_qualifier", "qualifier")
	fm["currency"] = pick(em, used, "currency")
	fm["business_rates"] = pick(em, used, "business_rates", "rates_payable")
	fm["rateable_value"] = pick(em, used, "rateable_value")
	fm["vat"] = pick(em, used, "vat", "vat_applicable")
	fm["premium"] = pick(em, used, "premium")

	fm["rent_components"] = block(em, used, "rent_components", "rentComponents", "rent_details")
	fm["service_charge"] = block(em, used, "service_charge", "serviceCharge", "service_charges")
}

func specificationInfo(em xmlfeed.ElementMap, fm models.FieldMapping, used map[string]bool) {
	fm["size"] = pick(em, used, "size", "size_text")
	fm["size_from"] = pick(em, used, "size_from", "sizeFrom", "min_size")
	fm["size_to"] = pick(em, used, "size_to", "sizeTo", "max_size")
	fm["size_unit"] = pick(em, used, "size_unit", "sizeUnit", "area_unit")
	fm["total_size"] = pick(em, used, "total_size", "totalSize", "total_area", "building_size")
	fm["floors"] = pick(em, used, "floors", "number_of_floors")
	fm["year_built"] = pick(em, used, "year_built", "yearBuilt")
	fm["parking_spaces"] = pick(em, used, "parking_spaces", "parking")
	fm["ceiling_height"] = pick(em, used, "ceiling_height", "eaves_height")
	fm["land_size"] = pick(em, used, "land_size", "site_area", "acreage")
	fm["epc_rating"] = pick(em, used, "epc_rating", "epc")
	fm["epc_certificate"] = pick(em, used, "epc_certificate", "epc_url")
	fm["breeam"] = pick(em, used, "breeam", "breeam_rating")
	fm["certifications"] = block(em, used, "certifications")

	fm["specifications"] = SpecPairs(wrapper(em, used, "specifications", "amenities", "specification"))
	fm["floor_units"] = Units(wrapper(em, used, "floor_units", "floorUnits", "units"))
}

func agentInfo(em xmlfeed.ElementMap, fm models.FieldMapping, used map[string]bool) {
	contacts := Contacts(wrapper(em, used, "contacts"), "contact")
	contacts = append(contacts, Contacts(wrapper(em, used, "agents"), "agent")...)

	// flat single-agent fields
	flat := map[string]any{
		"name":    pick(em, used, "agent_name", "contact_name"),
		"email":   strings.ToLower(pick(em, used, "agent_email", "contact_email")),
		"phone":   pick(em, used, "agent_phone", "contact_phone"),
		"company": pick(em, used, "agent_company", "agency"),
	}
	if flat["name"] != "" || flat["email"] != "" {
		flat["role"] = ""
		flat["is_primary"] = ""
		contacts = append(contacts, flat)
	}

	fm["contacts"] = contacts
}

func mediaInfo(em xmlfeed.ElementMap, fm models.FieldMapping, used map[string]bool) {
	fm["images"] = Images(wrapper(em, used, "images", "photos"))

	brochures, floorplans := Files(wrapper(em, used, "files", "documents"))
	brochures = append(brochures, Documents(wrapper(em, used, "brochures"), "brochure")...)
	floorplans = append(floorplans, Documents(wrapper(em, used, "floorplans"), "floorplan")...)

	fm["brochures"] = brochures
	fm["floorplans"] = floorplans
	fm["videos"] = Documents(wrapper(em, used, "videos", "virtual_tours"), "video")
}

// pick returns the first non-empty value among the candidate element names
func pick(em xmlfeed.ElementMap, used map[string]bool, keys ...string) string {
	for _, k := range keys {
		v, ok := em[k]
		if !ok {
			continue
		}
		used[k] = true
		if s := values.AsString(v); s != "" {
			return values.DecodeUnicodeEscapes(s)
		}
	}
	return ""
}

// wrapper returns the raw value of the first present element name
func wrapper(em xmlfeed.ElementMap, used map[string]bool, keys ...string) any {
	for _, k := range keys {
		if v, ok := em[k]; ok {
			used[k] = true
			return v
		}
	}
	return nil
}

// block returns a nested element as a cleaned map. A scalar is kept under "value" so the
// normalizer sees one shape.
func block(em xmlfeed.ElementMap, used map[string]bool, keys ...string) map[string]any {
	switch t := wrapper(em, used, keys...).(type) {
	case xmlfeed.ElementMap:
		return cleanMap(t)
	case string:
		if t == "" {
			return map[string]any{}
		}
		return map[string]any{"value": values.DecodeUnicodeEscapes(t)}
	case []any:
		if len(t) > 0 {
			if m, ok := t[0].(xmlfeed.ElementMap); ok {
				return cleanMap(m)
			}
		}
	}
	return map[string]any{}
}

func toAny(list []string) []any {
	out := make([]any, len(list))
	for i, s := range list {
		out[i] = s
	}
	return out
}
