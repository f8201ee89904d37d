// Package ranges derives size and price ranges for a mapped feed item. Both cascades
// prefer per-unit data, fall back to property-level fields, and finally report the
// range as unavailable.
package ranges

import (
	"regexp"
	"strings"

	"github.com/Guizzs26/go-feed-sync/internal/models"
	"github.com/Guizzs26/go-feed-sync/internal/values"
)

var (
	priceToken = regexp.MustCompile(`£?\d+(?:,\d+)*(?:\.\d+)?`)

	perSqft   = regexp.MustCompile(`(?:per|/|p)\s*sq\.?\s*f(?:oo|ee)?t\.?|\bpsf\b|per\s+square\s+f(?:oo|ee)t`)
	perAnnum  = regexp.MustCompile(`per\s+annum|per\s+year|\bpa\b|\bp\.a\b\.?|\bpax\b|/\s*(?:annum|year|yr)\b`)
	onRequest = regexp.MustCompile(`on\s+application|\bpoa\b|on\s+request`)

	forSaleWord = regexp.MustCompile(`\bsale\b`)
	toLetWord   = regexp.MustCompile(`\b(?:to\s+let|let|letting|lease|rent|rental)\b`)
)

// SizeRange computes the unit size range. Unit sizes win; the item's own from/to or
// size text is the fallback. The total property size is a different figure and is
// never folded in here (see TotalSize).
func SizeRange(fm models.FieldMapping) models.SizeRange {
	var lo, hi *float64
	for _, u := range unitMaps(fm) {
		uLo, uHi := UnitSize(u)
		lo, hi = widen(lo, hi, uLo, uHi)
	}
	if lo != nil {
		return models.SizeRange{Min: lo, Max: hi}
	}

	from := values.ParseNumber(fm["size_from"])
	to := values.ParseNumber(fm["size_to"])
	if from != nil || to != nil {
		lo, hi = widen(nil, nil, from, to)
		return models.SizeRange{Min: lo, Max: hi}
	}

	if text := values.AsString(fm["size"]); text != "" {
		lo, hi = values.ParseSizeText(text)
		if lo != nil {
			return models.SizeRange{Min: lo, Max: hi}
		}
	}
	return models.SizeRange{}
}

// TotalSize reads the dedicated total-property-size field
func TotalSize(fm models.FieldMapping) *float64 {
	lo, hi := values.ParseSizeText(values.AsString(fm["total_size"]))
	if hi != nil {
		return hi
	}
	return lo
}

// PriceRange computes the price range. Numeric per-sqft unit rents win; otherwise the
// property-level price text is parsed; otherwise the price is on application.
func PriceRange(fm models.FieldMapping) models.PriceRange {
	var lo, hi *float64
	for _, u := range unitMaps(fm) {
		if !isPerSqftMetric(values.AsString(u["rent_metric"])) {
			continue
		}
		uLo, uHi := UnitRent(u)
		lo, hi = widen(lo, hi, uLo, uHi)
	}
	if lo != nil {
		return models.PriceRange{Min: lo, Max: hi, Type: models.PricePerSqft}
	}

	text := values.FirstNonEmpty(
		values.AsString(fm["price_text"]),
		values.AsString(fm["price"]),
		values.AsString(fm["rent"]),
	)
	if text != "" {
		return ParsePriceText(text, stringList(fm["availabilities"]))
	}
	return models.PriceRange{Type: models.PriceOnRequest}
}

// ParsePriceText reads a free-text price. It is a best-effort heuristic: the first one
// or two numeric tokens are taken as the range, so unrelated numbers in the text can
// mislead it.
func ParsePriceText(text string, availabilities []string) models.PriceRange {
	lower := strings.ToLower(values.DecodeUnicodeEscapes(text))
	if onRequest.MatchString(lower) {
		return models.PriceRange{Type: models.PriceOnRequest}
	}

	var typ models.PriceType
	switch {
	case perSqft.MatchString(lower):
		typ = models.PricePerSqft
	case perAnnum.MatchString(lower):
		typ = models.PricePerAnnum
	default:
		typ = InferPriceType(availabilities)
	}

	tokens := priceToken.FindAllString(lower, 2)
	switch len(tokens) {
	case 0:
		return models.PriceRange{Type: models.PriceOnRequest}
	case 1:
		n := values.ParseNumber(tokens[0])
		if n == nil {
			return models.PriceRange{Type: models.PriceOnRequest}
		}
		return models.PriceRange{Min: n, Max: n, Type: typ}
	default:
		lo, hi := widen(nil, nil, values.ParseNumber(tokens[0]), values.ParseNumber(tokens[1]))
		if lo == nil {
			return models.PriceRange{Type: models.PriceOnRequest}
		}
		return models.PriceRange{Min: lo, Max: hi, Type: typ}
	}
}

// InferPriceType uses the availability context when the price text carries no unit:
// lettings quote per square foot, everything else (sale-only included) quotes a total
func InferPriceType(availabilities []string) models.PriceType {
	if _, toLet := Availability(availabilities); toLet {
		return models.PricePerSqft
	}
	return models.PriceTotal
}

// Availability reports whether the availability names mark the property for sale and/or to let
func Availability(availabilities []string) (forSale, toLet bool) {
	for _, a := range availabilities {
		l := strings.ToLower(a)
		if forSaleWord.MatchString(l) {
			forSale = true
		}
		if toLetWord.MatchString(l) {
			toLet = true
		}
	}
	return forSale, toLet
}

// UnitSize reads a unit's size, which may itself be a range
func UnitSize(u map[string]any) (*float64, *float64) {
	text := values.FirstNonEmpty(
		values.AsString(u["size_sqft"]),
		values.AsString(u["size"]),
		values.AsString(u["sq_ft"]),
		values.AsString(u["area"]),
	)
	return values.ParseSizeText(text)
}

// UnitRent reads the numeric bounds of a unit's rent display value
func UnitRent(u map[string]any) (*float64, *float64) {
	text := values.FirstNonEmpty(values.AsString(u["rent_price"]), values.AsString(u["rent"]))
	if text == "" || onRequest.MatchString(strings.ToLower(text)) {
		return nil, nil
	}
	tokens := priceToken.FindAllString(text, 2)
	switch len(tokens) {
	case 0:
		return nil, nil
	case 1:
		n := values.ParseNumber(tokens[0])
		return n, n
	default:
		return widen(nil, nil, values.ParseNumber(tokens[0]), values.ParseNumber(tokens[1]))
	}
}

// isPerSqftMetric treats a missing metric as per square foot, the feed's default for unit rents
func isPerSqftMetric(metric string) bool {
	m := strings.ToLower(strings.TrimSpace(metric))
	if m == "" {
		return true
	}
	return perSqft.MatchString(m) || strings.Contains(m, "sqft") || strings.Contains(m, "sq ft")
}

func unitMaps(fm models.FieldMapping) []map[string]any {
	list, _ := fm["floor_units"].([]any)
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
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

// widen folds the candidate bounds into the running min/max
func widen(lo, hi, a, b *float64) (*float64, *float64) {
	for _, c := range []*float64{a, b} {
		if c == nil {
			continue
		}
		v := *c
		if lo == nil || v < *lo {
			lo = &v
		}
		if hi == nil || v > *hi {
			hi = &v
		}
	}
	return lo, hi
}
