package mapper

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Guizzs26/go-feed-sync/internal/values"
	"github.com/Guizzs26/go-feed-sync/internal/xmlfeed"
)

// POA is the display value for a price that is only available on application
const POA = "POA"

var (
	priceDigits    = regexp.MustCompile(`\d`)
	currencyPrefix = regexp.MustCompile(`^\s*[£$€]`)
	leadingDigit   = regexp.MustCompile(`^\d`)
)

// Units cleans every floor/unit sub-tree. String fields get the escape fix-ups, the rent
// price is turned into a display value, and numeric-looking fields stay strings so their
// formatting survives to the view. Each unit keeps its original sub-tree under "raw".
func Units(v any) []any {
	items := xmlfeed.Children(v, "floor_unit")
	if len(items) == 1 {
		if m, ok := items[0].(xmlfeed.ElementMap); ok {
			if inner, ok := m["unit"]; ok {
				items = xmlfeed.OneOrMany(inner)
			}
		}
	}

	out := make([]any, 0, len(items))
	for i, item := range items {
		m, ok := item.(xmlfeed.ElementMap)
		if !ok {
			continue
		}
		unit := cleanMap(m)
		if _, has := unit["rent_price"]; has {
			unit["rent_price"] = RentDisplay(values.AsString(unit["rent_price"]))
		}
		if _, has := unit["sort_order"]; !has {
			unit["sort_order"] = strconv.Itoa(i)
		}
		unit["raw"] = m
		out = append(out, unit)
	}
	return out
}

// RentDisplay maps "on application" text and non-numeric values to POA. Values that
// start with a digit get a currency symbol; other text is kept as written.
func RentDisplay(s string) string {
	s = clean(s)
	if s == "" {
		return ""
	}
	if strings.Contains(strings.ToLower(s), "on application") || !priceDigits.MatchString(s) {
		return POA
	}
	if currencyPrefix.MatchString(s) || !leadingDigit.MatchString(s) {
		return s
	}
	return "£" + s
}

// cleanMap copies an element map applying clean to every string, recursively
func cleanMap(m xmlfeed.ElementMap) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cleanValue(v)
	}
	return out
}

func cleanValue(v any) any {
	switch t := v.(type) {
	case string:
		return clean(t)
	case xmlfeed.ElementMap:
		return cleanMap(t)
	case []any:
		list := make([]any, len(t))
		for i, item := range t {
			list[i] = cleanValue(item)
		}
		return list
	default:
		return v
	}
}

// clean decodes escapes and collapses whitespace runs, non-breaking spaces included
func clean(s string) string {
	s = values.DecodeUnicodeEscapes(s)
	return strings.Join(strings.Fields(s), " ")
}
