package mapper

import (
	"strings"

	"github.com/Guizzs26/go-feed-sync/internal/values"
	"github.com/Guizzs26/go-feed-sync/internal/xmlfeed"
)

// Types extracts the property type names from a <types> wrapper. Children are either
// bare strings or {name, id} pairs; only the name survives.
func Types(v any) []string {
	return taxonomyNames(v, "type")
}

// Availabilities extracts availability names ("To Let", "For Sale") the same way as Types
func Availabilities(v any) []string {
	return taxonomyNames(v, "availability")
}

// KeySellingPoints extracts the selling point lines in feed order
func KeySellingPoints(v any) []string {
	items := xmlfeed.Children(v, "point")
	if len(items) == 1 {
		if m, ok := items[0].(xmlfeed.ElementMap); ok {
			for _, alt := range []string{"key_selling_point", "ksp", "selling_point"} {
				if inner, ok := m[alt]; ok {
					items = xmlfeed.OneOrMany(inner)
					break
				}
			}
		}
	}
	return dedupe(items)
}

func taxonomyNames(v any, childName string) []string {
	return dedupe(xmlfeed.Children(v, childName))
}

// dedupe keeps the first spelling of each name, compared case-insensitively, and drops blanks
func dedupe(items []any) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		name := itemName(item)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, name)
	}
	return out
}

func itemName(item any) string {
	var name string
	switch t := item.(type) {
	case string:
		name = t
	case xmlfeed.ElementMap:
		name = values.AsString(t["name"])
		if name == "" {
			name = values.AsString(t)
		}
	}
	return strings.Join(strings.Fields(values.DecodeUnicodeEscapes(name)), " ")
}

// SpecPairs extracts amenity/specification entries as {name, value} maps. Bare strings
// become a name with an empty value.
func SpecPairs(v any) []any {
	items := xmlfeed.Children(v, "spec")
	if len(items) == 1 {
		if m, ok := items[0].(xmlfeed.ElementMap); ok {
			for _, alt := range []string{"specification", "amenity", "item"} {
				if inner, ok := m[alt]; ok {
					items = xmlfeed.OneOrMany(inner)
					break
				}
			}
		}
	}

	out := make([]any, 0, len(items))
	for _, item := range items {
		var name, value string
		switch t := item.(type) {
		case string:
			name = t
		case xmlfeed.ElementMap:
			name = values.FirstNonEmpty(values.AsString(t["name"]), values.AsString(t["label"]), values.AsString(t["key"]))
			value = values.FirstNonEmpty(values.AsString(t["value"]), values.AsString(t["description"]))
		}
		name = clean(name)
		if name == "" {
			continue
		}
		out = append(out, map[string]any{"name": name, "value": clean(value)})
	}
	return out
}
