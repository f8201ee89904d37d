package xmlfeed

import (
	"strings"

	"github.com/Guizzs26/go-feed-sync/internal/values"
)

// ElementMap is the structural transcription of one feed item: element name to a
// string, a nested ElementMap, or a list of either for repeated siblings.
type ElementMap = map[string]any

// Extract converts one feed item node into an ElementMap. Repeated sibling names are
// collected into ordered lists and never overwrite each other.
func Extract(n *Node) ElementMap {
	if n == nil {
		return ElementMap{}
	}

	counts := make(map[string]int, len(n.Children))
	for _, c := range n.Children {
		counts[c.Name]++
	}

	out := make(ElementMap, len(n.Children)+len(n.Attrs))
	for _, c := range n.Children {
		v := extractValue(c)
		if counts[c.Name] > 1 {
			list, _ := out[c.Name].([]any)
			out[c.Name] = append(list, v)
			continue
		}
		out[c.Name] = v
	}

	// attributes of container elements ride along unless a child already uses the name
	for _, a := range n.Attrs {
		if _, taken := out[a.Name.Local]; !taken {
			out[a.Name.Local] = values.DecodeUnicodeEscapes(a.Value)
		}
	}
	return out
}

func extractValue(n *Node) any {
	if len(n.Children) > 0 {
		return Extract(n)
	}

	text := values.DecodeUnicodeEscapes(strings.TrimSpace(n.Text))
	if len(n.Attrs) == 0 {
		return text
	}

	// taxonomy style: <type id="4" name="Office"/> or <type id="4">Office</type>
	if id, ok := n.Attr("id"); ok {
		name, hasName := n.Attr("name")
		if !hasName {
			name = text
		}
		if name != "" {
			return ElementMap{
				"name": values.DecodeUnicodeEscapes(strings.TrimSpace(name)),
				"id":   strings.TrimSpace(id),
			}
		}
	}

	m := make(ElementMap, len(n.Attrs)+1)
	for _, a := range n.Attrs {
		m[a.Name.Local] = values.DecodeUnicodeEscapes(strings.TrimSpace(a.Value))
	}
	if text != "" {
		key := "value"
		if looksLikeURL(text) {
			key = "url"
		}
		if _, exists := m[key]; !exists {
			m[key] = text
		}
	}
	return m
}

func looksLikeURL(s string) bool {
	l := strings.ToLower(s)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://") || strings.HasPrefix(l, "//")
}

// OneOrMany normalizes the single-versus-repeated shape of an extracted value into a list.
// Downstream code always iterates the result and never inspects the shape again.
func OneOrMany(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	case string:
		if strings.TrimSpace(t) == "" {
			return nil
		}
		return []any{t}
	default:
		return []any{t}
	}
}

// Children unwraps a wrapper element (<types><type/>...</types>) into its repeated
// children. A wrapper holding a bare string is treated as a single child.
func Children(v any, childName string) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case ElementMap:
		if inner, ok := t[childName]; ok {
			return OneOrMany(inner)
		}
		if len(t) == 1 {
			for _, inner := range t {
				return OneOrMany(inner)
			}
		}
		return []any{t}
	default:
		return OneOrMany(t)
	}
}
