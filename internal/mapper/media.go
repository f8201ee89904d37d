package mapper

import (
	"strings"

	"github.com/Guizzs26/go-feed-sync/internal/values"
	"github.com/Guizzs26/go-feed-sync/internal/xmlfeed"
)

// File type codes used by the feed's <files> collection
const (
	FileTypeBrochure  = "11"
	FileTypeFloorplan = "15"
)

var (
	urlKeys  = []string{"url", "src", "href", "link", "value", "path"}
	nameKeys = []string{"name", "title", "alt", "caption", "description"}
)

// Images unifies <images> into {url, name} maps, dropping entries without a URL
func Images(v any) []any {
	return mediaList(childrenOf(v, "image", "photo"))
}

// Documents unifies a wrapper of repeated link-like children (<brochures><brochure/>)
func Documents(v any, childName string) []any {
	return mediaList(childrenOf(v, childName))
}

// Files routes the generic <files> collection by its numeric type code into brochures
// and floorplans. Other codes are ignored.
func Files(v any) (brochures, floorplans []any) {
	brochures, floorplans = []any{}, []any{}
	for _, item := range childrenOf(v, "file", "document") {
		m, ok := item.(xmlfeed.ElementMap)
		if !ok {
			continue
		}
		entry, ok := mediaEntry(m)
		if !ok {
			continue
		}
		switch fileType(m["type"]) {
		case FileTypeBrochure:
			brochures = append(brochures, entry)
		case FileTypeFloorplan:
			floorplans = append(floorplans, entry)
		}
	}
	return brochures, floorplans
}

// fileType reads the type code from either a plain value or a {name, id} pair
func fileType(v any) string {
	if m, ok := v.(xmlfeed.ElementMap); ok {
		if id := values.AsString(m["id"]); id != "" {
			return id
		}
	}
	return values.AsString(v)
}

func childrenOf(v any, names ...string) []any {
	if m, ok := v.(xmlfeed.ElementMap); ok {
		for _, name := range names {
			if inner, ok := m[name]; ok {
				return xmlfeed.OneOrMany(inner)
			}
		}
		// a single child carrying its own url is the item itself
		if _, hasURL := m["url"]; hasURL {
			return []any{m}
		}
	}
	return xmlfeed.Children(v, names[0])
}

func mediaList(items []any) []any {
	out := make([]any, 0, len(items))
	for _, item := range items {
		switch t := item.(type) {
		case string:
			if u := clean(t); u != "" {
				out = append(out, map[string]any{"url": u, "name": ""})
			}
		case xmlfeed.ElementMap:
			if entry, ok := mediaEntry(t); ok {
				out = append(out, entry)
			}
		}
	}
	return out
}

func mediaEntry(m xmlfeed.ElementMap) (map[string]any, bool) {
	var url, name string
	for _, k := range urlKeys {
		if s := values.AsString(m[k]); s != "" {
			url = clean(s)
			break
		}
	}
	if url == "" {
		// <image id="3">https://...</image> arrives as a {name, id} pair
		if n := clean(values.AsString(m["name"])); strings.Contains(n, "://") {
			url = n
		}
	}
	if url == "" || !strings.ContainsAny(url, "/.") {
		return nil, false
	}
	for _, k := range nameKeys {
		if s := values.AsString(m[k]); s != "" {
			name = clean(s)
			break
		}
	}
	return map[string]any{"url": url, "name": name, "raw": m}, true
}
