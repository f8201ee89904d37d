// Package values holds the stateless scalar parsers shared by the extraction pipeline.
package values

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"
)

var unicodeEscape = regexp.MustCompile(`\\u([0-9a-fA-F]{4})`)

// ParseNumber keeps only digits, '.' and '-' and parses the remainder.
// Empty or ambiguous input (a bare sign, several dots) yields nil.
func ParseNumber(v any) *float64 {
	switch n := v.(type) {
	case nil:
		return nil
	case float64:
		return &n
	case float32:
		f := float64(n)
		return &f
	case int:
		f := float64(n)
		return &f
	case int64:
		f := float64(n)
		return &f
	case *float64:
		return n
	}

	raw := AsString(v)
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" || cleaned == "-" || cleaned == "." || cleaned == "-." {
		return nil
	}

	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// ParseInt is ParseNumber rounded to the nearest integer
func ParseInt(v any) *int {
	f := ParseNumber(v)
	if f == nil {
		return nil
	}
	i := int(math.Round(*f))
	return &i
}

// TriStateBool maps the usual yes/no spellings to true/false and anything else to nil
func TriStateBool(v any) *bool {
	if b, ok := v.(bool); ok {
		return &b
	}
	t, f := true, false
	switch strings.ToLower(strings.TrimSpace(AsString(v))) {
	case "1", "true", "yes", "y", "t":
		return &t
	case "0", "false", "no", "n", "f":
		return &f
	default:
		return nil
	}
}

// DecodeUnicodeEscapes replaces literal \uXXXX sequences (the feed emits them inside text
// nodes) with the characters they encode, joining UTF-16 surrogate pairs.
func DecodeUnicodeEscapes(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	locs := unicodeEscape.FindAllStringSubmatchIndex(s, -1)
	if len(locs) > 0 {
		var b strings.Builder
		last := 0
		for i := 0; i < len(locs); i++ {
			loc := locs[i]
			b.WriteString(s[last:loc[0]])
			code, _ := strconv.ParseUint(s[loc[2]:loc[3]], 16, 32)
			r := rune(code)

			if utf16.IsSurrogate(r) && i+1 < len(locs) && locs[i+1][0] == loc[1] {
				next := locs[i+1]
				low, _ := strconv.ParseUint(s[next[2]:next[3]], 16, 32)
				if dec := utf16.DecodeRune(r, rune(low)); dec != unicode.ReplacementChar {
					b.WriteRune(dec)
					last = next[1]
					i++
					continue
				}
			}
			if utf16.IsSurrogate(r) {
				r = unicode.ReplacementChar
			}
			b.WriteRune(r)
			last = loc[1]
		}
		b.WriteString(s[last:])
		s = b.String()
	}

	return strings.ReplaceAll(s, `\"`, `"`)
}

// ToSnakeCaseKeys renames every key of a nested mapping to snake_case, descending into
// nested maps and lists. The input is not modified.
func ToSnakeCaseKeys(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		key := SnakeCase(k)
		if _, exists := out[key]; exists && key != k {
			// an already snake_cased key wins over a converted one
			continue
		}
		out[key] = snakeValue(v)
	}
	return out
}

func snakeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return ToSnakeCaseKeys(t)
	case []any:
		list := make([]any, len(t))
		for i, item := range t {
			list[i] = snakeValue(item)
		}
		return list
	case []map[string]any:
		list := make([]any, len(t))
		for i, item := range t {
			list[i] = ToSnakeCaseKeys(item)
		}
		return list
	default:
		return v
	}
}

// SnakeCase converts camelCase, PascalCase, kebab-case or spaced words to snake_case.
// Acronym runs stay together: "PricePerSQFT" -> "price_per_sqft".
func SnakeCase(s string) string {
	runes := []rune(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(runes) + 4)

	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteRune('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	parts := strings.FieldsFunc(b.String(), func(r rune) bool { return r == '_' })
	return strings.Join(parts, "_")
}

// AsString flattens an extracted value to text. Structured values yield their
// value, name or url entry; lists yield their first non-empty element.
func AsString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		for _, key := range []string{"value", "name", "url", "text"} {
			if s, ok := t[key].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
		return ""
	case []any:
		for _, item := range t {
			if s := AsString(item); s != "" {
				return s
			}
		}
		return ""
	case fmt.Stringer:
		return strings.TrimSpace(t.String())
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// FirstNonEmpty returns the first argument that is not blank
func FirstNonEmpty(candidates ...string) string {
	for _, c := range candidates {
		if strings.TrimSpace(c) != "" {
			return strings.TrimSpace(c)
		}
	}
	return ""
}
