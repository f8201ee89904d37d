package mapper

import (
	"strings"

	"github.com/Guizzs26/go-feed-sync/internal/values"
	"github.com/Guizzs26/go-feed-sync/internal/xmlfeed"
)

// Contacts extracts agent/contact entries as flat maps with name, email, phone,
// company, role and is_primary keys. Emails are lower-cased for matching.
func Contacts(v any, childName string) []any {
	out := []any{}
	for _, item := range xmlfeed.Children(v, childName) {
		switch t := item.(type) {
		case string:
			if name := clean(t); name != "" {
				out = append(out, map[string]any{
					"name": name, "email": "", "phone": "", "company": "", "role": "", "is_primary": "",
				})
			}
		case xmlfeed.ElementMap:
			if c, ok := contactEntry(t); ok {
				out = append(out, c)
			}
		}
	}
	return out
}

func contactEntry(m xmlfeed.ElementMap) (map[string]any, bool) {
	get := func(keys ...string) string {
		for _, k := range keys {
			if s := values.AsString(m[k]); s != "" {
				return clean(s)
			}
		}
		return ""
	}

	name := get("name", "full_name")
	if name == "" {
		name = strings.TrimSpace(get("first_name", "forename") + " " + get("last_name", "surname"))
	}
	email := strings.ToLower(get("email", "email_address"))
	if name == "" && email == "" {
		return nil, false
	}

	return map[string]any{
		"name":       name,
		"email":      email,
		"phone":      get("phone", "telephone", "tel", "mobile"),
		"company":    get("company", "agency", "office", "branch"),
		"role":       get("role", "job_title", "position"),
		"is_primary": get("is_primary", "primary", "lead"),
	}, true
}
