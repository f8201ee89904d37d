package normalizer

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/Guizzs26/go-feed-sync/internal/models"
	"github.com/Guizzs26/go-feed-sync/internal/ranges"
	"github.com/Guizzs26/go-feed-sync/internal/values"
)

// fingerprintFields are the unit attributes that identify a unit across syncs when the
// feed does not supply its own id. Order matters.
var fingerprintFields = []string{"floor", "level", "size", "rent_metric", "status", "sort_order"}

// Units builds unit records from the mapped floor_units list. Each unit gets a stable
// identifier: the feed's own id when present, otherwise a fingerprint of its attributes.
func Units(v any) []models.UnitRecord {
	list, _ := v.([]any)
	out := make([]models.UnitRecord, 0, len(list))
	for i, item := range list {
		u, ok := item.(map[string]any)
		if !ok {
			continue
		}

		sizeMin, _ := ranges.UnitSize(u)
		rentMin, rentMax := ranges.UnitRent(u)
		sortOrder := i
		if n := values.ParseInt(u["sort_order"]); n != nil {
			sortOrder = *n
		}
		raw, _ := u["raw"].(map[string]any)

		out = append(out, models.UnitRecord{
			UnitExternalID:   UnitID(u),
			FloorLabel:       values.FirstNonEmpty(get(u, "floor"), get(u, "level"), get(u, "name")),
			SizeSqft:         sizeMin,
			SizeDisplay:      values.FirstNonEmpty(get(u, "size"), get(u, "size_sqft")),
			RentMin:          rentMin,
			RentMax:          rentMax,
			RentDisplay:      values.FirstNonEmpty(get(u, "rent_price"), get(u, "rent")),
			RentMetric:       get(u, "rent_metric"),
			Status:           get(u, "status"),
			AvailabilityDate: values.FirstNonEmpty(get(u, "availability_date"), get(u, "available_from")),
			SortOrder:        sortOrder,
			Raw:              raw,
		})
	}
	return out
}

// UnitID returns the feed-supplied unit id, or the fingerprint when there is none
func UnitID(u map[string]any) string {
	if id := values.FirstNonEmpty(get(u, "id"), get(u, "meta_id"), get(u, "unit_id")); id != "" {
		return id
	}
	return Fingerprint(u)
}

// Fingerprint hashes the identifying unit attributes into 16 hex characters. Equal
// attributes always give the same fingerprint.
func Fingerprint(u map[string]any) string {
	parts := make([]string, len(fingerprintFields))
	for i, f := range fingerprintFields {
		parts[i] = strings.TrimSpace(get(u, f))
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])[:16]
}

func get(u map[string]any, key string) string {
	return values.AsString(u[key])
}
