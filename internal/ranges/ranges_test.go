package ranges

import (
	"testing"

	"github.com/Guizzs26/go-feed-sync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unitsMapping(units ...map[string]any) models.FieldMapping {
	list := make([]any, len(units))
	for i, u := range units {
		list[i] = u
	}
	return models.FieldMapping{"floor_units": list}
}

func TestParsePriceText(t *testing.T) {
	t.Run("should mark on application prices as poa", func(t *testing.T) {
		r := ParsePriceText("On Application", nil)
		assert.Nil(t, r.Min)
		assert.Nil(t, r.Max)
		assert.Equal(t, models.PriceOnRequest, r.Type)
	})

	t.Run("should read a per sq ft range", func(t *testing.T) {
		r := ParsePriceText("£25.00 - £45.00 per sq ft", nil)
		require.NotNil(t, r.Min)
		require.NotNil(t, r.Max)
		assert.Equal(t, 25.0, *r.Min)
		assert.Equal(t, 45.0, *r.Max)
		assert.Equal(t, models.PricePerSqft, r.Type)
	})

	t.Run("should infer a total for sale-only properties", func(t *testing.T) {
		r := ParsePriceText("£150,000", []string{"For Sale"})
		require.NotNil(t, r.Min)
		assert.Equal(t, 150000.0, *r.Min)
		assert.Equal(t, 150000.0, *r.Max)
		assert.Equal(t, models.PriceTotal, r.Type)
	})

	t.Run("should detect per annum rents", func(t *testing.T) {
		r := ParsePriceText("£32,500 per annum", []string{"To Let"})
		require.NotNil(t, r.Min)
		assert.Equal(t, 32500.0, *r.Min)
		assert.Equal(t, models.PricePerAnnum, r.Type)
	})

	t.Run("should infer per sq ft for lettings without a unit", func(t *testing.T) {
		r := ParsePriceText("£18.50", []string{"To Let"})
		assert.Equal(t, models.PricePerSqft, r.Type)
	})

	t.Run("should treat text without numbers as poa", func(t *testing.T) {
		r := ParsePriceText("Price to be confirmed", nil)
		assert.Equal(t, models.PriceOnRequest, r.Type)
		assert.Nil(t, r.Min)
	})
}

func TestAvailability(t *testing.T) {
	forSale, toLet := Availability([]string{"For Sale", "To Let"})
	assert.True(t, forSale)
	assert.True(t, toLet)

	forSale, toLet = Availability([]string{"Currently Available"})
	assert.False(t, forSale)
	assert.False(t, toLet)
}

func TestSizeRange(t *testing.T) {
	t.Run("should keep unit sizes apart from the total size", func(t *testing.T) {
		fm := unitsMapping(
			map[string]any{"size_sqft": "2,000"},
			map[string]any{"size_sqft": "3,000"},
		)
		fm["total_size"] = "8,000 sq ft"

		r := SizeRange(fm)
		require.NotNil(t, r.Min)
		assert.Equal(t, 2000.0, *r.Min)
		assert.Equal(t, 3000.0, *r.Max)

		total := TotalSize(fm)
		require.NotNil(t, total)
		assert.Equal(t, 8000.0, *total)
	})

	t.Run("should fall back to size_from and size_to", func(t *testing.T) {
		r := SizeRange(models.FieldMapping{"size_from": "500", "size_to": "1,200"})
		require.NotNil(t, r.Min)
		assert.Equal(t, 500.0, *r.Min)
		assert.Equal(t, 1200.0, *r.Max)
	})

	t.Run("should fall back to the size text", func(t *testing.T) {
		r := SizeRange(models.FieldMapping{"size": "29205840sqft"})
		require.NotNil(t, r.Min)
		assert.Equal(t, 2920.0, *r.Min)
		assert.Equal(t, 5840.0, *r.Max)
	})

	t.Run("should be empty when nothing is known", func(t *testing.T) {
		r := SizeRange(models.FieldMapping{})
		assert.Nil(t, r.Min)
		assert.Nil(t, r.Max)
	})
}

func TestPriceRange(t *testing.T) {
	t.Run("should prefer per sq ft unit rents", func(t *testing.T) {
		fm := unitsMapping(
			map[string]any{"rent_price": "£22.50", "rent_metric": "per sq ft"},
			map[string]any{"rent_price": "£30.00"},
			map[string]any{"rent_price": "£95,000", "rent_metric": "per annum"},
		)
		fm["price_text"] = "£1,000,000"

		r := PriceRange(fm)
		require.NotNil(t, r.Min)
		assert.Equal(t, 22.5, *r.Min)
		assert.Equal(t, 30.0, *r.Max)
		assert.Equal(t, models.PricePerSqft, r.Type)
	})

	t.Run("should ignore POA unit rents and use the price text", func(t *testing.T) {
		fm := unitsMapping(map[string]any{"rent_price": "POA"})
		fm["price_text"] = "£250,000"
		fm["availabilities"] = []any{"For Sale"}

		r := PriceRange(fm)
		require.NotNil(t, r.Min)
		assert.Equal(t, 250000.0, *r.Min)
		assert.Equal(t, models.PriceTotal, r.Type)
	})

	t.Run("should be poa without any price", func(t *testing.T) {
		r := PriceRange(models.FieldMapping{})
		assert.Equal(t, models.PriceOnRequest, r.Type)
		assert.Nil(t, r.Min)
	})
}
