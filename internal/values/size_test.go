package values

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertRange(t *testing.T, lo, hi *float64, wantLo, wantHi float64) {
	t.Helper()
	require.NotNil(t, lo)
	require.NotNil(t, hi)
	assert.Equal(t, wantLo, *lo)
	assert.Equal(t, wantHi, *hi)
}

func TestParseSizeText(t *testing.T) {
	t.Run("should split a concatenated range in half", func(t *testing.T) {
		lo, hi := ParseSizeText("29205840sqft")
		assertRange(t, lo, hi, 2920, 5840)
	})

	t.Run("should use the delimiter when present", func(t *testing.T) {
		lo, hi := ParseSizeText("2920-5840 sqft")
		assertRange(t, lo, hi, 2920, 5840)
	})

	t.Run("should read formatted ranges", func(t *testing.T) {
		lo, hi := ParseSizeText("2,920 - 5,840 sq ft")
		assertRange(t, lo, hi, 2920, 5840)

		lo, hi = ParseSizeText("1,000 to 2,500 sq ft")
		assertRange(t, lo, hi, 1000, 2500)
	})

	t.Run("should order reversed bounds", func(t *testing.T) {
		lo, hi := ParseSizeText("5,840 – 2,920")
		assertRange(t, lo, hi, 2920, 5840)
	})

	t.Run("should treat a single value as min and max", func(t *testing.T) {
		lo, hi := ParseSizeText("1,500 sq ft")
		assertRange(t, lo, hi, 1500, 1500)
	})

	t.Run("should not split short or formatted numbers", func(t *testing.T) {
		lo, hi := ParseSizeText("1250")
		assertRange(t, lo, hi, 1250, 1250)

		lo, hi = ParseSizeText("12,345,678")
		assertRange(t, lo, hi, 12345678, 12345678)
	})

	t.Run("should return nil without digits", func(t *testing.T) {
		lo, hi := ParseSizeText("TBC")
		assert.Nil(t, lo)
		assert.Nil(t, hi)

		lo, hi = ParseSizeText("")
		assert.Nil(t, lo)
		assert.Nil(t, hi)
	})
}
