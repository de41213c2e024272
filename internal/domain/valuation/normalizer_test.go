package valuation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_AliasPrecedence(t *testing.T) {
	n := NewNormalizer()

	listing, ok := n.Normalize(RawListing{
		"price":       21500.0,
		"link":        "https://example.com/a",
		"listing_url": "https://example.com/b",
		"dealer_name": "Valley Motors",
		"source":      "CarGurus",
	})
	require.True(t, ok)
	// "url" is absent, "link" precedes "listing_url" in the precedence order.
	assert.Equal(t, "https://example.com/a", listing.URL)
	assert.Equal(t, "Valley Motors", listing.DealerName)
	assert.Equal(t, "cargurus", listing.Source)
	assert.InDelta(t, 21500, listing.Price, 0.001)
}

func TestNormalize_PriceShapes(t *testing.T) {
	n := NewNormalizer()

	tests := []struct {
		name  string
		value interface{}
		want  float64
		ok    bool
	}{
		{"float", 18000.0, 18000, true},
		{"int", 18000, 18000, true},
		{"dollar string", "$18,500", 18500, true},
		{"plain string", "18500.50", 18500.50, true},
		{"negative", -5.0, 0, false},
		{"zero", 0.0, 0, false},
		{"garbage string", "call for price", 0, false},
		{"nil", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			listing, ok := n.Normalize(RawListing{"price": tt.value})
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, listing.Price, 0.001)
			}
		})
	}
}

func TestNormalize_MissingPriceRejected(t *testing.T) {
	n := NewNormalizer()
	_, ok := n.Normalize(RawListing{"url": "https://example.com", "source": "carmax"})
	assert.False(t, ok)
}

func TestNormalize_OptionalFields(t *testing.T) {
	n := NewNormalizer()

	fetched := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	listing, ok := n.Normalize(RawListing{
		"price":      15000.0,
		"odometer":   88000,
		"vin":        "1hgcm82633a004352",
		"is_cpo":     true,
		"fetched_at": fetched.Format(time.RFC3339),
		"title":      "Clean",
	})
	require.True(t, ok)
	require.NotNil(t, listing.Mileage)
	assert.Equal(t, 88000, *listing.Mileage)
	assert.Equal(t, "1HGCM82633A004352", listing.VIN)
	assert.True(t, listing.IsCPO)
	assert.True(t, fetched.Equal(listing.FetchedAt))
	assert.Equal(t, "Clean", listing.TitleStatus)
}

func TestNormalize_UnknownSourceDefault(t *testing.T) {
	n := NewNormalizer()
	listing, ok := n.Normalize(RawListing{"price": 12000.0})
	require.True(t, ok)
	assert.Equal(t, "unknown", listing.Source)
	assert.Nil(t, listing.Mileage)
}

func TestNormalizeAll_OmitsRejectsPreservesOrder(t *testing.T) {
	n := NewNormalizer()

	out := n.NormalizeAll([]RawListing{
		{"price": 10000.0, "source": "carmax"},
		{"source": "craigslist"}, // no price → dropped
		{"price": "not a number", "source": "cargurus"},
		{"price": 12000.0, "source": "cargurus"},
	})

	require.Len(t, out, 2)
	assert.Equal(t, "carmax", out[0].Source)
	assert.Equal(t, "cargurus", out[1].Source)
}
