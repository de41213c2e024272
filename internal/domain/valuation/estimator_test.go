package valuation

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEstimator() *Estimator {
	return NewEstimator(DefaultEstimatorConfig())
}

func listingsFromPrices(source string, prices ...float64) []MarketListing {
	out := make([]MarketListing, len(prices))
	for i, p := range prices {
		out[i] = MarketListing{Price: p, Source: source}
	}
	return out
}

func TestEstimate_EmptyInput(t *testing.T) {
	est := newTestEstimator().Estimate(nil)

	assert.Nil(t, est.EstimatedPrice)
	assert.Nil(t, est.Average)
	assert.Nil(t, est.Median)
	assert.Nil(t, est.Min)
	assert.Nil(t, est.Max)
	assert.Nil(t, est.StdDev)
	assert.Equal(t, 0, est.Confidence)
	assert.Empty(t, est.UsedListings)
	assert.False(t, est.HasEstimate())
}

func TestEstimate_SanityBounds(t *testing.T) {
	e := newTestEstimator()
	est := e.Estimate([]MarketListing{
		{Price: 999, Source: "carmax"},    // below floor
		{Price: 200001, Source: "carmax"}, // above ceiling
		{Price: 15000, Source: "carmax"},
		{Price: 1000, Source: "carmax"},   // inclusive floor
		{Price: 200000, Source: "carmax"}, // inclusive ceiling
	})
	assert.Len(t, est.UsedListings, 3)
}

func TestEstimate_BrandedTitlesExcluded(t *testing.T) {
	e := newTestEstimator()
	est := e.Estimate([]MarketListing{
		{Price: 15000, Source: "carmax", TitleStatus: "Salvage"},
		{Price: 15500, Source: "carmax", TitleStatus: "REBUILT title"},
		{Price: 15200, Source: "carmax", TitleStatus: "flood damage"},
		{Price: 15100, Source: "carmax", TitleStatus: "lemon law buyback"},
		{Price: 15300, Source: "carmax", TitleStatus: "clean"},
		{Price: 15400, Source: "carmax"},
	})

	require.Len(t, est.UsedListings, 2)
	for _, l := range est.UsedListings {
		assert.NotContains(t, []string{"Salvage", "REBUILT title", "flood damage", "lemon law buyback"}, l.TitleStatus)
	}
}

func TestEstimate_OutlierFloorSkipsRemoval(t *testing.T) {
	// Three listings where removal of the extreme price would leave only
	// two: removal must be skipped and all three kept in the statistics.
	e := newTestEstimator()
	est := e.Estimate([]MarketListing{
		{Price: 20000, Source: "cargurus"},
		{Price: 21000, Source: "carmax"},
		{Price: 50000, Source: "craigslist"},
	})

	require.True(t, est.HasEstimate())
	require.NotNil(t, est.Median)
	assert.InDelta(t, 21000, *est.Median, 0.001)
	assert.Len(t, est.UsedListings, 3)
	// Mean over all three survives.
	assert.InDelta(t, 30333, *est.Average, 1)
	assert.Equal(t, 0, est.OutliersRemoved)
	// Weighted: (20000·1.0 + 21000·0.95 + 50000·0.70) / 2.65
	assert.InDelta(t, 28283, *est.EstimatedPrice, 1)
}

func TestEstimate_OutlierRemovedWithLargeSample(t *testing.T) {
	e := newTestEstimator()
	listings := listingsFromPrices("carmax",
		20000, 20500, 21000, 21500, 20800, 20200, 90000)
	est := e.Estimate(listings)

	require.True(t, est.HasEstimate())
	// The 90000 outlier is dropped from finalAvg but remains in UsedListings.
	assert.Len(t, est.UsedListings, 7)
	assert.InDelta(t, 20667, *est.Average, 1)
	assert.Equal(t, 1, est.OutliersRemoved)
}

func TestEstimate_MedianEvenCount(t *testing.T) {
	e := newTestEstimator()
	est := e.Estimate(listingsFromPrices("carmax", 10000, 20000, 30000, 40000))
	require.NotNil(t, est.Median)
	assert.InDelta(t, 25000, *est.Median, 0.001)
}

func TestEstimate_WeightedAverageUnknownSource(t *testing.T) {
	e := newTestEstimator()
	est := e.Estimate([]MarketListing{
		{Price: 10000, Source: "some-new-site"},
		{Price: 20000, Source: "cargurus"},
	})
	require.True(t, est.HasEstimate())
	// (10000·0.70 + 20000·1.0) / 1.70 = 15882.35
	assert.InDelta(t, 15882, *est.EstimatedPrice, 1)
}

func TestEstimate_ConfidenceComponents(t *testing.T) {
	e := newTestEstimator()

	t.Run("saturated sample of identical prices", func(t *testing.T) {
		est := e.Estimate(listingsFromPrices("cargurus",
			20000, 20000, 20000, 20000, 20000, 20000, 20000, 20000))
		// sample 60 + consistency 25 (cv=0) + quality 15 (trust 1.0) = 100
		assert.Equal(t, 100, est.Confidence)
	})

	t.Run("single listing", func(t *testing.T) {
		est := e.Estimate(listingsFromPrices("craigslist", 20000))
		// sample 7.5 + consistency 25 + quality 10.5 = 43
		assert.Equal(t, 43, est.Confidence)
	})

	t.Run("always in range", func(t *testing.T) {
		for n := 0; n < 20; n++ {
			prices := make([]float64, 0, n)
			for i := 0; i < n; i++ {
				prices = append(prices, 1500+float64(i)*9000)
			}
			est := e.Estimate(listingsFromPrices("craigslist", prices...))
			assert.GreaterOrEqual(t, est.Confidence, 0, fmt.Sprintf("n=%d", n))
			assert.LessOrEqual(t, est.Confidence, 100, fmt.Sprintf("n=%d", n))
		}
	})
}

func TestEstimate_ZeroTotalTrustFallsBackToUnweighted(t *testing.T) {
	cfg := DefaultEstimatorConfig()
	cfg.SourceTrust = map[string]float64{"junkfeed": 0}
	cfg.DefaultTrust = 0.70
	e := NewEstimator(cfg)

	est := e.Estimate([]MarketListing{
		{Price: 10000, Source: "junkfeed"},
		{Price: 20000, Source: "junkfeed"},
	})
	require.True(t, est.HasEstimate())
	assert.InDelta(t, 15000, *est.EstimatedPrice, 0.001)
}

func TestTrustWeight(t *testing.T) {
	e := newTestEstimator()
	assert.InDelta(t, 1.0, e.TrustWeight("CarGurus"), 0.001)
	assert.InDelta(t, 0.95, e.TrustWeight("carmax"), 0.001)
	assert.InDelta(t, 0.70, e.TrustWeight("never-seen"), 0.001)
}

func TestStatisticsHelpers(t *testing.T) {
	assert.InDelta(t, 0, mean(nil), 0.001)
	assert.InDelta(t, 0, median(nil), 0.001)
	assert.InDelta(t, 0, stdDev(nil, 0), 0.001)
	assert.InDelta(t, 2, median([]float64{3, 1, 2}), 0.001)

	// Population std-dev of {2, 4, 4, 4, 5, 5, 7, 9} is exactly 2.
	xs := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	assert.InDelta(t, 2, stdDev(xs, mean(xs)), 0.001)
}
