package valuation

import (
	"math"
	"sort"
	"strings"
)

// excludedTitleTerms are matched case-insensitively as substrings of a
// listing's title status.  Vehicles carrying these brands are not comparable
// to a clean-title valuation target.
var excludedTitleTerms = []string{"salvage", "rebuilt", "flood", "lemon"}

// EstimatorConfig carries the tunable thresholds of the market estimator.
type EstimatorConfig struct {
	// PriceSanityMin and PriceSanityMax bound plausible listing prices;
	// values outside are treated as corrupted scrape data.
	PriceSanityMin float64
	PriceSanityMax float64

	// OutlierSigma is the standard-deviation multiple beyond which a price
	// is considered an outlier.
	OutlierSigma float64

	// MinListingsAfterOutlier is the smallest sample outlier removal may
	// leave behind; removal is skipped entirely when it would go below this.
	MinListingsAfterOutlier int

	// FullSampleSize is the listing count at which the sample-size
	// confidence component saturates.
	FullSampleSize int

	// SourceTrust maps normalized source names to trust weights in [0, 1].
	// Sources absent from the table receive DefaultTrust.
	SourceTrust  map[string]float64
	DefaultTrust float64
}

// DefaultEstimatorConfig returns the standard production thresholds.
func DefaultEstimatorConfig() EstimatorConfig {
	return EstimatorConfig{
		PriceSanityMin:          1000,
		PriceSanityMax:          200000,
		OutlierSigma:            2.0,
		MinListingsAfterOutlier: 3,
		FullSampleSize:          8,
		SourceTrust: map[string]float64{
			"cargurus":   1.0,
			"carmax":     0.95,
			"craigslist": 0.70,
		},
		DefaultTrust: 0.70,
	}
}

// Estimator turns a set of normalized listings into a base market value and a
// confidence signal.  It is pure: no I/O, no shared state, never an error —
// absence of data is signaled through a nil estimate.
type Estimator struct {
	cfg EstimatorConfig
}

// NewEstimator constructs an Estimator with the given thresholds.
func NewEstimator(cfg EstimatorConfig) *Estimator {
	if cfg.OutlierSigma <= 0 {
		cfg.OutlierSigma = 2.0
	}
	if cfg.MinListingsAfterOutlier <= 0 {
		cfg.MinListingsAfterOutlier = 3
	}
	if cfg.FullSampleSize <= 0 {
		cfg.FullSampleSize = 8
	}
	if cfg.DefaultTrust == 0 {
		cfg.DefaultTrust = 0.70
	}
	return &Estimator{cfg: cfg}
}

// TrustWeight returns the trust weight for a source name.
func (e *Estimator) TrustWeight(source string) float64 {
	if w, ok := e.cfg.SourceTrust[normalizeSource(source)]; ok {
		return w
	}
	return e.cfg.DefaultTrust
}

// Estimate computes the market estimate over listings.  The returned
// UsedListings are the post-filter, pre-outlier-removal survivors.
func (e *Estimator) Estimate(listings []MarketListing) MarketEstimate {
	used := e.filter(listings)
	if len(used) == 0 {
		return MarketEstimate{Confidence: 0, UsedListings: []MarketListing{}}
	}

	prices := make([]float64, len(used))
	for i, l := range used {
		prices[i] = l.Price
	}

	avg := mean(prices)
	med := median(prices)
	sd := stdDev(prices, avg)
	lo, hi := minMax(prices)

	// Trust-weighted average over the full surviving set.
	weighted, totalTrust := 0.0, 0.0
	for _, l := range used {
		w := e.TrustWeight(l.Source)
		weighted += l.Price * w
		totalTrust += w
	}
	var weightedAvg float64
	if totalTrust > 0 {
		weightedAvg = weighted / totalTrust
	} else {
		weightedAvg = avg
	}

	// Second-pass outlier removal: drop prices beyond OutlierSigma standard
	// deviations, but never purge the sample below the floor.
	finalAvg := avg
	outliersRemoved := 0
	if survivors := e.removeOutliers(prices, avg, sd); len(survivors) >= e.cfg.MinListingsAfterOutlier {
		finalAvg = mean(survivors)
		outliersRemoved = len(prices) - len(survivors)
	}

	confidence := e.confidence(len(used), avg, sd, totalTrust/float64(len(used)))

	est := round(weightedAvg)
	avgOut := round(finalAvg)
	medOut := round(med)
	sdOut := round(sd)
	return MarketEstimate{
		EstimatedPrice:  &est,
		Average:         &avgOut,
		Median:          &medOut,
		Min:             &lo,
		Max:             &hi,
		StdDev:          &sdOut,
		Confidence:      confidence,
		UsedListings:    used,
		OutliersRemoved: outliersRemoved,
	}
}

// filter applies the sanity bounds and title-brand exclusion.
func (e *Estimator) filter(listings []MarketListing) []MarketListing {
	out := make([]MarketListing, 0, len(listings))
	for _, l := range listings {
		if l.Price < e.cfg.PriceSanityMin || l.Price > e.cfg.PriceSanityMax {
			continue
		}
		if titleExcluded(l.TitleStatus) {
			continue
		}
		out = append(out, l)
	}
	return out
}

func (e *Estimator) removeOutliers(prices []float64, avg, sd float64) []float64 {
	if sd == 0 {
		return prices
	}
	out := make([]float64, 0, len(prices))
	for _, p := range prices {
		if math.Abs(p-avg) <= e.cfg.OutlierSigma*sd {
			out = append(out, p)
		}
	}
	return out
}

// confidence sums three independently-capped components: sample size (up to
// 60), price consistency (up to 25), and source quality (up to 15).
func (e *Estimator) confidence(count int, avg, sd, avgTrust float64) int {
	sample := math.Min(60, float64(count)/float64(e.cfg.FullSampleSize)*60)

	consistency := 0.0
	if avg > 0 {
		cv := sd / avg
		consistency = math.Max(0, 25-cv*100)
	}

	quality := avgTrust * 15

	return clampConfidence(int(math.Round(sample + consistency + quality)))
}

// titleExcluded reports whether a listing title status carries a brand that
// disqualifies it from clean-title comparisons.
func titleExcluded(titleStatus string) bool {
	if titleStatus == "" {
		return false
	}
	lower := strings.ToLower(titleStatus)
	for _, term := range excludedTitleTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

func clampConfidence(c int) int {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

// ── Statistics helpers ───────────────────────────────────────────────────────

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// median uses the standard even/odd rule: the average of the two middle
// sorted values when the count is even.
func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// stdDev is the population standard deviation.
func stdDev(xs []float64, avg float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sumSq := 0.0
	for _, x := range xs {
		d := x - avg
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)))
}

func minMax(xs []float64) (float64, float64) {
	lo, hi := xs[0], xs[0]
	for _, x := range xs[1:] {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	return lo, hi
}

func round(x float64) float64 {
	return math.Round(x)
}
