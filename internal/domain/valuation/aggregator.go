package valuation

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// DepreciationConfig seeds the fallback model used when no usable market
// listings exist.
type DepreciationConfig struct {
	// BaseMSRP maps lowercase make names to a representative new-vehicle
	// price.  Makes absent from the table use DefaultMSRP.
	BaseMSRP    map[string]float64
	DefaultMSRP float64

	// RatePerYear is the straight-line annual depreciation fraction;
	// cumulative depreciation is capped at Floor.
	RatePerYear float64
	Floor       float64

	// MaxConfidence caps the confidence of fallback-based reports, which
	// lack market corroboration.
	MaxConfidence int
}

// DefaultDepreciationConfig returns the standard fallback tables.
func DefaultDepreciationConfig() DepreciationConfig {
	return DepreciationConfig{
		BaseMSRP: map[string]float64{
			"toyota":        32000,
			"honda":         31000,
			"ford":          38000,
			"chevrolet":     37000,
			"bmw":           55000,
			"mercedes-benz": 58000,
			"audi":          52000,
			"lexus":         48000,
			"subaru":        33000,
			"nissan":        30000,
			"hyundai":       28000,
			"kia":           27000,
			"tesla":         50000,
		},
		DefaultMSRP:   30000,
		RatePerYear:   0.15,
		Floor:         0.70,
		MaxConfidence: 50,
	}
}

// Aggregator orchestrates the pipeline: normalize → estimate → adjust →
// report.  It is pure computation; persistence and audit logging belong to
// the callers.
type Aggregator struct {
	normalizer *Normalizer
	estimator  *Estimator
	engine     *Engine
	deprec     DepreciationConfig
	spreadPct  float64
}

// NewAggregator wires the pipeline stages together.  spreadPct is the
// half-width of the synthetic price range when no empirical bounds exist.
func NewAggregator(estimator *Estimator, engine *Engine, deprec DepreciationConfig, spreadPct float64) *Aggregator {
	if spreadPct <= 0 {
		spreadPct = 0.10
	}
	return &Aggregator{
		normalizer: NewNormalizer(),
		estimator:  estimator,
		engine:     engine,
		deprec:     deprec,
		spreadPct:  spreadPct,
	}
}

// ValueRaw runs the full pipeline from raw listing records.
func (a *Aggregator) ValueRaw(facts VehicleFacts, raws []RawListing, asOf time.Time) ValuationReport {
	return a.Value(facts, a.normalizer.NormalizeAll(raws), asOf)
}

// Value produces a ValuationReport from normalized listings.  It never fails
// on malformed optional input: missing data degrades to documented fallbacks,
// and the returned report is always well formed.
func (a *Aggregator) Value(facts VehicleFacts, listings []MarketListing, asOf time.Time) ValuationReport {
	estimate := a.estimator.Estimate(listings)
	age := facts.AgeYears(asOf)

	var baseValue float64
	var source BaseValueSource
	var confidence int
	if estimate.HasEstimate() {
		baseValue = *estimate.EstimatedPrice
		source = BaseFromMarket
		confidence = estimate.Confidence
	} else {
		baseValue = a.depreciatedValue(facts.Make, age)
		source = BaseFromDepreciation
		confidence = a.fallbackConfidence()
	}

	adjustments := a.engine.Evaluate(facts, baseValue, age)

	total := 0
	for _, adj := range adjustments {
		total += adj.Impact
	}
	finalValue := math.Max(0, baseValue+float64(total))

	report := ValuationReport{
		BaseValue:       baseValue,
		BaseValueSource: source,
		Adjustments:     adjustments,
		FinalValue:      finalValue,
		ConfidenceScore: clampConfidence(confidence),
		PriceRange:      a.priceRange(finalValue, estimate),
		UsedListings:    estimate.UsedListings,
		OutliersRemoved: estimate.OutliersRemoved,
		GeneratedAt:     asOf.UTC(),
	}
	report.Explanation = a.explain(facts, report)
	return report
}

// depreciatedValue is the fallback model: straight-line depreciation from a
// make-indexed MSRP, floored so old vehicles retain residual value.
func (a *Aggregator) depreciatedValue(makeName string, ageYears int) float64 {
	msrp, ok := a.deprec.BaseMSRP[strings.ToLower(strings.TrimSpace(makeName))]
	if !ok {
		msrp = a.deprec.DefaultMSRP
	}
	depreciation := math.Min(float64(ageYears)*a.deprec.RatePerYear, a.deprec.Floor)
	return math.Round(msrp * (1 - depreciation))
}

func (a *Aggregator) fallbackConfidence() int {
	// No market corroboration: a fixed low score, bounded by the cap.
	conf := 30
	if conf > a.deprec.MaxConfidence {
		conf = a.deprec.MaxConfidence
	}
	return conf
}

// priceRange brackets the final value.  Empirical market min/max bound the
// range when available; the bracket is always widened to contain finalValue.
func (a *Aggregator) priceRange(finalValue float64, estimate MarketEstimate) PriceRange {
	low := math.Round(finalValue * (1 - a.spreadPct))
	high := math.Round(finalValue * (1 + a.spreadPct))
	if estimate.HasEstimate() && estimate.Min != nil && estimate.Max != nil {
		low = math.Min(*estimate.Min, finalValue)
		high = math.Max(*estimate.Max, finalValue)
	}
	return PriceRange{Low: int(low), High: int(high)}
}

// explain renders the human-readable narrative from the computed numbers.
// Downstream renderers may enrich this text but must not re-derive values.
func (a *Aggregator) explain(facts VehicleFacts, report ValuationReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%d %s %s", facts.Year, capitalize(facts.Make), capitalize(facts.Model))
	if facts.Trim != "" {
		fmt.Fprintf(&b, " %s", facts.Trim)
	}
	switch report.BaseValueSource {
	case BaseFromMarket:
		fmt.Fprintf(&b, ": base market value $%s from %d comparable listing(s).",
			formatDollars(int(report.BaseValue)), len(report.UsedListings))
	default:
		fmt.Fprintf(&b, ": no comparable listings found; base value $%s from the age-based depreciation model.",
			formatDollars(int(report.BaseValue)))
	}

	for _, adj := range report.Adjustments {
		fmt.Fprintf(&b, " %s.", adj.Description)
	}

	fmt.Fprintf(&b, " Estimated value: $%s (range $%s to $%s, confidence %d/100).",
		formatDollars(int(report.FinalValue)),
		formatDollars(report.PriceRange.Low),
		formatDollars(report.PriceRange.High),
		report.ConfidenceScore)

	return b.String()
}
