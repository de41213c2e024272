// Package valuation implements the valuation aggregation pipeline: listing
// normalization, market price estimation, the adjustment rules engine, and
// the report aggregator.  Everything in this package is pure in-memory
// computation; persistence and transport live in the infrastructure layer.
package valuation

import (
	"time"

	"github.com/vinsight/vinsight/pkg/types/common"
	"github.com/vinsight/vinsight/pkg/types/vehicle"
)

// ─────────────────────────────────────────────────────────────────────────────
// Pipeline inputs
// ─────────────────────────────────────────────────────────────────────────────

// VehicleFacts is an immutable snapshot of what is known about one vehicle at
// valuation time.  A new valuation request produces a new VehicleFacts value;
// the pipeline never mutates it.
type VehicleFacts struct {
	VIN             string              `json:"vin,omitempty"`
	Make            string              `json:"make"`
	Model           string              `json:"model"`
	Year            int                 `json:"year"`
	Trim            string              `json:"trim,omitempty"`
	Mileage         *int                `json:"mileage,omitempty"`
	Condition       vehicle.Condition   `json:"condition,omitempty"`
	ZipCode         string              `json:"zip_code,omitempty"`
	AccidentCount   int                 `json:"accident_count"`
	TitleStatus     vehicle.TitleStatus `json:"title_status"`
	PhotoScore      *float64            `json:"photo_score,omitempty"`
	PremiumFeatures []string            `json:"premium_features,omitempty"`
	HistoryFlags    []string            `json:"history_flags,omitempty"`
}

// AgeYears returns the vehicle age relative to asOf, floored at zero.
func (f VehicleFacts) AgeYears(asOf time.Time) int {
	age := asOf.Year() - f.Year
	if age < 0 {
		return 0
	}
	return age
}

// MarketListing is one observed sale or offer in canonical shape.  Listings
// are read-only inputs; the pipeline never persists them itself.
type MarketListing struct {
	Price       float64   `json:"price"`
	Mileage     *int      `json:"mileage,omitempty"`
	Source      string    `json:"source"`
	TitleStatus string    `json:"title_status,omitempty"`
	VIN         string    `json:"vin,omitempty"`
	URL         string    `json:"url,omitempty"`
	DealerName  string    `json:"dealer_name,omitempty"`
	IsCPO       bool      `json:"is_cpo"`
	FetchedAt   time.Time `json:"fetched_at,omitempty"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Pipeline outputs
// ─────────────────────────────────────────────────────────────────────────────

// MarketEstimate is the Market Price Estimator's output.  A nil EstimatedPrice
// means "no usable market data" and instructs the aggregator to fall back to
// the depreciation model; it is never an error.
type MarketEstimate struct {
	EstimatedPrice  *float64        `json:"estimated_price"`
	Average         *float64        `json:"average"`
	Median          *float64        `json:"median"`
	Min             *float64        `json:"min"`
	Max             *float64        `json:"max"`
	StdDev          *float64        `json:"std_dev"`
	Confidence      int             `json:"confidence"`
	UsedListings    []MarketListing `json:"used_listings"`
	OutliersRemoved int             `json:"outliers_removed,omitempty"`
}

// HasEstimate reports whether market data produced a usable point estimate.
func (e MarketEstimate) HasEstimate() bool {
	return e.EstimatedPrice != nil
}

// Adjustment is one signed contribution to value.  Impact is whole dollars.
type Adjustment struct {
	Factor      string `json:"factor"`
	Impact      int    `json:"impact"`
	Description string `json:"description"`
}

// PriceRange is the [low, high] bracket around the final value.
type PriceRange struct {
	Low  int `json:"low"`
	High int `json:"high"`
}

// BaseValueSource identifies where the report's base value came from.
type BaseValueSource string

const (
	BaseFromMarket       BaseValueSource = "market"
	BaseFromDepreciation BaseValueSource = "depreciation"
)

// ValuationReport is the pipeline's terminal artifact.  It is produced once
// per request and never mutated afterwards.  GeneratedAt is the only
// time-dependent field and must be excluded from equality checks.
type ValuationReport struct {
	BaseValue       float64         `json:"base_value"`
	BaseValueSource BaseValueSource `json:"base_value_source"`
	Adjustments     []Adjustment    `json:"adjustments"`
	FinalValue      float64         `json:"final_value"`
	ConfidenceScore int             `json:"confidence_score"`
	PriceRange      PriceRange      `json:"price_range"`
	UsedListings    []MarketListing `json:"used_listings"`
	OutliersRemoved int             `json:"outliers_removed,omitempty"`
	Explanation     string          `json:"explanation"`
	GeneratedAt     time.Time       `json:"generated_at"`
}

// AdjustmentTotal returns the signed sum of all adjustment impacts.
func (r ValuationReport) AdjustmentTotal() int {
	total := 0
	for _, a := range r.Adjustments {
		total += a.Impact
	}
	return total
}

// ─────────────────────────────────────────────────────────────────────────────
// Persisted aggregate
// ─────────────────────────────────────────────────────────────────────────────

// Status tracks the lifecycle of a persisted valuation request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Valuation is the persisted aggregate wrapping one valuation request and,
// once computed, its report.
type Valuation struct {
	ID          common.ID        `json:"id"`
	Facts       VehicleFacts     `json:"facts"`
	Status      Status           `json:"status"`
	Report      *ValuationReport `json:"report,omitempty"`
	Fingerprint string           `json:"fingerprint"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// NewValuation creates a pending valuation for the given facts.
func NewValuation(facts VehicleFacts, fingerprint string) *Valuation {
	now := time.Now().UTC()
	return &Valuation{
		ID:          common.NewID(),
		Facts:       facts,
		Status:      StatusPending,
		Fingerprint: fingerprint,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Complete attaches the computed report and marks the valuation done.
func (v *Valuation) Complete(report *ValuationReport) {
	v.Report = report
	v.Status = StatusCompleted
	v.UpdatedAt = time.Now().UTC()
}

// Fail marks the valuation as failed.
func (v *Valuation) Fail() {
	v.Status = StatusFailed
	v.UpdatedAt = time.Now().UTC()
}
