package valuation

import (
	"github.com/vinsight/vinsight/pkg/types/common"
)

// Event type names as they appear in the envelope's event_type field.
const (
	EventTypeValuationRequested = "valuation.requested"
	EventTypeValuationCompleted = "valuation.completed"
	EventTypeListingIngested    = "listing.ingested"
)

// ValuationRequestedEvent is published when a valuation request is accepted
// and queued for the worker.
type ValuationRequestedEvent struct {
	common.BaseEvent
	ValuationID common.ID    `json:"valuation_id"`
	Facts       VehicleFacts `json:"facts"`
	RawListings []RawListing `json:"raw_listings,omitempty"`
}

// NewValuationRequestedEvent builds the event for a pending valuation.
func NewValuationRequestedEvent(v *Valuation, raws []RawListing) ValuationRequestedEvent {
	return ValuationRequestedEvent{
		BaseEvent:   common.NewBaseEvent(string(v.ID)),
		ValuationID: v.ID,
		Facts:       v.Facts,
		RawListings: raws,
	}
}

// ValuationCompletedEvent is published after a report has been computed and
// persisted.
type ValuationCompletedEvent struct {
	common.BaseEvent
	ValuationID common.ID       `json:"valuation_id"`
	VIN         string          `json:"vin,omitempty"`
	FinalValue  float64         `json:"final_value"`
	Confidence  int             `json:"confidence"`
	Source      BaseValueSource `json:"base_value_source"`
}

// NewValuationCompletedEvent builds the completion event from a report.
func NewValuationCompletedEvent(v *Valuation, report *ValuationReport) ValuationCompletedEvent {
	return ValuationCompletedEvent{
		BaseEvent:   common.NewBaseEvent(string(v.ID)),
		ValuationID: v.ID,
		VIN:         v.Facts.VIN,
		FinalValue:  report.FinalValue,
		Confidence:  report.ConfidenceScore,
		Source:      report.BaseValueSource,
	}
}

// ListingIngestedEvent is published when listings are attached to an existing
// valuation from an external feed.
type ListingIngestedEvent struct {
	common.BaseEvent
	ValuationID common.ID `json:"valuation_id"`
	Count       int       `json:"count"`
	Sources     []string  `json:"sources"`
}

// NewListingIngestedEvent builds the ingestion event for a listing batch.
func NewListingIngestedEvent(valuationID common.ID, listings []MarketListing) ListingIngestedEvent {
	seen := make(map[string]struct{}, len(listings))
	sources := make([]string, 0, len(listings))
	for _, l := range listings {
		if _, dup := seen[l.Source]; dup {
			continue
		}
		seen[l.Source] = struct{}{}
		sources = append(sources, l.Source)
	}
	return ListingIngestedEvent{
		BaseEvent:   common.NewBaseEvent(string(valuationID)),
		ValuationID: valuationID,
		Count:       len(listings),
		Sources:     sources,
	}
}
