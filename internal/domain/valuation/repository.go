package valuation

import (
	"context"
	"time"

	"github.com/vinsight/vinsight/pkg/types/common"
)

// ListFilter narrows valuation queries.
type ListFilter struct {
	VIN    string
	Status Status
	Make   string
}

// Repository is the persistence contract for valuations.  Implementations
// live in the infrastructure layer.
type Repository interface {
	Create(ctx context.Context, v *Valuation) error
	GetByID(ctx context.Context, id common.ID) (*Valuation, error)
	GetByFingerprint(ctx context.Context, fingerprint string) (*Valuation, error)
	Update(ctx context.Context, v *Valuation) error
	List(ctx context.Context, filter ListFilter, page common.Pagination) ([]*Valuation, int64, error)
	ListByVIN(ctx context.Context, vin string, page common.Pagination) ([]*Valuation, int64, error)
}

// ListingRepository persists normalized market listings for later reuse and
// analytics.  The pipeline itself never writes; the application layer does.
type ListingRepository interface {
	BulkInsert(ctx context.Context, valuationID common.ID, listings []MarketListing) error
	ListByValuation(ctx context.Context, valuationID common.ID) ([]MarketListing, error)
}

// AuditEntry records one significant action for compliance review.
type AuditEntry struct {
	ID         common.ID              `json:"id"`
	Action     string                 `json:"action"`
	ActorID    string                 `json:"actor_id,omitempty"`
	SubjectID  string                 `json:"subject_id,omitempty"`
	Detail     map[string]interface{} `json:"detail,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// AuditSink receives audit entries.  It is an injected collaborator so the
// pipeline stays pure; implementations may write to Postgres, Kafka, or both.
type AuditSink interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// NopAuditSink discards all entries.  Used in tests and in tools that do not
// carry audit infrastructure.
type NopAuditSink struct{}

func (NopAuditSink) Record(context.Context, AuditEntry) error { return nil }
