package repositories

import (
	"context"
	"encoding/json"

	"github.com/vinsight/vinsight/internal/domain/valuation"
	"github.com/vinsight/vinsight/internal/infrastructure/monitoring/logging"
	"github.com/vinsight/vinsight/pkg/errors"
)

// AuditRepository persists audit entries to PostgreSQL.  It implements
// valuation.AuditSink; a failed audit write is logged and surfaced but must
// not abort the action being audited — callers decide how strict to be.
type AuditRepository struct {
	db     DBTX
	logger logging.Logger
}

// NewAuditRepository constructs an AuditRepository.
func NewAuditRepository(db DBTX, log logging.Logger) *AuditRepository {
	return &AuditRepository{db: db, logger: log}
}

// Record writes one audit entry.
func (r *AuditRepository) Record(ctx context.Context, entry valuation.AuditEntry) error {
	var detail []byte
	if entry.Detail != nil {
		var err error
		detail, err = json.Marshal(entry.Detail)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal audit detail")
		}
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO audit_log (id, action, actor_id, subject_id, detail, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		string(entry.ID), entry.Action, entry.ActorID, entry.SubjectID, detail, entry.OccurredAt,
	)
	if err != nil {
		r.logger.Error("audit write failed",
			logging.String("action", entry.Action),
			logging.Err(err))
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to insert audit entry")
	}
	return nil
}
