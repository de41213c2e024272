package repositories

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vinsight/vinsight/internal/domain/valuation"
	"github.com/vinsight/vinsight/internal/infrastructure/monitoring/logging"
	"github.com/vinsight/vinsight/pkg/errors"
	"github.com/vinsight/vinsight/pkg/types/common"
)

// ValuationRepository is the PostgreSQL implementation of
// valuation.Repository.  Facts and reports are stored as JSONB alongside a
// few indexed scalar columns for filtering.
type ValuationRepository struct {
	db     DBTX
	logger logging.Logger
}

// NewValuationRepository constructs a ValuationRepository.
func NewValuationRepository(db DBTX, log logging.Logger) *ValuationRepository {
	return &ValuationRepository{db: db, logger: log}
}

const valuationColumns = `id, vin, make, model, year, facts, status, report, fingerprint, created_at, updated_at`

// Create inserts a new valuation row.
func (r *ValuationRepository) Create(ctx context.Context, v *valuation.Valuation) error {
	facts, err := json.Marshal(v.Facts)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal vehicle facts")
	}

	var report []byte
	if v.Report != nil {
		report, err = json.Marshal(v.Report)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal report")
		}
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO valuations (id, vin, make, model, year, facts, status, report, fingerprint, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		string(v.ID), v.Facts.VIN, v.Facts.Make, v.Facts.Model, v.Facts.Year,
		facts, string(v.Status), report, v.Fingerprint, v.CreatedAt, v.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if stderrors.As(err, &pgErr) && pgErr.Code == "23505" {
			return errors.New(errors.ErrCodeConflict, "valuation with this fingerprint already exists")
		}
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to insert valuation")
	}
	return nil
}

// GetByID fetches one valuation by its primary key.
func (r *ValuationRepository) GetByID(ctx context.Context, id common.ID) (*valuation.Valuation, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+valuationColumns+` FROM valuations WHERE id = $1`, string(id))
	v, err := scanValuation(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.New(errors.ErrCodeValuationNotFound,
				fmt.Sprintf("valuation %s not found", id))
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query valuation")
	}
	return v, nil
}

// GetByFingerprint fetches the most recent valuation matching a request
// fingerprint, used for idempotent request handling.
func (r *ValuationRepository) GetByFingerprint(ctx context.Context, fingerprint string) (*valuation.Valuation, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+valuationColumns+` FROM valuations
		 WHERE fingerprint = $1 ORDER BY created_at DESC LIMIT 1`, fingerprint)
	v, err := scanValuation(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.New(errors.ErrCodeValuationNotFound, "no valuation for fingerprint")
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query valuation by fingerprint")
	}
	return v, nil
}

// Update persists status and report changes.
func (r *ValuationRepository) Update(ctx context.Context, v *valuation.Valuation) error {
	var report []byte
	if v.Report != nil {
		var err error
		report, err = json.Marshal(v.Report)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal report")
		}
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE valuations SET status = $2, report = $3, updated_at = $4 WHERE id = $1`,
		string(v.ID), string(v.Status), report, v.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to update valuation")
	}
	if tag.RowsAffected() == 0 {
		return errors.New(errors.ErrCodeValuationNotFound,
			fmt.Sprintf("valuation %s not found", v.ID))
	}
	return nil
}

// List returns a filtered page of valuations, newest first.
func (r *ValuationRepository) List(ctx context.Context, filter valuation.ListFilter, page common.Pagination) ([]*valuation.Valuation, int64, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	idx := 1

	if filter.VIN != "" {
		where = append(where, fmt.Sprintf("vin = $%d", idx))
		args = append(args, filter.VIN)
		idx++
	}
	if filter.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", idx))
		args = append(args, string(filter.Status))
		idx++
	}
	if filter.Make != "" {
		where = append(where, fmt.Sprintf("LOWER(make) = LOWER($%d)", idx))
		args = append(args, filter.Make)
		idx++
	}
	whereClause := strings.Join(where, " AND ")

	var total int64
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM valuations WHERE `+whereClause, args...,
	).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to count valuations")
	}

	query := fmt.Sprintf(`SELECT %s FROM valuations WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		valuationColumns, whereClause, idx, idx+1)
	args = append(args, page.PageSize, page.Offset())

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list valuations")
	}
	defer rows.Close()

	var out []*valuation.Valuation
	for rows.Next() {
		v, err := scanValuation(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan valuation row")
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "valuation row iteration failed")
	}
	return out, total, nil
}

// ListByVIN returns the valuation history for one vehicle, newest first.
func (r *ValuationRepository) ListByVIN(ctx context.Context, vin string, page common.Pagination) ([]*valuation.Valuation, int64, error) {
	return r.List(ctx, valuation.ListFilter{VIN: vin}, page)
}

// scanValuation reads one row in valuationColumns order.
func scanValuation(s scanner) (*valuation.Valuation, error) {
	var (
		v          valuation.Valuation
		id, status string
		vin        string
		makeName   string
		model      string
		year       int
		facts      []byte
		report     []byte
	)
	if err := s.Scan(&id, &vin, &makeName, &model, &year, &facts, &status,
		&report, &v.Fingerprint, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}

	v.ID = common.ID(id)
	v.Status = valuation.Status(status)
	if err := json.Unmarshal(facts, &v.Facts); err != nil {
		return nil, err
	}
	if len(report) > 0 {
		v.Report = &valuation.ValuationReport{}
		if err := json.Unmarshal(report, v.Report); err != nil {
			return nil, err
		}
	}
	return &v, nil
}
