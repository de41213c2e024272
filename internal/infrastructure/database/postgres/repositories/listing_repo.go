package repositories

import (
	"context"
	"time"

	"github.com/vinsight/vinsight/internal/domain/valuation"
	"github.com/vinsight/vinsight/internal/infrastructure/monitoring/logging"
	"github.com/vinsight/vinsight/pkg/errors"
	"github.com/vinsight/vinsight/pkg/types/common"
)

// ListingRepository is the PostgreSQL implementation of
// valuation.ListingRepository.
type ListingRepository struct {
	db     DBTX
	logger logging.Logger
}

// NewListingRepository constructs a ListingRepository.
func NewListingRepository(db DBTX, log logging.Logger) *ListingRepository {
	return &ListingRepository{db: db, logger: log}
}

// BulkInsert stores a batch of normalized listings for a valuation.  The
// batch goes in one round trip per listing; feeds are small (tens of rows).
func (r *ListingRepository) BulkInsert(ctx context.Context, valuationID common.ID, listings []valuation.MarketListing) error {
	for _, l := range listings {
		var fetchedAt interface{}
		if !l.FetchedAt.IsZero() {
			fetchedAt = l.FetchedAt
		}
		_, err := r.db.Exec(ctx, `
			INSERT INTO market_listings
				(valuation_id, price, mileage, source, title_status, vin, url, dealer_name, is_cpo, fetched_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			string(valuationID), l.Price, l.Mileage, l.Source, l.TitleStatus,
			l.VIN, l.URL, l.DealerName, l.IsCPO, fetchedAt, time.Now().UTC(),
		)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to insert market listing")
		}
	}
	return nil
}

// ListByValuation returns the listings stored for a valuation, in insertion
// order.
func (r *ListingRepository) ListByValuation(ctx context.Context, valuationID common.ID) ([]valuation.MarketListing, error) {
	rows, err := r.db.Query(ctx, `
		SELECT price, mileage, source, title_status, vin, url, dealer_name, is_cpo, fetched_at
		FROM market_listings WHERE valuation_id = $1 ORDER BY id`,
		string(valuationID),
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query market listings")
	}
	defer rows.Close()

	var out []valuation.MarketListing
	for rows.Next() {
		var (
			l         valuation.MarketListing
			mileage   *int
			fetchedAt *time.Time
		)
		if err := rows.Scan(&l.Price, &mileage, &l.Source, &l.TitleStatus,
			&l.VIN, &l.URL, &l.DealerName, &l.IsCPO, &fetchedAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan listing row")
		}
		l.Mileage = mileage
		if fetchedAt != nil {
			l.FetchedAt = *fetchedAt
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "listing row iteration failed")
	}
	return out, nil
}
