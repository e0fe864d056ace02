package metrics

import (
	"context"

	"abandoned-tracker/internal/domain"
)

// Repository maintains the per-seller per-day counter rows. All increments
// are additive and commutative per (sellerId, date) key.
type Repository interface {
	// IncrementAbandonment adds one abandonment and its amount to the
	// seller-day row, creating the row if absent.
	IncrementAbandonment(ctx context.Context, sellerID int, date, category string, amount float64) error

	// IncrementRecovery resolves the session by identifier to obtain its
	// amount and date, then moves the counters from abandoned to recovered.
	// Silent no-op when the session cannot be resolved.
	IncrementRecovery(ctx context.Context, sellerID int, category, sessionID string) error

	// ProcessBatch folds many operations into one write per distinct
	// seller-day pair.
	ProcessBatch(ctx context.Context, ops []domain.MetricOperation) error

	// IncrementBatchAggregate records `count` new cart abandonments worth
	// `totalAmount` in a single write; used by flat-batch ingestion.
	IncrementBatchAggregate(ctx context.Context, sellerID int, date string, count int, totalAmount float64) error
}
