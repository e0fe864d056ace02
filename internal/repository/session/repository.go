package session

import (
	"context"
	"time"

	"abandoned-tracker/internal/domain"
)

// Patch is a field-presence update for one session document. Only non-nil
// members are written, so concurrent writers converge regardless of order
// except for the product snapshot fields, which are last-write-wins.
type Patch struct {
	Products      *[]domain.ProductItem
	ProductsCount *int
	TotalAmount   *float64

	// CartID backfills the cart identifier onto a checkout session. The
	// promotion is one-way; it never clears an existing value.
	CartID *string

	CartStatus     *string
	CheckoutStatus *string

	UpdatedAt         time.Time
	CartUpdatedAt     *time.Time
	CheckoutUpdatedAt *time.Time
}

// BulkUpsertResult reports one unordered micro-batch bulk write.
// CreatedIndexes are positions in the input slice that produced new
// documents, recovered from the store's upsert index mapping.
type BulkUpsertResult struct {
	Matched        int64
	Modified       int64
	Created        int64
	CreatedIndexes []int
}

type Repository interface {
	Insert(ctx context.Context, s *domain.AbandonedSession) error

	FindByCartID(ctx context.Context, cartID string) (*domain.AbandonedSession, error)
	FindByCheckoutULID(ctx context.Context, checkoutULID string) (*domain.AbandonedSession, error)

	UpdateByCartID(ctx context.Context, cartID string, patch Patch) (bool, error)
	UpdateByCheckoutULID(ctx context.Context, checkoutULID string, patch Patch) (bool, error)

	AppendEventByCartID(ctx context.Context, cartID string, ev domain.SessionEvent) error
	AppendEventByCheckoutULID(ctx context.Context, checkoutULID string, ev domain.SessionEvent) (bool, error)

	HasEventByCartID(ctx context.Context, cartID, eventType string) (bool, error)
	HasEventByCheckoutULID(ctx context.Context, checkoutULID, eventType string) (bool, error)

	BulkUpsertCarts(ctx context.Context, sessions []domain.AbandonedSession) (BulkUpsertResult, error)
}
