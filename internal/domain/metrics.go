package domain

import "time"

// Metric operation types.
const (
	MetricAbandonment = "abandonment"
	MetricRecovery    = "recovery"
)

// Metric categories, the two funnel dimensions tracked per seller-day.
const (
	CategoryCart     = "cart"
	CategoryCheckout = "checkout"
)

// AbandonedMetrics is the aggregate counter document keyed by (sellerId, date).
// It is derived and eventually consistent with session status transitions.
type AbandonedMetrics struct {
	SellerID      int             `bson:"sellerId" json:"sellerId"`
	Date          string          `bson:"date" json:"date"`
	Cart          CategoryMetrics `bson:"cart" json:"cart"`
	Checkout      CategoryMetrics `bson:"checkout" json:"checkout"`
	Totals        MetricTotals    `bson:"totals" json:"totals"`
	LastUpdatedAt time.Time       `bson:"lastUpdatedAt" json:"lastUpdatedAt"`
}

type CategoryMetrics struct {
	Abandoned       int64   `bson:"abandoned" json:"abandoned"`
	AbandonedAmount float64 `bson:"abandonedAmount" json:"abandonedAmount"`
	Recovered       int64   `bson:"recovered" json:"recovered"`
	RecoveredAmount float64 `bson:"recoveredAmount" json:"recoveredAmount"`
}

type MetricTotals struct {
	TotalAbandonedAmount float64 `bson:"totalAbandonedAmount" json:"totalAbandonedAmount"`
	TotalRecoveredAmount float64 `bson:"totalRecoveredAmount" json:"totalRecoveredAmount"`
}

// MetricOperation is an in-memory counter delta queued for the metrics
// scheduler. It is never persisted as-is.
type MetricOperation struct {
	SellerID  int
	Date      string
	Type      string
	Category  string
	Amount    float64
	SessionID string
}
