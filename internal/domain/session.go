package domain

import "time"

// Session types.
const (
	SessionTypeCartOriginated = "CART_ORIGINATED"
	SessionTypeCheckoutDirect = "CHECKOUT_DIRECT"
)

// Cart status values.
const (
	CartStatusActive    = "ACTIVE"
	CartStatusAbandoned = "ABANDONED"
	CartStatusRecovered = "RECOVERED"
)

// Checkout status values.
const (
	CheckoutStatusStarted   = "STARTED"
	CheckoutStatusAbandoned = "ABANDONED"
	CheckoutStatusPaid      = "PAID"
	CheckoutStatusRecovered = "RECOVERED"
)

// Customer types.
const (
	CustomerTypeRegistered = "registered"
	CustomerTypeGuest      = "guest"
)

// AbandonedSession is one abandoned cart or checkout flow. A session is
// addressed by cart id or checkout ulid; exactly the relevant identifier is
// set at creation, and a checkout session may acquire a cart id later.
type AbandonedSession struct {
	SellerID      int                `bson:"sellerId" json:"sellerId"`
	SessionType   string             `bson:"sessionType" json:"sessionType"`
	Platform      string             `bson:"platform" json:"platform"`
	Email         string             `bson:"email" json:"email"`
	Identifiers   SessionIdentifiers `bson:"identifiers" json:"identifiers"`
	CustomerInfo  CustomerInfo       `bson:"customerInfo" json:"customerInfo"`
	Products      []ProductItem      `bson:"products" json:"products"`
	ProductsCount int                `bson:"productsCount" json:"productsCount"`
	TotalAmount   float64            `bson:"totalAmount" json:"totalAmount"`
	Currency      string             `bson:"currency" json:"currency"`
	Status        SessionStatus      `bson:"status" json:"status"`
	Events        []SessionEvent     `bson:"events" json:"events"`

	// Date is the day key of the triggering event, the metrics partition key.
	Date string `bson:"date" json:"date"`

	CreatedAt         time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time  `bson:"updatedAt" json:"updatedAt"`
	CartUpdatedAt     *time.Time `bson:"cartUpdatedAt,omitempty" json:"cartUpdatedAt,omitempty"`
	CheckoutUpdatedAt *time.Time `bson:"checkoutUpdatedAt,omitempty" json:"checkoutUpdatedAt,omitempty"`
}

type SessionIdentifiers struct {
	CartID       *string `bson:"cartId" json:"cartId"`
	CheckoutULID *string `bson:"checkoutUlid" json:"checkoutUlid"`
}

type CustomerInfo struct {
	Type      string               `bson:"type" json:"type"`
	Email     string               `bson:"email" json:"email"`
	Phone     string               `bson:"phone,omitempty" json:"phone,omitempty"`
	FullName  string               `bson:"fullName,omitempty" json:"fullName,omitempty"`
	UserID    int                  `bson:"userId,omitempty" json:"userId,omitempty"`
	Marketing MarketingPreferences `bson:"marketing,omitempty" json:"marketing,omitempty"`
}

type MarketingPreferences struct {
	Email *ChannelPreference `bson:"email,omitempty" json:"email,omitempty"`
	SMS   *ChannelPreference `bson:"sms,omitempty" json:"sms,omitempty"`
}

type ChannelPreference struct {
	Subscribed bool `bson:"subscribed" json:"subscribed"`
}

type SessionStatus struct {
	Cart     *string `bson:"cart" json:"cart"`
	Checkout *string `bson:"checkout" json:"checkout"`
}

// SessionEvent is a timestamped fact appended to a session's history.
// The de-duplication key is (Type, Timestamp) at millisecond resolution.
type SessionEvent struct {
	Type      string                 `bson:"type" json:"type"`
	Timestamp time.Time              `bson:"timestamp" json:"timestamp"`
	Details   map[string]interface{} `bson:"details,omitempty" json:"details,omitempty"`
}

// Matches reports whether two events collide on the de-duplication key.
func (e SessionEvent) Matches(other SessionEvent) bool {
	return e.Type == other.Type &&
		e.Timestamp.Truncate(time.Millisecond).Equal(other.Timestamp.Truncate(time.Millisecond))
}

type ProductItem struct {
	ProductID  string            `bson:"productId" json:"productId"`
	SKU        string            `bson:"sku" json:"sku"`
	Name       string            `bson:"name" json:"name"`
	Quantity   int               `bson:"quantity" json:"quantity"`
	UnitPrice  float64           `bson:"unitPrice" json:"unitPrice"`
	TotalPrice float64           `bson:"totalPrice" json:"totalPrice"`
	ImageURL   string            `bson:"imageUrl,omitempty" json:"imageUrl,omitempty"`
	Attributes map[string]string `bson:"attributes,omitempty" json:"attributes,omitempty"`
	AddedAt    *time.Time        `bson:"addedAt,omitempty" json:"addedAt,omitempty"`
}

// DateKey formats a timestamp as the per-day metrics partition key.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func StringPtr(v string) *string {
	return &v
}
