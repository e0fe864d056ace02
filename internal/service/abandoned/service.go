package abandoned

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"abandoned-tracker/internal/domain"
	metricsrepo "abandoned-tracker/internal/repository/metrics"
	sessionrepo "abandoned-tracker/internal/repository/session"
)

// Service is the session merge engine: it translates inbound lifecycle
// events into create-or-merge decisions against session storage,
// guaranteeing idempotence per (identifier, event type, event timestamp).
type Service struct {
	sessions sessionStore
	metrics  metricsStore
	queue    metricsQueue
	logger   *log.Logger

	retryAttempts  int
	retryBaseDelay time.Duration
}

type sessionStore interface {
	Insert(ctx context.Context, s *domain.AbandonedSession) error
	FindByCartID(ctx context.Context, cartID string) (*domain.AbandonedSession, error)
	FindByCheckoutULID(ctx context.Context, checkoutULID string) (*domain.AbandonedSession, error)
	UpdateByCartID(ctx context.Context, cartID string, patch sessionrepo.Patch) (bool, error)
	UpdateByCheckoutULID(ctx context.Context, checkoutULID string, patch sessionrepo.Patch) (bool, error)
	AppendEventByCartID(ctx context.Context, cartID string, ev domain.SessionEvent) error
	AppendEventByCheckoutULID(ctx context.Context, checkoutULID string, ev domain.SessionEvent) (bool, error)
	HasEventByCartID(ctx context.Context, cartID, eventType string) (bool, error)
	HasEventByCheckoutULID(ctx context.Context, checkoutULID, eventType string) (bool, error)
	BulkUpsertCarts(ctx context.Context, sessions []domain.AbandonedSession) (sessionrepo.BulkUpsertResult, error)
}

type metricsStore interface {
	IncrementBatchAggregate(ctx context.Context, sellerID int, date string, count int, totalAmount float64) error
}

// metricsQueue receives fire-and-forget counter deltas; the request path
// never waits on metric persistence.
type metricsQueue interface {
	Add(op domain.MetricOperation)
}

func New(sessions sessionrepo.Repository, metrics metricsrepo.Repository, queue metricsQueue, logger *log.Logger) *Service {
	return &Service{
		sessions:       sessions,
		metrics:        metrics,
		queue:          queue,
		logger:         logger,
		retryAttempts:  defaultRetryAttempts,
		retryBaseDelay: defaultRetryBaseDelay,
	}
}

type EventPayload struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

func (e EventPayload) toDomain() domain.SessionEvent {
	return domain.SessionEvent{Type: e.Type, Timestamp: e.Timestamp, Details: e.Details}
}

type CustomerPayload struct {
	Type      string                       `json:"type,omitempty"`
	UserID    int                          `json:"userId,omitempty"`
	Email     string                       `json:"email"`
	FullName  string                       `json:"fullName,omitempty"`
	Phone     string                       `json:"phone,omitempty"`
	Marketing domain.MarketingPreferences `json:"marketing,omitempty"`
}

type CartPayload struct {
	Platform      string               `json:"platform"`
	SessionType   string               `json:"sessionType"`
	CustomerInfo  CustomerPayload      `json:"customerInfo"`
	Products      []domain.ProductItem `json:"products"`
	ProductsCount int                  `json:"productsCount"`
	TotalAmount   float64              `json:"totalAmount"`
	Currency      string               `json:"currency"`
	Identifiers   struct {
		CartID string `json:"cartId"`
	} `json:"identifiers"`
	Event EventPayload `json:"event"`
}

type UpdateCartPayload struct {
	Products      []domain.ProductItem `json:"products"`
	ProductsCount int                  `json:"productsCount"`
	TotalAmount   float64              `json:"totalAmount"`
	Event         EventPayload         `json:"event"`
}

type CheckoutPayload struct {
	Platform     string               `json:"platform"`
	SessionType  string               `json:"sessionType"`
	CustomerInfo CustomerPayload      `json:"customerInfo"`
	Products     []domain.ProductItem `json:"products,omitempty"`
	TotalAmount  float64              `json:"totalAmount"`
	Currency     string               `json:"currency"`
	Identifiers  struct {
		CartID       *string `json:"cartId"`
		CheckoutULID string  `json:"checkoutUlid"`
	} `json:"identifiers"`
	Event EventPayload `json:"event"`
}

type UpdateCheckoutPayload struct {
	CartID      *string              `json:"cartId,omitempty"`
	Products    []domain.ProductItem `json:"products,omitempty"`
	TotalAmount float64              `json:"totalAmount,omitempty"`
	Event       *EventPayload        `json:"event,omitempty"`
}

type RecoverPayload struct {
	Type  string        `json:"type"`
	ID    string        `json:"id"`
	Event *EventPayload `json:"event"`
}

type CartResult struct {
	Message       string `json:"message"`
	CartID        string `json:"cartId"`
	AlreadyExists bool   `json:"alreadyExists"`
}

type UpdateCartResult struct {
	CartID  string `json:"cartId"`
	Updated bool   `json:"updated"`
}

type CheckoutResult struct {
	Message       string `json:"message"`
	CheckoutULID  string `json:"checkoutUlid"`
	AlreadyExists bool   `json:"alreadyExists"`
}

type UpdateCheckoutResult struct {
	CheckoutULID string `json:"checkoutUlid"`
	Updated      bool   `json:"updated"`
}

type RecoverResult struct {
	Message          string `json:"message"`
	ID               string `json:"id"`
	Recovered        bool   `json:"recovered"`
	AlreadyRecovered bool   `json:"alreadyRecovered,omitempty"`
}

func validateCartPayload(p CartPayload) domain.ValidationErrors {
	var errs domain.ValidationErrors
	if strings.TrimSpace(p.Identifiers.CartID) == "" {
		errs = append(errs, domain.FieldError{Field: "cartId", Message: "CartId is required and cannot be empty"})
	}
	if strings.TrimSpace(p.CustomerInfo.Email) == "" {
		errs = append(errs, domain.FieldError{Field: "email", Message: "Customer email is required"})
	}
	if len(p.Products) == 0 {
		errs = append(errs, domain.FieldError{Field: "products", Message: "Products array cannot be empty"})
	}
	if p.TotalAmount <= 0 {
		errs = append(errs, domain.FieldError{Field: "totalAmount", Message: "Total amount must be greater than 0"})
	}
	return errs
}

func validateCheckoutPayload(p CheckoutPayload) domain.ValidationErrors {
	var errs domain.ValidationErrors
	if strings.TrimSpace(p.Identifiers.CheckoutULID) == "" {
		errs = append(errs, domain.FieldError{Field: "checkoutUlid", Message: "CheckoutUlid is required"})
	}
	if strings.TrimSpace(p.CustomerInfo.Email) == "" {
		errs = append(errs, domain.FieldError{Field: "email", Message: "Customer email is required"})
	}
	if p.TotalAmount <= 0 {
		errs = append(errs, domain.FieldError{Field: "totalAmount", Message: "Total amount must be greater than 0"})
	}
	return errs
}

// CreateOrMergeCart records a cart abandonment. Merging is idempotent: a
// repeated event of the same type is never appended twice, and the product
// snapshot is refreshed last-write-wins on every call.
func (s *Service) CreateOrMergeCart(ctx context.Context, sellerID int, p CartPayload) (*CartResult, error) {
	if errs := validateCartPayload(p); errs != nil {
		return nil, errs
	}

	cartID := p.Identifiers.CartID
	now := p.Event.Timestamp

	var wasNew, alreadyHasEvent bool
	err := s.withRetry(ctx, func(ctx context.Context) error {
		existing, err := s.sessions.FindByCartID(ctx, cartID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		if existing != nil {
			patch := sessionrepo.Patch{
				Products:      &p.Products,
				ProductsCount: &p.ProductsCount,
				TotalAmount:   &p.TotalAmount,
				UpdatedAt:     now,
				CartUpdatedAt: &now,
			}
			if _, err := s.sessions.UpdateByCartID(ctx, cartID, patch); err != nil {
				return err
			}
			has, err := s.sessions.HasEventByCartID(ctx, cartID, p.Event.Type)
			if err != nil {
				return err
			}
			if !has {
				if err := s.sessions.AppendEventByCartID(ctx, cartID, p.Event.toDomain()); err != nil {
					return err
				}
			}
			wasNew, alreadyHasEvent = false, has
			return nil
		}

		sess := domain.AbandonedSession{
			SellerID:    sellerID,
			SessionType: p.SessionType,
			Platform:    p.Platform,
			Email:       p.CustomerInfo.Email,
			CustomerInfo: domain.CustomerInfo{
				Type:      domain.CustomerTypeRegistered,
				Email:     p.CustomerInfo.Email,
				FullName:  p.CustomerInfo.FullName,
				UserID:    p.CustomerInfo.UserID,
				Marketing: p.CustomerInfo.Marketing,
			},
			Identifiers: domain.SessionIdentifiers{
				CartID:       &cartID,
				CheckoutULID: nil,
			},
			Products:      p.Products,
			ProductsCount: p.ProductsCount,
			TotalAmount:   p.TotalAmount,
			Currency:      p.Currency,
			Status: domain.SessionStatus{
				Cart: domain.StringPtr(domain.CartStatusAbandoned),
			},
			Events:        []domain.SessionEvent{p.Event.toDomain()},
			Date:          domain.DateKey(p.Event.Timestamp),
			CreatedAt:     now,
			UpdatedAt:     now,
			CartUpdatedAt: &now,
		}
		if err := s.sessions.Insert(ctx, &sess); err != nil {
			return err
		}
		wasNew, alreadyHasEvent = true, false
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to process cart abandonment: %w", err)
	}

	if wasNew {
		s.queue.Add(domain.MetricOperation{
			SellerID: sellerID,
			Date:     domain.DateKey(p.Event.Timestamp),
			Type:     domain.MetricAbandonment,
			Category: domain.CategoryCart,
			Amount:   p.TotalAmount,
		})
	}

	message := "New cart session created"
	if !wasNew {
		if alreadyHasEvent {
			message = "Session updated (event already existed)"
		} else {
			message = "Session updated and event added"
		}
	}
	return &CartResult{Message: message, CartID: cartID, AlreadyExists: !wasNew}, nil
}

// UpdateCart refreshes the product snapshot of an existing cart session and
// appends the update event. It never creates a session.
func (s *Service) UpdateCart(ctx context.Context, sellerID int, cartID string, p UpdateCartPayload) (*UpdateCartResult, error) {
	var errs domain.ValidationErrors
	if strings.TrimSpace(cartID) == "" {
		errs = append(errs, domain.FieldError{Field: "cartId", Message: "CartId is required"})
	}
	if len(p.Products) == 0 {
		errs = append(errs, domain.FieldError{Field: "products", Message: "Products array cannot be empty"})
	}
	if errs != nil {
		return nil, errs
	}

	now := p.Event.Timestamp

	var matched bool
	err := s.withRetry(ctx, func(ctx context.Context) error {
		patch := sessionrepo.Patch{
			Products:      &p.Products,
			ProductsCount: &p.ProductsCount,
			TotalAmount:   &p.TotalAmount,
			UpdatedAt:     now,
			CartUpdatedAt: &now,
		}
		var err error
		matched, err = s.sessions.UpdateByCartID(ctx, cartID, patch)
		if err != nil {
			return err
		}
		if matched {
			return s.sessions.AppendEventByCartID(ctx, cartID, p.Event.toDomain())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update cart: %w", err)
	}

	return &UpdateCartResult{CartID: cartID, Updated: matched}, nil
}

// CreateOrMergeCheckout records a checkout abandonment keyed by checkout
// ulid. On merge an incoming cart id is backfilled onto the session,
// promoting it from checkout-only to cart-linked.
func (s *Service) CreateOrMergeCheckout(ctx context.Context, sellerID int, p CheckoutPayload) (*CheckoutResult, error) {
	if errs := validateCheckoutPayload(p); errs != nil {
		return nil, errs
	}

	checkoutULID := p.Identifiers.CheckoutULID
	now := p.Event.Timestamp

	var wasNew bool
	err := s.withRetry(ctx, func(ctx context.Context) error {
		existing, err := s.sessions.FindByCheckoutULID(ctx, checkoutULID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		if existing != nil {
			patch := sessionrepo.Patch{UpdatedAt: now}
			if len(p.Products) > 0 {
				count := len(p.Products)
				patch.Products = &p.Products
				patch.ProductsCount = &count
				patch.TotalAmount = &p.TotalAmount
			}
			if p.Identifiers.CartID != nil && *p.Identifiers.CartID != "" {
				patch.CartID = p.Identifiers.CartID
			}
			if _, err := s.sessions.UpdateByCheckoutULID(ctx, checkoutULID, patch); err != nil {
				return err
			}
			if _, err := s.sessions.AppendEventByCheckoutULID(ctx, checkoutULID, p.Event.toDomain()); err != nil {
				return err
			}
			wasNew = false
			return nil
		}

		customerType := p.CustomerInfo.Type
		if customerType == "" {
			customerType = domain.CustomerTypeGuest
		}
		sess := domain.AbandonedSession{
			SellerID:    sellerID,
			SessionType: p.SessionType,
			Platform:    p.Platform,
			Email:       p.CustomerInfo.Email,
			CustomerInfo: domain.CustomerInfo{
				Type:      customerType,
				Email:     p.CustomerInfo.Email,
				FullName:  p.CustomerInfo.FullName,
				Marketing: p.CustomerInfo.Marketing,
			},
			Identifiers: domain.SessionIdentifiers{
				CartID:       p.Identifiers.CartID,
				CheckoutULID: &checkoutULID,
			},
			Products:      p.Products,
			ProductsCount: len(p.Products),
			TotalAmount:   p.TotalAmount,
			Currency:      p.Currency,
			Status: domain.SessionStatus{
				Checkout: domain.StringPtr(domain.CheckoutStatusAbandoned),
			},
			Events:    []domain.SessionEvent{p.Event.toDomain()},
			Date:      domain.DateKey(p.Event.Timestamp),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.sessions.Insert(ctx, &sess); err != nil {
			return err
		}
		wasNew = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to process checkout abandonment: %w", err)
	}

	if wasNew {
		s.queue.Add(domain.MetricOperation{
			SellerID: sellerID,
			Date:     domain.DateKey(p.Event.Timestamp),
			Type:     domain.MetricAbandonment,
			Category: domain.CategoryCheckout,
			Amount:   p.TotalAmount,
		})
	}

	message := "New checkout session created"
	if !wasNew {
		message = "Checkout session updated"
	}
	return &CheckoutResult{Message: message, CheckoutULID: checkoutULID, AlreadyExists: !wasNew}, nil
}

// UpdateCheckout applies a partial update: only the fields present in the
// payload are written, and the event is appended only when supplied.
func (s *Service) UpdateCheckout(ctx context.Context, sellerID int, checkoutULID string, p UpdateCheckoutPayload) (*UpdateCheckoutResult, error) {
	if strings.TrimSpace(checkoutULID) == "" {
		return nil, domain.ValidationErrors{{Field: "checkoutUlid", Message: "CheckoutUlid is required"}}
	}

	now := time.Now().UTC()
	if p.Event != nil && !p.Event.Timestamp.IsZero() {
		now = p.Event.Timestamp
	}

	var matched bool
	err := s.withRetry(ctx, func(ctx context.Context) error {
		patch := sessionrepo.Patch{UpdatedAt: now}
		if p.CartID != nil && *p.CartID != "" {
			patch.CartID = p.CartID
		}
		if len(p.Products) > 0 {
			count := len(p.Products)
			patch.Products = &p.Products
			patch.ProductsCount = &count
			patch.TotalAmount = &p.TotalAmount
		}
		var err error
		matched, err = s.sessions.UpdateByCheckoutULID(ctx, checkoutULID, patch)
		if err != nil {
			return err
		}
		if matched && p.Event != nil {
			if _, err := s.sessions.AppendEventByCheckoutULID(ctx, checkoutULID, p.Event.toDomain()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update checkout: %w", err)
	}

	return &UpdateCheckoutResult{CheckoutULID: checkoutULID, Updated: matched}, nil
}

// MarkAsRecovered flips the session's cart or checkout status to RECOVERED
// and emits the recovery metric. A session whose recovery event is already
// recorded is reported as already recovered without mutating anything.
func (s *Service) MarkAsRecovered(ctx context.Context, sellerID int, p RecoverPayload) (*RecoverResult, error) {
	var errs domain.ValidationErrors
	if p.Type != domain.CategoryCart && p.Type != domain.CategoryCheckout {
		errs = append(errs, domain.FieldError{Field: "type", Message: `Type must be either "cart" or "checkout"`})
	}
	if strings.TrimSpace(p.ID) == "" {
		errs = append(errs, domain.FieldError{Field: "id", Message: "Id is required"})
	}
	if p.Event == nil {
		errs = append(errs, domain.FieldError{Field: "event", Message: "Event is required"})
	}
	if errs != nil {
		return nil, errs
	}

	isCart := p.Type == domain.CategoryCart
	now := p.Event.Timestamp

	var alreadyRecovered bool
	var snapshot *domain.AbandonedSession
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var has bool
		var err error
		if isCart {
			has, err = s.sessions.HasEventByCartID(ctx, p.ID, p.Event.Type)
		} else {
			has, err = s.sessions.HasEventByCheckoutULID(ctx, p.ID, p.Event.Type)
		}
		if err != nil {
			return err
		}
		if has {
			alreadyRecovered, snapshot = true, nil
			return nil
		}

		var sess *domain.AbandonedSession
		if isCart {
			sess, err = s.sessions.FindByCartID(ctx, p.ID)
		} else {
			sess, err = s.sessions.FindByCheckoutULID(ctx, p.ID)
		}
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("session not found for %s id %s: %w", p.Type, p.ID, domain.ErrNotFound)
			}
			return err
		}

		patch := sessionrepo.Patch{UpdatedAt: now}
		if isCart {
			status := domain.CartStatusRecovered
			patch.CartStatus = &status
			patch.CartUpdatedAt = &now
			if _, err := s.sessions.UpdateByCartID(ctx, p.ID, patch); err != nil {
				return err
			}
			if err := s.sessions.AppendEventByCartID(ctx, p.ID, p.Event.toDomain()); err != nil {
				return err
			}
		} else {
			status := domain.CheckoutStatusRecovered
			patch.CheckoutStatus = &status
			patch.CheckoutUpdatedAt = &now
			if _, err := s.sessions.UpdateByCheckoutULID(ctx, p.ID, patch); err != nil {
				return err
			}
			if _, err := s.sessions.AppendEventByCheckoutULID(ctx, p.ID, p.Event.toDomain()); err != nil {
				return err
			}
		}

		alreadyRecovered, snapshot = false, sess
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to mark session as recovered: %w", err)
	}

	if alreadyRecovered {
		return &RecoverResult{
			Message:          "Session was already recovered",
			ID:               p.ID,
			Recovered:        false,
			AlreadyRecovered: true,
		}, nil
	}

	if snapshot != nil {
		s.queue.Add(domain.MetricOperation{
			SellerID:  sellerID,
			Date:      snapshot.Date,
			Type:      domain.MetricRecovery,
			Category:  p.Type,
			Amount:    snapshot.TotalAmount,
			SessionID: p.ID,
		})
	}

	return &RecoverResult{Message: "Session marked as recovered successfully", ID: p.ID, Recovered: true}, nil
}
