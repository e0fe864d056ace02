package abandoned

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"abandoned-tracker/internal/domain"
)

const (
	// maxBatchCarts is the hard cap on one flat-batch payload.
	maxBatchCarts = 10000

	// sellerConcurrency bounds the fan-out while processing seller groups.
	sellerConcurrency = 5

	// microBatchSize caps one bulk write per seller.
	microBatchSize = 500
)

type FlatBatchPayload struct {
	BatchID      string     `json:"batchId"`
	Timestamp    time.Time  `json:"timestamp"`
	TotalCarts   int        `json:"totalCarts"`
	TotalSellers int        `json:"totalSellers"`
	Carts        []FlatCart `json:"carts"`
}

type FlatCart struct {
	SellerID    int                  `json:"sellerId"`
	CartID      string               `json:"cartId"`
	UserID      int                  `json:"userId,omitempty"`
	Email       string               `json:"email"`
	FullName    string               `json:"fullName,omitempty"`
	Platform    string               `json:"platform"`
	Products    []domain.ProductItem `json:"products"`
	TotalAmount float64              `json:"totalAmount"`
	Currency    string               `json:"currency"`
	AbandonedAt time.Time            `json:"abandonedAt"`
	LastUpdated time.Time            `json:"lastUpdated"`
}

type SellerStats struct {
	Processed int `json:"processed"`
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Errors    int `json:"errors"`
}

type FlatBatchResult struct {
	Message        string              `json:"message"`
	BatchID        string              `json:"batchId"`
	TotalProcessed int                 `json:"totalProcessed"`
	TotalCreated   int                 `json:"totalCreated"`
	TotalUpdated   int                 `json:"totalUpdated"`
	TotalErrors    int                 `json:"totalErrors"`
	ExecutionTime  string              `json:"executionTime"`
	SellerStats    map[int]SellerStats `json:"sellerStats"`
}

func validateFlatBatch(p FlatBatchPayload) domain.ValidationErrors {
	if len(p.Carts) == 0 {
		return domain.ValidationErrors{{Field: "carts", Message: "Carts array is required and cannot be empty"}}
	}
	if len(p.Carts) > maxBatchCarts {
		return domain.ValidationErrors{{Field: "carts", Message: fmt.Sprintf("Batch size cannot exceed %d carts", maxBatchCarts)}}
	}
	missing := 0
	for _, cart := range p.Carts {
		if cart.SellerID == 0 {
			missing++
		}
	}
	if missing > 0 {
		return domain.ValidationErrors{{Field: "carts", Message: fmt.Sprintf("%d carts are missing sellerId", missing)}}
	}
	return nil
}

type sellerOutcome struct {
	stats    SellerStats
	newCarts []FlatCart
	err      error
}

// ProcessFlatBatch ingests a flat list of abandoned carts spanning many
// sellers. Sellers are processed in chunks of sellerConcurrency, each chunk
// concurrently with per-seller failure isolation; within one seller,
// micro-batches run sequentially as single unordered bulk upserts. Metrics
// are derived once per seller from the carts that were actually created.
func (s *Service) ProcessFlatBatch(ctx context.Context, p FlatBatchPayload) (*FlatBatchResult, error) {
	if errs := validateFlatBatch(p); errs != nil {
		return nil, errs
	}

	start := time.Now()

	batchID := p.BatchID
	if batchID == "" {
		batchID = uuid.NewString()
	}

	// Stable grouping, one pass.
	bySeller := make(map[int][]FlatCart)
	order := make([]int, 0)
	for _, cart := range p.Carts {
		if _, ok := bySeller[cart.SellerID]; !ok {
			order = append(order, cart.SellerID)
		}
		bySeller[cart.SellerID] = append(bySeller[cart.SellerID], cart)
	}

	s.logger.Printf("processing flat batch %s: %d carts across %d sellers", batchID, len(p.Carts), len(order))

	result := &FlatBatchResult{
		Message:     "Flat batch processed successfully",
		BatchID:     batchID,
		SellerStats: make(map[int]SellerStats, len(order)),
	}
	newCartsBySeller := make(map[int][]FlatCart)

	for _, chunk := range chunkInts(order, sellerConcurrency) {
		outcomes := make([]sellerOutcome, len(chunk))
		var wg sync.WaitGroup
		for i, sellerID := range chunk {
			wg.Add(1)
			go func(i, sellerID int) {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						outcomes[i] = sellerOutcome{err: fmt.Errorf("seller %d: panic: %v", sellerID, r)}
					}
				}()
				stats, newCarts, err := s.processSellerCarts(ctx, sellerID, bySeller[sellerID])
				outcomes[i] = sellerOutcome{stats: stats, newCarts: newCarts, err: err}
			}(i, sellerID)
		}
		wg.Wait()

		for i, sellerID := range chunk {
			oc := outcomes[i]
			if oc.err != nil {
				s.logger.Printf("failed to process seller %d: %v", sellerID, oc.err)
				n := len(bySeller[sellerID])
				result.SellerStats[sellerID] = SellerStats{Errors: n}
				result.TotalErrors += n
				continue
			}
			result.SellerStats[sellerID] = oc.stats
			result.TotalProcessed += oc.stats.Processed
			result.TotalCreated += oc.stats.Created
			result.TotalUpdated += oc.stats.Updated
			result.TotalErrors += oc.stats.Errors
			if len(oc.newCarts) > 0 {
				newCartsBySeller[sellerID] = oc.newCarts
			}
		}
	}

	s.processFlatBatchMetrics(ctx, order, newCartsBySeller, p.Timestamp)

	result.ExecutionTime = fmt.Sprintf("%dms", time.Since(start).Milliseconds())

	s.logger.Printf("flat batch %s completed: processed=%d created=%d updated=%d errors=%d in %s",
		batchID, result.TotalProcessed, result.TotalCreated, result.TotalUpdated, result.TotalErrors, result.ExecutionTime)

	return result, nil
}

// processSellerCarts runs one seller's carts through sequential
// micro-batches, reporting stats and the carts that created new sessions.
func (s *Service) processSellerCarts(ctx context.Context, sellerID int, carts []FlatCart) (SellerStats, []FlatCart, error) {
	var stats SellerStats
	var newCarts []FlatCart

	for _, micro := range chunkCarts(carts, microBatchSize) {
		now := time.Now().UTC()
		sessions := make([]domain.AbandonedSession, 0, len(micro))
		for _, cart := range micro {
			sessions = append(sessions, flatCartSession(sellerID, cart, now))
		}

		res, err := s.sessions.BulkUpsertCarts(ctx, sessions)
		if err != nil {
			if ctx.Err() != nil {
				return stats, newCarts, ctx.Err()
			}
			s.logger.Printf("bulk write for seller %d: %v", sellerID, err)
			stats.Errors += len(micro)
			continue
		}

		stats.Processed += len(micro)
		stats.Created += int(res.Created)
		stats.Updated += int(res.Modified)
		for _, idx := range res.CreatedIndexes {
			if idx >= 0 && idx < len(micro) {
				newCarts = append(newCarts, micro[idx])
			}
		}
	}

	return stats, newCarts, nil
}

// processFlatBatchMetrics issues one aggregate increment per seller that
// produced new sessions; refreshed carts contribute nothing. Amounts are
// summed as decimals and rounded half-up to 2 places before the write.
func (s *Service) processFlatBatchMetrics(ctx context.Context, order []int, newCartsBySeller map[int][]FlatCart, ts time.Time) {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	date := domain.DateKey(ts)

	for _, sellerID := range order {
		newCarts := newCartsBySeller[sellerID]
		if len(newCarts) == 0 {
			continue
		}

		total := decimal.Zero
		for _, cart := range newCarts {
			total = total.Add(decimal.NewFromFloat(cart.TotalAmount))
		}
		amount, _ := total.Round(2).Float64()

		if err := s.metrics.IncrementBatchAggregate(ctx, sellerID, date, len(newCarts), amount); err != nil {
			s.logger.Printf("batch metrics for seller %d: %v", sellerID, err)
			continue
		}
	}
}

func flatCartSession(sellerID int, cart FlatCart, now time.Time) domain.AbandonedSession {
	customerType := domain.CustomerTypeGuest
	if cart.UserID != 0 {
		customerType = domain.CustomerTypeRegistered
	}
	cartID := cart.CartID
	lastUpdated := cart.LastUpdated

	return domain.AbandonedSession{
		SellerID:    sellerID,
		SessionType: domain.SessionTypeCartOriginated,
		Platform:    cart.Platform,
		Email:       cart.Email,
		CustomerInfo: domain.CustomerInfo{
			Type:     customerType,
			Email:    cart.Email,
			FullName: cart.FullName,
			UserID:   cart.UserID,
		},
		Identifiers: domain.SessionIdentifiers{
			CartID: &cartID,
		},
		Products:      cart.Products,
		ProductsCount: len(cart.Products),
		TotalAmount:   cart.TotalAmount,
		Currency:      cart.Currency,
		Status: domain.SessionStatus{
			Cart: domain.StringPtr(domain.CartStatusAbandoned),
		},
		Events: []domain.SessionEvent{{
			Type:      "CART_ABANDONED_BATCH",
			Timestamp: cart.AbandonedAt,
			Details: map[string]interface{}{
				"batchProcessed":    true,
				"originalTimestamp": cart.AbandonedAt,
			},
		}},
		Date:          domain.DateKey(cart.AbandonedAt),
		CreatedAt:     now,
		UpdatedAt:     now,
		CartUpdatedAt: &lastUpdated,
	}
}

func chunkInts(values []int, size int) [][]int {
	var chunks [][]int
	for size < len(values) {
		chunks = append(chunks, values[:size])
		values = values[size:]
	}
	if len(values) > 0 {
		chunks = append(chunks, values)
	}
	return chunks
}

func chunkCarts(carts []FlatCart, size int) [][]FlatCart {
	var chunks [][]FlatCart
	for size < len(carts) {
		chunks = append(chunks, carts[:size])
		carts = carts[size:]
	}
	if len(carts) > 0 {
		chunks = append(chunks, carts)
	}
	return chunks
}
