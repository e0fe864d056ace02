package abandoned

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"abandoned-tracker/internal/domain"
	sessionrepo "abandoned-tracker/internal/repository/session"
)

func flatCarts(sellers, perSeller int, amount float64) []FlatCart {
	carts := make([]FlatCart, 0, sellers*perSeller)
	for s := 1; s <= sellers; s++ {
		for i := 0; i < perSeller; i++ {
			carts = append(carts, FlatCart{
				SellerID:    s,
				CartID:      fmt.Sprintf("cart-%d-%d", s, i),
				Email:       fmt.Sprintf("user%d@example.com", i),
				Platform:    "web",
				Products:    []domain.ProductItem{{ProductID: "p-1", Quantity: 1, UnitPrice: amount}},
				TotalAmount: amount,
				Currency:    "EUR",
				AbandonedAt: time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC),
				LastUpdated: time.Date(2026, 3, 14, 8, 5, 0, 0, time.UTC),
			})
		}
	}
	return carts
}

func allCreated(sessions []domain.AbandonedSession) (sessionrepo.BulkUpsertResult, error) {
	indexes := make([]int, len(sessions))
	for i := range sessions {
		indexes[i] = i
	}
	return sessionrepo.BulkUpsertResult{Created: int64(len(sessions)), CreatedIndexes: indexes}, nil
}

func allModified(sessions []domain.AbandonedSession) (sessionrepo.BulkUpsertResult, error) {
	n := int64(len(sessions))
	return sessionrepo.BulkUpsertResult{Matched: n, Modified: n}, nil
}

func TestProcessFlatBatchCreatesSessions(t *testing.T) {
	sessions := &stubSessions{bulkFn: allCreated}
	metrics := &stubMetrics{}
	svc := newTestService(sessions, metrics, &recordingQueue{})

	payload := FlatBatchPayload{
		BatchID:   "batch-1",
		Timestamp: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		Carts:     flatCarts(3, 400, 25.5),
	}
	result, err := svc.ProcessFlatBatch(context.Background(), payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TotalProcessed != 1200 || result.TotalCreated != 1200 || result.TotalErrors != 0 {
		t.Fatalf("unexpected totals: %+v", result)
	}
	if len(result.SellerStats) != 3 {
		t.Fatalf("expected stats for 3 sellers, got %d", len(result.SellerStats))
	}
	for sellerID, stats := range result.SellerStats {
		if stats.Created != 400 || stats.Processed != 400 {
			t.Fatalf("unexpected stats for seller %d: %+v", sellerID, stats)
		}
	}
	if len(metrics.aggregates) != 3 {
		t.Fatalf("expected 1 aggregate per seller, got %d", len(metrics.aggregates))
	}
	for _, agg := range metrics.aggregates {
		if agg.count != 400 || agg.totalAmount != 10200 || agg.date != "2026-03-14" {
			t.Fatalf("unexpected aggregate: %+v", agg)
		}
	}
}

func TestProcessFlatBatchRerunUpdates(t *testing.T) {
	sessions := &stubSessions{bulkFn: allModified}
	metrics := &stubMetrics{}
	svc := newTestService(sessions, metrics, &recordingQueue{})

	payload := FlatBatchPayload{Carts: flatCarts(3, 400, 25.5)}
	result, err := svc.ProcessFlatBatch(context.Background(), payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TotalUpdated != 1200 || result.TotalCreated != 0 {
		t.Fatalf("unexpected totals: %+v", result)
	}
	if result.BatchID == "" {
		t.Fatalf("expected a minted batch id")
	}
	if len(metrics.aggregates) != 0 {
		t.Fatalf("refreshed carts must not emit metrics, got %+v", metrics.aggregates)
	}
}

func TestProcessFlatBatchMicroBatches(t *testing.T) {
	sessions := &stubSessions{bulkFn: allCreated}
	svc := newTestService(sessions, &stubMetrics{}, &recordingQueue{})

	payload := FlatBatchPayload{Carts: flatCarts(1, 1200, 10)}
	if _, err := svc.ProcessFlatBatch(context.Background(), payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sessions.bulkCalls) != 3 {
		t.Fatalf("expected 3 bulk writes, got %d", len(sessions.bulkCalls))
	}
	sizes := []int{len(sessions.bulkCalls[0]), len(sessions.bulkCalls[1]), len(sessions.bulkCalls[2])}
	if sizes[0] != 500 || sizes[1] != 500 || sizes[2] != 200 {
		t.Fatalf("unexpected micro-batch sizes: %v", sizes)
	}
}

func TestProcessFlatBatchRejectsOversized(t *testing.T) {
	sessions := &stubSessions{}
	svc := newTestService(sessions, &stubMetrics{}, &recordingQueue{})

	payload := FlatBatchPayload{Carts: flatCarts(1, maxBatchCarts+1, 10)}
	_, err := svc.ProcessFlatBatch(context.Background(), payload)
	var verrs domain.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected validation errors, got %v", err)
	}
	if !strings.Contains(verrs.Error(), "cannot exceed 10000") {
		t.Fatalf("unexpected message: %q", verrs.Error())
	}
	if len(sessions.bulkCalls) != 0 {
		t.Fatalf("oversized batch must be rejected before any write, got %d calls", len(sessions.bulkCalls))
	}
}

func TestProcessFlatBatchMissingSellerID(t *testing.T) {
	carts := flatCarts(1, 3, 10)
	carts[0].SellerID = 0
	carts[2].SellerID = 0

	svc := newTestService(&stubSessions{}, &stubMetrics{}, &recordingQueue{})
	_, err := svc.ProcessFlatBatch(context.Background(), FlatBatchPayload{Carts: carts})
	var verrs domain.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected validation errors, got %v", err)
	}
	if !strings.Contains(verrs.Error(), "2 carts are missing sellerId") {
		t.Fatalf("unexpected message: %q", verrs.Error())
	}
}

func TestProcessFlatBatchSellerFailureIsolation(t *testing.T) {
	sessions := &stubSessions{
		bulkFn: func(batch []domain.AbandonedSession) (sessionrepo.BulkUpsertResult, error) {
			if batch[0].SellerID == 1 {
				return sessionrepo.BulkUpsertResult{}, errors.New("write concern failure")
			}
			return allCreated(batch)
		},
	}
	metrics := &stubMetrics{}
	svc := newTestService(sessions, metrics, &recordingQueue{})

	payload := FlatBatchPayload{Carts: flatCarts(2, 100, 10)}
	result, err := svc.ProcessFlatBatch(context.Background(), payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.SellerStats[1].Errors != 100 || result.SellerStats[1].Created != 0 {
		t.Fatalf("unexpected stats for failing seller: %+v", result.SellerStats[1])
	}
	if result.SellerStats[2].Created != 100 {
		t.Fatalf("healthy seller must be unaffected, got %+v", result.SellerStats[2])
	}
	if result.TotalErrors != 100 || result.TotalCreated != 100 {
		t.Fatalf("unexpected totals: %+v", result)
	}
	if len(metrics.aggregates) != 1 || metrics.aggregates[0].sellerID != 2 {
		t.Fatalf("only the healthy seller may emit metrics, got %+v", metrics.aggregates)
	}
}

func TestProcessFlatBatchRoundsAmounts(t *testing.T) {
	sessions := &stubSessions{bulkFn: allCreated}
	metrics := &stubMetrics{}
	svc := newTestService(sessions, metrics, &recordingQueue{})

	// 3 x 0.1 sums to 0.30000000000000004 in float64 arithmetic.
	payload := FlatBatchPayload{Carts: flatCarts(1, 3, 0.1)}
	if _, err := svc.ProcessFlatBatch(context.Background(), payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(metrics.aggregates) != 1 {
		t.Fatalf("expected 1 aggregate, got %d", len(metrics.aggregates))
	}
	if metrics.aggregates[0].totalAmount != 0.3 {
		t.Fatalf("expected rounded total 0.3, got %v", metrics.aggregates[0].totalAmount)
	}
}
