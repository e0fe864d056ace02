package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"abandoned-tracker/internal/domain"
	abandonedsvc "abandoned-tracker/internal/service/abandoned"
	todosvc "abandoned-tracker/internal/service/todo"
)

type stubAbandoned struct {
	cartResult     *abandonedsvc.CartResult
	cartErr        error
	updateResult   *abandonedsvc.UpdateCartResult
	updateErr      error
	checkoutResult *abandonedsvc.CheckoutResult
	checkoutErr    error
	updateCheckout *abandonedsvc.UpdateCheckoutResult
	recoverResult  *abandonedsvc.RecoverResult
	recoverErr     error
	batchResult    *abandonedsvc.FlatBatchResult
	batchErr       error

	lastSellerID int
}

func (s *stubAbandoned) CreateOrMergeCart(_ context.Context, sellerID int, _ abandonedsvc.CartPayload) (*abandonedsvc.CartResult, error) {
	s.lastSellerID = sellerID
	return s.cartResult, s.cartErr
}

func (s *stubAbandoned) UpdateCart(_ context.Context, sellerID int, _ string, _ abandonedsvc.UpdateCartPayload) (*abandonedsvc.UpdateCartResult, error) {
	s.lastSellerID = sellerID
	return s.updateResult, s.updateErr
}

func (s *stubAbandoned) CreateOrMergeCheckout(_ context.Context, sellerID int, _ abandonedsvc.CheckoutPayload) (*abandonedsvc.CheckoutResult, error) {
	s.lastSellerID = sellerID
	return s.checkoutResult, s.checkoutErr
}

func (s *stubAbandoned) UpdateCheckout(_ context.Context, sellerID int, _ string, _ abandonedsvc.UpdateCheckoutPayload) (*abandonedsvc.UpdateCheckoutResult, error) {
	s.lastSellerID = sellerID
	return s.updateCheckout, nil
}

func (s *stubAbandoned) MarkAsRecovered(_ context.Context, sellerID int, _ abandonedsvc.RecoverPayload) (*abandonedsvc.RecoverResult, error) {
	s.lastSellerID = sellerID
	return s.recoverResult, s.recoverErr
}

func (s *stubAbandoned) ProcessFlatBatch(_ context.Context, _ abandonedsvc.FlatBatchPayload) (*abandonedsvc.FlatBatchResult, error) {
	return s.batchResult, s.batchErr
}

type stubTodos struct {
	todo *domain.Todo
	err  error
}

func (s *stubTodos) List(_ context.Context) ([]domain.Todo, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []domain.Todo{}, nil
}

func (s *stubTodos) Get(_ context.Context, _ string) (*domain.Todo, error) {
	return s.todo, s.err
}

func (s *stubTodos) Create(_ context.Context, _ todosvc.CreateInput) (*domain.Todo, error) {
	return s.todo, s.err
}

func (s *stubTodos) Update(_ context.Context, _ string, _ todosvc.UpdateInput) (*domain.Todo, error) {
	return s.todo, s.err
}

func (s *stubTodos) Delete(_ context.Context, _ string) error {
	return s.err
}

type stubQueue struct {
	pending int
}

func (s *stubQueue) Pending() int { return s.pending }

type testEnvelope struct {
	Metadata struct {
		Success       bool   `json:"success"`
		Message       string `json:"message"`
		Timestamp     string `json:"timestamp"`
		ExecutionTime string `json:"executionTime"`
	} `json:"metadata"`
	Data json.RawMessage `json:"data"`
}

func newTestRouter(abandoned AbandonedService, todos TodoService, queue MetricsQueue) http.Handler {
	logger := log.New(io.Discard, "", 0)
	return buildRouter(logger, nil, Deps{Abandoned: abandoned, Todos: todos, Metrics: queue}, nil)
}

func doRequest(t *testing.T, router http.Handler, method, path, body string) (*httptest.ResponseRecorder, testEnvelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env testEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, rec.Body.String())
	}
	return rec, env
}

func TestCreateCartEnvelope(t *testing.T) {
	svc := &stubAbandoned{cartResult: &abandonedsvc.CartResult{Message: "New cart session created", CartID: "cart-1"}}
	router := newTestRouter(svc, &stubTodos{}, &stubQueue{})

	rec, env := doRequest(t, router, http.MethodPost, "/7/abandoned/cart", `{"totalAmount": 10}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !env.Metadata.Success || env.Metadata.Message != "OK" {
		t.Fatalf("unexpected metadata: %+v", env.Metadata)
	}
	if _, err := time.Parse("2006-01-02 15:04:05", env.Metadata.Timestamp); err != nil {
		t.Fatalf("bad timestamp format %q: %v", env.Metadata.Timestamp, err)
	}
	if !strings.HasSuffix(env.Metadata.ExecutionTime, "ms") {
		t.Fatalf("bad executionTime %q", env.Metadata.ExecutionTime)
	}
	var data abandonedsvc.CartResult
	if err := json.Unmarshal(env.Data, &data); err != nil || data.CartID != "cart-1" {
		t.Fatalf("unexpected data: %s", env.Data)
	}
	if svc.lastSellerID != 7 {
		t.Fatalf("expected sellerId 7, got %d", svc.lastSellerID)
	}
}

func TestCreateCartValidationError(t *testing.T) {
	svc := &stubAbandoned{cartErr: domain.ValidationErrors{{Field: "cartId", Message: "CartId is required and cannot be empty"}}}
	router := newTestRouter(svc, &stubTodos{}, &stubQueue{})

	rec, env := doRequest(t, router, http.MethodPost, "/7/abandoned/cart", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if env.Metadata.Success || !strings.Contains(env.Metadata.Message, "CartId is required") {
		t.Fatalf("unexpected metadata: %+v", env.Metadata)
	}
}

func TestCreateCartInvalidSellerID(t *testing.T) {
	router := newTestRouter(&stubAbandoned{}, &stubTodos{}, &stubQueue{})

	rec, env := doRequest(t, router, http.MethodPost, "/abc/abandoned/cart", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(env.Metadata.Message, "sellerId") {
		t.Fatalf("unexpected message: %q", env.Metadata.Message)
	}
}

func TestUpdateCartNoSessionFound(t *testing.T) {
	svc := &stubAbandoned{updateResult: &abandonedsvc.UpdateCartResult{CartID: "missing", Updated: false}}
	router := newTestRouter(svc, &stubTodos{}, &stubQueue{})

	rec, env := doRequest(t, router, http.MethodPut, "/7/abandoned/cart/missing", `{"products":[]}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if !strings.Contains(env.Metadata.Message, "no session found for cartId missing") {
		t.Fatalf("unexpected message: %q", env.Metadata.Message)
	}
}

func TestMarkAsRecoveredNotFound(t *testing.T) {
	svc := &stubAbandoned{recoverErr: domain.ErrNotFound}
	router := newTestRouter(svc, &stubTodos{}, &stubQueue{})

	rec, _ := doRequest(t, router, http.MethodPatch, "/7/abandoned/recover", `{"type":"cart","id":"x"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestFlatBatchRoute(t *testing.T) {
	svc := &stubAbandoned{batchResult: &abandonedsvc.FlatBatchResult{BatchID: "batch-1", TotalProcessed: 2}}
	router := newTestRouter(svc, &stubTodos{}, &stubQueue{})

	rec, env := doRequest(t, router, http.MethodPost, "/abandoned/flat-batch", `{"carts":[]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var data abandonedsvc.FlatBatchResult
	if err := json.Unmarshal(env.Data, &data); err != nil || data.BatchID != "batch-1" {
		t.Fatalf("unexpected data: %s", env.Data)
	}
}

func TestTodoNotFound(t *testing.T) {
	router := newTestRouter(&stubAbandoned{}, &stubTodos{err: domain.ErrNotFound}, &stubQueue{})

	rec, env := doRequest(t, router, http.MethodGet, "/todos/64f000000000000000000000", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if env.Metadata.Message != "todo not found" {
		t.Fatalf("unexpected message: %q", env.Metadata.Message)
	}
}

func TestHealthzReportsPendingMetrics(t *testing.T) {
	router := newTestRouter(&stubAbandoned{}, &stubTodos{}, &stubQueue{pending: 4})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["pendingMetrics"] != float64(4) {
		t.Fatalf("unexpected pendingMetrics: %v", body["pendingMetrics"])
	}
}
