package httpserver

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"abandoned-tracker/internal/domain"
	abandonedsvc "abandoned-tracker/internal/service/abandoned"
)

// AbandonedService is the surface the HTTP layer needs from the merge
// engine and batch pipeline.
type AbandonedService interface {
	CreateOrMergeCart(ctx context.Context, sellerID int, p abandonedsvc.CartPayload) (*abandonedsvc.CartResult, error)
	UpdateCart(ctx context.Context, sellerID int, cartID string, p abandonedsvc.UpdateCartPayload) (*abandonedsvc.UpdateCartResult, error)
	CreateOrMergeCheckout(ctx context.Context, sellerID int, p abandonedsvc.CheckoutPayload) (*abandonedsvc.CheckoutResult, error)
	UpdateCheckout(ctx context.Context, sellerID int, checkoutULID string, p abandonedsvc.UpdateCheckoutPayload) (*abandonedsvc.UpdateCheckoutResult, error)
	MarkAsRecovered(ctx context.Context, sellerID int, p abandonedsvc.RecoverPayload) (*abandonedsvc.RecoverResult, error)
	ProcessFlatBatch(ctx context.Context, p abandonedsvc.FlatBatchPayload) (*abandonedsvc.FlatBatchResult, error)
}

type abandonedHandlers struct {
	svc    AbandonedService
	logger *log.Logger
}

func (h *abandonedHandlers) createCart(c *gin.Context) {
	start := time.Now()
	sellerID, ok := sellerIDParam(c, start)
	if !ok {
		return
	}
	var payload abandonedsvc.CartPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body: "+err.Error(), start)
		return
	}
	result, err := h.svc.CreateOrMergeCart(c.Request.Context(), sellerID, payload)
	if err != nil {
		h.respondServiceError(c, "createCartAbandoned", err, start)
		return
	}
	respondOK(c, result, start)
}

func (h *abandonedHandlers) updateCart(c *gin.Context) {
	start := time.Now()
	sellerID, ok := sellerIDParam(c, start)
	if !ok {
		return
	}
	var payload abandonedsvc.UpdateCartPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body: "+err.Error(), start)
		return
	}
	result, err := h.svc.UpdateCart(c.Request.Context(), sellerID, c.Param("cartId"), payload)
	if err != nil {
		h.respondServiceError(c, "updateCartAbandoned", err, start)
		return
	}
	if !result.Updated {
		respondError(c, http.StatusNotFound, "no session found for cartId "+result.CartID, start)
		return
	}
	respondOK(c, result, start)
}

func (h *abandonedHandlers) createCheckout(c *gin.Context) {
	start := time.Now()
	sellerID, ok := sellerIDParam(c, start)
	if !ok {
		return
	}
	var payload abandonedsvc.CheckoutPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body: "+err.Error(), start)
		return
	}
	result, err := h.svc.CreateOrMergeCheckout(c.Request.Context(), sellerID, payload)
	if err != nil {
		h.respondServiceError(c, "createCheckoutAbandoned", err, start)
		return
	}
	respondOK(c, result, start)
}

func (h *abandonedHandlers) updateCheckout(c *gin.Context) {
	start := time.Now()
	sellerID, ok := sellerIDParam(c, start)
	if !ok {
		return
	}
	var payload abandonedsvc.UpdateCheckoutPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body: "+err.Error(), start)
		return
	}
	result, err := h.svc.UpdateCheckout(c.Request.Context(), sellerID, c.Param("checkoutUlid"), payload)
	if err != nil {
		h.respondServiceError(c, "updateCheckoutAbandoned", err, start)
		return
	}
	if !result.Updated {
		respondError(c, http.StatusNotFound, "no session found for checkoutUlid "+result.CheckoutULID, start)
		return
	}
	respondOK(c, result, start)
}

func (h *abandonedHandlers) markAsRecovered(c *gin.Context) {
	start := time.Now()
	sellerID, ok := sellerIDParam(c, start)
	if !ok {
		return
	}
	var payload abandonedsvc.RecoverPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body: "+err.Error(), start)
		return
	}
	result, err := h.svc.MarkAsRecovered(c.Request.Context(), sellerID, payload)
	if err != nil {
		h.respondServiceError(c, "markAsRecovered", err, start)
		return
	}
	respondOK(c, result, start)
}

func (h *abandonedHandlers) flatBatch(c *gin.Context) {
	start := time.Now()
	var payload abandonedsvc.FlatBatchPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body: "+err.Error(), start)
		return
	}
	result, err := h.svc.ProcessFlatBatch(c.Request.Context(), payload)
	if err != nil {
		h.respondServiceError(c, "createFlatBatchAbandonedCarts", err, start)
		return
	}
	respondOK(c, result, start)
}

func (h *abandonedHandlers) respondServiceError(c *gin.Context, operation string, err error, start time.Time) {
	var verrs domain.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		respondError(c, http.StatusBadRequest, verrs.Error(), start)
	case errors.Is(err, domain.ErrNotFound):
		respondError(c, http.StatusNotFound, err.Error(), start)
	default:
		h.logger.Printf("error in %s after %s: %v", operation, time.Since(start), err)
		respondError(c, http.StatusInternalServerError, err.Error(), start)
	}
}

func sellerIDParam(c *gin.Context, start time.Time) (int, bool) {
	sellerID, err := strconv.Atoi(c.Param("sellerId"))
	if err != nil || sellerID <= 0 {
		respondError(c, http.StatusBadRequest, "sellerId must be a positive integer", start)
		return 0, false
	}
	return sellerID, true
}
