package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"abandoned-tracker/internal/domain"
	todosvc "abandoned-tracker/internal/service/todo"
)

type TodoService interface {
	List(ctx context.Context) ([]domain.Todo, error)
	Get(ctx context.Context, id string) (*domain.Todo, error)
	Create(ctx context.Context, in todosvc.CreateInput) (*domain.Todo, error)
	Update(ctx context.Context, id string, in todosvc.UpdateInput) (*domain.Todo, error)
	Delete(ctx context.Context, id string) error
}

type todoHandlers struct {
	svc TodoService
}

func (h *todoHandlers) list(c *gin.Context) {
	start := time.Now()
	todos, err := h.svc.List(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error(), start)
		return
	}
	respondOK(c, todos, start)
}

func (h *todoHandlers) get(c *gin.Context) {
	start := time.Now()
	t, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondErr(c, err, start)
		return
	}
	respondOK(c, t, start)
}

func (h *todoHandlers) create(c *gin.Context) {
	start := time.Now()
	var in todosvc.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body: "+err.Error(), start)
		return
	}
	t, err := h.svc.Create(c.Request.Context(), in)
	if err != nil {
		h.respondErr(c, err, start)
		return
	}
	respondOK(c, t, start)
}

func (h *todoHandlers) update(c *gin.Context) {
	start := time.Now()
	var in todosvc.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body: "+err.Error(), start)
		return
	}
	t, err := h.svc.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		h.respondErr(c, err, start)
		return
	}
	respondOK(c, t, start)
}

func (h *todoHandlers) remove(c *gin.Context) {
	start := time.Now()
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondErr(c, err, start)
		return
	}
	respondOK(c, gin.H{"deleted": true}, start)
}

func (h *todoHandlers) respondErr(c *gin.Context, err error, start time.Time) {
	var verrs domain.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		respondError(c, http.StatusBadRequest, verrs.Error(), start)
	case errors.Is(err, domain.ErrNotFound):
		respondError(c, http.StatusNotFound, "todo not found", start)
	default:
		respondError(c, http.StatusInternalServerError, err.Error(), start)
	}
}
