package todo

import (
	"context"

	"abandoned-tracker/internal/domain"
)

type Repository interface {
	List(ctx context.Context) ([]domain.Todo, error)
	GetByID(ctx context.Context, id string) (*domain.Todo, error)
	Create(ctx context.Context, title string) (*domain.Todo, error)
	Update(ctx context.Context, id string, patch UpdateInput) (*domain.Todo, error)
	Delete(ctx context.Context, id string) error
}

// UpdateInput carries the optional fields of a todo update.
type UpdateInput struct {
	Title     *string
	Completed *bool
}
