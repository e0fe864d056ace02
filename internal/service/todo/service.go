package todo

import (
	"context"
	"strings"

	"abandoned-tracker/internal/domain"
	todorepo "abandoned-tracker/internal/repository/todo"
)

type Service struct {
	repo todorepo.Repository
}

func New(repo todorepo.Repository) *Service {
	return &Service{repo: repo}
}

type CreateInput struct {
	Title string `json:"title"`
}

type UpdateInput struct {
	Title     *string `json:"title,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
}

func (s *Service) List(ctx context.Context) ([]domain.Todo, error) {
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Todo, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Todo, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, domain.ValidationErrors{{Field: "title", Message: "Title is required"}}
	}
	return s.repo.Create(ctx, in.Title)
}

func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*domain.Todo, error) {
	return s.repo.Update(ctx, id, todorepo.UpdateInput{
		Title:     in.Title,
		Completed: in.Completed,
	})
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}
