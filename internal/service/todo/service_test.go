package todo

import (
	"context"
	"errors"
	"testing"

	"abandoned-tracker/internal/domain"
	todorepo "abandoned-tracker/internal/repository/todo"
)

type stubRepo struct {
	todo      *domain.Todo
	err       error
	lastTitle string
	lastPatch todorepo.UpdateInput
}

func (s *stubRepo) List(_ context.Context) ([]domain.Todo, error) {
	return nil, s.err
}

func (s *stubRepo) GetByID(_ context.Context, _ string) (*domain.Todo, error) {
	return s.todo, s.err
}

func (s *stubRepo) Create(_ context.Context, title string) (*domain.Todo, error) {
	s.lastTitle = title
	return s.todo, s.err
}

func (s *stubRepo) Update(_ context.Context, _ string, patch todorepo.UpdateInput) (*domain.Todo, error) {
	s.lastPatch = patch
	return s.todo, s.err
}

func (s *stubRepo) Delete(_ context.Context, _ string) error {
	return s.err
}

func TestCreateRequiresTitle(t *testing.T) {
	svc := New(&stubRepo{})

	_, err := svc.Create(context.Background(), CreateInput{Title: "   "})
	var verrs domain.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected validation errors, got %v", err)
	}
}

func TestCreatePassesTitleThrough(t *testing.T) {
	repo := &stubRepo{todo: &domain.Todo{Title: "buy milk"}}
	svc := New(repo)

	got, err := svc.Create(context.Background(), CreateInput{Title: "buy milk"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.lastTitle != "buy milk" || got.Title != "buy milk" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestUpdateForwardsOptionalFields(t *testing.T) {
	repo := &stubRepo{todo: &domain.Todo{}}
	svc := New(repo)

	completed := true
	_, err := svc.Update(context.Background(), "id-1", UpdateInput{Completed: &completed})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.lastPatch.Title != nil || repo.lastPatch.Completed == nil || !*repo.lastPatch.Completed {
		t.Fatalf("unexpected patch: %+v", repo.lastPatch)
	}
}
