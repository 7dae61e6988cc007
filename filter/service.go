package filter

import (
	"context"
	"fmt"
)

// Repository is the persistence surface the service needs.
type Repository interface {
	Upsert(ctx context.Context, c Criteria) (Criteria, error)
	GetByClient(ctx context.Context, clientID string) (Criteria, error)
	ListActive(ctx context.Context) ([]Criteria, error)
}

// Reconciler re-evaluates stored listings against a freshly saved filter so
// matches are not limited to listings observed after the save.
type Reconciler interface {
	ReconcileFromFilter(ctx context.Context, clientID string, c Criteria) (int, error)
}

// Observer is notified after a successful save so a live consumer can refresh
// its authoritative filter set.
type Observer interface {
	FilterSaved(c Criteria)
	FilterRemoved(clientID string)
}

type Service struct {
	repo       Repository
	reconciler Reconciler
	observer   Observer
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) WithReconciler(r Reconciler) *Service {
	s.reconciler = r
	return s
}

func (s *Service) WithObserver(o Observer) *Service {
	s.observer = o
	return s
}

// Save normalizes and persists the filter, then runs the reconciliation sweep
// synchronously and refreshes the live consumer.
func (s *Service) Save(ctx context.Context, c Criteria) (Criteria, error) {
	if c.ClientID == "" {
		return Criteria{}, fmt.Errorf("filter: save missing client id")
	}
	c.Normalize()

	saved, err := s.repo.Upsert(ctx, c)
	if err != nil {
		return Criteria{}, err
	}

	if s.reconciler != nil && saved.Active {
		if _, err := s.reconciler.ReconcileFromFilter(ctx, saved.ClientID, saved); err != nil {
			return Criteria{}, fmt.Errorf("filter: reconcile after save: %w", err)
		}
	}

	if s.observer != nil {
		if saved.Active {
			s.observer.FilterSaved(saved)
		} else {
			s.observer.FilterRemoved(saved.ClientID)
		}
	}

	return saved, nil
}

func (s *Service) Get(ctx context.Context, clientID string) (Criteria, error) {
	return s.repo.GetByClient(ctx, clientID)
}

func (s *Service) ListActive(ctx context.Context) ([]Criteria, error) {
	return s.repo.ListActive(ctx)
}
