package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository is the persistence surface the service depends on.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (Client, error)
	GetByID(ctx context.Context, id string) (Client, error)
	ListActive(ctx context.Context, userID string, page, pageSize int) ([]Client, int, error)
	ListOverdue(ctx context.Context, now time.Time) ([]Client, error)
}

// OrgChecker verifies the owning organization exists before a client is created.
type OrgChecker interface {
	Exists(ctx context.Context, orgID string) (bool, error)
}

var ErrOrgUnknown = errors.New("client: unknown organization")

type Service struct {
	repo Repository
	orgs OrgChecker
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
		now:  time.Now,
	}
}

func (s *Service) WithOrgChecker(orgs OrgChecker) *Service {
	s.orgs = orgs
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Create(ctx context.Context, params CreateParams) (Client, error) {
	params.Name = strings.TrimSpace(params.Name)
	if params.Name == "" {
		return Client{}, fmt.Errorf("client: name required")
	}
	if params.OrgID == "" || params.UserID == "" {
		return Client{}, fmt.Errorf("client: org and user required")
	}

	if s.orgs != nil {
		ok, err := s.orgs.Exists(ctx, params.OrgID)
		if err != nil {
			return Client{}, fmt.Errorf("client: verify org: %w", err)
		}
		if !ok {
			return Client{}, ErrOrgUnknown
		}
	}

	return s.repo.Create(ctx, params)
}

func (s *Service) Get(ctx context.Context, id string) (Client, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListActive(ctx context.Context, userID string, page, pageSize int) ([]Client, int, error) {
	return s.repo.ListActive(ctx, userID, page, pageSize)
}

func (s *Service) ListOverdue(ctx context.Context) ([]Client, error) {
	return s.repo.ListOverdue(ctx, s.now())
}
