package match

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"imoflow/filter"
	"imoflow/listing"
)

const reconcileCandidateLimit = 500

// Store is the persistence surface the service depends on.
type Store interface {
	InsertPending(ctx context.Context, clientID, listingID string) (bool, error)
	Curate(ctx context.Context, matchID string) (Match, error)
	Archive(ctx context.Context, matchID string) (Match, error)
	Delete(ctx context.Context, matchID string) error
	ListByState(ctx context.Context, clientID string, state State, page, pageSize int) ([]Match, int, error)
	MatchedListingIDs(ctx context.Context, clientID string) (map[string]struct{}, error)
	UnseenCount(ctx context.Context, clientID string) (int, error)
}

// ListingSearcher runs the coarse candidate query for a criteria set.
type ListingSearcher interface {
	Search(ctx context.Context, q listing.SearchQuery) ([]listing.Listing, error)
}

// FilterLister supplies every active filter for full sweeps.
type FilterLister interface {
	ListActive(ctx context.Context) ([]filter.Criteria, error)
}

type Service struct {
	store    Store
	listings ListingSearcher
	filters  FilterLister
	now      func() time.Time
}

func NewService(store Store, listings ListingSearcher) *Service {
	return &Service{
		store:    store,
		listings: listings,
		now:      time.Now,
	}
}

func (s *Service) WithFilterLister(filters FilterLister) *Service {
	s.filters = filters
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Curate(ctx context.Context, matchID string) (Match, error) {
	return s.store.Curate(ctx, matchID)
}

func (s *Service) Archive(ctx context.Context, matchID string) (Match, error) {
	return s.store.Archive(ctx, matchID)
}

func (s *Service) Delete(ctx context.Context, matchID string) error {
	return s.store.Delete(ctx, matchID)
}

func (s *Service) ListByState(ctx context.Context, clientID string, state State, page, pageSize int) ([]Match, int, error) {
	return s.store.ListByState(ctx, clientID, state, page, pageSize)
}

func (s *Service) UnseenCount(ctx context.Context, clientID string) (int, error) {
	return s.store.UnseenCount(ctx, clientID)
}

// ReconcileFromFilter re-evaluates known listings against a freshly saved
// filter and inserts pending matches for qualifying listings the client does
// not already have. Returns how many matches were created.
func (s *Service) ReconcileFromFilter(ctx context.Context, clientID string, c filter.Criteria) (int, error) {
	if clientID == "" {
		return 0, fmt.Errorf("match: reconcile missing client id")
	}
	if !c.Active {
		return 0, nil
	}
	c.Normalize()

	candidates, err := s.listings.Search(ctx, c.SearchQuery(reconcileCandidateLimit))
	if err != nil {
		return 0, fmt.Errorf("match: reconcile search: %w", err)
	}

	existing, err := s.store.MatchedListingIDs(ctx, clientID)
	if err != nil {
		return 0, err
	}

	now := s.now()
	created := 0
	for _, l := range candidates {
		if _, already := existing[l.ID]; already {
			continue
		}
		if !filter.MatchesAt(l, c, now) {
			continue
		}
		inserted, err := s.store.InsertPending(ctx, clientID, l.ID)
		if err != nil {
			return created, err
		}
		if inserted {
			created++
		}
	}
	return created, nil
}

// ReconcileAll sweeps every active filter. Independent clients are swept
// concurrently with a bounded group.
func (s *Service) ReconcileAll(ctx context.Context) (int, error) {
	if s.filters == nil {
		return 0, fmt.Errorf("match: no filter lister configured")
	}

	active, err := s.filters.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	counts := make([]int, len(active))
	for i, c := range active {
		g.Go(func() error {
			n, err := s.ReconcileFromFilter(gctx, c.ClientID, c)
			if err != nil {
				return fmt.Errorf("match: reconcile client %s: %w", c.ClientID, err)
			}
			counts[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	return total, nil
}
