package match

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const matchColumns = `id, client_id, listing_id, seen, is_notified, created_at`

// PGStore holds matches and keeps the owning client's unseen counter in step
// with the pending set inside every mutating transaction.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// InsertPending records a new pending match for the pair, or silently does
// nothing when the pair already exists. Returns whether a row was inserted.
func (s *PGStore) InsertPending(ctx context.Context, clientID, listingID string) (bool, error) {
	if clientID == "" || listingID == "" {
		return false, fmt.Errorf("match: client and listing required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("match: begin insert tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO matches (client_id, listing_id)
		VALUES ($1, $2)
		ON CONFLICT (client_id, listing_id) DO NOTHING
	`, clientID, listingID)
	if err != nil {
		return false, fmt.Errorf("match: insert pending: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if _, err := tx.Exec(ctx, `
		UPDATE clients SET unseen_count = unseen_count + 1 WHERE id = $1
	`, clientID); err != nil {
		return false, fmt.Errorf("match: bump unseen: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("match: commit insert: %w", err)
	}
	return true, nil
}

// Curate moves a pending match to curated. Repeating the call on an already
// curated match is a no-op.
func (s *PGStore) Curate(ctx context.Context, matchID string) (Match, error) {
	return s.mutate(ctx, matchID, func(m *Match) (bool, error) {
		switch m.State() {
		case StatePending:
			m.Seen = true
			m.IsNotified = true
			return true, nil
		case StateCurated:
			return false, nil
		default:
			return false, ErrInvalidState
		}
	})
}

// Archive moves a pending or curated match to archived; repeated calls no-op.
func (s *PGStore) Archive(ctx context.Context, matchID string) (Match, error) {
	return s.mutate(ctx, matchID, func(m *Match) (bool, error) {
		switch m.State() {
		case StatePending, StateCurated:
			m.Seen = true
			m.IsNotified = false
			return true, nil
		default:
			return false, nil
		}
	})
}

// mutate applies fn to the locked match, persists flag changes, and adjusts
// the unseen counter when the match leaves the pending state.
func (s *PGStore) mutate(ctx context.Context, matchID string, fn func(*Match) (bool, error)) (Match, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Match{}, fmt.Errorf("match: begin mutate tx: %w", err)
	}
	defer tx.Rollback(ctx)

	m, err := getForUpdate(ctx, tx, matchID)
	if err != nil {
		return Match{}, err
	}

	wasPending := m.State() == StatePending

	changed, err := fn(&m)
	if err != nil {
		return Match{}, err
	}
	if !changed {
		return m, nil
	}

	if _, err := tx.Exec(ctx, `
		UPDATE matches SET seen = $2, is_notified = $3 WHERE id = $1
	`, m.ID, m.Seen, m.IsNotified); err != nil {
		return Match{}, fmt.Errorf("match: update flags: %w", err)
	}

	if wasPending && m.State() != StatePending {
		if err := decrementUnseen(ctx, tx, m.ClientID); err != nil {
			return Match{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Match{}, fmt.Errorf("match: commit mutate: %w", err)
	}
	return m, nil
}

// Delete removes the match permanently from any state. A repeat delete of a
// missing id is a no-op.
func (s *PGStore) Delete(ctx context.Context, matchID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("match: begin delete tx: %w", err)
	}
	defer tx.Rollback(ctx)

	m, err := getForUpdate(ctx, tx, matchID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM matches WHERE id = $1`, m.ID); err != nil {
		return fmt.Errorf("match: delete: %w", err)
	}

	if m.State() == StatePending {
		if err := decrementUnseen(ctx, tx, m.ClientID); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("match: commit delete: %w", err)
	}
	return nil
}

func (s *PGStore) GetByID(ctx context.Context, matchID string) (Match, error) {
	if _, err := uuid.Parse(matchID); err != nil {
		return Match{}, ErrNotFound
	}
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1`

	m, err := scanMatch(s.pool.QueryRow(ctx, query, matchID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Match{}, ErrNotFound
		}
		return Match{}, fmt.Errorf("match: get: %w", err)
	}
	return m, nil
}

// ListByState returns one of the client's three logical lists, paginated,
// newest first.
func (s *PGStore) ListByState(ctx context.Context, clientID string, state State, page, pageSize int) ([]Match, int, error) {
	seen, notified, err := stateFlags(state)
	if err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	var total int
	if err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM matches WHERE client_id = $1 AND seen = $2 AND is_notified = $3
	`, clientID, seen, notified).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("match: count by state: %w", err)
	}

	query := `SELECT ` + matchColumns + `
		FROM matches
		WHERE client_id = $1 AND seen = $2 AND is_notified = $3
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5`

	rows, err := s.pool.Query(ctx, query, clientID, seen, notified, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("match: list by state: %w", err)
	}
	defer rows.Close()

	out := make([]Match, 0, pageSize)
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("match: scan: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("match: iterate: %w", err)
	}
	return out, total, nil
}

// MatchedListingIDs returns every listing already matched to the client in any
// state, for reconciliation dedup.
func (s *PGStore) MatchedListingIDs(ctx context.Context, clientID string) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx, `SELECT listing_id FROM matches WHERE client_id = $1`, clientID)
	if err != nil {
		return nil, fmt.Errorf("match: matched listings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{}, 32)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("match: scan listing id: %w", err)
		}
		out[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("match: iterate listing ids: %w", err)
	}
	return out, nil
}

func (s *PGStore) UnseenCount(ctx context.Context, clientID string) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx,
		`SELECT unseen_count FROM clients WHERE id = $1`, clientID,
	).Scan(&n); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("match: unseen count: %w", err)
	}
	return n, nil
}

func getForUpdate(ctx context.Context, tx pgx.Tx, matchID string) (Match, error) {
	// A malformed id is a not-found, not a query error.
	if _, err := uuid.Parse(matchID); err != nil {
		return Match{}, ErrNotFound
	}
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1 FOR UPDATE`

	m, err := scanMatch(tx.QueryRow(ctx, query, matchID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Match{}, ErrNotFound
		}
		return Match{}, fmt.Errorf("match: lock: %w", err)
	}
	return m, nil
}

func decrementUnseen(ctx context.Context, tx pgx.Tx, clientID string) error {
	if _, err := tx.Exec(ctx, `
		UPDATE clients SET unseen_count = GREATEST(unseen_count - 1, 0) WHERE id = $1
	`, clientID); err != nil {
		return fmt.Errorf("match: drop unseen: %w", err)
	}
	return nil
}

func stateFlags(state State) (seen, notified bool, err error) {
	switch state {
	case StatePending:
		return false, false, nil
	case StateCurated:
		return true, true, nil
	case StateArchived:
		return true, false, nil
	default:
		return false, false, ErrInvalidState
	}
}

func scanMatch(row pgx.Row) (Match, error) {
	var m Match
	err := row.Scan(&m.ID, &m.ClientID, &m.ListingID, &m.Seen, &m.IsNotified, &m.CreatedAt)
	return m, err
}
