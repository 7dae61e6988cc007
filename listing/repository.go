package listing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound signals the requested listing does not exist in the store.
var ErrNotFound = errors.New("listing: not found")

const selectColumns = `
	id, deal_type::text, price, total_monthly,
	neighborhood, neighborhood_norm,
	bedrooms, bathrooms, parking, area_m2, property_type,
	published_at, first_seen_at, url, image_url, created_at
`

// SearchQuery scopes a coarse store query. Exact qualification is decided by
// the filter evaluator afterwards; this only narrows the candidate set.
type SearchQuery struct {
	DealType      DealType
	MinPrice      *int64
	MaxPrice      *int64
	Neighborhoods []string
	CreatedSince  *time.Time
	Limit         int
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (Listing, error) {
	query := `SELECT ` + selectColumns + ` FROM listings WHERE id = $1`

	row := r.pool.QueryRow(ctx, query, id)
	l, err := scanListing(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Listing{}, ErrNotFound
		}
		return Listing{}, fmt.Errorf("listing: query by id: %w", err)
	}
	return l, nil
}

// Search runs the coarse candidate query used by the polling fallback and the
// reconciliation sweep.
func (r *PGRepository) Search(ctx context.Context, q SearchQuery) ([]Listing, error) {
	query := `SELECT ` + selectColumns + ` FROM listings WHERE 1=1`
	args := make([]any, 0, 6)

	if q.DealType != "" {
		args = append(args, q.DealType)
		query += fmt.Sprintf(" AND deal_type = $%d", len(args))
	}
	if q.MinPrice != nil && q.MaxPrice != nil {
		args = append(args, *q.MinPrice)
		query += fmt.Sprintf(" AND COALESCE(total_monthly, price) >= $%d", len(args))
		args = append(args, *q.MaxPrice)
		query += fmt.Sprintf(" AND COALESCE(total_monthly, price) <= $%d", len(args))
	}
	if len(q.Neighborhoods) > 0 {
		args = append(args, q.Neighborhoods)
		query += fmt.Sprintf(" AND neighborhood_norm = ANY($%d)", len(args))
	}
	if q.CreatedSince != nil {
		args = append(args, *q.CreatedSince)
		query += fmt.Sprintf(" AND created_at > $%d", len(args))
	}

	query += " ORDER BY created_at DESC"

	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing: search: %w", err)
	}
	defer rows.Close()

	out := make([]Listing, 0, 32)
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("listing: scan: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing: iterate: %w", err)
	}
	return out, nil
}

// LatestCreation returns the creation stamp and id of the most recently stored
// listing. Drives the coarse "new items available" probe.
func (r *PGRepository) LatestCreation(ctx context.Context) (time.Time, string, error) {
	const query = `SELECT created_at, id FROM listings ORDER BY created_at DESC, id DESC LIMIT 1`

	var (
		at time.Time
		id string
	)
	if err := r.pool.QueryRow(ctx, query).Scan(&at, &id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, "", nil
		}
		return time.Time{}, "", fmt.Errorf("listing: latest creation: %w", err)
	}
	return at, id, nil
}

func scanListing(row pgx.Row) (Listing, error) {
	var l Listing
	err := row.Scan(
		&l.ID, &l.DealType, &l.Price, &l.TotalMonthly,
		&l.Neighborhood, &l.NeighborhoodNorm,
		&l.Bedrooms, &l.Bathrooms, &l.Parking, &l.AreaM2, &l.PropertyType,
		&l.PublishedAt, &l.FirstSeenAt, &l.URL, &l.ImageURL, &l.CreatedAt,
	)
	return l, err
}
