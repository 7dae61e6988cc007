package filter

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound signals no filter row exists for the client.
var ErrNotFound = errors.New("filter: not found")

const criteriaColumns = `
	client_id, active, deal_type::text,
	min_price, max_price, min_rent, max_rent,
	neighborhoods, min_bedrooms, min_bathrooms, min_parking,
	min_area_m2, max_area_m2, max_days_fresh, property_types, updated_at
`

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Upsert replaces the client's filter wholesale, keyed by client id.
func (r *PGRepository) Upsert(ctx context.Context, c Criteria) (Criteria, error) {
	if c.ClientID == "" {
		return Criteria{}, fmt.Errorf("filter: missing client id")
	}

	const query = `
		INSERT INTO client_filters (
			client_id, active, deal_type,
			min_price, max_price, min_rent, max_rent,
			neighborhoods, min_bedrooms, min_bathrooms, min_parking,
			min_area_m2, max_area_m2, max_days_fresh, property_types, updated_at
		)
		VALUES ($1, $2, $3::deal_type, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, now())
		ON CONFLICT (client_id) DO UPDATE SET
			active = EXCLUDED.active,
			deal_type = EXCLUDED.deal_type,
			min_price = EXCLUDED.min_price,
			max_price = EXCLUDED.max_price,
			min_rent = EXCLUDED.min_rent,
			max_rent = EXCLUDED.max_rent,
			neighborhoods = EXCLUDED.neighborhoods,
			min_bedrooms = EXCLUDED.min_bedrooms,
			min_bathrooms = EXCLUDED.min_bathrooms,
			min_parking = EXCLUDED.min_parking,
			min_area_m2 = EXCLUDED.min_area_m2,
			max_area_m2 = EXCLUDED.max_area_m2,
			max_days_fresh = EXCLUDED.max_days_fresh,
			property_types = EXCLUDED.property_types,
			updated_at = now()
		RETURNING ` + criteriaColumns

	row := r.pool.QueryRow(ctx, query,
		c.ClientID, c.Active, string(c.DealType),
		c.MinPrice, c.MaxPrice, c.MinRent, c.MaxRent,
		c.Neighborhoods, c.MinBedrooms, c.MinBathrooms, c.MinParking,
		c.MinAreaM2, c.MaxAreaM2, c.MaxDaysFresh, c.PropertyTypes,
	)
	saved, err := scanCriteria(row)
	if err != nil {
		return Criteria{}, fmt.Errorf("filter: upsert: %w", err)
	}
	return saved, nil
}

func (r *PGRepository) GetByClient(ctx context.Context, clientID string) (Criteria, error) {
	query := `SELECT ` + criteriaColumns + ` FROM client_filters WHERE client_id = $1`

	c, err := scanCriteria(r.pool.QueryRow(ctx, query, clientID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Criteria{}, ErrNotFound
		}
		return Criteria{}, fmt.Errorf("filter: query by client: %w", err)
	}
	return c, nil
}

// ListActive returns every active filter, used to load the consumer's
// authoritative set at startup and to drive full reconciliation sweeps.
// Filters belonging to closed clients are excluded: closure removes a client
// from active matching even when its filter row was never deactivated.
func (r *PGRepository) ListActive(ctx context.Context) ([]Criteria, error) {
	query := `
		SELECT ` + criteriaColumns + `
		FROM client_filters
		WHERE active
		  AND NOT EXISTS (
			SELECT 1 FROM clients c
			WHERE c.id = client_filters.client_id AND c.status = 'closed'
		  )
		ORDER BY updated_at DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("filter: list active: %w", err)
	}
	defer rows.Close()

	out := make([]Criteria, 0, 16)
	for rows.Next() {
		c, err := scanCriteria(rows)
		if err != nil {
			return nil, fmt.Errorf("filter: scan: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("filter: iterate: %w", err)
	}
	return out, nil
}

func scanCriteria(row pgx.Row) (Criteria, error) {
	var c Criteria
	err := row.Scan(
		&c.ClientID, &c.Active, &c.DealType,
		&c.MinPrice, &c.MaxPrice, &c.MinRent, &c.MaxRent,
		&c.Neighborhoods, &c.MinBedrooms, &c.MinBathrooms, &c.MinParking,
		&c.MinAreaM2, &c.MaxAreaM2, &c.MaxDaysFresh, &c.PropertyTypes, &c.UpdatedAt,
	)
	return c, err
}
