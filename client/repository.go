package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"imoflow/listing"
)

const clientColumns = `
	id, org_id, user_id, name, email, phone, note,
	status::text, outcome::text,
	next_action_at, chase_due_at, last_contact_at, last_reply_at,
	visit_at, visit_notes, proposal_value, proposal_valid_until,
	lost_reason, lost_detail, unseen_count, created_at
`

// CreateParams enumerates the fields required to add a client. The filter row
// is created in the same transaction so the pair always exists together.
type CreateParams struct {
	OrgID    string
	UserID   string
	Name     string
	Email    *string
	Phone    *string
	Note     string
	DealType listing.DealType
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Create(ctx context.Context, params CreateParams) (Client, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Client{}, fmt.Errorf("client: begin create tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertSQL = `
		INSERT INTO clients (org_id, user_id, name, email, phone, note)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + clientColumns

	row := tx.QueryRow(ctx, insertSQL,
		params.OrgID, params.UserID, params.Name, params.Email, params.Phone, params.Note)
	created, err := scanClient(row)
	if err != nil {
		return Client{}, fmt.Errorf("client: insert: %w", err)
	}

	dealType := params.DealType
	if dealType == "" {
		dealType = listing.DealSale
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO client_filters (client_id, active, deal_type)
		VALUES ($1, true, $2::deal_type)
	`, created.ID, string(dealType)); err != nil {
		return Client{}, fmt.Errorf("client: insert filter: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Client{}, fmt.Errorf("client: commit create: %w", err)
	}
	return created, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (Client, error) {
	// A malformed id is a not-found, not a query error.
	if _, err := uuid.Parse(id); err != nil {
		return Client{}, ErrNotFound
	}
	query := `SELECT ` + clientColumns + ` FROM clients WHERE id = $1`

	c, err := scanClient(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Client{}, ErrNotFound
		}
		return Client{}, fmt.Errorf("client: query by id: %w", err)
	}
	return c, nil
}

// GetForUpdate locks the client row for the duration of the transaction.
func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Client, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Client{}, ErrNotFound
	}
	query := `SELECT ` + clientColumns + ` FROM clients WHERE id = $1 FOR UPDATE`

	c, err := scanClient(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Client{}, ErrNotFound
		}
		return Client{}, fmt.Errorf("client: lock for update: %w", err)
	}
	return c, nil
}

// ApplyTransition persists every pipeline-mutable column from the given state.
func (r *PGRepository) ApplyTransition(ctx context.Context, tx pgx.Tx, c Client) error {
	tag, err := tx.Exec(ctx, `
		UPDATE clients
		SET status = $2::pipeline_status,
		    outcome = $3::closed_outcome,
		    next_action_at = $4,
		    chase_due_at = $5,
		    last_contact_at = $6,
		    last_reply_at = $7,
		    visit_at = $8,
		    visit_notes = $9,
		    proposal_value = $10,
		    proposal_valid_until = $11,
		    lost_reason = $12,
		    lost_detail = $13
		WHERE id = $1
	`, c.ID, string(c.Status), outcomeArg(c.Outcome),
		c.NextActionAt, c.ChaseDueAt, c.LastContactAt, c.LastReplyAt,
		c.VisitAt, c.VisitNotes, c.ProposalValue, c.ProposalValidUntil,
		c.LostReason, c.LostDetail)
	if err != nil {
		return fmt.Errorf("client: apply transition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActive returns the operator's working set, oldest first so the longest
// waiting client surfaces first.
func (r *PGRepository) ListActive(ctx context.Context, userID string, page, pageSize int) ([]Client, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 25
	}

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM clients WHERE user_id = $1 AND status <> 'closed'`, userID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("client: count active: %w", err)
	}

	query := `SELECT ` + clientColumns + `
		FROM clients
		WHERE user_id = $1 AND status <> 'closed'
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("client: list active: %w", err)
	}
	defer rows.Close()

	out := make([]Client, 0, pageSize)
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("client: scan: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("client: iterate: %w", err)
	}
	return out, total, nil
}

// NextActive picks the client the operator should see after closing one.
func (r *PGRepository) NextActive(ctx context.Context, userID, excludeID string) (Client, error) {
	query := `SELECT ` + clientColumns + `
		FROM clients
		WHERE user_id = $1 AND status <> 'closed' AND id <> $2
		ORDER BY created_at ASC
		LIMIT 1`

	c, err := scanClient(r.pool.QueryRow(ctx, query, userID, excludeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Client{}, ErrNotFound
		}
		return Client{}, fmt.Errorf("client: next active: %w", err)
	}
	return c, nil
}

// ListOverdue returns active clients whose resolved due date has passed.
func (r *PGRepository) ListOverdue(ctx context.Context, now time.Time) ([]Client, error) {
	query := `SELECT ` + clientColumns + `
		FROM clients
		WHERE status <> 'closed'
		  AND COALESCE(next_action_at, chase_due_at) < $1
		ORDER BY COALESCE(next_action_at, chase_due_at) ASC`

	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("client: list overdue: %w", err)
	}
	defer rows.Close()

	out := make([]Client, 0, 16)
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("client: scan overdue: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("client: iterate overdue: %w", err)
	}
	return out, nil
}

func scanClient(row pgx.Row) (Client, error) {
	var (
		c       Client
		outcome *string
	)
	err := row.Scan(
		&c.ID, &c.OrgID, &c.UserID, &c.Name, &c.Email, &c.Phone, &c.Note,
		&c.Status, &outcome,
		&c.NextActionAt, &c.ChaseDueAt, &c.LastContactAt, &c.LastReplyAt,
		&c.VisitAt, &c.VisitNotes, &c.ProposalValue, &c.ProposalValidUntil,
		&c.LostReason, &c.LostDetail, &c.UnseenCount, &c.CreatedAt,
	)
	if err != nil {
		return Client{}, err
	}
	if outcome != nil {
		o := Outcome(*outcome)
		c.Outcome = &o
	}
	return c, nil
}

func outcomeArg(o *Outcome) *string {
	if o == nil {
		return nil
	}
	s := string(*o)
	return &s
}
