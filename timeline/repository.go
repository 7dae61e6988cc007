package timeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Append writes one event inside the caller's transaction, taking the next
// per-client sequence number under the row lock the caller already holds.
func (r *Repository) Append(ctx context.Context, tx pgx.Tx, ev Event) error {
	if ev.ClientID == "" {
		return fmt.Errorf("timeline: missing client id")
	}
	if ev.EventType != EventStatusChange && ev.EventType != EventPipelineActivity {
		return fmt.Errorf("timeline: invalid event type %q", ev.EventType)
	}

	payload := ev.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("timeline: marshal payload: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO timeline_events (client_id, seq, event_type, from_status, to_status, actor_id, payload)
		SELECT $1,
		       COALESCE((SELECT MAX(seq) FROM timeline_events WHERE client_id = $1), 0) + 1,
		       $2, $3::pipeline_status, $4::pipeline_status, $5, $6::jsonb
	`, ev.ClientID, ev.EventType, string(ev.FromStatus), string(ev.ToStatus), ev.ActorID, string(raw)); err != nil {
		return fmt.Errorf("timeline: insert event: %w", err)
	}
	return nil
}

// ListByClient returns events newest first.
func (r *Repository) ListByClient(ctx context.Context, clientID string, page, pageSize int) ([]Event, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 50
	}

	const query = `
		SELECT id, client_id, seq, event_type, from_status::text, to_status::text,
		       actor_id, payload, created_at
		FROM timeline_events
		WHERE client_id = $1
		ORDER BY seq DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, clientID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("timeline: list: %w", err)
	}
	defer rows.Close()

	out := make([]Event, 0, pageSize)
	for rows.Next() {
		var (
			ev  Event
			raw []byte
		)
		if err := rows.Scan(&ev.ID, &ev.ClientID, &ev.Seq, &ev.EventType,
			&ev.FromStatus, &ev.ToStatus, &ev.ActorID, &raw, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("timeline: scan: %w", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &ev.Payload); err != nil {
				return nil, fmt.Errorf("timeline: decode payload: %w", err)
			}
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("timeline: iterate: %w", err)
	}
	return out, nil
}
