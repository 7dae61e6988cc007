package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Feeder plays the aggregator: it keeps inserting fresh listings with external ids.
func Feeder(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		id := fmt.Sprintf("ext-%d", rand.Int63())
		_, err := pool.Exec(ctx, `INSERT INTO listings (id, deal_type, price, neighborhood, neighborhood_norm, property_type)
                                   VALUES ($1, 'sale', $2, 'Centro', 'centro', 'apartment')
                                   ON CONFLICT (id) DO NOTHING`, id, 100_000+rand.Int63n(900_000))
		if err != nil {
			return fmt.Errorf("feeder insert: %w", err)
		}
		time.Sleep(time.Duration(15+rand.Intn(30)) * time.Millisecond)
	}
}

// Matcher races to attach recent listings to the same client as pending matches,
// bumping the unseen counter in the same transaction.
func Matcher(ctx context.Context, pool *pgxpool.Pool, clientID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		var listingID string
		err = tx.QueryRow(ctx, `SELECT id FROM listings ORDER BY created_at DESC LIMIT 1`).Scan(&listingID)
		if err == nil {
			tag, insErr := tx.Exec(ctx, `INSERT INTO matches (client_id, listing_id) VALUES ($1, $2)
                                          ON CONFLICT (client_id, listing_id) DO NOTHING`, clientID, listingID)
			if insErr != nil {
				var pgErr *pgconn.PgError
				if !errors.As(insErr, &pgErr) {
					_ = tx.Rollback(ctx)
					return fmt.Errorf("matcher insert: %w", insErr)
				}
			} else if tag.RowsAffected() == 1 {
				if _, err := tx.Exec(ctx, `UPDATE clients SET unseen_count = unseen_count + 1 WHERE id = $1`, clientID); err != nil {
					_ = tx.Rollback(ctx)
					return fmt.Errorf("matcher bump unseen: %w", err)
				}
			}
			_ = tx.Commit(ctx)
		} else {
			_ = tx.Rollback(ctx)
		}
		time.Sleep(time.Duration(10+rand.Intn(25)) * time.Millisecond)
	}
}

// Curator drains pending matches into the curated state, decrementing the unseen
// counter in the same transaction.
func Curator(ctx context.Context, pool *pgxpool.Pool, clientID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		var matchID string
		err = tx.QueryRow(ctx, `SELECT id FROM matches WHERE client_id = $1 AND seen = false
                                 LIMIT 1 FOR UPDATE SKIP LOCKED`, clientID).Scan(&matchID)
		if err == nil {
			_, err = tx.Exec(ctx, `UPDATE matches SET seen = true, is_notified = true WHERE id = $1`, matchID)
			if err == nil {
				_, err = tx.Exec(ctx, `UPDATE clients SET unseen_count = GREATEST(unseen_count - 1, 0) WHERE id = $1`, clientID)
			}
			if err != nil {
				_ = tx.Rollback(ctx)
				return fmt.Errorf("curator: %w", err)
			}
			_ = tx.Commit(ctx)
		} else {
			_ = tx.Rollback(ctx)
		}
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// Archiver demotes curated matches to archived. Archived rows stay seen, so the
// unseen counter is untouched.
func Archiver(ctx context.Context, pool *pgxpool.Pool, clientID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := pool.Exec(ctx, `UPDATE matches SET is_notified = false
                                   WHERE id = (SELECT id FROM matches
                                               WHERE client_id = $1 AND seen = true AND is_notified = true
                                               LIMIT 1)`, clientID)
		if err != nil {
			return fmt.Errorf("archiver: %w", err)
		}
		time.Sleep(time.Duration(40+rand.Intn(60)) * time.Millisecond)
	}
}

// Transitioner walks the client around the pipeline, appending one timeline
// event per hop in the same transaction as the status update.
func Transitioner(ctx context.Context, pool *pgxpool.Pool, clientID, actorID string, stop <-chan struct{}) error {
	next := map[string]string{
		"new_match":       "contacted",
		"contacted":       "in_conversation",
		"in_conversation": "awaiting_reply",
		"awaiting_reply":  "visit_scheduled",
		"visit_scheduled": "proposal",
		"proposal":        "closed",
		"closed":          "new_match",
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		var from string
		err = tx.QueryRow(ctx, `SELECT status FROM clients WHERE id = $1 FOR UPDATE`, clientID).Scan(&from)
		if err != nil {
			_ = tx.Rollback(ctx)
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("transitioner: client %s vanished", clientID)
			}
			time.Sleep(20 * time.Millisecond)
			continue
		}
		to := next[from]

		switch {
		case to == "closed" && rand.Intn(2) == 0:
			_, err = tx.Exec(ctx, `UPDATE clients SET status = 'closed', outcome = 'lost',
                                    lost_reason = 'budget', lost_detail = 'over asking'
                                    WHERE id = $1`, clientID)
		case to == "closed":
			_, err = tx.Exec(ctx, `UPDATE clients SET status = 'closed', outcome = 'won',
                                    lost_reason = NULL, lost_detail = NULL
                                    WHERE id = $1`, clientID)
		default:
			_, err = tx.Exec(ctx, `UPDATE clients SET status = $2::pipeline_status, outcome = NULL,
                                    lost_reason = NULL, lost_detail = NULL
                                    WHERE id = $1`, clientID, to)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("transitioner update: %w", err)
		}

		_, err = tx.Exec(ctx, `INSERT INTO timeline_events (client_id, seq, event_type, from_status, to_status, actor_id, payload)
                                SELECT $1, COALESCE(MAX(seq), 0) + 1, 'STATUS_CHANGE', $2::pipeline_status, $3::pipeline_status, $4, '{}'::jsonb
                                FROM timeline_events WHERE client_id = $1`, clientID, from, to, actorID)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" { // seq race lost
				_ = tx.Rollback(ctx)
				continue
			}
			_ = tx.Rollback(ctx)
			return fmt.Errorf("transitioner event: %w", err)
		}
		_ = tx.Commit(ctx)
		time.Sleep(time.Duration(30+rand.Intn(50)) * time.Millisecond)
	}
}

// MutationProber keeps trying to rewrite timeline history; every attempt must be
// rejected by the append-only trigger.
func MutationProber(ctx context.Context, pool *pgxpool.Pool, clientID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		updTag, updErr := pool.Exec(ctx, `UPDATE timeline_events SET event_type = 'TAMPERED' WHERE client_id = $1`, clientID)
		if updErr == nil && updTag.RowsAffected() > 0 {
			return fmt.Errorf("mutation prober: timeline accepted an update")
		}
		delTag, delErr := pool.Exec(ctx, `DELETE FROM timeline_events WHERE client_id = $1`, clientID)
		if delErr == nil && delTag.RowsAffected() > 0 {
			return fmt.Errorf("mutation prober: timeline accepted a delete")
		}
		time.Sleep(time.Duration(100+rand.Intn(100)) * time.Millisecond)
	}
}
