package match

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func TestMatchLifecycleAgainstDatabase(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	requiredTables := []string{
		"orgs",
		"users",
		"clients",
		"client_filters",
		"listings",
		"matches",
	}
	for _, tbl := range requiredTables {
		if !tableExists(ctx, pool, tbl) {
			t.Skipf("table %s does not exist; ensure migrations are applied", tbl)
		}
	}

	mustInsert := func(query string, args ...any) string {
		var id string
		if err := pool.QueryRow(ctx, query, args...).Scan(&id); err != nil {
			t.Fatalf("seed statement failed: %v", err)
		}
		return id
	}

	nonce := time.Now().UnixNano()
	orgID := mustInsert(`INSERT INTO orgs (name) VALUES ($1) RETURNING id`,
		fmt.Sprintf("Imob %d", nonce))
	userID := mustInsert(`INSERT INTO users (org_id, full_name, email) VALUES ($1, $2, $3) RETURNING id`,
		orgID, "Broker Agent", fmt.Sprintf("agent+%d@example.com", nonce))
	clientID := mustInsert(`INSERT INTO clients (org_id, user_id, name) VALUES ($1, $2, 'Integration Client') RETURNING id`,
		orgID, userID)
	if _, err := pool.Exec(ctx, `INSERT INTO client_filters (client_id, active, deal_type) VALUES ($1, true, 'sale')`, clientID); err != nil {
		t.Fatalf("seed filter: %v", err)
	}

	listingID := fmt.Sprintf("ext-it-%d", nonce)
	if _, err := pool.Exec(ctx, `INSERT INTO listings (id, deal_type, price, neighborhood, neighborhood_norm, property_type)
        VALUES ($1, 'sale', 250000, 'Centro', 'centro', 'apartment')`, listingID); err != nil {
		t.Fatalf("seed listing: %v", err)
	}

	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM matches WHERE client_id = $1`, clientID)
		pool.Exec(ctx2, `DELETE FROM clients WHERE id = $1`, clientID)
		pool.Exec(ctx2, `DELETE FROM listings WHERE id = $1`, listingID)
		pool.Exec(ctx2, `DELETE FROM users WHERE id = $1`, userID)
		pool.Exec(ctx2, `DELETE FROM orgs WHERE id = $1`, orgID)
	})

	store := NewStore(pool)

	inserted, err := store.InsertPending(ctx, clientID, listingID)
	if err != nil {
		t.Fatalf("insert pending: %v", err)
	}
	if !inserted {
		t.Fatalf("expected first insert to create the match")
	}

	if n, err := store.UnseenCount(ctx, clientID); err != nil || n != 1 {
		t.Fatalf("expected unseen count 1, got %d (%v)", n, err)
	}

	// Replaying the same pair is a silent no-op.
	inserted, err = store.InsertPending(ctx, clientID, listingID)
	if err != nil {
		t.Fatalf("replay insert: %v", err)
	}
	if inserted {
		t.Fatalf("expected replay insert to be dropped")
	}
	if n, _ := store.UnseenCount(ctx, clientID); n != 1 {
		t.Fatalf("expected unseen count to stay 1 after replay, got %d", n)
	}

	pending, total, err := store.ListByState(ctx, clientID, StatePending, 1, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if total != 1 || len(pending) != 1 {
		t.Fatalf("expected one pending match, got %d", total)
	}
	matchID := pending[0].ID

	curated, err := store.Curate(ctx, matchID)
	if err != nil {
		t.Fatalf("curate: %v", err)
	}
	if curated.State() != StateCurated {
		t.Fatalf("expected curated state, got %s", curated.State())
	}
	if n, _ := store.UnseenCount(ctx, clientID); n != 0 {
		t.Fatalf("expected unseen count 0 after curation, got %d", n)
	}

	// Curating a curated match is idempotent.
	if _, err := store.Curate(ctx, matchID); err != nil {
		t.Fatalf("idempotent curate: %v", err)
	}

	archived, err := store.Archive(ctx, matchID)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if archived.State() != StateArchived {
		t.Fatalf("expected archived state, got %s", archived.State())
	}

	// Archived matches cannot be curated back.
	if _, err := store.Curate(ctx, matchID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for archived curate, got %v", err)
	}

	if err := store.Delete(ctx, matchID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	// Deleting a missing match stays silent.
	if err := store.Delete(ctx, matchID); err != nil {
		t.Fatalf("idempotent delete: %v", err)
	}

	if _, err := store.GetByID(ctx, matchID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func tableExists(ctx context.Context, pool *pgxpool.Pool, name string) bool {
	var exists bool
	if err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)`, name).Scan(&exists); err != nil {
		return false
	}
	return exists
}
