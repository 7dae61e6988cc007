package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_unseen_count_sync",
			SQL: `SELECT c.id, c.unseen_count, COALESCE(p.pending, 0) AS pending
                  FROM clients c
                  LEFT JOIN (SELECT client_id, COUNT(*) AS pending
                             FROM matches WHERE seen = false
                             GROUP BY client_id) p ON p.client_id = c.id
                  WHERE c.unseen_count <> COALESCE(p.pending, 0)`,
		},
		{
			Name: "O2_match_pair_unique",
			SQL: `SELECT client_id, listing_id, COUNT(*) FROM matches
                  GROUP BY client_id, listing_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O3_timeline_seq_monotonic",
			SQL: `WITH seqs AS (
                      SELECT client_id, seq,
                             LAG(seq) OVER (PARTITION BY client_id ORDER BY seq) AS prev
                      FROM timeline_events)
                  SELECT * FROM seqs WHERE prev IS NOT NULL AND seq <= prev`,
		},
		{
			Name: "O4_lost_reason_scope",
			SQL: `SELECT id, status, outcome FROM clients
                  WHERE lost_reason IS NOT NULL
                    AND (status <> 'closed' OR outcome IS DISTINCT FROM 'lost')`,
		},
		{
			Name: "O5_closed_requires_outcome",
			SQL:  `SELECT id FROM clients WHERE status = 'closed' AND outcome IS NULL`,
		},
		{
			Name: "O6_open_has_no_outcome",
			SQL:  `SELECT id, status FROM clients WHERE status <> 'closed' AND outcome IS NOT NULL`,
		},
		{
			Name: "O7_filter_row_present",
			SQL: `SELECT c.id FROM clients c
                  LEFT JOIN client_filters f ON f.client_id = c.id
                  WHERE f.client_id IS NULL`,
		},
		{
			Name: "O8_timeline_append_only_guard",
			SQL: `SELECT 'missing_no_mutate_trigger' AS detail
                  WHERE NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = 'no_mutate_timeline_events')`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
