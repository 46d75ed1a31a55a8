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

// All returns invariant queries. Each must return zero rows on a healthy
// database, also while actors are running.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_reward_only_when_completed",
			SQL:  `SELECT id FROM listings WHERE rewarded_at IS NOT NULL AND status <> 4`,
		},
		{
			Name: "O2_trade_count_matches_rewards",
			SQL: `SELECT t.total, r.rewarded FROM
                      (SELECT COALESCE(SUM(completed_trade_count), 0) AS total FROM reputation) t,
                      (SELECT COUNT(*) AS rewarded FROM listings WHERE rewarded_at IS NOT NULL) r
                  WHERE t.total <> 2 * r.rewarded`,
		},
		{
			Name: "O3_points_follow_trades",
			SQL: `SELECT user_id FROM reputation
                  WHERE points <> 10 * completed_trade_count
                     OR experience <> 20 * completed_trade_count`,
		},
		{
			Name: "O4_selection_consistent",
			SQL: `SELECT l.id FROM listings l
                  LEFT JOIN trade_requests r ON r.id = l.selected_request_id
                  WHERE (l.status IN (2, 3, 4) AND l.selected_request_id IS NULL)
                     OR (l.selected_request_id IS NOT NULL AND r.listing_id <> l.id)
                     OR (l.status = 4 AND r.status <> 3)`,
		},
		{
			Name: "O5_completed_request_has_completed_listing",
			SQL: `SELECT r.id FROM trade_requests r
                  JOIN listings l ON l.id = r.listing_id
                  WHERE r.status = 3 AND (l.status <> 4 OR l.selected_request_id <> r.id)`,
		},
		{
			Name: "O6_one_open_request_per_requester",
			SQL: `SELECT listing_id, requester_id FROM trade_requests
                  WHERE status <> 0
                  GROUP BY listing_id, requester_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O7_no_self_requests",
			SQL: `SELECT r.id FROM trade_requests r
                  JOIN listings l ON l.id = r.listing_id
                  WHERE r.requester_id = l.owner_id`,
		},
		{
			Name: "O8_outbox_drained",
			SQL: `SELECT id FROM outbox
                  WHERE status = 'pending' AND now() - created_at > interval '5 minutes'`,
		},
		{
			Name: "O9_history_append_only",
			SQL: `SELECT 'missing_append_only_trigger' AS detail
                  WHERE NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = 'trade_history_no_mutation')`,
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
		if err := rows.Err(); err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
	}
	return "", "", nil
}
