package quota

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

// Current returns the quota row for (content, month), or (nil, nil) when the
// content was not enrolled for that month.
func (r *Repo) Current(ctx context.Context, contentID int64, yearMonth string) (*MonthlyQuota, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, content_id, year_month, total, remaining, reward_amount, created_at, updated_at
		FROM monthly_quotas
		WHERE content_id = $1 AND year_month = $2
	`, contentID, yearMonth)

	var q MonthlyQuota
	if err := row.Scan(&q.ID, &q.ContentID, &q.YearMonth, &q.Total, &q.Remaining,
		&q.RewardAmount, &q.CreatedAt, &q.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &q, nil
}
