package companies

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

func (r *Repo) ByAPIKey(ctx context.Context, key string) (*Company, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, api_key, tier, wallet_address, total_reward_amount, created_at
		FROM companies WHERE api_key = $1
	`, key)

	var c Company
	if err := row.Scan(&c.ID, &c.Name, &c.APIKey, &c.Tier, &c.WalletAddress,
		&c.TotalRewardAmount, &c.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *Repo) Get(ctx context.Context, id int64) (*Company, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, api_key, tier, wallet_address, total_reward_amount, created_at
		FROM companies WHERE id = $1
	`, id)

	var c Company
	if err := row.Scan(&c.ID, &c.Name, &c.APIKey, &c.Tier, &c.WalletAddress,
		&c.TotalRewardAmount, &c.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// ActiveSubscription returns the subscription covering "at", or (nil, nil).
// The newest one wins when several overlap.
func (r *Repo) ActiveSubscription(ctx context.Context, companyID int64, at time.Time) (*Subscription, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, company_id, started_at, expires_at
		FROM subscriptions
		WHERE company_id = $1 AND started_at <= $2 AND expires_at > $2
		ORDER BY started_at DESC
		LIMIT 1
	`, companyID, at)

	var s Subscription
	if err := row.Scan(&s.ID, &s.CompanyID, &s.StartedAt, &s.ExpiresAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// RewardCountSince counts reward-eligible finalized plays inside the current
// cap window. The window anchor comes from the subscription start date.
func (r *Repo) RewardCountSince(ctx context.Context, companyID int64, since time.Time) (int, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM play_sessions
		WHERE company_id = $1 AND is_valid = TRUE AND reward_code = 1
		  AND validated_at >= $2
	`, companyID, since)

	var n int
	return n, row.Scan(&n)
}
