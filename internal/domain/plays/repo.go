package plays

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

func (r *Repo) Create(ctx context.Context, contentID, companyID int64, useCase UseCase) (int64, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO play_sessions (content_id, company_id, use_case, reward_code, reward_amount, is_valid, max_sent)
		VALUES ($1, $2, $3, 0, 0, FALSE, 0)
		RETURNING id
	`, contentID, companyID, useCase)

	var id int64
	return id, row.Scan(&id)
}

func (r *Repo) Get(ctx context.Context, id int64) (*PlaySession, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, content_id, company_id, use_case, reward_code, reward_amount,
		       is_valid, max_sent, created_at, updated_at, validated_at
		FROM play_sessions WHERE id = $1
	`, id)

	var p PlaySession
	if err := row.Scan(&p.ID, &p.ContentID, &p.CompanyID, &p.UseCase, &p.RewardCode,
		&p.RewardAmount, &p.IsValid, &p.MaxSent, &p.CreatedAt, &p.UpdatedAt, &p.ValidatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// UpdateProgress advances the delivered-bytes watermark. Concurrent range
// requests may race here; GREATEST keeps the column monotonic regardless of
// delivery order, and the token stays the authoritative progress record.
func (r *Repo) UpdateProgress(ctx context.Context, id int64, maxSent int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE play_sessions
		SET max_sent = GREATEST(max_sent, $2), updated_at = NOW()
		WHERE id = $1
	`, id, maxSent)
	return err
}
