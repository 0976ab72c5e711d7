package catalog

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

func (r *Repo) Get(ctx context.Context, id int64) (*Content, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, title, grade, duration_sec, file_size, file_path, lyrics_path,
		       price, total_valid_plays, total_reward_amount, created_at
		FROM contents WHERE id = $1
	`, id)

	var c Content
	if err := row.Scan(&c.ID, &c.Title, &c.Grade, &c.DurationSec, &c.FileSize, &c.FilePath,
		&c.LyricsPath, &c.Price, &c.TotalValidPlays, &c.TotalRewardAmount, &c.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}
