package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

// FinalizePlay marks a play session valid and records its reward entry as one
// transaction. It is the only writer allowed to do so, and it is idempotent:
// a session that is already valid is left untouched and (false, nil) is
// returned.
//
// For code 1 the quota row for yearMonth, the period the reward was resolved
// against, is decremented under a remaining > 0 guard. When the guard loses a
// race (quota hit zero between resolve and finalize) the decrement is skipped
// but the reward already decided is still honored. Deliberate relaxation, not
// a bug.
func (r *Repo) FinalizePlay(ctx context.Context, playID int64, code int, amount decimal.Decimal, yearMonth string) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		isValid   bool
		contentID int64
		companyID int64
	)
	row := tx.QueryRow(ctx, `
		SELECT is_valid, content_id, company_id
		FROM play_sessions WHERE id = $1
		FOR UPDATE
	`, playID)
	if err := row.Scan(&isValid, &contentID, &companyID); err != nil {
		return false, fmt.Errorf("finalize: load session %d: %w", playID, err)
	}
	if isValid {
		return false, nil
	}

	if _, err := tx.Exec(ctx, `
		UPDATE play_sessions
		SET is_valid = TRUE, reward_code = $2, reward_amount = $3,
		    validated_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`, playID, code, amount); err != nil {
		return false, fmt.Errorf("finalize: mark valid: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO reward_ledger_entries
		(play_session_id, company_id, content_id, reward_code, amount, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')
	`, playID, companyID, contentID, code, amount); err != nil {
		return false, fmt.Errorf("finalize: insert entry: %w", err)
	}

	if code == 1 {
		_, err := tx.Exec(ctx, `
			UPDATE monthly_quotas
			SET remaining = remaining - 1, updated_at = NOW()
			WHERE content_id = $1 AND year_month = $2 AND remaining > 0
		`, contentID, yearMonth)
		if err != nil {
			return false, fmt.Errorf("finalize: decrement quota: %w", err)
		}
	}

	return true, tx.Commit(ctx)
}

// PendingForDay returns pending entries created on the given calendar day.
func (r *Repo) PendingForDay(ctx context.Context, day time.Time) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, play_session_id, company_id, content_id, reward_code, amount,
		       status, usage_tx_hash, tx_hash, ledger_index, fee_drops, created_at, settled_at
		FROM reward_ledger_entries
		WHERE status = 'pending' AND created_at::date = $1::date
		ORDER BY company_id, id
	`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.PlaySessionID, &e.CompanyID, &e.ContentID, &e.RewardCode,
			&e.Amount, &e.Status, &e.UsageTxHash, &e.TxHash, &e.LedgerIndex, &e.FeeDrops,
			&e.CreatedAt, &e.SettledAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkUsageRecorded stamps the usage-record transaction hash on a set of
// entries. Status stays pending; the payout step decides the terminal state.
func (r *Repo) MarkUsageRecorded(ctx context.Context, ids []int64, txHash string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE reward_ledger_entries SET usage_tx_hash = $2 WHERE id = ANY($1)
	`, ids, txHash)
	return err
}

// MarkSettled flips a company's aggregated entries to successed and rolls the
// settled amounts into the lifetime counters on contents and companies, all
// in one transaction so no partial per-entry success is observable.
func (r *Repo) MarkSettled(ctx context.Context, ids []int64, txHash string, ledgerIndex, feeDrops int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		UPDATE reward_ledger_entries
		SET status = 'successed', tx_hash = $2, ledger_index = $3, fee_drops = $4, settled_at = NOW()
		WHERE id = ANY($1) AND status = 'pending'
	`, ids, txHash, ledgerIndex, feeDrops); err != nil {
		return fmt.Errorf("settle: mark successed: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE contents c
		SET total_valid_plays = c.total_valid_plays + s.plays,
		    total_reward_amount = c.total_reward_amount + s.amount
		FROM (
			SELECT content_id, COUNT(*) AS plays, SUM(amount) AS amount
			FROM reward_ledger_entries WHERE id = ANY($1)
			GROUP BY content_id
		) s
		WHERE c.id = s.content_id
	`, ids); err != nil {
		return fmt.Errorf("settle: content counters: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE companies co
		SET total_reward_amount = co.total_reward_amount + s.amount
		FROM (
			SELECT company_id, SUM(amount) AS amount
			FROM reward_ledger_entries WHERE id = ANY($1)
			GROUP BY company_id
		) s
		WHERE co.id = s.company_id
	`, ids); err != nil {
		return fmt.Errorf("settle: company counters: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *Repo) MarkFailed(ctx context.Context, ids []int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE reward_ledger_entries SET status = 'failed' WHERE id = ANY($1) AND status = 'pending'
	`, ids)
	return err
}

// ForDay returns every entry created on the given day, any status. Used by
// the settlement report.
func (r *Repo) ForDay(ctx context.Context, day time.Time) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, play_session_id, company_id, content_id, reward_code, amount,
		       status, usage_tx_hash, tx_hash, ledger_index, fee_drops, created_at, settled_at
		FROM reward_ledger_entries
		WHERE created_at::date = $1::date
		ORDER BY company_id, id
	`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.PlaySessionID, &e.CompanyID, &e.ContentID, &e.RewardCode,
			&e.Amount, &e.Status, &e.UsageTxHash, &e.TxHash, &e.LedgerIndex, &e.FeeDrops,
			&e.CreatedAt, &e.SettledAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
