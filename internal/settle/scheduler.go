package settle

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cadst/MPS-XRPL-sub000/internal/infra/notify"
)

// advisoryLockKey guards the daily run across service instances. Whoever
// fails to take the Postgres advisory lock skips the run entirely.
const advisoryLockKey = 0x4d505353 // "MPSS"

// Scheduler fires the batcher once per day at the configured local hour,
// settling the prior day's entries. Single-flight is delegated to the
// database, not in-process timers, so running several instances is safe.
type Scheduler struct {
	log     *slog.Logger
	pool    *pgxpool.Pool
	batcher *Batcher
	notif   *notify.Notifier
	hour    int
	loc     *time.Location
}

func NewScheduler(log *slog.Logger, pool *pgxpool.Pool, b *Batcher, n *notify.Notifier, hour int, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{log: log, pool: pool, batcher: b, notif: n, hour: hour, loc: loc}
}

// Start blocks until ctx is done. Call it in its own goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	for {
		next := s.nextRun(time.Now().In(s.loc))
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.runOnce(ctx, next.AddDate(0, 0, -1))
		}
	}
}

func (s *Scheduler) nextRun(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), s.hour, 0, 0, 0, s.loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// RunDay executes one guarded settlement run for the given day. Used by both
// the schedule and the admin trigger.
func (s *Scheduler) RunDay(ctx context.Context, day time.Time) (*Summary, bool, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, false, err
	}
	defer conn.Release()

	var locked bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, advisoryLockKey).Scan(&locked); err != nil {
		return nil, false, err
	}
	if !locked {
		return nil, false, nil
	}
	defer func() {
		_, _ = conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, advisoryLockKey)
	}()

	sum, err := s.batcher.Run(ctx, day)
	return sum, true, err
}

func (s *Scheduler) runOnce(ctx context.Context, day time.Time) {
	sum, ran, err := s.RunDay(ctx, day)
	if err != nil {
		s.log.Error("scheduled settlement failed", "day", day.Format("2006-01-02"), "err", err)
		s.notif.Send("settlement run failed for " + day.Format("2006-01-02") + ": " + err.Error())
		return
	}
	if !ran {
		s.log.Info("settlement skipped, another instance holds the lock")
		return
	}
	s.notif.Send(summaryText(sum))
}
