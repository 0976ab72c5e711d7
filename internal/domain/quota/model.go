package quota

import (
	"time"

	"github.com/shopspring/decimal"
)

// MonthlyQuota is one row per (content, calendar month): the budget of
// reward-eligible plays. remaining never leaves [0, total].
type MonthlyQuota struct {
	ID           int64
	ContentID    int64
	YearMonth    string // "2006-01"
	Total        int
	Remaining    int
	RewardAmount decimal.Decimal
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (q *MonthlyQuota) Exhausted() bool {
	return q == nil || q.Remaining <= 0
}

// YearMonth formats t as a quota period key.
func YearMonth(t time.Time) string { return t.Format("2006-01") }
