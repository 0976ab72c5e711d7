package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the settlement state of a reward ledger entry. Both terminal
// states stay terminal: failed entries are left for manual remediation and
// are never re-selected by the batcher.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSuccessed Status = "successed"
	StatusFailed    Status = "failed"
)

// Entry is one row per finalized valid play, written exactly once by the
// finalizer and thereafter mutated only by the settlement batcher.
type Entry struct {
	ID            int64
	PlaySessionID int64
	CompanyID     int64
	ContentID     int64
	RewardCode    int
	Amount        decimal.Decimal
	Status        Status
	UsageTxHash   *string
	TxHash        *string
	LedgerIndex   *int64
	FeeDrops      *int64
	CreatedAt     time.Time
	SettledAt     *time.Time
}
