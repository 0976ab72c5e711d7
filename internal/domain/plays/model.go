package plays

import (
	"time"

	"github.com/shopspring/decimal"
)

// UseCase distinguishes what part of the asset a session delivers.
type UseCase string

const (
	UseCaseFull         UseCase = "full"
	UseCaseInstrumental UseCase = "instrumental"
	UseCaseLyrics       UseCase = "lyrics"
)

// PlaySession is one row per delivery attempt. It is never deleted: sessions
// that cross the valid-play threshold become is_valid=true exactly once,
// abandoned ones simply stay behind as audit trail.
type PlaySession struct {
	ID           int64
	ContentID    int64
	CompanyID    int64
	UseCase      UseCase
	RewardCode   int
	RewardAmount decimal.Decimal
	IsValid      bool
	MaxSent      int64 // highest delivered byte offset + 1
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ValidatedAt  *time.Time
}
