package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Grade orders content by reward/permission level.
type Grade int

const (
	GradeGeneral    Grade = 0 // streamable by anyone, never rewarded
	GradeRewardable Grade = 1 // pays out per valid play, quota permitting
	GradeReserved   Grade = 2 // reserved catalog, top tier only
)

func (g Grade) Valid() bool {
	return g >= GradeGeneral && g <= GradeReserved
}

// Rewardable reports whether a valid play of this grade can earn a reward.
func (g Grade) Rewardable() bool { return g == GradeRewardable }

type Content struct {
	ID          int64
	Title       string
	Grade       Grade
	DurationSec int
	FileSize    int64
	FilePath    string
	LyricsPath  string
	Price       decimal.Decimal
	// lifetime counters, rolled forward by settlement
	TotalValidPlays   int64
	TotalRewardAmount decimal.Decimal
	CreatedAt         time.Time
}

func (c Content) Duration() time.Duration {
	return time.Duration(c.DurationSec) * time.Second
}
