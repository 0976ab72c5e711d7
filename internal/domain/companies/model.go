package companies

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cadst/MPS-XRPL-sub000/internal/domain/catalog"
)

// Tier is the ordered company grade. Higher tiers unlock higher content grades.
type Tier string

const (
	TierFree     Tier = "free"
	TierStandard Tier = "standard"
	TierBusiness Tier = "business"
)

func (t Tier) rank() int {
	switch t {
	case TierFree:
		return 0
	case TierStandard:
		return 1
	case TierBusiness:
		return 2
	}
	return -1
}

func (t Tier) Valid() bool { return t.rank() >= 0 }

// Satisfies is the explicit permission relation between a company tier and a
// content grade: general content needs free, rewardable needs standard,
// reserved needs business.
func (t Tier) Satisfies(g catalog.Grade) bool {
	return t.rank() >= int(g)
}

type Company struct {
	ID            int64
	Name          string
	APIKey        string
	Tier          Tier
	WalletAddress string
	// lifetime counter, rolled forward by settlement
	TotalRewardAmount decimal.Decimal
	CreatedAt         time.Time
}

type Subscription struct {
	ID        int64
	CompanyID int64
	StartedAt time.Time
	ExpiresAt time.Time
}
