package reward

import (
	"time"

	"github.com/cadst/MPS-XRPL-sub000/internal/domain/catalog"
	"github.com/cadst/MPS-XRPL-sub000/internal/domain/quota"
)

// Code is the reward outcome recorded on a finalized play.
type Code int

const (
	CodeNoReward      Code = 0 // content grade is not reward-eligible
	CodeRewarded      Code = 1 // reward granted
	CodeQuotaExceeded Code = 2 // no quota row or zero remaining slots
	CodeCapReached    Code = 3 // company hit its rolling monthly cap
)

func (c Code) String() string {
	switch c {
	case CodeNoReward:
		return "no_reward"
	case CodeRewarded:
		return "rewarded"
	case CodeQuotaExceeded:
		return "quota_exceeded"
	case CodeCapReached:
		return "cap_reached"
	}
	return "unknown"
}

// MonthlyCap is the hard per-company limit of reward-eligible finalized plays
// inside one cap window.
const MonthlyCap = 5000

// Resolve decides the reward outcome for a play. Read-only: the inputs are
// whatever the caller loaded at finalization time.
func Resolve(grade catalog.Grade, q *quota.MonthlyQuota, companyRewardCount int) Code {
	if !grade.Rewardable() {
		return CodeNoReward
	}
	// The cap is terminal for the whole window: once reached it wins even
	// when the content quota is also gone.
	if companyRewardCount >= MonthlyCap {
		return CodeCapReached
	}
	if q.Exhausted() {
		return CodeQuotaExceeded
	}
	return CodeRewarded
}

// WindowStart returns the anchor of the cap window containing now: the
// subscription start date advanced by whole months. A subscription started on
// Jan 15 yields windows Jan 15..Feb 15, Feb 15..Mar 15 and so on.
func WindowStart(subscriptionStart, now time.Time) time.Time {
	if now.Before(subscriptionStart) {
		return subscriptionStart
	}
	anchor := subscriptionStart
	for {
		next := anchor.AddDate(0, 1, 0)
		if next.After(now) {
			return anchor
		}
		anchor = next
	}
}
