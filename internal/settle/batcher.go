package settle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cadst/MPS-XRPL-sub000/internal/domain/companies"
	"github.com/cadst/MPS-XRPL-sub000/internal/domain/ledger"
	"github.com/cadst/MPS-XRPL-sub000/internal/infra/metrics"
	"github.com/cadst/MPS-XRPL-sub000/internal/infra/xrpl"
)

// Ledger is the external distributed ledger as the batcher sees it.
type Ledger interface {
	SubmitUsageRecord(ctx context.Context, digest string) (*xrpl.TxResult, error)
	SubmitPayment(ctx context.Context, destination string, amount decimal.Decimal, memo string) (*xrpl.TxResult, error)
}

type EntryStore interface {
	PendingForDay(ctx context.Context, day time.Time) ([]ledger.Entry, error)
	MarkUsageRecorded(ctx context.Context, ids []int64, txHash string) error
	MarkSettled(ctx context.Context, ids []int64, txHash string, ledgerIndex, feeDrops int64) error
	MarkFailed(ctx context.Context, ids []int64) error
}

type CompanyStore interface {
	Get(ctx context.Context, id int64) (*companies.Company, error)
}

// Summary is what one batch run reports back: counts plus the ledger
// references it produced.
type Summary struct {
	Day        string   `json:"day"`
	Processed  int      `json:"processed"`
	Succeeded  int      `json:"succeeded"`
	Failed     int      `json:"failed"`
	UsageTx    string   `json:"usage_tx,omitempty"`
	PayoutTxs  []string `json:"payout_txs,omitempty"`
	FailedCos  []int64  `json:"failed_companies,omitempty"`
	DurationMS int64    `json:"duration_ms"`
}

// Batcher converts a day's pending reward entries into ledger transactions:
// one usage-record anchor for the whole batch, then one payout per company.
// Per-company submissions are isolated so one reverted payout cannot poison
// another company's entries.
type Batcher struct {
	log       *slog.Logger
	entries   EntryStore
	companies CompanyStore
	ledger    Ledger
}

func NewBatcher(log *slog.Logger, entries EntryStore, comps CompanyStore, lgr Ledger) *Batcher {
	return &Batcher{log: log, entries: entries, companies: comps, ledger: lgr}
}

type companyBatch struct {
	companyID int64
	ids       []int64
	rewardIDs []int64
	total     decimal.Decimal
}

// group buckets entries per company, preserving id order, and sums the
// payable amounts (code 1 only; other outcomes settle as usage records with a
// zero payout).
func group(entries []ledger.Entry) []companyBatch {
	byCompany := map[int64]*companyBatch{}
	for _, e := range entries {
		b, ok := byCompany[e.CompanyID]
		if !ok {
			b = &companyBatch{companyID: e.CompanyID, total: decimal.Zero}
			byCompany[e.CompanyID] = b
		}
		b.ids = append(b.ids, e.ID)
		if e.RewardCode == 1 {
			b.rewardIDs = append(b.rewardIDs, e.ID)
			b.total = b.total.Add(e.Amount)
		}
	}

	out := make([]companyBatch, 0, len(byCompany))
	for _, b := range byCompany {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].companyID < out[j].companyID })
	return out
}

// usageDigest is the batch identity anchored on the ledger: a hash over the
// ordered play session ids.
func usageDigest(day time.Time, entries []ledger.Entry) string {
	var sb strings.Builder
	sb.WriteString(day.Format("2006-01-02"))
	for _, e := range entries {
		fmt.Fprintf(&sb, ":%d", e.PlaySessionID)
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// Run settles every pending entry created on day. Failures are terminal per
// company; the run continues with the remaining companies and reports
// everything in the summary.
func (b *Batcher) Run(ctx context.Context, day time.Time) (*Summary, error) {
	started := time.Now()
	sum := &Summary{Day: day.Format("2006-01-02")}

	entries, err := b.entries.PendingForDay(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("settle: load pending: %w", err)
	}
	sum.Processed = len(entries)
	if len(entries) == 0 {
		sum.DurationMS = time.Since(started).Milliseconds()
		return sum, nil
	}

	// Usage-record batch first: one transaction anchoring the whole day's
	// session identifiers.
	allIDs := make([]int64, len(entries))
	for i, e := range entries {
		allIDs[i] = e.ID
	}
	usageTx, err := b.ledger.SubmitUsageRecord(ctx, usageDigest(day, entries))
	if err != nil {
		// Without the usage anchor nothing settles this run; everything the
		// run touched is terminal failed and left to manual remediation.
		b.log.Error("usage record submission failed", "day", sum.Day, "err", err)
		metrics.LedgerSubmitErrors.Inc()
		b.failEntries(ctx, allIDs, sum)
		sum.DurationMS = time.Since(started).Milliseconds()
		return sum, nil
	}
	sum.UsageTx = usageTx.Hash
	if err := b.entries.MarkUsageRecorded(ctx, allIDs, usageTx.Hash); err != nil {
		b.log.Error("usage metadata update failed", "day", sum.Day, "err", err)
	}

	// Reward-payout batch: one payment per company, amounts aggregated so
	// many small rewards share one transaction's overhead.
	for _, cb := range group(entries) {
		b.settleCompany(ctx, cb, sum)
	}

	sum.DurationMS = time.Since(started).Milliseconds()
	b.log.Info("settlement run complete",
		"day", sum.Day, "processed", sum.Processed,
		"succeeded", sum.Succeeded, "failed", sum.Failed)
	return sum, nil
}

func (b *Batcher) settleCompany(ctx context.Context, cb companyBatch, sum *Summary) {
	var (
		tx  *xrpl.TxResult
		err error
	)
	if cb.total.IsPositive() {
		company, cerr := b.companies.Get(ctx, cb.companyID)
		switch {
		case cerr != nil:
			err = cerr
		case company == nil || company.WalletAddress == "":
			err = fmt.Errorf("settle: company %d has no settlement address", cb.companyID)
		default:
			tx, err = b.ledger.SubmitPayment(ctx, company.WalletAddress, cb.total,
				fmt.Sprintf("mps:%s:%d", sum.Day, cb.companyID))
		}
	} else {
		// Nothing payable: the usage anchor is the whole settlement.
		tx = &xrpl.TxResult{Hash: sum.UsageTx}
	}

	if err != nil {
		b.log.Error("payout failed", "company_id", cb.companyID,
			"amount", cb.total, "err", err)
		metrics.LedgerSubmitErrors.Inc()
		sum.FailedCos = append(sum.FailedCos, cb.companyID)
		b.failEntries(ctx, cb.ids, sum)
		return
	}

	if err := b.entries.MarkSettled(ctx, cb.ids, tx.Hash, tx.LedgerIndex, tx.FeeDrops); err != nil {
		b.log.Error("settled status update failed", "company_id", cb.companyID, "err", err)
		sum.FailedCos = append(sum.FailedCos, cb.companyID)
		sum.Failed += len(cb.ids)
		return
	}
	if cb.total.IsPositive() {
		sum.PayoutTxs = append(sum.PayoutTxs, tx.Hash)
	}
	sum.Succeeded += len(cb.ids)
	metrics.SettledEntries.WithLabelValues(string(ledger.StatusSuccessed)).Add(float64(len(cb.ids)))
}

func (b *Batcher) failEntries(ctx context.Context, ids []int64, sum *Summary) {
	if err := b.entries.MarkFailed(ctx, ids); err != nil {
		b.log.Error("failed status update failed", "err", err)
	}
	sum.Failed += len(ids)
	metrics.SettledEntries.WithLabelValues(string(ledger.StatusFailed)).Add(float64(len(ids)))
}
