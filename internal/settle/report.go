package settle

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/cadst/MPS-XRPL-sub000/internal/domain/ledger"
)

type ReportStore interface {
	ForDay(ctx context.Context, day time.Time) ([]ledger.Entry, error)
}

var reportHeader = []string{
	"Entry ID", "Play Session", "Company", "Content", "Code",
	"Amount", "Status", "Usage Tx", "Payout Tx", "Ledger Index", "Fee (drops)", "Settled At",
}

// BuildReport renders one day's ledger entries as an XLSX workbook for the
// admin download.
func BuildReport(ctx context.Context, store ReportStore, day time.Time) (*excelize.File, error) {
	entries, err := store.ForDay(ctx, day)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	sheet := "Settlement"
	f.SetSheetName("Sheet1", sheet)

	for col, title := range reportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, title); err != nil {
			return nil, err
		}
	}

	for i, e := range entries {
		row := i + 2
		values := []any{
			e.ID, e.PlaySessionID, e.CompanyID, e.ContentID, e.RewardCode,
			e.Amount.StringFixed(6), string(e.Status),
			deref(e.UsageTxHash), deref(e.TxHash), derefInt(e.LedgerIndex), derefInt(e.FeeDrops),
			settledAt(e.SettledAt),
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, err
			}
		}
	}
	return f, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(v *int64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%d", *v)
}

func settledAt(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
