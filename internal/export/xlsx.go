package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"slabtrack/internal/domain"
)

const SnipeSheet = "Snipes"

var snipeHeader = []any{
	"ID", "Item", "Title", "Max bid", "Current bid", "Status",
	"Scheduled for", "Bid placed at", "Error", "Created at",
}

func cellTime(t *time.Time) any {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// WriteSnipes renders a one-sheet ledger of snipes to w, one row per snipe in the given order.
func WriteSnipes(w io.Writer, snipes []domain.Snipe) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SnipeSheet); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return err
	}

	if err := f.SetSheetRow(SnipeSheet, "A1", &snipeHeader); err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(snipeHeader), 1)
	if err := f.SetCellStyle(SnipeSheet, "A1", last, bold); err != nil {
		return err
	}

	for i, s := range snipes {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		var current any = ""
		if s.CurrentBid.Valid {
			current = s.CurrentBid.Decimal.InexactFloat64()
		}
		created := s.CreatedAt
		row := []any{
			s.ID, s.ItemID, s.Title, s.MaxBid.InexactFloat64(), current, string(s.Status),
			cellTime(s.ScheduledFor), cellTime(s.BidPlacedAt), s.ErrorMessage, cellTime(&created),
		}
		if err := f.SetSheetRow(SnipeSheet, cell, &row); err != nil {
			return fmt.Errorf("row %d: %w", i+2, err)
		}
	}
	if n := len(snipes); n > 0 {
		if err := f.SetCellStyle(SnipeSheet, "D2", fmt.Sprintf("E%d", n+1), money); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(SnipeSheet, "A", "A", 38)
	_ = f.SetColWidth(SnipeSheet, "C", "C", 32)
	_ = f.SetColWidth(SnipeSheet, "G", "J", 22)

	return f.Write(w)
}
