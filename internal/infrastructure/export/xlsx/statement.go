package xlsx

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/legal-search-engine/internal/core/domain"
)

const (
	sheetName  = "Statement"
	timeLayout = "2006-01-02 15:04:05"
)

var statementHeader = []any{"Date", "Operation", "Description", "Reference", "Credits", "Monetary cost", "Balance after"}

type StatementExporter struct{}

func NewStatementExporter() *StatementExporter {
	return &StatementExporter{}
}

// WriteStatement renders a one-sheet workbook: account summary on top, then
// one row per ledger transaction in the order given.
func (e *StatementExporter) WriteStatement(w io.Writer, account domain.CreditAccount, transactions []domain.CreditTransaction) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	summary := [][]any{
		{"User", account.UserID},
		{"Plan", account.Plan},
		{"Balance", account.Balance.String()},
		{"Cost per credit", account.CostPerCredit.String()},
	}
	for i, row := range summary {
		if err := setRow(f, i+1, row); err != nil {
			return err
		}
	}

	headerRow := len(summary) + 2
	if err := setRow(f, headerRow, statementHeader); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(statementHeader), headerRow)
	if err := f.SetCellStyle(sheetName, fmt.Sprintf("A%d", headerRow), last, bold); err != nil {
		return fmt.Errorf("apply header style: %w", err)
	}

	for i, tx := range transactions {
		row := []any{
			tx.CreatedAt.UTC().Format(timeLayout),
			string(tx.Operation),
			tx.Description,
			tx.Reference,
			tx.Amount.InexactFloat64(),
			tx.MonetaryCost.InexactFloat64(),
			tx.BalanceAfter.InexactFloat64(),
		}
		if err := setRow(f, headerRow+1+i, row); err != nil {
			return err
		}
	}

	if err := f.SetColWidth(sheetName, "A", "D", 22); err != nil {
		return fmt.Errorf("column width: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}
