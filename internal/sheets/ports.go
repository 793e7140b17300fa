package sheets

import (
	"context"

	"presupuestos/internal/core"
)

// Ports for outbound adapters.
type (
	// BudgetWriter mirrors a committed budget to an external spreadsheet.
	// Each call replaces whatever was previously written for the budget.
	BudgetWriter interface {
		WriteBudget(ctx context.Context, b core.Budget, rows []core.BudgetAnalysisUsage) error
	}
)

// Header is the column layout of a mirrored budget.
var Header = []string{"Código", "Descripción", "Unidad", "Cantidad", "Valor unitario", "Valor total"}

// BudgetValues lays out a budget as a values matrix: header, one line per
// row, a blank line and the total. Amounts are rounded to cents.
func BudgetValues(b core.Budget, rows []core.BudgetAnalysisUsage) [][]any {
	out := make([][]any, 0, len(rows)+4)
	out = append(out, []any{b.Code, b.Description})
	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	out = append(out, header)
	for _, r := range rows {
		out = append(out, []any{
			r.AnalysisCode,
			r.Description,
			r.Unit,
			r.Quantity.InexactFloat64(),
			core.Currency(r.UnitPrice).InexactFloat64(),
			core.Currency(r.Subtotal).InexactFloat64(),
		})
	}
	out = append(out, []any{})
	out = append(out, []any{"", "TOTAL", "", "", "", core.Currency(b.Total).InexactFloat64()})
	return out
}
