// Package export renders committed budgets as xlsx workbooks.
package export

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"presupuestos/internal/core"
	"presupuestos/internal/services"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	budgetSheet  = "Presupuesto"
	maxSheetName = 31
	// excelize built-in format "#,##0.00".
	numFmtAmount = 4
)

// Data is everything a budget workbook shows.
type Data struct {
	Budget     core.Budget
	Rows       []core.BudgetAnalysisUsage
	Breakdowns []services.Breakdown
}

// BudgetSource and AnalysisSource are the reads Load needs.
type (
	BudgetSource interface {
		Get(ctx context.Context, code string) (core.Budget, error)
		Usages(ctx context.Context, code string) ([]core.BudgetAnalysisUsage, error)
	}
	AnalysisSource interface {
		Breakdown(ctx context.Context, code string) (services.Breakdown, error)
	}
)

// Load gathers a budget, its rows and the breakdown of every analysis it uses.
func Load(ctx context.Context, budgets BudgetSource, analyses AnalysisSource, code string) (Data, error) {
	b, err := budgets.Get(ctx, code)
	if err != nil {
		return Data{}, err
	}
	rows, err := budgets.Usages(ctx, code)
	if err != nil {
		return Data{}, err
	}
	data := Data{Budget: b, Rows: rows}
	for _, r := range rows {
		bd, err := analyses.Breakdown(ctx, r.AnalysisCode)
		if err != nil {
			return Data{}, fmt.Errorf("breakdown %s: %w", r.AnalysisCode, err)
		}
		data.Breakdowns = append(data.Breakdowns, bd)
	}
	return data, nil
}

type styles struct {
	title, header, row, amount, label, total int
}

func newStyles(f *excelize.File) (styles, error) {
	var s styles
	var err error
	if s.title, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}}); err != nil {
		return s, fmt.Errorf("create title style: %w", err)
	}
	s.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF", Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#333333"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    thinBorders(),
	})
	if err != nil {
		return s, fmt.Errorf("create header style: %w", err)
	}
	if s.row, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Size: 10}, Border: thinBorders()}); err != nil {
		return s, fmt.Errorf("create row style: %w", err)
	}
	if s.amount, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Size: 10}, Border: thinBorders(), NumFmt: numFmtAmount}); err != nil {
		return s, fmt.Errorf("create amount style: %w", err)
	}
	s.label, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Alignment: &excelize.Alignment{Horizontal: "right"},
	})
	if err != nil {
		return s, fmt.Errorf("create label style: %w", err)
	}
	if s.total, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 11}, NumFmt: numFmtAmount}); err != nil {
		return s, fmt.Errorf("create total style: %w", err)
	}
	return s, nil
}

// BudgetWorkbook builds a workbook with the budget on its first sheet and one
// sheet per analysis breakdown. Amounts are rounded to cents.
func BudgetWorkbook(data Data) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), budgetSheet); err != nil {
		return nil, fmt.Errorf("set sheet name: %w", err)
	}
	st, err := newStyles(f)
	if err != nil {
		return nil, err
	}

	if err := writeBudgetSheet(f, st, data.Budget, data.Rows); err != nil {
		return nil, err
	}

	used := map[string]bool{budgetSheet: true}
	for _, bd := range data.Breakdowns {
		name := uniqueSheetName(bd.Analysis.Code, used)
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("create sheet %s: %w", name, err)
		}
		if err := writeAnalysisSheet(f, st, name, bd); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}

var rowHeaders = []string{"Código", "Descripción", "Unidad", "Cantidad", "Desperdicio", "Valor unitario", "Valor parcial"}

func writeBudgetSheet(f *excelize.File, st styles, b core.Budget, rows []core.BudgetAnalysisUsage) error {
	sheet := budgetSheet
	for col, w := range map[string]float64{"A": 14, "B": 44, "C": 10, "D": 12, "E": 18, "F": 18} {
		if err := f.SetColWidth(sheet, col, col, w); err != nil {
			return fmt.Errorf("set col width %s: %w", col, err)
		}
	}

	f.SetCellValue(sheet, "A1", sanitizeExcelCell(b.Code+" "+b.Description))
	f.SetCellStyle(sheet, "A1", "A1", st.title)

	headers := []string{"Código", "Descripción", "Unidad", "Cantidad", "Valor unitario", "Valor total"}
	if err := setRow(f, sheet, 3, headers); err != nil {
		return err
	}
	f.SetCellStyle(sheet, "A3", "F3", st.header)

	row := 4
	for _, r := range rows {
		if err := setRow(f, sheet, row, []any{
			sanitizeExcelCell(r.AnalysisCode),
			sanitizeExcelCell(r.Description),
			sanitizeExcelCell(r.Unit),
			r.Quantity.InexactFloat64(),
			amount(r.UnitPrice),
			amount(r.Subtotal),
		}); err != nil {
			return err
		}
		f.SetCellStyle(sheet, cell("A", row), cell("D", row), st.row)
		f.SetCellStyle(sheet, cell("E", row), cell("F", row), st.amount)
		row++
	}

	row++
	f.SetCellValue(sheet, cell("E", row), "TOTAL")
	f.SetCellStyle(sheet, cell("E", row), cell("E", row), st.label)
	f.SetCellValue(sheet, cell("F", row), amount(b.Total))
	f.SetCellStyle(sheet, cell("F", row), cell("F", row), st.total)
	return nil
}

func writeAnalysisSheet(f *excelize.File, st styles, sheet string, bd services.Breakdown) error {
	for col, w := range map[string]float64{"A": 14, "B": 40, "C": 10, "D": 12, "E": 12, "F": 16, "G": 16} {
		if err := f.SetColWidth(sheet, col, col, w); err != nil {
			return fmt.Errorf("set col width %s: %w", col, err)
		}
	}

	a := bd.Analysis
	f.SetCellValue(sheet, "A1", sanitizeExcelCell(a.Code+" "+a.Description))
	f.SetCellStyle(sheet, "A1", "A1", st.title)
	f.SetCellValue(sheet, "A2", "Unidad: "+a.Unit)

	row := 4
	for _, g := range bd.Groups {
		f.SetCellValue(sheet, cell("A", row), g.Category.Label())
		f.SetCellStyle(sheet, cell("A", row), cell("A", row), st.title)
		row++
		if err := setRow(f, sheet, row, rowHeaders); err != nil {
			return err
		}
		f.SetCellStyle(sheet, cell("A", row), cell("G", row), st.header)
		row++

		for _, r := range g.Rows {
			if err := setRow(f, sheet, row, []any{
				sanitizeExcelCell(r.ResourceCode),
				sanitizeExcelCell(r.Description),
				sanitizeExcelCell(r.Unit),
				r.Quantity.InexactFloat64(),
				r.Waste.InexactFloat64(),
				amount(r.UnitPrice),
				amount(r.PartialCost),
			}); err != nil {
				return err
			}
			f.SetCellStyle(sheet, cell("A", row), cell("E", row), st.row)
			f.SetCellStyle(sheet, cell("F", row), cell("G", row), st.amount)
			row++
		}

		f.SetCellValue(sheet, cell("F", row), "Subtotal")
		f.SetCellStyle(sheet, cell("F", row), cell("F", row), st.label)
		f.SetCellValue(sheet, cell("G", row), amount(g.Subtotal))
		f.SetCellStyle(sheet, cell("G", row), cell("G", row), st.total)
		row += 2
	}

	f.SetCellValue(sheet, cell("F", row), "TOTAL")
	f.SetCellStyle(sheet, cell("F", row), cell("F", row), st.label)
	f.SetCellValue(sheet, cell("G", row), amount(a.Total))
	f.SetCellStyle(sheet, cell("G", row), cell("G", row), st.total)
	return nil
}

func setRow[T any](f *excelize.File, sheet string, row int, values []T) error {
	vals := make([]any, len(values))
	for i, v := range values {
		vals[i] = v
	}
	if err := f.SetSheetRow(sheet, cell("A", row), &vals); err != nil {
		return fmt.Errorf("write row %d on %s: %w", row, sheet, err)
	}
	return nil
}

func cell(col string, row int) string { return fmt.Sprintf("%s%d", col, row) }

func amount(d decimal.Decimal) float64 {
	return core.Currency(d).InexactFloat64()
}

// uniqueSheetName turns an analysis code into a valid sheet name that is not
// yet in use.
func uniqueSheetName(code string, used map[string]bool) string {
	name := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`:\/?*[]`, r) {
			return '_'
		}
		return r
	}, strings.TrimSpace(code))
	if name == "" {
		name = "Analisis"
	}
	name = truncate(name, maxSheetName)
	base := name
	for i := 2; used[name]; i++ {
		suffix := fmt.Sprintf("~%d", i)
		name = truncate(base, maxSheetName-len(suffix)) + suffix
	}
	used[name] = true
	return name
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}

// sanitizeExcelCell prevents formula injection by prefixing dangerous leading
// characters with a single quote.
func sanitizeExcelCell(s string) string {
	if len(s) == 0 {
		return s
	}
	switch s[0] {
	case '=', '+', '-', '@', '\t', '\r', '|':
		return "'" + s
	}
	return s
}

func thinBorders() []excelize.Border {
	sides := []string{"left", "top", "bottom", "right"}
	borders := make([]excelize.Border, len(sides))
	for i, side := range sides {
		borders[i] = excelize.Border{Type: side, Color: "#000000", Style: 1}
	}
	return borders
}
