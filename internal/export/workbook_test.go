package export

import (
	"bytes"
	"context"
	"testing"

	"presupuestos/internal/core"
	"presupuestos/internal/services"
	"presupuestos/internal/store/memory"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func loadFixture(t *testing.T) Data {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	catalog := services.NewResourceCatalog(st, nil)
	analyses := services.NewAnalysisService(st, nil)
	budgets := services.NewBudgetService(st, nil)

	for _, r := range []core.Resource{
		{Code: "MOAG01", Description: "Oficial", Unit: "DD", UnitPrice: dec("8949")},
		{Code: "CEM01", Description: "=cmd|' /C calc'!A0", Unit: "KG", UnitPrice: dec("812.5")},
	} {
		if err := catalog.Create(ctx, r); err != nil {
			t.Fatalf("create resource: %v", err)
		}
	}
	if err := analyses.Create(ctx, core.Analysis{Code: "01-01-01", Description: "Excavacion", Unit: "M3"}); err != nil {
		t.Fatalf("create analysis: %v", err)
	}
	if _, err := analyses.ReplaceUsages(ctx, "01-01-01", []core.AnalysisResourceUsage{
		{ResourceCode: "MOAG01", Quantity: dec("6"), UnitPrice: dec("8949")},
		{ResourceCode: "CEM01", Quantity: dec("0.333"), UnitPrice: dec("812.5")},
	}); err != nil {
		t.Fatalf("replace analysis: %v", err)
	}
	a, _ := analyses.Get(ctx, "01-01-01")
	if err := budgets.Create(ctx, core.Budget{Code: "P1", Description: "Casa"}); err != nil {
		t.Fatalf("create budget: %v", err)
	}
	if _, err := budgets.ReplaceUsages(ctx, "P1", []core.BudgetAnalysisUsage{
		{AnalysisCode: "01-01-01", Quantity: dec("2"), UnitPrice: a.Total},
	}); err != nil {
		t.Fatalf("replace budget: %v", err)
	}

	data, err := Load(ctx, budgets, analyses, "P1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return data
}

func raw(t *testing.T, f *excelize.File, sheet, axis string) string {
	t.Helper()
	v, err := f.GetCellValue(sheet, axis, excelize.Options{RawCellValue: true})
	if err != nil {
		t.Fatalf("read %s!%s: %v", sheet, axis, err)
	}
	return v
}

func TestBudgetWorkbook(t *testing.T) {
	data := loadFixture(t)

	out, err := BudgetWorkbook(data)
	if err != nil {
		t.Fatalf("BudgetWorkbook() error = %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("result is not valid Excel: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) != 2 || sheets[0] != "Presupuesto" || sheets[1] != "01-01-01" {
		t.Fatalf("unexpected sheets %v", sheets)
	}

	// 53694 + 270.5625 = 53964.5625, doubled and rounded for display.
	tests := []struct {
		sheet, axis, want string
	}{
		{"Presupuesto", "A1", "P1 Casa"},
		{"Presupuesto", "A4", "01-01-01"},
		{"Presupuesto", "B4", "Excavacion"},
		{"Presupuesto", "E4", "53964.56"},
		{"Presupuesto", "F4", "107929.13"},
		{"Presupuesto", "E6", "TOTAL"},
		{"Presupuesto", "F6", "107929.13"},
		{"01-01-01", "A4", "Mano de obra"},
		{"01-01-01", "A6", "MOAG01"},
		{"01-01-01", "G6", "53694"},
		{"01-01-01", "G7", "53694"},
		{"01-01-01", "A9", "Materiales"},
		{"01-01-01", "B11", "'=cmd|' /C calc'!A0"},
		{"01-01-01", "G11", "270.56"},
		{"01-01-01", "G14", "53964.56"},
	}
	for _, tt := range tests {
		if got := raw(t, f, tt.sheet, tt.axis); got != tt.want {
			t.Errorf("%s!%s = %q, want %q", tt.sheet, tt.axis, got, tt.want)
		}
	}
}

func TestBudgetWorkbookEmpty(t *testing.T) {
	out, err := BudgetWorkbook(Data{Budget: core.Budget{Code: "P0"}})
	if err != nil {
		t.Fatalf("BudgetWorkbook() error = %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("result is not valid Excel: %v", err)
	}
	defer f.Close()
	if got := raw(t, f, "Presupuesto", "F5"); got != "0" {
		t.Errorf("empty budget total = %q, want 0", got)
	}
}

func TestUniqueSheetName(t *testing.T) {
	used := map[string]bool{"Presupuesto": true}
	long := "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	tests := []struct {
		code, want string
	}{
		{"01/02:03", "01_02_03"},
		{"", "Analisis"},
		{long, long[:31]},
		{long, long[:29] + "~2"},
		{"Presupuesto", "Presupuesto~2"},
	}
	for _, tt := range tests {
		if got := uniqueSheetName(tt.code, used); got != tt.want {
			t.Errorf("uniqueSheetName(%q) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestSanitizeExcelCell(t *testing.T) {
	tests := map[string]string{
		"":         "",
		"Cemento":  "Cemento",
		"=SUM(A1)": "'=SUM(A1)",
		"+1":       "'+1",
		"-2":       "'-2",
		"@cmd":     "'@cmd",
		"|pipe":    "'|pipe",
		"a=b":      "a=b",
	}
	for in, want := range tests {
		if got := sanitizeExcelCell(in); got != want {
			t.Errorf("sanitizeExcelCell(%q) = %q, want %q", in, got, want)
		}
	}
}
