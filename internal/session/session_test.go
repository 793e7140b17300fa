package session

import (
	"context"
	"errors"
	"testing"

	"presupuestos/internal/core"
	"presupuestos/internal/services"
	"presupuestos/internal/store/memory"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type env struct {
	catalog  *services.ResourceCatalog
	analyses *services.AnalysisService
	budgets  *services.BudgetService
}

func newEnv(t *testing.T) env {
	t.Helper()
	st := memory.New()
	e := env{
		catalog:  services.NewResourceCatalog(st, nil),
		analyses: services.NewAnalysisService(st, nil),
		budgets:  services.NewBudgetService(st, nil),
	}
	ctx := context.Background()
	for _, r := range []core.Resource{
		{Code: "MOAG01", Description: "Oficial", Unit: "DD", UnitPrice: dec("8949")},
		{Code: "CEM01", Description: "Cemento", Unit: "KG", UnitPrice: dec("812.5")},
	} {
		if err := e.catalog.Create(ctx, r); err != nil {
			t.Fatalf("create resource: %v", err)
		}
	}
	if err := e.analyses.Create(ctx, core.Analysis{Code: "01-01-01", Description: "Excavacion", Unit: "M3"}); err != nil {
		t.Fatalf("create analysis: %v", err)
	}
	if err := e.budgets.Create(ctx, core.Budget{Code: "P1", Description: "Casa"}); err != nil {
		t.Fatalf("create budget: %v", err)
	}
	return e
}

// failingAnalyses refuses every commit.
type failingAnalyses struct {
	AnalysisStore
}

var errCommit = errors.New("database is locked")

func (failingAnalyses) ReplaceUsages(context.Context, string, []core.AnalysisResourceUsage) (decimal.Decimal, error) {
	return decimal.Zero, errCommit
}

func TestAnalysisSessionEditAndCommit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	s, err := OpenAnalysis(ctx, "01-01-01", e.analyses, e.catalog)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if s.State() != Loaded {
		t.Fatalf("new session state = %v", s.State())
	}

	var changes []Change
	s.OnChange(func(c Change) { changes = append(changes, c) })

	i, err := s.AddResource(ctx, "MOAG01")
	if err != nil {
		t.Fatalf("add resource: %v", err)
	}
	if err := s.EditCell(i, ColQuantity, "6"); err != nil {
		t.Fatalf("edit quantity: %v", err)
	}
	if s.State() != Editing {
		t.Fatalf("state after edit = %v", s.State())
	}
	if got := s.Rows()[i].PartialCost; !got.Equal(dec("53694")) {
		t.Errorf("partial cost = %s, want 53694", got)
	}

	// Nothing reaches storage before Commit.
	stored, _ := e.analyses.Usages(ctx, "01-01-01")
	if len(stored) != 0 {
		t.Fatalf("edits must not autosave, found %d stored rows", len(stored))
	}

	total, err := s.Commit(ctx)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if core.FormatCurrency(total) != "53694.00" || s.State() != Loaded {
		t.Errorf("commit = %s state %v", core.FormatCurrency(total), s.State())
	}
	if !s.Analysis().Total.Equal(dec("53694")) {
		t.Errorf("reloaded header total = %s", s.Analysis().Total)
	}

	last := changes[len(changes)-1]
	if last.Kind != Committed || last.State != Loaded {
		t.Errorf("last change = %+v", last)
	}
	if changes[1].Kind != RowEdited || changes[1].Row != i || !changes[1].Derived.Equal(dec("53694")) {
		t.Errorf("edit change = %+v", changes[1])
	}
}

func TestAnalysisSessionCellPolicy(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	s, _ := OpenAnalysis(ctx, "01-01-01", e.analyses, e.catalog)
	i, _ := s.AddResource(ctx, "CEM01")
	_ = s.EditCell(i, ColQuantity, "10")
	_ = s.EditCell(i, ColWaste, "0,05")

	if got := s.Rows()[i].PartialCost; !got.Equal(dec("8531.25")) {
		t.Fatalf("partial cost = %s, want 8531.25", got)
	}

	if err := s.EditCell(i, ColQuantity, "abc"); err != nil {
		t.Fatalf("malformed text must not fail: %v", err)
	}
	if row := s.Rows()[i]; !row.Quantity.IsZero() || !row.PartialCost.IsZero() {
		t.Errorf("malformed text should become zero, got %+v", row)
	}

	_ = s.EditCell(i, ColQuantity, "4")
	err := s.EditCell(i, ColUnitPrice, "-3")
	if !errors.Is(err, core.ErrInvalidValue) {
		t.Fatalf("expected invalid value, got %v", err)
	}
	if row := s.Rows()[i]; !row.UnitPrice.Equal(dec("812.5")) || !row.PartialCost.Equal(dec("3412.5")) {
		t.Errorf("rejected edit must leave the row unchanged, got %+v", row)
	}
	if s.State() != Editing {
		t.Errorf("session should stay editable, state %v", s.State())
	}

	if err := s.EditCell(7, ColQuantity, "1"); !errors.Is(err, core.ErrInvalidValue) {
		t.Errorf("expected out of range error, got %v", err)
	}
}

func TestAnalysisSessionSnapshotsCatalogPrice(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	s, _ := OpenAnalysis(ctx, "01-01-01", e.analyses, e.catalog)
	i, _ := s.AddResource(ctx, "CEM01")

	_ = e.catalog.Update(ctx, core.Resource{Code: "CEM01", Description: "Cemento", Unit: "KG", UnitPrice: dec("999")})
	if got := s.Rows()[i].UnitPrice; !got.Equal(dec("812.5")) {
		t.Errorf("row price should be the snapshot, got %s", got)
	}
	if _, err := s.AddResource(ctx, "CEM01"); !errors.Is(err, core.ErrDuplicateKey) {
		t.Errorf("expected duplicate key, got %v", err)
	}
	if _, err := s.AddResource(ctx, "NOPE"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestAnalysisSessionCommitFailureKeepsEdits(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	s, err := OpenAnalysis(ctx, "01-01-01", failingAnalyses{AnalysisStore: e.analyses}, e.catalog)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	i, _ := s.AddResource(ctx, "MOAG01")
	_ = s.EditCell(i, ColQuantity, "2")

	if _, err := s.Commit(ctx); !errors.Is(err, errCommit) {
		t.Fatalf("expected commit error, got %v", err)
	}
	if s.State() != Editing {
		t.Errorf("state after failed commit = %v, want editing", s.State())
	}
	if rows := s.Rows(); len(rows) != 1 || !rows[0].Quantity.Equal(dec("2")) {
		t.Errorf("in-memory rows lost: %+v", rows)
	}
}

func TestAnalysisSessionDiscard(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	s, _ := OpenAnalysis(ctx, "01-01-01", e.analyses, e.catalog)
	_, _ = s.AddResource(ctx, "MOAG01")
	_, _ = s.AddResource(ctx, "CEM01")
	if err := s.RemoveRow(0); err != nil {
		t.Fatalf("remove row: %v", err)
	}
	if len(s.Rows()) != 1 || s.Rows()[0].ResourceCode != "CEM01" {
		t.Fatalf("unexpected rows after remove: %+v", s.Rows())
	}

	if err := s.Discard(ctx); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if s.State() != Loaded || len(s.Rows()) != 0 {
		t.Errorf("discard must restore persisted rows, state %v rows %d", s.State(), len(s.Rows()))
	}
}

func TestBudgetSessionSnapshotsAnalysisTotal(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if _, err := e.analyses.ReplaceUsages(ctx, "01-01-01", []core.AnalysisResourceUsage{
		{ResourceCode: "MOAG01", Quantity: dec("6"), UnitPrice: dec("8949")},
	}); err != nil {
		t.Fatalf("replace analysis: %v", err)
	}

	s, err := OpenBudget(ctx, "P1", e.budgets, e.analyses)
	if err != nil {
		t.Fatalf("open budget: %v", err)
	}
	i, err := s.AddAnalysis(ctx, "01-01-01")
	if err != nil {
		t.Fatalf("add analysis: %v", err)
	}
	if err := s.EditCell(i, ColQuantity, "2"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if err := s.EditCell(i, ColWaste, "1"); !errors.Is(err, core.ErrInvalidValue) {
		t.Errorf("budget rows have no waste column, got %v", err)
	}
	if !s.Total().Equal(dec("107388")) {
		t.Errorf("preview total = %s, want 107388", s.Total())
	}

	total, err := s.Commit(ctx)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if !total.Equal(dec("107388")) || s.State() != Loaded {
		t.Errorf("commit = %s state %v", total, s.State())
	}

	// Repricing the analysis leaves the budget row alone.
	if _, err := e.analyses.ReplaceUsages(ctx, "01-01-01", nil); err != nil {
		t.Fatalf("clear analysis: %v", err)
	}
	rows, _ := e.budgets.Usages(ctx, "P1")
	if len(rows) != 1 || !rows[0].UnitPrice.Equal(dec("53694")) || rows[0].Description != "Excavacion" {
		t.Errorf("budget row lost its snapshot: %+v", rows)
	}
}

func TestOpenMissing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if _, err := OpenAnalysis(ctx, "NOPE", e.analyses, e.catalog); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := OpenBudget(ctx, "NOPE", e.budgets, e.analyses); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}
