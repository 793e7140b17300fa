package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"presupuestos/internal/amqp"
	"presupuestos/internal/cache"
	"presupuestos/internal/core"
	"presupuestos/internal/store"
	"presupuestos/internal/store/memory"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type recordingNotifier struct {
	msgs []*amqp.CommitMessage
	err  error
}

func (n *recordingNotifier) PublishCommit(_ context.Context, msg *amqp.CommitMessage) error {
	n.msgs = append(n.msgs, msg)
	return n.err
}

var errStorage = errors.New("disk full")

// failingUoW fails the parent-total write, after the child rows were
// already replaced inside the transaction.
type failingUoW struct {
	inner store.UnitOfWork
}

func (f failingUoW) RunInTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return f.inner.RunInTx(ctx, func(tx store.Tx) error {
		return fn(failingTx{Tx: tx})
	})
}

type failingTx struct {
	store.Tx
}

func (failingTx) SetAnalysisTotal(context.Context, string, decimal.Decimal) error { return errStorage }
func (failingTx) SetBudgetTotal(context.Context, string, decimal.Decimal) error   { return errStorage }

type fixture struct {
	store    *memory.Store
	catalog  *ResourceCatalog
	analyses *AnalysisService
	budgets  *BudgetService
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()
	n := &recordingNotifier{}
	f := &fixture{
		store:    st,
		catalog:  NewResourceCatalog(st, cache.NewLRUCache[core.Resource](16, time.Minute)),
		analyses: NewAnalysisService(st, n),
		budgets:  NewBudgetService(st, n),
		notifier: n,
	}
	ctx := context.Background()
	for _, r := range []core.Resource{
		{Code: "MOAG01", Description: "Oficial", Unit: "DD", UnitPrice: dec("8949")},
		{Code: "MQ01", Description: "Retroexcavadora", Unit: "HR", UnitPrice: dec("95000")},
		{Code: "CEM01", Description: "Cemento gris", Unit: "KG", UnitPrice: dec("812.5")},
		{Code: "R", Description: "Recurso", Unit: "UN", UnitPrice: dec("100")},
	} {
		if err := f.catalog.Create(ctx, r); err != nil {
			t.Fatalf("create resource %s: %v", r.Code, err)
		}
	}
	if err := f.analyses.Create(ctx, core.Analysis{Code: "A", Description: "Muro", Unit: "M2"}); err != nil {
		t.Fatalf("create analysis: %v", err)
	}
	if err := f.budgets.Create(ctx, core.Budget{Code: "P1", Description: "Casa"}); err != nil {
		t.Fatalf("create budget: %v", err)
	}
	return f
}

func arow(code, q, w, p string) core.AnalysisResourceUsage {
	return core.AnalysisResourceUsage{ResourceCode: code, Quantity: dec(q), Waste: dec(w), UnitPrice: dec(p)}
}

func TestAnalysisReplaceUsagesScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	total, err := f.analyses.ReplaceUsages(ctx, "A", []core.AnalysisResourceUsage{arow("MOAG01", "6", "0", "8949")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if core.FormatCurrency(total) != "53694.00" {
		t.Errorf("total = %s, want 53694.00", core.FormatCurrency(total))
	}

	a, err := f.analyses.Get(ctx, "A")
	if err != nil {
		t.Fatalf("get analysis: %v", err)
	}
	if !a.Total.Equal(dec("53694")) {
		t.Errorf("stored total = %s, want 53694", a.Total)
	}
	rows, _ := f.analyses.Usages(ctx, "A")
	if len(rows) != 1 || !rows[0].PartialCost.Equal(dec("53694")) || rows[0].Description != "Oficial" {
		t.Errorf("unexpected rows: %+v", rows)
	}
}

func TestAnalysisTotalEqualsSumOfPartialCosts(t *testing.T) {
	tests := []struct {
		name string
		rows []core.AnalysisResourceUsage
		want string
	}{
		{
			name: "single labor row",
			rows: []core.AnalysisResourceUsage{arow("MOAG01", "0.5", "0", "8949")},
			want: "4474.5",
		},
		{
			name: "waste applied to material",
			rows: []core.AnalysisResourceUsage{arow("CEM01", "350", "0.05", "812.5")},
			want: "298593.75",
		},
		{
			name: "mixed rows",
			rows: []core.AnalysisResourceUsage{
				arow("MOAG01", "2", "0", "8949"),
				arow("MQ01", "0.125", "0", "95000"),
				arow("CEM01", "10", "0.03", "812.5"),
			},
			want: "38141.75",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			total, err := f.analyses.ReplaceUsages(ctx, "A", tt.rows)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !total.Equal(dec(tt.want)) {
				t.Fatalf("total = %s, want %s", total, tt.want)
			}

			rows, _ := f.analyses.Usages(ctx, "A")
			sum := decimal.Zero
			for _, r := range rows {
				want := r.Quantity.Mul(decimal.NewFromInt(1).Add(r.Waste)).Mul(r.UnitPrice)
				if !r.PartialCost.Equal(want) {
					t.Errorf("%s partial cost = %s, want %s", r.ResourceCode, r.PartialCost, want)
				}
				sum = sum.Add(r.PartialCost)
			}
			a, _ := f.analyses.Get(ctx, "A")
			if !a.Total.Equal(sum) {
				t.Errorf("stored total %s != sum of rows %s", a.Total, sum)
			}
		})
	}
}

func TestAnalysisReplaceUsagesIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rows := []core.AnalysisResourceUsage{arow("MOAG01", "3", "0", "8949"), arow("CEM01", "12", "0.05", "812.5")}

	first, err := f.analyses.ReplaceUsages(ctx, "A", rows)
	if err != nil {
		t.Fatalf("first replace: %v", err)
	}
	second, err := f.analyses.ReplaceUsages(ctx, "A", rows)
	if err != nil {
		t.Fatalf("second replace: %v", err)
	}
	if !first.Equal(second) {
		t.Errorf("totals differ: %s vs %s", first, second)
	}
	got, _ := f.analyses.Usages(ctx, "A")
	if len(got) != 2 {
		t.Errorf("expected 2 rows after repeated replace, got %d", len(got))
	}
}

func TestAnalysisReplaceUsagesRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		rows []core.AnalysisResourceUsage
		want error
	}{
		{
			name: "duplicate resource in one call",
			rows: []core.AnalysisResourceUsage{arow("MOAG01", "1", "0", "8949"), arow("MOAG01", "2", "0", "8949")},
			want: core.ErrDuplicateKey,
		},
		{
			name: "unknown resource",
			rows: []core.AnalysisResourceUsage{arow("MOAG01", "1", "0", "8949"), arow("NOPE", "1", "0", "1")},
			want: core.ErrNotFound,
		},
		{
			name: "negative quantity",
			rows: []core.AnalysisResourceUsage{arow("MOAG01", "-1", "0", "8949")},
			want: core.ErrInvalidValue,
		},
		{
			name: "negative waste",
			rows: []core.AnalysisResourceUsage{arow("CEM01", "1", "-0.1", "812.5")},
			want: core.ErrInvalidValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			if _, err := f.analyses.ReplaceUsages(ctx, "A", []core.AnalysisResourceUsage{arow("R", "2", "0", "100")}); err != nil {
				t.Fatalf("seed replace: %v", err)
			}

			_, err := f.analyses.ReplaceUsages(ctx, "A", tt.rows)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			var opErr *core.OpError
			if !errors.As(err, &opErr) || opErr.Code != "A" {
				t.Errorf("error should identify the analysis, got %v", err)
			}

			a, _ := f.analyses.Get(ctx, "A")
			rows, _ := f.analyses.Usages(ctx, "A")
			if !a.Total.Equal(dec("200")) || len(rows) != 1 || rows[0].ResourceCode != "R" {
				t.Errorf("prior state must be untouched, total %s rows %+v", a.Total, rows)
			}
		})
	}
}

func TestAnalysisReplaceUsagesMissingAnalysis(t *testing.T) {
	f := newFixture(t)
	_, err := f.analyses.ReplaceUsages(context.Background(), "NOPE", nil)
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAnalysisReplaceUsagesEmptyClearsRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.analyses.ReplaceUsages(ctx, "A", []core.AnalysisResourceUsage{arow("MOAG01", "6", "0", "8949")}); err != nil {
		t.Fatalf("seed replace: %v", err)
	}

	total, err := f.analyses.ReplaceUsages(ctx, "A", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if core.FormatCurrency(total) != "0.00" {
		t.Errorf("total = %s, want 0.00", core.FormatCurrency(total))
	}
	rows, _ := f.analyses.Usages(ctx, "A")
	if len(rows) != 0 {
		t.Errorf("expected no rows, got %d", len(rows))
	}
	a, _ := f.analyses.Get(ctx, "A")
	if !a.Total.IsZero() {
		t.Errorf("stored total = %s, want 0", a.Total)
	}
}

func TestAnalysisReplaceUsagesRollsBackOnStorageFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.analyses.ReplaceUsages(ctx, "A", []core.AnalysisResourceUsage{arow("R", "2", "0", "100")}); err != nil {
		t.Fatalf("seed replace: %v", err)
	}
	published := len(f.notifier.msgs)

	broken := NewAnalysisService(failingUoW{inner: f.store}, f.notifier)
	_, err := broken.ReplaceUsages(ctx, "A", []core.AnalysisResourceUsage{arow("MOAG01", "6", "0", "8949")})
	if !errors.Is(err, errStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}

	a, _ := f.analyses.Get(ctx, "A")
	rows, _ := f.analyses.Usages(ctx, "A")
	if !a.Total.Equal(dec("200")) || len(rows) != 1 || rows[0].ResourceCode != "R" {
		t.Errorf("rollback must restore prior rows, total %s rows %+v", a.Total, rows)
	}
	if len(f.notifier.msgs) != published {
		t.Errorf("failed commit must not publish")
	}
}

func TestSnapshotIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.catalog.Get(ctx, "R")
	if err != nil {
		t.Fatalf("get resource: %v", err)
	}
	row := arow("R", "2", "0", "0")
	row.UnitPrice = r.UnitPrice
	if _, err := f.analyses.ReplaceUsages(ctx, "A", []core.AnalysisResourceUsage{row}); err != nil {
		t.Fatalf("replace: %v", err)
	}

	r.UnitPrice = dec("150")
	if err := f.catalog.Update(ctx, r); err != nil {
		t.Fatalf("update resource: %v", err)
	}
	a, _ := f.analyses.Get(ctx, "A")
	if !a.Total.Equal(dec("200")) {
		t.Fatalf("price update leaked into analysis: total %s", a.Total)
	}

	fresh, _ := f.catalog.Get(ctx, "R")
	row.UnitPrice = fresh.UnitPrice
	total, err := f.analyses.ReplaceUsages(ctx, "A", []core.AnalysisResourceUsage{row})
	if err != nil {
		t.Fatalf("replace with new price: %v", err)
	}
	if !total.Equal(dec("300")) {
		t.Errorf("total after explicit replace = %s, want 300", total)
	}
}

func TestReplaceUsagesPublishesAfterCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.notifier.err = errors.New("broker down")

	total, err := f.analyses.ReplaceUsages(ctx, "A", []core.AnalysisResourceUsage{arow("MOAG01", "6", "0", "8949")})
	if err != nil {
		t.Fatalf("publish failure must not fail the commit: %v", err)
	}
	if len(f.notifier.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(f.notifier.msgs))
	}
	msg := f.notifier.msgs[0]
	if msg.Kind != amqp.KindAnalysis || msg.Code != "A" || msg.Rows != 1 || !msg.Total.Equal(total) {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestResourceCatalog(t *testing.T) {
	ctx := context.Background()

	t.Run("create validates before storage", func(t *testing.T) {
		f := newFixture(t)
		err := f.catalog.Create(ctx, core.Resource{Code: "X", UnitPrice: dec("-1")})
		if !errors.Is(err, core.ErrInvalidValue) {
			t.Fatalf("expected invalid value, got %v", err)
		}
		if _, err := f.catalog.Get(ctx, "X"); !errors.Is(err, core.ErrNotFound) {
			t.Errorf("invalid resource must not be stored, got %v", err)
		}
	})

	t.Run("duplicate code", func(t *testing.T) {
		f := newFixture(t)
		err := f.catalog.Create(ctx, core.Resource{Code: "MOAG01", UnitPrice: dec("1")})
		if !errors.Is(err, core.ErrDuplicateKey) {
			t.Fatalf("expected duplicate key, got %v", err)
		}
	})

	t.Run("update missing", func(t *testing.T) {
		f := newFixture(t)
		err := f.catalog.Update(ctx, core.Resource{Code: "NOPE", UnitPrice: dec("1")})
		if !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})

	t.Run("referential guard on delete", func(t *testing.T) {
		f := newFixture(t)
		if _, err := f.analyses.ReplaceUsages(ctx, "A", []core.AnalysisResourceUsage{arow("R", "1", "0", "100")}); err != nil {
			t.Fatalf("replace: %v", err)
		}
		if err := f.catalog.Delete(ctx, "R"); !errors.Is(err, core.ErrReferentialConflict) {
			t.Fatalf("expected referential conflict, got %v", err)
		}
		if _, err := f.analyses.ReplaceUsages(ctx, "A", nil); err != nil {
			t.Fatalf("clear rows: %v", err)
		}
		if err := f.catalog.Delete(ctx, "R"); err != nil {
			t.Fatalf("delete unreferenced resource: %v", err)
		}
		if _, err := f.catalog.Get(ctx, "R"); !errors.Is(err, core.ErrNotFound) {
			t.Errorf("deleted resource still visible: %v", err)
		}
	})

	t.Run("get is invalidated by update", func(t *testing.T) {
		f := newFixture(t)
		if _, err := f.catalog.Get(ctx, "CEM01"); err != nil {
			t.Fatalf("get: %v", err)
		}
		if err := f.catalog.Update(ctx, core.Resource{Code: "CEM01", Description: "Cemento", Unit: "KG", UnitPrice: dec("900")}); err != nil {
			t.Fatalf("update: %v", err)
		}
		r, _ := f.catalog.Get(ctx, "CEM01")
		if !r.UnitPrice.Equal(dec("900")) {
			t.Errorf("stale cached price %s", r.UnitPrice)
		}
	})

	t.Run("list returns everything", func(t *testing.T) {
		f := newFixture(t)
		list, err := f.catalog.List(ctx)
		if err != nil || len(list) != 4 {
			t.Fatalf("List() = %d resources, %v", len(list), err)
		}
	})
}

func TestResourceCatalogImport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.catalog.Import(ctx, []core.Resource{
		{Code: "CEM01", Description: "Cemento", Unit: "KG", UnitPrice: dec("850")},
		{Code: " ARE01 ", Description: "Arena", Unit: "M3", UnitPrice: dec("65000")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Created != 1 || res.Updated != 1 {
		t.Errorf("Import() = %+v, want 1 created 1 updated", res)
	}
	if r, err := f.catalog.Get(ctx, "ARE01"); err != nil || !r.UnitPrice.Equal(dec("65000")) {
		t.Errorf("imported resource = %+v, %v", r, err)
	}

	_, err = f.catalog.Import(ctx, []core.Resource{
		{Code: "NEW1", UnitPrice: dec("1")},
		{Code: "NEW2", UnitPrice: dec("-5")},
		{Code: "NEW1", UnitPrice: dec("2")},
	})
	if !errors.Is(err, core.ErrInvalidValue) || !errors.Is(err, core.ErrDuplicateKey) {
		t.Fatalf("expected every row problem reported, got %v", err)
	}
	if _, err := f.catalog.Get(ctx, "NEW1"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("rejected import must not write anything")
	}
}

func TestAnalysisHeaderAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.analyses.Create(ctx, core.Analysis{Code: "A"}); !errors.Is(err, core.ErrDuplicateKey) {
		t.Fatalf("expected duplicate key, got %v", err)
	}
	if err := f.analyses.Create(ctx, core.Analysis{Code: "B", Total: dec("-1")}); !errors.Is(err, core.ErrInvalidValue) {
		t.Fatalf("expected invalid value, got %v", err)
	}
	if err := f.analyses.UpdateHeader(ctx, "A", "Muro en ladrillo", "M2"); err != nil {
		t.Fatalf("update header: %v", err)
	}
	if err := f.analyses.UpdateHeader(ctx, "NOPE", "x", "M2"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if _, err := f.analyses.ReplaceUsages(ctx, "A", []core.AnalysisResourceUsage{arow("R", "1", "0", "100")}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if _, err := f.budgets.ReplaceUsages(ctx, "P1", []core.BudgetAnalysisUsage{{AnalysisCode: "A", Quantity: dec("1"), UnitPrice: dec("100")}}); err != nil {
		t.Fatalf("budget replace: %v", err)
	}
	if err := f.analyses.Delete(ctx, "A"); !errors.Is(err, core.ErrReferentialConflict) {
		t.Fatalf("expected referential conflict, got %v", err)
	}

	if err := f.budgets.Delete(ctx, "P1"); err != nil {
		t.Fatalf("delete budget: %v", err)
	}
	if err := f.analyses.Delete(ctx, "A"); err != nil {
		t.Fatalf("delete analysis: %v", err)
	}
	if err := f.catalog.Delete(ctx, "R"); err != nil {
		t.Errorf("analysis delete must cascade to its rows: %v", err)
	}
}

func TestAnalysisBreakdown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.analyses.ReplaceUsages(ctx, "A", []core.AnalysisResourceUsage{
		arow("CEM01", "10", "0", "812.5"),
		arow("MOAG01", "1", "0", "8949"),
		arow("R", "1", "0", "100"),
	})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}

	b, err := f.analyses.Breakdown(ctx, "A")
	if err != nil {
		t.Fatalf("breakdown: %v", err)
	}
	if len(b.Groups) != 2 {
		t.Fatalf("expected labor and material groups, got %d", len(b.Groups))
	}
	if b.Groups[0].Category != core.Labor || !b.Groups[0].Subtotal.Equal(dec("8949")) {
		t.Errorf("labor group = %+v", b.Groups[0])
	}
	if b.Groups[1].Category != core.Material || len(b.Groups[1].Rows) != 2 || !b.Groups[1].Subtotal.Equal(dec("8225")) {
		t.Errorf("material group = %+v", b.Groups[1])
	}
	if !b.Analysis.Total.Equal(b.Groups[0].Subtotal.Add(b.Groups[1].Subtotal)) {
		t.Errorf("groups must add up to the analysis total")
	}
}

func TestBudgetReplaceUsagesScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.analyses.Create(ctx, core.Analysis{Code: "01-01-01", Total: dec("106594.0")}); err != nil {
		t.Fatalf("create analysis: %v", err)
	}

	total, err := f.budgets.ReplaceUsages(ctx, "P1", []core.BudgetAnalysisUsage{
		{AnalysisCode: "01-01-01", Quantity: dec("1"), UnitPrice: dec("106594.0")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if core.FormatCurrency(total) != "106594.00" {
		t.Errorf("total = %s, want 106594.00", core.FormatCurrency(total))
	}
	rows, _ := f.budgets.Usages(ctx, "P1")
	if len(rows) != 1 || core.FormatCurrency(rows[0].Subtotal) != "106594.00" {
		t.Errorf("unexpected rows: %+v", rows)
	}
	b, _ := f.budgets.Get(ctx, "P1")
	if !b.Total.Equal(dec("106594")) {
		t.Errorf("stored total = %s", b.Total)
	}
	last := f.notifier.msgs[len(f.notifier.msgs)-1]
	if last.Kind != amqp.KindBudget || last.Code != "P1" {
		t.Errorf("unexpected message: %+v", last)
	}
}

func TestBudgetReplaceUsages(t *testing.T) {
	ctx := context.Background()

	t.Run("total equals sum of subtotals", func(t *testing.T) {
		f := newFixture(t)
		_ = f.analyses.Create(ctx, core.Analysis{Code: "B"})
		rows := []core.BudgetAnalysisUsage{
			{AnalysisCode: "A", Quantity: dec("12.5"), UnitPrice: dec("4474.5")},
			{AnalysisCode: "B", Quantity: dec("3"), UnitPrice: dec("1000")},
		}
		total, err := f.budgets.ReplaceUsages(ctx, "P1", rows)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !total.Equal(dec("58931.25")) {
			t.Errorf("total = %s, want 58931.25", total)
		}
		again, _ := f.budgets.ReplaceUsages(ctx, "P1", rows)
		if !again.Equal(total) {
			t.Errorf("replace is not idempotent: %s vs %s", again, total)
		}
	})

	t.Run("duplicate analysis", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.budgets.ReplaceUsages(ctx, "P1", []core.BudgetAnalysisUsage{
			{AnalysisCode: "A", Quantity: dec("1")},
			{AnalysisCode: "A", Quantity: dec("2")},
		})
		if !errors.Is(err, core.ErrDuplicateKey) {
			t.Fatalf("expected duplicate key, got %v", err)
		}
	})

	t.Run("unknown analysis", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.budgets.ReplaceUsages(ctx, "P1", []core.BudgetAnalysisUsage{{AnalysisCode: "NOPE", Quantity: dec("1")}})
		if !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})

	t.Run("rollback on storage failure", func(t *testing.T) {
		f := newFixture(t)
		broken := NewBudgetService(failingUoW{inner: f.store}, nil)
		_, err := broken.ReplaceUsages(ctx, "P1", []core.BudgetAnalysisUsage{{AnalysisCode: "A", Quantity: dec("1"), UnitPrice: dec("5")}})
		if !errors.Is(err, errStorage) {
			t.Fatalf("expected storage error, got %v", err)
		}
		rows, _ := f.budgets.Usages(ctx, "P1")
		if len(rows) != 0 {
			t.Errorf("rows must not survive a rolled back commit")
		}
	})

	t.Run("empty replace", func(t *testing.T) {
		f := newFixture(t)
		_, _ = f.budgets.ReplaceUsages(ctx, "P1", []core.BudgetAnalysisUsage{{AnalysisCode: "A", Quantity: dec("1"), UnitPrice: dec("5")}})
		total, err := f.budgets.ReplaceUsages(ctx, "P1", nil)
		if err != nil || !total.IsZero() {
			t.Fatalf("ReplaceUsages(nil) = %s, %v", total, err)
		}
	})
}

func TestBudgetStaleUsages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.analyses.ReplaceUsages(ctx, "A", []core.AnalysisResourceUsage{arow("R", "2", "0", "100")}); err != nil {
		t.Fatalf("replace analysis: %v", err)
	}
	if _, err := f.budgets.ReplaceUsages(ctx, "P1", []core.BudgetAnalysisUsage{{AnalysisCode: "A", Quantity: dec("3"), UnitPrice: dec("200")}}); err != nil {
		t.Fatalf("replace budget: %v", err)
	}

	stale, err := f.budgets.StaleUsages(ctx, "A")
	if err != nil || len(stale) != 0 {
		t.Fatalf("expected no drift, got %v, %v", stale, err)
	}

	if _, err := f.analyses.ReplaceUsages(ctx, "A", []core.AnalysisResourceUsage{arow("R", "2", "0", "150")}); err != nil {
		t.Fatalf("reprice analysis: %v", err)
	}
	stale, err = f.budgets.StaleUsages(ctx, "A")
	if err != nil {
		t.Fatalf("stale usages: %v", err)
	}
	if len(stale) != 1 || !stale[0].CurrentTotal.Equal(dec("300")) || !stale[0].Usage.UnitPrice.Equal(dec("200")) {
		t.Fatalf("unexpected drift report: %+v", stale)
	}
	b, _ := f.budgets.Get(ctx, "P1")
	if !b.Total.Equal(dec("600")) {
		t.Errorf("drift report must not touch the budget, total %s", b.Total)
	}
}

func TestReplaceUsagesFillsDisplayColumns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.analyses.ReplaceUsages(ctx, "A", []core.AnalysisResourceUsage{
		arow("MOAG01", "1", "0", "8949"),
		{ResourceCode: "CEM01", Unit: "SACO", Quantity: dec("1"), UnitPrice: dec("812.5")},
	}); err != nil {
		t.Fatalf("replace analysis rows: %v", err)
	}
	rows, _ := f.analyses.Usages(ctx, "A")
	if len(rows) != 2 || rows[0].Unit != "DD" || rows[0].Description != "Oficial" || rows[1].Unit != "SACO" {
		t.Errorf("analysis rows should take the resource unit unless one is given: %+v", rows)
	}

	if _, err := f.budgets.ReplaceUsages(ctx, "P1", []core.BudgetAnalysisUsage{
		{AnalysisCode: "A", Quantity: dec("2"), UnitPrice: dec("9761.5")},
	}); err != nil {
		t.Fatalf("replace budget rows: %v", err)
	}
	brows, _ := f.budgets.Usages(ctx, "P1")
	if len(brows) != 1 || brows[0].Description != "Muro" || brows[0].Unit != "M2" {
		t.Errorf("budget row should take the analysis description and unit: %+v", brows)
	}
}

func TestAnalysisAndBudgetNormalizeInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.analyses.Create(ctx, core.Analysis{Code: " B ", Description: " Losa ", Unit: " M3 "}); err != nil {
		t.Fatalf("create analysis: %v", err)
	}
	a, err := f.analyses.Get(ctx, "  B")
	if err != nil {
		t.Fatalf("get analysis with padded code: %v", err)
	}
	if a.Code != "B" || a.Description != "Losa" || a.Unit != "M3" {
		t.Errorf("analysis not trimmed: %+v", a)
	}
	if _, err := f.analyses.ReplaceUsages(ctx, "B ", []core.AnalysisResourceUsage{arow("R", "1", "0", "100")}); err != nil {
		t.Fatalf("replace with padded code: %v", err)
	}
	if rows, err := f.analyses.Usages(ctx, " B"); err != nil || len(rows) != 1 {
		t.Errorf("usages with padded code = %v, %v", rows, err)
	}

	if err := f.budgets.Create(ctx, core.Budget{Code: " P2", Description: " Garaje "}); err != nil {
		t.Fatalf("create budget: %v", err)
	}
	if err := f.budgets.UpdateHeader(ctx, "P2 ", " Garaje doble "); err != nil {
		t.Fatalf("update header with padded code: %v", err)
	}
	b, err := f.budgets.Get(ctx, " P2 ")
	if err != nil || b.Description != "Garaje doble" {
		t.Errorf("budget = %+v, %v", b, err)
	}
	if err := f.budgets.Delete(ctx, " P2"); err != nil {
		t.Errorf("delete with padded code: %v", err)
	}
	if err := f.analyses.Delete(ctx, "B "); err != nil {
		t.Errorf("delete analysis with padded code: %v", err)
	}
}
