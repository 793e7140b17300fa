package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"presupuestos/internal/core"

	"github.com/shopspring/decimal"
)

// BudgetStore loads and commits budget rows.
type BudgetStore interface {
	Get(ctx context.Context, code string) (core.Budget, error)
	Usages(ctx context.Context, code string) ([]core.BudgetAnalysisUsage, error)
	ReplaceUsages(ctx context.Context, code string, rows []core.BudgetAnalysisUsage) (decimal.Decimal, error)
}

// AnalysisLookup resolves analyses for new budget rows.
type AnalysisLookup interface {
	Get(ctx context.Context, code string) (core.Analysis, error)
}

// BudgetSession edits the analysis rows of one budget.
type BudgetSession struct {
	base
	store    BudgetStore
	analyses AnalysisLookup
	header   core.Budget
	rows     []core.BudgetAnalysisUsage
}

func OpenBudget(ctx context.Context, code string, budgets BudgetStore, analyses AnalysisLookup) (*BudgetSession, error) {
	s := &BudgetSession{store: budgets, analyses: analyses, header: core.Budget{Code: code}}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *BudgetSession) load(ctx context.Context) error {
	header, err := s.store.Get(ctx, s.header.Code)
	if err != nil {
		return err
	}
	rows, err := s.store.Usages(ctx, s.header.Code)
	if err != nil {
		return err
	}
	s.header, s.rows, s.state = header, rows, Loaded
	return nil
}

func (s *BudgetSession) Budget() core.Budget { return s.header }

func (s *BudgetSession) Rows() []core.BudgetAnalysisUsage { return slices.Clone(s.rows) }

func (s *BudgetSession) Total() decimal.Decimal { return core.SumSubtotals(s.rows) }

// Index returns the position of the row for analysisCode, or -1.
func (s *BudgetSession) Index(analysisCode string) int {
	return slices.IndexFunc(s.rows, func(u core.BudgetAnalysisUsage) bool {
		return u.AnalysisCode == analysisCode
	})
}

// AddAnalysis appends a row priced at the analysis's current stored total.
// Later edits to that analysis do not reprice the row.
func (s *BudgetSession) AddAnalysis(ctx context.Context, analysisCode string) (int, error) {
	a, err := s.analyses.Get(ctx, analysisCode)
	if err != nil {
		return -1, err
	}
	return s.AddRow(core.BudgetAnalysisUsage{
		AnalysisCode: a.Code,
		Description:  a.Description,
		Unit:         a.Unit,
		UnitPrice:    a.Total,
	})
}

func (s *BudgetSession) AddRow(row core.BudgetAnalysisUsage) (int, error) {
	row.BudgetCode = s.header.Code
	if err := row.Validate(); err != nil {
		return -1, err
	}
	if s.Index(row.AnalysisCode) >= 0 {
		return -1, fmt.Errorf("%w: analysis %q already in budget %q", core.ErrDuplicateKey, row.AnalysisCode, s.header.Code)
	}
	row, err := row.Recompute()
	if err != nil {
		return -1, err
	}
	s.rows = append(s.rows, row)
	s.state = Editing
	i := len(s.rows) - 1
	s.notify(Change{Kind: RowAdded, Row: i, Derived: row.Subtotal, Total: s.Total()})
	return i, nil
}

// EditCell sets the quantity or unit price of a row and recomputes its
// subtotal. Budget rows have no waste column.
func (s *BudgetSession) EditCell(i int, col Column, text string) error {
	if err := checkRow(i, len(s.rows)); err != nil {
		return err
	}
	v, err := parseCell(text)
	if err != nil {
		return err
	}
	row := s.rows[i]
	switch col {
	case ColQuantity:
		row.Quantity = v
	case ColUnitPrice:
		row.UnitPrice = v
	default:
		return fmt.Errorf("%w: column %d is not editable", core.ErrInvalidValue, col)
	}
	row, err = row.Recompute()
	if err != nil {
		return err
	}
	s.rows[i] = row
	s.state = Editing
	s.notify(Change{Kind: RowEdited, Row: i, Derived: row.Subtotal, Total: s.Total()})
	return nil
}

func (s *BudgetSession) RemoveRow(i int) error {
	if err := checkRow(i, len(s.rows)); err != nil {
		return err
	}
	s.rows = slices.Delete(s.rows, i, i+1)
	s.state = Editing
	s.notify(Change{Kind: RowRemoved, Row: i, Total: s.Total()})
	return nil
}

func (s *BudgetSession) Commit(ctx context.Context) (decimal.Decimal, error) {
	s.state = Committing
	total, err := s.store.ReplaceUsages(ctx, s.header.Code, slices.Clone(s.rows))
	if err != nil {
		s.state = Editing
		s.notify(Change{Kind: CommitFailed, Row: -1, Total: s.Total()})
		return decimal.Zero, err
	}
	if err := s.load(ctx); err != nil {
		slog.WarnContext(ctx, "Reload after commit failed", "budget_code", s.header.Code, "error", err)
		s.header.Total = total
		s.state = Loaded
	}
	s.notify(Change{Kind: Committed, Row: -1, Total: total})
	return total, nil
}

func (s *BudgetSession) Discard(ctx context.Context) error {
	if err := s.load(ctx); err != nil {
		return err
	}
	s.notify(Change{Kind: Reloaded, Row: -1, Total: s.Total()})
	return nil
}
