package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"presupuestos/internal/amqp"
	"presupuestos/internal/core"
	applog "presupuestos/internal/log"
	"presupuestos/internal/store"

	"github.com/shopspring/decimal"
)

const entityBudget = "budget"

// BudgetService keeps each budget total equal to the sum of its analysis
// rows.
type BudgetService struct {
	uow      store.UnitOfWork
	notifier Notifier
}

func NewBudgetService(uow store.UnitOfWork, notifier Notifier) *BudgetService {
	return &BudgetService{uow: uow, notifier: notifier}
}

func (s *BudgetService) Create(ctx context.Context, b core.Budget) error {
	b.Code = strings.TrimSpace(b.Code)
	b.Description = strings.TrimSpace(b.Description)
	if err := b.Validate(); err != nil {
		return core.NewOpError("create", entityBudget, b.Code, err)
	}
	err := s.uow.RunInTx(ctx, func(tx store.Tx) error {
		return tx.InsertBudget(ctx, b)
	})
	if err != nil {
		return core.NewOpError("create", entityBudget, b.Code, err)
	}
	slog.InfoContext(ctx, "Budget created", applog.FieldOperation, applog.OpCreate, applog.FieldBudgetCode, b.Code)
	return nil
}

func (s *BudgetService) UpdateHeader(ctx context.Context, code, description string) error {
	code = strings.TrimSpace(code)
	err := s.uow.RunInTx(ctx, func(tx store.Tx) error {
		return tx.UpdateBudgetHeader(ctx, code, strings.TrimSpace(description))
	})
	return core.NewOpError("update", entityBudget, code, err)
}

// Delete removes a budget together with its rows.
func (s *BudgetService) Delete(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	err := s.uow.RunInTx(ctx, func(tx store.Tx) error {
		return tx.DeleteBudget(ctx, code)
	})
	if err != nil {
		return core.NewOpError("delete", entityBudget, code, err)
	}
	slog.InfoContext(ctx, "Budget deleted", applog.FieldOperation, applog.OpDelete, applog.FieldBudgetCode, code)
	return nil
}

func (s *BudgetService) Get(ctx context.Context, code string) (core.Budget, error) {
	code = strings.TrimSpace(code)
	var b core.Budget
	err := s.uow.RunInTx(ctx, func(tx store.Tx) error {
		var err error
		b, err = tx.GetBudget(ctx, code)
		return err
	})
	return b, core.NewOpError("get", entityBudget, code, err)
}

func (s *BudgetService) List(ctx context.Context) ([]core.Budget, error) {
	var out []core.Budget
	err := s.uow.RunInTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListBudgets(ctx)
		return err
	})
	return out, core.NewOpError("list", entityBudget, "", err)
}

func (s *BudgetService) Usages(ctx context.Context, code string) ([]core.BudgetAnalysisUsage, error) {
	code = strings.TrimSpace(code)
	var out []core.BudgetAnalysisUsage
	err := s.uow.RunInTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetBudget(ctx, code); err != nil {
			return err
		}
		var err error
		out, err = tx.ListBudgetUsages(ctx, code)
		return err
	})
	return out, core.NewOpError("usages", entityBudget, code, err)
}

// ReplaceUsages discards the budget rows and stores rows in their place,
// recomputing every subtotal and the budget total in the same transaction.
func (s *BudgetService) ReplaceUsages(ctx context.Context, code string, rows []core.BudgetAnalysisUsage) (decimal.Decimal, error) {
	code = strings.TrimSpace(code)
	prepared, err := prepareBudgetRows(code, rows)
	if err != nil {
		return decimal.Zero, core.NewOpError("replace_usages", entityBudget, code, err)
	}
	total := core.SumSubtotals(prepared)

	err = s.uow.RunInTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetBudget(ctx, code); err != nil {
			return err
		}
		for i, u := range prepared {
			a, err := tx.GetAnalysis(ctx, u.AnalysisCode)
			if err != nil {
				return err
			}
			if u.Description == "" {
				prepared[i].Description = a.Description
			}
			if u.Unit == "" {
				prepared[i].Unit = a.Unit
			}
		}
		if err := tx.DeleteBudgetUsages(ctx, code); err != nil {
			return err
		}
		for _, u := range prepared {
			if err := tx.InsertBudgetUsage(ctx, u); err != nil {
				return fmt.Errorf("insert analysis %q: %w", u.AnalysisCode, err)
			}
		}
		return tx.SetBudgetTotal(ctx, code, total)
	})
	if err != nil {
		slog.ErrorContext(ctx, "Budget commit rolled back",
			applog.NewFields().WithOperation(applog.OpReplaceUsages).WithBudget(code).WithError(err).ToSlice()...)
		return decimal.Zero, core.NewOpError("replace_usages", entityBudget, code, err)
	}

	slog.InfoContext(ctx, "Budget usages replaced",
		applog.NewFields().WithOperation(applog.OpReplaceUsages).WithBudget(code).WithTotals(total, len(prepared)).ToSlice()...)
	publishCommit(ctx, s.notifier, amqp.KindBudget, code, total, len(prepared))
	return total, nil
}

func prepareBudgetRows(code string, rows []core.BudgetAnalysisUsage) ([]core.BudgetAnalysisUsage, error) {
	out := make([]core.BudgetAnalysisUsage, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for _, u := range rows {
		u.BudgetCode = code
		u.AnalysisCode = strings.TrimSpace(u.AnalysisCode)
		if err := u.Validate(); err != nil {
			return nil, fmt.Errorf("analysis %q: %w", u.AnalysisCode, err)
		}
		if seen[u.AnalysisCode] {
			return nil, fmt.Errorf("%w: analysis %q appears twice", core.ErrDuplicateKey, u.AnalysisCode)
		}
		seen[u.AnalysisCode] = true

		recomputed, err := u.Recompute()
		if err != nil {
			return nil, err
		}
		out = append(out, recomputed)
	}
	return out, nil
}

// StaleUsage is a budget row whose price snapshot no longer matches the
// analysis total.
type StaleUsage struct {
	Usage        core.BudgetAnalysisUsage
	CurrentTotal decimal.Decimal
}

// StaleUsages reports budget rows that snapshot analysisCode at a price
// other than its current total. It never rewrites the snapshots.
func (s *BudgetService) StaleUsages(ctx context.Context, analysisCode string) ([]StaleUsage, error) {
	analysisCode = strings.TrimSpace(analysisCode)
	var out []StaleUsage
	err := s.uow.RunInTx(ctx, func(tx store.Tx) error {
		a, err := tx.GetAnalysis(ctx, analysisCode)
		if err != nil {
			return err
		}
		refs, err := tx.ListBudgetUsagesByAnalysis(ctx, analysisCode)
		if err != nil {
			return err
		}
		for _, u := range refs {
			if !u.UnitPrice.Equal(a.Total) {
				out = append(out, StaleUsage{Usage: u, CurrentTotal: a.Total})
			}
		}
		return nil
	})
	return out, core.NewOpError("stale_usages", entityBudget, analysisCode, err)
}
