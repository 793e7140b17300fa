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

const entityAnalysis = "analysis"

// AnalysisService keeps each analysis total equal to the sum of its
// resource rows.
type AnalysisService struct {
	uow      store.UnitOfWork
	notifier Notifier
}

func NewAnalysisService(uow store.UnitOfWork, notifier Notifier) *AnalysisService {
	return &AnalysisService{uow: uow, notifier: notifier}
}

func normalizeAnalysis(a core.Analysis) core.Analysis {
	a.Code = strings.TrimSpace(a.Code)
	a.Description = strings.TrimSpace(a.Description)
	a.Unit = strings.TrimSpace(a.Unit)
	return a
}

// Create stores an analysis header, empty or with an initial total.
func (s *AnalysisService) Create(ctx context.Context, a core.Analysis) error {
	a = normalizeAnalysis(a)
	if err := a.Validate(); err != nil {
		return core.NewOpError("create", entityAnalysis, a.Code, err)
	}
	err := s.uow.RunInTx(ctx, func(tx store.Tx) error {
		return tx.InsertAnalysis(ctx, a)
	})
	if err != nil {
		return core.NewOpError("create", entityAnalysis, a.Code, err)
	}
	slog.InfoContext(ctx, "Analysis created", applog.FieldOperation, applog.OpCreate, applog.FieldAnalysisCode, a.Code)
	return nil
}

func (s *AnalysisService) UpdateHeader(ctx context.Context, code, description, unit string) error {
	code = strings.TrimSpace(code)
	err := s.uow.RunInTx(ctx, func(tx store.Tx) error {
		return tx.UpdateAnalysisHeader(ctx, code, strings.TrimSpace(description), strings.TrimSpace(unit))
	})
	return core.NewOpError("update", entityAnalysis, code, err)
}

// Delete removes an analysis and its resource rows. Analyses priced into a
// budget cannot be deleted.
func (s *AnalysisService) Delete(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	err := s.uow.RunInTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetAnalysis(ctx, code); err != nil {
			return err
		}
		refs, err := tx.ListBudgetUsagesByAnalysis(ctx, code)
		if err != nil {
			return err
		}
		if len(refs) > 0 {
			return fmt.Errorf("%w: used by budget %q", core.ErrReferentialConflict, refs[0].BudgetCode)
		}
		return tx.DeleteAnalysis(ctx, code)
	})
	if err != nil {
		return core.NewOpError("delete", entityAnalysis, code, err)
	}
	slog.InfoContext(ctx, "Analysis deleted", applog.FieldOperation, applog.OpDelete, applog.FieldAnalysisCode, code)
	return nil
}

func (s *AnalysisService) Get(ctx context.Context, code string) (core.Analysis, error) {
	code = strings.TrimSpace(code)
	var a core.Analysis
	err := s.uow.RunInTx(ctx, func(tx store.Tx) error {
		var err error
		a, err = tx.GetAnalysis(ctx, code)
		return err
	})
	return a, core.NewOpError("get", entityAnalysis, code, err)
}

func (s *AnalysisService) List(ctx context.Context) ([]core.Analysis, error) {
	var out []core.Analysis
	err := s.uow.RunInTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListAnalyses(ctx)
		return err
	})
	return out, core.NewOpError("list", entityAnalysis, "", err)
}

// Usages returns the persisted resource rows of an analysis.
func (s *AnalysisService) Usages(ctx context.Context, code string) ([]core.AnalysisResourceUsage, error) {
	code = strings.TrimSpace(code)
	var out []core.AnalysisResourceUsage
	err := s.uow.RunInTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetAnalysis(ctx, code); err != nil {
			return err
		}
		var err error
		out, err = tx.ListAnalysisUsages(ctx, code)
		return err
	})
	return out, core.NewOpError("usages", entityAnalysis, code, err)
}

// ReplaceUsages discards the analysis rows and stores rows in their place,
// recomputing every partial cost and the analysis total in the same
// transaction. Each row's unit price is kept as given.
func (s *AnalysisService) ReplaceUsages(ctx context.Context, code string, rows []core.AnalysisResourceUsage) (decimal.Decimal, error) {
	code = strings.TrimSpace(code)
	prepared, err := prepareAnalysisRows(code, rows)
	if err != nil {
		return decimal.Zero, core.NewOpError("replace_usages", entityAnalysis, code, err)
	}
	total := core.SumPartialCosts(prepared)

	err = s.uow.RunInTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetAnalysis(ctx, code); err != nil {
			return err
		}
		for i, u := range prepared {
			r, err := tx.GetResource(ctx, u.ResourceCode)
			if err != nil {
				return err
			}
			if u.Unit == "" {
				prepared[i].Unit = r.Unit
			}
		}
		if err := tx.DeleteAnalysisUsages(ctx, code); err != nil {
			return err
		}
		for _, u := range prepared {
			if err := tx.InsertAnalysisUsage(ctx, u); err != nil {
				return fmt.Errorf("insert resource %q: %w", u.ResourceCode, err)
			}
		}
		return tx.SetAnalysisTotal(ctx, code, total)
	})
	if err != nil {
		slog.ErrorContext(ctx, "Analysis commit rolled back",
			applog.NewFields().WithOperation(applog.OpReplaceUsages).WithAnalysis(code).WithError(err).ToSlice()...)
		return decimal.Zero, core.NewOpError("replace_usages", entityAnalysis, code, err)
	}

	slog.InfoContext(ctx, "Analysis usages replaced",
		applog.NewFields().WithOperation(applog.OpReplaceUsages).WithAnalysis(code).WithTotals(total, len(prepared)).ToSlice()...)
	publishCommit(ctx, s.notifier, amqp.KindAnalysis, code, total, len(prepared))
	return total, nil
}

// prepareAnalysisRows validates rows and recomputes partial costs before any
// storage access.
func prepareAnalysisRows(code string, rows []core.AnalysisResourceUsage) ([]core.AnalysisResourceUsage, error) {
	out := make([]core.AnalysisResourceUsage, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for _, u := range rows {
		u.AnalysisCode = code
		u.ResourceCode = strings.TrimSpace(u.ResourceCode)
		if err := u.Validate(); err != nil {
			return nil, fmt.Errorf("resource %q: %w", u.ResourceCode, err)
		}
		if seen[u.ResourceCode] {
			return nil, fmt.Errorf("%w: resource %q appears twice", core.ErrDuplicateKey, u.ResourceCode)
		}
		seen[u.ResourceCode] = true

		recomputed, err := u.Recompute()
		if err != nil {
			return nil, err
		}
		out = append(out, recomputed)
	}
	return out, nil
}

// CategoryGroup is one labor/equipment/material section of a breakdown.
type CategoryGroup struct {
	Category core.Category
	Rows     []core.AnalysisResourceUsage
	Subtotal decimal.Decimal
}

// Breakdown is an analysis with its rows grouped for presentation.
type Breakdown struct {
	Analysis core.Analysis
	Groups   []CategoryGroup
}

// Breakdown groups the persisted rows of an analysis by category. Empty
// categories are omitted.
func (s *AnalysisService) Breakdown(ctx context.Context, code string) (Breakdown, error) {
	code = strings.TrimSpace(code)
	var b Breakdown
	err := s.uow.RunInTx(ctx, func(tx store.Tx) error {
		var err error
		if b.Analysis, err = tx.GetAnalysis(ctx, code); err != nil {
			return err
		}
		rows, err := tx.ListAnalysisUsages(ctx, code)
		if err != nil {
			return err
		}
		groups := core.GroupByCategory(rows)
		for _, c := range core.Categories {
			if len(groups[c]) == 0 {
				continue
			}
			b.Groups = append(b.Groups, CategoryGroup{
				Category: c,
				Rows:     groups[c],
				Subtotal: core.SumPartialCosts(groups[c]),
			})
		}
		return nil
	})
	if err != nil {
		return Breakdown{}, core.NewOpError("breakdown", entityAnalysis, code, err)
	}
	return b, nil
}
