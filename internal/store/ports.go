// Package store defines the transactional data-access contract used by the
// services. Implementations live in store/memory and storage.
package store

import (
	"context"

	"presupuestos/internal/core"

	"github.com/shopspring/decimal"
)

// Ports for persistence adapters. Lookups report core.ErrNotFound for a
// missing code and inserts report core.ErrDuplicateKey on a key clash.
type (
	ResourceTx interface {
		GetResource(ctx context.Context, code string) (core.Resource, error)
		ListResources(ctx context.Context) ([]core.Resource, error)
		InsertResource(ctx context.Context, r core.Resource) error
		UpdateResource(ctx context.Context, r core.Resource) error
		DeleteResource(ctx context.Context, code string) error
		// CountResourceUsages returns how many analysis rows reference the resource.
		CountResourceUsages(ctx context.Context, code string) (int, error)
	}

	AnalysisTx interface {
		GetAnalysis(ctx context.Context, code string) (core.Analysis, error)
		ListAnalyses(ctx context.Context) ([]core.Analysis, error)
		InsertAnalysis(ctx context.Context, a core.Analysis) error
		UpdateAnalysisHeader(ctx context.Context, code, description, unit string) error
		SetAnalysisTotal(ctx context.Context, code string, total decimal.Decimal) error
		// DeleteAnalysis removes the analysis and its usage rows.
		DeleteAnalysis(ctx context.Context, code string) error
		ListAnalysisUsages(ctx context.Context, analysisCode string) ([]core.AnalysisResourceUsage, error)
		DeleteAnalysisUsages(ctx context.Context, analysisCode string) error
		InsertAnalysisUsage(ctx context.Context, u core.AnalysisResourceUsage) error
	}

	BudgetTx interface {
		GetBudget(ctx context.Context, code string) (core.Budget, error)
		ListBudgets(ctx context.Context) ([]core.Budget, error)
		InsertBudget(ctx context.Context, b core.Budget) error
		UpdateBudgetHeader(ctx context.Context, code, description string) error
		SetBudgetTotal(ctx context.Context, code string, total decimal.Decimal) error
		// DeleteBudget removes the budget and its usage rows.
		DeleteBudget(ctx context.Context, code string) error
		ListBudgetUsages(ctx context.Context, budgetCode string) ([]core.BudgetAnalysisUsage, error)
		// ListBudgetUsagesByAnalysis returns every budget row referencing the analysis.
		ListBudgetUsagesByAnalysis(ctx context.Context, analysisCode string) ([]core.BudgetAnalysisUsage, error)
		DeleteBudgetUsages(ctx context.Context, budgetCode string) error
		InsertBudgetUsage(ctx context.Context, u core.BudgetAnalysisUsage) error
	}

	// Tx is the view of the store inside one transaction.
	Tx interface {
		ResourceTx
		AnalysisTx
		BudgetTx
	}

	// UnitOfWork runs fn inside a transaction. The transaction commits when
	// fn returns nil and rolls back entirely otherwise.
	UnitOfWork interface {
		RunInTx(ctx context.Context, fn func(tx Tx) error) error
	}
)
