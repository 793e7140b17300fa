package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"presupuestos/internal/core"

	"github.com/shopspring/decimal"
)

type sqlTx struct {
	tx     *sql.Tx
	driver Driver
}

func (t *sqlTx) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := t.tx.ExecContext(ctx, t.driver.rebind(query), args...)
	return res, mapError(err)
}

func (t *sqlTx) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := t.tx.QueryContext(ctx, t.driver.rebind(query), args...)
	return rows, mapError(err)
}

func (t *sqlTx) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, t.driver.rebind(query), args...)
}

// execOne runs a statement that must touch exactly one row.
func (t *sqlTx) execOne(ctx context.Context, entity, code, query string, args ...any) error {
	res, err := t.exec(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.NotFound(entity, code)
	}
	return nil
}

func notFoundOr(err error, entity, code string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return core.NotFound(entity, code)
	}
	return mapError(err)
}

// Resources

func (t *sqlTx) GetResource(ctx context.Context, code string) (core.Resource, error) {
	var r core.Resource
	err := t.queryRow(ctx,
		`SELECT code, description, unit, unit_price FROM resources WHERE code = ?`, code).
		Scan(&r.Code, &r.Description, &r.Unit, &r.UnitPrice)
	if err != nil {
		return core.Resource{}, notFoundOr(err, "resource", code)
	}
	return r, nil
}

func (t *sqlTx) ListResources(ctx context.Context) ([]core.Resource, error) {
	rows, err := t.query(ctx, `SELECT code, description, unit, unit_price FROM resources ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	defer rows.Close()

	var out []core.Resource
	for rows.Next() {
		var r core.Resource
		if err := rows.Scan(&r.Code, &r.Description, &r.Unit, &r.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *sqlTx) InsertResource(ctx context.Context, r core.Resource) error {
	_, err := t.exec(ctx,
		`INSERT INTO resources (code, description, unit, unit_price) VALUES (?, ?, ?, ?)`,
		r.Code, r.Description, r.Unit, r.UnitPrice)
	return err
}

func (t *sqlTx) UpdateResource(ctx context.Context, r core.Resource) error {
	return t.execOne(ctx, "resource", r.Code,
		`UPDATE resources SET description = ?, unit = ?, unit_price = ? WHERE code = ?`,
		r.Description, r.Unit, r.UnitPrice, r.Code)
}

func (t *sqlTx) DeleteResource(ctx context.Context, code string) error {
	return t.execOne(ctx, "resource", code, `DELETE FROM resources WHERE code = ?`, code)
}

func (t *sqlTx) CountResourceUsages(ctx context.Context, code string) (int, error) {
	var n int
	err := t.queryRow(ctx,
		`SELECT COUNT(*) FROM analysis_resource_usage WHERE resource_code = ?`, code).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count resource usages: %w", mapError(err))
	}
	return n, nil
}

// Analyses

func (t *sqlTx) GetAnalysis(ctx context.Context, code string) (core.Analysis, error) {
	var a core.Analysis
	err := t.queryRow(ctx,
		`SELECT code, description, unit, total FROM analyses WHERE code = ?`, code).
		Scan(&a.Code, &a.Description, &a.Unit, &a.Total)
	if err != nil {
		return core.Analysis{}, notFoundOr(err, "analysis", code)
	}
	return a, nil
}

func (t *sqlTx) ListAnalyses(ctx context.Context) ([]core.Analysis, error) {
	rows, err := t.query(ctx, `SELECT code, description, unit, total FROM analyses ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	var out []core.Analysis
	for rows.Next() {
		var a core.Analysis
		if err := rows.Scan(&a.Code, &a.Description, &a.Unit, &a.Total); err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (t *sqlTx) InsertAnalysis(ctx context.Context, a core.Analysis) error {
	_, err := t.exec(ctx,
		`INSERT INTO analyses (code, description, unit, total) VALUES (?, ?, ?, ?)`,
		a.Code, a.Description, a.Unit, a.Total)
	return err
}

func (t *sqlTx) UpdateAnalysisHeader(ctx context.Context, code, description, unit string) error {
	return t.execOne(ctx, "analysis", code,
		`UPDATE analyses SET description = ?, unit = ? WHERE code = ?`, description, unit, code)
}

func (t *sqlTx) SetAnalysisTotal(ctx context.Context, code string, total decimal.Decimal) error {
	return t.execOne(ctx, "analysis", code, `UPDATE analyses SET total = ? WHERE code = ?`, total, code)
}

func (t *sqlTx) DeleteAnalysis(ctx context.Context, code string) error {
	if err := t.DeleteAnalysisUsages(ctx, code); err != nil {
		return err
	}
	return t.execOne(ctx, "analysis", code, `DELETE FROM analyses WHERE code = ?`, code)
}

func (t *sqlTx) ListAnalysisUsages(ctx context.Context, analysisCode string) ([]core.AnalysisResourceUsage, error) {
	rows, err := t.query(ctx, `
		SELECT u.analysis_code, u.resource_code, COALESCE(r.description, ''), u.unit,
		       u.quantity, u.waste, u.unit_price, u.partial_cost
		FROM analysis_resource_usage u
		LEFT JOIN resources r ON r.code = u.resource_code
		WHERE u.analysis_code = ?
		ORDER BY u.id`, analysisCode)
	if err != nil {
		return nil, fmt.Errorf("list analysis usages: %w", err)
	}
	defer rows.Close()

	var out []core.AnalysisResourceUsage
	for rows.Next() {
		var u core.AnalysisResourceUsage
		if err := rows.Scan(&u.AnalysisCode, &u.ResourceCode, &u.Description, &u.Unit,
			&u.Quantity, &u.Waste, &u.UnitPrice, &u.PartialCost); err != nil {
			return nil, fmt.Errorf("scan analysis usage: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (t *sqlTx) DeleteAnalysisUsages(ctx context.Context, analysisCode string) error {
	_, err := t.exec(ctx, `DELETE FROM analysis_resource_usage WHERE analysis_code = ?`, analysisCode)
	return err
}

func (t *sqlTx) InsertAnalysisUsage(ctx context.Context, u core.AnalysisResourceUsage) error {
	_, err := t.exec(ctx, `
		INSERT INTO analysis_resource_usage
		    (analysis_code, resource_code, unit, quantity, waste, unit_price, partial_cost)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.AnalysisCode, u.ResourceCode, u.Unit, u.Quantity, u.Waste, u.UnitPrice, u.PartialCost)
	return err
}

// Budgets

func (t *sqlTx) GetBudget(ctx context.Context, code string) (core.Budget, error) {
	var b core.Budget
	err := t.queryRow(ctx, `SELECT code, description, total FROM budgets WHERE code = ?`, code).
		Scan(&b.Code, &b.Description, &b.Total)
	if err != nil {
		return core.Budget{}, notFoundOr(err, "budget", code)
	}
	return b, nil
}

func (t *sqlTx) ListBudgets(ctx context.Context) ([]core.Budget, error) {
	rows, err := t.query(ctx, `SELECT code, description, total FROM budgets ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		var b core.Budget
		if err := rows.Scan(&b.Code, &b.Description, &b.Total); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (t *sqlTx) InsertBudget(ctx context.Context, b core.Budget) error {
	_, err := t.exec(ctx, `INSERT INTO budgets (code, description, total) VALUES (?, ?, ?)`,
		b.Code, b.Description, b.Total)
	return err
}

func (t *sqlTx) UpdateBudgetHeader(ctx context.Context, code, description string) error {
	return t.execOne(ctx, "budget", code, `UPDATE budgets SET description = ? WHERE code = ?`, description, code)
}

func (t *sqlTx) SetBudgetTotal(ctx context.Context, code string, total decimal.Decimal) error {
	return t.execOne(ctx, "budget", code, `UPDATE budgets SET total = ? WHERE code = ?`, total, code)
}

func (t *sqlTx) DeleteBudget(ctx context.Context, code string) error {
	if err := t.DeleteBudgetUsages(ctx, code); err != nil {
		return err
	}
	return t.execOne(ctx, "budget", code, `DELETE FROM budgets WHERE code = ?`, code)
}

const budgetUsageColumns = `budget_code, analysis_code, description, unit, quantity, unit_price, vr_total`

func scanBudgetUsages(rows *sql.Rows) ([]core.BudgetAnalysisUsage, error) {
	defer rows.Close()
	var out []core.BudgetAnalysisUsage
	for rows.Next() {
		var u core.BudgetAnalysisUsage
		if err := rows.Scan(&u.BudgetCode, &u.AnalysisCode, &u.Description, &u.Unit,
			&u.Quantity, &u.UnitPrice, &u.Subtotal); err != nil {
			return nil, fmt.Errorf("scan budget usage: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (t *sqlTx) ListBudgetUsages(ctx context.Context, budgetCode string) ([]core.BudgetAnalysisUsage, error) {
	rows, err := t.query(ctx,
		`SELECT `+budgetUsageColumns+` FROM budget_analysis_usage WHERE budget_code = ? ORDER BY id`, budgetCode)
	if err != nil {
		return nil, fmt.Errorf("list budget usages: %w", err)
	}
	return scanBudgetUsages(rows)
}

func (t *sqlTx) ListBudgetUsagesByAnalysis(ctx context.Context, analysisCode string) ([]core.BudgetAnalysisUsage, error) {
	rows, err := t.query(ctx,
		`SELECT `+budgetUsageColumns+` FROM budget_analysis_usage WHERE analysis_code = ? ORDER BY budget_code, id`, analysisCode)
	if err != nil {
		return nil, fmt.Errorf("list budget usages by analysis: %w", err)
	}
	return scanBudgetUsages(rows)
}

func (t *sqlTx) DeleteBudgetUsages(ctx context.Context, budgetCode string) error {
	_, err := t.exec(ctx, `DELETE FROM budget_analysis_usage WHERE budget_code = ?`, budgetCode)
	return err
}

func (t *sqlTx) InsertBudgetUsage(ctx context.Context, u core.BudgetAnalysisUsage) error {
	_, err := t.exec(ctx,
		`INSERT INTO budget_analysis_usage (`+budgetUsageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.BudgetCode, u.AnalysisCode, u.Description, u.Unit, u.Quantity, u.UnitPrice, u.Subtotal)
	return err
}
