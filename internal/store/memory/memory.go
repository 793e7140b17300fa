package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"presupuestos/internal/core"
	"presupuestos/internal/store"

	"github.com/shopspring/decimal"
)

// Ensure interface conformance
var _ store.UnitOfWork = (*Store)(nil)

// Store is an in-memory unit of work. Each transaction works on a copy of
// the state which replaces the committed state only when fn succeeds.
type Store struct {
	mu sync.Mutex
	st *state
}

type state struct {
	resources      map[string]core.Resource
	analyses       map[string]core.Analysis
	analysisUsages map[string][]core.AnalysisResourceUsage
	budgets        map[string]core.Budget
	budgetUsages   map[string][]core.BudgetAnalysisUsage
}

func New() *Store {
	return &Store{st: newState()}
}

func newState() *state {
	return &state{
		resources:      map[string]core.Resource{},
		analyses:       map[string]core.Analysis{},
		analysisUsages: map[string][]core.AnalysisResourceUsage{},
		budgets:        map[string]core.Budget{},
		budgetUsages:   map[string][]core.BudgetAnalysisUsage{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.resources {
		c.resources[k] = v
	}
	for k, v := range s.analyses {
		c.analyses[k] = v
	}
	for k, v := range s.analysisUsages {
		c.analysisUsages[k] = slices.Clone(v)
	}
	for k, v := range s.budgets {
		c.budgets[k] = v
	}
	for k, v := range s.budgetUsages {
		c.budgetUsages[k] = slices.Clone(v)
	}
	return c
}

// RunInTx implements store.UnitOfWork.
func (s *Store) RunInTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(&tx{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

type tx struct {
	st *state
}

// sortedValues returns the map values ordered by code, matching the SQL
// repository's ORDER BY code.
func sortedValues[T any](m map[string]T) []T {
	out := make([]T, 0, len(m))
	for _, code := range slices.Sorted(maps.Keys(m)) {
		out = append(out, m[code])
	}
	return out
}

// Resources

func (t *tx) GetResource(_ context.Context, code string) (core.Resource, error) {
	r, ok := t.st.resources[code]
	if !ok {
		return core.Resource{}, core.NotFound("resource", code)
	}
	return r, nil
}

func (t *tx) ListResources(_ context.Context) ([]core.Resource, error) {
	return sortedValues(t.st.resources), nil
}

func (t *tx) InsertResource(_ context.Context, r core.Resource) error {
	if _, ok := t.st.resources[r.Code]; ok {
		return fmt.Errorf("%w: resource %q", core.ErrDuplicateKey, r.Code)
	}
	t.st.resources[r.Code] = r
	return nil
}

func (t *tx) UpdateResource(_ context.Context, r core.Resource) error {
	if _, ok := t.st.resources[r.Code]; !ok {
		return core.NotFound("resource", r.Code)
	}
	t.st.resources[r.Code] = r
	return nil
}

func (t *tx) DeleteResource(_ context.Context, code string) error {
	if _, ok := t.st.resources[code]; !ok {
		return core.NotFound("resource", code)
	}
	if n, _ := t.CountResourceUsages(context.Background(), code); n > 0 {
		return fmt.Errorf("%w: resource %q is used by %d analysis rows", core.ErrReferentialConflict, code, n)
	}
	delete(t.st.resources, code)
	return nil
}

func (t *tx) CountResourceUsages(_ context.Context, code string) (int, error) {
	n := 0
	for _, rows := range t.st.analysisUsages {
		for _, u := range rows {
			if u.ResourceCode == code {
				n++
			}
		}
	}
	return n, nil
}

// Analyses

func (t *tx) GetAnalysis(_ context.Context, code string) (core.Analysis, error) {
	a, ok := t.st.analyses[code]
	if !ok {
		return core.Analysis{}, core.NotFound("analysis", code)
	}
	return a, nil
}

func (t *tx) ListAnalyses(_ context.Context) ([]core.Analysis, error) {
	return sortedValues(t.st.analyses), nil
}

func (t *tx) InsertAnalysis(_ context.Context, a core.Analysis) error {
	if _, ok := t.st.analyses[a.Code]; ok {
		return fmt.Errorf("%w: analysis %q", core.ErrDuplicateKey, a.Code)
	}
	t.st.analyses[a.Code] = a
	return nil
}

func (t *tx) UpdateAnalysisHeader(_ context.Context, code, description, unit string) error {
	a, ok := t.st.analyses[code]
	if !ok {
		return core.NotFound("analysis", code)
	}
	a.Description, a.Unit = description, unit
	t.st.analyses[code] = a
	return nil
}

func (t *tx) SetAnalysisTotal(_ context.Context, code string, total decimal.Decimal) error {
	a, ok := t.st.analyses[code]
	if !ok {
		return core.NotFound("analysis", code)
	}
	a.Total = total
	t.st.analyses[code] = a
	return nil
}

func (t *tx) DeleteAnalysis(_ context.Context, code string) error {
	if _, ok := t.st.analyses[code]; !ok {
		return core.NotFound("analysis", code)
	}
	if refs, _ := t.ListBudgetUsagesByAnalysis(context.Background(), code); len(refs) > 0 {
		return fmt.Errorf("%w: analysis %q is used by %d budget rows", core.ErrReferentialConflict, code, len(refs))
	}
	delete(t.st.analyses, code)
	delete(t.st.analysisUsages, code)
	return nil
}

func (t *tx) ListAnalysisUsages(_ context.Context, analysisCode string) ([]core.AnalysisResourceUsage, error) {
	rows := slices.Clone(t.st.analysisUsages[analysisCode])
	for i := range rows {
		rows[i].Description = t.st.resources[rows[i].ResourceCode].Description
	}
	return rows, nil
}

func (t *tx) DeleteAnalysisUsages(_ context.Context, analysisCode string) error {
	delete(t.st.analysisUsages, analysisCode)
	return nil
}

func (t *tx) InsertAnalysisUsage(_ context.Context, u core.AnalysisResourceUsage) error {
	if _, ok := t.st.analyses[u.AnalysisCode]; !ok {
		return core.NotFound("analysis", u.AnalysisCode)
	}
	if _, ok := t.st.resources[u.ResourceCode]; !ok {
		return core.NotFound("resource", u.ResourceCode)
	}
	for _, existing := range t.st.analysisUsages[u.AnalysisCode] {
		if existing.ResourceCode == u.ResourceCode {
			return fmt.Errorf("%w: analysis %q already uses resource %q", core.ErrDuplicateKey, u.AnalysisCode, u.ResourceCode)
		}
	}
	u.Description = ""
	t.st.analysisUsages[u.AnalysisCode] = append(t.st.analysisUsages[u.AnalysisCode], u)
	return nil
}

// Budgets

func (t *tx) GetBudget(_ context.Context, code string) (core.Budget, error) {
	b, ok := t.st.budgets[code]
	if !ok {
		return core.Budget{}, core.NotFound("budget", code)
	}
	return b, nil
}

func (t *tx) ListBudgets(_ context.Context) ([]core.Budget, error) {
	return sortedValues(t.st.budgets), nil
}

func (t *tx) InsertBudget(_ context.Context, b core.Budget) error {
	if _, ok := t.st.budgets[b.Code]; ok {
		return fmt.Errorf("%w: budget %q", core.ErrDuplicateKey, b.Code)
	}
	t.st.budgets[b.Code] = b
	return nil
}

func (t *tx) UpdateBudgetHeader(_ context.Context, code, description string) error {
	b, ok := t.st.budgets[code]
	if !ok {
		return core.NotFound("budget", code)
	}
	b.Description = description
	t.st.budgets[code] = b
	return nil
}

func (t *tx) SetBudgetTotal(_ context.Context, code string, total decimal.Decimal) error {
	b, ok := t.st.budgets[code]
	if !ok {
		return core.NotFound("budget", code)
	}
	b.Total = total
	t.st.budgets[code] = b
	return nil
}

func (t *tx) DeleteBudget(_ context.Context, code string) error {
	if _, ok := t.st.budgets[code]; !ok {
		return core.NotFound("budget", code)
	}
	delete(t.st.budgets, code)
	delete(t.st.budgetUsages, code)
	return nil
}

func (t *tx) ListBudgetUsages(_ context.Context, budgetCode string) ([]core.BudgetAnalysisUsage, error) {
	return slices.Clone(t.st.budgetUsages[budgetCode]), nil
}

func (t *tx) ListBudgetUsagesByAnalysis(_ context.Context, analysisCode string) ([]core.BudgetAnalysisUsage, error) {
	var out []core.BudgetAnalysisUsage
	for _, code := range slices.Sorted(maps.Keys(t.st.budgetUsages)) {
		for _, u := range t.st.budgetUsages[code] {
			if u.AnalysisCode == analysisCode {
				out = append(out, u)
			}
		}
	}
	return out, nil
}

func (t *tx) DeleteBudgetUsages(_ context.Context, budgetCode string) error {
	delete(t.st.budgetUsages, budgetCode)
	return nil
}

func (t *tx) InsertBudgetUsage(_ context.Context, u core.BudgetAnalysisUsage) error {
	if _, ok := t.st.budgets[u.BudgetCode]; !ok {
		return core.NotFound("budget", u.BudgetCode)
	}
	if _, ok := t.st.analyses[u.AnalysisCode]; !ok {
		return core.NotFound("analysis", u.AnalysisCode)
	}
	for _, existing := range t.st.budgetUsages[u.BudgetCode] {
		if existing.AnalysisCode == u.AnalysisCode {
			return fmt.Errorf("%w: budget %q already uses analysis %q", core.ErrDuplicateKey, u.BudgetCode, u.AnalysisCode)
		}
	}
	t.st.budgetUsages[u.BudgetCode] = append(t.st.budgetUsages[u.BudgetCode], u)
	return nil
}
