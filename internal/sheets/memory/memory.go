// Package memory provides an in-process BudgetWriter that records what would
// have been written. Used by tests and dry runs.
package memory

import (
	"context"
	"slices"
	"sync"

	"presupuestos/internal/core"
	ports "presupuestos/internal/sheets"
)

var _ ports.BudgetWriter = (*Writer)(nil)

// Write is one recorded WriteBudget call.
type Write struct {
	Budget core.Budget
	Rows   []core.BudgetAnalysisUsage
	Values [][]any
}

type Writer struct {
	mu     sync.Mutex
	writes []Write
	err    error
}

func NewWriter() *Writer { return &Writer{} }

// FailWith makes every following write return err. A nil err clears it.
func (w *Writer) FailWith(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.err = err
}

func (w *Writer) WriteBudget(_ context.Context, b core.Budget, rows []core.BudgetAnalysisUsage) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.writes = append(w.writes, Write{Budget: b, Rows: slices.Clone(rows), Values: ports.BudgetValues(b, rows)})
	return nil
}

// Writes returns every recorded write in call order.
func (w *Writer) Writes() []Write {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.writes)
}

// Last returns the latest write for a budget code.
func (w *Writer) Last(code string) (Write, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := len(w.writes) - 1; i >= 0; i-- {
		if w.writes[i].Budget.Code == code {
			return w.writes[i], true
		}
	}
	return Write{}, false
}
