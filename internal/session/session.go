// Package session implements edit sessions over one analysis or budget.
// Cell edits only touch the in-memory rows; storage is written once, on
// Commit, through a single replace-usages transaction.
package session

import (
	"fmt"

	"presupuestos/internal/core"

	"github.com/shopspring/decimal"
)

// State of an edit session.
type State int

const (
	Loaded State = iota
	Editing
	Committing
)

func (s State) String() string {
	switch s {
	case Loaded:
		return "loaded"
	case Editing:
		return "editing"
	case Committing:
		return "committing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Column identifies an editable numeric cell.
type Column int

const (
	ColQuantity Column = iota
	ColWaste
	ColUnitPrice
)

// ChangeKind says what happened to the session.
type ChangeKind int

const (
	RowAdded ChangeKind = iota
	RowEdited
	RowRemoved
	Committed
	CommitFailed
	Reloaded
)

func (k ChangeKind) String() string {
	switch k {
	case RowAdded:
		return "row_added"
	case RowEdited:
		return "row_edited"
	case RowRemoved:
		return "row_removed"
	case Committed:
		return "committed"
	case CommitFailed:
		return "commit_failed"
	case Reloaded:
		return "reloaded"
	default:
		return fmt.Sprintf("change(%d)", int(k))
	}
}

// Change is delivered to observers after every mutation. Row is -1 for
// session-wide changes. Derived is the recomputed partial cost or subtotal
// of the affected row.
type Change struct {
	Kind    ChangeKind
	Row     int
	Derived decimal.Decimal
	Total   decimal.Decimal
	State   State
}

type base struct {
	state     State
	observers []func(Change)
}

// OnChange registers fn to be called after each change.
func (b *base) OnChange(fn func(Change)) {
	b.observers = append(b.observers, fn)
}

func (b *base) State() State { return b.state }

func (b *base) notify(c Change) {
	c.State = b.state
	for _, fn := range b.observers {
		fn(c)
	}
}

func checkRow(i, n int) error {
	if i < 0 || i >= n {
		return fmt.Errorf("%w: row %d out of range (%d rows)", core.ErrInvalidValue, i, n)
	}
	return nil
}

// parseCell applies the interactive-edit policy: malformed text becomes
// zero, negatives are rejected.
func parseCell(text string) (decimal.Decimal, error) {
	v := core.ParseCell(text)
	if v.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: negative value %q", core.ErrInvalidValue, text)
	}
	return v, nil
}
