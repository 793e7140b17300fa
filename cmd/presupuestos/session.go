package main

import (
	"fmt"

	"presupuestos/internal/core"
	applog "presupuestos/internal/log"
	"presupuestos/internal/session"

	"github.com/spf13/cobra"
)

// cellFlags are the numeric cells a row command may set.
type cellFlags struct {
	quantity string
	waste    string
	price    string
}

func (f *cellFlags) register(cmd *cobra.Command, withWaste bool) {
	cmd.Flags().StringVar(&f.quantity, "quantity", "", "row quantity")
	if withWaste {
		cmd.Flags().StringVar(&f.waste, "waste", "", "waste fraction, 0.05 for 5%")
	}
	cmd.Flags().StringVar(&f.price, "price", "", "override the snapshotted unit price")
}

type cellEditor interface {
	EditCell(i int, col session.Column, text string) error
}

// apply writes every flag the user set into row i and reports how many
// cells changed. Flag values are parsed strictly, so malformed text fails
// before any cell is touched.
func (f *cellFlags) apply(cmd *cobra.Command, s cellEditor, i int) (int, error) {
	edits := []struct {
		flag  string
		col   session.Column
		value string
	}{
		{"quantity", session.ColQuantity, f.quantity},
		{"waste", session.ColWaste, f.waste},
		{"price", session.ColUnitPrice, f.price},
	}
	var changed []int
	for k, ed := range edits {
		if cmd.Flags().Lookup(ed.flag) == nil || !cmd.Flags().Changed(ed.flag) {
			continue
		}
		if _, err := core.ParseAmount(ed.value); err != nil {
			return 0, fmt.Errorf("--%s: %w", ed.flag, err)
		}
		changed = append(changed, k)
	}
	n := 0
	for _, k := range changed {
		ed := edits[k]
		if err := s.EditCell(i, ed.col, ed.value); err != nil {
			return n, fmt.Errorf("--%s: %w", ed.flag, err)
		}
		n++
	}
	return n, nil
}

// traceChanges logs every session change at debug level.
func (e *env) traceChanges(code string) func(session.Change) {
	return func(c session.Change) {
		e.logger.Debug("Session change",
			"code", code,
			"kind", c.Kind.String(),
			"row", c.Row,
			"derived", c.Derived.String(),
			applog.FieldTotal, c.Total.String(),
			applog.FieldState, c.State.String())
	}
}
