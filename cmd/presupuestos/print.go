package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"presupuestos/internal/core"
	"presupuestos/internal/services"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printResources(w io.Writer, rows []core.Resource) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "CODE\tDESCRIPTION\tUNIT\tUNIT PRICE")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Code, r.Description, r.Unit, core.FormatCurrency(r.UnitPrice))
	}
	return tw.Flush()
}

func printAnalyses(w io.Writer, rows []core.Analysis) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "CODE\tDESCRIPTION\tUNIT\tTOTAL")
	for _, a := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.Code, a.Description, a.Unit, core.FormatCurrency(a.Total))
	}
	return tw.Flush()
}

func printBudgets(w io.Writer, rows []core.Budget) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "CODE\tDESCRIPTION\tTOTAL")
	for _, b := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", b.Code, b.Description, core.FormatCurrency(b.Total))
	}
	return tw.Flush()
}

func printBreakdown(w io.Writer, bd services.Breakdown) error {
	a := bd.Analysis
	fmt.Fprintf(w, "%s  %s  (%s)\n", a.Code, a.Description, a.Unit)
	tw := newTable(w)
	for _, g := range bd.Groups {
		fmt.Fprintf(tw, "\n%s\n", g.Category.Label())
		fmt.Fprintln(tw, "CODE\tDESCRIPTION\tUNIT\tQUANTITY\tWASTE\tUNIT PRICE\tPARTIAL")
		for _, r := range g.Rows {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				r.ResourceCode, r.Description, r.Unit, r.Quantity.String(), r.Waste.String(),
				core.FormatCurrency(r.UnitPrice), core.FormatCurrency(r.PartialCost))
		}
		fmt.Fprintf(tw, "\t\t\t\t\tSubtotal\t%s\n", core.FormatCurrency(g.Subtotal))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nTOTAL %s\n", core.FormatCurrency(a.Total))
	return err
}

func printBudget(w io.Writer, b core.Budget, rows []core.BudgetAnalysisUsage) error {
	fmt.Fprintf(w, "%s  %s\n", b.Code, b.Description)
	tw := newTable(w)
	fmt.Fprintln(tw, "CODE\tDESCRIPTION\tUNIT\tQUANTITY\tUNIT PRICE\tSUBTOTAL")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.AnalysisCode, r.Description, r.Unit, r.Quantity.String(),
			core.FormatCurrency(r.UnitPrice), core.FormatCurrency(r.Subtotal))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nTOTAL %s\n", core.FormatCurrency(b.Total))
	return err
}
