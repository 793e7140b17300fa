package main

import (
	"fmt"

	"presupuestos/internal/core"
	"presupuestos/internal/session"

	"github.com/spf13/cobra"
)

func newAnalysisCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "analysis",
		Aliases: []string{"analyses", "apu"},
		Short:   "Manage unit-price analyses",
	}
	cmd.AddCommand(
		newAnalysisCreateCmd(e),
		newAnalysisUpdateCmd(e),
		newAnalysisListCmd(e),
		newAnalysisShowCmd(e),
		newAnalysisDeleteCmd(e),
		newAnalysisAddResourceCmd(e),
		newAnalysisSetRowCmd(e),
		newAnalysisRemoveResourceCmd(e),
		newAnalysisDriftCmd(e),
	)
	return cmd
}

func newAnalysisCreateCmd(e *env) *cobra.Command {
	var description, unit string
	cmd := &cobra.Command{
		Use:   "create CODE",
		Short: "Create an empty analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := core.Analysis{Code: args[0], Description: description, Unit: unit}
			if err := e.app.Analyses.Create(cmd.Context(), a); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "analysis %s created\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "analysis description")
	cmd.Flags().StringVar(&unit, "unit", "", "unit of measure")
	return cmd
}

func newAnalysisUpdateCmd(e *env) *cobra.Command {
	var description, unit string
	cmd := &cobra.Command{
		Use:   "update CODE",
		Short: "Change the description or unit of an analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.app.Analyses.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("description") {
				a.Description = description
			}
			if cmd.Flags().Changed("unit") {
				a.Unit = unit
			}
			if err := e.app.Analyses.UpdateHeader(cmd.Context(), a.Code, a.Description, a.Unit); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "analysis %s updated\n", a.Code)
			return nil
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "analysis description")
	cmd.Flags().StringVar(&unit, "unit", "", "unit of measure")
	return cmd
}

func newAnalysisListCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List analyses with their stored totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows, err := e.app.Analyses.List(cmd.Context())
			if err != nil {
				return err
			}
			return printAnalyses(cmd.OutOrStdout(), rows)
		},
	}
}

func newAnalysisShowCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "show CODE",
		Short: "Show an analysis grouped by labor, equipment and material",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bd, err := e.app.Analyses.Breakdown(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printBreakdown(cmd.OutOrStdout(), bd)
		},
	}
}

func newAnalysisDeleteCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete CODE",
		Short: "Delete an analysis no budget uses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.app.Analyses.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "analysis %s deleted\n", args[0])
			return nil
		},
	}
}

func (e *env) openAnalysis(cmd *cobra.Command, code string) (*session.AnalysisSession, error) {
	s, err := session.OpenAnalysis(cmd.Context(), code, e.app.Analyses, e.app.Catalog)
	if err != nil {
		return nil, err
	}
	s.OnChange(e.traceChanges(code))
	return s, nil
}

func (e *env) commitAnalysis(cmd *cobra.Command, s *session.AnalysisSession) error {
	total, err := s.Commit(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "analysis %s total %s\n", s.Analysis().Code, core.FormatCurrency(total))
	return nil
}

func newAnalysisAddResourceCmd(e *env) *cobra.Command {
	var f cellFlags
	cmd := &cobra.Command{
		Use:   "add-resource CODE RESOURCE",
		Short: "Add a catalog resource to an analysis at its current price",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := e.openAnalysis(cmd, args[0])
			if err != nil {
				return err
			}
			i, err := s.AddResource(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			if _, err := f.apply(cmd, s, i); err != nil {
				return err
			}
			return e.commitAnalysis(cmd, s)
		},
	}
	f.register(cmd, true)
	return cmd
}

func newAnalysisSetRowCmd(e *env) *cobra.Command {
	var f cellFlags
	cmd := &cobra.Command{
		Use:   "set-row CODE RESOURCE",
		Short: "Edit the quantity, waste or price of an analysis row",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := e.openAnalysis(cmd, args[0])
			if err != nil {
				return err
			}
			i := s.Index(args[1])
			if i < 0 {
				return core.NotFound("analysis row", args[1])
			}
			n, err := f.apply(cmd, s, i)
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("%w: nothing to change, pass --quantity, --waste or --price", core.ErrInvalidValue)
			}
			return e.commitAnalysis(cmd, s)
		},
	}
	f.register(cmd, true)
	return cmd
}

func newAnalysisRemoveResourceCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-resource CODE RESOURCE",
		Short: "Remove a resource row from an analysis",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := e.openAnalysis(cmd, args[0])
			if err != nil {
				return err
			}
			i := s.Index(args[1])
			if i < 0 {
				return core.NotFound("analysis row", args[1])
			}
			if err := s.RemoveRow(i); err != nil {
				return err
			}
			return e.commitAnalysis(cmd, s)
		},
	}
}

func newAnalysisDriftCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "drift CODE",
		Short: "List budget rows priced with an older total of this analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stale, err := e.app.Budgets.StaleUsages(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "BUDGET\tSNAPSHOT\tCURRENT")
			for _, s := range stale {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Usage.BudgetCode,
					core.FormatCurrency(s.Usage.UnitPrice), core.FormatCurrency(s.CurrentTotal))
			}
			return tw.Flush()
		},
	}
}
