package main

import (
	"fmt"
	"os"
	"path/filepath"

	"presupuestos/internal/core"
	"presupuestos/internal/export"
	applog "presupuestos/internal/log"
	"presupuestos/internal/session"

	"github.com/spf13/cobra"
)

func newBudgetCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "budget",
		Aliases: []string{"budgets", "presupuesto"},
		Short:   "Manage project budgets",
	}
	cmd.AddCommand(
		newBudgetCreateCmd(e),
		newBudgetUpdateCmd(e),
		newBudgetListCmd(e),
		newBudgetShowCmd(e),
		newBudgetDeleteCmd(e),
		newBudgetAddAnalysisCmd(e),
		newBudgetSetRowCmd(e),
		newBudgetRemoveAnalysisCmd(e),
		newBudgetExportCmd(e),
		newBudgetMirrorCmd(e),
	)
	return cmd
}

func newBudgetCreateCmd(e *env) *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "create CODE",
		Short: "Create an empty budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.app.Budgets.Create(cmd.Context(), core.Budget{Code: args[0], Description: description}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "budget %s created\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "budget description")
	return cmd
}

func newBudgetUpdateCmd(e *env) *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "update CODE",
		Short: "Change the description of a budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.app.Budgets.UpdateHeader(cmd.Context(), args[0], description); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "budget %s updated\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "budget description")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func newBudgetListCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List budgets with their stored totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows, err := e.app.Budgets.List(cmd.Context())
			if err != nil {
				return err
			}
			return printBudgets(cmd.OutOrStdout(), rows)
		},
	}
}

func newBudgetShowCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "show CODE",
		Short: "Show a budget and its analysis rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := e.app.Budgets.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			rows, err := e.app.Budgets.Usages(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printBudget(cmd.OutOrStdout(), b, rows)
		},
	}
}

func newBudgetDeleteCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete CODE",
		Short: "Delete a budget and its rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.app.Budgets.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "budget %s deleted\n", args[0])
			return nil
		},
	}
}

func (e *env) openBudget(cmd *cobra.Command, code string) (*session.BudgetSession, error) {
	s, err := session.OpenBudget(cmd.Context(), code, e.app.Budgets, e.app.Analyses)
	if err != nil {
		return nil, err
	}
	s.OnChange(e.traceChanges(code))
	return s, nil
}

func (e *env) commitBudget(cmd *cobra.Command, s *session.BudgetSession) error {
	total, err := s.Commit(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "budget %s total %s\n", s.Budget().Code, core.FormatCurrency(total))
	return nil
}

func newBudgetAddAnalysisCmd(e *env) *cobra.Command {
	var f cellFlags
	cmd := &cobra.Command{
		Use:   "add-analysis CODE ANALYSIS",
		Short: "Add an analysis to a budget at its current total",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := e.openBudget(cmd, args[0])
			if err != nil {
				return err
			}
			i, err := s.AddAnalysis(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			if _, err := f.apply(cmd, s, i); err != nil {
				return err
			}
			return e.commitBudget(cmd, s)
		},
	}
	f.register(cmd, false)
	return cmd
}

func newBudgetSetRowCmd(e *env) *cobra.Command {
	var f cellFlags
	cmd := &cobra.Command{
		Use:   "set-row CODE ANALYSIS",
		Short: "Edit the quantity or price of a budget row",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := e.openBudget(cmd, args[0])
			if err != nil {
				return err
			}
			i := s.Index(args[1])
			if i < 0 {
				return core.NotFound("budget row", args[1])
			}
			n, err := f.apply(cmd, s, i)
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("%w: nothing to change, pass --quantity or --price", core.ErrInvalidValue)
			}
			return e.commitBudget(cmd, s)
		},
	}
	f.register(cmd, false)
	return cmd
}

func newBudgetRemoveAnalysisCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-analysis CODE ANALYSIS",
		Short: "Remove an analysis row from a budget",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := e.openBudget(cmd, args[0])
			if err != nil {
				return err
			}
			i := s.Index(args[1])
			if i < 0 {
				return core.NotFound("budget row", args[1])
			}
			if err := s.RemoveRow(i); err != nil {
				return err
			}
			return e.commitBudget(cmd, s)
		},
	}
}

func newBudgetExportCmd(e *env) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export CODE",
		Short: "Write the budget and its analyses to an .xlsx workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := export.Load(cmd.Context(), e.app.Budgets, e.app.Analyses, args[0])
			if err != nil {
				return err
			}
			content, err := export.BudgetWorkbook(data)
			if err != nil {
				return err
			}

			path := out
			if path == "" {
				path = filepath.Join(e.cfg.ExportDir, data.Budget.Code+".xlsx")
			}
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return fmt.Errorf("create export directory: %w", err)
			}
			if err := os.WriteFile(path, content, 0644); err != nil {
				return fmt.Errorf("write workbook: %w", err)
			}
			e.logger.Info("Budget exported", applog.FieldBudgetCode, data.Budget.Code, "path", path, "sheets", len(data.Breakdowns)+1)
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default EXPORT_DIR/CODE.xlsx)")
	return cmd
}

func newBudgetMirrorCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "mirror CODE",
		Short: "Write the budget to its Google Sheets tab",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := e.app.Budgets.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			rows, err := e.app.Budgets.Usages(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w, err := e.app.BudgetWriter(cmd.Context())
			if err != nil {
				return err
			}
			if err := w.WriteBudget(cmd.Context(), b, rows); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "budget %s mirrored (%d rows)\n", b.Code, len(rows))
			return nil
		},
	}
}
