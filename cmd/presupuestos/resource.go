package main

import (
	"fmt"
	"os"
	"path/filepath"

	"presupuestos/internal/core"
	applog "presupuestos/internal/log"
	"presupuestos/internal/importer"

	"github.com/spf13/cobra"
)

type resourceFlags struct {
	description string
	unit        string
	price       string
}

func (f *resourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.description, "description", "", "resource description")
	cmd.Flags().StringVar(&f.unit, "unit", "", "unit of measure")
	cmd.Flags().StringVar(&f.price, "price", "", "unit price")
}

func newResourceCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "resource",
		Aliases: []string{"resources", "recurso"},
		Short:   "Manage the resource catalog",
	}
	cmd.AddCommand(
		newResourceAddCmd(e),
		newResourceUpdateCmd(e),
		newResourceDeleteCmd(e),
		newResourceListCmd(e),
		newResourceImportCmd(e),
	)
	return cmd
}

func newResourceAddCmd(e *env) *cobra.Command {
	var f resourceFlags
	cmd := &cobra.Command{
		Use:   "add CODE",
		Short: "Add a resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			price, err := core.ParseAmount(f.price)
			if err != nil {
				return fmt.Errorf("--price: %w", err)
			}
			r := core.Resource{Code: args[0], Description: f.description, Unit: f.unit, UnitPrice: price}
			if err := e.app.Catalog.Create(cmd.Context(), r); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "resource %s added\n", r.Code)
			return nil
		},
	}
	f.register(cmd)
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

func newResourceUpdateCmd(e *env) *cobra.Command {
	var f resourceFlags
	cmd := &cobra.Command{
		Use:   "update CODE",
		Short: "Change a resource; analysis rows keep their saved price",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := e.app.Catalog.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("description") {
				r.Description = f.description
			}
			if flags.Changed("unit") {
				r.Unit = f.unit
			}
			if flags.Changed("price") {
				if r.UnitPrice, err = core.ParseAmount(f.price); err != nil {
					return fmt.Errorf("--price: %w", err)
				}
			}
			if err := e.app.Catalog.Update(cmd.Context(), r); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "resource %s updated\n", r.Code)
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func newResourceDeleteCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete CODE",
		Short: "Delete a resource no analysis uses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.app.Catalog.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "resource %s deleted\n", args[0])
			return nil
		},
	}
}

func newResourceListCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List resources by code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows, err := e.app.Catalog.List(cmd.Context())
			if err != nil {
				return err
			}
			return printResources(cmd.OutOrStdout(), rows)
		},
	}
}

func newResourceImportCmd(e *env) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Create or update resources from a .csv or .xlsx file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			parsed, err := importer.ReadResources(filepath.Base(args[0]), file)
			if err != nil {
				return err
			}
			for _, rowErr := range parsed.Errors {
				e.logger.Warn("Skipping import row", applog.FieldOperation, applog.OpImport, "file", args[0], applog.FieldError, rowErr)
			}
			if strict && len(parsed.Errors) > 0 {
				return fmt.Errorf("%d invalid rows, nothing imported: %w", len(parsed.Errors), parsed.Err())
			}

			res, err := e.app.Catalog.Import(cmd.Context(), parsed.Resources)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d created, %d updated, %d skipped\n", res.Created, res.Updated, len(parsed.Errors))
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "import nothing if any row is invalid")
	return cmd
}
