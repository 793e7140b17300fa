package main

import (
	"context"
	"io"
	"os"

	"presupuestos/internal/cli"
	"presupuestos/internal/config"
	applog "presupuestos/internal/log"

	"github.com/spf13/cobra"
)

// annotationNoBackend marks commands that manage the store themselves.
const annotationNoBackend = "no-backend"

// env is the state shared by every subcommand of one invocation.
type env struct {
	cfg    *config.Config
	logger *applog.Logger
	app    *cli.App
	logOut io.Writer
}

func (e *env) close() error {
	if e.app == nil {
		return nil
	}
	err := e.app.Close()
	e.app = nil
	return err
}

func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:           "presupuestos",
		Short:         "Construction cost engine: resources, unit-price analyses and budgets",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cli.LoadEnvFile()
			cfg, err := cli.LoadAndValidateConfig()
			if err != nil {
				return err
			}
			e.cfg = cfg
			e.logger = cli.SetupLogger(cfg, applog.ComponentApp, e.logOut)
			if cmd.Annotations[annotationNoBackend] != "" {
				return nil
			}
			app, err := cli.OpenBackend(cmd.Context(), cfg, e.logger.Logger)
			if err != nil {
				return err
			}
			e.app = app
			return nil
		},
	}

	root.AddCommand(
		newMigrateCmd(e),
		newResourceCmd(e),
		newAnalysisCmd(e),
		newBudgetCmd(e),
	)
	return root
}

// execute runs one invocation and releases the backend afterwards.
func execute(ctx context.Context, args []string) error {
	return run(ctx, args, os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, out, logOut io.Writer) error {
	e := &env{logOut: logOut}
	root := newRootCmd(e)
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(logOut)

	err := root.ExecuteContext(ctx)
	if cerr := e.close(); err == nil {
		err = cerr
	}
	return err
}
