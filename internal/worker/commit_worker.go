package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"presupuestos/internal/amqp"
	"presupuestos/internal/core"
	applog "presupuestos/internal/log"
	"presupuestos/internal/services"
	"presupuestos/internal/sheets"
)

// BudgetReader is the read side of the budget service used by the worker.
type BudgetReader interface {
	List(ctx context.Context) ([]core.Budget, error)
	Get(ctx context.Context, code string) (core.Budget, error)
	Usages(ctx context.Context, code string) ([]core.BudgetAnalysisUsage, error)
	StaleUsages(ctx context.Context, analysisCode string) ([]services.StaleUsage, error)
}

// CommitWorker reacts to commit messages: budget commits are mirrored to a
// spreadsheet, analysis commits trigger a drift audit of the budgets that
// priced the analysis. It never writes to the store.
type CommitWorker struct {
	budgets BudgetReader
	writer  sheets.BudgetWriter
}

// NewCommitWorker builds a worker. A nil writer disables mirroring.
func NewCommitWorker(budgets BudgetReader, writer sheets.BudgetWriter) *CommitWorker {
	return &CommitWorker{budgets: budgets, writer: writer}
}

// Handle processes one message. A returned error requeues it.
func (w *CommitWorker) Handle(ctx context.Context, msg *amqp.CommitMessage) error {
	slog.InfoContext(ctx, "Processing commit message",
		applog.FieldMessageID, msg.ID,
		"kind", msg.Kind,
		"code", msg.Code)

	switch msg.Kind {
	case amqp.KindBudget:
		return w.mirrorBudget(ctx, msg)
	case amqp.KindAnalysis:
		return w.auditAnalysis(ctx, msg)
	default:
		slog.WarnContext(ctx, "Ignoring commit message of unknown kind", applog.FieldMessageID, msg.ID, "kind", msg.Kind)
		return nil
	}
}

func (w *CommitWorker) mirrorBudget(ctx context.Context, msg *amqp.CommitMessage) error {
	if w.writer == nil {
		slog.WarnContext(ctx, "No budget writer configured, skipping mirror", applog.FieldBudgetCode, msg.Code)
		return nil
	}

	b, err := w.budgets.Get(ctx, msg.Code)
	if errors.Is(err, core.ErrNotFound) {
		slog.WarnContext(ctx, "Budget deleted before mirror, skipping", applog.FieldBudgetCode, msg.Code)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load budget: %w", err)
	}
	rows, err := w.budgets.Usages(ctx, msg.Code)
	if err != nil {
		return fmt.Errorf("load budget rows: %w", err)
	}
	if !b.Total.Equal(msg.Total) {
		// A later commit superseded this one; mirror the current state anyway.
		slog.DebugContext(ctx, "Budget changed since message was published",
			applog.FieldBudgetCode, b.Code, "message_total", msg.Total.String(), applog.FieldTotal, b.Total.String())
	}

	if err := w.writer.WriteBudget(ctx, b, rows); err != nil {
		return fmt.Errorf("mirror budget %s: %w", b.Code, err)
	}
	slog.InfoContext(ctx, "Budget mirrored",
		applog.NewFields().WithOperation(applog.OpMirror).WithBudget(b.Code).WithTotals(b.Total, len(rows)).ToSlice()...)
	return nil
}

// auditAnalysis logs every budget row whose price snapshot differs from the
// analysis total just committed. Snapshots are left as they are.
func (w *CommitWorker) auditAnalysis(ctx context.Context, msg *amqp.CommitMessage) error {
	stale, err := w.budgets.StaleUsages(ctx, msg.Code)
	if errors.Is(err, core.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("audit analysis %s: %w", msg.Code, err)
	}
	for _, s := range stale {
		slog.WarnContext(ctx, "Budget row priced with an outdated analysis total",
			applog.FieldOperation, applog.OpAudit,
			applog.FieldBudgetCode, s.Usage.BudgetCode,
			applog.FieldAnalysisCode, s.Usage.AnalysisCode,
			"snapshot", core.FormatCurrency(s.Usage.UnitPrice),
			"current", core.FormatCurrency(s.CurrentTotal))
	}
	if len(stale) == 0 {
		slog.DebugContext(ctx, "No budget drift", applog.FieldOperation, applog.OpAudit, applog.FieldAnalysisCode, msg.Code)
	}
	return nil
}

// StartupSync mirrors every budget once, covering commits published while
// the worker was down. Failures are logged per budget and counted.
func (w *CommitWorker) StartupSync(ctx context.Context) (int, error) {
	if w.writer == nil {
		return 0, nil
	}
	budgets, err := w.budgets.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list budgets: %w", err)
	}

	failed := 0
	for _, b := range budgets {
		if err := ctx.Err(); err != nil {
			return failed, err
		}
		rows, err := w.budgets.Usages(ctx, b.Code)
		if err == nil {
			err = w.writer.WriteBudget(ctx, b, rows)
		}
		if err != nil {
			failed++
			slog.ErrorContext(ctx, "Startup mirror failed", applog.FieldBudgetCode, b.Code, applog.FieldError, err)
		}
	}
	slog.InfoContext(ctx, "Startup mirror complete", applog.FieldOperation, applog.OpStartup, "budgets", len(budgets), "failed", failed)
	return failed, nil
}
