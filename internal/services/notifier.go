// Package services holds the catalog and composition engines. Every write
// runs as one store transaction; derived values are recomputed here before
// they reach storage.
package services

import (
	"context"
	"log/slog"

	"presupuestos/internal/amqp"
	applog "presupuestos/internal/log"

	"github.com/shopspring/decimal"
)

// Notifier announces committed row replacements. *amqp.Client satisfies it.
type Notifier interface {
	PublishCommit(ctx context.Context, msg *amqp.CommitMessage) error
}

// publishCommit runs after the transaction committed. Delivery failures are
// logged and never undo or fail the commit.
func publishCommit(ctx context.Context, n Notifier, kind amqp.CommitKind, code string, total decimal.Decimal, rows int) {
	if n == nil {
		slog.DebugContext(ctx, "No notifier configured, skipping commit message", "kind", kind, "code", code)
		return
	}
	if err := n.PublishCommit(ctx, amqp.NewCommitMessage(kind, code, total, rows)); err != nil {
		slog.ErrorContext(ctx, "Failed to publish commit message",
			applog.FieldOperation, applog.OpCommit, "kind", kind, "code", code, applog.FieldError, err)
	}
}
