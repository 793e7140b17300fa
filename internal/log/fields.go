package log

import "github.com/shopspring/decimal"

// Common field names for structured logging
const (
	FieldComponent    = "component"
	FieldOperation    = "operation"
	FieldError        = "error"
	FieldResourceCode = "resource_code"
	FieldAnalysisCode = "analysis_code"
	FieldBudgetCode   = "budget_code"
	FieldTotal        = "total"
	FieldRows         = "rows"
	FieldState        = "state"
	FieldMessageID    = "message_id"
)

// Components defines standard component names
const (
	ComponentApp    = "app"
	ComponentWorker = "worker"
)

// Operations defines standard operation names
const (
	OpCreate        = "create"
	OpUpdate        = "update"
	OpDelete        = "delete"
	OpImport        = "import"
	OpReplaceUsages = "replace_usages"
	OpCommit        = "commit"
	OpMirror        = "mirror"
	OpAudit         = "audit"
	OpMigrate       = "migrate"
	OpShutdown      = "shutdown"
	OpStartup       = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithAnalysis(code string) LogFields {
	f[FieldAnalysisCode] = code
	return f
}

func (f LogFields) WithResource(code string) LogFields {
	f[FieldResourceCode] = code
	return f
}

func (f LogFields) WithBudget(code string) LogFields {
	f[FieldBudgetCode] = code
	return f
}

// WithTotals records a committed total and its row count.
func (f LogFields) WithTotals(total decimal.Decimal, rows int) LogFields {
	f[FieldTotal] = total.StringFixed(2)
	f[FieldRows] = rows
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
