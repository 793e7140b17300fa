package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type (
	// Resource is a priced input (labor, equipment or material).
	Resource struct {
		Code        string
		Description string
		Unit        string
		UnitPrice   decimal.Decimal
	}

	// Analysis is a unit-price analysis. Total is the stored sum of its
	// usage rows, recomputed whenever the row set is replaced.
	Analysis struct {
		Code        string
		Description string
		Unit        string
		Total       decimal.Decimal
	}

	// AnalysisResourceUsage is one weighted resource row of an analysis.
	// UnitPrice is a snapshot of the resource price taken when the row was saved.
	AnalysisResourceUsage struct {
		AnalysisCode string
		ResourceCode string
		Description  string // display only, joined from the resource
		Unit         string
		Quantity     decimal.Decimal
		Waste        decimal.Decimal
		UnitPrice    decimal.Decimal
		PartialCost  decimal.Decimal
	}

	// Budget is a project budget. Total is the stored sum of its usage rows.
	Budget struct {
		Code        string
		Description string
		Total       decimal.Decimal
	}

	// BudgetAnalysisUsage is one weighted analysis row of a budget.
	// UnitPrice is a snapshot of the analysis total taken when the row was added.
	BudgetAnalysisUsage struct {
		BudgetCode   string
		AnalysisCode string
		Description  string
		Unit         string
		Quantity     decimal.Decimal
		UnitPrice    decimal.Decimal
		Subtotal     decimal.Decimal
	}
)

var (
	ErrInvalidValue        = errors.New("invalid value")
	ErrDuplicateKey        = errors.New("duplicate key")
	ErrNotFound            = errors.New("not found")
	ErrReferentialConflict = errors.New("referential conflict")

	ErrEmptyCode = fmt.Errorf("%w: empty code", ErrInvalidValue)
)

const maxCodeLength = 64

func validateCode(code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return ErrEmptyCode
	}
	if len(code) > maxCodeLength {
		return fmt.Errorf("%w: code too long (max %d characters)", ErrInvalidValue, maxCodeLength)
	}
	return nil
}

func nonNegative(field string, d decimal.Decimal) error {
	if d.IsNegative() {
		return fmt.Errorf("%w: %s must not be negative (got %s)", ErrInvalidValue, field, d.String())
	}
	return nil
}

func (r Resource) Validate() error {
	if err := validateCode(r.Code); err != nil {
		return err
	}
	return nonNegative("unit price", r.UnitPrice)
}

func (a Analysis) Validate() error {
	if err := validateCode(a.Code); err != nil {
		return err
	}
	return nonNegative("total", a.Total)
}

func (b Budget) Validate() error {
	if err := validateCode(b.Code); err != nil {
		return err
	}
	return nonNegative("total", b.Total)
}

func (u AnalysisResourceUsage) Validate() error {
	if err := validateCode(u.ResourceCode); err != nil {
		return err
	}
	if err := nonNegative("quantity", u.Quantity); err != nil {
		return err
	}
	if err := nonNegative("waste", u.Waste); err != nil {
		return err
	}
	return nonNegative("unit price", u.UnitPrice)
}

func (u BudgetAnalysisUsage) Validate() error {
	if err := validateCode(u.AnalysisCode); err != nil {
		return err
	}
	if err := nonNegative("quantity", u.Quantity); err != nil {
		return err
	}
	return nonNegative("unit price", u.UnitPrice)
}

// Recompute returns a copy of the row with PartialCost derived from its inputs.
func (u AnalysisResourceUsage) Recompute() (AnalysisResourceUsage, error) {
	cost, err := PartialCost(u.Quantity, u.Waste, u.UnitPrice)
	if err != nil {
		return u, err
	}
	u.PartialCost = cost
	return u, nil
}

// Recompute returns a copy of the row with Subtotal derived from its inputs.
func (u BudgetAnalysisUsage) Recompute() (BudgetAnalysisUsage, error) {
	sub, err := Subtotal(u.Quantity, u.UnitPrice)
	if err != nil {
		return u, err
	}
	u.Subtotal = sub
	return u, nil
}
