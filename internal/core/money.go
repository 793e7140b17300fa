// Package core provides the budgeting domain: entities, derived row values
// and the error taxonomy shared by every layer.
//
// This file contains the monetary arithmetic and the two numeric parsers:
// a strict one for formal create/validate calls and a lenient one for
// interactive cell edits.
package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// PartialCost computes quantity * (1 + waste) * unitPrice at full precision.
//
// Rounding is left to the presentation layer (see Currency) so that summing
// many rows does not accumulate rounding error.
func PartialCost(quantity, waste, unitPrice decimal.Decimal) (decimal.Decimal, error) {
	if err := nonNegative("quantity", quantity); err != nil {
		return decimal.Zero, err
	}
	if err := nonNegative("waste", waste); err != nil {
		return decimal.Zero, err
	}
	if err := nonNegative("unit price", unitPrice); err != nil {
		return decimal.Zero, err
	}
	return quantity.Mul(one.Add(waste)).Mul(unitPrice), nil
}

// Subtotal computes quantity * unitPrice for a budget row.
func Subtotal(quantity, unitPrice decimal.Decimal) (decimal.Decimal, error) {
	if err := nonNegative("quantity", quantity); err != nil {
		return decimal.Zero, err
	}
	if err := nonNegative("unit price", unitPrice); err != nil {
		return decimal.Zero, err
	}
	return quantity.Mul(unitPrice), nil
}

// SumPartialCosts returns the analysis total for the given rows.
func SumPartialCosts(rows []AnalysisResourceUsage) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(r.PartialCost)
	}
	return total
}

// SumSubtotals returns the budget total for the given rows.
func SumSubtotals(rows []BudgetAnalysisUsage) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(r.Subtotal)
	}
	return total
}

// Currency rounds a value to 2 decimal places for display.
func Currency(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// FormatCurrency renders a value with exactly 2 decimal places.
func FormatCurrency(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// ParseAmount parses a non-negative decimal for formal create/validate calls.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Empty,
// malformed and negative input fails with ErrInvalidValue.
//
// Examples:
//
//	ParseAmount("8949")   -> 8949, nil
//	ParseAmount("0,05")   -> 0.05, nil
//	ParseAmount("-1")     -> 0, ErrInvalidValue
//	ParseAmount("abc")    -> 0, ErrInvalidValue
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := parseDecimal(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", ErrInvalidValue, s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %q must not be negative", ErrInvalidValue, s)
	}
	return d, nil
}

// ParseCell parses the text of an interactively edited cell.
//
// Malformed or empty text degrades to zero instead of failing, so one bad
// cell never blocks the rest of an edit. A well-formed negative number is
// returned unchanged; the caller decides whether to reject it.
func ParseCell(s string) decimal.Decimal {
	d, err := parseDecimal(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty")
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	if strings.Count(s, ".") > 1 {
		return decimal.Zero, fmt.Errorf("multiple separators")
	}
	return decimal.NewFromString(s)
}
