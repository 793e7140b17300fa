// Package importer reads resource catalogs from csv or xlsx files.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"presupuestos/internal/core"

	"github.com/xuri/excelize/v2"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrMissingColumn     = errors.New("missing column")
	ErrNoRows            = errors.New("file has no data rows")
)

const (
	fieldCode        = "code"
	fieldDescription = "description"
	fieldUnit        = "unit"
	fieldUnitPrice   = "unit_price"
)

// headerAliases maps a normalized header to its field.
var headerAliases = map[string]string{
	"code":           fieldCode,
	"codigo":         fieldCode,
	"código":         fieldCode,
	"description":    fieldDescription,
	"descripcion":    fieldDescription,
	"descripción":    fieldDescription,
	"unit":           fieldUnit,
	"unidad":         fieldUnit,
	"unit_price":     fieldUnitPrice,
	"unit price":     fieldUnitPrice,
	"valor_unitario": fieldUnitPrice,
	"valor unitario": fieldUnitPrice,
	"precio":         fieldUnitPrice,
}

// RowError is a problem with one data row. Row is 1-based and counts the
// header line.
type RowError struct {
	Row   int
	Field string
	Err   error
}

func (e *RowError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("row %d: %v", e.Row, e.Err)
	}
	return fmt.Sprintf("row %d, %s: %v", e.Row, e.Field, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Result holds the rows that parsed cleanly and the errors of the rest.
type Result struct {
	Resources []core.Resource
	Errors    []*RowError
}

// Err joins the row errors, or returns nil when every row parsed.
func (r Result) Err() error {
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// ReadResources parses a catalog. The format is chosen by the extension of
// name. Blank lines are skipped.
func ReadResources(name string, r io.Reader) (Result, error) {
	var (
		records [][]string
		err     error
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		records, err = readCSV(r)
	case ".xlsx":
		records, err = readExcel(r)
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(name))
	}
	if err != nil {
		return Result{}, err
	}
	if len(records) < 2 {
		return Result{}, ErrNoRows
	}

	columns, err := mapHeaders(records[0])
	if err != nil {
		return Result{}, err
	}

	var res Result
	for i, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		resource, rowErr := parseRow(i+2, rec, columns)
		if rowErr != nil {
			res.Errors = append(res.Errors, rowErr)
			continue
		}
		res.Resources = append(res.Resources, resource)
	}
	return res, nil
}

func readCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return rows, nil
}

// readExcel returns the rows of the first sheet.
func readExcel(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open excel file: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("read sheet: %w", err)
	}
	return rows, nil
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.TrimPrefix(h, "\ufeff")
	return strings.TrimSpace(h)
}

// mapHeaders returns the column index of every field.
func mapHeaders(headers []string) (map[string]int, error) {
	columns := make(map[string]int, 4)
	for i, h := range headers {
		if field, ok := headerAliases[normalizeHeader(h)]; ok {
			if _, dup := columns[field]; !dup {
				columns[field] = i
			}
		}
	}
	for _, field := range []string{fieldCode, fieldUnitPrice} {
		if _, ok := columns[field]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, field)
		}
	}
	return columns, nil
}

func parseRow(line int, rec []string, columns map[string]int) (core.Resource, *RowError) {
	get := func(field string) string {
		i, ok := columns[field]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	r := core.Resource{
		Code:        get(fieldCode),
		Description: get(fieldDescription),
		Unit:        get(fieldUnit),
	}
	if r.Code == "" {
		return r, &RowError{Row: line, Field: fieldCode, Err: core.ErrEmptyCode}
	}
	price, err := core.ParseAmount(get(fieldUnitPrice))
	if err != nil {
		return r, &RowError{Row: line, Field: fieldUnitPrice, Err: err}
	}
	r.UnitPrice = price
	if err := r.Validate(); err != nil {
		return r, &RowError{Row: line, Err: err}
	}
	return r, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
