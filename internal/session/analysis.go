package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"presupuestos/internal/core"

	"github.com/shopspring/decimal"
)

// AnalysisStore loads and commits analysis rows.
type AnalysisStore interface {
	Get(ctx context.Context, code string) (core.Analysis, error)
	Usages(ctx context.Context, code string) ([]core.AnalysisResourceUsage, error)
	ReplaceUsages(ctx context.Context, code string, rows []core.AnalysisResourceUsage) (decimal.Decimal, error)
}

// ResourceLookup resolves catalog resources for new rows.
type ResourceLookup interface {
	Get(ctx context.Context, code string) (core.Resource, error)
}

// AnalysisSession edits the resource rows of one analysis.
type AnalysisSession struct {
	base
	store     AnalysisStore
	resources ResourceLookup
	header    core.Analysis
	rows      []core.AnalysisResourceUsage
}

// OpenAnalysis loads the persisted rows of code.
func OpenAnalysis(ctx context.Context, code string, analyses AnalysisStore, resources ResourceLookup) (*AnalysisSession, error) {
	s := &AnalysisSession{store: analyses, resources: resources, header: core.Analysis{Code: code}}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *AnalysisSession) load(ctx context.Context) error {
	header, err := s.store.Get(ctx, s.header.Code)
	if err != nil {
		return err
	}
	rows, err := s.store.Usages(ctx, s.header.Code)
	if err != nil {
		return err
	}
	s.header, s.rows, s.state = header, rows, Loaded
	return nil
}

// Analysis returns the header as last loaded from storage.
func (s *AnalysisSession) Analysis() core.Analysis { return s.header }

func (s *AnalysisSession) Rows() []core.AnalysisResourceUsage { return slices.Clone(s.rows) }

// Total previews the analysis total from the in-memory rows.
func (s *AnalysisSession) Total() decimal.Decimal { return core.SumPartialCosts(s.rows) }

// Index returns the position of the row for resourceCode, or -1.
func (s *AnalysisSession) Index(resourceCode string) int {
	return slices.IndexFunc(s.rows, func(u core.AnalysisResourceUsage) bool {
		return u.ResourceCode == resourceCode
	})
}

// AddResource appends a row for a catalog resource, snapshotting its
// current price. Quantity and waste start at zero.
func (s *AnalysisSession) AddResource(ctx context.Context, resourceCode string) (int, error) {
	r, err := s.resources.Get(ctx, resourceCode)
	if err != nil {
		return -1, err
	}
	return s.AddRow(core.AnalysisResourceUsage{
		ResourceCode: r.Code,
		Description:  r.Description,
		Unit:         r.Unit,
		UnitPrice:    r.UnitPrice,
	})
}

// AddRow appends a manually entered row.
func (s *AnalysisSession) AddRow(row core.AnalysisResourceUsage) (int, error) {
	row.AnalysisCode = s.header.Code
	if err := row.Validate(); err != nil {
		return -1, err
	}
	if s.Index(row.ResourceCode) >= 0 {
		return -1, fmt.Errorf("%w: resource %q already in analysis %q", core.ErrDuplicateKey, row.ResourceCode, s.header.Code)
	}
	row, err := row.Recompute()
	if err != nil {
		return -1, err
	}
	s.rows = append(s.rows, row)
	s.state = Editing
	i := len(s.rows) - 1
	s.notify(Change{Kind: RowAdded, Row: i, Derived: row.PartialCost, Total: s.Total()})
	return i, nil
}

// EditCell sets one numeric cell from user text and recomputes only that
// row's partial cost. Malformed text counts as zero; a negative value is
// rejected and leaves the row unchanged.
func (s *AnalysisSession) EditCell(i int, col Column, text string) error {
	if err := checkRow(i, len(s.rows)); err != nil {
		return err
	}
	v, err := parseCell(text)
	if err != nil {
		return err
	}
	row := s.rows[i]
	switch col {
	case ColQuantity:
		row.Quantity = v
	case ColWaste:
		row.Waste = v
	case ColUnitPrice:
		row.UnitPrice = v
	default:
		return fmt.Errorf("%w: column %d is not editable", core.ErrInvalidValue, col)
	}
	row, err = row.Recompute()
	if err != nil {
		return err
	}
	s.rows[i] = row
	s.state = Editing
	s.notify(Change{Kind: RowEdited, Row: i, Derived: row.PartialCost, Total: s.Total()})
	return nil
}

func (s *AnalysisSession) RemoveRow(i int) error {
	if err := checkRow(i, len(s.rows)); err != nil {
		return err
	}
	s.rows = slices.Delete(s.rows, i, i+1)
	s.state = Editing
	s.notify(Change{Kind: RowRemoved, Row: i, Total: s.Total()})
	return nil
}

// Commit replaces the persisted rows with the in-memory ones in one
// transaction. On failure the session stays in Editing with its rows intact.
func (s *AnalysisSession) Commit(ctx context.Context) (decimal.Decimal, error) {
	s.state = Committing
	total, err := s.store.ReplaceUsages(ctx, s.header.Code, slices.Clone(s.rows))
	if err != nil {
		s.state = Editing
		s.notify(Change{Kind: CommitFailed, Row: -1, Total: s.Total()})
		return decimal.Zero, err
	}
	if err := s.load(ctx); err != nil {
		// Rows are committed; keep the in-memory copy that produced them.
		slog.WarnContext(ctx, "Reload after commit failed", "analysis_code", s.header.Code, "error", err)
		s.header.Total = total
		s.state = Loaded
	}
	s.notify(Change{Kind: Committed, Row: -1, Total: total})
	return total, nil
}

// Discard drops every uncommitted edit by reloading from storage.
func (s *AnalysisSession) Discard(ctx context.Context) error {
	if err := s.load(ctx); err != nil {
		return err
	}
	s.notify(Change{Kind: Reloaded, Row: -1, Total: s.Total()})
	return nil
}
