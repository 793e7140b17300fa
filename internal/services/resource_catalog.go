package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"presupuestos/internal/cache"
	"presupuestos/internal/core"
	applog "presupuestos/internal/log"
	"presupuestos/internal/store"
)

const entityResource = "resource"

// ResourceCatalog manages the flat set of priced resources.
type ResourceCatalog struct {
	uow   store.UnitOfWork
	cache cache.Cache[core.Resource]
}

// NewResourceCatalog builds a catalog. A nil cache disables lookup caching.
func NewResourceCatalog(uow store.UnitOfWork, c cache.Cache[core.Resource]) *ResourceCatalog {
	return &ResourceCatalog{uow: uow, cache: c}
}

func normalizeResource(r core.Resource) core.Resource {
	r.Code = strings.TrimSpace(r.Code)
	r.Description = strings.TrimSpace(r.Description)
	r.Unit = strings.TrimSpace(r.Unit)
	return r
}

func (c *ResourceCatalog) Create(ctx context.Context, r core.Resource) error {
	r = normalizeResource(r)
	if err := r.Validate(); err != nil {
		return core.NewOpError("create", entityResource, r.Code, err)
	}
	err := c.uow.RunInTx(ctx, func(tx store.Tx) error {
		return tx.InsertResource(ctx, r)
	})
	if err != nil {
		return core.NewOpError("create", entityResource, r.Code, err)
	}
	slog.InfoContext(ctx, "Resource created", applog.FieldOperation, applog.OpCreate, applog.FieldResourceCode, r.Code, "unit_price", r.UnitPrice.String())
	return nil
}

// Update rewrites a resource in place. Existing analysis rows keep the price
// they were saved with.
func (c *ResourceCatalog) Update(ctx context.Context, r core.Resource) error {
	r = normalizeResource(r)
	if err := r.Validate(); err != nil {
		return core.NewOpError("update", entityResource, r.Code, err)
	}
	err := c.uow.RunInTx(ctx, func(tx store.Tx) error {
		return tx.UpdateResource(ctx, r)
	})
	if err != nil {
		return core.NewOpError("update", entityResource, r.Code, err)
	}
	c.invalidate(r.Code)
	slog.InfoContext(ctx, "Resource updated", applog.FieldOperation, applog.OpUpdate, applog.FieldResourceCode, r.Code, "unit_price", r.UnitPrice.String())
	return nil
}

// Delete removes a resource that no analysis row references. The reference
// count and the delete share one transaction.
func (c *ResourceCatalog) Delete(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	err := c.uow.RunInTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetResource(ctx, code); err != nil {
			return err
		}
		n, err := tx.CountResourceUsages(ctx, code)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: used by %d analysis rows", core.ErrReferentialConflict, n)
		}
		return tx.DeleteResource(ctx, code)
	})
	if err != nil {
		return core.NewOpError("delete", entityResource, code, err)
	}
	c.invalidate(code)
	slog.InfoContext(ctx, "Resource deleted", applog.NewFields().WithOperation(applog.OpDelete).WithResource(code).ToSlice()...)
	return nil
}

func (c *ResourceCatalog) List(ctx context.Context) ([]core.Resource, error) {
	var out []core.Resource
	err := c.uow.RunInTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListResources(ctx)
		return err
	})
	if err != nil {
		return nil, core.NewOpError("list", entityResource, "", err)
	}
	return out, nil
}

// Get returns one resource, served from the lookup cache when fresh.
func (c *ResourceCatalog) Get(ctx context.Context, code string) (core.Resource, error) {
	code = strings.TrimSpace(code)
	if c.cache != nil {
		if r, ok := c.cache.Get(code); ok {
			return r, nil
		}
	}
	var r core.Resource
	err := c.uow.RunInTx(ctx, func(tx store.Tx) error {
		var err error
		r, err = tx.GetResource(ctx, code)
		return err
	})
	if err != nil {
		return core.Resource{}, core.NewOpError("get", entityResource, code, err)
	}
	if c.cache != nil {
		c.cache.Set(code, r)
	}
	return r, nil
}

// ImportResult counts what an import did.
type ImportResult struct {
	Created int
	Updated int
}

// Import upserts rows in one transaction: absent codes are created, present
// ones updated. Every row is validated before storage is touched.
func (c *ResourceCatalog) Import(ctx context.Context, rows []core.Resource) (ImportResult, error) {
	var res ImportResult
	seen := make(map[string]bool, len(rows))
	var errs []error
	for i := range rows {
		rows[i] = normalizeResource(rows[i])
		r := rows[i]
		if err := r.Validate(); err != nil {
			errs = append(errs, core.NewOpError("import", entityResource, r.Code, err))
			continue
		}
		if seen[r.Code] {
			errs = append(errs, core.NewOpError("import", entityResource, r.Code,
				fmt.Errorf("%w: code repeated in import", core.ErrDuplicateKey)))
			continue
		}
		seen[r.Code] = true
	}
	if len(errs) > 0 {
		return res, errors.Join(errs...)
	}

	err := c.uow.RunInTx(ctx, func(tx store.Tx) error {
		res = ImportResult{}
		for _, r := range rows {
			_, err := tx.GetResource(ctx, r.Code)
			switch {
			case errors.Is(err, core.ErrNotFound):
				if err := tx.InsertResource(ctx, r); err != nil {
					return core.NewOpError("import", entityResource, r.Code, err)
				}
				res.Created++
			case err != nil:
				return core.NewOpError("import", entityResource, r.Code, err)
			default:
				if err := tx.UpdateResource(ctx, r); err != nil {
					return core.NewOpError("import", entityResource, r.Code, err)
				}
				res.Updated++
			}
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, err
	}
	if c.cache != nil {
		c.cache.Purge()
	}
	slog.InfoContext(ctx, "Resources imported", applog.FieldOperation, applog.OpImport, "created", res.Created, "updated", res.Updated)
	return res, nil
}

func (c *ResourceCatalog) invalidate(code string) {
	if c.cache != nil {
		c.cache.Delete(code)
	}
}
