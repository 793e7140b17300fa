package core

import "fmt"

// OpError reports a failed operation together with the offending code.
// Err is one of the taxonomy sentinels, possibly wrapped with detail.
type OpError struct {
	Op     string // create, update, delete, replace_usages, ...
	Entity string // resource, analysis, budget
	Code   string
	Err    error
}

func (e *OpError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Entity, e.Err)
	}
	return fmt.Sprintf("%s %s %q: %v", e.Op, e.Entity, e.Code, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// NewOpError wraps err with operation context. A nil err stays nil.
func NewOpError(op, entity, code string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Entity: entity, Code: code, Err: err}
}

// NotFound builds an ErrNotFound detail naming the missing entity.
func NotFound(entity, code string) error {
	return fmt.Errorf("%w: %s %q", ErrNotFound, entity, code)
}
