// Package store defines the narrow surface the engine requires from a
// persistence adapter: fetch, write, update and delete over typed rows,
// plus a capability report. Adapters know tables, columns and conditions;
// they never see models, relations or descriptors.
package store

import (
	"context"
	"fmt"

	"github.com/weftdb/weft/schema"
)

// Row is one stored row: column name to scalar value.
type Row map[string]schema.Value

// Clone returns a copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Order is one ordering term over a column.
type Order struct {
	Col  string
	Desc bool
}

// Store is the capability surface adapters implement.
//
// The engine checks Capabilities before dispatching a condition, so an
// adapter may assume conditions it receives are within its declared
// capabilities. Implementations must be safe for concurrent use.
type Store interface {
	// FetchRows returns the rows of table matching cond, projected to
	// columns (nil means every column), ordered by order and sliced by
	// limit and offset (zero limit means no cap). The result is never
	// nil; no matches is an empty slice.
	FetchRows(ctx context.Context, table string, cond Cond, columns []string, order []Order, limit, offset int) ([]Row, error)

	// WriteRow inserts values as a new row and returns the row as stored,
	// including store-assigned columns. A violated storage constraint is
	// reported as a *ConstraintError.
	WriteRow(ctx context.Context, table string, values Row) (Row, error)

	// UpdateRows applies values to every row matching cond and returns
	// the updated rows. Matching nothing is a success with an empty
	// result.
	UpdateRows(ctx context.Context, table string, cond Cond, values Row) ([]Row, error)

	// DeleteRows removes every row matching cond and returns how many
	// went away. Matching nothing is a success with count zero.
	DeleteRows(ctx context.Context, table string, cond Cond) (int64, error)

	// Capabilities reports what this store can evaluate.
	Capabilities() Capabilities
}

// Transactional is implemented by stores that can scope operations to an
// atomic unit. Stores without it simply do not support transactions; the
// engine surfaces that as an unsupported operation, not a panic.
type Transactional interface {
	// Begin opens a transaction. The returned Tx sees and buffers writes
	// isolated from the parent store until Commit.
	Begin(ctx context.Context) (Tx, error)
}

// Tx is a transaction: the full store surface plus an outcome. Rollback
// after Commit is a no-op, so `defer tx.Rollback()` is always safe.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// ConstraintError reports a write the store's own constraint enforcement
// rejected. Col names the violated column when the store can tell.
type ConstraintError struct {
	Table string
	Col   string
	Err   error
}

// Error implements the error interface.
func (e *ConstraintError) Error() string {
	if e.Col != "" {
		return fmt.Sprintf("constraint violated on %s.%s: %v", e.Table, e.Col, e.Err)
	}
	return fmt.Sprintf("constraint violated on %s: %v", e.Table, e.Err)
}

// Unwrap returns the underlying driver error.
func (e *ConstraintError) Unwrap() error { return e.Err }
