package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/weftdb/weft/store"
)

// Begin implements store.Transactional over a database/sql transaction.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &tx{tx: sqlTx, session: session{q: sqlTx, meta: s.meta}}, nil
}

type tx struct {
	tx *sql.Tx
	session
	done bool
}

// Capabilities implements store.Store.
func (x *tx) Capabilities() store.Capabilities {
	return store.Capabilities{Name: "sqlite", Caps: store.CapsFull}
}

// FetchRows implements store.Store within the transaction.
func (x *tx) FetchRows(ctx context.Context, table string, cond store.Cond, columns []string, order []store.Order, limit, offset int) ([]store.Row, error) {
	return x.fetchRows(ctx, table, cond, columns, order, limit, offset)
}

// WriteRow implements store.Store within the transaction.
func (x *tx) WriteRow(ctx context.Context, table string, values store.Row) (store.Row, error) {
	return x.writeRow(ctx, table, values)
}

// UpdateRows implements store.Store within the transaction.
func (x *tx) UpdateRows(ctx context.Context, table string, cond store.Cond, values store.Row) ([]store.Row, error) {
	return x.updateRows(ctx, table, cond, values)
}

// DeleteRows implements store.Store within the transaction.
func (x *tx) DeleteRows(ctx context.Context, table string, cond store.Cond) (int64, error) {
	return x.deleteRows(ctx, table, cond)
}

// Commit commits the transaction.
func (x *tx) Commit() error {
	if x.done {
		return fmt.Errorf("sqlstore: transaction already finished")
	}
	x.done = true
	return x.tx.Commit()
}

// Rollback aborts the transaction. After Commit it is a no-op.
func (x *tx) Rollback() error {
	if x.done {
		return nil
	}
	x.done = true
	return x.tx.Rollback()
}
