package memstore

import (
	"context"
	"fmt"

	"github.com/weftdb/weft/store"
)

// Begin implements store.Transactional with a snapshot: the transaction
// works on a deep copy of every table and swaps the copy in on commit.
// Until then the parent store keeps serving the pre-transaction state, so
// no partial effects are ever observable outside the boundary. The
// transaction holds the store's writer gate until it finishes; direct
// writes issued in the meantime block rather than land in state the swap
// would erase.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.writes.Lock()
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := make(map[string]*table, len(s.tables))
	for name, t := range s.tables {
		snap[name] = t.clone()
	}
	return &tx{parent: s, tables: snap}, nil
}

// tx is a snapshot transaction. The engine serializes operations within a
// transaction, so tx methods need no locking of their own.
type tx struct {
	parent *Store
	tables map[string]*table
	done   bool
}

// Capabilities implements store.Store.
func (x *tx) Capabilities() store.Capabilities {
	return x.parent.Capabilities()
}

// FetchRows implements store.Store against the snapshot.
func (x *tx) FetchRows(ctx context.Context, name string, cond store.Cond, columns []string, order []store.Order, limit, offset int) ([]store.Row, error) {
	if err := x.ready(ctx); err != nil {
		return nil, err
	}
	t, err := x.table(name)
	if err != nil {
		return nil, err
	}
	return fetch(t, cond, columns, order, limit, offset), nil
}

// WriteRow implements store.Store against the snapshot.
func (x *tx) WriteRow(ctx context.Context, name string, values store.Row) (store.Row, error) {
	if err := x.ready(ctx); err != nil {
		return nil, err
	}
	t, err := x.table(name)
	if err != nil {
		return nil, err
	}
	return write(t, name, values)
}

// UpdateRows implements store.Store against the snapshot.
func (x *tx) UpdateRows(ctx context.Context, name string, cond store.Cond, values store.Row) ([]store.Row, error) {
	if err := x.ready(ctx); err != nil {
		return nil, err
	}
	t, err := x.table(name)
	if err != nil {
		return nil, err
	}
	return update(t, name, cond, values)
}

// DeleteRows implements store.Store against the snapshot.
func (x *tx) DeleteRows(ctx context.Context, name string, cond store.Cond) (int64, error) {
	if err := x.ready(ctx); err != nil {
		return 0, err
	}
	t, err := x.table(name)
	if err != nil {
		return 0, err
	}
	return remove(t, cond), nil
}

// Commit swaps the snapshot in as the store's state and releases the
// writer gate.
func (x *tx) Commit() error {
	if x.done {
		return fmt.Errorf("memstore: transaction already finished")
	}
	x.parent.mu.Lock()
	x.parent.tables = x.tables
	x.parent.mu.Unlock()
	x.done = true
	x.parent.writes.Unlock()
	return nil
}

// Rollback discards the snapshot and releases the writer gate. After
// Commit it is a no-op.
func (x *tx) Rollback() error {
	if x.done {
		return nil
	}
	x.done = true
	x.parent.writes.Unlock()
	return nil
}

func (x *tx) table(name string) (*table, error) {
	t, ok := x.tables[name]
	if !ok {
		return nil, fmt.Errorf("memstore: unknown table %q", name)
	}
	return t, nil
}

func (x *tx) ready(ctx context.Context) error {
	if x.done {
		return fmt.Errorf("memstore: transaction already finished")
	}
	return ctx.Err()
}
