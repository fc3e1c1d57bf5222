package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weftdb/weft/store"
)

// Transaction runs fn against an engine whose store is one transaction.
// Either fn returns nil and every write commits, or fn fails (or panics)
// and none of its writes are observable afterward. Operations inside
// execute in submission order on the one transaction, so a read after a
// write sees it. Transactions do not nest.
//
// Stores that cannot scope work atomically do not implement
// store.Transactional; asking them for a transaction is an unsupported
// operation, not a silent non-transaction.
func (e *Engine) Transaction(ctx context.Context, fn func(tx *Engine) error) error {
	if e.inTx {
		return ErrNestedTransaction
	}
	txStore, ok := e.store.(store.Transactional)
	if !ok {
		return &UnsupportedOperationError{Store: e.store.Capabilities().Name, Op: "transactions"}
	}
	if err := ready(ctx); err != nil {
		return err
	}

	tx, err := txStore.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	slog.Debug("transaction begun", "store", e.store.Capabilities().Name)

	txEngine := &Engine{
		schema:   e.schema,
		store:    tx,
		maxDepth: e.maxDepth,
		clock:    e.clock,
		idGen:    e.idGen,
		inTx:     true,
	}

	// Rollback after Commit is a no-op, so the deferred call covers the
	// error path and panics without double-finishing a committed tx.
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				slog.Error("transaction rollback failed", "error", rbErr)
			} else {
				slog.Debug("transaction rolled back")
			}
		}
	}()

	if err := fn(txEngine); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	slog.Debug("transaction committed")
	return nil
}
