// Package pgstore is the PostgreSQL store adapter, pooled through
// jackc/pgx. It reports the full capability set and scopes transactions
// to pgx transactions.
package pgstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/weftdb/weft/schema"
	"github.com/weftdb/weft/store"
)

// Store is a PostgreSQL-backed adapter for one schema.
type Store struct {
	pool *pgxpool.Pool
	meta map[string]*tableMeta
}

type tableMeta struct {
	kinds map[string]schema.Kind
	pk    string
}

// Open connects a pool to the database at dsn for the given schema.
func Open(ctx context.Context, dsn string, sch *schema.Schema) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool, meta: metaFor(sch)}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Migrate applies the schema's DDL. Idempotent.
func (s *Store) Migrate(ctx context.Context, sch *schema.Schema) error {
	for _, stmt := range DDL(sch) {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply ddl: %w", err)
		}
	}
	return nil
}

// Capabilities implements store.Store.
func (s *Store) Capabilities() store.Capabilities {
	return store.Capabilities{Name: "postgres", Caps: store.CapsFull}
}

// FetchRows implements store.Store.
func (s *Store) FetchRows(ctx context.Context, table string, cond store.Cond, columns []string, order []store.Order, limit, offset int) ([]store.Row, error) {
	return s.session().fetchRows(ctx, table, cond, columns, order, limit, offset)
}

// WriteRow implements store.Store.
func (s *Store) WriteRow(ctx context.Context, table string, values store.Row) (store.Row, error) {
	return s.session().writeRow(ctx, table, values)
}

// UpdateRows implements store.Store.
func (s *Store) UpdateRows(ctx context.Context, table string, cond store.Cond, values store.Row) ([]store.Row, error) {
	return s.session().updateRows(ctx, table, cond, values)
}

// DeleteRows implements store.Store.
func (s *Store) DeleteRows(ctx context.Context, table string, cond store.Cond) (int64, error) {
	return s.session().deleteRows(ctx, table, cond)
}

func (s *Store) session() *session {
	return &session{q: s.pool, meta: s.meta}
}

// Begin implements store.Transactional.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	pgxTx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &tx{tx: pgxTx, session: session{q: pgxTx, meta: s.meta}}, nil
}

type tx struct {
	tx pgx.Tx
	session
	done bool
}

// Capabilities implements store.Store.
func (x *tx) Capabilities() store.Capabilities {
	return store.Capabilities{Name: "postgres", Caps: store.CapsFull}
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
		return fmt.Errorf("pgstore: transaction already finished")
	}
	x.done = true
	return x.tx.Commit(context.Background())
}

// Rollback aborts the transaction. After Commit it is a no-op.
func (x *tx) Rollback() error {
	if x.done {
		return nil
	}
	x.done = true
	return x.tx.Rollback(context.Background())
}

func metaFor(sch *schema.Schema) map[string]*tableMeta {
	meta := make(map[string]*tableMeta)
	for _, m := range sch.Models() {
		tm := &tableMeta{kinds: make(map[string]schema.Kind, len(m.Fields))}
		for _, f := range m.Fields {
			tm.kinds[f.Name] = f.Type
			if f.PK {
				tm.pk = f.Name
			}
		}
		meta[m.Table] = tm
	}
	for _, m := range sch.Models() {
		for _, rel := range m.Relations {
			if rel.Kind != schema.ManyToMany || rel.Through == "" {
				continue
			}
			if _, ok := meta[rel.Through]; ok {
				continue
			}
			srcCol, dstCol := rel.JoinColumns()
			meta[rel.Through] = &tableMeta{kinds: map[string]schema.Kind{
				srcCol: rel.Model.PrimaryKey().Type,
				dstCol: rel.Target.PrimaryKey().Type,
			}}
		}
	}
	return meta
}
