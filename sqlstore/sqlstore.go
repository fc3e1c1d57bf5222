// Package sqlstore is the SQLite store adapter: database/sql over
// mattn/go-sqlite3, WAL journaling, a single writer connection, and DDL
// generation from the schema. It reports the full capability set.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/weftdb/weft/schema"
	"github.com/weftdb/weft/store"
)

// Store is a SQLite-backed adapter for one schema.
type Store struct {
	db   *sql.DB
	meta map[string]*tableMeta
}

// tableMeta is what the adapter must know about a table to scan its rows
// and refetch its writes: declared column kinds and the primary key.
type tableMeta struct {
	kinds  map[string]schema.Kind
	pk     string // empty for join tables
	autoPK bool
}

// Open creates or opens a SQLite database at path for the given schema.
//
// SQLite allows one writer at a time; the pool is pinned to a single
// connection so concurrent writes queue instead of failing with
// SQLITE_BUSY. WAL mode keeps readers unblocked meanwhile.
func Open(path string, sch *schema.Schema) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}
	return &Store{db: db, meta: metaFor(sch)}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Migrate applies the schema's DDL. Idempotent: every statement is
// CREATE TABLE IF NOT EXISTS.
func (s *Store) Migrate(ctx context.Context, sch *schema.Schema) error {
	for _, stmt := range DDL(sch) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply ddl: %w", err)
		}
	}
	return nil
}

// Capabilities implements store.Store.
func (s *Store) Capabilities() store.Capabilities {
	return store.Capabilities{Name: "sqlite", Caps: store.CapsFull}
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
	return &session{q: s.db, meta: s.meta}
}

// metaFor derives per-table scan metadata from the schema, including the
// join tables many-to-many relations resolve through.
func metaFor(sch *schema.Schema) map[string]*tableMeta {
	meta := make(map[string]*tableMeta)
	for _, m := range sch.Models() {
		tm := &tableMeta{kinds: make(map[string]schema.Kind, len(m.Fields))}
		for _, f := range m.Fields {
			tm.kinds[f.Name] = f.Type
			if f.PK {
				tm.pk = f.Name
				tm.autoPK = f.Generate == schema.GenAutoIncrement
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
