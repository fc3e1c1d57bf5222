// Package memstore is the in-memory store adapter: every capability, full
// transaction support, zero persistence. It backs tests and examples, and
// doubles as the reference semantics other adapters are checked against.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/weftdb/weft/schema"
	"github.com/weftdb/weft/store"
)

// TableSpec declares the constraints memstore enforces on one table.
type TableSpec struct {
	// AutoIncrement names the column assigned from a per-table counter
	// when a write omits it.
	AutoIncrement string
	// Unique lists columns no two rows may share a non-null value in.
	Unique []string
}

type table struct {
	spec   TableSpec
	rows   []store.Row
	nextID int64
}

func (t *table) clone() *table {
	c := &table{spec: t.spec, nextID: t.nextID, rows: make([]store.Row, len(t.rows))}
	for i, r := range t.rows {
		c.rows[i] = r.Clone()
	}
	return c
}

// Store is an in-memory adapter. Safe for concurrent use. Writes and
// transactions serialize through a writer gate: a write issued while a
// transaction is open blocks until that transaction finishes, so the
// commit swap can never erase an acknowledged write.
type Store struct {
	mu sync.RWMutex
	// writes is held by every write and by a transaction from Begin to
	// Commit/Rollback.
	writes sync.Mutex
	tables map[string]*table
}

// New returns an empty store with no tables. Register tables with
// CreateTable, or use ForSchema.
func New() *Store {
	return &Store{
		tables: make(map[string]*table),
	}
}

// ForSchema returns a store with one table per model, constraint specs
// derived from the schema, plus the join tables its many-to-many relations
// resolve through.
func ForSchema(sch *schema.Schema) *Store {
	s := New()
	for _, m := range sch.Models() {
		spec := TableSpec{}
		for _, f := range m.Fields {
			if f.PK && f.Generate == schema.GenAutoIncrement {
				spec.AutoIncrement = f.Name
			}
			if f.PK || f.Unique {
				spec.Unique = append(spec.Unique, f.Name)
			}
		}
		s.CreateTable(m.Table, spec)
		for _, rel := range m.Relations {
			if rel.Kind == schema.ManyToMany && rel.Through != "" {
				s.CreateTable(rel.Through, TableSpec{})
			}
		}
	}
	return s
}

// CreateTable registers a table. Re-registering an existing table is a
// no-op so ForSchema can see the same join table from both sides.
func (s *Store) CreateTable(name string, spec TableSpec) {
	s.writes.Lock()
	defer s.writes.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[name]; ok {
		return
	}
	s.tables[name] = &table{spec: spec, nextID: 1}
}

// Capabilities implements store.Store. Everything is supported.
func (s *Store) Capabilities() store.Capabilities {
	return store.Capabilities{Name: "mem", Caps: store.CapsFull}
}

// FetchRows implements store.Store.
func (s *Store) FetchRows(ctx context.Context, name string, cond store.Cond, columns []string, order []store.Order, limit, offset int) ([]store.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, err := s.table(name)
	if err != nil {
		return nil, err
	}
	return fetch(t, cond, columns, order, limit, offset), nil
}

// WriteRow implements store.Store.
func (s *Store) WriteRow(ctx context.Context, name string, values store.Row) (store.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.writes.Lock()
	defer s.writes.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table(name)
	if err != nil {
		return nil, err
	}
	return write(t, name, values)
}

// UpdateRows implements store.Store.
func (s *Store) UpdateRows(ctx context.Context, name string, cond store.Cond, values store.Row) ([]store.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.writes.Lock()
	defer s.writes.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table(name)
	if err != nil {
		return nil, err
	}
	return update(t, name, cond, values)
}

// DeleteRows implements store.Store.
func (s *Store) DeleteRows(ctx context.Context, name string, cond store.Cond) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.writes.Lock()
	defer s.writes.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table(name)
	if err != nil {
		return 0, err
	}
	return remove(t, cond), nil
}

func (s *Store) table(name string) (*table, error) {
	t, ok := s.tables[name]
	if !ok {
		return nil, fmt.Errorf("memstore: unknown table %q", name)
	}
	return t, nil
}

// fetch filters, orders and slices one table's rows. Returned rows are
// clones; callers never see the store's backing maps.
func fetch(t *table, cond store.Cond, columns []string, order []store.Order, limit, offset int) []store.Row {
	matched := []store.Row{}
	for _, r := range t.rows {
		if store.Matches(cond, r) {
			matched = append(matched, r)
		}
	}
	if len(order) > 0 {
		// Collators buffer state between comparisons, so every ordered
		// fetch gets its own; a shared one would race across queries.
		coll := collate.New(language.Und)
		sort.SliceStable(matched, func(i, j int) bool {
			return less(matched[i], matched[j], order, coll)
		})
	}
	if offset > 0 {
		if offset >= len(matched) {
			return []store.Row{}
		}
		matched = matched[offset:]
	}
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	out := make([]store.Row, len(matched))
	for i, r := range matched {
		out[i] = project(r, columns)
	}
	return out
}

func write(t *table, name string, values store.Row) (store.Row, error) {
	row := values.Clone()
	if col := t.spec.AutoIncrement; col != "" {
		if v, ok := row[col]; !ok || isNull(v) {
			row[col] = schema.Int(t.nextID)
			t.nextID++
		} else if n, isInt := v.(schema.Int); isInt && int64(n) >= t.nextID {
			t.nextID = int64(n) + 1
		}
	}
	for _, col := range t.spec.Unique {
		v, ok := row[col]
		if !ok || isNull(v) {
			continue
		}
		for _, existing := range t.rows {
			if ev, has := existing[col]; has && schema.Equal(ev, v) {
				return nil, &store.ConstraintError{
					Table: name,
					Col:   col,
					Err:   fmt.Errorf("duplicate value %s", schema.Format(v)),
				}
			}
		}
	}
	t.rows = append(t.rows, row)
	return row.Clone(), nil
}

func update(t *table, name string, cond store.Cond, values store.Row) ([]store.Row, error) {
	var hits []int
	for i, r := range t.rows {
		if store.Matches(cond, r) {
			hits = append(hits, i)
		}
	}
	// Check unique collisions before touching anything so a failed update
	// leaves the table as it was.
	for _, col := range t.spec.Unique {
		v, ok := values[col]
		if !ok || isNull(v) {
			continue
		}
		if len(hits) > 1 {
			return nil, &store.ConstraintError{
				Table: name,
				Col:   col,
				Err:   fmt.Errorf("unique column set on %d rows", len(hits)),
			}
		}
		for i, existing := range t.rows {
			if len(hits) == 1 && i == hits[0] {
				continue
			}
			if ev, has := existing[col]; has && schema.Equal(ev, v) {
				return nil, &store.ConstraintError{
					Table: name,
					Col:   col,
					Err:   fmt.Errorf("duplicate value %s", schema.Format(v)),
				}
			}
		}
	}
	out := []store.Row{}
	for _, i := range hits {
		for k, v := range values {
			t.rows[i][k] = v
		}
		out = append(out, t.rows[i].Clone())
	}
	return out, nil
}

func remove(t *table, cond store.Cond) int64 {
	kept := t.rows[:0]
	var count int64
	for _, r := range t.rows {
		if store.Matches(cond, r) {
			count++
			continue
		}
		kept = append(kept, r)
	}
	t.rows = kept
	return count
}

func project(r store.Row, columns []string) store.Row {
	if len(columns) == 0 {
		return r.Clone()
	}
	out := make(store.Row, len(columns))
	for _, c := range columns {
		if v, ok := r[c]; ok {
			out[c] = v
		}
	}
	return out
}

// less orders two rows by the order terms. Nulls sort first, strings
// through the collator, everything else through schema.Compare.
func less(a, b store.Row, order []store.Order, coll *collate.Collator) bool {
	for _, o := range order {
		av, bv := a[o.Col], b[o.Col]
		n := compareNullable(av, bv, coll)
		if n == 0 {
			continue
		}
		if o.Desc {
			return n > 0
		}
		return n < 0
	}
	return false
}

func compareNullable(a, b schema.Value, coll *collate.Collator) int {
	an, bn := isNull(a), isNull(b)
	switch {
	case an && bn:
		return 0
	case an:
		return -1
	case bn:
		return 1
	}
	if as, ok := a.(schema.String); ok {
		if bs, ok := b.(schema.String); ok {
			return coll.CompareString(string(as), string(bs))
		}
	}
	if n, ok := schema.Compare(a, b); ok {
		return n
	}
	// booleans: false before true
	if ab, ok := a.(schema.Bool); ok {
		if bb, ok := b.(schema.Bool); ok {
			switch {
			case !bool(ab) && bool(bb):
				return -1
			case bool(ab) && !bool(bb):
				return 1
			}
		}
	}
	return 0
}

func isNull(v schema.Value) bool {
	return v == nil || v.Kind() == schema.KindNull
}
