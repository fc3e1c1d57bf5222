// Package redistore is the Redis store adapter. Rows live in hashes, one
// per record, with a set of identifiers per table and hash-backed unique
// indexes. Conditions are evaluated client-side after the batch read, so
// the adapter supports the full filter surface but no server-side
// ordering, and it has no transaction capability: Redis offers no
// rollback, and pretending otherwise would break the engine's atomicity
// contract.
package redistore

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/weftdb/weft/schema"
	"github.com/weftdb/weft/store"
)

// keyspace layout, all under one prefix:
//
//	weft:<table>:ids        set of row identifiers
//	weft:<table>:row:<id>   hash of column -> encoded value
//	weft:<table>:seq        autoincrement counter
//	weft:<table>:uniq:<col> hash of encoded value -> id
const prefix = "weft"

// Store is a Redis-backed adapter for one schema.
type Store struct {
	rdb  *redis.Client
	meta map[string]*tableMeta
}

type tableMeta struct {
	kinds map[string]schema.Kind
	// pkCols identifies a row: one column for models, the key pair for
	// join tables.
	pkCols []string
	autoPK bool
	unique []string
}

// Open connects to the Redis instance at url (redis://...) for the given
// schema.
func Open(ctx context.Context, url string, sch *schema.Schema) (*Store, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{rdb: rdb, meta: metaFor(sch)}, nil
}

// Close releases the client.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// Capabilities implements store.Store. Filtering happens client-side, so
// every condition shape works; ordering and offsets do not.
func (s *Store) Capabilities() store.Capabilities {
	return store.Capabilities{
		Name: "redis",
		Caps: store.CapCompare | store.CapIn | store.CapContains | store.CapBoolean,
	}
}

// FetchRows implements store.Store.
func (s *Store) FetchRows(ctx context.Context, table string, cond store.Cond, columns []string, order []store.Order, limit, offset int) ([]store.Row, error) {
	tm, err := s.tableMeta(table)
	if err != nil {
		return nil, err
	}
	if len(order) > 0 || offset > 0 {
		return nil, fmt.Errorf("redistore: ordering and offsets are not supported")
	}
	rows, err := s.readAll(ctx, table, tm)
	if err != nil {
		return nil, err
	}
	out := []store.Row{}
	for _, row := range rows {
		if !store.Matches(cond, row) {
			continue
		}
		out = append(out, project(row, columns))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// WriteRow implements store.Store. Unique columns are claimed in index
// hashes before the row lands; a lost claim is a constraint violation.
func (s *Store) WriteRow(ctx context.Context, table string, values store.Row) (store.Row, error) {
	tm, err := s.tableMeta(table)
	if err != nil {
		return nil, err
	}
	row := values.Clone()

	id, err := s.rowID(ctx, table, tm, row)
	if err != nil {
		return nil, err
	}

	var claimed []string
	release := func() {
		for _, col := range claimed {
			s.rdb.HDel(context.WithoutCancel(ctx), s.uniqKey(table, col), encodeScalar(row[col]))
		}
	}
	for _, col := range tm.unique {
		v, ok := row[col]
		if !ok || isNull(v) {
			continue
		}
		okClaim, err := s.rdb.HSetNX(ctx, s.uniqKey(table, col), encodeScalar(v), id).Result()
		if err != nil {
			release()
			return nil, fmt.Errorf("claim unique %s.%s: %w", table, col, err)
		}
		if !okClaim {
			release()
			return nil, &store.ConstraintError{
				Table: table,
				Col:   col,
				Err:   fmt.Errorf("duplicate value %s", schema.Format(v)),
			}
		}
		claimed = append(claimed, col)
	}

	added, err := s.rdb.SAdd(ctx, s.idsKey(table), id).Result()
	if err != nil {
		release()
		return nil, fmt.Errorf("register row: %w", err)
	}
	if added == 0 {
		release()
		return nil, &store.ConstraintError{
			Table: table,
			Col:   strings.Join(tm.pkCols, "+"),
			Err:   fmt.Errorf("duplicate identifier %s", id),
		}
	}
	if err := s.rdb.HSet(ctx, s.rowKey(table, id), encodeRow(row)).Err(); err != nil {
		release()
		s.rdb.SRem(context.WithoutCancel(ctx), s.idsKey(table), id)
		return nil, fmt.Errorf("write row: %w", err)
	}
	return row.Clone(), nil
}

// UpdateRows implements store.Store. Updates are per-row commands, not
// atomic across the affected set; callers needing atomicity use a store
// that has it.
func (s *Store) UpdateRows(ctx context.Context, table string, cond store.Cond, values store.Row) ([]store.Row, error) {
	tm, err := s.tableMeta(table)
	if err != nil {
		return nil, err
	}
	rows, err := s.readAll(ctx, table, tm)
	if err != nil {
		return nil, err
	}
	out := []store.Row{}
	for _, row := range rows {
		if !store.Matches(cond, row) {
			continue
		}
		id, ok := identify(tm, row)
		if !ok {
			continue
		}
		// Claim the new unique values first and drop the old index entries
		// only after the row lands, so a failed write leaves no index entry
		// pointing at a row that never changed.
		var claimed []string
		release := func() {
			for _, col := range claimed {
				s.rdb.HDel(context.WithoutCancel(ctx), s.uniqKey(table, col), encodeScalar(values[col]))
			}
		}
		var stale [][2]string
		for _, col := range tm.unique {
			nv, changing := values[col]
			if !changing || schema.Equal(row[col], nv) {
				continue
			}
			if !isNull(nv) {
				okClaim, err := s.rdb.HSetNX(ctx, s.uniqKey(table, col), encodeScalar(nv), id).Result()
				if err != nil {
					release()
					return nil, fmt.Errorf("claim unique %s.%s: %w", table, col, err)
				}
				if !okClaim {
					release()
					return nil, &store.ConstraintError{
						Table: table,
						Col:   col,
						Err:   fmt.Errorf("duplicate value %s", schema.Format(nv)),
					}
				}
				claimed = append(claimed, col)
			}
			if old, had := row[col]; had && !isNull(old) {
				stale = append(stale, [2]string{col, encodeScalar(old)})
			}
		}
		for k, v := range values {
			if isNull(v) {
				s.rdb.HDel(ctx, s.rowKey(table, id), k)
				row[k] = schema.Null{}
				continue
			}
			row[k] = v
		}
		if err := s.rdb.HSet(ctx, s.rowKey(table, id), encodeRow(row)).Err(); err != nil {
			release()
			return nil, fmt.Errorf("write row: %w", err)
		}
		for _, e := range stale {
			s.rdb.HDel(ctx, s.uniqKey(table, e[0]), e[1])
		}
		out = append(out, row.Clone())
	}
	return out, nil
}

// DeleteRows implements store.Store.
func (s *Store) DeleteRows(ctx context.Context, table string, cond store.Cond) (int64, error) {
	tm, err := s.tableMeta(table)
	if err != nil {
		return 0, err
	}
	rows, err := s.readAll(ctx, table, tm)
	if err != nil {
		return 0, err
	}
	var count int64
	for _, row := range rows {
		if !store.Matches(cond, row) {
			continue
		}
		id, ok := identify(tm, row)
		if !ok {
			continue
		}
		for _, col := range tm.unique {
			if v, ok := row[col]; ok && !isNull(v) {
				s.rdb.HDel(ctx, s.uniqKey(table, col), encodeScalar(v))
			}
		}
		if err := s.rdb.Del(ctx, s.rowKey(table, id)).Err(); err != nil {
			return count, fmt.Errorf("delete row: %w", err)
		}
		if err := s.rdb.SRem(ctx, s.idsKey(table), id).Err(); err != nil {
			return count, fmt.Errorf("unregister row: %w", err)
		}
		count++
	}
	return count, nil
}

// readAll loads every row of a table: one set read, then the row hashes
// in a single pipeline round trip.
func (s *Store) readAll(ctx context.Context, table string, tm *tableMeta) ([]store.Row, error) {
	ids, err := s.rdb.SMembers(ctx, s.idsKey(table)).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	if len(ids) == 0 {
		return []store.Row{}, nil
	}
	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.rowKey(table, id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}
	rows := make([]store.Row, 0, len(ids))
	for _, cmd := range cmds {
		raw, err := cmd.Result()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", table, err)
		}
		if len(raw) == 0 {
			// id set and row hash drifted apart; skip the ghost
			continue
		}
		rows = append(rows, decodeRow(raw, tm))
	}
	return rows, nil
}

// rowID resolves the row's identifier, assigning one from the counter
// for autoincrement keys.
func (s *Store) rowID(ctx context.Context, table string, tm *tableMeta, row store.Row) (string, error) {
	if len(tm.pkCols) == 0 {
		return "", fmt.Errorf("redistore: table %q has no identifier column", table)
	}
	if id, ok := identify(tm, row); ok {
		return id, nil
	}
	if len(tm.pkCols) != 1 || !tm.autoPK {
		return "", fmt.Errorf("redistore: write to %q omits its identifier", table)
	}
	n, err := s.rdb.Incr(ctx, s.seqKey(table)).Result()
	if err != nil {
		return "", fmt.Errorf("next id: %w", err)
	}
	row[tm.pkCols[0]] = schema.Int(n)
	id, _ := identify(tm, row)
	return id, nil
}

// identify renders a row's identifier from its key columns.
func identify(tm *tableMeta, row store.Row) (string, bool) {
	parts := make([]string, len(tm.pkCols))
	for i, col := range tm.pkCols {
		v, ok := row[col]
		if !ok || isNull(v) {
			return "", false
		}
		parts[i] = encodeScalar(v)
	}
	return strings.Join(parts, "/"), true
}

func (s *Store) tableMeta(table string) (*tableMeta, error) {
	tm, ok := s.meta[table]
	if !ok {
		return nil, fmt.Errorf("redistore: unknown table %q", table)
	}
	return tm, nil
}

func (s *Store) idsKey(table string) string {
	return fmt.Sprintf("%s:%s:ids", prefix, table)
}

func (s *Store) rowKey(table, id string) string {
	return fmt.Sprintf("%s:%s:row:%s", prefix, table, id)
}

func (s *Store) seqKey(table string) string {
	return fmt.Sprintf("%s:%s:seq", prefix, table)
}

func (s *Store) uniqKey(table, col string) string {
	return fmt.Sprintf("%s:%s:uniq:%s", prefix, table, col)
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

func isNull(v schema.Value) bool {
	return v == nil || v.Kind() == schema.KindNull
}

func metaFor(sch *schema.Schema) map[string]*tableMeta {
	meta := make(map[string]*tableMeta)
	for _, m := range sch.Models() {
		tm := &tableMeta{kinds: make(map[string]schema.Kind, len(m.Fields))}
		for _, f := range m.Fields {
			tm.kinds[f.Name] = f.Type
			if f.PK {
				tm.pkCols = []string{f.Name}
				tm.autoPK = f.Generate == schema.GenAutoIncrement
			}
			if f.Unique && !f.PK {
				tm.unique = append(tm.unique, f.Name)
			}
		}
		meta[m.Table] = tm
	}
	// Join tables are identified by their key pair.
	for _, m := range sch.Models() {
		for _, rel := range m.Relations {
			if rel.Kind != schema.ManyToMany || rel.Through == "" {
				continue
			}
			if _, ok := meta[rel.Through]; ok {
				continue
			}
			srcCol, dstCol := rel.JoinColumns()
			meta[rel.Through] = &tableMeta{
				kinds: map[string]schema.Kind{
					srcCol: rel.Model.PrimaryKey().Type,
					dstCol: rel.Target.PrimaryKey().Type,
				},
				pkCols: []string{srcCol, dstCol},
			}
		}
	}
	return meta
}
