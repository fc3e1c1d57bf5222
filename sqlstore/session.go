package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/weftdb/weft/internal/sqlgen"
	"github.com/weftdb/weft/schema"
	"github.com/weftdb/weft/store"
)

// querier is the slice of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// session runs the store operations over either a DB or a transaction.
type session struct {
	q    querier
	meta map[string]*tableMeta
}

// sortedKinds lists a table's columns in sorted order so a projection of
// "everything" always compiles to the same SELECT.
func sortedKinds(tm *tableMeta) []string {
	cols := make([]string, 0, len(tm.kinds))
	for c := range tm.kinds {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

func (s *session) tableMeta(table string) (*tableMeta, error) {
	tm, ok := s.meta[table]
	if !ok {
		return nil, fmt.Errorf("sqlstore: unknown table %q", table)
	}
	return tm, nil
}

func (s *session) fetchRows(ctx context.Context, table string, cond store.Cond, columns []string, order []store.Order, limit, offset int) ([]store.Row, error) {
	tm, err := s.tableMeta(table)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		columns = sortedKinds(tm)
	}
	text, params, err := sqlgen.Select(sqlgen.SQLite, table, columns, cond, order, limit, offset)
	if err != nil {
		return nil, err
	}
	rows, err := s.q.QueryContext(ctx, text, encodeAll(params)...)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", table, err)
	}
	defer rows.Close()
	return scanRows(rows, columns, tm)
}

func (s *session) writeRow(ctx context.Context, table string, values store.Row) (store.Row, error) {
	tm, err := s.tableMeta(table)
	if err != nil {
		return nil, err
	}
	text, params := sqlgen.Insert(sqlgen.SQLite, table, values)
	res, err := s.q.ExecContext(ctx, text, encodeAll(params)...)
	if err != nil {
		return nil, mapConstraint(table, err)
	}

	// Refetch the stored row so store-assigned columns come back.
	if tm.pk == "" {
		return values.Clone(), nil
	}
	key, ok := values[tm.pk]
	if !ok || key.Kind() == schema.KindNull {
		if !tm.autoPK {
			return values.Clone(), nil
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("last insert id: %w", err)
		}
		key = schema.Int(id)
	}
	fetched, err := s.fetchRows(ctx, table,
		store.Cmp{Col: tm.pk, Op: store.OpEq, Val: key}, nil, nil, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(fetched) == 0 {
		return nil, fmt.Errorf("sqlstore: written row %s=%s not found", tm.pk, schema.Format(key))
	}
	return fetched[0], nil
}

func (s *session) updateRows(ctx context.Context, table string, cond store.Cond, values store.Row) ([]store.Row, error) {
	tm, err := s.tableMeta(table)
	if err != nil {
		return nil, err
	}
	if tm.pk == "" {
		return nil, fmt.Errorf("sqlstore: table %q has no key to update through", table)
	}

	// Pin the affected set by key first: the update may change the very
	// columns the condition matched on, and the caller gets back exactly
	// the rows that matched before the write.
	matched, err := s.fetchRows(ctx, table, cond, []string{tm.pk}, nil, 0, 0)
	if err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		return []store.Row{}, nil
	}
	keys := make([]schema.Value, len(matched))
	for i, r := range matched {
		keys[i] = r[tm.pk]
	}
	keyCond := store.In{Col: tm.pk, Vals: keys}

	text, params, err := sqlgen.Update(sqlgen.SQLite, table, values, keyCond)
	if err != nil {
		return nil, err
	}
	if _, err := s.q.ExecContext(ctx, text, encodeAll(params)...); err != nil {
		return nil, mapConstraint(table, err)
	}
	return s.fetchRows(ctx, table, keyCond, nil, []store.Order{{Col: tm.pk}}, 0, 0)
}

func (s *session) deleteRows(ctx context.Context, table string, cond store.Cond) (int64, error) {
	if _, err := s.tableMeta(table); err != nil {
		return 0, err
	}
	text, params, err := sqlgen.Delete(sqlgen.SQLite, table, cond)
	if err != nil {
		return 0, err
	}
	res, err := s.q.ExecContext(ctx, text, encodeAll(params)...)
	if err != nil {
		return 0, mapConstraint(table, err)
	}
	return res.RowsAffected()
}

// encode converts a schema value into a driver argument. Times travel as
// RFC 3339 text so they survive SQLite's typeless storage unambiguously.
func encode(v schema.Value) any {
	switch v := v.(type) {
	case nil, schema.Null:
		return nil
	case schema.Int:
		return int64(v)
	case schema.Float:
		return float64(v)
	case schema.String:
		return string(v)
	case schema.Bool:
		return bool(v)
	case schema.Time:
		return v.Time().UTC().Format(time.RFC3339Nano)
	default:
		return nil
	}
}

func encodeAll(params []schema.Value) []any {
	args := make([]any, len(params))
	for i, p := range params {
		args[i] = encode(p)
	}
	return args
}

// decode converts a driver value back into schema space using the
// column's declared kind. A stored value that cannot mean its declared
// kind decodes as what it is; the engine reports the mismatch.
func decode(raw any, want schema.Kind) schema.Value {
	switch v := raw.(type) {
	case nil:
		return schema.Null{}
	case int64:
		switch want {
		case schema.KindBool:
			return schema.Bool(v != 0)
		case schema.KindFloat:
			return schema.Float(v)
		default:
			return schema.Int(v)
		}
	case float64:
		return schema.Float(v)
	case bool:
		return schema.Bool(v)
	case time.Time:
		return schema.Time(v)
	case string:
		return decodeText(v, want)
	case []byte:
		return decodeText(string(v), want)
	default:
		return schema.String(fmt.Sprintf("%v", v))
	}
}

func decodeText(s string, want schema.Kind) schema.Value {
	if want == schema.KindTime {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return schema.Time(t)
		}
	}
	return schema.String(s)
}

func scanRows(rows *sql.Rows, columns []string, tm *tableMeta) ([]store.Row, error) {
	out := []store.Row{}
	raw := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row := make(store.Row, len(columns))
		for i, col := range columns {
			row[col] = decode(raw[i], tm.kinds[col])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate: %w", err)
	}
	return out, nil
}

// mapConstraint converts the driver's constraint failures into the
// store's typed form, recovering the column from messages like
// "UNIQUE constraint failed: user.email".
func mapConstraint(table string, err error) error {
	var serr sqlite3.Error
	if !errors.As(err, &serr) || serr.Code != sqlite3.ErrConstraint {
		return err
	}
	col := ""
	msg := serr.Error()
	if i := strings.LastIndex(msg, ": "); i >= 0 {
		site := msg[i+2:]
		if j := strings.IndexByte(site, '.'); j >= 0 {
			col = site[j+1:]
		}
	}
	return &store.ConstraintError{Table: table, Col: col, Err: err}
}
