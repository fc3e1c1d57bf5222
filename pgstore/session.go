package pgstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/weftdb/weft/internal/sqlgen"
	"github.com/weftdb/weft/schema"
	"github.com/weftdb/weft/store"
)

// querier is the slice of pgx shared by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type session struct {
	q    querier
	meta map[string]*tableMeta
}

func (s *session) tableMeta(table string) (*tableMeta, error) {
	tm, ok := s.meta[table]
	if !ok {
		return nil, fmt.Errorf("pgstore: unknown table %q", table)
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
	text, params, err := sqlgen.Select(sqlgen.Postgres, table, columns, cond, order, limit, offset)
	if err != nil {
		return nil, err
	}
	rows, err := s.q.Query(ctx, text, encodeAll(params)...)
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
	columns := sortedKinds(tm)
	text, params := sqlgen.Insert(sqlgen.Postgres, table, values)
	text += " RETURNING " + quotedList(columns)
	rows, err := s.q.Query(ctx, text, encodeAll(params)...)
	if err != nil {
		return nil, mapConstraint(table, err)
	}
	defer rows.Close()
	stored, err := scanRows(rows, columns, tm)
	if err != nil {
		return nil, mapConstraint(table, err)
	}
	if len(stored) == 0 {
		return nil, fmt.Errorf("pgstore: insert into %s returned no row", table)
	}
	return stored[0], nil
}

func (s *session) updateRows(ctx context.Context, table string, cond store.Cond, values store.Row) ([]store.Row, error) {
	tm, err := s.tableMeta(table)
	if err != nil {
		return nil, err
	}
	columns := sortedKinds(tm)
	text, params, err := sqlgen.Update(sqlgen.Postgres, table, values, cond)
	if err != nil {
		return nil, err
	}
	text += " RETURNING " + quotedList(columns)
	rows, err := s.q.Query(ctx, text, encodeAll(params)...)
	if err != nil {
		return nil, mapConstraint(table, err)
	}
	defer rows.Close()
	updated, err := scanRows(rows, columns, tm)
	if err != nil {
		return nil, mapConstraint(table, err)
	}
	if tm.pk != "" {
		sort.SliceStable(updated, func(i, j int) bool {
			n, _ := schema.Compare(updated[i][tm.pk], updated[j][tm.pk])
			return n < 0
		})
	}
	return updated, nil
}

func (s *session) deleteRows(ctx context.Context, table string, cond store.Cond) (int64, error) {
	if _, err := s.tableMeta(table); err != nil {
		return 0, err
	}
	text, params, err := sqlgen.Delete(sqlgen.Postgres, table, cond)
	if err != nil {
		return 0, err
	}
	tag, err := s.q.Exec(ctx, text, encodeAll(params)...)
	if err != nil {
		return 0, mapConstraint(table, err)
	}
	return tag.RowsAffected(), nil
}

func sortedKinds(tm *tableMeta) []string {
	cols := make([]string, 0, len(tm.kinds))
	for c := range tm.kinds {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

func quotedList(columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = sqlgen.Postgres.Quote(c)
	}
	return strings.Join(quoted, ", ")
}

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
		return v.Time()
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

// decode converts a pgx value into schema space. Postgres columns are
// properly typed, so the declared kind only arbitrates integer widths.
func decode(raw any, want schema.Kind) schema.Value {
	switch v := raw.(type) {
	case nil:
		return schema.Null{}
	case int64:
		if want == schema.KindFloat {
			return schema.Float(v)
		}
		return schema.Int(v)
	case int32:
		return schema.Int(v)
	case int16:
		return schema.Int(v)
	case float64:
		return schema.Float(v)
	case float32:
		return schema.Float(v)
	case bool:
		return schema.Bool(v)
	case string:
		return schema.String(v)
	case []byte:
		return schema.String(string(v))
	case time.Time:
		return schema.Time(v)
	default:
		return schema.String(fmt.Sprintf("%v", v))
	}
}

func scanRows(rows pgx.Rows, columns []string, tm *tableMeta) ([]store.Row, error) {
	out := []store.Row{}
	for rows.Next() {
		raw, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if len(raw) != len(columns) {
			return nil, fmt.Errorf("scan: %d values for %d columns", len(raw), len(columns))
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

// mapConstraint converts Postgres constraint failures into the store's
// typed form. The violated column is recovered from the constraint name,
// which for generated DDL is table_column_key.
func mapConstraint(table string, err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505", "23503", "23502":
	default:
		return err
	}
	col := pgErr.ColumnName
	if col == "" && pgErr.ConstraintName != "" {
		name := strings.TrimSuffix(pgErr.ConstraintName, "_key")
		name = strings.TrimSuffix(name, "_fkey")
		col = strings.TrimPrefix(name, table+"_")
	}
	return &store.ConstraintError{Table: table, Col: col, Err: err}
}
