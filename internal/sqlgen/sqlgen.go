// Package sqlgen compiles store conditions and row operations into
// parameterized SQL. Values are always parameters, never interpolated;
// the dialect decides placeholder shape and identifier quoting.
package sqlgen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/weftdb/weft/schema"
	"github.com/weftdb/weft/store"
)

// Dialect abstracts the differences between SQL targets.
type Dialect struct {
	// Placeholder renders the n-th parameter marker, 1-based.
	Placeholder func(n int) string
	// Quote renders an identifier.
	Quote func(ident string) string
	// Contains renders a case-sensitive substring test of col against the
	// parameter at marker. LIKE is not used: SQLite's LIKE folds ASCII
	// case.
	Contains func(col, marker string) string
	// OffsetNeedsLimit marks dialects whose OFFSET is only valid after a
	// LIMIT clause.
	OffsetNeedsLimit bool
}

// SQLite uses ? markers and double-quoted identifiers.
var SQLite = Dialect{
	Placeholder: func(int) string { return "?" },
	Quote:       quoteDouble,
	Contains: func(col, marker string) string {
		return fmt.Sprintf("instr(%s, %s) > 0", col, marker)
	},
	OffsetNeedsLimit: true,
}

// Postgres uses $n markers and double-quoted identifiers.
var Postgres = Dialect{
	Placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	Quote:       quoteDouble,
	Contains: func(col, marker string) string {
		return fmt.Sprintf("strpos(%s, %s) > 0", col, marker)
	},
}

func quoteDouble(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// Select builds a SELECT statement. Nil columns selects *. A zero limit
// means no cap; offset requires a limit clause on SQLite, so one is
// synthesized when needed.
func Select(d Dialect, table string, columns []string, cond store.Cond, order []store.Order, limit, offset int) (string, []schema.Value, error) {
	var b strings.Builder
	b.WriteString("SELECT ")
	if len(columns) == 0 {
		b.WriteString("*")
	} else {
		for i, c := range columns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.Quote(c))
		}
	}
	b.WriteString(" FROM ")
	b.WriteString(d.Quote(table))

	params, err := appendWhere(d, &b, cond, nil)
	if err != nil {
		return "", nil, err
	}

	if len(order) > 0 {
		b.WriteString(" ORDER BY ")
		for i, o := range order {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.Quote(o.Col))
			if o.Desc {
				b.WriteString(" DESC")
			} else {
				b.WriteString(" ASC")
			}
		}
	}
	if limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", limit)
	} else if offset > 0 && d.OffsetNeedsLimit {
		b.WriteString(" LIMIT -1")
	}
	if offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", offset)
	}
	return b.String(), params, nil
}

// Insert builds an INSERT statement. Columns are emitted in sorted order
// so the same row always compiles to the same SQL.
func Insert(d Dialect, table string, values store.Row) (string, []schema.Value) {
	cols := sortedColumns(values)
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(d.Quote(table))
	b.WriteString(" (")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.Quote(c))
	}
	b.WriteString(") VALUES (")
	params := make([]schema.Value, 0, len(cols))
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		params = append(params, values[c])
		b.WriteString(d.Placeholder(len(params)))
	}
	b.WriteString(")")
	return b.String(), params
}

// Update builds an UPDATE statement over cond.
func Update(d Dialect, table string, values store.Row, cond store.Cond) (string, []schema.Value, error) {
	cols := sortedColumns(values)
	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(d.Quote(table))
	b.WriteString(" SET ")
	params := make([]schema.Value, 0, len(cols))
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		params = append(params, values[c])
		fmt.Fprintf(&b, "%s = %s", d.Quote(c), d.Placeholder(len(params)))
	}
	params, err := appendWhere(d, &b, cond, params)
	if err != nil {
		return "", nil, err
	}
	return b.String(), params, nil
}

// Delete builds a DELETE statement over cond.
func Delete(d Dialect, table string, cond store.Cond) (string, []schema.Value, error) {
	var b strings.Builder
	b.WriteString("DELETE FROM ")
	b.WriteString(d.Quote(table))
	params, err := appendWhere(d, &b, cond, nil)
	if err != nil {
		return "", nil, err
	}
	return b.String(), params, nil
}

func appendWhere(d Dialect, b *strings.Builder, cond store.Cond, params []schema.Value) ([]schema.Value, error) {
	if cond == nil {
		return params, nil
	}
	text, params, err := compileCond(d, cond, params)
	if err != nil {
		return nil, err
	}
	b.WriteString(" WHERE ")
	b.WriteString(text)
	return params, nil
}

// compileCond renders one condition node, threading the parameter list
// through so placeholder numbering stays correct across the tree.
func compileCond(d Dialect, c store.Cond, params []schema.Value) (string, []schema.Value, error) {
	switch c := c.(type) {
	case store.Cmp:
		params = append(params, c.Val)
		return fmt.Sprintf("%s %s %s", d.Quote(c.Col), c.Op, d.Placeholder(len(params))), params, nil
	case store.In:
		if len(c.Vals) == 0 {
			// Empty membership matches nothing; render a constant false
			// rather than invalid IN () syntax.
			return "1 = 0", params, nil
		}
		var marks []string
		for _, v := range c.Vals {
			params = append(params, v)
			marks = append(marks, d.Placeholder(len(params)))
		}
		return fmt.Sprintf("%s IN (%s)", d.Quote(c.Col), strings.Join(marks, ", ")), params, nil
	case store.Contains:
		params = append(params, schema.String(c.Val))
		return d.Contains(d.Quote(c.Col), d.Placeholder(len(params))), params, nil
	case store.IsNull:
		return fmt.Sprintf("%s IS NULL", d.Quote(c.Col)), params, nil
	case store.And:
		return compileJunction(d, c.Conds, "AND", "1 = 1", params)
	case store.Or:
		return compileJunction(d, c.Conds, "OR", "1 = 0", params)
	case store.Not:
		sub, params, err := compileCond(d, c.Cond, params)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("NOT (%s)", sub), params, nil
	default:
		return "", nil, fmt.Errorf("sqlgen: unhandled condition node %T", c)
	}
}

func compileJunction(d Dialect, conds []store.Cond, op, empty string, params []schema.Value) (string, []schema.Value, error) {
	if len(conds) == 0 {
		return empty, params, nil
	}
	var parts []string
	for _, sub := range conds {
		text, next, err := compileCond(d, sub, params)
		if err != nil {
			return "", nil, err
		}
		params = next
		parts = append(parts, "("+text+")")
	}
	if len(parts) == 1 {
		return parts[0], params, nil
	}
	return strings.Join(parts, " "+op+" "), params, nil
}

func sortedColumns(values store.Row) []string {
	cols := make([]string, 0, len(values))
	for c := range values {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}
