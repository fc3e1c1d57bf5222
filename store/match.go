package store

import (
	"strings"

	"github.com/weftdb/weft/schema"
)

// Matches evaluates a condition against one row. Adapters that filter
// client-side (memory, key-value scans) share this evaluator so a given
// condition means the same thing in every store.
//
// Null semantics follow SQL: a null column matches no comparison, for any
// operator; only IsNull sees it. A null literal likewise matches nothing.
func Matches(c Cond, row Row) bool {
	switch c := c.(type) {
	case nil:
		return true
	case Cmp:
		v, ok := row[c.Col]
		if !ok || isNull(v) || isNull(c.Val) {
			return false
		}
		switch c.Op {
		case OpEq:
			return schema.Equal(v, c.Val)
		case OpNe:
			return v.Kind() == c.Val.Kind() && !schema.Equal(v, c.Val)
		default:
			n, ordered := schema.Compare(v, c.Val)
			if !ordered {
				return false
			}
			switch c.Op {
			case OpLt:
				return n < 0
			case OpLe:
				return n <= 0
			case OpGt:
				return n > 0
			case OpGe:
				return n >= 0
			}
			return false
		}
	case In:
		v, ok := row[c.Col]
		if !ok || isNull(v) {
			return false
		}
		for _, want := range c.Vals {
			if schema.Equal(v, want) {
				return true
			}
		}
		return false
	case Contains:
		v, ok := row[c.Col]
		if !ok {
			return false
		}
		s, isStr := v.(schema.String)
		if !isStr {
			return false
		}
		return strings.Contains(string(s), c.Val)
	case IsNull:
		v, ok := row[c.Col]
		return !ok || isNull(v)
	case And:
		for _, sub := range c.Conds {
			if !Matches(sub, row) {
				return false
			}
		}
		return true
	case Or:
		for _, sub := range c.Conds {
			if Matches(sub, row) {
				return true
			}
		}
		return false
	case Not:
		return !Matches(c.Cond, row)
	default:
		return false
	}
}

func isNull(v schema.Value) bool {
	return v == nil || v.Kind() == schema.KindNull
}
