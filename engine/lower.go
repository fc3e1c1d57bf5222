package engine

import (
	"context"

	"github.com/weftdb/weft/query"
	"github.com/weftdb/weft/schema"
	"github.com/weftdb/weft/store"
)

// never returns a condition matching no row, expressible at every
// capability level: comparisons against null match nothing.
func never(m *schema.Model) store.Cond {
	return store.Cmp{Col: m.PrimaryKey().Name, Op: store.OpEq, Val: schema.Null{}}
}

// lower translates a validated filter tree into a store condition over
// m's table. Relation filters collapse into membership tests on a local
// key column: the related side is fetched first, so the store only ever
// sees flat, single-table conditions.
func (e *Engine) lower(ctx context.Context, st store.Store, m *schema.Model, f query.Filter) (store.Cond, error) {
	switch f := f.(type) {
	case nil:
		return nil, nil
	case query.Eq:
		if isNull(f.Value) {
			return store.IsNull{Col: f.Field}, nil
		}
		return store.Cmp{Col: f.Field, Op: store.OpEq, Val: f.Value}, nil
	case query.Ne:
		if isNull(f.Value) {
			return store.Not{Cond: store.IsNull{Col: f.Field}}, nil
		}
		return store.Cmp{Col: f.Field, Op: store.OpNe, Val: f.Value}, nil
	case query.Lt:
		return store.Cmp{Col: f.Field, Op: store.OpLt, Val: f.Value}, nil
	case query.Le:
		return store.Cmp{Col: f.Field, Op: store.OpLe, Val: f.Value}, nil
	case query.Gt:
		return store.Cmp{Col: f.Field, Op: store.OpGt, Val: f.Value}, nil
	case query.Ge:
		return store.Cmp{Col: f.Field, Op: store.OpGe, Val: f.Value}, nil
	case query.In:
		return store.In{Col: f.Field, Vals: f.Values}, nil
	case query.Contains:
		return store.Contains{Col: f.Field, Val: f.Value}, nil
	case query.And:
		conds := make([]store.Cond, 0, len(f.Filters))
		for _, sub := range f.Filters {
			c, err := e.lower(ctx, st, m, sub)
			if err != nil {
				return nil, err
			}
			if c == nil {
				continue
			}
			conds = append(conds, c)
		}
		switch len(conds) {
		case 0:
			return nil, nil
		case 1:
			return conds[0], nil
		default:
			return store.And{Conds: conds}, nil
		}
	case query.Or:
		if len(f.Filters) == 0 {
			return never(m), nil
		}
		conds := make([]store.Cond, 0, len(f.Filters))
		for _, sub := range f.Filters {
			c, err := e.lower(ctx, st, m, sub)
			if err != nil {
				return nil, err
			}
			if c == nil {
				// One branch matches everything, so the whole Or does.
				return nil, nil
			}
			conds = append(conds, c)
		}
		if len(conds) == 1 {
			return conds[0], nil
		}
		return store.Or{Conds: conds}, nil
	case query.Not:
		sub, err := e.lower(ctx, st, m, f.Filter)
		if err != nil {
			return nil, err
		}
		if sub == nil {
			return never(m), nil
		}
		return store.Not{Cond: sub}, nil
	case query.Has:
		return e.lowerHas(ctx, st, m, f)
	default:
		return nil, &ValidationError{Model: m.Name, Message: "unhandled filter node"}
	}
}

// lowerHas collapses a relation filter into a membership test on this
// model's key or foreign key. The related side is fetched once,
// regardless of how many rows the outer query will match.
func (e *Engine) lowerHas(ctx context.Context, st store.Store, m *schema.Model, f query.Has) (store.Cond, error) {
	rel, _ := m.Relation(f.Relation)
	target := rel.Target
	tcond, err := e.lower(ctx, st, target, f.Filter)
	if err != nil {
		return nil, err
	}

	if rel.Kind == schema.ManyToMany {
		pk := target.PrimaryKey()
		rows, err := e.fetch(ctx, st, target.Table, tcond, []string{pk.Name}, nil, 0, 0)
		if err != nil {
			return nil, err
		}
		targetIDs := distinct(rows, pk.Name)
		if len(targetIDs) == 0 {
			return never(m), nil
		}
		srcCol, dstCol := rel.JoinColumns()
		joins, err := e.fetch(ctx, st, rel.Through, store.In{Col: dstCol, Vals: targetIDs}, []string{srcCol}, nil, 0, 0)
		if err != nil {
			return nil, err
		}
		srcIDs := distinct(joins, srcCol)
		if len(srcIDs) == 0 {
			return never(m), nil
		}
		return store.In{Col: m.PrimaryKey().Name, Vals: srcIDs}, nil
	}

	if rel.Owning() {
		// Foreign key on this side: match it against the related rows'
		// referenced values.
		rows, err := e.fetch(ctx, st, target.Table, tcond, []string{rel.Ref.Name}, nil, 0, 0)
		if err != nil {
			return nil, err
		}
		refs := distinct(rows, rel.Ref.Name)
		if len(refs) == 0 {
			return never(m), nil
		}
		return store.In{Col: rel.FieldName, Vals: refs}, nil
	}

	// Foreign key on the related side: collect the keys it points back
	// with. Validation guarantees the inverse exists for these shapes.
	inv := rel.InverseRelation()
	rows, err := e.fetch(ctx, st, target.Table, tcond, []string{inv.FieldName}, nil, 0, 0)
	if err != nil {
		return nil, err
	}
	keys := distinct(rows, inv.FieldName)
	if len(keys) == 0 {
		return never(m), nil
	}
	return store.In{Col: inv.Ref.Name, Vals: keys}, nil
}

// distinct collects the non-null values of col across rows, first
// occurrence order.
func distinct(rows []store.Row, col string) []schema.Value {
	seen := make(map[schema.Value]struct{}, len(rows))
	var out []schema.Value
	for _, r := range rows {
		v, ok := r[col]
		if !ok || isNull(v) {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// filterCaps computes the capability bits a filter needs once lowered,
// without lowering it. Relation filters lower to membership tests, so
// Has implies CapIn plus whatever its nested filter needs.
func (e *Engine) filterCaps(m *schema.Model, f query.Filter) store.Caps {
	switch f := f.(type) {
	case nil:
		return 0
	case query.Eq:
		return 0
	case query.Ne:
		if isNull(f.Value) {
			return store.CapBoolean
		}
		return store.CapCompare
	case query.Lt, query.Le, query.Gt, query.Ge:
		return store.CapCompare
	case query.In:
		return store.CapIn
	case query.Contains:
		return store.CapContains
	case query.And:
		var need store.Caps
		for _, sub := range f.Filters {
			need |= e.filterCaps(m, sub)
		}
		return need
	case query.Or:
		need := store.CapBoolean
		for _, sub := range f.Filters {
			need |= e.filterCaps(m, sub)
		}
		return need
	case query.Not:
		return store.CapBoolean | e.filterCaps(m, f.Filter)
	case query.Has:
		rel, ok := m.Relation(f.Relation)
		if !ok {
			return store.CapIn
		}
		return store.CapIn | e.filterCaps(rel.Target, f.Filter)
	default:
		return 0
	}
}

// includeCaps computes the capability bits an include tree needs.
// Relation resolution batches by key membership, so any include at all
// implies CapIn.
func (e *Engine) includeCaps(m *schema.Model, incs []query.Include) store.Caps {
	var need store.Caps
	for _, inc := range incs {
		rel, ok := m.Relation(inc.Relation)
		if !ok {
			continue
		}
		need |= store.CapIn
		need |= e.filterCaps(rel.Target, inc.Filter)
		need |= e.includeCaps(rel.Target, inc.Includes)
	}
	return need
}

// gate returns an UnsupportedOperationError when the store lacks any
// capability in need. Called once per operation, before the first store
// dispatch.
func gate(caps store.Capabilities, need store.Caps) error {
	missing := need &^ caps.Caps
	if missing == 0 {
		return nil
	}
	return &UnsupportedOperationError{Store: caps.Name, Op: capOpName(missing)}
}

// capOpName names the first missing capability for an error message.
func capOpName(missing store.Caps) string {
	switch {
	case missing.Has(store.CapCompare):
		return "ordered comparison"
	case missing.Has(store.CapIn):
		return "membership filtering"
	case missing.Has(store.CapContains):
		return "substring filtering"
	case missing.Has(store.CapBoolean):
		return "or/not composition"
	case missing.Has(store.CapOrder):
		return "result ordering"
	case missing.Has(store.CapOffset):
		return "result offsets"
	}
	return "the requested operation"
}

// fetch dispatches a read after honoring cancellation. Capability gating
// happened once at the top of the operation.
func (e *Engine) fetch(ctx context.Context, st store.Store, table string, cond store.Cond, cols []string, order []store.Order, limit, offset int) ([]store.Row, error) {
	if err := ready(ctx); err != nil {
		return nil, err
	}
	return st.FetchRows(ctx, table, cond, cols, order, limit, offset)
}
