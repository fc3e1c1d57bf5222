package engine

import (
	"context"
	"fmt"

	"github.com/weftdb/weft/query"
	"github.com/weftdb/weft/schema"
	"github.com/weftdb/weft/store"
)

// resolve populates every included relation for a batch of parent rows.
// Relations resolve in declaration order of the includes; nested includes
// resolve depth-first once their parent level's rows are in hand. Each
// relation costs one fetch per batch (two for many-to-many), batched over
// the distinct key values, never one fetch per row.
func (e *Engine) resolve(ctx context.Context, m *schema.Model, rows []store.Row, incs []query.Include) ([]map[string]schema.Related, error) {
	if len(incs) == 0 || len(rows) == 0 {
		return nil, nil
	}
	related := make([]map[string]schema.Related, len(rows))
	for i := range related {
		related[i] = make(map[string]schema.Related, len(incs))
	}
	for _, inc := range incs {
		rel, _ := m.Relation(inc.Relation)
		var (
			resolved []schema.Related
			err      error
		)
		switch {
		case rel.Kind == schema.ManyToMany:
			resolved, err = e.resolveManyToMany(ctx, rel, inc, rows)
		case rel.Owning():
			resolved, err = e.resolveOwned(ctx, rel, inc, rows)
		default:
			resolved, err = e.resolveInverse(ctx, rel, inc, rows)
		}
		if err != nil {
			return nil, fmt.Errorf("resolve %s.%s: %w", m.Name, rel.Name, err)
		}
		for i := range rows {
			related[i][rel.Name] = resolved[i]
		}
	}
	return related, nil
}

// resolveOwned handles to-one relations whose foreign key sits on the
// parent side: batch the distinct keys, fetch the targets once, attach by
// key. A null key resolves empty; a key with no matching row resolves to
// the absent marker, unless the include carried a filter, in which case a
// missing target just means the filter rejected it.
func (e *Engine) resolveOwned(ctx context.Context, rel *schema.Relation, inc query.Include, rows []store.Row) ([]schema.Related, error) {
	out := make([]schema.Related, len(rows))
	keys := distinct(rows, rel.FieldName)
	byKey := make(map[schema.Value]*schema.Record, len(keys))
	if len(keys) > 0 {
		cond, err := e.includeCond(ctx, rel.Target, inc, store.In{Col: rel.Ref.Name, Vals: keys})
		if err != nil {
			return nil, err
		}
		cols := widen(rel.Target, inc.Select, inc.Includes, rel.Ref.Name)
		trows, err := e.fetch(ctx, e.store, rel.Target.Table, cond, cols, nil, 0, 0)
		if err != nil {
			return nil, err
		}
		trecs, err := e.mapIncluded(ctx, rel.Target, trows, inc)
		if err != nil {
			return nil, err
		}
		for i, row := range trows {
			byKey[row[rel.Ref.Name]] = trecs[i]
		}
	}
	for i, row := range rows {
		fk, ok := row[rel.FieldName]
		if !ok || fk.Kind() == schema.KindNull {
			out[i] = schema.RelatedNone{}
			continue
		}
		if rec, ok := byKey[fk]; ok {
			out[i] = schema.RelatedOne{Record: rec}
		} else if inc.Filter != nil {
			out[i] = schema.RelatedNone{}
		} else {
			out[i] = schema.RelatedAbsent{Ref: fk}
		}
	}
	return out, nil
}

// resolveInverse handles relations whose foreign key sits on the target
// side: one-to-many, and the non-owning half of one-to-one. The targets
// are fetched once over the batch of parent keys and grouped by their
// foreign key value.
func (e *Engine) resolveInverse(ctx context.Context, rel *schema.Relation, inc query.Include, rows []store.Row) ([]schema.Related, error) {
	inv := rel.InverseRelation()
	out := make([]schema.Related, len(rows))
	keys := distinct(rows, inv.Ref.Name)

	groups := make(map[schema.Value][]*schema.Record, len(keys))
	if len(keys) > 0 {
		cond, err := e.includeCond(ctx, rel.Target, inc, store.In{Col: inv.FieldName, Vals: keys})
		if err != nil {
			return nil, err
		}
		cols := widen(rel.Target, inc.Select, inc.Includes, inv.FieldName)
		trows, err := e.fetch(ctx, e.store, rel.Target.Table, cond, cols, nil, 0, 0)
		if err != nil {
			return nil, err
		}
		trecs, err := e.mapIncluded(ctx, rel.Target, trows, inc)
		if err != nil {
			return nil, err
		}
		for i, row := range trows {
			fk, ok := row[inv.FieldName]
			if !ok || fk.Kind() == schema.KindNull {
				continue
			}
			groups[fk] = append(groups[fk], trecs[i])
		}
	}

	toMany := rel.Kind.ToMany()
	for i, row := range rows {
		key, ok := row[inv.Ref.Name]
		var group []*schema.Record
		if ok && key.Kind() != schema.KindNull {
			group = groups[key]
		}
		if toMany {
			if group == nil {
				group = []*schema.Record{}
			}
			out[i] = schema.RelatedMany{Records: group}
			continue
		}
		if len(group) > 0 {
			out[i] = schema.RelatedOne{Record: group[0]}
		} else {
			out[i] = schema.RelatedNone{}
		}
	}
	return out, nil
}

// resolveManyToMany resolves through the join table: one batched fetch for
// the join rows, one for the targets. Join rows pointing at a target that
// no longer exists are dropped; a list has no slot for an absent marker.
func (e *Engine) resolveManyToMany(ctx context.Context, rel *schema.Relation, inc query.Include, rows []store.Row) ([]schema.Related, error) {
	out := make([]schema.Related, len(rows))
	pkCol := rel.Model.PrimaryKey().Name
	parentIDs := distinct(rows, pkCol)
	srcCol, dstCol := rel.JoinColumns()

	links := make(map[schema.Value][]schema.Value, len(parentIDs))
	byID := make(map[schema.Value]*schema.Record)
	if len(parentIDs) > 0 {
		joins, err := e.fetch(ctx, e.store, rel.Through,
			store.In{Col: srcCol, Vals: parentIDs}, []string{srcCol, dstCol}, nil, 0, 0)
		if err != nil {
			return nil, err
		}
		var targetIDs []schema.Value
		seen := make(map[schema.Value]struct{}, len(joins))
		for _, j := range joins {
			src, dst := j[srcCol], j[dstCol]
			if isNull(src) || isNull(dst) {
				continue
			}
			links[src] = append(links[src], dst)
			if _, dup := seen[dst]; !dup {
				seen[dst] = struct{}{}
				targetIDs = append(targetIDs, dst)
			}
		}
		if len(targetIDs) > 0 {
			tpk := rel.Target.PrimaryKey().Name
			cond, err := e.includeCond(ctx, rel.Target, inc, store.In{Col: tpk, Vals: targetIDs})
			if err != nil {
				return nil, err
			}
			cols := widen(rel.Target, inc.Select, inc.Includes, tpk)
			trows, err := e.fetch(ctx, e.store, rel.Target.Table, cond, cols, nil, 0, 0)
			if err != nil {
				return nil, err
			}
			trecs, err := e.mapIncluded(ctx, rel.Target, trows, inc)
			if err != nil {
				return nil, err
			}
			for i, row := range trows {
				byID[row[tpk]] = trecs[i]
			}
		}
	}

	for i, row := range rows {
		recs := []*schema.Record{}
		if id, ok := row[pkCol]; ok {
			for _, tid := range links[id] {
				if rec, found := byID[tid]; found {
					recs = append(recs, rec)
				}
			}
		}
		out[i] = schema.RelatedMany{Records: recs}
	}
	return out, nil
}

// mapIncluded maps fetched target rows, resolving their own nested
// includes first. This is the depth-first step: the child level completes
// before its records are attached upward.
func (e *Engine) mapIncluded(ctx context.Context, target *schema.Model, rows []store.Row, inc query.Include) ([]*schema.Record, error) {
	childRelated, err := e.resolve(ctx, target, rows, inc.Includes)
	if err != nil {
		return nil, err
	}
	return e.mapRecords(target, rows, inc.Select, childRelated)
}

// includeCond conjoins the batching key condition with the include's own
// filter, lowered against the target model.
func (e *Engine) includeCond(ctx context.Context, target *schema.Model, inc query.Include, key store.Cond) (store.Cond, error) {
	if inc.Filter == nil {
		return key, nil
	}
	fcond, err := e.lower(ctx, e.store, target, inc.Filter)
	if err != nil {
		return nil, err
	}
	if fcond == nil {
		return key, nil
	}
	return store.And{Conds: []store.Cond{key, fcond}}, nil
}
