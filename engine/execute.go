package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/weftdb/weft/query"
	"github.com/weftdb/weft/schema"
	"github.com/weftdb/weft/store"
)

// Find executes a find descriptor: validate, gate, fetch, map, resolve.
// The result is never nil; no matches is an empty slice.
func (e *Engine) Find(ctx context.Context, d query.Descriptor) ([]*schema.Record, error) {
	if d.Op != query.OpFind {
		return nil, &ValidationError{Model: d.Model, Message: fmt.Sprintf("Find given a %s descriptor", d.Op)}
	}
	m, err := e.validateFind(d)
	if err != nil {
		return nil, err
	}

	caps := e.store.Capabilities()
	need := e.filterCaps(m, d.Filter) | e.includeCaps(m, d.Includes)
	order := e.lowerOrder(m, d)
	if len(order) > 0 {
		need |= store.CapOrder
	}
	if d.Offset > 0 {
		need |= store.CapOffset
	}
	if err := gate(caps, need); err != nil {
		return nil, err
	}

	cond, err := e.lower(ctx, e.store, m, d.Filter)
	if err != nil {
		return nil, err
	}

	slog.Debug("executing find",
		"model", m.Name,
		"store", caps.Name,
		"includes", len(d.Includes),
		"limit", d.Limit,
	)

	cols := widen(m, d.Select, d.Includes)
	rows, err := e.fetch(ctx, e.store, m.Table, cond, cols, order, d.Limit, d.Offset)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", m.Name, err)
	}

	related, err := e.resolve(ctx, m, rows, d.Includes)
	if err != nil {
		return nil, err
	}
	return e.mapRecords(m, rows, d.Select, related)
}

// Create executes a create descriptor: fill defaults, enforce required and
// unique rules before dispatch, write, and map the stored row back.
func (e *Engine) Create(ctx context.Context, d query.Descriptor) (*schema.Record, error) {
	if d.Op != query.OpCreate {
		return nil, &ValidationError{Model: d.Model, Message: fmt.Sprintf("Create given a %s descriptor", d.Op)}
	}
	m, err := e.validateWrite(d)
	if err != nil {
		return nil, err
	}

	values := store.Row{}
	for k, v := range d.Values {
		values[k] = v
	}
	for _, f := range m.Fields {
		if _, ok := values[f.Name]; ok {
			continue
		}
		switch {
		case f.Default != nil:
			values[f.Name] = f.Default
		case f.Generate == schema.GenUUID:
			values[f.Name] = schema.String(e.idGen.Generate())
		case f.Generate == schema.GenNow:
			values[f.Name] = schema.Time(e.clock())
		case f.Generate == schema.GenAutoIncrement:
			// store-assigned
		case f.Required():
			return nil, &ConstraintViolationError{Model: m.Name, Field: f.Name, Kind: ConstraintRequired}
		}
	}

	if err := e.checkUnique(ctx, m, values); err != nil {
		return nil, err
	}

	slog.Debug("executing create", "model", m.Name, "store", e.store.Capabilities().Name)

	if err := ready(ctx); err != nil {
		return nil, err
	}
	row, err := e.store.WriteRow(ctx, m.Table, values)
	if err != nil {
		return nil, e.wrapConstraint(m, err)
	}

	fields, err := e.mapRow(m, row, nil)
	if err != nil {
		return nil, err
	}
	return schema.NewRecord(m, fields, nil), nil
}

// Update executes an update descriptor and returns the post-write records.
// A filter matching nothing is a success with an empty result.
func (e *Engine) Update(ctx context.Context, d query.Descriptor) ([]*schema.Record, error) {
	if d.Op != query.OpUpdate {
		return nil, &ValidationError{Model: d.Model, Message: fmt.Sprintf("Update given a %s descriptor", d.Op)}
	}
	m, err := e.validateWrite(d)
	if err != nil {
		return nil, err
	}
	if len(d.Values) == 0 {
		return nil, &ValidationError{Model: m.Name, Message: "update has no values"}
	}
	if err := gate(e.store.Capabilities(), e.filterCaps(m, d.Filter)); err != nil {
		return nil, err
	}

	cond, err := e.lower(ctx, e.store, m, d.Filter)
	if err != nil {
		return nil, err
	}

	values := store.Row{}
	for k, v := range d.Values {
		values[k] = v
	}

	slog.Debug("executing update", "model", m.Name, "store", e.store.Capabilities().Name)

	if err := ready(ctx); err != nil {
		return nil, err
	}
	rows, err := e.store.UpdateRows(ctx, m.Table, cond, values)
	if err != nil {
		return nil, e.wrapConstraint(m, err)
	}
	return e.mapRecords(m, rows, nil, nil)
}

// Delete executes a delete descriptor and returns how many rows went away.
// A filter matching nothing is a success with count zero.
func (e *Engine) Delete(ctx context.Context, d query.Descriptor) (int64, error) {
	if d.Op != query.OpDelete {
		return 0, &ValidationError{Model: d.Model, Message: fmt.Sprintf("Delete given a %s descriptor", d.Op)}
	}
	m, err := e.validateWrite(d)
	if err != nil {
		return 0, err
	}
	if err := gate(e.store.Capabilities(), e.filterCaps(m, d.Filter)); err != nil {
		return 0, err
	}

	cond, err := e.lower(ctx, e.store, m, d.Filter)
	if err != nil {
		return 0, err
	}

	slog.Debug("executing delete", "model", m.Name, "store", e.store.Capabilities().Name)

	if err := ready(ctx); err != nil {
		return 0, err
	}
	count, err := e.store.DeleteRows(ctx, m.Table, cond)
	if err != nil {
		return 0, e.wrapConstraint(m, err)
	}
	return count, nil
}

// checkUnique pre-checks every unique value in a create payload against the
// store. The store's own constraints still hold; this check exists so a
// collision surfaces as a typed error even on stores that enforce nothing.
func (e *Engine) checkUnique(ctx context.Context, m *schema.Model, values store.Row) error {
	for _, f := range m.Fields {
		if !f.Unique && !f.PK {
			continue
		}
		v, ok := values[f.Name]
		if !ok || v.Kind() == schema.KindNull {
			continue
		}
		rows, err := e.fetch(ctx, e.store, m.Table,
			store.Cmp{Col: f.Name, Op: store.OpEq, Val: v},
			[]string{f.Name}, nil, 1, 0)
		if err != nil {
			return fmt.Errorf("unique check %s.%s: %w", m.Name, f.Name, err)
		}
		if len(rows) > 0 {
			return &ConstraintViolationError{Model: m.Name, Field: f.Name, Kind: ConstraintUnique, Value: v}
		}
	}
	return nil
}

// wrapConstraint converts a store-reported constraint error into the
// engine's typed form, classifying by the violated column's role.
func (e *Engine) wrapConstraint(m *schema.Model, err error) error {
	var ce *store.ConstraintError
	if !errors.As(err, &ce) {
		return err
	}
	kind := ConstraintUnique
	if ce.Col != "" {
		for _, rel := range m.Relations {
			if rel.FieldName == ce.Col {
				kind = ConstraintForeignKey
				break
			}
		}
	}
	return &ConstraintViolationError{Model: m.Name, Field: ce.Col, Kind: kind}
}

// mapRecords maps fetched rows into records, projecting to sel (nil means
// every fetched column). A value inconsistent with its declared type fails
// the mapping; sibling operations are unaffected.
func (e *Engine) mapRecords(m *schema.Model, rows []store.Row, sel []string, related []map[string]schema.Related) ([]*schema.Record, error) {
	recs := make([]*schema.Record, len(rows))
	for i, row := range rows {
		fields, err := e.mapRow(m, row, sel)
		if err != nil {
			return nil, err
		}
		var rel map[string]schema.Related
		if related != nil {
			rel = related[i]
		}
		recs[i] = schema.NewRecord(m, fields, rel)
	}
	return recs, nil
}

// mapRow converts one stored row into typed field values, checking every
// value against the field's declared type. No coercion: a string in an int
// column is a TypeMismatchError, not a zero.
func (e *Engine) mapRow(m *schema.Model, row store.Row, sel []string) (map[string]schema.Value, error) {
	names := sel
	if len(names) == 0 {
		names = m.FieldNames()
	}
	fields := make(map[string]schema.Value, len(names))
	for _, name := range names {
		f, ok := m.Field(name)
		if !ok {
			continue
		}
		v, ok := row[name]
		if !ok {
			continue
		}
		if v == nil || v.Kind() == schema.KindNull {
			if !f.Nullable {
				return nil, &schema.TypeMismatchError{Model: m.Name, Field: name, Want: f.Type, Got: "null"}
			}
			fields[name] = schema.Null{}
			continue
		}
		if v.Kind() != f.Type {
			return nil, &schema.TypeMismatchError{Model: m.Name, Field: name, Want: f.Type, Got: v.Kind().String()}
		}
		fields[name] = v
	}
	return fields, nil
}

// lowerOrder translates order terms into column space. Explicit ordering
// gets a primary key tiebreak so equal-valued rows come back in one stable
// order everywhere. Offsets imply ordering too: skipping rows of an
// unordered result would skip arbitrary rows. A bare limit stays
// unordered, so stores without the ordering capability keep First usable.
func (e *Engine) lowerOrder(m *schema.Model, d query.Descriptor) []store.Order {
	if len(d.OrderBy) == 0 && d.Offset == 0 {
		return nil
	}
	pk := m.PrimaryKey().Name
	out := make([]store.Order, 0, len(d.OrderBy)+1)
	hasPK := false
	for _, o := range d.OrderBy {
		if o.Field == pk {
			hasPK = true
		}
		out = append(out, store.Order{Col: o.Field, Desc: o.Desc})
	}
	if !hasPK {
		out = append(out, store.Order{Col: pk})
	}
	return out
}

// widen returns the columns to fetch for a projection: the selected fields
// plus the primary key and any foreign keys the include set resolves
// through. Nil when the projection is everything. The extra columns are
// fetched, not shown; projection still drives what records expose.
func widen(m *schema.Model, sel []string, incs []query.Include, extra ...string) []string {
	if len(sel) == 0 {
		return nil
	}
	cols := make([]string, 0, len(sel)+2+len(extra))
	seen := make(map[string]struct{}, len(sel)+2+len(extra))
	add := func(name string) {
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		cols = append(cols, name)
	}
	for _, name := range sel {
		add(name)
	}
	add(m.PrimaryKey().Name)
	for _, inc := range incs {
		rel, ok := m.Relation(inc.Relation)
		if !ok {
			continue
		}
		if rel.Owning() {
			add(rel.FieldName)
		} else if inv := rel.InverseRelation(); inv != nil && inv.Ref != nil {
			add(inv.Ref.Name)
		}
	}
	for _, name := range extra {
		add(name)
	}
	return cols
}
