package engine

import (
	"fmt"

	"github.com/weftdb/weft/query"
	"github.com/weftdb/weft/schema"
)

// validateFind checks a find descriptor against the schema before any
// store contact: the model must exist, the include tree must fit the
// depth limit, and every field, relation, and value the descriptor names
// must resolve and type-check.
func (e *Engine) validateFind(d query.Descriptor) (*schema.Model, error) {
	m, err := e.schema.Model(d.Model)
	if err != nil {
		return nil, err
	}
	if depth := d.IncludeDepth(); depth > e.maxDepth {
		return nil, &query.TooDeepError{Depth: depth, Max: e.maxDepth}
	}
	if err := e.checkFilter(m, d.Filter); err != nil {
		return nil, err
	}
	if err := checkSelect(m, d.Select); err != nil {
		return nil, err
	}
	for _, o := range d.OrderBy {
		if _, ok := m.Field(o.Field); !ok {
			return nil, &ValidationError{Model: m.Name, Field: o.Field, Message: "unknown field in order clause"}
		}
	}
	if err := e.checkIncludes(m, d.Includes); err != nil {
		return nil, err
	}
	if d.Limit < 0 {
		return nil, &ValidationError{Model: m.Name, Message: fmt.Sprintf("negative limit %d", d.Limit)}
	}
	if d.Offset < 0 {
		return nil, &ValidationError{Model: m.Name, Message: fmt.Sprintf("negative offset %d", d.Offset)}
	}
	return m, nil
}

// validateWrite checks the filter and value payload of a create, update,
// or delete descriptor.
func (e *Engine) validateWrite(d query.Descriptor) (*schema.Model, error) {
	m, err := e.schema.Model(d.Model)
	if err != nil {
		return nil, err
	}
	if err := e.checkFilter(m, d.Filter); err != nil {
		return nil, err
	}
	for name, v := range d.Values {
		f, ok := m.Field(name)
		if !ok {
			if _, isRel := m.Relation(name); isRel {
				return nil, &ValidationError{Model: m.Name, Field: name, Message: "relations cannot be written directly; set the foreign key field"}
			}
			return nil, &ValidationError{Model: m.Name, Field: name, Message: "unknown field"}
		}
		if d.Op == query.OpUpdate && f.PK {
			return nil, &ValidationError{Model: m.Name, Field: name, Message: "identifier fields are immutable"}
		}
		if isNull(v) {
			if !f.Nullable {
				return nil, &ConstraintViolationError{Model: m.Name, Field: name, Kind: ConstraintRequired, Value: schema.Null{}}
			}
			continue
		}
		if v.Kind() != f.Type {
			return nil, &schema.TypeMismatchError{Model: m.Name, Field: name, Want: f.Type, Got: v.Kind().String()}
		}
	}
	return m, nil
}

// checkFilter walks a filter tree resolving every field and relation it
// names and type-checking every literal against the field it targets.
func (e *Engine) checkFilter(m *schema.Model, f query.Filter) error {
	switch f := f.(type) {
	case nil:
		return nil
	case query.Eq:
		return checkOperand(m, f.Field, f.Value)
	case query.Ne:
		return checkOperand(m, f.Field, f.Value)
	case query.Lt:
		return checkOrdered(m, f.Field, f.Value)
	case query.Le:
		return checkOrdered(m, f.Field, f.Value)
	case query.Gt:
		return checkOrdered(m, f.Field, f.Value)
	case query.Ge:
		return checkOrdered(m, f.Field, f.Value)
	case query.In:
		if _, ok := m.Field(f.Field); !ok {
			return &ValidationError{Model: m.Name, Field: f.Field, Message: "unknown field"}
		}
		for _, v := range f.Values {
			if isNull(v) {
				return &ValidationError{Model: m.Name, Field: f.Field, Message: "null cannot appear in a membership list; use an equality test"}
			}
			if err := checkOperand(m, f.Field, v); err != nil {
				return err
			}
		}
		return nil
	case query.Contains:
		fld, ok := m.Field(f.Field)
		if !ok {
			return &ValidationError{Model: m.Name, Field: f.Field, Message: "unknown field"}
		}
		if fld.Type != schema.KindString {
			return &ValidationError{Model: m.Name, Field: f.Field, Message: "contains requires a string field"}
		}
		return nil
	case query.And:
		for _, sub := range f.Filters {
			if err := e.checkFilter(m, sub); err != nil {
				return err
			}
		}
		return nil
	case query.Or:
		for _, sub := range f.Filters {
			if err := e.checkFilter(m, sub); err != nil {
				return err
			}
		}
		return nil
	case query.Not:
		return e.checkFilter(m, f.Filter)
	case query.Has:
		rel, ok := m.Relation(f.Relation)
		if !ok {
			return &ValidationError{Model: m.Name, Field: f.Relation, Message: "unknown relation"}
		}
		if f.Filter == nil {
			return nil
		}
		return e.checkFilter(rel.Target, f.Filter)
	default:
		return &ValidationError{Model: m.Name, Message: fmt.Sprintf("unhandled filter node %T", f)}
	}
}

// checkIncludes resolves every relation in an include tree and validates
// the nested filters and projections against the relation targets.
func (e *Engine) checkIncludes(m *schema.Model, incs []query.Include) error {
	for _, inc := range incs {
		rel, ok := m.Relation(inc.Relation)
		if !ok {
			return &ValidationError{Model: m.Name, Field: inc.Relation, Message: "unknown relation"}
		}
		if err := e.checkFilter(rel.Target, inc.Filter); err != nil {
			return err
		}
		if err := checkSelect(rel.Target, inc.Select); err != nil {
			return err
		}
		if err := e.checkIncludes(rel.Target, inc.Includes); err != nil {
			return err
		}
	}
	return nil
}

func checkSelect(m *schema.Model, sel []string) error {
	for _, name := range sel {
		if _, ok := m.Field(name); ok {
			continue
		}
		if _, ok := m.Relation(name); ok {
			return &ValidationError{Model: m.Name, Field: name, Message: "relations are included, not selected"}
		}
		return &ValidationError{Model: m.Name, Field: name, Message: "unknown field"}
	}
	return nil
}

// checkOperand validates a filter literal against its field. Null
// literals are legal against nullable fields only.
func checkOperand(m *schema.Model, name string, v schema.Value) error {
	f, ok := m.Field(name)
	if !ok {
		return &ValidationError{Model: m.Name, Field: name, Message: "unknown field"}
	}
	if isNull(v) {
		if !f.Nullable {
			return &schema.TypeMismatchError{Model: m.Name, Field: name, Want: f.Type, Got: "null"}
		}
		return nil
	}
	if v.Kind() != f.Type {
		return &schema.TypeMismatchError{Model: m.Name, Field: name, Want: f.Type, Got: v.Kind().String()}
	}
	return nil
}

// checkOrdered is checkOperand plus the range restriction: ordered
// comparisons never take null and never apply to booleans.
func checkOrdered(m *schema.Model, name string, v schema.Value) error {
	f, ok := m.Field(name)
	if !ok {
		return &ValidationError{Model: m.Name, Field: name, Message: "unknown field"}
	}
	if isNull(v) {
		return &ValidationError{Model: m.Name, Field: name, Message: "range comparison against null"}
	}
	if f.Type == schema.KindBool {
		return &ValidationError{Model: m.Name, Field: name, Message: "range comparison on a boolean field"}
	}
	if v.Kind() != f.Type {
		return &schema.TypeMismatchError{Model: m.Name, Field: name, Want: f.Type, Got: v.Kind().String()}
	}
	return nil
}

func isNull(v schema.Value) bool {
	return v == nil || v.Kind() == schema.KindNull
}
