// Package schema compiles declarative model definitions into an immutable,
// fully validated model graph. Definitions are written in CUE; Load collects
// every violation in the source before reporting, so a broken schema is fixed
// in one round trip rather than one error at a time.
package schema

import (
	"strings"
	"unicode"
)

// Schema is an immutable collection of models compiled from a schema
// definition. Build one with Load or LoadFile; a Schema that came from
// anywhere else has not been validated.
type Schema struct {
	models map[string]*Model
	order  []string
}

// Model returns the named model, or a NotFoundError if the schema does not
// define it.
func (s *Schema) Model(name string) (*Model, error) {
	m, ok := s.models[name]
	if !ok {
		return nil, &NotFoundError{Model: name}
	}
	return m, nil
}

// Models returns every model in declaration order.
func (s *Schema) Models() []*Model {
	out := make([]*Model, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.models[name])
	}
	return out
}

// Model is one named entity in the schema: an ordered set of scalar fields
// plus the relations declared on this side.
type Model struct {
	Name      string
	Table     string
	Fields    []*Field
	Relations []*Relation

	fieldIndex map[string]*Field
	relIndex   map[string]*Relation
	pk         *Field
}

// Field returns the named scalar field.
func (m *Model) Field(name string) (*Field, bool) {
	f, ok := m.fieldIndex[name]
	return f, ok
}

// Relation returns the named relation.
func (m *Model) Relation(name string) (*Relation, bool) {
	r, ok := m.relIndex[name]
	return r, ok
}

// PrimaryKey returns the model's identifier field. Validation guarantees
// exactly one exists.
func (m *Model) PrimaryKey() *Field {
	return m.pk
}

// FieldNames returns the scalar field names in declaration order.
func (m *Model) FieldNames() []string {
	names := make([]string, len(m.Fields))
	for i, f := range m.Fields {
		names[i] = f.Name
	}
	return names
}

// Generator enumerates the value generators a field may declare instead of a
// literal default.
type Generator uint8

const (
	GenNone Generator = iota
	// GenAutoIncrement leaves assignment to the store. Int identifiers only.
	GenAutoIncrement
	// GenUUID assigns a random UUID on create. String fields only.
	GenUUID
	// GenNow assigns the creation timestamp. Time fields only.
	GenNow
)

func (g Generator) String() string {
	switch g {
	case GenAutoIncrement:
		return "autoincrement"
	case GenUUID:
		return "uuid"
	case GenNow:
		return "now"
	default:
		return "none"
	}
}

// Field is a scalar column on a model.
type Field struct {
	Name     string
	Type     Kind
	PK       bool
	Unique   bool
	Nullable bool

	// Default is the literal applied when a create omits the field.
	// Nil when the field has no literal default.
	Default Value
	// Generate names the generator applied when a create omits the field.
	Generate Generator

	// raw attribute text retained for validation messages
	rawType     string
	rawGenerate string
}

// Required reports whether a create must supply the field: not nullable and
// nothing fills it in.
func (f *Field) Required() bool {
	return !f.Nullable && f.Default == nil && f.Generate == GenNone
}

// RelKind enumerates the relation shapes a model may declare.
type RelKind uint8

const (
	RelInvalid RelKind = iota
	OneToOne
	OneToMany
	ManyToOne
	ManyToMany
)

func (k RelKind) String() string {
	switch k {
	case OneToOne:
		return "one-to-one"
	case OneToMany:
		return "one-to-many"
	case ManyToOne:
		return "many-to-one"
	case ManyToMany:
		return "many-to-many"
	default:
		return "invalid"
	}
}

// ToMany reports whether the relation yields a list when resolved.
func (k RelKind) ToMany() bool {
	return k == OneToMany || k == ManyToMany
}

var relKindNames = map[string]RelKind{
	"one-to-one":   OneToOne,
	"one-to-many":  OneToMany,
	"many-to-one":  ManyToOne,
	"many-to-many": ManyToMany,
}

// Relation is one side of a declared association. The owning side of a
// to-one relation carries the foreign key; one-to-many sides locate theirs
// through the inverse declaration on the target. Many-to-many sides meet in
// a join table that is not itself a model.
type Relation struct {
	Name       string
	Kind       RelKind
	TargetName string
	// FieldName names the foreign key field on the owning side. Empty on
	// non-owning sides.
	FieldName string
	// References names the field on the target the foreign key points at.
	// Defaults to the target's identifier.
	References string
	// Inverse names the mirror relation declared on the target, when one
	// exists.
	Inverse string
	// Through names the join table for many-to-many relations.
	Through string

	// set by link once validation passes
	Model  *Model
	Target *Model
	FK     *Field
	Ref    *Field

	rawKind string
}

// Owning reports whether this side carries the foreign key.
func (r *Relation) Owning() bool {
	return r.FieldName != ""
}

// InverseRelation returns the mirror relation on the target, or nil when
// none is declared.
func (r *Relation) InverseRelation() *Relation {
	if r.Inverse == "" || r.Target == nil {
		return nil
	}
	inv, ok := r.Target.Relation(r.Inverse)
	if !ok {
		return nil
	}
	return inv
}

// JoinColumns returns the join table columns for a many-to-many relation:
// the column holding this side's key and the column holding the target's.
func (r *Relation) JoinColumns() (source, target string) {
	return r.Model.Table + "_id", r.Target.Table + "_id"
}

// tableName derives a storage table name from a model name: lower snake
// case, so PostTag becomes post_tag.
func tableName(model string) string {
	var b strings.Builder
	for i, r := range model {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// link wires resolved pointers into the graph. Callers must have validated
// first: link assumes every reference resolves.
func link(models map[string]*Model, order []string) *Schema {
	for _, name := range order {
		m := models[name]
		for _, f := range m.Fields {
			if f.PK {
				m.pk = f
			}
		}
	}
	for _, name := range order {
		m := models[name]
		for _, rel := range m.Relations {
			rel.Model = m
			rel.Target = models[rel.TargetName]
			if rel.FieldName != "" {
				rel.FK = m.fieldIndex[rel.FieldName]
			}
			if rel.References != "" {
				rel.Ref = rel.Target.fieldIndex[rel.References]
			} else {
				rel.Ref = rel.Target.pk
			}
		}
	}
	return &Schema{models: models, order: order}
}
