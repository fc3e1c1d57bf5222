package schema

import (
	"fmt"
)

// validate checks every schema rule against every model and returns all
// violations found (does not fail-fast). The result order is stable:
// models in declaration order, fields before relations within a model.
func validate(models map[string]*Model, order []string) []Violation {
	var errs []Violation

	// table name -> first claiming model
	tables := make(map[string]string)
	// join table name -> canonical model pair that owns it
	joins := make(map[string]string)

	// model tables are claimed before any relation is checked, so a join
	// table colliding with a model is caught regardless of declaration order
	for _, name := range order {
		m := models[name]
		errs = append(errs, validateFields(m)...)
		errs = append(errs, validateTable(m, tables)...)
	}
	for _, name := range order {
		m := models[name]
		for _, rel := range m.Relations {
			errs = append(errs, validateRelation(m, rel, models, tables, joins)...)
		}
	}

	return errs
}

func validateFields(m *Model) []Violation {
	var errs []Violation

	var ids []string
	for _, f := range m.Fields {
		// S100: type must be present and known
		if f.rawType == "" {
			errs = append(errs, Violation{
				Model:   m.Name,
				Field:   f.Name,
				Message: "field type is required",
				Code:    ErrUnknownType,
			})
		} else if f.Type == KindInvalid {
			errs = append(errs, Violation{
				Model:   m.Name,
				Field:   f.Name,
				Message: fmt.Sprintf("unknown type %q, must be \"int\", \"float\", \"string\", \"bool\" or \"time\"", f.rawType),
				Code:    ErrUnknownType,
			})
		}

		if f.PK {
			ids = append(ids, f.Name)
		}

		errs = append(errs, validateDefault(m, f)...)
	}

	// S102/S103: exactly one identifier
	switch len(ids) {
	case 0:
		errs = append(errs, Violation{
			Model:   m.Name,
			Message: "model must declare exactly one id field",
			Code:    ErrNoIdentifier,
		})
	case 1:
		f := m.fieldIndex[ids[0]]
		// S104: identifier shape
		if f.Nullable {
			errs = append(errs, Violation{
				Model:   m.Name,
				Field:   f.Name,
				Message: "id field must not be nullable",
				Code:    ErrBadIdentifier,
			})
		}
		if f.Type != KindInvalid && f.Type != KindInt && f.Type != KindString {
			errs = append(errs, Violation{
				Model:   m.Name,
				Field:   f.Name,
				Message: fmt.Sprintf("id field must be int or string, not %s", f.Type),
				Code:    ErrBadIdentifier,
			})
		}
	default:
		errs = append(errs, Violation{
			Model:   m.Name,
			Message: fmt.Sprintf("model declares %d id fields (%v), want exactly one", len(ids), ids),
			Code:    ErrManyIdentifiers,
		})
	}

	return errs
}

func validateDefault(m *Model, f *Field) []Violation {
	var errs []Violation

	// S117: a field fills in one way, not two
	if f.Default != nil && f.Generate != GenNone {
		errs = append(errs, Violation{
			Model:   m.Name,
			Field:   f.Name,
			Message: "default and generate are mutually exclusive",
			Code:    ErrDefaultAndGen,
		})
	}

	// S115: generator applicability
	if f.rawGenerate != "" && f.Generate == GenNone {
		errs = append(errs, Violation{
			Model:   m.Name,
			Field:   f.Name,
			Message: fmt.Sprintf("unknown generator %q, must be \"autoincrement\", \"uuid\" or \"now\"", f.rawGenerate),
			Code:    ErrBadGenerator,
		})
	}
	switch f.Generate {
	case GenAutoIncrement:
		if f.Type != KindInt || !f.PK {
			errs = append(errs, Violation{
				Model:   m.Name,
				Field:   f.Name,
				Message: "autoincrement requires an int id field",
				Code:    ErrBadGenerator,
			})
		}
	case GenUUID:
		if f.Type != KindString {
			errs = append(errs, Violation{
				Model:   m.Name,
				Field:   f.Name,
				Message: "uuid generator requires a string field",
				Code:    ErrBadGenerator,
			})
		}
	case GenNow:
		if f.Type != KindTime {
			errs = append(errs, Violation{
				Model:   m.Name,
				Field:   f.Name,
				Message: "now generator requires a time field",
				Code:    ErrBadGenerator,
			})
		}
	}

	// S116: literal default must fit the field type
	if f.Default == nil || f.Type == KindInvalid {
		return errs
	}
	if f.Type == KindTime {
		errs = append(errs, Violation{
			Model:   m.Name,
			Field:   f.Name,
			Message: "time fields take generate: \"now\", not a literal default",
			Code:    ErrBadDefault,
		})
		return errs
	}
	if f.Default.Kind() == KindNull {
		if !f.Nullable {
			errs = append(errs, Violation{
				Model:   m.Name,
				Field:   f.Name,
				Message: "null default on a non-nullable field",
				Code:    ErrBadDefault,
			})
		}
		return errs
	}
	if f.Default.Kind() != f.Type {
		errs = append(errs, Violation{
			Model:   m.Name,
			Field:   f.Name,
			Message: fmt.Sprintf("default is %s, field is %s", f.Default.Kind(), f.Type),
			Code:    ErrBadDefault,
		})
	}

	return errs
}

func validateTable(m *Model, tables map[string]string) []Violation {
	if prev, taken := tables[m.Table]; taken {
		return []Violation{{
			Model:   m.Name,
			Message: fmt.Sprintf("table %q is already used by model %s", m.Table, prev),
			Code:    ErrDuplicateTable,
		}}
	}
	tables[m.Table] = m.Name
	return nil
}

func validateRelation(m *Model, rel *Relation, models map[string]*Model, tables, joins map[string]string) []Violation {
	var errs []Violation

	// S105: relations share the field namespace
	if _, clash := m.fieldIndex[rel.Name]; clash {
		errs = append(errs, Violation{
			Model:   m.Name,
			Field:   rel.Name,
			Message: fmt.Sprintf("relation %q collides with a field of the same name", rel.Name),
			Code:    ErrDuplicateRelation,
		})
	}

	// S106: target must exist
	target := models[rel.TargetName]
	if rel.TargetName == "" {
		errs = append(errs, Violation{
			Model:   m.Name,
			Field:   rel.Name,
			Message: "relation target (to) is required",
			Code:    ErrUnknownTarget,
		})
	} else if target == nil {
		errs = append(errs, Violation{
			Model:   m.Name,
			Field:   rel.Name,
			Message: fmt.Sprintf("relation target %q is not a model", rel.TargetName),
			Code:    ErrUnknownTarget,
		})
	}

	// S107: kind must be present and known
	if rel.rawKind == "" {
		errs = append(errs, Violation{
			Model:   m.Name,
			Field:   rel.Name,
			Message: "relation kind is required",
			Code:    ErrUnknownRelKind,
		})
	} else if rel.Kind == RelInvalid {
		errs = append(errs, Violation{
			Model:   m.Name,
			Field:   rel.Name,
			Message: fmt.Sprintf("unknown relation kind %q", rel.rawKind),
			Code:    ErrUnknownRelKind,
		})
	}

	// shape checks need a resolved target and a known kind
	if target == nil || rel.Kind == RelInvalid {
		return errs
	}

	switch rel.Kind {
	case ManyToOne:
		if rel.FieldName == "" {
			errs = append(errs, Violation{
				Model:   m.Name,
				Field:   rel.Name,
				Message: "many-to-one relation must name its foreign key field",
				Code:    ErrNoOwner,
			})
		} else {
			errs = append(errs, validateFK(m, rel, target, false)...)
		}
	case OneToOne:
		inv := inverseOf(rel, target)
		switch {
		case rel.FieldName != "" && inv != nil && inv.FieldName != "":
			errs = append(errs, Violation{
				Model:   m.Name,
				Field:   rel.Name,
				Message: "both sides of a one-to-one relation declare a foreign key",
				Code:    ErrNoOwner,
			})
		case rel.FieldName == "" && rel.Inverse == "":
			errs = append(errs, Violation{
				Model:   m.Name,
				Field:   rel.Name,
				Message: "one-to-one relation must name its foreign key field or an inverse that does",
				Code:    ErrNoOwner,
			})
		case rel.FieldName == "" && inv != nil && inv.FieldName == "":
			errs = append(errs, Violation{
				Model:   m.Name,
				Field:   rel.Name,
				Message: "neither side of the one-to-one relation declares a foreign key",
				Code:    ErrNoOwner,
			})
		}
		if rel.FieldName != "" {
			errs = append(errs, validateFK(m, rel, target, true)...)
		}
	case OneToMany:
		if rel.FieldName != "" {
			errs = append(errs, Violation{
				Model:   m.Name,
				Field:   rel.Name,
				Message: "the foreign key belongs on the many-to-one side, not here",
				Code:    ErrBadToMany,
			})
		}
		if rel.Inverse == "" {
			errs = append(errs, Violation{
				Model:   m.Name,
				Field:   rel.Name,
				Message: "one-to-many relation requires an inverse naming the many-to-one side",
				Code:    ErrBadToMany,
			})
		}
	case ManyToMany:
		errs = append(errs, validateJoin(m, rel, target, tables, joins)...)
	}

	if rel.Through != "" && rel.Kind != ManyToMany {
		errs = append(errs, Violation{
			Model:   m.Name,
			Field:   rel.Name,
			Message: "through is only valid on many-to-many relations",
			Code:    ErrBadJoin,
		})
	}

	errs = append(errs, validateInverse(m, rel, target)...)

	return errs
}

// validateFK checks the owning side's foreign key field against the
// referenced field on the target.
func validateFK(m *Model, rel *Relation, target *Model, oneToOne bool) []Violation {
	var errs []Violation

	fk, ok := m.fieldIndex[rel.FieldName]
	if !ok {
		return []Violation{{
			Model:   m.Name,
			Field:   rel.Name,
			Message: fmt.Sprintf("foreign key field %q does not exist on %s", rel.FieldName, m.Name),
			Code:    ErrUnknownFK,
		}}
	}

	ref := findReference(rel, target)
	if rel.References != "" {
		if ref == nil {
			errs = append(errs, Violation{
				Model:   m.Name,
				Field:   rel.Name,
				Message: fmt.Sprintf("references names %q, which does not exist on %s", rel.References, target.Name),
				Code:    ErrUnknownReference,
			})
		} else if !ref.PK && !ref.Unique {
			errs = append(errs, Violation{
				Model:   m.Name,
				Field:   rel.Name,
				Message: fmt.Sprintf("referenced field %s.%s must be the id or unique", target.Name, ref.Name),
				Code:    ErrUnknownReference,
			})
		}
	}

	// S110: key types line up; skipped when either side is already broken
	if ref != nil && fk.Type != KindInvalid && ref.Type != KindInvalid && fk.Type != ref.Type {
		errs = append(errs, Violation{
			Model:   m.Name,
			Field:   rel.Name,
			Message: fmt.Sprintf("foreign key %s is %s but %s.%s is %s", fk.Name, fk.Type, target.Name, ref.Name, ref.Type),
			Code:    ErrFKTypeMismatch,
		})
	}

	// S111: one row on the far side means a unique key on this one
	if oneToOne && !fk.Unique {
		errs = append(errs, Violation{
			Model:   m.Name,
			Field:   rel.Name,
			Message: fmt.Sprintf("one-to-one foreign key %s must be unique", fk.Name),
			Code:    ErrFKNotUnique,
		})
	}

	return errs
}

func validateJoin(m *Model, rel *Relation, target *Model, tables, joins map[string]string) []Violation {
	var errs []Violation

	if rel.FieldName != "" {
		errs = append(errs, Violation{
			Model:   m.Name,
			Field:   rel.Name,
			Message: "many-to-many sides do not carry a foreign key field",
			Code:    ErrBadJoin,
		})
	}
	if rel.TargetName == m.Name {
		errs = append(errs, Violation{
			Model:   m.Name,
			Field:   rel.Name,
			Message: "self-referential many-to-many is not supported",
			Code:    ErrBadJoin,
		})
	}
	if rel.Through == "" {
		errs = append(errs, Violation{
			Model:   m.Name,
			Field:   rel.Name,
			Message: "many-to-many relation requires a through join table",
			Code:    ErrBadJoin,
		})
		return errs
	}

	if owner, taken := tables[rel.Through]; taken {
		errs = append(errs, Violation{
			Model:   m.Name,
			Field:   rel.Name,
			Message: fmt.Sprintf("join table %q is already used by model %s", rel.Through, owner),
			Code:    ErrDuplicateTable,
		})
	}

	// the two sides of one relation share a join table; two different
	// relations must not
	pair := joinPair(m.Name, rel.TargetName)
	if prev, taken := joins[rel.Through]; taken && prev != pair {
		errs = append(errs, Violation{
			Model:   m.Name,
			Field:   rel.Name,
			Message: fmt.Sprintf("join table %q is already used by another relation", rel.Through),
			Code:    ErrDuplicateTable,
		})
	}
	joins[rel.Through] = pair

	return errs
}

func validateInverse(m *Model, rel *Relation, target *Model) []Violation {
	if rel.Inverse == "" || target == nil {
		return nil
	}

	inv := inverseOf(rel, target)
	if inv == nil {
		return []Violation{{
			Model:   m.Name,
			Field:   rel.Name,
			Message: fmt.Sprintf("inverse %q is not declared on %s", rel.Inverse, target.Name),
			Code:    ErrBadInverse,
		}}
	}

	var errs []Violation
	if inv.TargetName != m.Name {
		errs = append(errs, Violation{
			Model:   m.Name,
			Field:   rel.Name,
			Message: fmt.Sprintf("inverse %s.%s points at %q, not %s", target.Name, inv.Name, inv.TargetName, m.Name),
			Code:    ErrBadInverse,
		})
	}
	if rel.Kind != RelInvalid && inv.Kind != RelInvalid && inv.Kind != expectedInverse(rel.Kind) {
		errs = append(errs, Violation{
			Model:   m.Name,
			Field:   rel.Name,
			Message: fmt.Sprintf("%s relation cannot have %s inverse %s.%s", rel.Kind, inv.Kind, target.Name, inv.Name),
			Code:    ErrBadInverse,
		})
	}
	if rel.Kind == ManyToMany && inv.Kind == ManyToMany && rel.Through != "" && inv.Through != "" && rel.Through != inv.Through {
		errs = append(errs, Violation{
			Model:   m.Name,
			Field:   rel.Name,
			Message: fmt.Sprintf("join table %q does not match inverse's %q", rel.Through, inv.Through),
			Code:    ErrBadJoin,
		})
	}

	return errs
}

func expectedInverse(k RelKind) RelKind {
	switch k {
	case OneToOne:
		return OneToOne
	case OneToMany:
		return ManyToOne
	case ManyToOne:
		return OneToMany
	case ManyToMany:
		return ManyToMany
	default:
		return RelInvalid
	}
}

// inverseOf resolves the mirror relation before link has run.
func inverseOf(rel *Relation, target *Model) *Relation {
	if rel.Inverse == "" || target == nil {
		return nil
	}
	return target.relIndex[rel.Inverse]
}

// findReference resolves the field a foreign key points at before link has
// run: the named references field, or the target's single id field.
func findReference(rel *Relation, target *Model) *Field {
	if rel.References != "" {
		return target.fieldIndex[rel.References]
	}
	var pk *Field
	for _, f := range target.Fields {
		if f.PK {
			if pk != nil {
				return nil
			}
			pk = f
		}
	}
	return pk
}

// joinPair is an order-independent key for the two models a join table
// serves.
func joinPair(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "/" + b
}
