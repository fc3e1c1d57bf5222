package schema

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/ast"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/parser"
	"cuelang.org/go/cue/token"
)

// Load compiles schema source text into a validated Schema.
//
// The definition is CUE with one top-level models block:
//
//	models: {
//		User: {
//			fields: {
//				id:    {type: "int", id: true, generate: "autoincrement"}
//				email: {type: "string", unique: true}
//			}
//			relations: {
//				posts: {to: "Post", kind: "one-to-many", inverse: "author"}
//			}
//		}
//	}
//
// Structural problems in the source fail fast with a ParseError. Semantic
// rule violations are exhaustive: every broken rule in the definition is
// collected and returned in one *Error.
func Load(source string) (*Schema, error) {
	return load(source, "schema.cue")
}

// LoadFile reads path and compiles it like Load.
func LoadFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	return load(string(data), path)
}

func load(source, filename string) (*Schema, error) {
	if vs := duplicateLabels(source, filename); len(vs) > 0 {
		return nil, &Error{Violations: vs}
	}
	ctx := cuecontext.New()
	v := ctx.CompileString(source, cue.Filename(filename))
	return build(v)
}

// duplicateLabels scans the source syntax tree before unification. CUE
// merges a label declared twice — silently when the bodies agree, as a
// whole-file conflict when they differ — so repeated model, field and
// relation names have to be caught on the AST to come back as violations
// naming the site.
func duplicateLabels(source, filename string) []Violation {
	file, err := parser.ParseFile(filename, source)
	if err != nil {
		// Malformed source fails in compile, with position info.
		return nil
	}
	var vs []Violation
	for _, decl := range file.Decls {
		seenModels := make(map[string]bool)
		for _, modelDecl := range structFields(decl, "models") {
			modelName, ok := declLabel(modelDecl)
			if !ok {
				continue
			}
			if seenModels[modelName] {
				vs = append(vs, Violation{
					Model:   modelName,
					Message: "model declared more than once",
					Code:    ErrDuplicateName,
				})
			}
			seenModels[modelName] = true

			body, ok := modelDecl.(*ast.Field).Value.(*ast.StructLit)
			if !ok {
				continue
			}
			for _, section := range []struct{ name, code string }{
				{"fields", ErrDuplicateName},
				{"relations", ErrDuplicateRelation},
			} {
				seen := make(map[string]bool)
				for _, bodyDecl := range body.Elts {
					for _, d := range structFields(bodyDecl, section.name) {
						name, ok := declLabel(d)
						if !ok {
							continue
						}
						if seen[name] {
							vs = append(vs, Violation{
								Model:   modelName,
								Field:   name,
								Message: "declared more than once",
								Code:    section.code,
							})
						}
						seen[name] = true
					}
				}
			}
		}
	}
	return vs
}

// structFields returns the declarations of d's struct value when d is a
// field labeled name, nil otherwise.
func structFields(d ast.Decl, name string) []ast.Decl {
	f, ok := d.(*ast.Field)
	if !ok {
		return nil
	}
	label, _, err := ast.LabelName(f.Label)
	if err != nil || label != name {
		return nil
	}
	s, ok := f.Value.(*ast.StructLit)
	if !ok {
		return nil
	}
	return s.Elts
}

func declLabel(d ast.Decl) (string, bool) {
	f, ok := d.(*ast.Field)
	if !ok {
		return "", false
	}
	label, _, err := ast.LabelName(f.Label)
	if err != nil {
		return "", false
	}
	return label, true
}

func build(v cue.Value) (*Schema, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	modelsVal := v.LookupPath(cue.ParsePath("models"))
	if !modelsVal.Exists() {
		return nil, &ParseError{
			Field:   "models",
			Message: "a top-level models block is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := modelsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	byName := make(map[string]*Model)
	var order []string
	for iter.Next() {
		name := iter.Label()
		m, err := parseModel(name, iter.Value())
		if err != nil {
			return nil, err
		}
		byName[name] = m
		order = append(order, name)
	}

	if violations := validate(byName, order); len(violations) > 0 {
		return nil, &Error{Violations: violations}
	}
	return link(byName, order), nil
}

func parseModel(name string, v cue.Value) (*Model, error) {
	m := &Model{
		Name:       name,
		Table:      tableName(name),
		fieldIndex: make(map[string]*Field),
		relIndex:   make(map[string]*Relation),
	}

	table, err := lookupString(v, "table")
	if err != nil {
		return nil, err
	}
	if table != "" {
		m.Table = table
	}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if fieldsVal.Exists() {
		iter, err := fieldsVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			f, err := parseField(iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			m.Fields = append(m.Fields, f)
			m.fieldIndex[f.Name] = f
		}
	}

	relsVal := v.LookupPath(cue.ParsePath("relations"))
	if relsVal.Exists() {
		iter, err := relsVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			r, err := parseRelation(iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			m.Relations = append(m.Relations, r)
			m.relIndex[r.Name] = r
		}
	}

	return m, nil
}

func parseField(name string, v cue.Value) (*Field, error) {
	f := &Field{Name: name}

	typeVal := v.LookupPath(cue.ParsePath("type"))
	if typeVal.Exists() {
		ts, err := typeVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		f.rawType = ts
		f.Type = kindNames[ts]
	}

	var err error
	if f.PK, err = lookupBool(v, "id"); err != nil {
		return nil, err
	}
	if f.Unique, err = lookupBool(v, "unique"); err != nil {
		return nil, err
	}
	if f.Nullable, err = lookupBool(v, "nullable"); err != nil {
		return nil, err
	}

	defVal := v.LookupPath(cue.ParsePath("default"))
	if defVal.Exists() {
		d, err := scalarValue(defVal)
		if err != nil {
			return nil, err
		}
		// int literals widen onto float fields, nothing else converts
		if f.Type == KindFloat {
			if n, ok := d.(Int); ok {
				d = Float(n)
			}
		}
		f.Default = d
	}

	gen, err := lookupString(v, "generate")
	if err != nil {
		return nil, err
	}
	if gen != "" {
		f.rawGenerate = gen
		switch gen {
		case "autoincrement":
			f.Generate = GenAutoIncrement
		case "uuid":
			f.Generate = GenUUID
		case "now":
			f.Generate = GenNow
		}
	}

	return f, nil
}

func parseRelation(name string, v cue.Value) (*Relation, error) {
	r := &Relation{Name: name}

	var err error
	if r.TargetName, err = lookupString(v, "to"); err != nil {
		return nil, err
	}

	kind, err := lookupString(v, "kind")
	if err != nil {
		return nil, err
	}
	if kind != "" {
		r.rawKind = kind
		r.Kind = relKindNames[kind]
	}

	if r.FieldName, err = lookupString(v, "field"); err != nil {
		return nil, err
	}
	if r.References, err = lookupString(v, "references"); err != nil {
		return nil, err
	}
	if r.Inverse, err = lookupString(v, "inverse"); err != nil {
		return nil, err
	}
	if r.Through, err = lookupString(v, "through"); err != nil {
		return nil, err
	}

	return r, nil
}

// scalarValue converts a concrete CUE literal into a Value.
func scalarValue(v cue.Value) (Value, error) {
	switch v.Kind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return String(s), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return Int(n), nil
	case cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return Float(f), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return Bool(b), nil
	case cue.NullKind:
		return Null{}, nil
	default:
		return nil, &ParseError{
			Field:   "default",
			Message: fmt.Sprintf("unsupported literal kind %v", v.Kind()),
			Pos:     v.Pos(),
		}
	}
}

func lookupString(v cue.Value, attr string) (string, error) {
	av := v.LookupPath(cue.ParsePath(attr))
	if !av.Exists() {
		return "", nil
	}
	s, err := av.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func lookupBool(v cue.Value, attr string) (bool, error) {
	av := v.LookupPath(cue.ParsePath(attr))
	if !av.Exists() {
		return false, nil
	}
	b, err := av.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

// ParseError reports a structural problem in schema source: malformed CUE
// or an attribute of the wrong shape. Rule violations are collected into
// Error instead, so one ParseError never hides other problems of its kind.
type ParseError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *ParseError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &ParseError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
