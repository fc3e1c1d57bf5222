package pgstore

import (
	"fmt"
	"strings"

	"github.com/weftdb/weft/schema"
)

// DDL generates CREATE TABLE statements for a schema: one per model in
// declaration order, then one per join table. Idempotent via IF NOT
// EXISTS. Defaults and generated values are engine-applied, except
// autoincrement identifiers, which become identity columns.
func DDL(sch *schema.Schema) []string {
	var stmts []string
	for _, m := range sch.Models() {
		stmts = append(stmts, createTable(m))
	}
	seen := make(map[string]bool)
	for _, m := range sch.Models() {
		for _, rel := range m.Relations {
			if rel.Kind != schema.ManyToMany || rel.Through == "" || seen[rel.Through] {
				continue
			}
			seen[rel.Through] = true
			stmts = append(stmts, createJoinTable(rel))
		}
	}
	return stmts
}

func createTable(m *schema.Model) string {
	var defs []string
	for _, f := range m.Fields {
		defs = append(defs, columnDef(f))
	}
	for _, rel := range m.Relations {
		if !rel.Owning() || rel.Kind == schema.ManyToMany {
			continue
		}
		defs = append(defs, fmt.Sprintf("FOREIGN KEY (%q) REFERENCES %q (%q)",
			rel.FieldName, rel.Target.Table, rel.Ref.Name))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %q (\n\t%s\n)",
		m.Table, strings.Join(defs, ",\n\t"))
}

func columnDef(f *schema.Field) string {
	var b strings.Builder
	if f.PK && f.Generate == schema.GenAutoIncrement {
		fmt.Fprintf(&b, "%q %s GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY", f.Name, columnType(f.Type))
		return b.String()
	}
	fmt.Fprintf(&b, "%q %s", f.Name, columnType(f.Type))
	if f.PK {
		b.WriteString(" PRIMARY KEY")
		return b.String()
	}
	if !f.Nullable {
		b.WriteString(" NOT NULL")
	}
	if f.Unique {
		b.WriteString(" UNIQUE")
	}
	return b.String()
}

func createJoinTable(rel *schema.Relation) string {
	srcCol, dstCol := rel.JoinColumns()
	srcType := columnType(rel.Model.PrimaryKey().Type)
	dstType := columnType(rel.Target.PrimaryKey().Type)
	defs := []string{
		fmt.Sprintf("%q %s NOT NULL", srcCol, srcType),
		fmt.Sprintf("%q %s NOT NULL", dstCol, dstType),
		fmt.Sprintf("PRIMARY KEY (%q, %q)", srcCol, dstCol),
		fmt.Sprintf("FOREIGN KEY (%q) REFERENCES %q (%q)", srcCol, rel.Model.Table, rel.Model.PrimaryKey().Name),
		fmt.Sprintf("FOREIGN KEY (%q) REFERENCES %q (%q)", dstCol, rel.Target.Table, rel.Target.PrimaryKey().Name),
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %q (\n\t%s\n)",
		rel.Through, strings.Join(defs, ",\n\t"))
}

func columnType(k schema.Kind) string {
	switch k {
	case schema.KindInt:
		return "BIGINT"
	case schema.KindFloat:
		return "DOUBLE PRECISION"
	case schema.KindBool:
		return "BOOLEAN"
	case schema.KindTime:
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}
