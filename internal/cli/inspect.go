package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/weftdb/weft/schema"
)

// ModelSummary describes one model for inspect output.
type ModelSummary struct {
	Name      string            `json:"name"`
	Table     string            `json:"table"`
	Fields    []FieldSummary    `json:"fields"`
	Relations []RelationSummary `json:"relations,omitempty"`
}

// FieldSummary describes one scalar field.
type FieldSummary struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	PK       bool   `json:"pk,omitempty"`
	Unique   bool   `json:"unique,omitempty"`
	Nullable bool   `json:"nullable,omitempty"`
	Default  string `json:"default,omitempty"`
	Generate string `json:"generate,omitempty"`
}

// RelationSummary describes one declared relation side.
type RelationSummary struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Target  string `json:"target"`
	Field   string `json:"field,omitempty"`
	Inverse string `json:"inverse,omitempty"`
	Through string `json:"through,omitempty"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <schema.cue>",
		Short: "Show the compiled model graph",
		Long: `Compile a schema definition and print its models, fields and
relations as the engine sees them: derived table names, resolved
foreign keys, generators and defaults.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runInspect(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	sch, err := schema.LoadFile(path)
	if err != nil {
		if oerr := formatter.Error(err.Error(), nil); oerr != nil {
			return oerr
		}
		return WrapExitError(ExitFailure, "load schema", err)
	}

	summaries := summarize(sch)
	if opts.Format == "json" {
		return formatter.Success(summaries)
	}
	return formatter.Success(renderSummaries(summaries))
}

func summarize(sch *schema.Schema) []ModelSummary {
	var out []ModelSummary
	for _, m := range sch.Models() {
		ms := ModelSummary{Name: m.Name, Table: m.Table}
		for _, f := range m.Fields {
			fs := FieldSummary{
				Name:     f.Name,
				Type:     f.Type.String(),
				PK:       f.PK,
				Unique:   f.Unique,
				Nullable: f.Nullable,
			}
			if f.Default != nil {
				fs.Default = schema.Format(f.Default)
			}
			if f.Generate != schema.GenNone {
				fs.Generate = f.Generate.String()
			}
			ms.Fields = append(ms.Fields, fs)
		}
		for _, r := range m.Relations {
			ms.Relations = append(ms.Relations, RelationSummary{
				Name:    r.Name,
				Kind:    r.Kind.String(),
				Target:  r.TargetName,
				Field:   r.FieldName,
				Inverse: r.Inverse,
				Through: r.Through,
			})
		}
		out = append(out, ms)
	}
	return out
}

func renderSummaries(models []ModelSummary) string {
	var b strings.Builder
	for i, m := range models {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s (table %s)\n", m.Name, m.Table)
		for _, f := range m.Fields {
			fmt.Fprintf(&b, "  %-12s %s%s\n", f.Name, f.Type, fieldFlags(f))
		}
		for _, r := range m.Relations {
			fmt.Fprintf(&b, "  %-12s -> %s (%s)%s\n", r.Name, r.Target, r.Kind, relationFlags(r))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func fieldFlags(f FieldSummary) string {
	var flags []string
	if f.PK {
		flags = append(flags, "id")
	}
	if f.Unique {
		flags = append(flags, "unique")
	}
	if f.Nullable {
		flags = append(flags, "nullable")
	}
	if f.Default != "" {
		flags = append(flags, "default="+f.Default)
	}
	if f.Generate != "" {
		flags = append(flags, "generate="+f.Generate)
	}
	if len(flags) == 0 {
		return ""
	}
	return " [" + strings.Join(flags, ", ") + "]"
}

func relationFlags(r RelationSummary) string {
	var flags []string
	if r.Field != "" {
		flags = append(flags, "field="+r.Field)
	}
	if r.Inverse != "" {
		flags = append(flags, "inverse="+r.Inverse)
	}
	if r.Through != "" {
		flags = append(flags, "through="+r.Through)
	}
	if len(flags) == 0 {
		return ""
	}
	return " [" + strings.Join(flags, ", ") + "]"
}
