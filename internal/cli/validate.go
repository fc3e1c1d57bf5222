package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/weftdb/weft/schema"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid      bool               `json:"valid"`
	Models     int                `json:"models,omitempty"`
	Violations []schema.Violation `json:"violations,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <schema.cue>",
		Short: "Validate a schema definition",
		Long: `Validate a CUE schema definition without touching any store.

Every rule violation in the definition is reported in one pass, so a
broken schema is fixed in one round trip.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	sch, err := schema.LoadFile(path)
	if err != nil {
		var se *schema.Error
		if errors.As(err, &se) {
			return outputViolations(formatter, se.Violations)
		}
		if oerr := formatter.Error(err.Error(), nil); oerr != nil {
			return oerr
		}
		return WrapExitError(ExitCommandError, "load schema", err)
	}

	models := len(sch.Models())
	formatter.VerboseLog("validated %d model(s) in %s", models, path)

	if opts.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Models: models})
	}
	return formatter.Success(fmt.Sprintf("schema valid: %d model(s)", models))
}

func outputViolations(f *OutputFormatter, vs []schema.Violation) error {
	if f.Format == "json" {
		if err := f.Success(ValidationResult{Valid: false, Violations: vs}); err != nil {
			return err
		}
	} else {
		var b strings.Builder
		fmt.Fprintf(&b, "schema invalid: %d violation(s)", len(vs))
		for _, v := range vs {
			b.WriteString("\n  ")
			b.WriteString(v.Error())
		}
		if err := f.Error(b.String(), nil); err != nil {
			return err
		}
	}
	return &ExitError{Code: ExitFailure, Message: "schema validation failed"}
}
