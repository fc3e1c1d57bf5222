package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/weftdb/weft/pgstore"
	"github.com/weftdb/weft/schema"
	"github.com/weftdb/weft/sqlstore"
)

// MigrateResult reports what one migrate run did.
type MigrateResult struct {
	Store      string   `json:"store"`
	Statements []string `json:"statements"`
	Applied    bool     `json:"applied"`
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		storeName string
		dsn       string
		printOnly bool
	)

	cmd := &cobra.Command{
		Use:   "migrate <schema.cue>",
		Short: "Create the tables a schema needs",
		Long: `Derive table definitions from a schema and apply them to a SQL
store, or print the statements with --print. Statements use IF NOT
EXISTS, so migrate is safe to repeat against an existing database.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(rootOpts, args[0], storeName, dsn, printOnly, cmd)
		},
	}

	cmd.Flags().StringVar(&storeName, "store", "sqlite", "target store (sqlite|postgres)")
	cmd.Flags().StringVar(&dsn, "dsn", "", "store location: file path for sqlite, connection URL for postgres")
	cmd.Flags().BoolVar(&printOnly, "print", false, "print the statements instead of applying them")

	return cmd
}

func runMigrate(opts *RootOptions, path, storeName, dsn string, printOnly bool, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	sch, err := schema.LoadFile(path)
	if err != nil {
		if oerr := formatter.Error(err.Error(), nil); oerr != nil {
			return oerr
		}
		return WrapExitError(ExitFailure, "load schema", err)
	}

	var stmts []string
	switch storeName {
	case "sqlite":
		stmts = sqlstore.DDL(sch)
	case "postgres":
		stmts = pgstore.DDL(sch)
	default:
		return WrapExitError(ExitCommandError, fmt.Sprintf("unknown store %q: migrate targets sqlite or postgres", storeName), nil)
	}

	if printOnly {
		if opts.Format == "json" {
			return formatter.Success(MigrateResult{Store: storeName, Statements: stmts})
		}
		return formatter.Success(strings.Join(stmts, "\n"))
	}

	if dsn == "" {
		return WrapExitError(ExitCommandError, "--dsn is required unless --print is set", nil)
	}

	ctx := cmd.Context()
	switch storeName {
	case "sqlite":
		st, err := sqlstore.Open(dsn, sch)
		if err != nil {
			return WrapExitError(ExitCommandError, "open sqlite store", err)
		}
		defer st.Close()
		if err := st.Migrate(ctx, sch); err != nil {
			return WrapExitError(ExitFailure, "migrate", err)
		}
	case "postgres":
		st, err := pgstore.Open(ctx, dsn, sch)
		if err != nil {
			return WrapExitError(ExitCommandError, "open postgres store", err)
		}
		defer st.Close()
		if err := st.Migrate(ctx, sch); err != nil {
			return WrapExitError(ExitFailure, "migrate", err)
		}
	}

	formatter.VerboseLog("applied %d statement(s) to %s", len(stmts), storeName)
	if opts.Format == "json" {
		return formatter.Success(MigrateResult{Store: storeName, Statements: stmts, Applied: true})
	}
	return formatter.Success(fmt.Sprintf("applied %d statement(s) on %s", len(stmts), storeName))
}
