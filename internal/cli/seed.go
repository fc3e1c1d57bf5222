package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/weftdb/weft"
	"github.com/weftdb/weft/memstore"
	"github.com/weftdb/weft/pgstore"
	"github.com/weftdb/weft/redistore"
	"github.com/weftdb/weft/schema"
	"github.com/weftdb/weft/seed"
	"github.com/weftdb/weft/sqlstore"
	"github.com/weftdb/weft/store"
)

// SeedResult reports what one seed run created.
type SeedResult struct {
	Dataset string         `json:"dataset,omitempty"`
	Created map[string]int `json:"created"`
	Total   int            `json:"total"`
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		storeName string
		dsn       string
	)

	cmd := &cobra.Command{
		Use:   "seed <schema.cue> <dataset.yaml>",
		Short: "Apply a seed dataset to a store",
		Long: `Load a YAML dataset and create its rows through the mapper, batch
by batch in declaration order. On stores with transactions the dataset
lands whole or not at all. SQL stores are migrated first, so seeding a
fresh database needs no separate migrate step.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(rootOpts, args[0], args[1], storeName, dsn, cmd)
		},
	}

	cmd.Flags().StringVar(&storeName, "store", "mem", "target store (mem|sqlite|postgres|redis)")
	cmd.Flags().StringVar(&dsn, "dsn", "", "store location: file path for sqlite, connection URL for postgres and redis")

	return cmd
}

func runSeed(opts *RootOptions, schemaPath, datasetPath, storeName, dsn string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := cmd.Context()

	sch, err := schema.LoadFile(schemaPath)
	if err != nil {
		if oerr := formatter.Error(err.Error(), nil); oerr != nil {
			return oerr
		}
		return WrapExitError(ExitFailure, "load schema", err)
	}

	ds, err := seed.LoadFile(datasetPath)
	if err != nil {
		if oerr := formatter.Error(err.Error(), nil); oerr != nil {
			return oerr
		}
		return WrapExitError(ExitFailure, "load dataset", err)
	}

	st, closeStore, err := openStore(ctx, storeName, dsn, sch)
	if err != nil {
		return WrapExitError(ExitCommandError, "open store", err)
	}
	defer closeStore()

	db := weft.NewClient(sch, st)
	res, err := seed.Apply(ctx, db, ds)
	if err != nil {
		if oerr := formatter.Error(err.Error(), nil); oerr != nil {
			return oerr
		}
		return WrapExitError(ExitFailure, "seed", err)
	}

	formatter.VerboseLog("seeded %d record(s) into %s", res.Total, storeName)
	if opts.Format == "json" {
		return formatter.Success(SeedResult{Dataset: ds.Name, Created: res.Created, Total: res.Total})
	}
	return formatter.Success(renderSeedResult(sch, res))
}

// openStore wires the named adapter. SQL stores are migrated before use;
// migrate statements are idempotent, so an already seeded database is fine.
func openStore(ctx context.Context, name, dsn string, sch *schema.Schema) (store.Store, func(), error) {
	switch name {
	case "mem":
		return memstore.ForSchema(sch), func() {}, nil
	case "sqlite":
		if dsn == "" {
			return nil, nil, fmt.Errorf("sqlite needs --dsn with a database path")
		}
		st, err := sqlstore.Open(dsn, sch)
		if err != nil {
			return nil, nil, err
		}
		if err := st.Migrate(ctx, sch); err != nil {
			st.Close()
			return nil, nil, err
		}
		return st, func() { st.Close() }, nil
	case "postgres":
		if dsn == "" {
			return nil, nil, fmt.Errorf("postgres needs --dsn with a connection URL")
		}
		st, err := pgstore.Open(ctx, dsn, sch)
		if err != nil {
			return nil, nil, err
		}
		if err := st.Migrate(ctx, sch); err != nil {
			st.Close()
			return nil, nil, err
		}
		return st, func() { st.Close() }, nil
	case "redis":
		if dsn == "" {
			return nil, nil, fmt.Errorf("redis needs --dsn with a connection URL")
		}
		st, err := redistore.Open(ctx, dsn, sch)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { st.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", name)
	}
}

func renderSeedResult(sch *schema.Schema, res *seed.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "seeded %d record(s)", res.Total)
	for _, m := range sch.Models() {
		if n := res.Created[m.Name]; n > 0 {
			fmt.Fprintf(&b, "\n  %s: %d", m.Name, n)
		}
	}
	return b.String()
}
