package redistore

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/weftdb/weft/schema"
	"github.com/weftdb/weft/schema/schematest"
	"github.com/weftdb/weft/store"
)

// accountSchema has two unique columns so index claims span more than one
// key per write.
const accountSchema = `
models: {
	Account: {
		fields: {
			id:     {type: "int", id: true, generate: "autoincrement"}
			email:  {type: "string", unique: true}
			handle: {type: "string", unique: true}
		}
	}
}
`

func openAccounts(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	st, err := Open(context.Background(), "redis://"+mr.Addr(), schematest.Load(t, accountSchema))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func mustWrite(t *testing.T, s *Store, table string, values store.Row) store.Row {
	t.Helper()
	row, err := s.WriteRow(context.Background(), table, values)
	if err != nil {
		t.Fatalf("write %s: %v", table, err)
	}
	return row
}

func byID(id int64) store.Cond {
	return store.Cmp{Col: "id", Op: store.OpEq, Val: schema.Int(id)}
}

func TestWriteFetchRoundTrip(t *testing.T) {
	s := openAccounts(t)
	ctx := context.Background()

	a := mustWrite(t, s, "account", store.Row{
		"email": schema.String("a@x"), "handle": schema.String("alice"),
	})
	if a["id"] != schema.Int(1) {
		t.Fatalf("id = %v", a["id"])
	}

	rows, err := s.FetchRows(ctx, "account", byID(1), nil, nil, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || !schema.Equal(rows[0]["email"], schema.String("a@x")) {
		t.Fatalf("rows = %v", rows)
	}
}

func TestWriteDuplicateUnique(t *testing.T) {
	s := openAccounts(t)

	mustWrite(t, s, "account", store.Row{
		"email": schema.String("a@x"), "handle": schema.String("alice"),
	})
	_, err := s.WriteRow(context.Background(), "account", store.Row{
		"email": schema.String("a@x"), "handle": schema.String("bob"),
	})

	var ce *store.ConstraintError
	if !errors.As(err, &ce) {
		t.Fatalf("want ConstraintError, got %v", err)
	}
	if ce.Col != "email" {
		t.Errorf("col = %q", ce.Col)
	}

	// The failed write must not leave a claim on its fresh handle.
	mustWrite(t, s, "account", store.Row{
		"email": schema.String("b@x"), "handle": schema.String("bob"),
	})
}

func TestUpdateMovesUniqueIndex(t *testing.T) {
	s := openAccounts(t)
	ctx := context.Background()

	mustWrite(t, s, "account", store.Row{
		"email": schema.String("a@x"), "handle": schema.String("alice"),
	})
	out, err := s.UpdateRows(ctx, "account", byID(1), store.Row{
		"email": schema.String("b@x"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || !schema.Equal(out[0]["email"], schema.String("b@x")) {
		t.Fatalf("out = %v", out)
	}

	// Old value released, new value held.
	mustWrite(t, s, "account", store.Row{
		"email": schema.String("a@x"), "handle": schema.String("bob"),
	})
	if _, err := s.WriteRow(ctx, "account", store.Row{
		"email": schema.String("b@x"), "handle": schema.String("carol"),
	}); err == nil {
		t.Fatal("moved index entry must still block duplicates")
	}
}

func TestUpdateFailedClaimLeavesIndexHonest(t *testing.T) {
	s := openAccounts(t)
	ctx := context.Background()

	mustWrite(t, s, "account", store.Row{
		"email": schema.String("a@x"), "handle": schema.String("alice"),
	})
	mustWrite(t, s, "account", store.Row{
		"email": schema.String("b@x"), "handle": schema.String("bob"),
	})

	// email claim for c@x succeeds, handle claim for bob collides; the
	// update fails whole and the row stays as it was.
	_, err := s.UpdateRows(ctx, "account", byID(1), store.Row{
		"email": schema.String("c@x"), "handle": schema.String("bob"),
	})
	var ce *store.ConstraintError
	if !errors.As(err, &ce) {
		t.Fatalf("want ConstraintError, got %v", err)
	}
	if ce.Col != "handle" {
		t.Errorf("col = %q", ce.Col)
	}

	rows, err := s.FetchRows(ctx, "account", byID(1), nil, nil, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || !schema.Equal(rows[0]["email"], schema.String("a@x")) {
		t.Fatalf("failed update mutated the row: %v", rows)
	}

	// No index entry may point at the row that never changed: c@x must be
	// free for a new account, a@x must still be held by the old one.
	mustWrite(t, s, "account", store.Row{
		"email": schema.String("c@x"), "handle": schema.String("carol"),
	})
	if _, err := s.WriteRow(ctx, "account", store.Row{
		"email": schema.String("a@x"), "handle": schema.String("dave"),
	}); err == nil {
		t.Fatal("a@x is still taken")
	}
}

func TestDeleteReleasesUniqueIndex(t *testing.T) {
	s := openAccounts(t)
	ctx := context.Background()

	mustWrite(t, s, "account", store.Row{
		"email": schema.String("a@x"), "handle": schema.String("alice"),
	})
	n, err := s.DeleteRows(ctx, "account", byID(1))
	if err != nil || n != 1 {
		t.Fatalf("deleted %d, err %v", n, err)
	}
	mustWrite(t, s, "account", store.Row{
		"email": schema.String("a@x"), "handle": schema.String("alice"),
	})
}
