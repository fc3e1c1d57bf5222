package memstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/weftdb/weft/schema"
	"github.com/weftdb/weft/schema/schematest"
	"github.com/weftdb/weft/store"
)

func itemStore(t *testing.T) *Store {
	t.Helper()
	return ForSchema(schematest.Load(t, schematest.Minimal))
}

func mustWrite(t *testing.T, s *Store, table string, values store.Row) store.Row {
	t.Helper()
	row, err := s.WriteRow(context.Background(), table, values)
	if err != nil {
		t.Fatalf("write %s: %v", table, err)
	}
	return row
}

func TestWriteAssignsAutoIncrement(t *testing.T) {
	s := itemStore(t)
	a := mustWrite(t, s, "item", store.Row{"name": schema.String("a")})
	b := mustWrite(t, s, "item", store.Row{"name": schema.String("b")})

	if a["id"] != schema.Int(1) || b["id"] != schema.Int(2) {
		t.Fatalf("ids = %v, %v", a["id"], b["id"])
	}
}

func TestWriteExplicitIDAdvancesCounter(t *testing.T) {
	s := itemStore(t)
	mustWrite(t, s, "item", store.Row{"id": schema.Int(10), "name": schema.String("a")})
	b := mustWrite(t, s, "item", store.Row{"name": schema.String("b")})
	if b["id"] != schema.Int(11) {
		t.Fatalf("counter did not advance past an explicit id: %v", b["id"])
	}
}

func TestWriteUniqueConflict(t *testing.T) {
	s := itemStore(t)
	mustWrite(t, s, "item", store.Row{"id": schema.Int(1), "name": schema.String("a")})
	_, err := s.WriteRow(context.Background(), "item", store.Row{
		"id": schema.Int(1), "name": schema.String("b"),
	})

	var ce *store.ConstraintError
	if !errors.As(err, &ce) {
		t.Fatalf("want ConstraintError, got %v", err)
	}
	if ce.Col != "id" {
		t.Errorf("col = %q", ce.Col)
	}
}

func TestFetchOrderingNullsAndCollation(t *testing.T) {
	s := New()
	s.CreateTable("things", TableSpec{})
	ctx := context.Background()
	for _, v := range []schema.Value{
		schema.String("pear"), schema.Null{}, schema.String("Apple"), schema.String("apple"),
	} {
		if _, err := s.WriteRow(ctx, "things", store.Row{"name": v}); err != nil {
			t.Fatal(err)
		}
	}

	rows, err := s.FetchRows(ctx, "things", nil, nil, []store.Order{{Col: "name"}}, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Fatalf("got %d rows", len(rows))
	}
	if !isNull(rows[0]["name"]) {
		t.Errorf("nulls sort first, got %v", rows[0]["name"])
	}
	// The collator orders case-insensitively at the primary level, so both
	// apples precede pear.
	if rows[3]["name"] != schema.String("pear") {
		t.Errorf("want pear last, got %v", rows[3]["name"])
	}
}

func TestFetchLimitOffsetAndProjection(t *testing.T) {
	s := itemStore(t)
	for _, n := range []string{"a", "b", "c", "d"} {
		mustWrite(t, s, "item", store.Row{"name": schema.String(n)})
	}

	rows, err := s.FetchRows(context.Background(), "item", nil,
		[]string{"name"}, []store.Order{{Col: "id"}}, 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows", len(rows))
	}
	if rows[0]["name"] != schema.String("b") || rows[1]["name"] != schema.String("c") {
		t.Errorf("rows = %v", rows)
	}
	if _, leaked := rows[0]["id"]; leaked {
		t.Error("projection must drop unselected columns")
	}
}

func TestFetchedRowsAreClones(t *testing.T) {
	s := itemStore(t)
	mustWrite(t, s, "item", store.Row{"name": schema.String("a")})

	rows, err := s.FetchRows(context.Background(), "item", nil, nil, nil, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	rows[0]["name"] = schema.String("mutated")

	again, err := s.FetchRows(context.Background(), "item", nil, nil, nil, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if again[0]["name"] != schema.String("a") {
		t.Error("caller mutation reached the backing row")
	}
}

func TestUpdateUniquePrecheckLeavesTableIntact(t *testing.T) {
	s := itemStore(t)
	mustWrite(t, s, "item", store.Row{"name": schema.String("a")})
	mustWrite(t, s, "item", store.Row{"name": schema.String("b")})

	// Setting one unique column across two matched rows cannot succeed.
	_, err := s.UpdateRows(context.Background(), "item", nil, store.Row{"id": schema.Int(9)})
	var ce *store.ConstraintError
	if !errors.As(err, &ce) {
		t.Fatalf("want ConstraintError, got %v", err)
	}

	rows, err := s.FetchRows(context.Background(), "item", nil, nil, []store.Order{{Col: "id"}}, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if rows[0]["id"] != schema.Int(1) || rows[1]["id"] != schema.Int(2) {
		t.Error("failed update must not leave partial writes")
	}
}

func TestDeleteRowsCount(t *testing.T) {
	s := itemStore(t)
	mustWrite(t, s, "item", store.Row{"name": schema.String("a")})
	mustWrite(t, s, "item", store.Row{"name": schema.String("b")})

	n, err := s.DeleteRows(context.Background(), "item",
		store.Cmp{Col: "name", Op: store.OpEq, Val: schema.String("a")})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("deleted %d", n)
	}
	rows, _ := s.FetchRows(context.Background(), "item", nil, nil, nil, 0, 0)
	if len(rows) != 1 {
		t.Fatalf("left %d rows", len(rows))
	}
}

func TestTxCommitSwapsState(t *testing.T) {
	s := itemStore(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tx.WriteRow(ctx, "item", store.Row{"name": schema.String("a")}); err != nil {
		t.Fatal(err)
	}

	rows, _ := s.FetchRows(ctx, "item", nil, nil, nil, 0, 0)
	if len(rows) != 0 {
		t.Fatal("uncommitted write visible outside the transaction")
	}

	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	rows, _ = s.FetchRows(ctx, "item", nil, nil, nil, 0, 0)
	if len(rows) != 1 {
		t.Fatal("committed write not visible")
	}
}

func TestTxRollbackDiscardsSnapshot(t *testing.T) {
	s := itemStore(t)
	ctx := context.Background()
	mustWrite(t, s, "item", store.Row{"name": schema.String("keep")})

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tx.WriteRow(ctx, "item", store.Row{"name": schema.String("drop")}); err != nil {
		t.Fatal(err)
	}
	if _, err := tx.DeleteRows(ctx, "item", store.Cmp{Col: "name", Op: store.OpEq, Val: schema.String("keep")}); err != nil {
		t.Fatal(err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatal(err)
	}

	rows, _ := s.FetchRows(ctx, "item", nil, nil, nil, 0, 0)
	if len(rows) != 1 || rows[0]["name"] != schema.String("keep") {
		t.Fatalf("rollback lost the original state: %v", rows)
	}
}

func TestConcurrentOrderedFetches(t *testing.T) {
	s := itemStore(t)
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		mustWrite(t, s, "item", store.Row{"name": schema.String(fmt.Sprintf("row-%02d", 19-i))})
	}

	order := []store.Order{{Col: "name"}}
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				rows, err := s.FetchRows(ctx, "item", nil, nil, order, 0, 0)
				if err != nil {
					errs <- err
					return
				}
				if rows[0]["name"] != schema.String("row-00") {
					errs <- fmt.Errorf("order broke: %v", rows[0]["name"])
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

func TestParentWriteDuringTxSurvivesCommit(t *testing.T) {
	s := itemStore(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}

	// Blocks on the writer gate until the transaction finishes; either
	// way the acknowledged write must be visible afterward.
	done := make(chan error, 1)
	go func() {
		_, err := s.WriteRow(ctx, "item", store.Row{"name": schema.String("outside")})
		done <- err
	}()

	if _, err := tx.WriteRow(ctx, "item", store.Row{"name": schema.String("inside")}); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	rows, err := s.FetchRows(ctx, "item", nil, nil, nil, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	names := map[schema.Value]bool{}
	for _, r := range rows {
		names[r["name"]] = true
	}
	if !names[schema.String("inside")] || !names[schema.String("outside")] {
		t.Fatalf("lost a write: %v", rows)
	}
}

func TestTxFinishedGuards(t *testing.T) {
	s := itemStore(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err == nil {
		t.Error("second commit must fail")
	}
	if _, err := tx.WriteRow(ctx, "item", store.Row{"name": schema.String("x")}); err == nil {
		t.Error("write after commit must fail")
	}
}
