package store

import (
	"errors"
	"testing"

	"github.com/weftdb/weft/schema"
)

func TestRowClone(t *testing.T) {
	r := Row{"id": schema.Int(1), "name": schema.String("a")}
	c := r.Clone()
	c["name"] = schema.String("b")

	if r["name"] != schema.String("a") {
		t.Fatalf("clone mutated source row: %v", r["name"])
	}
}

func TestCapsHas(t *testing.T) {
	c := CapCompare | CapIn
	if !c.Has(CapCompare) {
		t.Error("want CapCompare")
	}
	if !c.Has(CapCompare | CapIn) {
		t.Error("want combined check to pass")
	}
	if c.Has(CapContains) {
		t.Error("CapContains not set")
	}
	if !CapsFull.Has(CapOffset) {
		t.Error("CapsFull must include CapOffset")
	}
}

func TestCapsString(t *testing.T) {
	if got := Caps(0).String(); got != "baseline" {
		t.Errorf("Caps(0) = %q", got)
	}
	if got := (CapCompare | CapOrder).String(); got != "compare+order" {
		t.Errorf("got %q", got)
	}
}

func TestCmpOpString(t *testing.T) {
	ops := map[CmpOp]string{
		OpEq: "=", OpNe: "!=", OpLt: "<", OpLe: "<=", OpGt: ">", OpGe: ">=",
	}
	for op, want := range ops {
		if got := op.String(); got != want {
			t.Errorf("op %d = %q, want %q", op, got, want)
		}
	}
}

func TestConstraintError(t *testing.T) {
	cause := errors.New("UNIQUE constraint failed")
	err := &ConstraintError{Table: "user", Col: "email", Err: cause}

	if !errors.Is(err, cause) {
		t.Error("want Unwrap to reach the cause")
	}
	want := "constraint violated on user.email: UNIQUE constraint failed"
	if err.Error() != want {
		t.Errorf("got %q", err.Error())
	}

	bare := &ConstraintError{Table: "user", Err: cause}
	if bare.Error() != "constraint violated on user: UNIQUE constraint failed" {
		t.Errorf("got %q", bare.Error())
	}
}
