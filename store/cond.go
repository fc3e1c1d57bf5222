package store

import "github.com/weftdb/weft/schema"

// Cond is a condition over stored rows, in column space.
//
// This is a sealed interface - only types in this package implement it.
// Adapters evaluate conditions with an exhaustive type switch; the marker
// method guarantees no case can arrive from outside this package.
//
// A nil Cond matches every row.
type Cond interface {
	condNode() // Marker method - seals interface to this package
}

// CmpOp enumerates the comparison operators.
type CmpOp uint8

const (
	OpEq CmpOp = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

func (o CmpOp) String() string {
	switch o {
	case OpEq:
		return "="
	case OpNe:
		return "!="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	default:
		return "?"
	}
}

// Cmp compares one column against a literal. Comparisons against null
// match nothing, for every operator; null handling is the caller's
// business, not a store's guess.
type Cmp struct {
	Col string
	Op  CmpOp
	Val schema.Value
}

func (Cmp) condNode() {}

// In matches rows whose column equals any of Vals. Empty Vals matches
// nothing.
type In struct {
	Col  string
	Vals []schema.Value
}

func (In) condNode() {}

// Contains matches rows whose string column contains Val as a substring,
// case-sensitively.
type Contains struct {
	Col string
	Val string
}

func (Contains) condNode() {}

// IsNull matches rows whose column holds null.
type IsNull struct {
	Col string
}

func (IsNull) condNode() {}

// And matches rows satisfying every child. Empty is always true.
type And struct {
	Conds []Cond
}

func (And) condNode() {}

// Or matches rows satisfying at least one child. Empty is always false.
type Or struct {
	Conds []Cond
}

func (Or) condNode() {}

// Not matches rows the child rejects.
type Not struct {
	Cond Cond
}

func (Not) condNode() {}
