// Package query builds immutable query descriptors: the target model, a
// filter tree, projection, ordering, pagination and the relations to
// include. Construction is pure. Nothing here touches a store or a schema;
// descriptors are validated against the schema and executed by the engine.
package query

import "github.com/weftdb/weft/schema"

// Filter represents one node of a descriptor's condition tree.
//
// This is a sealed interface - only types in this package implement it.
// The marker method pattern prevents external implementations and keeps
// the engine's lowering switch exhaustive.
//
// Leaf nodes compare one field against literal values: Eq, Ne, Lt, Le,
// Gt, Ge, In, Contains. Has filters on a related model's rows. And, Or
// and Not compose.
type Filter interface {
	filterNode() // Marker method - seals interface to this package
}

// Eq matches rows whose field equals Value. A null Value matches rows
// where the field holds null.
type Eq struct {
	Field string
	Value schema.Value
}

func (Eq) filterNode() {}

// Ne matches rows whose field does not equal Value. A null Value matches
// rows where the field holds anything but null.
type Ne struct {
	Field string
	Value schema.Value
}

func (Ne) filterNode() {}

// Lt matches rows whose field orders strictly before Value.
type Lt struct {
	Field string
	Value schema.Value
}

func (Lt) filterNode() {}

// Le matches rows whose field orders before or equals Value.
type Le struct {
	Field string
	Value schema.Value
}

func (Le) filterNode() {}

// Gt matches rows whose field orders strictly after Value.
type Gt struct {
	Field string
	Value schema.Value
}

func (Gt) filterNode() {}

// Ge matches rows whose field orders after or equals Value.
type Ge struct {
	Field string
	Value schema.Value
}

func (Ge) filterNode() {}

// In matches rows whose field equals any of Values. An empty Values list
// matches nothing.
type In struct {
	Field  string
	Values []schema.Value
}

func (In) filterNode() {}

// Contains matches rows whose string field contains Value as a substring.
// Matching is case-sensitive.
type Contains struct {
	Field string
	Value string
}

func (Contains) filterNode() {}

// And matches rows satisfying every child filter. An empty Filters list is
// always true.
type And struct {
	Filters []Filter
}

func (And) filterNode() {}

// Or matches rows satisfying at least one child filter. An empty Filters
// list is always false.
type Or struct {
	Filters []Filter
}

func (Or) filterNode() {}

// Not matches rows the child filter rejects.
type Not struct {
	Filter Filter
}

func (Not) filterNode() {}

// Has matches rows by their related rows: for a to-one relation, the
// related row satisfies Filter; for a to-many relation, at least one
// related row does. A nil Filter matches any related row, so Has alone
// means "the relation is populated".
type Has struct {
	Relation string
	Filter   Filter
}

func (Has) filterNode() {}
