package query

import (
	"fmt"

	"github.com/weftdb/weft/schema"
)

// Op identifies what a descriptor asks the engine to do.
type Op uint8

const (
	OpFind Op = iota
	OpCreate
	OpUpdate
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpFind:
		return "find"
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Descriptor is a complete, immutable description of one operation against
// one model. Descriptors come out of Builder.Build and are safe to reuse
// and to execute concurrently.
type Descriptor struct {
	Model  string
	Op     Op
	Filter Filter

	// Select lists the fields to project. Empty means every field.
	Select []string

	// Includes lists relations to resolve, in declaration order of the
	// calls that added them.
	Includes []Include

	OrderBy []Order
	Limit   int
	Offset  int

	// Values carries the write payload for create and update.
	Values map[string]schema.Value
}

// IncludeDepth returns the deepest include nesting in the descriptor.
// A descriptor with no includes has depth zero.
func (d Descriptor) IncludeDepth() int {
	return includeDepth(d.Includes)
}

func includeDepth(incs []Include) int {
	depth := 0
	for _, inc := range incs {
		if d := 1 + includeDepth(inc.Includes); d > depth {
			depth = d
		}
	}
	return depth
}

// Include names one relation to resolve, with an optional filter and
// projection on the related rows and further nested includes.
type Include struct {
	Relation string
	Filter   Filter
	Select   []string
	Includes []Include
}

// Rel starts an include of the named relation.
func Rel(name string) Include {
	return Include{Relation: name}
}

// Where returns a copy of the include filtered to related rows matching f.
// Repeated calls conjoin.
func (i Include) Where(f Filter) Include {
	i.Filter = conjoin(i.Filter, f)
	return i
}

// Pick returns a copy of the include projecting only the named fields on
// the related rows.
func (i Include) Pick(fields ...string) Include {
	i.Select = appendCopy(i.Select, fields...)
	return i
}

// With returns a copy of the include with nested includes added.
func (i Include) With(children ...Include) Include {
	i.Includes = appendCopy(i.Includes, children...)
	return i
}

// Order is one ordering term.
type Order struct {
	Field string
	Desc  bool
}

// Asc orders ascending by field.
func Asc(field string) Order {
	return Order{Field: field}
}

// Desc orders descending by field.
func Desc(field string) Order {
	return Order{Field: field, Desc: true}
}

// Builder accumulates a Descriptor. Builders are values: every method
// returns a modified copy and the receiver is never changed, so partial
// builders can be shared and extended in different directions safely.
type Builder struct {
	d   Descriptor
	err error
}

// Find starts a read descriptor for the named model.
func Find(model string) Builder {
	return Builder{d: Descriptor{Model: model, Op: OpFind}}
}

// Create starts a create descriptor for the named model.
func Create(model string) Builder {
	return Builder{d: Descriptor{Model: model, Op: OpCreate}}
}

// Update starts an update descriptor for the named model.
func Update(model string) Builder {
	return Builder{d: Descriptor{Model: model, Op: OpUpdate}}
}

// Delete starts a delete descriptor for the named model.
func Delete(model string) Builder {
	return Builder{d: Descriptor{Model: model, Op: OpDelete}}
}

// Where narrows the descriptor to rows matching f. Repeated calls conjoin.
// Not valid on create descriptors.
func (b Builder) Where(f Filter) Builder {
	if b.d.Op == OpCreate {
		return b.fail("Where is not valid on a create descriptor")
	}
	b.d.Filter = conjoin(b.d.Filter, f)
	return b
}

// Pick projects only the named fields. Repeated calls accumulate.
func (b Builder) Pick(fields ...string) Builder {
	if b.d.Op == OpDelete {
		return b.fail("Pick is not valid on a delete descriptor")
	}
	b.d.Select = appendCopy(b.d.Select, fields...)
	return b
}

// Include resolves the given relations on the result. Only valid on find
// descriptors.
func (b Builder) Include(incs ...Include) Builder {
	if b.d.Op != OpFind {
		return b.fail(fmt.Sprintf("Include is not valid on a %s descriptor", b.d.Op))
	}
	b.d.Includes = appendCopy(b.d.Includes, incs...)
	return b
}

// OrderBy appends ordering terms. Earlier terms take precedence.
func (b Builder) OrderBy(orders ...Order) Builder {
	if b.d.Op != OpFind {
		return b.fail(fmt.Sprintf("OrderBy is not valid on a %s descriptor", b.d.Op))
	}
	b.d.OrderBy = appendCopy(b.d.OrderBy, orders...)
	return b
}

// Limit caps the number of rows returned. Zero means no cap.
func (b Builder) Limit(n int) Builder {
	if b.d.Op != OpFind {
		return b.fail(fmt.Sprintf("Limit is not valid on a %s descriptor", b.d.Op))
	}
	b.d.Limit = n
	return b
}

// Offset skips the first n rows of the ordered result.
func (b Builder) Offset(n int) Builder {
	if b.d.Op != OpFind {
		return b.fail(fmt.Sprintf("Offset is not valid on a %s descriptor", b.d.Op))
	}
	b.d.Offset = n
	return b
}

// Set adds one field to the write payload. Only valid on create and
// update descriptors.
func (b Builder) Set(field string, v schema.Value) Builder {
	if b.d.Op != OpCreate && b.d.Op != OpUpdate {
		return b.fail(fmt.Sprintf("Set is not valid on a %s descriptor", b.d.Op))
	}
	values := make(map[string]schema.Value, len(b.d.Values)+1)
	for k, val := range b.d.Values {
		values[k] = val
	}
	values[field] = v
	b.d.Values = values
	return b
}

// SetAll adds every entry of values to the write payload.
func (b Builder) SetAll(values map[string]schema.Value) Builder {
	for k, v := range values {
		b = b.Set(k, v)
	}
	return b
}

// Build returns the finished descriptor. Misuse during construction (a
// Where on a create, an Include on a delete) surfaces here, before
// anything reaches a store.
func (b Builder) Build() (Descriptor, error) {
	if b.err != nil {
		return Descriptor{}, b.err
	}
	if b.d.Model == "" {
		return Descriptor{}, fmt.Errorf("query: descriptor has no model")
	}
	return b.d, nil
}

// fail records the first misuse; later calls keep the original cause.
func (b Builder) fail(msg string) Builder {
	if b.err == nil {
		b.err = fmt.Errorf("query: %s", msg)
	}
	return b
}

// conjoin folds a new filter into an existing one with And. Nested And
// nodes flatten so repeated Where calls do not build a ladder.
func conjoin(existing, next Filter) Filter {
	if next == nil {
		return existing
	}
	if existing == nil {
		return next
	}
	if and, ok := existing.(And); ok {
		return And{Filters: appendCopy(and.Filters, next)}
	}
	return And{Filters: []Filter{existing, next}}
}

// appendCopy appends onto a fresh backing array, never the shared one:
// builders are values and siblings built from a common prefix must not
// see each other's elements.
func appendCopy[T any](dst []T, add ...T) []T {
	out := make([]T, 0, len(dst)+len(add))
	out = append(out, dst...)
	out = append(out, add...)
	return out
}
