package store

import "strings"

// Caps is a bitset of optional store features. Equality filtering and And
// composition are the baseline every adapter provides and have no bit.
type Caps uint32

const (
	// CapCompare: ordered comparisons (<, <=, >, >=) and Ne.
	CapCompare Caps = 1 << iota
	// CapIn: membership conditions.
	CapIn
	// CapContains: substring conditions on string columns.
	CapContains
	// CapBoolean: Or and Not composition.
	CapBoolean
	// CapOrder: server-side ordering.
	CapOrder
	// CapOffset: skipping leading rows.
	CapOffset
)

// Has reports whether every feature in f is present.
func (c Caps) Has(f Caps) bool {
	return c&f == f
}

func (c Caps) String() string {
	if c == 0 {
		return "baseline"
	}
	names := []struct {
		bit  Caps
		name string
	}{
		{CapCompare, "compare"},
		{CapIn, "in"},
		{CapContains, "contains"},
		{CapBoolean, "boolean"},
		{CapOrder, "order"},
		{CapOffset, "offset"},
	}
	var parts []string
	for _, n := range names {
		if c.Has(n.bit) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "+")
}

// CapsFull is every optional feature. SQL-backed adapters report this.
const CapsFull = CapCompare | CapIn | CapContains | CapBoolean | CapOrder | CapOffset

// Capabilities describes one adapter: a stable name for diagnostics and
// the features the engine may use against it.
type Capabilities struct {
	Name string
	Caps Caps
}
