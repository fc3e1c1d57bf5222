// Package engine executes query descriptors against a store.
//
// The engine is the only component that touches persistence. It validates
// descriptors against the schema, lowers filter trees into store
// conditions, gates them on the store's declared capabilities, maps rows
// back into typed records, resolves included relations in batches, and
// scopes work to transactions when the store can.
//
// Engines are explicitly constructed and passed down; there is no package
// or process global. An Engine is safe for concurrent use.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/weftdb/weft/query"
	"github.com/weftdb/weft/schema"
	"github.com/weftdb/weft/store"
)

// DefaultMaxIncludeDepth bounds include nesting unless overridden with
// WithMaxIncludeDepth. Depth is counted in relation hops: including posts
// is one, posts with their comments is two.
const DefaultMaxIncludeDepth = 3

// IDGenerator produces identifiers for string fields that declare
// generate: "uuid". Implemented by UUIDGenerator (production) and fixed
// generators in tests.
type IDGenerator interface {
	Generate() string
}

// UUIDGenerator generates time-ordered UUIDs.
type UUIDGenerator struct{}

// Generate implements IDGenerator.
func (UUIDGenerator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Engine executes descriptors for one schema against one store.
type Engine struct {
	schema   *schema.Schema
	store    store.Store
	maxDepth int
	clock    func() time.Time
	idGen    IDGenerator
	inTx     bool
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithMaxIncludeDepth overrides the include depth limit.
func WithMaxIncludeDepth(depth int) Option {
	return func(e *Engine) {
		e.maxDepth = depth
	}
}

// WithClock substitutes the time source used by generate: "now" fields.
// For tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.clock = now
	}
}

// WithIDGenerator substitutes the generator behind generate: "uuid"
// fields. For tests.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		e.idGen = g
	}
}

// New builds an Engine over a validated schema and a store.
func New(s *schema.Schema, st store.Store, opts ...Option) *Engine {
	e := &Engine{
		schema:   s,
		store:    st,
		maxDepth: DefaultMaxIncludeDepth,
		clock:    time.Now,
		idGen:    UUIDGenerator{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Schema returns the schema the engine executes against.
func (e *Engine) Schema() *schema.Schema {
	return e.schema
}

// Store returns the store the engine dispatches to.
func (e *Engine) Store() store.Store {
	return e.store
}

// First executes a find descriptor and returns its first record, or a
// NotFoundError naming the model when nothing matched.
func (e *Engine) First(ctx context.Context, d query.Descriptor) (*schema.Record, error) {
	d.Limit = 1
	recs, err := e.Find(ctx, d)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, &schema.NotFoundError{Model: d.Model, Key: firstKey(d.Filter)}
	}
	return recs[0], nil
}

// firstKey extracts a lookup key from a simple equality filter for
// NotFoundError context. Best effort; nil when the filter is compound.
func firstKey(f query.Filter) schema.Value {
	if eq, ok := f.(query.Eq); ok {
		return eq.Value
	}
	return nil
}

// ready reports the context error, checked before every store dispatch.
// Cancellation is honored between operations, never by abandoning a write
// the store has already acknowledged.
func ready(ctx context.Context) error {
	return ctx.Err()
}
