// Package weft is a schema-driven data mapper: declarative models
// compiled from CUE, a pure query builder, and an execution engine over a
// narrow store interface with pluggable adapters (memory, SQLite,
// PostgreSQL, Redis).
//
// A Client is constructed explicitly and passed down; there is no global
// handle anywhere in the module.
//
//	sch, err := schema.Load(definition)
//	st := memstore.ForSchema(sch)
//	db := weft.NewClient(sch, st)
//
//	alice, err := db.Create(ctx, "User", map[string]any{
//		"name": "Alice", "email": "a@x.com",
//	})
//	posts, err := db.Query("Post").
//		Where(query.Contains{Field: "title", Value: "go"}).
//		Include(query.Rel("author")).
//		Find(ctx)
package weft

import (
	"context"

	"github.com/weftdb/weft/engine"
	"github.com/weftdb/weft/query"
	"github.com/weftdb/weft/schema"
	"github.com/weftdb/weft/store"
)

// Client binds a validated schema, an engine and a store into the public
// API surface. Safe for concurrent use.
type Client struct {
	engine *engine.Engine
}

// Open compiles a schema definition and wires a client over st.
func Open(definition string, st store.Store, opts ...engine.Option) (*Client, error) {
	sch, err := schema.Load(definition)
	if err != nil {
		return nil, err
	}
	return NewClient(sch, st, opts...), nil
}

// NewClient wires a client over an already loaded schema.
func NewClient(sch *schema.Schema, st store.Store, opts ...engine.Option) *Client {
	return &Client{engine: engine.New(sch, st, opts...)}
}

// Schema returns the client's schema.
func (c *Client) Schema() *schema.Schema {
	return c.engine.Schema()
}

// Engine returns the underlying engine, for callers that work with
// descriptors directly.
func (c *Client) Engine() *engine.Engine {
	return c.engine
}

// Query starts a read of the named model.
func (c *Client) Query(model string) *Query {
	return &Query{c: c, b: query.Find(model)}
}

// Create inserts one record. Values are Go natives converted strictly:
// integer widths widen, nothing else coerces.
func (c *Client) Create(ctx context.Context, model string, values map[string]any) (*schema.Record, error) {
	b := query.Create(model)
	converted, err := convert(values)
	if err != nil {
		return nil, err
	}
	d, err := b.SetAll(converted).Build()
	if err != nil {
		return nil, err
	}
	return c.engine.Create(ctx, d)
}

// Update applies values to every record matching filter and returns the
// post-write records. Matching nothing is a success with an empty result.
func (c *Client) Update(ctx context.Context, model string, filter query.Filter, values map[string]any) ([]*schema.Record, error) {
	converted, err := convert(values)
	if err != nil {
		return nil, err
	}
	b := query.Update(model).SetAll(converted)
	if filter != nil {
		b = b.Where(filter)
	}
	d, err := b.Build()
	if err != nil {
		return nil, err
	}
	return c.engine.Update(ctx, d)
}

// Delete removes every record matching filter and returns how many went
// away. Matching nothing is a success with count zero.
func (c *Client) Delete(ctx context.Context, model string, filter query.Filter) (int64, error) {
	b := query.Delete(model)
	if filter != nil {
		b = b.Where(filter)
	}
	d, err := b.Build()
	if err != nil {
		return 0, err
	}
	return c.engine.Delete(ctx, d)
}

// Transaction runs fn against a client scoped to one transaction: either
// fn returns nil and everything commits, or nothing is observable
// afterward. Requires a store with transaction support.
func (c *Client) Transaction(ctx context.Context, fn func(tx *Client) error) error {
	return c.engine.Transaction(ctx, func(txEngine *engine.Engine) error {
		return fn(&Client{engine: txEngine})
	})
}

// Query accumulates a read fluently and executes it on the client's
// engine. Methods return the same Query for chaining; the underlying
// builder is pure, so nothing touches the store before Find or First.
type Query struct {
	c *Client
	b query.Builder
}

// Where narrows the query. Repeated calls conjoin.
func (q *Query) Where(f query.Filter) *Query {
	q.b = q.b.Where(f)
	return q
}

// Include resolves relations on the result.
func (q *Query) Include(incs ...query.Include) *Query {
	q.b = q.b.Include(incs...)
	return q
}

// Pick projects only the named fields.
func (q *Query) Pick(fields ...string) *Query {
	q.b = q.b.Pick(fields...)
	return q
}

// OrderBy appends ordering terms.
func (q *Query) OrderBy(orders ...query.Order) *Query {
	q.b = q.b.OrderBy(orders...)
	return q
}

// Limit caps the result size.
func (q *Query) Limit(n int) *Query {
	q.b = q.b.Limit(n)
	return q
}

// Offset skips leading rows of the ordered result.
func (q *Query) Offset(n int) *Query {
	q.b = q.b.Offset(n)
	return q
}

// Find executes the query and returns every match.
func (q *Query) Find(ctx context.Context) ([]*schema.Record, error) {
	d, err := q.b.Build()
	if err != nil {
		return nil, err
	}
	return q.c.engine.Find(ctx, d)
}

// First executes the query and returns the first match, or a not-found
// error.
func (q *Query) First(ctx context.Context) (*schema.Record, error) {
	d, err := q.b.Build()
	if err != nil {
		return nil, err
	}
	return q.c.engine.First(ctx, d)
}

// Descriptor returns the built descriptor without executing it.
func (q *Query) Descriptor() (query.Descriptor, error) {
	return q.b.Build()
}

func convert(values map[string]any) (map[string]schema.Value, error) {
	out := make(map[string]schema.Value, len(values))
	for k, v := range values {
		val, err := schema.ValueOf(v)
		if err != nil {
			return nil, err
		}
		out[k] = val
	}
	return out, nil
}

// Error helpers, so callers branch on error kind without importing every
// package in the taxonomy.

// IsSchemaError reports a schema definition rejected at load time.
func IsSchemaError(err error) bool { return schema.IsSchemaError(err) }

// IsNotFound reports a missing model or record.
func IsNotFound(err error) bool { return schema.IsNotFound(err) }

// IsTypeMismatch reports a value inconsistent with its declared type.
func IsTypeMismatch(err error) bool { return schema.IsTypeMismatch(err) }

// IsTooDeep reports an include tree past the depth limit.
func IsTooDeep(err error) bool { return query.IsTooDeep(err) }

// IsConstraintViolation reports a write rejected by a data constraint.
func IsConstraintViolation(err error) bool { return engine.IsConstraintViolation(err) }

// IsUnsupported reports an operation outside the store's capabilities.
func IsUnsupported(err error) bool { return engine.IsUnsupported(err) }

// IsValidation reports a descriptor that does not fit the schema.
func IsValidation(err error) bool { return engine.IsValidation(err) }

// ErrNestedTransaction is returned when a transaction is opened inside
// another.
var ErrNestedTransaction = engine.ErrNestedTransaction
