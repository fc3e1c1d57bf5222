package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftdb/weft/memstore"
	"github.com/weftdb/weft/query"
	"github.com/weftdb/weft/schema"
	"github.com/weftdb/weft/schema/schematest"
	"github.com/weftdb/weft/store"
)

// stubStore counts dispatches and supports a configurable capability set.
// It proves the engine rejects work before any store contact.
type stubStore struct {
	caps  store.Caps
	calls int
}

func (s *stubStore) Capabilities() store.Capabilities {
	return store.Capabilities{Name: "stub", Caps: s.caps}
}

func (s *stubStore) FetchRows(ctx context.Context, table string, cond store.Cond, columns []string, order []store.Order, limit, offset int) ([]store.Row, error) {
	s.calls++
	return []store.Row{}, nil
}

func (s *stubStore) WriteRow(ctx context.Context, table string, values store.Row) (store.Row, error) {
	s.calls++
	return values.Clone(), nil
}

func (s *stubStore) UpdateRows(ctx context.Context, table string, cond store.Cond, values store.Row) ([]store.Row, error) {
	s.calls++
	return []store.Row{}, nil
}

func (s *stubStore) DeleteRows(ctx context.Context, table string, cond store.Cond) (int64, error) {
	s.calls++
	return 0, nil
}

func blogEngine(t *testing.T) *Engine {
	t.Helper()
	sch := schematest.Load(t, schematest.Blog)
	return New(sch, memstore.ForSchema(sch))
}

func mustCreate(t *testing.T, e *Engine, model string, values map[string]schema.Value) *schema.Record {
	t.Helper()
	d, err := query.Create(model).SetAll(values).Build()
	require.NoError(t, err)
	rec, err := e.Create(context.Background(), d)
	require.NoError(t, err)
	return rec
}

func mustFind(t *testing.T, e *Engine, b query.Builder) []*schema.Record {
	t.Helper()
	d, err := b.Build()
	require.NoError(t, err)
	recs, err := e.Find(context.Background(), d)
	require.NoError(t, err)
	return recs
}

func TestFindUnknownModelBeforeStoreContact(t *testing.T) {
	sch := schematest.Load(t, schematest.Blog)
	stub := &stubStore{caps: store.CapsFull}
	e := New(sch, stub)

	d, err := query.Find("Widget").Build()
	require.NoError(t, err)
	_, err = e.Find(context.Background(), d)
	assert.True(t, schema.IsNotFound(err))
	assert.Zero(t, stub.calls, "store must not be contacted for an unknown model")
}

func TestFindUnknownFieldBeforeStoreContact(t *testing.T) {
	sch := schematest.Load(t, schematest.Blog)
	stub := &stubStore{caps: store.CapsFull}
	e := New(sch, stub)

	d, err := query.Find("User").Where(query.Eq{Field: "nickname", Value: schema.String("x")}).Build()
	require.NoError(t, err)
	_, err = e.Find(context.Background(), d)
	assert.True(t, IsValidation(err))
	assert.Zero(t, stub.calls)
}

func TestFindFilterTypeMismatch(t *testing.T) {
	e := blogEngine(t)
	d, err := query.Find("User").Where(query.Eq{Field: "name", Value: schema.Int(7)}).Build()
	require.NoError(t, err)
	_, err = e.Find(context.Background(), d)
	assert.True(t, schema.IsTypeMismatch(err))
}

func TestIncludeDepthGateBeforeStoreContact(t *testing.T) {
	sch := schematest.Load(t, schematest.Blog)
	stub := &stubStore{caps: store.CapsFull}
	e := New(sch, stub)

	deep := query.Rel("posts").With(
		query.Rel("comments").With(
			query.Rel("post").With(
				query.Rel("author"))))
	d, err := query.Find("User").Include(deep).Build()
	require.NoError(t, err)

	_, err = e.Find(context.Background(), d)
	assert.True(t, query.IsTooDeep(err))
	assert.Zero(t, stub.calls, "depth gate must fire before any fetch")
}

func TestIncludeDepthLimitConfigurable(t *testing.T) {
	sch := schematest.Load(t, schematest.Blog)
	e := New(sch, memstore.ForSchema(sch), WithMaxIncludeDepth(1))

	d, err := query.Find("User").Include(query.Rel("posts").With(query.Rel("comments"))).Build()
	require.NoError(t, err)
	_, err = e.Find(context.Background(), d)
	assert.True(t, query.IsTooDeep(err))
}

func TestCapabilityGateOrdering(t *testing.T) {
	sch := schematest.Load(t, schematest.Blog)
	stub := &stubStore{caps: store.CapCompare | store.CapIn}
	e := New(sch, stub)

	d, err := query.Find("User").OrderBy(query.Asc("name")).Build()
	require.NoError(t, err)
	_, err = e.Find(context.Background(), d)
	assert.True(t, IsUnsupported(err))
	assert.Zero(t, stub.calls, "gating happens before dispatch")
}

func TestCapabilityGateFilterShape(t *testing.T) {
	sch := schematest.Load(t, schematest.Blog)
	stub := &stubStore{}
	e := New(sch, stub)

	d, err := query.Find("User").Where(query.Lt{Field: "name", Value: schema.String("m")}).Build()
	require.NoError(t, err)
	_, err = e.Find(context.Background(), d)
	assert.True(t, IsUnsupported(err))
	assert.Zero(t, stub.calls)
}

func TestBareLimitNeedsNoOrdering(t *testing.T) {
	// A store without CapOrder must still serve First, which is Limit 1
	// without explicit ordering.
	sch := schematest.Load(t, schematest.Blog)
	stub := &stubStore{caps: store.CapCompare}
	e := New(sch, stub)

	d, err := query.Find("User").Limit(1).Build()
	require.NoError(t, err)
	_, err = e.Find(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, 1, stub.calls)
}

func TestCreateAppliesDefaults(t *testing.T) {
	e := blogEngine(t)
	alice := mustCreate(t, e, "User", map[string]schema.Value{
		"name":  schema.String("Alice"),
		"email": schema.String("alice@example.com"),
	})
	post := mustCreate(t, e, "Post", map[string]schema.Value{
		"title":    schema.String("Hello"),
		"authorId": alice.ID(),
	})

	published, ok := post.Get("published")
	require.True(t, ok)
	assert.Equal(t, schema.Bool(false), published)
	views, ok := post.Get("views")
	require.True(t, ok)
	assert.Equal(t, schema.Int(0), views)
	assert.Equal(t, schema.Int(1), post.ID(), "store assigns the identifier")
}

func TestCreateGenerators(t *testing.T) {
	const src = `
models: {
	Doc: {
		fields: {
			id:     {type: "string", id: true, generate: "uuid"}
			madeAt: {type: "time", generate: "now"}
			title:  {type: "string", default: "untitled"}
		}
	}
}
`
	sch := schematest.Load(t, src)
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	e := New(sch, memstore.ForSchema(sch),
		WithClock(func() time.Time { return at }),
		WithIDGenerator(fixedID("doc-1")),
	)

	rec := mustCreate(t, e, "Doc", map[string]schema.Value{})
	assert.Equal(t, schema.String("doc-1"), rec.ID())
	madeAt, _ := rec.Get("madeAt")
	assert.Equal(t, schema.Time(at), madeAt)
	title, _ := rec.Get("title")
	assert.Equal(t, schema.String("untitled"), title)
}

type fixedID string

func (f fixedID) Generate() string { return string(f) }

func TestCreateMissingRequiredField(t *testing.T) {
	e := blogEngine(t)
	d, err := query.Create("Post").Set("title", schema.String("orphan")).Build()
	require.NoError(t, err)
	_, err = e.Create(context.Background(), d)

	var cv *ConstraintViolationError
	require.ErrorAs(t, err, &cv)
	assert.Equal(t, ConstraintRequired, cv.Kind)
	assert.Equal(t, "authorId", cv.Field)
}

func TestCreateDuplicateUnique(t *testing.T) {
	e := blogEngine(t)
	mustCreate(t, e, "User", map[string]schema.Value{
		"name":  schema.String("Alice"),
		"email": schema.String("a@example.com"),
	})

	d, err := query.Create("User").
		Set("name", schema.String("Also Alice")).
		Set("email", schema.String("a@example.com")).
		Build()
	require.NoError(t, err)
	_, err = e.Create(context.Background(), d)

	var cv *ConstraintViolationError
	require.ErrorAs(t, err, &cv)
	assert.Equal(t, ConstraintUnique, cv.Kind)
	assert.Equal(t, "email", cv.Field)
	assert.Equal(t, schema.String("a@example.com"), cv.Value)
}

func TestCreateRejectsUnknownField(t *testing.T) {
	e := blogEngine(t)
	d, err := query.Create("User").Set("nickname", schema.String("al")).Build()
	require.NoError(t, err)
	_, err = e.Create(context.Background(), d)
	assert.True(t, IsValidation(err))
}

func TestCreateRejectsRelationValue(t *testing.T) {
	e := blogEngine(t)
	d, err := query.Create("Post").Set("author", schema.Int(1)).Build()
	require.NoError(t, err)
	_, err = e.Create(context.Background(), d)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "foreign key")
}

func TestUpdateReturnsPostWriteRecords(t *testing.T) {
	e := blogEngine(t)
	alice := mustCreate(t, e, "User", map[string]schema.Value{
		"name":  schema.String("Alice"),
		"email": schema.String("a@example.com"),
	})
	mustCreate(t, e, "Post", map[string]schema.Value{
		"title": schema.String("one"), "authorId": alice.ID(),
	})
	mustCreate(t, e, "Post", map[string]schema.Value{
		"title": schema.String("two"), "authorId": alice.ID(),
	})

	d, err := query.Update("Post").
		Where(query.Eq{Field: "authorId", Value: alice.ID()}).
		Set("published", schema.Bool(true)).
		Build()
	require.NoError(t, err)
	recs, err := e.Update(context.Background(), d)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	for _, r := range recs {
		v, _ := r.Get("published")
		assert.Equal(t, schema.Bool(true), v)
	}
}

func TestUpdateNoMatchIsEmptySuccess(t *testing.T) {
	e := blogEngine(t)
	d, err := query.Update("User").
		Where(query.Eq{Field: "email", Value: schema.String("none@example.com")}).
		Set("name", schema.String("n")).
		Build()
	require.NoError(t, err)
	recs, err := e.Update(context.Background(), d)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestUpdateWithoutValues(t *testing.T) {
	e := blogEngine(t)
	d, err := query.Update("User").Where(query.Eq{Field: "id", Value: schema.Int(1)}).Build()
	require.NoError(t, err)
	_, err = e.Update(context.Background(), d)
	assert.True(t, IsValidation(err))
}

func TestUpdateIdentifierImmutable(t *testing.T) {
	e := blogEngine(t)
	d, err := query.Update("User").Set("id", schema.Int(9)).Build()
	require.NoError(t, err)
	_, err = e.Update(context.Background(), d)
	assert.True(t, IsValidation(err))
}

func TestUpdateNullOnNonNullable(t *testing.T) {
	e := blogEngine(t)
	d, err := query.Update("User").Set("name", schema.Null{}).Build()
	require.NoError(t, err)
	_, err = e.Update(context.Background(), d)

	var cv *ConstraintViolationError
	require.ErrorAs(t, err, &cv)
	assert.Equal(t, ConstraintRequired, cv.Kind)
}

func TestDeleteCountsAndToleratesNoMatch(t *testing.T) {
	e := blogEngine(t)
	mustCreate(t, e, "User", map[string]schema.Value{
		"name": schema.String("Alice"), "email": schema.String("a@example.com"),
	})
	mustCreate(t, e, "User", map[string]schema.Value{
		"name": schema.String("Bob"), "email": schema.String("b@example.com"),
	})

	d, err := query.Delete("User").Where(query.Eq{Field: "name", Value: schema.String("Bob")}).Build()
	require.NoError(t, err)
	n, err := e.Delete(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = e.Delete(context.Background(), d)
	require.NoError(t, err)
	assert.Zero(t, n, "matching nothing is a success with count zero")
}

func TestFirstNotFound(t *testing.T) {
	e := blogEngine(t)
	d, err := query.Find("User").Where(query.Eq{Field: "email", Value: schema.String("x@example.com")}).Build()
	require.NoError(t, err)
	_, err = e.First(context.Background(), d)

	var nf *schema.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "User", nf.Model)
	assert.Equal(t, schema.String("x@example.com"), nf.Key)
}

func TestFindFilterOrderAndPagination(t *testing.T) {
	e := blogEngine(t)
	for _, u := range []struct{ name, email string }{
		{"Carol", "c@example.com"},
		{"Alice", "a@example.com"},
		{"Dave", "d@example.com"},
		{"Bob", "b@example.com"},
	} {
		mustCreate(t, e, "User", map[string]schema.Value{
			"name": schema.String(u.name), "email": schema.String(u.email),
		})
	}

	recs := mustFind(t, e, query.Find("User").
		Where(query.Ne{Field: "name", Value: schema.String("Dave")}).
		OrderBy(query.Asc("name")).
		Limit(2).
		Offset(1))
	require.Len(t, recs, 2)
	first, _ := recs[0].Get("name")
	second, _ := recs[1].Get("name")
	assert.Equal(t, schema.String("Bob"), first)
	assert.Equal(t, schema.String("Carol"), second)
}

func TestFindProjectionHidesUnpickedFields(t *testing.T) {
	e := blogEngine(t)
	mustCreate(t, e, "User", map[string]schema.Value{
		"name": schema.String("Alice"), "email": schema.String("a@example.com"),
	})

	recs := mustFind(t, e, query.Find("User").Pick("name"))
	require.Len(t, recs, 1)
	_, ok := recs[0].Get("email")
	assert.False(t, ok, "unpicked field must not surface")
	name, ok := recs[0].Get("name")
	require.True(t, ok)
	assert.Equal(t, schema.String("Alice"), name)
}

func TestFindHasRelationFilter(t *testing.T) {
	e := blogEngine(t)
	alice := mustCreate(t, e, "User", map[string]schema.Value{
		"name": schema.String("Alice"), "email": schema.String("a@example.com"),
	})
	bob := mustCreate(t, e, "User", map[string]schema.Value{
		"name": schema.String("Bob"), "email": schema.String("b@example.com"),
	})
	mustCreate(t, e, "Post", map[string]schema.Value{
		"title": schema.String("go tips"), "authorId": alice.ID(), "published": schema.Bool(true),
	})
	mustCreate(t, e, "Post", map[string]schema.Value{
		"title": schema.String("draft"), "authorId": bob.ID(),
	})

	recs := mustFind(t, e, query.Find("User").
		Where(query.Has{Relation: "posts", Filter: query.Eq{Field: "published", Value: schema.Bool(true)}}))
	require.Len(t, recs, 1)
	name, _ := recs[0].Get("name")
	assert.Equal(t, schema.String("Alice"), name)
}

func TestFindHasMatchingNothing(t *testing.T) {
	e := blogEngine(t)
	mustCreate(t, e, "User", map[string]schema.Value{
		"name": schema.String("Alice"), "email": schema.String("a@example.com"),
	})

	recs := mustFind(t, e, query.Find("User").Where(query.Has{Relation: "posts"}))
	assert.Empty(t, recs)
}

func TestFindStrictRowMapping(t *testing.T) {
	// A row whose stored value drifted from the declared kind surfaces as a
	// type mismatch, never a silent coercion.
	sch := schematest.Load(t, schematest.Minimal)
	ms := memstore.ForSchema(sch)
	_, err := ms.WriteRow(context.Background(), "item", store.Row{
		"name": schema.Int(42),
	})
	require.NoError(t, err)

	e := New(sch, ms)
	d, err := query.Find("Item").Build()
	require.NoError(t, err)
	_, err = e.Find(context.Background(), d)
	assert.True(t, schema.IsTypeMismatch(err))
}

func TestFindNullIdentifierIsTypeMismatch(t *testing.T) {
	// Identifiers are never nullable, so a null one in a stored row is a
	// mapping error like any other non-nullable column.
	sch := schematest.Load(t, schematest.Minimal)
	ms := memstore.New()
	ms.CreateTable("item", memstore.TableSpec{})
	_, err := ms.WriteRow(context.Background(), "item", store.Row{
		"id": schema.Null{}, "name": schema.String("ghost"),
	})
	require.NoError(t, err)

	e := New(sch, ms)
	d, err := query.Find("Item").Build()
	require.NoError(t, err)
	_, err = e.Find(context.Background(), d)
	assert.True(t, schema.IsTypeMismatch(err))
}
