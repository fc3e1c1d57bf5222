package weft_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftdb/weft"
	"github.com/weftdb/weft/memstore"
	"github.com/weftdb/weft/query"
	"github.com/weftdb/weft/schema"
	"github.com/weftdb/weft/schema/schematest"
)

func open(t *testing.T) *weft.Client {
	t.Helper()
	sch := schematest.Load(t, schematest.Blog)
	return weft.NewClient(sch, memstore.ForSchema(sch))
}

func TestOpenCompilesSchema(t *testing.T) {
	sch := schematest.Load(t, schematest.Minimal)
	db, err := weft.Open(schematest.Minimal, memstore.ForSchema(sch))
	require.NoError(t, err)
	assert.Len(t, db.Schema().Models(), 1)
}

func TestOpenRejectsBrokenSchema(t *testing.T) {
	_, err := weft.Open(`models: {User: {fields: {id: {type: "int", id: true}, id2: {type: "int", id: true}}}}`, memstore.New())
	assert.True(t, weft.IsSchemaError(err))
}

func TestCreateAndQueryWithInclude(t *testing.T) {
	db := open(t)
	ctx := context.Background()

	alice, err := db.Create(ctx, "User", map[string]any{
		"name": "Alice", "email": "alice@example.com",
	})
	require.NoError(t, err)
	_, err = db.Create(ctx, "Post", map[string]any{
		"title": "Getting started", "authorId": alice.ID(),
	})
	require.NoError(t, err)

	posts, err := db.Query("Post").
		Where(query.Contains{Field: "title", Value: "started"}).
		Include(query.Rel("author")).
		Find(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 1)

	rel, ok := posts[0].Related("author")
	require.True(t, ok)
	author := rel.(schema.RelatedOne).Record
	name, _ := author.Get("name")
	assert.Equal(t, schema.String("Alice"), name)
}

func TestCreateConvertsNativesStrictly(t *testing.T) {
	db := open(t)
	ctx := context.Background()

	_, err := db.Create(ctx, "User", map[string]any{
		"name": "Alice", "email": "a@x", "createdAt": []string{"not", "scalar"},
	})
	assert.Error(t, err, "unsupported native types are rejected, not coerced")

	_, err = db.Create(ctx, "Post", map[string]any{
		"title": 42, "authorId": 1,
	})
	assert.True(t, weft.IsTypeMismatch(err), "an int is not a string title")
}

func TestDuplicateEmailIsConstraintViolation(t *testing.T) {
	db := open(t)
	ctx := context.Background()

	_, err := db.Create(ctx, "User", map[string]any{"name": "Alice", "email": "a@x"})
	require.NoError(t, err)
	_, err = db.Create(ctx, "User", map[string]any{"name": "Bob", "email": "a@x"})
	assert.True(t, weft.IsConstraintViolation(err))
}

func TestUpdateAndDelete(t *testing.T) {
	db := open(t)
	ctx := context.Background()

	_, err := db.Create(ctx, "User", map[string]any{"name": "Alice", "email": "a@x"})
	require.NoError(t, err)

	recs, err := db.Update(ctx, "User",
		query.Eq{Field: "email", Value: schema.String("a@x")},
		map[string]any{"name": "Alicia"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	name, _ := recs[0].Get("name")
	assert.Equal(t, schema.String("Alicia"), name)

	n, err := db.Delete(ctx, "User", query.Eq{Field: "name", Value: schema.String("Nobody")})
	require.NoError(t, err)
	assert.Zero(t, n, "deleting nothing is a success")

	n, err = db.Delete(ctx, "User", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestQueryFirst(t *testing.T) {
	db := open(t)
	ctx := context.Background()

	_, err := db.Query("User").
		Where(query.Eq{Field: "email", Value: schema.String("missing@x")}).
		First(ctx)
	assert.True(t, weft.IsNotFound(err))

	_, err = db.Create(ctx, "User", map[string]any{"name": "Alice", "email": "a@x"})
	require.NoError(t, err)
	rec, err := db.Query("User").First(ctx)
	require.NoError(t, err)
	assert.Equal(t, schema.Int(1), rec.ID())
}

func TestQueryBuilderIsReusable(t *testing.T) {
	db := open(t)
	ctx := context.Background()
	for _, u := range []map[string]any{
		{"name": "Alice", "email": "a@x"},
		{"name": "Bob", "email": "b@x"},
	} {
		_, err := db.Create(ctx, "User", u)
		require.NoError(t, err)
	}

	base := db.Query("User").OrderBy(query.Asc("name"))
	all, err := base.Find(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := base.Where(query.Eq{Field: "name", Value: schema.String("Bob")}).Find(ctx)
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

func TestTransactionAtomicity(t *testing.T) {
	db := open(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.Transaction(ctx, func(tx *weft.Client) error {
		if _, err := tx.Create(ctx, "User", map[string]any{"name": "Alice", "email": "a@x"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	users, err := db.Query("User").Find(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)

	err = db.Transaction(ctx, func(tx *weft.Client) error {
		_, err := tx.Create(ctx, "User", map[string]any{"name": "Alice", "email": "a@x"})
		return err
	})
	require.NoError(t, err)
	users, err = db.Query("User").Find(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestNestedTransactionRejected(t *testing.T) {
	db := open(t)
	err := db.Transaction(context.Background(), func(tx *weft.Client) error {
		return tx.Transaction(context.Background(), func(*weft.Client) error { return nil })
	})
	assert.ErrorIs(t, err, weft.ErrNestedTransaction)
}

func TestErrorHelpers(t *testing.T) {
	db := open(t)
	ctx := context.Background()

	_, err := db.Query("Widget").Find(ctx)
	assert.True(t, weft.IsNotFound(err))

	_, err = db.Query("User").Where(query.Eq{Field: "ghost", Value: schema.Int(1)}).Find(ctx)
	assert.True(t, weft.IsValidation(err))

	deep := query.Rel("posts").With(query.Rel("comments").With(query.Rel("post").With(query.Rel("author"))))
	_, err = db.Query("User").Include(deep).Find(ctx)
	assert.True(t, weft.IsTooDeep(err))
}
