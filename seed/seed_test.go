package seed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftdb/weft"
	"github.com/weftdb/weft/memstore"
	"github.com/weftdb/weft/query"
	"github.com/weftdb/weft/schema"
	"github.com/weftdb/weft/schema/schematest"
)

const blogSeed = `
name: blog-dev
models:
  - model: User
    rows:
      - {name: Alice, email: a@example.com}
      - {name: Bob, email: b@example.com}
  - model: Post
    rows:
      - {title: intro, authorId: 1}
      - {title: reply, authorId: 2, published: true}
`

func blogClient(t *testing.T) *weft.Client {
	t.Helper()
	sch := schematest.Load(t, schematest.Blog)
	return weft.NewClient(sch, memstore.ForSchema(sch))
}

func TestLoadParsesDataset(t *testing.T) {
	ds, err := Load([]byte(blogSeed))
	require.NoError(t, err)
	assert.Equal(t, "blog-dev", ds.Name)
	require.Len(t, ds.Models, 2)
	assert.Equal(t, "User", ds.Models[0].Model)
	assert.Len(t, ds.Models[1].Rows, 2)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load([]byte(`
models:
  - model: User
    rowz:
      - {name: Alice}
`))
	assert.Error(t, err, "strict decoding catches dataset typos")
}

func TestLoadRejectsBatchWithoutModel(t *testing.T) {
	_, err := Load([]byte(`
models:
  - rows:
      - {name: Alice}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no model")
}

func TestApplyCreatesInDeclarationOrder(t *testing.T) {
	db := blogClient(t)
	ds, err := Load([]byte(blogSeed))
	require.NoError(t, err)

	res, err := Apply(context.Background(), db, ds)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Total)
	assert.Equal(t, map[string]int{"User": 2, "Post": 2}, res.Created)

	// Posts reference users created earlier in the same dataset.
	posts, err := db.Query("Post").Include(query.Rel("author")).Find(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 2)
	for _, p := range posts {
		rel, ok := p.Related("author")
		require.True(t, ok)
		assert.IsType(t, schema.RelatedOne{}, rel)
	}
}

func TestApplyIsAtomicOnTransactionalStores(t *testing.T) {
	db := blogClient(t)
	ds, err := Load([]byte(`
models:
  - model: User
    rows:
      - {name: Alice, email: a@example.com}
      - {name: Imposter, email: a@example.com}
`))
	require.NoError(t, err)

	_, err = Apply(context.Background(), db, ds)
	require.Error(t, err)
	assert.True(t, weft.IsConstraintViolation(err))

	users, err := db.Query("User").Find(context.Background())
	require.NoError(t, err)
	assert.Empty(t, users, "a failed dataset lands not at all")
}

func TestApplyReportsRowContext(t *testing.T) {
	db := blogClient(t)
	ds, err := Load([]byte(`
models:
  - model: User
    rows:
      - {name: Alice, email: a@example.com}
      - {name: Bob}
`))
	require.NoError(t, err)

	_, err = Apply(context.Background(), db, ds)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seed User row 1")
}
