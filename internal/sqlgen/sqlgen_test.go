package sqlgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftdb/weft/schema"
	"github.com/weftdb/weft/store"
)

func TestSelectSQLite(t *testing.T) {
	cond := store.And{Conds: []store.Cond{
		store.Cmp{Col: "age", Op: store.OpGe, Val: schema.Int(18)},
		store.Contains{Col: "name", Val: "li"},
	}}
	sql, params, err := Select(SQLite, "user", []string{"id", "name"}, cond,
		[]store.Order{{Col: "name"}, {Col: "id", Desc: true}}, 10, 5)
	require.NoError(t, err)

	assert.Equal(t,
		`SELECT "id", "name" FROM "user" WHERE ("age" >= ?) AND (instr("name", ?) > 0) ORDER BY "name" ASC, "id" DESC LIMIT 10 OFFSET 5`,
		sql)
	assert.Equal(t, []schema.Value{schema.Int(18), schema.String("li")}, params)
}

func TestSelectPostgresPlaceholders(t *testing.T) {
	cond := store.Or{Conds: []store.Cond{
		store.Cmp{Col: "a", Op: store.OpEq, Val: schema.Int(1)},
		store.Cmp{Col: "b", Op: store.OpEq, Val: schema.Int(2)},
	}}
	sql, params, err := Select(Postgres, "t", nil, cond, nil, 0, 0)
	require.NoError(t, err)

	assert.Equal(t, `SELECT * FROM "t" WHERE ("a" = $1) OR ("b" = $2)`, sql)
	assert.Len(t, params, 2)
}

func TestSelectOffsetWithoutLimit(t *testing.T) {
	// SQLite refuses OFFSET without LIMIT; Postgres takes it as-is.
	sql, _, err := Select(SQLite, "t", nil, nil, nil, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "t" LIMIT -1 OFFSET 3`, sql)

	sql, _, err = Select(Postgres, "t", nil, nil, nil, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "t" OFFSET 3`, sql)
}

func TestCompileIn(t *testing.T) {
	sql, params, err := Select(SQLite, "t", nil,
		store.In{Col: "id", Vals: []schema.Value{schema.Int(1), schema.Int(2), schema.Int(3)}},
		nil, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "t" WHERE "id" IN (?, ?, ?)`, sql)
	assert.Len(t, params, 3)
}

func TestCompileEmptyJunctions(t *testing.T) {
	sql, params, err := Select(SQLite, "t", nil, store.In{Col: "id"}, nil, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "t" WHERE 1 = 0`, sql, "empty membership is constant false, not IN ()")
	assert.Empty(t, params)

	sql, _, err = Select(SQLite, "t", nil, store.And{}, nil, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "t" WHERE 1 = 1`, sql)

	sql, _, err = Select(SQLite, "t", nil, store.Or{}, nil, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "t" WHERE 1 = 0`, sql)
}

func TestCompileNotAndIsNull(t *testing.T) {
	sql, params, err := Select(Postgres, "t", nil,
		store.Not{Cond: store.IsNull{Col: "deletedAt"}}, nil, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "t" WHERE NOT ("deletedAt" IS NULL)`, sql)
	assert.Empty(t, params)
}

func TestPostgresContainsUsesStrpos(t *testing.T) {
	sql, params, err := Select(Postgres, "t", nil, store.Contains{Col: "name", Val: "Li"}, nil, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "t" WHERE strpos("name", $1) > 0`, sql)
	assert.Equal(t, []schema.Value{schema.String("Li")}, params)
}

func TestInsertSortsColumns(t *testing.T) {
	sql, params := Insert(SQLite, "user", store.Row{
		"name": schema.String("Alice"),
		"age":  schema.Int(30),
		"id":   schema.Int(1),
	})
	assert.Equal(t, `INSERT INTO "user" ("age", "id", "name") VALUES (?, ?, ?)`, sql)
	assert.Equal(t, []schema.Value{schema.Int(30), schema.Int(1), schema.String("Alice")}, params)
}

func TestUpdateThreadsParams(t *testing.T) {
	sql, params, err := Update(Postgres, "user",
		store.Row{"name": schema.String("Bob")},
		store.Cmp{Col: "id", Op: store.OpEq, Val: schema.Int(7)})
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "user" SET "name" = $1 WHERE "id" = $2`, sql)
	assert.Equal(t, []schema.Value{schema.String("Bob"), schema.Int(7)}, params)
}

func TestDelete(t *testing.T) {
	sql, params, err := Delete(SQLite, "user", store.Cmp{Col: "id", Op: store.OpEq, Val: schema.Int(7)})
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "user" WHERE "id" = ?`, sql)
	assert.Len(t, params, 1)

	sql, params, err = Delete(SQLite, "user", nil)
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "user"`, sql)
	assert.Empty(t, params)
}

func TestQuoteEscapesIdentifiers(t *testing.T) {
	sql, _, err := Select(SQLite, `we"ird`, nil, nil, nil, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "we""ird"`, sql)
}
