package dbconn

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"db-reconcile/internal/dialect"
	"db-reconcile/internal/schema"
)

func openSQLite(t *testing.T, ddl ...string) *Conn {
	t.Helper()
	cfg := &Config{Name: "test", Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "test.db")}
	c, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	for _, stmt := range ddl {
		_, err := c.DB().Exec(stmt)
		require.NoError(t, err, stmt)
	}
	return c
}

func TestOpen_Validation(t *testing.T) {
	_, err := Open(context.Background(), &Config{Name: "x"}, nil)
	assert.Error(t, err)
}

func TestConn_Metadata(t *testing.T) {
	c := openSQLite(t,
		`CREATE TABLE parent (id INTEGER PRIMARY KEY, name VARCHAR(20) NOT NULL)`,
		`CREATE TABLE child (id INTEGER, seq INTEGER, parent_id INTEGER REFERENCES parent(id), PRIMARY KEY (id, seq))`,
		`CREATE TABLE loose (a TEXT, b BLOB)`,
	)
	ctx := context.Background()

	assert.Equal(t, "main", c.Schema())
	assert.Equal(t, "sqlite", c.Dialect().Name())

	tables, err := c.ListTables(ctx)
	require.NoError(t, err)
	assert.Len(t, tables, 3)

	pk, err := c.GetPrimaryKey(ctx, "CHILD")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "seq"}, pk)

	pk, err = c.GetPrimaryKey(ctx, "loose")
	require.NoError(t, err)
	assert.Empty(t, pk)

	cols, err := c.ListColumns(ctx, "parent")
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, dialect.TypeVarchar, cols[1].Generic)
	assert.False(t, cols[1].IsNullable)

	fks, err := c.GetForeignKeys(ctx, "child")
	require.NoError(t, err)
	require.Len(t, fks, 1)
	assert.Equal(t, "parent", fks[0].RefTable)
	assert.Equal(t, []string{"parent_id"}, fks[0].Columns)

	parent, err := c.Table(ctx, "parent")
	require.NoError(t, err)
	refs, err := c.GetReferencingTables(ctx, []*schema.Table{parent})
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "child", refs[0].ID.Name)

	missing, err := c.Table(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
	_, err = c.ListColumns(ctx, "nope")
	assert.Error(t, err)
}

func TestConn_CatalogIsCached(t *testing.T) {
	c := openSQLite(t, `CREATE TABLE a (id INTEGER PRIMARY KEY)`)
	ctx := context.Background()

	first, err := c.Catalog(ctx)
	require.NoError(t, err)

	_, err = c.DB().Exec(`CREATE TABLE b (id INTEGER PRIMARY KEY)`)
	require.NoError(t, err)

	second, err := c.Catalog(ctx)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Nil(t, second.Table("b"))

	c.Refresh()
	third, err := c.Catalog(ctx)
	require.NoError(t, err)
	assert.NotNil(t, third.Table("b"))
}

func TestConn_Acquire(t *testing.T) {
	c := openSQLite(t)

	release, err := c.Acquire()
	require.NoError(t, err)

	_, err = c.Acquire()
	assert.True(t, errors.Is(err, ErrBusy))

	release()
	release() // idempotent

	again, err := c.Acquire()
	require.NoError(t, err)
	again()
}

func TestConn_QueryOrdered(t *testing.T) {
	c := openSQLite(t,
		`CREATE TABLE t (code VARCHAR(10) PRIMARY KEY, n INTEGER, data BLOB)`,
		`INSERT INTO t VALUES ('b', 2, X'01'), ('B', 1, NULL), ('a', 3, X'FF')`,
	)
	ctx := context.Background()
	table, err := c.Table(ctx, "t")
	require.NoError(t, err)

	cur, err := c.QueryOrdered(ctx, table, []string{"code", "n", "data"}, []string{"code"})
	require.NoError(t, err)
	defer cur.Close()

	var codes []string
	for cur.Next() {
		row := cur.Row()
		codes = append(codes, row[0].(string))
		if row[0] == "a" {
			assert.Equal(t, []byte{0xff}, row[2])
		}
		if row[0] == "B" {
			assert.Nil(t, row[2])
		}
	}
	require.NoError(t, cur.Err())
	assert.Equal(t, []string{"B", "a", "b"}, codes)
	assert.Equal(t, 3, cur.Read())
}

func TestOrderedQuery(t *testing.T) {
	table := &schema.Table{
		ID: schema.TableIdentifier{Schema: "shop", Name: "orders"},
		Columns: []*schema.Column{
			{Name: "region", Generic: dialect.TypeVarchar},
			{Name: "id", Generic: dialect.TypeInteger},
			{Name: "note", Generic: dialect.TypeText},
		},
	}

	q := OrderedQuery(&dialect.MysqlDialect{}, table, []string{"region", "id", "note"}, []string{"region", "id"})
	assert.Equal(t, "SELECT region, id, note FROM shop.orders ORDER BY BINARY region, id", q)

	q = OrderedQuery(&dialect.PostgresDialect{}, table, []string{"id"}, nil)
	assert.Equal(t, "SELECT id FROM shop.orders", q)

	table.Column("region").IsNullable = true
	q = OrderedQuery(&dialect.PostgresDialect{}, table, []string{"id"}, []string{"region", "id"})
	assert.Equal(t, `SELECT id FROM shop.orders ORDER BY region COLLATE "C" NULLS FIRST, id`, q)

	q = OrderedQuery(&dialect.MysqlDialect{}, table, []string{"id"}, []string{"region", "id"})
	assert.Equal(t, "SELECT id FROM shop.orders ORDER BY BINARY region, id", q, "mysql already sorts NULL first")
}
