package schema_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"db-reconcile/internal/dialect"
	"db-reconcile/internal/schema"
)

func newMock(t *testing.T) (sqlmock.Sqlmock, schema.Querier) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return mock, db
}

func TestAnalyze_BuildsCatalog(t *testing.T) {
	mock, db := newMock(t)
	d := &dialect.PostgresDialect{}

	mock.ExpectQuery(d.GetTablesQuery()).WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).
			AddRow("orders").AddRow("customers").AddRow("order_lines"))
	mock.ExpectQuery(d.GetColumnsQuery()).WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"t", "c", "type", "len", "nullable", "def"}).
			AddRow("customers", "id", "integer", nil, "NO", nil).
			AddRow("customers", "name", "character varying", "80", "YES", nil).
			AddRow("orders", "id", "bigint", nil, "NO", "nextval('orders_id_seq')").
			AddRow("orders", "customer_id", "integer", nil, "NO", nil).
			AddRow("order_lines", "order_id", "bigint", nil, "NO", nil).
			AddRow("order_lines", "line_no", "integer", nil, "NO", nil).
			AddRow("order_lines", "parent_line", "integer", nil, "YES", nil))
	mock.ExpectQuery(d.GetPrimaryKeysQuery()).WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"t", "c"}).
			AddRow("customers", "id").
			AddRow("orders", "id").
			AddRow("order_lines", "order_id").
			AddRow("order_lines", "line_no"))
	mock.ExpectQuery(d.GetForeignKeysQuery()).WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"t", "name", "c", "rt", "rc"}).
			AddRow("orders", "fk_orders_customer", "customer_id", "customers", "id").
			AddRow("orders", "fk_orders_customer_dup", "customer_id", "customers", "id").
			AddRow("order_lines", "fk_lines_order", "order_id", "orders", "id").
			AddRow("order_lines", "fk_lines_parent", "order_id", "order_lines", "order_id").
			AddRow("order_lines", "fk_lines_parent", "parent_line", "order_lines", "line_no").
			AddRow("order_lines", "fk_lines_ext", "order_id", "archive", "id"))

	catalog, err := schema.Analyze(context.Background(), db, d, "")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, catalog.Tables, 3)
	assert.Equal(t, "public", catalog.Schema)

	customers := catalog.Table("CUSTOMERS")
	require.NotNil(t, customers)
	assert.Equal(t, []string{"id"}, customers.PrimaryKey)
	assert.Equal(t, 80, customers.Column("name").Length)
	assert.Equal(t, dialect.TypeVarchar, customers.Column("name").Generic)
	assert.True(t, customers.Column("ID").IsPK)
	assert.False(t, customers.Column("name").IsPK)

	orders := catalog.Table(`"orders"`)
	require.NotNil(t, orders)
	assert.Equal(t, []string{"CUSTOMERS"}, orders.Dependencies, "duplicate FK edges collapse")
	assert.Len(t, orders.ForeignKeys, 2)

	lines := catalog.Table("order_lines")
	require.NotNil(t, lines)
	assert.Equal(t, []string{"order_id", "line_no"}, lines.PrimaryKey)
	assert.Equal(t, []string{"ORDERS"}, lines.Dependencies, "self and unknown references are not dependencies")
	assert.True(t, lines.IsSelfReferencing())

	var parent *schema.ForeignKey
	for _, fk := range lines.ForeignKeys {
		if fk.Name == "fk_lines_parent" {
			parent = fk
		}
	}
	require.NotNil(t, parent)
	assert.Equal(t, []string{"order_id", "parent_line"}, parent.Columns)
	assert.Equal(t, []string{"order_id", "line_no"}, parent.RefColumns)
}

func TestAnalyze_QueryError(t *testing.T) {
	mock, db := newMock(t)
	d := &dialect.MysqlDialect{}

	mock.ExpectQuery(d.GetTablesQuery()).WithArgs("shop").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("a"))
	mock.ExpectQuery(d.GetColumnsQuery()).WithArgs("shop").
		WillReturnError(errors.New("connection reset"))

	_, err := schema.Analyze(context.Background(), db, d, "shop")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to query columns")
	assert.Contains(t, err.Error(), "connection reset")
}

func TestAnalyzeDetails_SkipsUnsupportedQueries(t *testing.T) {
	mock, db := newMock(t)
	d := &dialect.SQLiteDialect{}

	mock.ExpectQuery(d.GetTablesQuery()).WithArgs("main").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("items"))
	mock.ExpectQuery(d.GetColumnsQuery()).WithArgs("main").
		WillReturnRows(sqlmock.NewRows([]string{"t", "c", "type", "len", "nullable", "def"}))
	mock.ExpectQuery(d.GetPrimaryKeysQuery()).WithArgs("main").
		WillReturnRows(sqlmock.NewRows([]string{"t", "c"}))
	mock.ExpectQuery(d.GetForeignKeysQuery()).WithArgs("main").
		WillReturnRows(sqlmock.NewRows([]string{"t", "name", "c", "rt", "rc"}))

	catalog, err := schema.Analyze(context.Background(), db, d, "")
	require.NoError(t, err)

	mock.ExpectQuery(d.GetIndexesQuery()).WithArgs("main").
		WillReturnRows(sqlmock.NewRows([]string{"t", "i", "c", "u"}).
			AddRow("items", "ux_items_code", "code", "YES").
			AddRow("items", "ux_items_code", "region", "YES").
			AddRow("items", "ix_items_name", "name", "NO"))
	mock.ExpectQuery(d.GetTriggersQuery()).WithArgs("main").
		WillReturnRows(sqlmock.NewRows([]string{"t", "n", "src"}).
			AddRow("items", "trg_items", "CREATE TRIGGER trg_items ..."))

	// checks, partitions and grants have no sqlite query and must not hit the db
	err = schema.AnalyzeDetails(context.Background(), db, d, catalog, schema.DetailOptions{
		Indexes: true, Checks: true, Triggers: true, Partitions: true, Grants: true,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	items := catalog.Table("items")
	require.Len(t, items.Indexes, 2)
	assert.Equal(t, []string{"code", "region"}, items.Indexes[0].Columns)
	assert.True(t, items.Indexes[0].IsUnique)
	assert.False(t, items.Indexes[1].IsUnique)
	require.Len(t, items.Triggers, 1)
	assert.Empty(t, items.Checks)
}

func TestAnalyzeObjects(t *testing.T) {
	mock, db := newMock(t)
	d := &dialect.OracleDialect{}

	mock.ExpectQuery(d.GetViewsQuery()).WithArgs("HR").
		WillReturnRows(sqlmock.NewRows([]string{"n", "def"}).AddRow("V_EMP", "SELECT * FROM EMP"))
	mock.ExpectQuery(d.GetSequencesQuery()).WithArgs("HR").
		WillReturnRows(sqlmock.NewRows([]string{"n", "def"}).AddRow("EMP_SEQ", "INCREMENT BY 1"))

	objects, err := schema.AnalyzeObjects(context.Background(), db, d, "hr", schema.ObjectOptions{
		Views: true, Sequences: true,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	require.Len(t, objects.Views, 1)
	assert.Equal(t, "V_EMP", objects.Views[0].Name)
	require.Len(t, objects.Sequences, 1)
	assert.Empty(t, objects.Procedures)
}

func TestCatalog_ReferencingClosure(t *testing.T) {
	mock, db := newMock(t)
	d := &dialect.SQLiteDialect{}

	mock.ExpectQuery(d.GetTablesQuery()).WithArgs("main").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).
			AddRow("a").AddRow("b").AddRow("c").AddRow("d"))
	mock.ExpectQuery(d.GetColumnsQuery()).WithArgs("main").
		WillReturnRows(sqlmock.NewRows([]string{"t", "c", "type", "len", "nullable", "def"}))
	mock.ExpectQuery(d.GetPrimaryKeysQuery()).WithArgs("main").
		WillReturnRows(sqlmock.NewRows([]string{"t", "c"}))
	mock.ExpectQuery(d.GetForeignKeysQuery()).WithArgs("main").
		WillReturnRows(sqlmock.NewRows([]string{"t", "name", "c", "rt", "rc"}).
			AddRow("b", "fk1", "a_id", "a", "id").
			AddRow("c", "fk2", "b_id", "b", "id"))

	catalog, err := schema.Analyze(context.Background(), db, d, "")
	require.NoError(t, err)

	closure := catalog.ReferencingClosure([]*schema.Table{catalog.Table("a")})
	assert.Equal(t, []string{"a", "b", "c"}, names(closure))
}
