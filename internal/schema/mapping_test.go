package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog(names ...string) *Catalog {
	c := NewCatalog("main")
	for _, n := range names {
		c.add(&Table{ID: TableIdentifier{Name: n}})
	}
	return c
}

func tableNames(tables []*Table) []string {
	var out []string
	for _, t := range tables {
		out = append(out, t.ID.Name)
	}
	return out
}

func TestParseTableMap(t *testing.T) {
	m, err := ParseTableMap([]string{"orders=orders_v2", ` "Items" = items `})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"ORDERS": "orders_v2", "ITEMS": "items"}, m)

	for _, bad := range [][]string{{"orders"}, {"=x"}, {"x="}, {"a=b", "A=c"}, {"a=x", "b=X"}} {
		_, err := ParseTableMap(bad)
		assert.Error(t, err, "%v", bad)
	}
}

func TestCatalog_Select(t *testing.T) {
	c := testCatalog("customers", "orders", "order_lines", "audit_log")

	tables, missing, err := c.Select([]string{"ORDER*", "customers", "orders", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, []string{"customers", "orders", "order_lines"}, tableNames(tables))
	assert.Equal(t, []string{"ghost"}, missing)

	tables, _, err = c.Select([]string{"*"})
	require.NoError(t, err)
	assert.Len(t, tables, 4)

	_, _, err = c.Select([]string{"[a"})
	assert.Error(t, err)
}
