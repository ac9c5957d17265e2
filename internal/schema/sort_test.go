package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"db-reconcile/internal/schema"
)

func table(name string, refs ...string) *schema.Table {
	t := &schema.Table{ID: schema.TableIdentifier{Name: name}}
	for _, r := range refs {
		t.ForeignKeys = append(t.ForeignKeys, &schema.ForeignKey{Name: "fk_" + name + "_" + r, RefTable: r})
	}
	return t
}

func names(tables []*schema.Table) []string {
	out := make([]string, 0, len(tables))
	for _, t := range tables {
		out = append(out, t.ID.Name)
	}
	return out
}

func position(order []string) map[string]int {
	pos := make(map[string]int, len(order))
	for i, n := range order {
		pos[n] = i
	}
	return pos
}

func TestSortForInsert_ParentChild(t *testing.T) {
	tables := []*schema.Table{table("CHILD", "PARENT"), table("PARENT")}

	ins, warnings := schema.SortForInsert(tables)
	assert.Equal(t, []string{"PARENT", "CHILD"}, names(ins))
	assert.Empty(t, warnings)

	del, _ := schema.SortForDelete(tables)
	assert.Equal(t, []string{"CHILD", "PARENT"}, names(del))
}

func TestSortForInsert_Chain(t *testing.T) {
	// Users -> Orders -> OrderItems
	tables := []*schema.Table{
		table("OrderItems", "Orders"),
		table("Orders", "Users"),
		table("Users"),
	}

	sorted, _ := schema.SortForInsert(tables)
	assert.Equal(t, []string{"Users", "Orders", "OrderItems"}, names(sorted))
}

func TestSortForInsert_AcyclicIsTopological(t *testing.T) {
	tables := []*schema.Table{
		table("invoice_line", "invoice", "product"),
		table("invoice", "customer"),
		table("product", "supplier"),
		table("customer"),
		table("supplier"),
		table("audit"),
		table("shipment", "invoice", "customer"),
	}

	ins, warnings := schema.SortForInsert(tables)
	require.Len(t, ins, len(tables))
	assert.Empty(t, warnings)

	pos := position(names(ins))
	for _, tbl := range tables {
		for _, fk := range tbl.ForeignKeys {
			assert.Less(t, pos[fk.RefTable], pos[tbl.ID.Name], "%s must follow %s", tbl.ID.Name, fk.RefTable)
		}
	}

	del, _ := schema.SortForDelete(tables)
	insNames := names(ins)
	delNames := names(del)
	for i := range insNames {
		assert.Equal(t, insNames[i], delNames[len(delNames)-1-i])
	}
}

func TestSortForInsert_CycleIsPermutation(t *testing.T) {
	// A -> B -> C -> D -> E -> A, F -> E, G independent
	tables := []*schema.Table{
		table("A", "B"),
		table("B", "C"),
		table("C", "D"),
		table("D", "E"),
		table("E", "A"),
		table("F", "E"),
		table("G"),
	}

	sorted, warnings := schema.SortForInsert(tables)
	assert.ElementsMatch(t, []string{"A", "B", "C", "D", "E", "F", "G"}, names(sorted))
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "A, B, C, D, E")

	again, againWarnings := schema.SortForInsert(tables)
	assert.Equal(t, names(sorted), names(again), "cycle breaking must be deterministic")
	assert.Equal(t, warnings, againWarnings)

	pos := position(names(sorted))
	assert.Less(t, pos["E"], pos["F"])
}

func TestSortForInsert_TwoTableCycle(t *testing.T) {
	tables := []*schema.Table{table("store", "staff"), table("staff", "store")}

	sorted, warnings := schema.SortForInsert(tables)
	assert.Equal(t, []string{"store", "staff"}, names(sorted))
	assert.Len(t, warnings, 1)
}

func TestSortForInsert_SelfReferenceIsNotACycle(t *testing.T) {
	tables := []*schema.Table{table("employee", "employee", "dept"), table("dept")}

	sorted, warnings := schema.SortForInsert(tables)
	assert.Equal(t, []string{"dept", "employee"}, names(sorted))
	assert.Empty(t, warnings)
	assert.True(t, tables[0].IsSelfReferencing())
}

func TestSortForInsert_IgnoresTablesOutsideSet(t *testing.T) {
	tables := []*schema.Table{table("orders", "customers"), table("items", "orders")}

	sorted, warnings := schema.SortForInsert(tables)
	assert.Equal(t, []string{"orders", "items"}, names(sorted))
	assert.Empty(t, warnings)
}

func TestSortForInsert_CaseInsensitiveReferences(t *testing.T) {
	tables := []*schema.Table{table("child", `"PARENT"`), table("Parent")}

	sorted, _ := schema.SortForInsert(tables)
	assert.Equal(t, []string{"Parent", "child"}, names(sorted))
}

func TestSortForInsert_Empty(t *testing.T) {
	sorted, warnings := schema.SortForInsert(nil)
	assert.Empty(t, sorted)
	assert.Empty(t, warnings)
}
