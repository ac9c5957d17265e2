package dbconn

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"db-reconcile/internal/dialect"
	"db-reconcile/internal/schema"

	"go.uber.org/zap"
)

// Cursor is a forward-only iterator over an ordered query. It holds exactly
// one row at a time; Row is only valid until the next call to Next.
type Cursor struct {
	rows   *sql.Rows
	values []any
	ptrs   []any
	err    error
	read   int
}

// QueryOrdered streams columns of table ordered by keys on the server. Text
// key columns are sorted by binary collation and nullable key columns put
// NULL first so the order matches the comparison on the client.
func (c *Conn) QueryOrdered(ctx context.Context, table *schema.Table, columns, keys []string) (*Cursor, error) {
	query := OrderedQuery(c.d, table, columns, keys)
	c.log.Debug("ordered query", zap.String("sql", query))

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table.ID, err)
	}
	cur := &Cursor{
		rows:   rows,
		values: make([]any, len(columns)),
		ptrs:   make([]any, len(columns)),
	}
	for i := range cur.values {
		cur.ptrs[i] = &cur.values[i]
	}
	return cur, nil
}

// OrderedQuery renders the SELECT used by QueryOrdered.
func OrderedQuery(d dialect.Dialect, table *schema.Table, columns, keys []string) string {
	cols := make([]string, len(columns))
	for i, name := range columns {
		cols[i] = d.QuoteIdentifier(name)
	}
	order := make([]string, len(keys))
	for i, name := range keys {
		expr := d.QuoteIdentifier(name)
		if col := table.Column(name); col != nil && isText(col) {
			expr = d.BinaryOrder(expr)
		}
		if col := table.Column(name); col == nil || col.IsNullable {
			expr = d.NullsFirst(expr)
		}
		order[i] = expr
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(cols, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(table.ID.Qualified(d))
	if len(order) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(order, ", "))
	}
	return sb.String()
}

func isText(col *schema.Column) bool {
	return col.Generic == dialect.TypeVarchar || col.Generic == dialect.TypeText
}

// Next advances to the next row.
func (cur *Cursor) Next() bool {
	if cur.err != nil || !cur.rows.Next() {
		return false
	}
	for i := range cur.values {
		cur.values[i] = nil
	}
	if err := cur.rows.Scan(cur.ptrs...); err != nil {
		cur.err = fmt.Errorf("failed to scan row: %w", err)
		return false
	}
	cur.read++
	return true
}

// Row returns the current row in column order.
func (cur *Cursor) Row() []any { return cur.values }

// Read is the number of rows consumed so far.
func (cur *Cursor) Read() int { return cur.read }

func (cur *Cursor) Err() error {
	if cur.err != nil {
		return cur.err
	}
	return cur.rows.Err()
}

func (cur *Cursor) Close() error {
	return cur.rows.Close()
}
