package dialect

import (
	"strings"
	"time"
)

// SQLiteDialect reads the catalog through sqlite_master and the pragma
// table-valued functions. The schema argument is only checked for NULL.
type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string { return "sqlite" }

func (d *SQLiteDialect) GetTablesQuery() string {
	return `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' AND ? IS NOT NULL ORDER BY name`
}

func (d *SQLiteDialect) GetColumnsQuery() string {
	return `SELECT m.name, p.name, p.type, NULL, CASE WHEN p."notnull" = 0 AND p.pk = 0 THEN 'YES' ELSE 'NO' END, p.dflt_value
FROM sqlite_master m JOIN pragma_table_info(m.name) p
WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%' AND ? IS NOT NULL
ORDER BY m.name, p.cid`
}

func (d *SQLiteDialect) GetPrimaryKeysQuery() string {
	return `SELECT m.name, p.name
FROM sqlite_master m JOIN pragma_table_info(m.name) p
WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%' AND p.pk > 0 AND ? IS NOT NULL
ORDER BY m.name, p.pk`
}

func (d *SQLiteDialect) GetForeignKeysQuery() string {
	return `SELECT m.name, 'fk_' || m.name || '_' || f.id, f."from", f."table", COALESCE(f."to", '')
FROM sqlite_master m JOIN pragma_foreign_key_list(m.name) f
WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%' AND ? IS NOT NULL
ORDER BY m.name, f.id, f.seq`
}

func (d *SQLiteDialect) GetIndexesQuery() string {
	return `SELECT m.name, il.name, ii.name, CASE WHEN il."unique" = 1 THEN 'YES' ELSE 'NO' END
FROM sqlite_master m
JOIN pragma_index_list(m.name) il
JOIN pragma_index_info(il.name) ii
WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%' AND il.origin = 'c' AND ? IS NOT NULL
ORDER BY m.name, il.name, ii.seqno`
}

// Check constraints live inside the CREATE TABLE text only.
func (d *SQLiteDialect) GetChecksQuery() string { return "" }

func (d *SQLiteDialect) GetViewsQuery() string {
	return `SELECT name, sql FROM sqlite_master WHERE type = 'view' AND ? IS NOT NULL ORDER BY name`
}

func (d *SQLiteDialect) GetSequencesQuery() string  { return "" }
func (d *SQLiteDialect) GetProceduresQuery() string { return "" }

func (d *SQLiteDialect) GetTriggersQuery() string {
	return `SELECT tbl_name, name, sql FROM sqlite_master WHERE type = 'trigger' AND ? IS NOT NULL ORDER BY tbl_name, name`
}

func (d *SQLiteDialect) GetPartitionsQuery() string { return "" }
func (d *SQLiteDialect) GetGrantsQuery() string     { return "" }

func (d *SQLiteDialect) GetSchemaName(input string) string {
	if input == "" {
		return "main"
	}
	return input
}

func (d *SQLiteDialect) AdjustIdentifierCase(name string) string {
	return preserveCase(name)
}

func (d *SQLiteDialect) QuoteIdentifier(name string) string {
	return QuoteIfNeeded(name, `"`, `"`, d.AdjustIdentifierCase)
}

func (d *SQLiteDialect) StringLiteral(s string) string {
	return DefaultStringLiteral(s)
}

func (d *SQLiteDialect) BlobLiteral(b []byte) string {
	return HexBlobLiteral(b)
}

func (d *SQLiteDialect) TimestampLiteral(t time.Time) string {
	return "'" + t.Format("2006-01-02 15:04:05.999999999") + "'"
}

func (d *SQLiteDialect) BoolLiteral(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// BINARY is the default collation; nothing to wrap.
func (d *SQLiteDialect) BinaryOrder(quotedColumn string) string {
	return quotedColumn
}

func (d *SQLiteDialect) NullsFirst(orderExpr string) string {
	return orderExpr
}

func (d *SQLiteDialect) NormalizeType(sqlType string) string {
	if g, ok := normalizeCommon(sqlType); ok {
		return g
	}
	// type affinity rules: https://www.sqlite.org/datatype3.html
	t := strings.ToLower(sqlType)
	switch {
	case strings.Contains(t, "int"):
		return TypeInteger
	case strings.Contains(t, "char"), strings.Contains(t, "clob"), strings.Contains(t, "text"):
		return TypeText
	case t == "" || strings.Contains(t, "blob"):
		return TypeBlob
	case strings.Contains(t, "real"), strings.Contains(t, "floa"), strings.Contains(t, "doub"):
		return TypeFloat
	}
	return TypeDecimal
}
