package dialect

import (
	"strings"
	"time"
)

type MysqlDialect struct{}

func (d *MysqlDialect) Name() string { return "mysql" }

func (d *MysqlDialect) GetTablesQuery() string {
	return `SELECT TABLE_NAME FROM information_schema.TABLES WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME`
}

func (d *MysqlDialect) GetColumnsQuery() string {
	return `SELECT TABLE_NAME, COLUMN_NAME, COLUMN_TYPE, CHARACTER_MAXIMUM_LENGTH, IS_NULLABLE, COLUMN_DEFAULT FROM information_schema.COLUMNS WHERE TABLE_SCHEMA = ? ORDER BY TABLE_NAME, ORDINAL_POSITION`
}

func (d *MysqlDialect) GetPrimaryKeysQuery() string {
	return `SELECT TABLE_NAME, COLUMN_NAME FROM information_schema.KEY_COLUMN_USAGE WHERE TABLE_SCHEMA = ? AND CONSTRAINT_NAME = 'PRIMARY' ORDER BY TABLE_NAME, ORDINAL_POSITION`
}

func (d *MysqlDialect) GetForeignKeysQuery() string {
	return `SELECT TABLE_NAME, CONSTRAINT_NAME, COLUMN_NAME, REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME FROM information_schema.KEY_COLUMN_USAGE WHERE TABLE_SCHEMA = ? AND REFERENCED_TABLE_NAME IS NOT NULL ORDER BY TABLE_NAME, CONSTRAINT_NAME, ORDINAL_POSITION`
}

func (d *MysqlDialect) GetIndexesQuery() string {
	return `SELECT TABLE_NAME, INDEX_NAME, COLUMN_NAME, IF(NON_UNIQUE = 0, 'YES', 'NO') FROM information_schema.STATISTICS WHERE TABLE_SCHEMA = ? AND INDEX_NAME <> 'PRIMARY' ORDER BY TABLE_NAME, INDEX_NAME, SEQ_IN_INDEX`
}

func (d *MysqlDialect) GetChecksQuery() string {
	return `SELECT tc.TABLE_NAME, cc.CONSTRAINT_NAME, cc.CHECK_CLAUSE FROM information_schema.CHECK_CONSTRAINTS cc JOIN information_schema.TABLE_CONSTRAINTS tc ON tc.CONSTRAINT_SCHEMA = cc.CONSTRAINT_SCHEMA AND tc.CONSTRAINT_NAME = cc.CONSTRAINT_NAME WHERE cc.CONSTRAINT_SCHEMA = ? ORDER BY tc.TABLE_NAME, cc.CONSTRAINT_NAME`
}

func (d *MysqlDialect) GetViewsQuery() string {
	return `SELECT TABLE_NAME, VIEW_DEFINITION FROM information_schema.VIEWS WHERE TABLE_SCHEMA = ? ORDER BY TABLE_NAME`
}

// MySQL has no sequences.
func (d *MysqlDialect) GetSequencesQuery() string { return "" }

func (d *MysqlDialect) GetProceduresQuery() string {
	return `SELECT ROUTINE_NAME, ROUTINE_DEFINITION FROM information_schema.ROUTINES WHERE ROUTINE_SCHEMA = ? ORDER BY ROUTINE_NAME`
}

func (d *MysqlDialect) GetTriggersQuery() string {
	return `SELECT EVENT_OBJECT_TABLE, TRIGGER_NAME, CONCAT(ACTION_TIMING, ' ', EVENT_MANIPULATION, ' ', ACTION_STATEMENT) FROM information_schema.TRIGGERS WHERE TRIGGER_SCHEMA = ? ORDER BY EVENT_OBJECT_TABLE, TRIGGER_NAME`
}

func (d *MysqlDialect) GetPartitionsQuery() string {
	return `SELECT TABLE_NAME, PARTITION_NAME, CONCAT(PARTITION_METHOD, ' ', COALESCE(PARTITION_EXPRESSION, ''), ' ', COALESCE(PARTITION_DESCRIPTION, '')) FROM information_schema.PARTITIONS WHERE TABLE_SCHEMA = ? AND PARTITION_NAME IS NOT NULL ORDER BY TABLE_NAME, PARTITION_ORDINAL_POSITION`
}

func (d *MysqlDialect) GetGrantsQuery() string {
	return `SELECT TABLE_NAME, GRANTEE, PRIVILEGE_TYPE FROM information_schema.TABLE_PRIVILEGES WHERE TABLE_SCHEMA = ? ORDER BY TABLE_NAME, GRANTEE, PRIVILEGE_TYPE`
}

func (d *MysqlDialect) GetSchemaName(input string) string {
	return input
}

func (d *MysqlDialect) AdjustIdentifierCase(name string) string {
	return preserveCase(name)
}

func (d *MysqlDialect) QuoteIdentifier(name string) string {
	return QuoteIfNeeded(name, "`", "`", d.AdjustIdentifierCase)
}

func (d *MysqlDialect) StringLiteral(s string) string {
	// backslash is an escape character in the default sql_mode
	return DefaultStringLiteral(strings.ReplaceAll(s, `\`, `\\`))
}

func (d *MysqlDialect) BlobLiteral(b []byte) string {
	return HexBlobLiteral(b)
}

func (d *MysqlDialect) TimestampLiteral(t time.Time) string {
	return "'" + t.Format("2006-01-02 15:04:05.999999") + "'"
}

func (d *MysqlDialect) BoolLiteral(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (d *MysqlDialect) BinaryOrder(quotedColumn string) string {
	return "BINARY " + quotedColumn
}

func (d *MysqlDialect) NullsFirst(orderExpr string) string {
	return orderExpr
}

func (d *MysqlDialect) NormalizeType(sqlType string) string {
	t := strings.ToLower(sqlType)
	if strings.HasPrefix(t, "tinyint(1)") {
		return TypeBoolean
	}
	if g, ok := normalizeCommon(t); ok {
		return g
	}
	switch {
	case strings.HasPrefix(t, "enum"), strings.HasPrefix(t, "set"):
		return TypeVarchar
	case strings.HasPrefix(t, "year"):
		return TypeInteger
	case strings.HasPrefix(t, "time"):
		return TypeDatetime
	}
	return DefaultNormalizeType(t)
}
