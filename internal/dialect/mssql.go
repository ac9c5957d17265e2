package dialect

import (
	"encoding/hex"
	"strings"
	"time"
)

type MSSQLDialect struct{}

// Helper: go-mssqldb binds @p1, @p2; the schema argument is reused as @p1
// wherever a query needs it more than once.

func (d *MSSQLDialect) Name() string { return "sqlserver" }

func (d *MSSQLDialect) GetTablesQuery() string {
	return `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = @p1 AND TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME`
}

func (d *MSSQLDialect) GetColumnsQuery() string {
	return `
		SELECT
			c.TABLE_NAME,
			c.COLUMN_NAME,
			c.DATA_TYPE,
			c.CHARACTER_MAXIMUM_LENGTH,
			c.IS_NULLABLE,
			c.COLUMN_DEFAULT
		FROM INFORMATION_SCHEMA.COLUMNS c
		JOIN INFORMATION_SCHEMA.TABLES t
			ON t.TABLE_SCHEMA = c.TABLE_SCHEMA AND t.TABLE_NAME = c.TABLE_NAME AND t.TABLE_TYPE = 'BASE TABLE'
		WHERE c.TABLE_SCHEMA = @p1
		ORDER BY c.TABLE_NAME, c.ORDINAL_POSITION
	`
}

func (d *MSSQLDialect) GetPrimaryKeysQuery() string {
	return `SELECT K.TABLE_NAME, K.COLUMN_NAME FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS T JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE K ON T.CONSTRAINT_NAME = K.CONSTRAINT_NAME AND T.TABLE_SCHEMA = K.TABLE_SCHEMA WHERE T.CONSTRAINT_TYPE = 'PRIMARY KEY' AND T.TABLE_SCHEMA = @p1 ORDER BY K.TABLE_NAME, K.ORDINAL_POSITION`
}

func (d *MSSQLDialect) GetForeignKeysQuery() string {
	return `SELECT KCU1.TABLE_NAME, KCU1.CONSTRAINT_NAME, KCU1.COLUMN_NAME, KCU2.TABLE_NAME AS REF_TABLE, KCU2.COLUMN_NAME AS REF_COLUMN FROM INFORMATION_SCHEMA.REFERENTIAL_CONSTRAINTS RC JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE KCU1 ON RC.CONSTRAINT_NAME = KCU1.CONSTRAINT_NAME JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE KCU2 ON RC.UNIQUE_CONSTRAINT_NAME = KCU2.CONSTRAINT_NAME AND KCU1.ORDINAL_POSITION = KCU2.ORDINAL_POSITION WHERE KCU1.TABLE_SCHEMA = @p1 ORDER BY KCU1.TABLE_NAME, KCU1.CONSTRAINT_NAME, KCU1.ORDINAL_POSITION`
}

func (d *MSSQLDialect) GetIndexesQuery() string {
	return `
		SELECT t.name, idx.name, col.name, CASE WHEN idx.is_unique = 1 THEN 'YES' ELSE 'NO' END
		FROM sys.indexes idx
		JOIN sys.index_columns ic ON idx.object_id = ic.object_id AND idx.index_id = ic.index_id
		JOIN sys.columns col ON ic.object_id = col.object_id AND ic.column_id = col.column_id
		JOIN sys.tables t ON idx.object_id = t.object_id
		JOIN sys.schemas s ON t.schema_id = s.schema_id
		WHERE idx.is_primary_key = 0 AND idx.name IS NOT NULL AND s.name = @p1
		ORDER BY t.name, idx.name, ic.key_ordinal
	`
}

func (d *MSSQLDialect) GetChecksQuery() string {
	return `SELECT t.name, cc.name, cc.definition FROM sys.check_constraints cc JOIN sys.tables t ON cc.parent_object_id = t.object_id JOIN sys.schemas s ON t.schema_id = s.schema_id WHERE s.name = @p1 ORDER BY t.name, cc.name`
}

func (d *MSSQLDialect) GetViewsQuery() string {
	return `SELECT v.name, m.definition FROM sys.views v JOIN sys.sql_modules m ON m.object_id = v.object_id JOIN sys.schemas s ON v.schema_id = s.schema_id WHERE s.name = @p1 ORDER BY v.name`
}

func (d *MSSQLDialect) GetSequencesQuery() string {
	return `SELECT sq.name, CONCAT('start ', CAST(sq.start_value AS NVARCHAR(64)), ' increment ', CAST(sq.increment AS NVARCHAR(64)), ' min ', CAST(sq.minimum_value AS NVARCHAR(64)), ' max ', CAST(sq.maximum_value AS NVARCHAR(64)), ' cycle ', sq.is_cycling) FROM sys.sequences sq JOIN sys.schemas s ON sq.schema_id = s.schema_id WHERE s.name = @p1 ORDER BY sq.name`
}

func (d *MSSQLDialect) GetProceduresQuery() string {
	return `SELECT o.name, m.definition FROM sys.objects o JOIN sys.sql_modules m ON m.object_id = o.object_id JOIN sys.schemas s ON o.schema_id = s.schema_id WHERE o.type IN ('P', 'FN', 'IF', 'TF') AND s.name = @p1 ORDER BY o.name`
}

func (d *MSSQLDialect) GetTriggersQuery() string {
	return `SELECT t.name, tr.name, m.definition FROM sys.triggers tr JOIN sys.tables t ON tr.parent_id = t.object_id JOIN sys.sql_modules m ON m.object_id = tr.object_id JOIN sys.schemas s ON t.schema_id = s.schema_id WHERE s.name = @p1 ORDER BY t.name, tr.name`
}

func (d *MSSQLDialect) GetPartitionsQuery() string {
	return `
		SELECT DISTINCT t.name, CONCAT(ps.name, ':', p.partition_number), pf.name
		FROM sys.tables t
		JOIN sys.schemas s ON t.schema_id = s.schema_id
		JOIN sys.indexes i ON i.object_id = t.object_id AND i.index_id IN (0, 1)
		JOIN sys.partition_schemes ps ON ps.data_space_id = i.data_space_id
		JOIN sys.partition_functions pf ON pf.function_id = ps.function_id
		JOIN sys.partitions p ON p.object_id = t.object_id AND p.index_id = i.index_id
		WHERE s.name = @p1
		ORDER BY t.name, 2
	`
}

func (d *MSSQLDialect) GetGrantsQuery() string {
	return `SELECT TABLE_NAME, GRANTEE, PRIVILEGE_TYPE FROM INFORMATION_SCHEMA.TABLE_PRIVILEGES WHERE TABLE_SCHEMA = @p1 ORDER BY TABLE_NAME, GRANTEE, PRIVILEGE_TYPE`
}

func (d *MSSQLDialect) GetSchemaName(input string) string {
	if input == "" {
		return "dbo"
	}
	return input
}

func (d *MSSQLDialect) AdjustIdentifierCase(name string) string {
	return preserveCase(name)
}

func (d *MSSQLDialect) QuoteIdentifier(name string) string {
	return QuoteIfNeeded(name, "[", "]", d.AdjustIdentifierCase)
}

func (d *MSSQLDialect) StringLiteral(s string) string {
	// N prefix keeps non-latin text intact in nvarchar columns
	return "N" + DefaultStringLiteral(s)
}

func (d *MSSQLDialect) BlobLiteral(b []byte) string {
	return "0x" + strings.ToUpper(hex.EncodeToString(b))
}

func (d *MSSQLDialect) TimestampLiteral(t time.Time) string {
	return "'" + t.Format("2006-01-02T15:04:05.9999999") + "'"
}

func (d *MSSQLDialect) BoolLiteral(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (d *MSSQLDialect) BinaryOrder(quotedColumn string) string {
	return quotedColumn + " COLLATE Latin1_General_BIN2"
}

// ascending order already puts NULL first
func (d *MSSQLDialect) NullsFirst(orderExpr string) string {
	return orderExpr
}

func (d *MSSQLDialect) NormalizeType(sqlType string) string {
	if g, ok := normalizeCommon(sqlType); ok {
		return g
	}
	t := strings.ToLower(sqlType)
	switch t {
	case "time":
		return TypeDatetime
	case "uniqueidentifier", "xml", "sysname":
		return TypeVarchar
	case "rowversion":
		return TypeBlob
	}
	return DefaultNormalizeType(t)
}
