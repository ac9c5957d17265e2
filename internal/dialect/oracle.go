package dialect

import (
	"encoding/hex"
	"strings"
	"time"
)

type OracleDialect struct{}

// Oracle reads the current user's objects from the USER_* views; the schema
// argument is consumed by a dummy clause so every query keeps one bind.

func (d *OracleDialect) Name() string { return "oracle" }

func (d *OracleDialect) GetTablesQuery() string {
	return `SELECT TABLE_NAME FROM USER_TABLES WHERE :1 IS NOT NULL ORDER BY TABLE_NAME`
}

func (d *OracleDialect) GetColumnsQuery() string {
	return `
SELECT
    t.TABLE_NAME,
    t.COLUMN_NAME,
    CASE
        WHEN t.DATA_TYPE = 'NUMBER' AND COALESCE(t.DATA_SCALE, 0) > 0 THEN 'DECIMAL'
        WHEN t.DATA_TYPE = 'NUMBER' AND t.DATA_SCALE = 0 THEN 'INTEGER'
        ELSE t.DATA_TYPE
    END,
    t.CHAR_LENGTH,
    CASE WHEN t.NULLABLE = 'Y' THEN 'YES' ELSE 'NO' END,
    NULL
FROM USER_TAB_COLUMNS t
JOIN USER_TABLES ut ON ut.TABLE_NAME = t.TABLE_NAME
WHERE :1 IS NOT NULL
ORDER BY t.TABLE_NAME, t.COLUMN_ID`
}

func (d *OracleDialect) GetPrimaryKeysQuery() string {
	return `
SELECT cc.TABLE_NAME, cc.COLUMN_NAME
FROM USER_CONS_COLUMNS cc
JOIN USER_CONSTRAINTS uc ON cc.CONSTRAINT_NAME = uc.CONSTRAINT_NAME
WHERE uc.CONSTRAINT_TYPE = 'P' AND :1 IS NOT NULL
ORDER BY cc.TABLE_NAME, cc.POSITION`
}

func (d *OracleDialect) GetForeignKeysQuery() string {
	return `
SELECT
    c.TABLE_NAME,
    c.CONSTRAINT_NAME,
    cc.COLUMN_NAME,
    r.TABLE_NAME AS REF_TABLE,
    rcc.COLUMN_NAME AS REF_COLUMN
FROM USER_CONSTRAINTS c
JOIN USER_CONS_COLUMNS cc
    ON c.CONSTRAINT_NAME = cc.CONSTRAINT_NAME
    AND c.OWNER = cc.OWNER
JOIN USER_CONSTRAINTS r
    ON c.R_CONSTRAINT_NAME = r.CONSTRAINT_NAME
    AND c.R_OWNER = r.OWNER
JOIN USER_CONS_COLUMNS rcc
    ON r.CONSTRAINT_NAME = rcc.CONSTRAINT_NAME
    AND r.OWNER = rcc.OWNER
    AND cc.POSITION = rcc.POSITION
WHERE c.CONSTRAINT_TYPE = 'R'
AND :1 IS NOT NULL
ORDER BY c.TABLE_NAME, c.CONSTRAINT_NAME, cc.POSITION`
}

func (d *OracleDialect) GetIndexesQuery() string {
	return `
SELECT ic.TABLE_NAME, ic.INDEX_NAME, ic.COLUMN_NAME, CASE WHEN i.UNIQUENESS = 'UNIQUE' THEN 'YES' ELSE 'NO' END
FROM USER_IND_COLUMNS ic
JOIN USER_INDEXES i ON i.INDEX_NAME = ic.INDEX_NAME
WHERE :1 IS NOT NULL
AND NOT EXISTS (SELECT 1 FROM USER_CONSTRAINTS uc WHERE uc.INDEX_NAME = ic.INDEX_NAME AND uc.CONSTRAINT_TYPE = 'P')
ORDER BY ic.TABLE_NAME, ic.INDEX_NAME, ic.COLUMN_POSITION`
}

func (d *OracleDialect) GetChecksQuery() string {
	// SEARCH_CONDITION is a LONG column; SEARCH_CONDITION_VC (12c+) is its varchar copy
	return `SELECT TABLE_NAME, CONSTRAINT_NAME, SEARCH_CONDITION_VC FROM USER_CONSTRAINTS WHERE CONSTRAINT_TYPE = 'C' AND GENERATED = 'USER NAME' AND :1 IS NOT NULL ORDER BY TABLE_NAME, CONSTRAINT_NAME`
}

func (d *OracleDialect) GetViewsQuery() string {
	return `SELECT VIEW_NAME, TEXT_VC FROM USER_VIEWS WHERE :1 IS NOT NULL ORDER BY VIEW_NAME`
}

func (d *OracleDialect) GetSequencesQuery() string {
	return `SELECT SEQUENCE_NAME, 'increment ' || INCREMENT_BY || ' min ' || MIN_VALUE || ' max ' || MAX_VALUE || ' cycle ' || CYCLE_FLAG FROM USER_SEQUENCES WHERE :1 IS NOT NULL ORDER BY SEQUENCE_NAME`
}

func (d *OracleDialect) GetProceduresQuery() string {
	return `SELECT NAME, LISTAGG(TEXT, '') WITHIN GROUP (ORDER BY LINE) FROM USER_SOURCE WHERE TYPE IN ('PROCEDURE', 'FUNCTION', 'PACKAGE', 'PACKAGE BODY') AND :1 IS NOT NULL GROUP BY NAME ORDER BY NAME`
}

func (d *OracleDialect) GetTriggersQuery() string {
	return `SELECT TABLE_NAME, TRIGGER_NAME, TRIGGER_TYPE || ' ' || TRIGGERING_EVENT || ' ' || DESCRIPTION FROM USER_TRIGGERS WHERE BASE_OBJECT_TYPE = 'TABLE' AND :1 IS NOT NULL ORDER BY TABLE_NAME, TRIGGER_NAME`
}

func (d *OracleDialect) GetPartitionsQuery() string {
	return `SELECT TABLE_NAME, PARTITION_NAME, 'position ' || PARTITION_POSITION FROM USER_TAB_PARTITIONS WHERE :1 IS NOT NULL ORDER BY TABLE_NAME, PARTITION_POSITION`
}

func (d *OracleDialect) GetGrantsQuery() string {
	return `SELECT TABLE_NAME, GRANTEE, PRIVILEGE FROM USER_TAB_PRIVS_MADE WHERE :1 IS NOT NULL ORDER BY TABLE_NAME, GRANTEE, PRIVILEGE`
}

func (d *OracleDialect) GetSchemaName(input string) string {
	if input == "" {
		return "USER"
	}
	return strings.ToUpper(input)
}

func (d *OracleDialect) AdjustIdentifierCase(name string) string {
	return strings.ToUpper(name)
}

func (d *OracleDialect) QuoteIdentifier(name string) string {
	return QuoteIfNeeded(name, `"`, `"`, d.AdjustIdentifierCase)
}

func (d *OracleDialect) StringLiteral(s string) string {
	return DefaultStringLiteral(s)
}

func (d *OracleDialect) BlobLiteral(b []byte) string {
	return "HEXTORAW('" + strings.ToUpper(hex.EncodeToString(b)) + "')"
}

func (d *OracleDialect) TimestampLiteral(t time.Time) string {
	return "TIMESTAMP '" + t.Format("2006-01-02 15:04:05.999999") + "'"
}

func (d *OracleDialect) BoolLiteral(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (d *OracleDialect) BinaryOrder(quotedColumn string) string {
	return "NLSSORT(" + quotedColumn + ", 'NLS_SORT=BINARY')"
}

func (d *OracleDialect) NullsFirst(orderExpr string) string {
	return orderExpr + " NULLS FIRST"
}

func (d *OracleDialect) NormalizeType(sqlType string) string {
	s := strings.ToLower(sqlType)
	switch {
	case s == "number":
		return TypeDecimal
	case strings.HasPrefix(s, "timestamp"):
		return TypeDatetime
	case s == "date":
		// Oracle DATE carries a time part
		return TypeDatetime
	case s == "binary_float", s == "binary_double":
		return TypeFloat
	}
	if g, ok := normalizeCommon(s); ok {
		return g
	}
	return DefaultNormalizeType(s)
}
