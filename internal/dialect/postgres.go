package dialect

import (
	"encoding/hex"
	"strings"
	"time"
)

type PostgresDialect struct{}

func (d *PostgresDialect) Name() string { return "postgres" }

func (d *PostgresDialect) GetTablesQuery() string {
	return `SELECT table_name FROM information_schema.tables WHERE table_schema = $1 AND table_type = 'BASE TABLE' ORDER BY table_name`
}

func (d *PostgresDialect) GetColumnsQuery() string {
	// udt_name keeps the short spelling (int4, varchar) that NormalizeType understands
	return `SELECT c.table_name, c.column_name, c.udt_name, c.character_maximum_length, c.is_nullable, c.column_default
FROM information_schema.columns c
JOIN information_schema.tables t ON t.table_schema = c.table_schema AND t.table_name = c.table_name AND t.table_type = 'BASE TABLE'
WHERE c.table_schema = $1
ORDER BY c.table_name, c.ordinal_position`
}

func (d *PostgresDialect) GetPrimaryKeysQuery() string {
	return `SELECT kcu.table_name, kcu.column_name FROM information_schema.key_column_usage kcu JOIN information_schema.table_constraints tc ON kcu.constraint_name = tc.constraint_name AND kcu.constraint_schema = tc.constraint_schema WHERE kcu.table_schema = $1 AND tc.constraint_type = 'PRIMARY KEY' ORDER BY kcu.table_name, kcu.ordinal_position`
}

func (d *PostgresDialect) GetForeignKeysQuery() string {
	return `SELECT kcu.table_name, kcu.constraint_name, kcu.column_name, ccu.table_name AS referenced_table_name, ccu.column_name AS referenced_column_name
FROM information_schema.key_column_usage kcu
JOIN information_schema.table_constraints tc ON kcu.constraint_name = tc.constraint_name AND kcu.constraint_schema = tc.constraint_schema
JOIN information_schema.constraint_column_usage ccu ON kcu.constraint_name = ccu.constraint_name AND kcu.constraint_schema = ccu.constraint_schema
WHERE kcu.table_schema = $1 AND tc.constraint_type = 'FOREIGN KEY'
ORDER BY kcu.table_name, kcu.constraint_name, kcu.ordinal_position`
}

func (d *PostgresDialect) GetIndexesQuery() string {
	return `SELECT t.relname, i.relname, a.attname, CASE WHEN ix.indisunique THEN 'YES' ELSE 'NO' END
FROM pg_index ix
JOIN pg_class t ON t.oid = ix.indrelid
JOIN pg_class i ON i.oid = ix.indexrelid
JOIN pg_namespace n ON n.oid = t.relnamespace
JOIN LATERAL unnest(ix.indkey) WITH ORDINALITY AS k(attnum, ord) ON true
JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum
WHERE n.nspname = $1 AND NOT ix.indisprimary
ORDER BY t.relname, i.relname, k.ord`
}

func (d *PostgresDialect) GetChecksQuery() string {
	return `SELECT tc.table_name, cc.constraint_name, cc.check_clause FROM information_schema.check_constraints cc JOIN information_schema.table_constraints tc ON tc.constraint_name = cc.constraint_name AND tc.constraint_schema = cc.constraint_schema WHERE tc.table_schema = $1 AND tc.constraint_type = 'CHECK' AND cc.constraint_name NOT LIKE '%_not_null' ORDER BY tc.table_name, cc.constraint_name`
}

func (d *PostgresDialect) GetViewsQuery() string {
	return `SELECT table_name, view_definition FROM information_schema.views WHERE table_schema = $1 ORDER BY table_name`
}

func (d *PostgresDialect) GetSequencesQuery() string {
	return `SELECT sequence_name, 'start ' || start_value || ' increment ' || increment || ' min ' || minimum_value || ' max ' || maximum_value || ' cycle ' || cycle_option FROM information_schema.sequences WHERE sequence_schema = $1 ORDER BY sequence_name`
}

func (d *PostgresDialect) GetProceduresQuery() string {
	return `SELECT p.proname, pg_get_functiondef(p.oid) FROM pg_proc p JOIN pg_namespace n ON n.oid = p.pronamespace WHERE n.nspname = $1 AND p.prokind IN ('f', 'p') ORDER BY p.proname`
}

func (d *PostgresDialect) GetTriggersQuery() string {
	return `SELECT event_object_table, trigger_name, action_timing || ' ' || event_manipulation || ' ' || action_statement FROM information_schema.triggers WHERE trigger_schema = $1 ORDER BY event_object_table, trigger_name, event_manipulation`
}

func (d *PostgresDialect) GetPartitionsQuery() string {
	return `SELECT parent.relname, child.relname, pg_get_expr(child.relpartbound, child.oid)
FROM pg_inherits i
JOIN pg_class parent ON parent.oid = i.inhparent
JOIN pg_class child ON child.oid = i.inhrelid
JOIN pg_namespace n ON n.oid = parent.relnamespace
WHERE n.nspname = $1 AND parent.relkind = 'p'
ORDER BY parent.relname, child.relname`
}

func (d *PostgresDialect) GetGrantsQuery() string {
	return `SELECT table_name, grantee, privilege_type FROM information_schema.table_privileges WHERE table_schema = $1 ORDER BY table_name, grantee, privilege_type`
}

func (d *PostgresDialect) GetSchemaName(input string) string {
	if input == "" {
		return "public"
	}
	return input
}

func (d *PostgresDialect) AdjustIdentifierCase(name string) string {
	return strings.ToLower(name)
}

func (d *PostgresDialect) QuoteIdentifier(name string) string {
	return QuoteIfNeeded(name, `"`, `"`, d.AdjustIdentifierCase)
}

func (d *PostgresDialect) StringLiteral(s string) string {
	return DefaultStringLiteral(s)
}

func (d *PostgresDialect) BlobLiteral(b []byte) string {
	return `'\x` + hex.EncodeToString(b) + `'::bytea`
}

func (d *PostgresDialect) TimestampLiteral(t time.Time) string {
	return "TIMESTAMP '" + t.Format("2006-01-02 15:04:05.999999") + "'"
}

func (d *PostgresDialect) BoolLiteral(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

func (d *PostgresDialect) BinaryOrder(quotedColumn string) string {
	return quotedColumn + ` COLLATE "C"`
}

func (d *PostgresDialect) NullsFirst(orderExpr string) string {
	return orderExpr + " NULLS FIRST"
}

func (d *PostgresDialect) NormalizeType(sqlType string) string {
	if g, ok := normalizeCommon(sqlType); ok {
		return g
	}
	t := strings.ToLower(sqlType)
	switch t {
	case "time", "timetz", "interval":
		return TypeDatetime
	case "json", "jsonb", "xml", "uuid":
		return TypeText
	}
	return DefaultNormalizeType(t)
}
