package dialect

import "time"

// Dialect abstracts database-specific introspection and SQL rendering.
//
// Every metadata query takes exactly one bind parameter (the schema name) and
// returns its rows ordered so a single forward pass can build the catalog.
// An empty query string means the object type is not supported by the vendor.
type Dialect interface {
	Name() string

	// Metadata Queries (Schema Introspection)
	//   tables:      table_name
	//   columns:     table_name, column_name, data_type, char_length, is_nullable, column_default
	//   primary:     table_name, column_name (in key order)
	//   foreign:     table_name, constraint_name, column_name, ref_table, ref_column
	//   indexes:     table_name, index_name, column_name, is_unique ('YES'/'NO')
	//   checks:      table_name, constraint_name, expression
	//   views:       view_name, definition
	//   sequences:   sequence_name, definition
	//   procedures:  procedure_name, source
	//   triggers:    table_name, trigger_name, source
	//   partitions:  table_name, partition_name, definition
	//   grants:      table_name, grantee, privilege
	GetTablesQuery() string
	GetColumnsQuery() string
	GetPrimaryKeysQuery() string
	GetForeignKeysQuery() string
	GetIndexesQuery() string
	GetChecksQuery() string
	GetViewsQuery() string
	GetSequencesQuery() string
	GetProceduresQuery() string
	GetTriggersQuery() string
	GetPartitionsQuery() string
	GetGrantsQuery() string

	// Identifiers
	GetSchemaName(input string) string
	AdjustIdentifierCase(name string) string
	QuoteIdentifier(name string) string

	// Literals
	StringLiteral(s string) string
	BlobLiteral(b []byte) string
	TimestampLiteral(t time.Time) string
	BoolLiteral(b bool) string

	// BinaryOrder wraps a quoted text column so the server sorts it by raw
	// code points, matching the client-side merge comparator.
	BinaryOrder(quotedColumn string) string
	// NullsFirst makes an ascending sort expression place NULL before any
	// value, which is where the client comparator puts it.
	NullsFirst(orderExpr string) string

	NormalizeType(sqlType string) string
}
