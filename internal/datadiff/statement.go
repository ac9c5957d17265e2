package datadiff

import (
	"strings"

	"db-reconcile/internal/dialect"
	"db-reconcile/internal/schema"
)

// Kind is the statement type of a generated change.
type Kind int

const (
	KindInsert Kind = iota
	KindUpdate
	KindDelete
)

// Kinds lists every Kind in script order.
var Kinds = []Kind{KindInsert, KindUpdate, KindDelete}

func (k Kind) String() string {
	switch k {
	case KindUpdate:
		return "update"
	case KindDelete:
		return "delete"
	}
	return "insert"
}

// ColumnValue is a column name in target spelling with its value.
type ColumnValue struct {
	Column string
	Value  Value
}

// Statement is one generated change against the target table.
//
//	insert: Values holds every emitted column, Key is empty
//	update: Values holds the changed columns, Key addresses the row
//	delete: Values is empty, Key addresses the row
type Statement struct {
	Kind   Kind
	Table  schema.TableIdentifier
	Values []ColumnValue
	Key    []ColumnValue
}

// StatementWriter receives statements as soon as they are produced.
type StatementWriter interface {
	Write(stmt *Statement) error
}

// SQL renders the statement in dialect d, terminated by a semicolon.
func (s *Statement) SQL(d dialect.Dialect) string {
	var sb strings.Builder
	table := s.Table.Qualified(d)

	switch s.Kind {
	case KindInsert:
		sb.WriteString("INSERT INTO ")
		sb.WriteString(table)
		sb.WriteString(" (")
		for i, cv := range s.Values {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(d.QuoteIdentifier(cv.Column))
		}
		sb.WriteString(") VALUES (")
		for i, cv := range s.Values {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(cv.Value.Literal)
		}
		sb.WriteString(")")
	case KindUpdate:
		sb.WriteString("UPDATE ")
		sb.WriteString(table)
		sb.WriteString(" SET ")
		for i, cv := range s.Values {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(d.QuoteIdentifier(cv.Column))
			sb.WriteString(" = ")
			sb.WriteString(cv.Value.Literal)
		}
		writeWhere(&sb, d, s.Key)
	case KindDelete:
		sb.WriteString("DELETE FROM ")
		sb.WriteString(table)
		writeWhere(&sb, d, s.Key)
	}
	sb.WriteString(";")
	return sb.String()
}

func writeWhere(sb *strings.Builder, d dialect.Dialect, key []ColumnValue) {
	sb.WriteString(" WHERE ")
	for i, cv := range key {
		if i > 0 {
			sb.WriteString(" AND ")
		}
		sb.WriteString(d.QuoteIdentifier(cv.Column))
		if cv.Value.IsNull {
			sb.WriteString(" IS NULL")
			continue
		}
		sb.WriteString(" = ")
		sb.WriteString(cv.Value.Literal)
	}
}
