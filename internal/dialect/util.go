package dialect

import (
	"encoding/hex"
	"strings"
	"unicode"
)

// Generic type vocabulary returned by NormalizeType.
const (
	TypeInteger  = "integer"
	TypeDecimal  = "decimal"
	TypeFloat    = "float"
	TypeVarchar  = "varchar"
	TypeText     = "text"
	TypeBlob     = "blob"
	TypeDate     = "date"
	TypeDatetime = "datetime"
	TypeBoolean  = "boolean"
)

// DefaultStringLiteral quotes s with single quotes, doubling embedded quotes.
func DefaultStringLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// HexBlobLiteral renders b as X'..', accepted by mysql, sqlite and ANSI.
func HexBlobLiteral(b []byte) string {
	return "X'" + strings.ToUpper(hex.EncodeToString(b)) + "'"
}

// QuoteIfNeeded wraps name in open/close only when it is not a plain
// identifier stored in the dialect's default case. Already quoted names are
// returned as is.
func QuoteIfNeeded(name string, open, close string, adjust func(string) string) string {
	if name == "" {
		return name
	}
	if strings.HasPrefix(name, open) && strings.HasSuffix(name, close) && len(name) > 1 {
		return name
	}
	if isPlainIdentifier(name) && adjust(name) == name {
		return name
	}
	return open + strings.ReplaceAll(name, close, close+close) + close
}

// StripQuotes removes one level of identifier quoting (", `, []).
func StripQuotes(name string) string {
	if len(name) < 2 {
		return name
	}
	first, last := name[0], name[len(name)-1]
	switch {
	case first == '"' && last == '"', first == '`' && last == '`', first == '[' && last == ']':
		return name[1 : len(name)-1]
	}
	return name
}

func isPlainIdentifier(name string) bool {
	for i, r := range name {
		if r == '_' || unicode.IsLetter(r) {
			continue
		}
		if i > 0 && (unicode.IsDigit(r) || r == '$') {
			continue
		}
		return false
	}
	return !reservedWords[strings.ToUpper(name)]
}

var reservedWords = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "ORDER": true, "GROUP": true,
	"TABLE": true, "USER": true, "KEY": true, "INDEX": true, "VALUES": true,
	"INSERT": true, "UPDATE": true, "DELETE": true, "DATE": true, "CHECK": true,
}

func preserveCase(name string) string { return name }

// normalizeCommon maps vendor type names that share a spelling across vendors.
// ok is false when the caller should apply its own mapping.
func normalizeCommon(sqlType string) (string, bool) {
	t := strings.ToLower(strings.TrimSpace(sqlType))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	switch t {
	case "int", "integer", "smallint", "bigint", "tinyint", "mediumint", "int2", "int4", "int8", "serial", "bigserial":
		return TypeInteger, true
	case "decimal", "numeric", "money", "smallmoney":
		return TypeDecimal, true
	case "float", "real", "double", "double precision", "float4", "float8":
		return TypeFloat, true
	case "varchar", "char", "nvarchar", "nchar", "character varying", "character", "bpchar", "varchar2", "nvarchar2":
		return TypeVarchar, true
	case "text", "ntext", "clob", "nclob", "tinytext", "mediumtext", "longtext":
		return TypeText, true
	case "blob", "bytea", "binary", "varbinary", "image", "longblob", "mediumblob", "tinyblob", "raw", "long raw":
		return TypeBlob, true
	case "date":
		return TypeDate, true
	case "datetime", "datetime2", "smalldatetime", "timestamp", "timestamptz",
		"timestamp without time zone", "timestamp with time zone", "datetimeoffset":
		return TypeDatetime, true
	case "bool", "boolean", "bit":
		return TypeBoolean, true
	}
	return t, false
}

// DefaultNormalizeType is a default implementation for type normalization (lowercase).
func DefaultNormalizeType(sqlType string) string {
	return strings.ToLower(strings.TrimSpace(sqlType))
}
