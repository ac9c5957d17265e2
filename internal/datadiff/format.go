package datadiff

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"db-reconcile/internal/dialect"
	"db-reconcile/internal/schema"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// BlobMode selects how LOB columns are compared.
type BlobMode int

const (
	// BlobBinary compares LOB bytes.
	BlobBinary BlobMode = iota
	// BlobText decodes LOB bytes with the configured encoding and compares text.
	BlobText
	// BlobAlways treats every non-null LOB pair as different.
	BlobAlways
)

func (m BlobMode) String() string {
	switch m {
	case BlobText:
		return "text"
	case BlobAlways:
		return "always"
	}
	return "binary"
}

// ParseBlobMode accepts binary, text or always. Empty means binary.
func ParseBlobMode(s string) (BlobMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "binary":
		return BlobBinary, nil
	case "text":
		return BlobText, nil
	case "always":
		return BlobAlways, nil
	}
	return BlobBinary, fmt.Errorf("unknown blob mode %q (want binary, text or always)", s)
}

type valueKind int

const (
	kindNull valueKind = iota
	kindNumber
	kindTime
	kindBool
	kindString
	kindBytes
)

// Value is one column value normalized for both comparison and output. Two
// values compare equal exactly when their rendered literals match, so the
// comparison can never disagree with the emitted statement.
type Value struct {
	// Literal is the SQL literal in the target dialect.
	Literal string
	// Text is the unquoted rendering used by XML output.
	Text string
	// IsNull reports a SQL NULL.
	IsNull bool
	// Binary marks Text as hex encoded bytes.
	Binary bool

	kind   valueKind
	num    decimal.Decimal
	t      time.Time
	b      bool
	s      string
	raw    []byte
	lob    bool
	always bool
}

// Null is the NULL value.
var Null = Value{Literal: "NULL", IsNull: true}

// Formatter renders driver values as Values in one dialect. Both sides of a
// comparison are formatted by the same Formatter.
type Formatter struct {
	d    dialect.Dialect
	mode BlobMode
	enc  encoding.Encoding
}

// NewFormatter builds a Formatter for d. encodingName is an IANA/WHATWG
// encoding label used by BlobText; empty means utf-8.
func NewFormatter(d dialect.Dialect, mode BlobMode, encodingName string) (*Formatter, error) {
	if encodingName == "" {
		encodingName = "utf-8"
	}
	enc, err := htmlindex.Get(encodingName)
	if err != nil {
		return nil, fmt.Errorf("unknown blob encoding %q: %w", encodingName, err)
	}
	return &Formatter{d: d, mode: mode, enc: enc}, nil
}

func (f *Formatter) Dialect() dialect.Dialect { return f.d }

// Format normalizes v, as scanned from the driver, for column col.
func (f *Formatter) Format(col *schema.Column, v any) (Value, error) {
	if v == nil {
		return Null, nil
	}
	generic := col.Generic

	if b, ok := v.([]byte); ok {
		if generic == dialect.TypeBlob {
			return f.formatBlob(b), nil
		}
		if generic == dialect.TypeText && f.mode != BlobBinary {
			s, err := f.decode(b)
			if err != nil {
				return Value{}, fmt.Errorf("column %s: %w", col.Name, err)
			}
			return f.lobText(s), nil
		}
		// text protocol drivers return most types as bytes
		v = string(b)
	}

	switch generic {
	case dialect.TypeInteger, dialect.TypeDecimal, dialect.TypeFloat:
		if n, ok := toDecimal(v); ok {
			return f.number(n), nil
		}
	case dialect.TypeBoolean:
		if b, ok := toBool(v); ok {
			return Value{Literal: f.d.BoolLiteral(b), Text: strconv.FormatBool(b), kind: kindBool, b: b}, nil
		}
	case dialect.TypeText:
		if s, ok := v.(string); ok {
			return f.lobText(s), nil
		}
	case dialect.TypeBlob:
		if s, ok := v.(string); ok {
			return f.formatBlob([]byte(s)), nil
		}
	}

	switch x := v.(type) {
	case time.Time:
		return Value{Literal: f.d.TimestampLiteral(x), Text: x.Format("2006-01-02 15:04:05.999999999"), kind: kindTime, t: x}, nil
	case bool:
		return Value{Literal: f.d.BoolLiteral(x), Text: strconv.FormatBool(x), kind: kindBool, b: x}, nil
	case int64, int32, int, float64, float32, decimal.Decimal:
		n, _ := toDecimal(x)
		return f.number(n), nil
	case string:
		return f.str(x), nil
	}
	return f.str(fmt.Sprint(v)), nil
}

func (f *Formatter) number(n decimal.Decimal) Value {
	s := n.String()
	return Value{Literal: s, Text: s, kind: kindNumber, num: n}
}

func (f *Formatter) str(s string) Value {
	return Value{Literal: f.d.StringLiteral(s), Text: s, kind: kindString, s: s}
}

func (f *Formatter) lobText(s string) Value {
	v := f.str(s)
	v.lob = true
	v.always = f.mode == BlobAlways
	return v
}

func (f *Formatter) formatBlob(b []byte) Value {
	raw := bytes.Clone(b)
	v := Value{kind: kindBytes, raw: raw, lob: true, always: f.mode == BlobAlways}
	if f.mode == BlobText {
		s, err := f.decode(raw)
		if err == nil {
			v.s = s
			v.Text = s
			v.Literal = f.d.BlobLiteral(raw)
			return v
		}
	}
	v.Text = hex.EncodeToString(raw)
	v.Binary = true
	v.Literal = f.d.BlobLiteral(raw)
	return v
}

func (f *Formatter) decode(b []byte) (string, error) {
	out, err := f.enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("failed to decode lob: %w", err)
	}
	return string(out), nil
}

// Equal reports whether a and b render identically. LOB values follow the
// blob mode: text mode compares decoded text, always mode never matches
// unless both are NULL.
func (f *Formatter) Equal(a, b Value) bool {
	if a.IsNull || b.IsNull {
		return a.IsNull == b.IsNull
	}
	if a.always || b.always {
		return false
	}
	if a.kind == kindBytes && b.kind == kindBytes {
		if f.mode == BlobText {
			return a.s == b.s
		}
		return bytes.Equal(a.raw, b.raw)
	}
	return a.Literal == b.Literal
}

// CompareKeys orders two key values the way the servers do: NULL first,
// numbers numerically, times chronologically, text and bytes byte-wise.
func CompareKeys(a, b Value) int {
	switch {
	case a.IsNull && b.IsNull:
		return 0
	case a.IsNull:
		return -1
	case b.IsNull:
		return 1
	}
	if a.kind == b.kind {
		switch a.kind {
		case kindNumber:
			return a.num.Cmp(b.num)
		case kindTime:
			return a.t.Compare(b.t)
		case kindBool:
			switch {
			case a.b == b.b:
				return 0
			case !a.b:
				return -1
			}
			return 1
		case kindString:
			return strings.Compare(a.s, b.s)
		case kindBytes:
			return bytes.Compare(a.raw, b.raw)
		}
	}
	return strings.Compare(a.Text, b.Text)
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case int64:
		return decimal.NewFromInt(x), true
	case int32:
		return decimal.NewFromInt32(x), true
	case int:
		return decimal.NewFromInt(int64(x)), true
	case float64:
		return decimal.NewFromFloat(x), true
	case float32:
		return decimal.NewFromFloat32(x), true
	case decimal.Decimal:
		return x, true
	case bool:
		if x {
			return decimal.NewFromInt(1), true
		}
		return decimal.Zero, true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(x))
		return d, err == nil
	}
	return decimal.Decimal{}, false
}

func toBool(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case int64:
		return x != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "1", "t", "true", "y", "yes":
			return true, true
		case "0", "f", "false", "n", "no":
			return false, true
		}
	}
	return false, false
}
