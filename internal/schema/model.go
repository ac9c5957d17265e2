package schema

import (
	"sort"
	"strings"

	"db-reconcile/internal/dialect"
)

// TableIdentifier names a table on one side of a comparison. The table does
// not have to exist; existence is checked when the pair is compared.
type TableIdentifier struct {
	Catalog string
	Schema  string
	Name    string
}

// Key is the case-insensitive, quote-stripped lookup key of the table name.
func (t TableIdentifier) Key() string {
	return NormalizeName(t.Name)
}

func (t TableIdentifier) String() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// Qualified renders the identifier for use in generated statements.
func (t TableIdentifier) Qualified(d dialect.Dialect) string {
	name := d.QuoteIdentifier(t.Name)
	if t.Schema == "" {
		return name
	}
	return d.QuoteIdentifier(t.Schema) + "." + name
}

// NormalizeName strips identifier quotes and upper-cases name so identifiers
// compare case-insensitively.
func NormalizeName(name string) string {
	return strings.ToUpper(dialect.StripQuotes(strings.TrimSpace(name)))
}

type Table struct {
	ID           TableIdentifier
	Columns      []*Column
	PrimaryKey   []string
	ForeignKeys  []*ForeignKey
	Indexes      []*Index
	Checks       []*Check
	Triggers     []*Trigger
	Partitions   []*Partition
	Grants       []*Grant
	Dependencies []string // normalized names of referenced tables, self excluded
}

// Column returns the column named name (case-insensitive) or nil.
func (t *Table) Column(name string) *Column {
	key := NormalizeName(name)
	for _, c := range t.Columns {
		if NormalizeName(c.Name) == key {
			return c
		}
	}
	return nil
}

// IsSelfReferencing reports whether one of the table's foreign keys points
// back at the table itself.
func (t *Table) IsSelfReferencing() bool {
	for _, fk := range t.ForeignKeys {
		if NormalizeName(fk.RefTable) == t.ID.Key() {
			return true
		}
	}
	return false
}

type Column struct {
	Name       string
	DataType   string // vendor spelling
	Generic    string // dialect.NormalizeType result
	Length     int
	IsNullable bool
	Default    string
	IsPK       bool
}

// IsLOB reports whether the column holds large binary or character data.
func (c *Column) IsLOB() bool {
	return c.Generic == dialect.TypeBlob || c.Generic == dialect.TypeText
}

type ForeignKey struct {
	Name       string
	Columns    []string
	RefTable   string
	RefColumns []string
}

type Index struct {
	Name     string
	Columns  []string
	IsUnique bool
}

type Check struct {
	Name       string
	Expression string
}

type Trigger struct {
	Name   string
	Source string
}

type Partition struct {
	Name       string
	Definition string
}

type Grant struct {
	Grantee   string
	Privilege string
}

// Object is a schema-level object that is not a table: a view, sequence or
// procedure.
type Object struct {
	Name   string
	Source string
}

// Catalog is the table metadata of one schema on one connection.
type Catalog struct {
	Schema string
	Tables []*Table
	byKey  map[string]*Table
}

func NewCatalog(schemaName string) *Catalog {
	return &Catalog{Schema: schemaName, byKey: make(map[string]*Table)}
}

func (c *Catalog) add(t *Table) {
	c.Tables = append(c.Tables, t)
	c.byKey[t.ID.Key()] = t
}

// Table looks a table up by name, ignoring case and quotes.
func (c *Catalog) Table(name string) *Table {
	return c.byKey[NormalizeName(name)]
}

// ReferencingClosure returns tables plus every catalog table that references
// one of them directly or transitively, sorted by name.
func (c *Catalog) ReferencingClosure(tables []*Table) []*Table {
	in := make(map[string]*Table)
	for _, t := range tables {
		in[t.ID.Key()] = t
	}
	for changed := true; changed; {
		changed = false
		for _, cand := range c.Tables {
			if _, ok := in[cand.ID.Key()]; ok {
				continue
			}
			for _, dep := range cand.Dependencies {
				if _, ok := in[dep]; ok {
					in[cand.ID.Key()] = cand
					changed = true
					break
				}
			}
		}
	}
	out := make([]*Table, 0, len(in))
	for _, t := range in {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Key() < out[j].ID.Key() })
	return out
}

// Objects holds the non-table objects of one schema.
type Objects struct {
	Views      []*Object
	Sequences  []*Object
	Procedures []*Object
}
