package schemadiff

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Document is the structural change set. Additions and modifications are
// what the target needs to match the reference; drops are target objects
// the reference does not have.
type Document struct {
	XMLName         xml.Name `xml:"schema-diff"`
	ReferenceSchema string   `xml:"reference-schema"`
	TargetSchema    string   `xml:"target-schema"`

	AddTables    []*TableDef    `xml:"add-table"`
	DropTables   []*NamedRef    `xml:"drop-table"`
	ModifyTables []*TableChange `xml:"modify-table"`

	AddViews    []*ObjectDef `xml:"add-view"`
	DropViews   []*NamedRef  `xml:"drop-view"`
	UpdateViews []*ObjectDef `xml:"update-view"`

	AddSequences    []*ObjectDef `xml:"add-sequence"`
	DropSequences   []*NamedRef  `xml:"drop-sequence"`
	UpdateSequences []*ObjectDef `xml:"update-sequence"`

	AddProcedures    []*ObjectDef `xml:"add-procedure"`
	DropProcedures   []*NamedRef  `xml:"drop-procedure"`
	UpdateProcedures []*ObjectDef `xml:"update-procedure"`

	Warnings []string `xml:"warnings>warning,omitempty"`
}

type NamedRef struct {
	Name string `xml:"name,attr"`
}

type ObjectDef struct {
	Name   string `xml:"name,attr"`
	Source string `xml:",cdata"`
}

type ColumnDef struct {
	Name     string `xml:"name,attr"`
	Type     string `xml:"type,attr"`
	Length   int    `xml:"length,attr,omitempty"`
	Nullable bool   `xml:"nullable,attr"`
	Default  string `xml:"default,attr,omitempty"`
}

type KeyDef struct {
	Name    string `xml:"name,attr,omitempty"`
	Columns string `xml:"columns,attr"`
}

type ForeignKeyDef struct {
	Name       string `xml:"name,attr"`
	Columns    string `xml:"columns,attr"`
	RefTable   string `xml:"ref-table,attr"`
	RefColumns string `xml:"ref-columns,attr"`
}

type IndexDef struct {
	Name    string `xml:"name,attr"`
	Columns string `xml:"columns,attr"`
	Unique  bool   `xml:"unique,attr"`
}

type GrantDef struct {
	Grantee   string `xml:"grantee,attr"`
	Privilege string `xml:"privilege,attr"`
}

// TableDef is a complete table definition for add-table.
type TableDef struct {
	Name        string           `xml:"name,attr"`
	Columns     []*ColumnDef     `xml:"column"`
	PrimaryKey  *KeyDef          `xml:"primary-key"`
	ForeignKeys []*ForeignKeyDef `xml:"foreign-key"`
	Indexes     []*IndexDef      `xml:"index"`
}

// PropertyChange is one differing column property.
type PropertyChange struct {
	Property  string `xml:"property,attr"`
	Reference string `xml:"reference,attr"`
	Target    string `xml:"target,attr"`
}

type ColumnChange struct {
	Name    string            `xml:"name,attr"`
	Changes []*PropertyChange `xml:"change"`
}

type KeyChange struct {
	Reference string `xml:"reference,attr"`
	Target    string `xml:"target,attr"`
}

// TableChange lists the differences of a table present on both sides.
type TableChange struct {
	Name          string `xml:"name,attr"`
	ReferenceName string `xml:"reference-name,attr,omitempty"`

	AddColumns    []*ColumnDef    `xml:"add-column"`
	DropColumns   []*NamedRef     `xml:"drop-column"`
	ModifyColumns []*ColumnChange `xml:"modify-column"`

	PrimaryKey *KeyChange `xml:"modify-primary-key"`

	AddForeignKeys  []*ForeignKeyDef `xml:"add-foreign-key"`
	DropForeignKeys []*NamedRef      `xml:"drop-foreign-key"`

	AddIndexes  []*IndexDef `xml:"add-index"`
	DropIndexes []*NamedRef `xml:"drop-index"`

	AddConstraints  []*ObjectDef `xml:"add-constraint"`
	DropConstraints []*NamedRef  `xml:"drop-constraint"`

	AddTriggers    []*ObjectDef `xml:"add-trigger"`
	DropTriggers   []*NamedRef  `xml:"drop-trigger"`
	UpdateTriggers []*ObjectDef `xml:"update-trigger"`

	AddPartitions  []*ObjectDef `xml:"add-partition"`
	DropPartitions []*NamedRef  `xml:"drop-partition"`

	AddGrants  []*GrantDef `xml:"add-grant"`
	DropGrants []*GrantDef `xml:"drop-grant"`
}

func (c *TableChange) empty() bool {
	return len(c.AddColumns)+len(c.DropColumns)+len(c.ModifyColumns) == 0 &&
		c.PrimaryKey == nil &&
		len(c.AddForeignKeys)+len(c.DropForeignKeys) == 0 &&
		len(c.AddIndexes)+len(c.DropIndexes) == 0 &&
		len(c.AddConstraints)+len(c.DropConstraints) == 0 &&
		len(c.AddTriggers)+len(c.DropTriggers)+len(c.UpdateTriggers) == 0 &&
		len(c.AddPartitions)+len(c.DropPartitions) == 0 &&
		len(c.AddGrants)+len(c.DropGrants) == 0
}

// Empty reports whether the document holds no change. Warnings do not count.
func (d *Document) Empty() bool {
	return len(d.AddTables)+len(d.DropTables)+len(d.ModifyTables) == 0 &&
		len(d.AddViews)+len(d.DropViews)+len(d.UpdateViews) == 0 &&
		len(d.AddSequences)+len(d.DropSequences)+len(d.UpdateSequences) == 0 &&
		len(d.AddProcedures)+len(d.DropProcedures)+len(d.UpdateProcedures) == 0
}

// Write renders the document as indented XML.
func (d *Document) Write(w io.Writer) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("failed to encode schema diff: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// WriteFile writes the document to path, creating its directory.
func (d *Document) WriteFile(path string) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return d.Write(f)
}
