package schemadiff

import "db-reconcile/internal/schema"

// Options selects what the structural differ compares.
type Options struct {
	// Tables restricts the comparison to matching reference tables. Entries
	// may be shell globs; empty compares every table.
	Tables []string `mapstructure:"tables"`
	// TableMap pairs tables whose names differ, as "reference=target".
	TableMap []string `mapstructure:"table_map"`

	ForeignKeys bool `mapstructure:"foreign_keys" default:"true"`
	PrimaryKeys bool `mapstructure:"primary_keys" default:"true"`
	Indexes     bool `mapstructure:"indexes" default:"true"`
	Constraints bool `mapstructure:"constraints" default:"true"`
	Views       bool `mapstructure:"views" default:"true"`
	Sequences   bool `mapstructure:"sequences" default:"true"`
	Procedures  bool `mapstructure:"procedures" default:"true"`
	Triggers    bool `mapstructure:"triggers" default:"true"`
	Partitions  bool `mapstructure:"partitions" default:"false"`
	Grants      bool `mapstructure:"grants" default:"false"`

	// GenericTypes compares column types by their generic category instead
	// of the vendor spelling.
	GenericTypes bool `mapstructure:"generic_types" default:"false"`

	// Output is the path of the XML change document.
	Output string `mapstructure:"output" default:"schema-diff.xml"`
}

func (o Options) details() schema.DetailOptions {
	return schema.DetailOptions{
		Indexes:    o.Indexes,
		Checks:     o.Constraints,
		Triggers:   o.Triggers,
		Partitions: o.Partitions,
		Grants:     o.Grants,
	}
}

func (o Options) objects() schema.ObjectOptions {
	return schema.ObjectOptions{
		Views:      o.Views,
		Sequences:  o.Sequences,
		Procedures: o.Procedures,
	}
}
