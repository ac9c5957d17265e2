package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"db-reconcile/internal/dialect"
)

// Querier is the part of *sql.DB the analyzer needs.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// DetailOptions selects which per-table details AnalyzeDetails loads.
type DetailOptions struct {
	Indexes    bool
	Checks     bool
	Triggers   bool
	Partitions bool
	Grants     bool
}

// ObjectOptions selects which schema objects AnalyzeObjects loads.
type ObjectOptions struct {
	Views      bool
	Sequences  bool
	Procedures bool
}

// ---------------------------------------------------------------------
// 1. Core catalog: tables, columns, primary keys, foreign keys
// ---------------------------------------------------------------------

func Analyze(ctx context.Context, db Querier, d dialect.Dialect, schemaName string) (*Catalog, error) {
	target := d.GetSchemaName(schemaName)
	catalog := NewCatalog(target)
	// generated statements qualify names only with an explicitly chosen schema
	qualifier := d.AdjustIdentifierCase(schemaName)

	// --- Step 1: Fetch Tables ---
	err := scanQuery(ctx, db, d.GetTablesQuery(), target, 1, func(v []sql.NullString) {
		if !v[0].Valid {
			return
		}
		catalog.add(&Table{
			ID:           TableIdentifier{Schema: qualifier, Name: v[0].String},
			Dependencies: []string{},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}

	// --- Step 2: Fetch Columns ---
	err = scanQuery(ctx, db, d.GetColumnsQuery(), target, 6, func(v []sql.NullString) {
		t := catalog.Table(v[0].String)
		if t == nil || !v[1].Valid {
			return
		}
		col := &Column{
			Name:       v[1].String,
			DataType:   v[2].String,
			Generic:    d.NormalizeType(v[2].String),
			IsNullable: v[4].String == "YES",
			Default:    v[5].String,
		}
		if v[3].Valid && v[3].String != "" {
			if n, err := strconv.Atoi(v[3].String); err == nil {
				col.Length = n
			} else if f, err := strconv.ParseFloat(v[3].String, 64); err == nil {
				col.Length = int(f)
			}
		}
		t.Columns = append(t.Columns, col)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}

	// --- Step 3: Fetch Primary Keys ---
	err = scanQuery(ctx, db, d.GetPrimaryKeysQuery(), target, 2, func(v []sql.NullString) {
		t := catalog.Table(v[0].String)
		if t == nil || !v[1].Valid {
			return
		}
		t.PrimaryKey = append(t.PrimaryKey, v[1].String)
		if c := t.Column(v[1].String); c != nil {
			c.IsPK = true
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query primary keys: %w", err)
	}

	// --- Step 4: Fetch Foreign Keys ---
	err = scanQuery(ctx, db, d.GetForeignKeysQuery(), target, 5, func(v []sql.NullString) {
		t := catalog.Table(v[0].String)
		if t == nil || !v[3].Valid {
			return
		}
		var fk *ForeignKey
		if n := len(t.ForeignKeys); n > 0 && t.ForeignKeys[n-1].Name == v[1].String {
			fk = t.ForeignKeys[n-1]
		} else {
			fk = &ForeignKey{Name: v[1].String, RefTable: v[3].String}
			t.ForeignKeys = append(t.ForeignKeys, fk)
		}
		fk.Columns = append(fk.Columns, v[2].String)
		fk.RefColumns = append(fk.RefColumns, v[4].String)

		// Add dependency only if it's a known table, other than the table itself
		rKey := NormalizeName(v[3].String)
		if rKey == t.ID.Key() || catalog.byKey[rKey] == nil {
			return
		}
		for _, dep := range t.Dependencies {
			if dep == rKey {
				return
			}
		}
		t.Dependencies = append(t.Dependencies, rKey)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query foreign keys: %w", err)
	}

	return catalog, nil
}

// ---------------------------------------------------------------------
// 2. Structural details used by the schema differ
// ---------------------------------------------------------------------

func AnalyzeDetails(ctx context.Context, db Querier, d dialect.Dialect, catalog *Catalog, opts DetailOptions) error {
	target := catalog.Schema

	if opts.Indexes {
		err := scanQuery(ctx, db, d.GetIndexesQuery(), target, 4, func(v []sql.NullString) {
			t := catalog.Table(v[0].String)
			if t == nil {
				return
			}
			var idx *Index
			if n := len(t.Indexes); n > 0 && t.Indexes[n-1].Name == v[1].String {
				idx = t.Indexes[n-1]
			} else {
				idx = &Index{Name: v[1].String, IsUnique: v[3].String == "YES"}
				t.Indexes = append(t.Indexes, idx)
			}
			idx.Columns = append(idx.Columns, v[2].String)
		})
		if err != nil {
			return fmt.Errorf("failed to query indexes: %w", err)
		}
	}

	if opts.Checks {
		err := scanQuery(ctx, db, d.GetChecksQuery(), target, 3, func(v []sql.NullString) {
			if t := catalog.Table(v[0].String); t != nil {
				t.Checks = append(t.Checks, &Check{Name: v[1].String, Expression: v[2].String})
			}
		})
		if err != nil {
			return fmt.Errorf("failed to query check constraints: %w", err)
		}
	}

	if opts.Triggers {
		err := scanQuery(ctx, db, d.GetTriggersQuery(), target, 3, func(v []sql.NullString) {
			if t := catalog.Table(v[0].String); t != nil {
				t.Triggers = append(t.Triggers, &Trigger{Name: v[1].String, Source: v[2].String})
			}
		})
		if err != nil {
			return fmt.Errorf("failed to query triggers: %w", err)
		}
	}

	if opts.Partitions {
		err := scanQuery(ctx, db, d.GetPartitionsQuery(), target, 3, func(v []sql.NullString) {
			if t := catalog.Table(v[0].String); t != nil {
				t.Partitions = append(t.Partitions, &Partition{Name: v[1].String, Definition: v[2].String})
			}
		})
		if err != nil {
			return fmt.Errorf("failed to query partitions: %w", err)
		}
	}

	if opts.Grants {
		err := scanQuery(ctx, db, d.GetGrantsQuery(), target, 3, func(v []sql.NullString) {
			if t := catalog.Table(v[0].String); t != nil {
				t.Grants = append(t.Grants, &Grant{Grantee: v[1].String, Privilege: v[2].String})
			}
		})
		if err != nil {
			return fmt.Errorf("failed to query grants: %w", err)
		}
	}

	return nil
}

func AnalyzeObjects(ctx context.Context, db Querier, d dialect.Dialect, schemaName string, opts ObjectOptions) (*Objects, error) {
	target := d.GetSchemaName(schemaName)
	objects := &Objects{}

	load := func(query, kind string, dest *[]*Object) error {
		err := scanQuery(ctx, db, query, target, 2, func(v []sql.NullString) {
			*dest = append(*dest, &Object{Name: v[0].String, Source: v[1].String})
		})
		if err != nil {
			return fmt.Errorf("failed to query %s: %w", kind, err)
		}
		return nil
	}

	if opts.Views {
		if err := load(d.GetViewsQuery(), "views", &objects.Views); err != nil {
			return nil, err
		}
	}
	if opts.Sequences {
		if err := load(d.GetSequencesQuery(), "sequences", &objects.Sequences); err != nil {
			return nil, err
		}
	}
	if opts.Procedures {
		if err := load(d.GetProceduresQuery(), "procedures", &objects.Procedures); err != nil {
			return nil, err
		}
	}
	return objects, nil
}

// scanQuery runs a one-bind metadata query and hands every row, scanned as
// nullable strings, to fn. An empty query is an unsupported object type and
// yields no rows.
func scanQuery(ctx context.Context, db Querier, query, schemaName string, width int, fn func([]sql.NullString)) error {
	if query == "" {
		return nil
	}
	rows, err := db.QueryContext(ctx, query, schemaName)
	if err != nil {
		return err
	}
	defer rows.Close()

	vals := make([]sql.NullString, width)
	ptrs := make([]any, width)
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("failed to scan row: %w", err)
		}
		fn(vals)
	}
	return rows.Err()
}
