package schemadiff

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"db-reconcile/internal/dialect"
	"db-reconcile/internal/logger"
	"db-reconcile/internal/schema"

	"go.uber.org/zap"
)

// Source is one side of a structural comparison.
type Source interface {
	Name() string
	Schema() string
	Dialect() dialect.Dialect
	Describe(ctx context.Context, details schema.DetailOptions, objects schema.ObjectOptions) (*schema.Catalog, *schema.Objects, error)
}

type Differ struct {
	opts     Options
	tableMap map[string]string
	log      *zap.Logger
}

func New(opts Options, log *zap.Logger) (*Differ, error) {
	tableMap, err := schema.ParseTableMap(opts.TableMap)
	if err != nil {
		return nil, err
	}
	return &Differ{opts: opts, tableMap: tableMap, log: logger.OrNop(log).Named("schemadiff")}, nil
}

// side is one described source.
type side struct {
	catalog *schema.Catalog
	objects *schema.Objects
}

// Compare describes both sources and returns their structural differences.
// Objects missing on either side become add or drop entries.
func (d *Differ) Compare(ctx context.Context, ref, tgt Source) (*Document, error) {
	r, err := d.describe(ctx, ref)
	if err != nil {
		return nil, err
	}
	t, err := d.describe(ctx, tgt)
	if err != nil {
		return nil, err
	}

	doc := &Document{ReferenceSchema: r.catalog.Schema, TargetSchema: t.catalog.Schema}
	// vendor type names only mean something between servers of one kind
	generic := d.opts.GenericTypes || ref.Dialect().Name() != tgt.Dialect().Name()

	if err := d.compareTables(doc, r, t, generic); err != nil {
		return nil, err
	}
	if d.opts.Views {
		doc.AddViews, doc.DropViews, doc.UpdateViews = compareObjects(r.objects.Views, t.objects.Views)
	}
	if d.opts.Sequences {
		doc.AddSequences, doc.DropSequences, doc.UpdateSequences = compareObjects(r.objects.Sequences, t.objects.Sequences)
	}
	if d.opts.Procedures {
		doc.AddProcedures, doc.DropProcedures, doc.UpdateProcedures = compareObjects(r.objects.Procedures, t.objects.Procedures)
	}

	d.log.Info("schema compared",
		zap.String("reference", ref.Name()), zap.String("target", tgt.Name()),
		zap.Int("added", len(doc.AddTables)), zap.Int("dropped", len(doc.DropTables)),
		zap.Int("modified", len(doc.ModifyTables)), zap.Bool("empty", doc.Empty()))
	return doc, nil
}

func (d *Differ) describe(ctx context.Context, src Source) (*side, error) {
	catalog, objects, err := src.Describe(ctx, d.opts.details(), d.opts.objects())
	if err != nil {
		return nil, fmt.Errorf("failed to read schema of %s: %w", src.Name(), err)
	}
	return &side{catalog: catalog, objects: objects}, nil
}

func (d *Differ) compareTables(doc *Document, r, t *side, generic bool) error {
	refTables, tgtTables := r.catalog.Tables, t.catalog.Tables
	if len(d.opts.Tables) > 0 {
		var missing []string
		var err error
		refTables, missing, err = r.catalog.Select(d.opts.Tables)
		if err != nil {
			return err
		}
		// mapped targets are selected only through a selected reference name
		patterns := append([]string{}, d.opts.Tables...)
		for _, rt := range refTables {
			if name, ok := d.tableMap[rt.ID.Key()]; ok {
				patterns = append(patterns, name)
			}
		}
		for _, name := range missing {
			if mapped, ok := d.tableMap[schema.NormalizeName(name)]; ok {
				patterns = append(patterns, mapped)
			}
		}
		tgtTables, _, err = t.catalog.Select(patterns)
		if err != nil {
			return err
		}
		for _, name := range missing {
			if t.catalog.Table(d.targetName(name)) == nil {
				doc.Warnings = append(doc.Warnings, fmt.Sprintf("table %s exists on neither side", name))
			}
		}
	}

	paired := make(map[string]bool)
	for _, rt := range refTables {
		tt := t.catalog.Table(d.targetName(rt.ID.Name))
		if tt == nil {
			doc.AddTables = append(doc.AddTables, tableDef(rt, d.opts))
			continue
		}
		paired[tt.ID.Key()] = true
		if c := d.compareTable(rt, tt, generic); !c.empty() {
			doc.ModifyTables = append(doc.ModifyTables, c)
		}
	}
	for _, tt := range tgtTables {
		if !paired[tt.ID.Key()] {
			doc.DropTables = append(doc.DropTables, &NamedRef{Name: tt.ID.Name})
		}
	}
	return nil
}

func (d *Differ) targetName(refName string) string {
	if name, ok := d.tableMap[schema.NormalizeName(refName)]; ok {
		return name
	}
	return refName
}

func (d *Differ) compareTable(rt, tt *schema.Table, generic bool) *TableChange {
	c := &TableChange{Name: tt.ID.Name}
	if rt.ID.Key() != tt.ID.Key() {
		c.ReferenceName = rt.ID.Name
	}

	for _, rc := range rt.Columns {
		tc := tt.Column(rc.Name)
		if tc == nil {
			c.AddColumns = append(c.AddColumns, columnDef(rc))
			continue
		}
		if changes := compareColumn(rc, tc, generic); len(changes) > 0 {
			c.ModifyColumns = append(c.ModifyColumns, &ColumnChange{Name: rc.Name, Changes: changes})
		}
	}
	for _, tc := range tt.Columns {
		if rt.Column(tc.Name) == nil {
			c.DropColumns = append(c.DropColumns, &NamedRef{Name: tc.Name})
		}
	}

	if d.opts.PrimaryKeys {
		rk, tk := columnList(rt.PrimaryKey), columnList(tt.PrimaryKey)
		if !strings.EqualFold(rk, tk) {
			c.PrimaryKey = &KeyChange{Reference: rk, Target: tk}
		}
	}

	if d.opts.ForeignKeys {
		// constraint names are often generated, so keys match by shape
		add, drop := diffBy(rt.ForeignKeys, tt.ForeignKeys, fkSignature)
		for _, fk := range add {
			c.AddForeignKeys = append(c.AddForeignKeys, fkDef(fk))
		}
		for _, fk := range drop {
			c.DropForeignKeys = append(c.DropForeignKeys, &NamedRef{Name: fk.Name})
		}
	}

	if d.opts.Indexes {
		add, drop := diffBy(rt.Indexes, tt.Indexes, indexSignature)
		for _, idx := range add {
			c.AddIndexes = append(c.AddIndexes, indexDef(idx))
		}
		for _, idx := range drop {
			c.DropIndexes = append(c.DropIndexes, &NamedRef{Name: idx.Name})
		}
	}

	if d.opts.Constraints {
		add, drop := diffBy(rt.Checks, tt.Checks, func(ck *schema.Check) string {
			return schema.NormalizeName(ck.Name) + "|" + NormalizeSource(ck.Expression)
		})
		for _, ck := range add {
			c.AddConstraints = append(c.AddConstraints, &ObjectDef{Name: ck.Name, Source: ck.Expression})
		}
		for _, ck := range drop {
			c.DropConstraints = append(c.DropConstraints, &NamedRef{Name: ck.Name})
		}
	}

	if d.opts.Triggers {
		c.AddTriggers, c.DropTriggers, c.UpdateTriggers = compareObjects(triggerObjects(rt.Triggers), triggerObjects(tt.Triggers))
	}

	if d.opts.Partitions {
		add, drop := diffBy(rt.Partitions, tt.Partitions, func(p *schema.Partition) string {
			return schema.NormalizeName(p.Name) + "|" + NormalizeSource(p.Definition)
		})
		for _, p := range add {
			c.AddPartitions = append(c.AddPartitions, &ObjectDef{Name: p.Name, Source: p.Definition})
		}
		for _, p := range drop {
			c.DropPartitions = append(c.DropPartitions, &NamedRef{Name: p.Name})
		}
	}

	if d.opts.Grants {
		add, drop := diffBy(rt.Grants, tt.Grants, func(g *schema.Grant) string {
			return strings.ToUpper(g.Grantee + "|" + g.Privilege)
		})
		for _, g := range add {
			c.AddGrants = append(c.AddGrants, &GrantDef{Grantee: g.Grantee, Privilege: g.Privilege})
		}
		for _, g := range drop {
			c.DropGrants = append(c.DropGrants, &GrantDef{Grantee: g.Grantee, Privilege: g.Privilege})
		}
	}
	return c
}

func compareColumn(rc, tc *schema.Column, generic bool) []*PropertyChange {
	var changes []*PropertyChange
	if generic {
		if rc.Generic != tc.Generic {
			changes = append(changes, &PropertyChange{Property: "type", Reference: rc.Generic, Target: tc.Generic})
		}
	} else if !strings.EqualFold(rc.DataType, tc.DataType) {
		changes = append(changes, &PropertyChange{Property: "type", Reference: rc.DataType, Target: tc.DataType})
	}
	if rc.Length > 0 && tc.Length > 0 && rc.Length != tc.Length {
		changes = append(changes, &PropertyChange{Property: "length",
			Reference: strconv.Itoa(rc.Length), Target: strconv.Itoa(tc.Length)})
	}
	if rc.IsNullable != tc.IsNullable {
		changes = append(changes, &PropertyChange{Property: "nullable",
			Reference: strconv.FormatBool(rc.IsNullable), Target: strconv.FormatBool(tc.IsNullable)})
	}
	if !generic && NormalizeSource(rc.Default) != NormalizeSource(tc.Default) {
		changes = append(changes, &PropertyChange{Property: "default", Reference: rc.Default, Target: tc.Default})
	}
	return changes
}

// compareObjects matches objects by name and compares their normalized
// source text.
func compareObjects(ref, tgt []*schema.Object) (add []*ObjectDef, drop []*NamedRef, update []*ObjectDef) {
	byName := make(map[string]*schema.Object, len(tgt))
	for _, o := range tgt {
		byName[schema.NormalizeName(o.Name)] = o
	}
	seen := make(map[string]bool, len(ref))
	for _, o := range ref {
		key := schema.NormalizeName(o.Name)
		seen[key] = true
		t, ok := byName[key]
		switch {
		case !ok:
			add = append(add, &ObjectDef{Name: o.Name, Source: o.Source})
		case NormalizeSource(o.Source) != NormalizeSource(t.Source):
			update = append(update, &ObjectDef{Name: o.Name, Source: o.Source})
		}
	}
	for _, o := range tgt {
		if !seen[schema.NormalizeName(o.Name)] {
			drop = append(drop, &NamedRef{Name: o.Name})
		}
	}
	return add, drop, update
}

// diffBy returns the reference items whose signature the target lacks and
// the target items whose signature the reference lacks.
func diffBy[T any](ref, tgt []T, signature func(T) string) (add, drop []T) {
	in := func(items []T) map[string]bool {
		m := make(map[string]bool, len(items))
		for _, it := range items {
			m[signature(it)] = true
		}
		return m
	}
	refSet, tgtSet := in(ref), in(tgt)
	for _, it := range ref {
		if !tgtSet[signature(it)] {
			add = append(add, it)
		}
	}
	for _, it := range tgt {
		if !refSet[signature(it)] {
			drop = append(drop, it)
		}
	}
	return add, drop
}

// NormalizeSource collapses whitespace and drops a trailing semicolon so
// object bodies compare by content rather than layout.
func NormalizeSource(src string) string {
	src = strings.Join(strings.Fields(src), " ")
	return strings.TrimRight(src, "; ")
}

func fkSignature(fk *schema.ForeignKey) string {
	return strings.ToUpper(columnList(fk.Columns)) + "->" +
		schema.NormalizeName(fk.RefTable) + "(" + strings.ToUpper(columnList(fk.RefColumns)) + ")"
}

func indexSignature(idx *schema.Index) string {
	return schema.NormalizeName(idx.Name) + "|" + strings.ToUpper(columnList(idx.Columns)) + "|" + strconv.FormatBool(idx.IsUnique)
}

func triggerObjects(triggers []*schema.Trigger) []*schema.Object {
	out := make([]*schema.Object, 0, len(triggers))
	for _, tr := range triggers {
		out = append(out, &schema.Object{Name: tr.Name, Source: tr.Source})
	}
	return out
}

func columnList(cols []string) string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = dialect.StripQuotes(c)
	}
	return strings.Join(names, ",")
}

func columnDef(c *schema.Column) *ColumnDef {
	return &ColumnDef{Name: c.Name, Type: c.DataType, Length: c.Length, Nullable: c.IsNullable, Default: c.Default}
}

func fkDef(fk *schema.ForeignKey) *ForeignKeyDef {
	return &ForeignKeyDef{
		Name:       fk.Name,
		Columns:    columnList(fk.Columns),
		RefTable:   fk.RefTable,
		RefColumns: columnList(fk.RefColumns),
	}
}

func indexDef(idx *schema.Index) *IndexDef {
	return &IndexDef{Name: idx.Name, Columns: columnList(idx.Columns), Unique: idx.IsUnique}
}

func tableDef(t *schema.Table, opts Options) *TableDef {
	def := &TableDef{Name: t.ID.Name}
	for _, c := range t.Columns {
		def.Columns = append(def.Columns, columnDef(c))
	}
	if opts.PrimaryKeys && len(t.PrimaryKey) > 0 {
		def.PrimaryKey = &KeyDef{Columns: columnList(t.PrimaryKey)}
	}
	if opts.ForeignKeys {
		for _, fk := range t.ForeignKeys {
			def.ForeignKeys = append(def.ForeignKeys, fkDef(fk))
		}
	}
	if opts.Indexes {
		idx := append([]*schema.Index{}, t.Indexes...)
		sort.Slice(idx, func(i, j int) bool { return idx[i].Name < idx[j].Name })
		for _, ix := range idx {
			def.Indexes = append(def.Indexes, indexDef(ix))
		}
	}
	return def
}
