package datadiff

import (
	"fmt"
	"sort"
	"strings"

	"db-reconcile/internal/schema"
)

// ColumnPair aligns one reference column with its target counterpart.
type ColumnPair struct {
	Ref     *schema.Column
	Target  *schema.Column
	Ignored bool
	RealPK  bool
	Key     bool
}

// Name is the column name in target spelling.
func (p ColumnPair) Name() string { return p.Target.Name }

// ColumnMapping is the column alignment of one table pair. Both sides are
// read with the same column order, so position i of a row on either side
// belongs to Pairs[i].
type ColumnMapping struct {
	Pairs []ColumnPair
	// Keys indexes Pairs in key order.
	Keys []int
}

// NewColumnMapping aligns ref and tgt by case-insensitive column name, in
// target column order. Columns in ignore take no part in the comparison
// unless they are key columns. A non-empty mismatch describes why the
// tables cannot be compared.
func NewColumnMapping(ref, tgt *schema.Table, key *KeyDefinition, ignore map[string]bool) (m *ColumnMapping, mismatch string) {
	refCols := make(map[string]*schema.Column, len(ref.Columns))
	for _, c := range ref.Columns {
		refCols[schema.NormalizeName(c.Name)] = c
	}
	tgtCols := make(map[string]bool, len(tgt.Columns))
	realPK := make(map[string]bool, len(tgt.PrimaryKey))
	for _, c := range tgt.PrimaryKey {
		realPK[schema.NormalizeName(c)] = true
	}

	var problems []string
	m = &ColumnMapping{}
	index := make(map[string]int)
	for _, c := range tgt.Columns {
		name := schema.NormalizeName(c.Name)
		tgtCols[name] = true
		isKey := key.Contains(c.Name)
		if ignore[name] && !isKey {
			continue
		}
		rc, ok := refCols[name]
		if !ok {
			problems = append(problems, fmt.Sprintf("column %s missing in reference", c.Name))
			continue
		}
		index[name] = len(m.Pairs)
		m.Pairs = append(m.Pairs, ColumnPair{
			Ref:     rc,
			Target:  c,
			Ignored: ignore[name],
			RealPK:  realPK[name],
			Key:     isKey,
		})
	}

	var extra []string
	for name, c := range refCols {
		if !tgtCols[name] && !ignore[name] {
			extra = append(extra, c.Name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		problems = append(problems, fmt.Sprintf("column %s missing in target", name))
	}

	for _, k := range key.Columns {
		i, ok := index[schema.NormalizeName(k)]
		if !ok {
			if tgtCols[schema.NormalizeName(k)] {
				// already reported as missing in reference
				continue
			}
			problems = append(problems, fmt.Sprintf("key column %s missing in target", k))
			continue
		}
		m.Keys = append(m.Keys, i)
	}

	if len(problems) > 0 {
		return nil, strings.Join(problems, "; ")
	}
	return m, ""
}

// RefColumns returns the reference column names in read order.
func (m *ColumnMapping) RefColumns() []string {
	out := make([]string, len(m.Pairs))
	for i, p := range m.Pairs {
		out[i] = p.Ref.Name
	}
	return out
}

// TargetColumns returns the target column names in read order.
func (m *ColumnMapping) TargetColumns() []string {
	out := make([]string, len(m.Pairs))
	for i, p := range m.Pairs {
		out[i] = p.Target.Name
	}
	return out
}

// RefKeys returns the reference spelling of the key columns in key order.
func (m *ColumnMapping) RefKeys() []string {
	out := make([]string, len(m.Keys))
	for i, k := range m.Keys {
		out[i] = m.Pairs[k].Ref.Name
	}
	return out
}

// TargetKeys returns the target spelling of the key columns in key order.
func (m *ColumnMapping) TargetKeys() []string {
	out := make([]string, len(m.Keys))
	for i, k := range m.Keys {
		out[i] = m.Pairs[k].Target.Name
	}
	return out
}

// KeyOnly returns a mapping restricted to the key columns, used when only
// row identity matters.
func (m *ColumnMapping) KeyOnly() *ColumnMapping {
	out := &ColumnMapping{}
	for _, k := range m.Keys {
		out.Keys = append(out.Keys, len(out.Pairs))
		out.Pairs = append(out.Pairs, m.Pairs[k])
	}
	return out
}

// RowDiff classifies an aligned row pair.
type RowDiff int

const (
	RowIdentical RowDiff = iota
	RowModified
	RowOnlyInReference
	RowOnlyInTarget
)

func (r RowDiff) String() string {
	switch r {
	case RowModified:
		return "modified"
	case RowOnlyInReference:
		return "only in reference"
	case RowOnlyInTarget:
		return "only in target"
	}
	return "identical"
}

// RowComparator compares formatted rows of one table pair.
type RowComparator struct {
	m             *ColumnMapping
	f             *Formatter
	excludeRealPK bool
}

func NewRowComparator(m *ColumnMapping, f *Formatter, excludeRealPK bool) *RowComparator {
	return &RowComparator{m: m, f: f, excludeRealPK: excludeRealPK}
}

// Compare classifies ref and tgt; either may be nil for a one-sided row.
// For a modified pair it returns the indexes of the changed columns. Key
// columns matched already and are never reported as changed.
func (c *RowComparator) Compare(ref, tgt []Value) (RowDiff, []int) {
	switch {
	case ref == nil && tgt == nil:
		return RowIdentical, nil
	case tgt == nil:
		return RowOnlyInReference, nil
	case ref == nil:
		return RowOnlyInTarget, nil
	}

	var changed []int
	for i, p := range c.m.Pairs {
		if !c.compared(p) {
			continue
		}
		if !c.f.Equal(ref[i], tgt[i]) {
			changed = append(changed, i)
		}
	}
	if len(changed) == 0 {
		return RowIdentical, nil
	}
	return RowModified, changed
}

// Emitted reports whether the pair is written by INSERT statements.
func (c *RowComparator) Emitted(p ColumnPair) bool {
	if p.Ignored {
		return false
	}
	return !(c.excludeRealPK && p.RealPK)
}

func (c *RowComparator) compared(p ColumnPair) bool {
	return !p.Key && c.Emitted(p)
}

// compareRowKeys orders two rows by the key columns of m.
func compareRowKeys(m *ColumnMapping, a, b []Value) int {
	for _, k := range m.Keys {
		if c := CompareKeys(a[k], b[k]); c != 0 {
			return c
		}
	}
	return 0
}
