package schema

import (
	"fmt"
	"path"
	"strings"
)

// ParseTableMap parses "reference=target" entries into a map from the
// normalized reference name to the target table name.
func ParseTableMap(entries []string) (map[string]string, error) {
	out := make(map[string]string, len(entries))
	targets := make(map[string]string, len(entries))
	for _, e := range entries {
		ref, tgt, ok := strings.Cut(e, "=")
		ref, tgt = strings.TrimSpace(ref), strings.TrimSpace(tgt)
		if !ok || ref == "" || tgt == "" {
			return nil, fmt.Errorf("invalid table mapping %q, expected reference=target", e)
		}
		key := NormalizeName(ref)
		if _, dup := out[key]; dup {
			return nil, fmt.Errorf("table %s is mapped twice", ref)
		}
		if prev, dup := targets[NormalizeName(tgt)]; dup {
			return nil, fmt.Errorf("tables %s and %s are both mapped to %s", prev, ref, tgt)
		}
		targets[NormalizeName(tgt)] = ref
		out[key] = tgt
	}
	return out, nil
}

// IsPattern reports whether name contains shell wildcard characters.
func IsPattern(name string) bool {
	return strings.ContainsAny(name, "*?[")
}

// Select returns the catalog tables matching any of patterns.
func (c *Catalog) Select(patterns []string) (tables []*Table, missing []string, err error) {
	return SelectTables(c.Tables, patterns)
}

// SelectTables returns the tables matching any of patterns, in their input
// order. Patterns are shell globs compared case-insensitively. Plain names
// that match no table are returned in missing.
func SelectTables(all []*Table, patterns []string) (tables []*Table, missing []string, err error) {
	byKey := make(map[string]*Table, len(all))
	for _, t := range all {
		byKey[t.ID.Key()] = t
	}
	seen := make(map[string]bool)
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !IsPattern(p) {
			t := byKey[NormalizeName(p)]
			if t == nil {
				missing = append(missing, p)
				continue
			}
			if !seen[t.ID.Key()] {
				seen[t.ID.Key()] = true
				tables = append(tables, t)
			}
			continue
		}
		pattern := NormalizeName(p)
		if _, err := path.Match(pattern, ""); err != nil {
			return nil, nil, fmt.Errorf("invalid table pattern %q: %w", p, err)
		}
		for _, t := range all {
			if ok, _ := path.Match(pattern, t.ID.Key()); ok && !seen[t.ID.Key()] {
				seen[t.ID.Key()] = true
				tables = append(tables, t)
			}
		}
	}
	// keep input order regardless of pattern order
	order := make(map[string]int, len(all))
	for i, t := range all {
		order[t.ID.Key()] = i
	}
	sortByOrder(tables, order)
	return tables, missing, nil
}

func sortByOrder(tables []*Table, order map[string]int) {
	for i := 1; i < len(tables); i++ {
		for j := i; j > 0 && order[tables[j].ID.Key()] < order[tables[j-1].ID.Key()]; j-- {
			tables[j], tables[j-1] = tables[j-1], tables[j]
		}
	}
}
