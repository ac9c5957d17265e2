package datadiff

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"db-reconcile/internal/dbconn"
	"db-reconcile/internal/schema"
)

// ErrNoPK means the target table has neither an alternate key nor a primary key.
var ErrNoPK = errors.New("no primary key")

// KeySource tells where a KeyDefinition came from.
type KeySource int

const (
	KeyPrimary KeySource = iota
	KeyAlternate
)

func (s KeySource) String() string {
	if s == KeyAlternate {
		return "alternate key"
	}
	return "primary key"
}

// KeyDefinition is the ordered set of columns identifying a row of a target
// table. Column names keep the spelling they were declared with.
type KeyDefinition struct {
	Columns []string
	Source  KeySource
}

// Contains reports whether name is a key column, ignoring case and quotes.
func (k *KeyDefinition) Contains(name string) bool {
	key := schema.NormalizeName(name)
	for _, c := range k.Columns {
		if schema.NormalizeName(c) == key {
			return true
		}
	}
	return false
}

// ParseAlternateKeys parses entries of the form table=col1,col2. Table names
// are matched case-insensitively against the target table.
func ParseAlternateKeys(entries []string) (map[string][]string, error) {
	out := make(map[string][]string, len(entries))
	for _, entry := range entries {
		table, cols, ok := strings.Cut(entry, "=")
		table = strings.TrimSpace(table)
		if !ok || table == "" {
			return nil, fmt.Errorf("malformed alternate key %q: want table=col1,col2", entry)
		}
		var columns []string
		for _, c := range strings.Split(cols, ",") {
			c = strings.TrimSpace(c)
			if c == "" {
				return nil, fmt.Errorf("malformed alternate key %q: empty column name", entry)
			}
			columns = append(columns, c)
		}
		key := schema.NormalizeName(table)
		if _, dup := out[key]; dup {
			return nil, fmt.Errorf("duplicate alternate key for table %s", table)
		}
		out[key] = columns
	}
	return out, nil
}

// KeyResolver decides which columns identify rows of a target table:
// alternate key override first, then the target's primary key. The reference
// side is never consulted. Results are cached per target table for the life
// of the resolver so every component of a run shares one KeyDefinition.
type KeyResolver struct {
	overrides      map[string][]string
	ignore         map[string]bool
	excludeIgnored bool

	mu    sync.Mutex
	cache map[string]*KeyDefinition
}

// NewKeyResolver creates a resolver. When excludeIgnored is set, ignored
// columns are removed from resolved keys.
func NewKeyResolver(overrides map[string][]string, ignore []string, excludeIgnored bool) *KeyResolver {
	return &KeyResolver{
		overrides:      overrides,
		ignore:         columnSet(ignore),
		excludeIgnored: excludeIgnored,
		cache:          make(map[string]*KeyDefinition),
	}
}

// Resolve returns the key of the target table or ErrNoPK.
func (r *KeyResolver) Resolve(ctx context.Context, target dbconn.Handle, table schema.TableIdentifier) (*KeyDefinition, error) {
	cacheKey := table.Key()

	r.mu.Lock()
	defer r.mu.Unlock()

	if k, ok := r.cache[cacheKey]; ok {
		if k == nil {
			return nil, ErrNoPK
		}
		return k, nil
	}

	var def *KeyDefinition
	if cols, ok := r.overrides[cacheKey]; ok {
		def = &KeyDefinition{Columns: cols, Source: KeyAlternate}
	} else {
		pk, err := target.GetPrimaryKey(ctx, table.Name)
		if err != nil {
			return nil, err
		}
		def = &KeyDefinition{Columns: pk, Source: KeyPrimary}
	}

	if r.excludeIgnored {
		kept := make([]string, 0, len(def.Columns))
		for _, c := range def.Columns {
			if !r.ignore[schema.NormalizeName(c)] {
				kept = append(kept, c)
			}
		}
		def.Columns = kept
	}

	if len(def.Columns) == 0 {
		r.cache[cacheKey] = nil
		return nil, ErrNoPK
	}
	r.cache[cacheKey] = def
	return def, nil
}

// Overrides returns the target tables with an alternate key, sorted.
func (r *KeyResolver) Overrides() []string {
	out := make([]string, 0, len(r.overrides))
	for k := range r.overrides {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func columnSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			set[schema.NormalizeName(n)] = true
		}
	}
	return set
}
