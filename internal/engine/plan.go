package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"db-reconcile/internal/dbconn"
	"db-reconcile/internal/dialect"
	"db-reconcile/internal/schema"
)

// Pair is one reference table and the target table it is reconciled into.
type Pair struct {
	Reference schema.TableIdentifier
	Target    schema.TableIdentifier

	// table is the target table when it exists, else the reference table;
	// it carries the foreign keys used for ordering.
	table *schema.Table
}

// Plan is the ordered work of a run.
type Plan struct {
	// Insert lists pairs parents first.
	Insert []Pair
	// Delete lists pairs children first.
	Delete   []Pair
	Warnings []string
}

// Plan resolves the table mapping and orders it by foreign key.
func (e *Engine) Plan(ctx context.Context) (*Plan, error) {
	s, err := e.opts.parse()
	if err != nil {
		return nil, err
	}
	return e.plan(ctx, s)
}

func (e *Engine) plan(ctx context.Context, s *settings) (*Plan, error) {
	release, err := acquireBoth(e.ref, e.tgt)
	if err != nil {
		return nil, err
	}
	defer release()

	p := &Plan{}
	refTables, missing, err := e.selectReference(ctx)
	if err != nil {
		return nil, err
	}

	pairs := make([]Pair, 0, len(refTables)+len(missing))
	for _, rt := range refTables {
		pair, err := e.pair(ctx, s, rt.ID, rt)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}
	for _, name := range missing {
		// kept so the run reports the table as missing
		pair, err := e.pair(ctx, s, schema.TableIdentifier{Name: name}, nil)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}
	pairs = uniqueTargets(s, pairs, p)

	if err := e.checkKeys(ctx, s, p); err != nil {
		return nil, err
	}

	if !e.opts.CheckDependencies {
		p.Insert = pairs
		p.Delete = pairs
		return p, nil
	}

	if e.opts.IncludeDelete && !e.opts.IncludeAllDependencies && len(e.opts.Tables) > 0 {
		if err := e.checkReferencing(ctx, pairs, p); err != nil {
			return nil, err
		}
	}

	byTable := make(map[*schema.Table]Pair, len(pairs))
	tables := make([]*schema.Table, 0, len(pairs))
	for _, pair := range pairs {
		byTable[pair.table] = pair
		tables = append(tables, pair.table)
		if pair.table.IsSelfReferencing() {
			p.Warnings = append(p.Warnings, fmt.Sprintf(
				"table %s references itself; rows are written in key order, "+
					"use deferred constraints when a parent row sorts after its children", pair.Target))
		}
	}

	insert, cycles := schema.SortForInsert(tables)
	p.Warnings = append(p.Warnings, cycles...)
	for _, t := range insert {
		p.Insert = append(p.Insert, byTable[t])
	}
	for i := len(p.Insert) - 1; i >= 0; i-- {
		p.Delete = append(p.Delete, p.Insert[i])
	}
	return p, nil
}

func (e *Engine) selectReference(ctx context.Context) ([]*schema.Table, []string, error) {
	all, err := e.ref.ListTables(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list tables of %s: %w", e.ref.Name(), err)
	}
	if len(e.opts.Tables) == 0 {
		return all, nil, nil
	}
	selected, missing, err := schema.SelectTables(all, e.opts.Tables)
	if err != nil {
		return nil, nil, configError(err)
	}
	if e.opts.IncludeAllDependencies {
		if selected, err = e.ref.GetReferencingTables(ctx, selected); err != nil {
			return nil, nil, err
		}
	}
	return selected, missing, nil
}

// pair finds the target of a reference table. The target identifier keeps
// the target's own spelling when the table exists there.
func (e *Engine) pair(ctx context.Context, s *settings, ref schema.TableIdentifier, refTable *schema.Table) (Pair, error) {
	name := ref.Name
	if mapped, ok := s.tableMap[ref.Key()]; ok {
		name = mapped
	}
	tt, err := e.tgt.Table(ctx, name)
	if err != nil {
		return Pair{}, err
	}
	p := Pair{Reference: ref, Target: schema.TableIdentifier{Name: e.tgt.AdjustIdentifierCase(dialect.StripQuotes(name))}}
	switch {
	case tt != nil:
		p.Target = tt.ID
		p.table = tt
	case refTable != nil:
		p.table = refTable
	default:
		p.table = &schema.Table{ID: p.Target}
	}
	return p, nil
}

// uniqueTargets keeps one pair per target table. An explicit table_map
// entry wins over a reference table of the same name as the target; the
// losing pair is left out of the run with a warning.
func uniqueTargets(s *settings, pairs []Pair, p *Plan) []Pair {
	out := make([]Pair, 0, len(pairs))
	claimed := make(map[string]int, len(pairs))
	for _, pair := range pairs {
		_, explicit := s.tableMap[pair.Reference.Key()]
		i, dup := claimed[pair.Target.Key()]
		if !dup {
			claimed[pair.Target.Key()] = len(out)
			out = append(out, pair)
			continue
		}
		kept := out[i]
		if _, keptExplicit := s.tableMap[kept.Reference.Key()]; explicit && !keptExplicit {
			out[i] = pair
			pair, kept = kept, pair
		}
		p.Warnings = append(p.Warnings, fmt.Sprintf(
			"table %s is not compared: target table %s is already mapped from %s",
			pair.Reference, pair.Target, kept.Reference))
	}
	return out
}

// checkKeys warns about alternate keys naming tables the target lacks.
func (e *Engine) checkKeys(ctx context.Context, s *settings, p *Plan) error {
	keys := make([]string, 0, len(s.altKeys))
	for key := range s.altKeys {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		t, err := e.tgt.Table(ctx, key)
		if err != nil {
			return err
		}
		if t == nil {
			p.Warnings = append(p.Warnings, fmt.Sprintf("alternate key given for unknown table %s", key))
		}
	}
	return nil
}

// checkReferencing warns when a target table outside the run references a
// table whose rows may be deleted.
func (e *Engine) checkReferencing(ctx context.Context, pairs []Pair, p *Plan) error {
	in := make(map[string]bool, len(pairs))
	var targets []*schema.Table
	for _, pair := range pairs {
		in[pair.Target.Key()] = true
		targets = append(targets, pair.table)
	}
	closure, err := e.tgt.GetReferencingTables(ctx, targets)
	if err != nil {
		return err
	}
	var outside []string
	for _, t := range closure {
		if !in[t.ID.Key()] {
			outside = append(outside, t.ID.Name)
		}
	}
	if len(outside) > 0 {
		p.Warnings = append(p.Warnings, fmt.Sprintf(
			"tables %s reference selected tables but are not part of the run; deletes may violate their foreign keys",
			strings.Join(outside, ", ")))
	}
	return nil
}

func acquireBoth(ref, tgt dbconn.Handle) (func(), error) {
	releaseRef, err := ref.Acquire()
	if err != nil {
		return nil, err
	}
	releaseTgt, err := tgt.Acquire()
	if err != nil {
		releaseRef()
		return nil, err
	}
	return func() {
		releaseTgt()
		releaseRef()
	}, nil
}
