package datadiff

import (
	"context"

	"db-reconcile/internal/dbconn"
	"db-reconcile/internal/logger"
	"db-reconcile/internal/schema"

	"go.uber.org/zap"
)

// Differ compares one table pair and emits INSERT statements for rows that
// exist only in the reference and UPDATE statements for rows that differ.
// A Differ is reused across table pairs: SetTables, then DoSync.
type Differ struct {
	syncer
	cmp *RowComparator
}

func NewDiffer(ref, tgt dbconn.Handle, keys *KeyResolver, f *Formatter, opts Options, log *zap.Logger) *Differ {
	return &Differ{syncer: newSyncer(ref, tgt, keys, f, opts, logger.OrNop(log).Named("differ"))}
}

// SetTables matches the pair and resolves its key. A non-nil error is an I/O
// failure; skip conditions are reported through the status.
func (d *Differ) SetTables(ctx context.Context, ref, tgt schema.TableIdentifier) (Status, error) {
	d.cmp = nil
	status, err := d.setTables(ctx, ref, tgt)
	if err == nil && status == StatusOK {
		d.cmp = NewRowComparator(d.mapping, d.f, d.opts.ExcludeRealPK)
	}
	return status, err
}

// DoSync streams both tables and writes statements to w as they are found.
// On cancellation the statements already written are kept and the context
// error is returned.
func (d *Differ) DoSync(ctx context.Context, w StatementWriter) error {
	if d.cmp == nil {
		return ErrNotConfigured
	}
	err := d.run(ctx, d.mapping, mergeHandler{
		refOnly: func(ref []Value) error {
			stmt := d.insert(ref)
			if stmt == nil {
				return nil
			}
			return d.write(ctx, w, stmt)
		},
		both: func(ref, tgt []Value) error {
			diff, changed := d.cmp.Compare(ref, tgt)
			if diff != RowModified {
				return nil
			}
			return d.write(ctx, w, d.update(ref, tgt, changed))
		},
	})
	d.log.Debug("table compared",
		zap.String("table", d.tgtTable.ID.String()),
		zap.Stringer("state", d.state),
		zap.Int("inserts", d.stats.Inserts),
		zap.Int("updates", d.stats.Updates))
	return err
}

func (d *Differ) insert(ref []Value) *Statement {
	stmt := &Statement{Kind: KindInsert, Table: d.tgtTable.ID}
	for i, p := range d.mapping.Pairs {
		if d.cmp.Emitted(p) {
			stmt.Values = append(stmt.Values, ColumnValue{Column: p.Name(), Value: ref[i]})
		}
	}
	if len(stmt.Values) == 0 {
		return nil
	}
	return stmt
}

func (d *Differ) update(ref, tgt []Value, changed []int) *Statement {
	stmt := &Statement{Kind: KindUpdate, Table: d.tgtTable.ID, Key: keyValues(d.mapping, tgt)}
	for _, i := range changed {
		stmt.Values = append(stmt.Values, ColumnValue{Column: d.mapping.Pairs[i].Name(), Value: ref[i]})
	}
	return stmt
}
