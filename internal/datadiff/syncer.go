package datadiff

import (
	"context"
	"errors"
	"fmt"

	"db-reconcile/internal/dbconn"
	"db-reconcile/internal/schema"

	"go.uber.org/zap"
)

var (
	// ErrNotConfigured is returned by DoSync before SetTables reported StatusOK.
	ErrNotConfigured = errors.New("table pair not configured")
	// ErrKeyOrder means a cursor returned rows out of key order or with a
	// repeated key, so the merge cannot be trusted.
	ErrKeyOrder = errors.New("rows are not ordered by a unique key")
)

// Status is the outcome of matching a table pair, computed once by
// SetTables. Only StatusOK proceeds to row comparison.
type Status int

const (
	StatusOK Status = iota
	StatusReferenceNotFound
	StatusTargetNotFound
	StatusNoPK
	StatusColumnMismatch
)

func (s Status) String() string {
	switch s {
	case StatusReferenceNotFound:
		return "reference table not found"
	case StatusTargetNotFound:
		return "target table not found"
	case StatusNoPK:
		return "no primary key"
	case StatusColumnMismatch:
		return "column mismatch"
	}
	return "ok"
}

// State is the lifecycle of a Differ or DeleteSynchronizer.
type State int

const (
	StateIdle State = iota
	StateComparing
	StateDone
	StateCancelled
	StateError
)

func (s State) String() string {
	return [...]string{"idle", "comparing", "done", "cancelled", "error"}[s]
}

// Options are the comparison toggles shared by the Differ and the
// DeleteSynchronizer.
type Options struct {
	IgnoreColumns []string
	ExcludeRealPK bool
}

// Stats counts the work done for one table pair.
type Stats struct {
	ReferenceRows int
	TargetRows    int
	Inserts       int
	Updates       int
	Deletes       int
}

// syncer holds what the Differ and the DeleteSynchronizer share: table
// matching, key resolution and the two-cursor merge.
type syncer struct {
	ref, tgt dbconn.Handle
	keys     *KeyResolver
	f        *Formatter
	opts     Options
	ignore   map[string]bool
	log      *zap.Logger

	state   State
	status  Status
	message string
	stats   Stats

	refTable *schema.Table
	tgtTable *schema.Table
	key      *KeyDefinition
	mapping  *ColumnMapping
}

func newSyncer(ref, tgt dbconn.Handle, keys *KeyResolver, f *Formatter, opts Options, log *zap.Logger) syncer {
	return syncer{
		ref:    ref,
		tgt:    tgt,
		keys:   keys,
		f:      f,
		opts:   opts,
		ignore: columnSet(opts.IgnoreColumns),
		log:    log,
	}
}

func (s *syncer) State() State               { return s.state }
func (s *syncer) Status() Status             { return s.status }
func (s *syncer) Stats() Stats               { return s.stats }
func (s *syncer) Key() *KeyDefinition        { return s.key }
func (s *syncer) Mapping() *ColumnMapping    { return s.mapping }
func (s *syncer) TargetTable() *schema.Table { return s.tgtTable }

// Message explains a non-OK status.
func (s *syncer) Message() string { return s.message }

func (s *syncer) setTables(ctx context.Context, ref, tgt schema.TableIdentifier) (Status, error) {
	if s.state == StateComparing {
		return s.status, errors.New("comparison in progress")
	}
	*s = syncer{ref: s.ref, tgt: s.tgt, keys: s.keys, f: s.f, opts: s.opts, ignore: s.ignore, log: s.log}

	release, err := acquire(s.ref, s.tgt)
	if err != nil {
		s.state = StateError
		return s.status, err
	}
	defer release()

	status, err := s.match(ctx, ref, tgt)
	if err != nil {
		s.state = StateError
		return status, err
	}
	s.status = status
	if status != StatusOK {
		s.log.Debug("table pair skipped",
			zap.String("reference", ref.String()),
			zap.String("target", tgt.String()),
			zap.Stringer("status", status),
			zap.String("reason", s.message))
	}
	return status, nil
}

func (s *syncer) match(ctx context.Context, ref, tgt schema.TableIdentifier) (Status, error) {
	var err error
	if s.refTable, err = s.ref.Table(ctx, ref.Name); err != nil {
		return s.status, err
	}
	if s.refTable == nil {
		s.message = fmt.Sprintf("table %s does not exist in %s", ref, s.ref.Name())
		return StatusReferenceNotFound, nil
	}
	if s.tgtTable, err = s.tgt.Table(ctx, tgt.Name); err != nil {
		return s.status, err
	}
	if s.tgtTable == nil {
		s.message = fmt.Sprintf("table %s does not exist in %s", tgt, s.tgt.Name())
		return StatusTargetNotFound, nil
	}

	s.key, err = s.keys.Resolve(ctx, s.tgt, s.tgtTable.ID)
	if errors.Is(err, ErrNoPK) {
		s.message = fmt.Sprintf("table %s has no primary key and no alternate key", s.tgtTable.ID)
		return StatusNoPK, nil
	}
	if err != nil {
		return s.status, err
	}

	mapping, mismatch := NewColumnMapping(s.refTable, s.tgtTable, s.key, s.ignore)
	if mismatch != "" {
		s.message = mismatch
		return StatusColumnMismatch, nil
	}
	s.mapping = mapping
	return StatusOK, nil
}

// mergeHandler receives the rows of a merge. A nil func ignores that case.
type mergeHandler struct {
	both    func(ref, tgt []Value) error
	refOnly func(ref []Value) error
	tgtOnly func(tgt []Value) error
}

// run streams both tables ordered by key and merges them. It holds both
// busy guards for the whole read.
func (s *syncer) run(ctx context.Context, m *ColumnMapping, h mergeHandler) (err error) {
	if s.mapping == nil || s.status != StatusOK {
		return ErrNotConfigured
	}
	if s.state != StateIdle {
		return fmt.Errorf("table pair already %s", s.state)
	}

	release, err := acquire(s.ref, s.tgt)
	if err != nil {
		s.state = StateError
		return err
	}
	defer release()

	s.state = StateComparing
	defer func() {
		switch {
		case err == nil:
			s.state = StateDone
		case ctx.Err() != nil:
			s.state = StateCancelled
			err = ctx.Err()
		default:
			s.state = StateError
		}
	}()

	refCur, err := s.ref.QueryOrdered(ctx, s.refTable, m.RefColumns(), m.RefKeys())
	if err != nil {
		return err
	}
	defer refCur.Close()

	tgtCur, err := s.tgt.QueryOrdered(ctx, s.tgtTable, m.TargetColumns(), m.TargetKeys())
	if err != nil {
		return err
	}
	defer tgtCur.Close()

	refSide := &side{name: s.ref.Name(), cur: refCur, m: m, f: s.f, ref: true}
	tgtSide := &side{name: s.tgt.Name(), cur: tgtCur, m: m, f: s.f}
	defer func() {
		s.stats.ReferenceRows = refCur.Read()
		s.stats.TargetRows = tgtCur.Read()
	}()

	return merge(ctx, m, refSide, tgtSide, h)
}

func merge(ctx context.Context, m *ColumnMapping, ref, tgt *side, h mergeHandler) error {
	if err := ref.advance(); err != nil {
		return err
	}
	if err := tgt.advance(); err != nil {
		return err
	}

	for ref.row != nil || tgt.row != nil {
		if err := ctx.Err(); err != nil {
			return err
		}

		var err error
		switch {
		case tgt.row == nil:
			err = call1(h.refOnly, ref.row)
			if err == nil {
				err = ref.advance()
			}
		case ref.row == nil:
			err = call1(h.tgtOnly, tgt.row)
			if err == nil {
				err = tgt.advance()
			}
		default:
			switch c := compareRowKeys(m, ref.row, tgt.row); {
			case c < 0:
				err = call1(h.refOnly, ref.row)
				if err == nil {
					err = ref.advance()
				}
			case c > 0:
				err = call1(h.tgtOnly, tgt.row)
				if err == nil {
					err = tgt.advance()
				}
			default:
				if h.both != nil {
					err = h.both(ref.row, tgt.row)
				}
				if err == nil {
					err = ref.advance()
				}
				if err == nil {
					err = tgt.advance()
				}
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func call1(fn func([]Value) error, row []Value) error {
	if fn == nil {
		return nil
	}
	return fn(row)
}

// side is one cursor of a merge. It keeps the current and the previous row
// only.
type side struct {
	name string
	cur  *dbconn.Cursor
	m    *ColumnMapping
	f    *Formatter
	ref  bool

	row  []Value
	prev []Value
}

func (s *side) advance() error {
	s.prev = s.row
	if !s.cur.Next() {
		s.row = nil
		return s.cur.Err()
	}
	raw := s.cur.Row()
	row := make([]Value, len(raw))
	for i, v := range raw {
		col := s.m.Pairs[i].Target
		if s.ref {
			col = s.m.Pairs[i].Ref
		}
		val, err := s.f.Format(col, v)
		if err != nil {
			return err
		}
		row[i] = val
	}
	if s.prev != nil && compareRowKeys(s.m, s.prev, row) >= 0 {
		return fmt.Errorf("%s row %d: %w", s.name, s.cur.Read(), ErrKeyOrder)
	}
	s.row = row
	return nil
}

// write hands stmt to w unless ctx is done.
func (s *syncer) write(ctx context.Context, w StatementWriter, stmt *Statement) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := w.Write(stmt); err != nil {
		return fmt.Errorf("failed to write %s for %s: %w", stmt.Kind, stmt.Table, err)
	}
	switch stmt.Kind {
	case KindInsert:
		s.stats.Inserts++
	case KindUpdate:
		s.stats.Updates++
	case KindDelete:
		s.stats.Deletes++
	}
	return nil
}

// keyValues extracts the key of row, read through m.
func keyValues(m *ColumnMapping, row []Value) []ColumnValue {
	out := make([]ColumnValue, len(m.Keys))
	for i, k := range m.Keys {
		out[i] = ColumnValue{Column: m.Pairs[k].Name(), Value: row[k]}
	}
	return out
}

// acquire takes the busy guard of both handles, releasing the first when the
// second is busy.
func acquire(ref, tgt dbconn.Handle) (func(), error) {
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
