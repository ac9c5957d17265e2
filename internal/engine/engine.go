package engine

import (
	"context"
	"fmt"

	"db-reconcile/internal/datadiff"
	"db-reconcile/internal/dbconn"
	"db-reconcile/internal/logger"
	"db-reconcile/internal/script"

	"go.uber.org/zap"
)

// Progress receives one step per table and pass, never per row.
type Progress interface {
	Start(total int)
	Step(table string)
}

type nopProgress struct{}

func (nopProgress) Start(int)   {}
func (nopProgress) Step(string) {}

// Engine reconciles the data of a reference and a target connection. It
// only reads both connections and writes script artifacts.
type Engine struct {
	ref, tgt dbconn.Handle
	opts     Options
	log      *zap.Logger
	progress Progress
}

func New(ref, tgt dbconn.Handle, opts Options, log *zap.Logger) *Engine {
	return &Engine{
		ref:      ref,
		tgt:      tgt,
		opts:     opts,
		log:      logger.OrNop(log).Named("engine"),
		progress: nopProgress{},
	}
}

// WithProgress sets the progress sink.
func (e *Engine) WithProgress(p Progress) *Engine {
	if p != nil {
		e.progress = p
	}
	return e
}

// run is the state of one Run call.
type run struct {
	*Engine
	res     *Result
	emitter *script.Emitter
	keys    *datadiff.KeyResolver
	f       *datadiff.Formatter
	byPair  map[Pair]*TableResult
}

// Run compares every planned table pair and writes the scripts. A non-nil
// error with a nil Result is a configuration error. Otherwise the Result
// carries the outcome, including failures; the driver script is written on
// every path.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	s, err := e.opts.parse()
	if err != nil {
		return nil, err
	}
	f, err := datadiff.NewFormatter(e.tgt.Dialect(), s.blob, e.opts.BlobEncoding)
	if err != nil {
		return nil, configError(err)
	}
	emitter, err := script.New(script.Options{
		Dir:              e.opts.OutputDir,
		BaseName:         e.opts.BaseName,
		Format:           s.format,
		SingleFile:       e.opts.SingleFile,
		CDATA:            e.opts.CDATA,
		IncludeDirective: e.opts.IncludeDirective,
		Reference:        e.ref.Name(),
		Target:           e.tgt.Name(),
	}, e.tgt.Dialect(), e.log)
	if err != nil {
		return nil, configError(err)
	}

	r := &run{
		Engine:  e,
		res:     &Result{MainFile: emitter.MainFile()},
		emitter: emitter,
		keys:    datadiff.NewKeyResolver(s.altKeys, e.opts.IgnoreColumns, e.opts.ExcludeIgnoredFromKeys),
		f:       f,
		byPair:  make(map[Pair]*TableResult),
	}
	defer r.finish()

	plan, err := e.plan(ctx, s)
	if err != nil {
		if ctx.Err() != nil {
			r.cancel("run cancelled before any table was compared")
		} else {
			r.abort(fmt.Errorf("failed to resolve tables: %w", err))
		}
		return r.res, nil
	}
	for _, w := range plan.Warnings {
		r.warn(w)
	}

	total := len(plan.Insert)
	if e.opts.IncludeDelete {
		total += len(plan.Delete)
	}
	e.progress.Start(total)
	e.log.Info("data diff started",
		zap.String("reference", e.ref.Name()), zap.String("target", e.tgt.Name()),
		zap.Int("tables", len(plan.Insert)), zap.Bool("delete", e.opts.IncludeDelete))

	if !r.diffPass(ctx, plan.Insert) {
		return r.res, nil
	}
	if e.opts.IncludeDelete {
		r.deletePass(ctx, plan.Delete)
	}
	return r.res, nil
}

// diffPass runs the Differ over pairs in insert order. It reports false
// when the run must stop.
func (r *run) diffPass(ctx context.Context, pairs []Pair) bool {
	differ := datadiff.NewDiffer(r.ref, r.tgt, r.keys, r.f, r.opts.diffOptions(), r.log)
	for _, pair := range pairs {
		if r.cancelled(ctx, pair) {
			return false
		}
		r.progress.Step(pair.Target.Name)
		r.emitter.AddMapping(pair.Reference, pair.Target)

		tr := &TableResult{Reference: pair.Reference, Target: pair.Target}
		r.res.Tables = append(r.res.Tables, tr)
		r.byPair[pair] = tr

		status, err := differ.SetTables(ctx, pair.Reference, pair.Target)
		tr.Status = status
		if err != nil {
			if !r.tableError(ctx, tr, err) {
				return false
			}
			continue
		}
		if status != datadiff.StatusOK {
			tr.Message = differ.Message()
			r.log.Warn("table skipped", zap.String("table", pair.Target.String()),
				zap.Stringer("status", status), zap.String("reason", tr.Message))
			r.warn(fmt.Sprintf("%s: %s", status, tr.Message))
			continue
		}

		err = differ.DoSync(ctx, r.emitter.Writer(pair.Target, datadiff.KindInsert, datadiff.KindUpdate))
		tr.State = differ.State()
		tr.Stats = differ.Stats()
		if err != nil {
			if !r.tableError(ctx, tr, err) {
				return false
			}
			continue
		}
		r.log.Info("table compared", zap.String("table", pair.Target.String()),
			zap.Int("reference_rows", tr.Stats.ReferenceRows), zap.Int("target_rows", tr.Stats.TargetRows),
			zap.Int("inserts", tr.Stats.Inserts), zap.Int("updates", tr.Stats.Updates))
	}
	return true
}

// deletePass runs the DeleteSynchronizer over pairs in delete order. Pairs
// the diff pass skipped are not reported again.
func (r *run) deletePass(ctx context.Context, pairs []Pair) {
	syncer := datadiff.NewDeleteSynchronizer(r.ref, r.tgt, r.keys, r.f, r.opts.diffOptions(), r.log)
	for _, pair := range pairs {
		if r.cancelled(ctx, pair) {
			return
		}
		r.progress.Step(pair.Target.Name)

		tr := r.byPair[pair]
		if tr == nil || tr.Status != datadiff.StatusOK || tr.Err != nil {
			continue
		}
		status, err := syncer.SetTables(ctx, pair.Reference, pair.Target)
		if err == nil && status != datadiff.StatusOK {
			err = fmt.Errorf("table changed between passes: %s", syncer.Message())
		}
		if err == nil {
			err = syncer.DoSync(ctx, r.emitter.Writer(pair.Target, datadiff.KindDelete))
			tr.DeleteState = syncer.State()
			tr.Stats.Deletes = syncer.Stats().Deletes
		}
		if err != nil {
			if !r.tableError(ctx, tr, err) {
				return
			}
			continue
		}
		r.log.Info("table synchronized", zap.String("table", pair.Target.String()),
			zap.Int("deletes", tr.Stats.Deletes))
	}
}

// tableError records err against one table. It reports false when the run
// must stop: on cancellation or a connection-fatal error.
func (r *run) tableError(ctx context.Context, tr *TableResult, err error) bool {
	if ctx.Err() != nil {
		r.cancel(fmt.Sprintf("run cancelled while comparing %s; scripts hold the statements written so far", tr.Target))
		return false
	}
	tr.Err = err
	tr.Message = err.Error()
	if IsConnectionFatal(err) {
		r.abort(fmt.Errorf("%s: %w", tr.Target, err))
		return false
	}
	r.log.Error("table failed", zap.String("table", tr.Target.String()), zap.Error(err))
	r.fail(fmt.Sprintf("%s: %v", tr.Target, err))
	return true
}

func (r *run) cancelled(ctx context.Context, next Pair) bool {
	if ctx.Err() == nil {
		return false
	}
	r.cancel(fmt.Sprintf("run cancelled before %s", next.Target))
	return true
}

func (r *run) cancel(msg string) {
	r.res.Cancelled = true
	r.log.Warn("run cancelled", zap.String("reason", msg))
	r.warn(msg)
}

func (r *run) abort(err error) {
	r.res.Err = err
	r.log.Error("run aborted", zap.Error(err))
	r.fail(err.Error())
}

func (r *run) warn(msg string) {
	r.res.warn(msg)
	r.emitter.Warn(msg)
}

func (r *run) fail(msg string) {
	r.res.fail(msg)
	r.emitter.Warn(msg)
}

// finish closes the emitter; its errors fail the run.
func (r *run) finish() {
	if err := r.emitter.Close(); err != nil {
		r.res.fail(fmt.Sprintf("failed to write scripts: %v", err))
	}
	r.res.Files = r.emitter.Files()
	ins, upd, del := r.res.Written()
	r.log.Info("data diff finished",
		zap.Stringer("status", r.res.Status), zap.Bool("cancelled", r.res.Cancelled),
		zap.Int("inserts", ins), zap.Int("updates", upd), zap.Int("deletes", del),
		zap.String("main", r.res.MainFile))
}
