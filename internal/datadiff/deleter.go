package datadiff

import (
	"context"

	"db-reconcile/internal/dbconn"
	"db-reconcile/internal/logger"
	"db-reconcile/internal/schema"

	"go.uber.org/zap"
)

// DeleteSynchronizer emits a DELETE for every target row whose key is absent
// from the reference. Only key columns are read.
type DeleteSynchronizer struct {
	syncer
}

func NewDeleteSynchronizer(ref, tgt dbconn.Handle, keys *KeyResolver, f *Formatter, opts Options, log *zap.Logger) *DeleteSynchronizer {
	return &DeleteSynchronizer{syncer: newSyncer(ref, tgt, keys, f, opts, logger.OrNop(log).Named("deleter"))}
}

func (s *DeleteSynchronizer) SetTables(ctx context.Context, ref, tgt schema.TableIdentifier) (Status, error) {
	return s.setTables(ctx, ref, tgt)
}

func (s *DeleteSynchronizer) DoSync(ctx context.Context, w StatementWriter) error {
	if s.mapping == nil {
		return ErrNotConfigured
	}
	m := s.mapping.KeyOnly()
	err := s.run(ctx, m, mergeHandler{
		tgtOnly: func(tgt []Value) error {
			return s.write(ctx, w, &Statement{
				Kind:  KindDelete,
				Table: s.tgtTable.ID,
				Key:   keyValues(m, tgt),
			})
		},
	})
	s.log.Debug("table compared",
		zap.String("table", s.tgtTable.ID.String()),
		zap.Stringer("state", s.state),
		zap.Int("deletes", s.stats.Deletes))
	return err
}
