package cmd

import (
	"context"
	"fmt"

	"db-reconcile/internal/dbconn"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// openConnections opens the reference and target connections named in the
// config. The returned func closes both.
func openConnections(ctx context.Context) (ref, tgt *dbconn.Conn, closeFn func() error, err error) {
	refCfg, err := cfg.Connection(cfg.Reference)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("reference: %w", err)
	}
	tgtCfg, err := cfg.Connection(cfg.Target)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("target: %w", err)
	}
	if refCfg == tgtCfg {
		return nil, nil, nil, fmt.Errorf("reference and target must be different connections (both are %q)", refCfg.Name)
	}

	ref, err = dbconn.Open(ctx, refCfg, log)
	if err != nil {
		return nil, nil, nil, err
	}
	tgt, err = dbconn.Open(ctx, tgtCfg, log)
	if err != nil {
		ref.Close()
		return nil, nil, nil, err
	}

	log.Info("connected",
		zap.String("reference", refCfg.Name), zap.String("reference_driver", refCfg.Driver),
		zap.String("target", tgtCfg.Name), zap.String("target_driver", tgtCfg.Driver))

	return ref, tgt, func() error {
		return multierr.Combine(tgt.Close(), ref.Close())
	}, nil
}
