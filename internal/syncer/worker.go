// Package syncer periodically imports the remote spreadsheet into the store.
package syncer

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"employee-manager/internal/reconcile"
	"employee-manager/internal/sheets"
)

// RemoteSyncer runs one remote import.
type RemoteSyncer interface {
	SyncRemote(ctx context.Context) (*reconcile.Result, error)
}

type Worker struct {
	syncer   RemoteSyncer
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

// NewWorker creates a worker that syncs every interval. Each run is bounded
// by timeout when it is positive.
func NewWorker(syncer RemoteSyncer, interval, timeout time.Duration, logger *zap.Logger) *Worker {
	return &Worker{syncer: syncer, interval: interval, timeout: timeout, logger: logger}
}

// Run syncs on every tick until ctx is cancelled. Runs never overlap.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("Sheet sync worker started.", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Sheet sync worker stopped.")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sync and logs its outcome. Errors are never
// fatal.
func (w *Worker) RunOnce(ctx context.Context) {
	runCtx := ctx
	if w.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	res, err := w.syncer.SyncRemote(runCtx)
	switch {
	case errors.Is(err, sheets.ErrNoToken):
		w.logger.Info("Spreadsheet not authorized yet, skipping sync")
	case err != nil:
		w.logger.Error("Sheet sync failed", zap.Error(err))
	default:
		w.logger.Info("Sheet sync finished",
			zap.String("state", string(res.State)),
			zap.Int("rows", len(res.Candidates)),
			zap.Int("created", len(res.Created)),
			zap.Int("skipped", len(res.Skipped)))
	}
}
