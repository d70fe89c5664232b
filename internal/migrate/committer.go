package migrate

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CommitterCfg configures the committer pool.
type CommitterCfg struct {
	DB        SourceDB
	CmtQ      *BoundedQueue[BlobDescriptor]
	Threads   int
	BatchSize int
	State     *SharedState
	Logger    *zap.Logger
}

// SpawnCommitterStage runs Threads parallel committer workers that drain
// CmtQ in batches of up to BatchSize and write each batch's target hashes
// back to the database in one transaction per batch.
func SpawnCommitterStage(ctx context.Context, cfg CommitterCfg) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Threads; i++ {
		g.Go(func() error {
			return runRecovered(cfg.Logger, cfg.State, "committer", func() error {
				return runCommitterWorker(gctx, cfg)
			})
		})
	}
	return g.Wait()
}

func runCommitterWorker(ctx context.Context, cfg CommitterCfg) error {
	for {
		batch, queueClosed := drainBatch(ctx, cfg.CmtQ, cfg.BatchSize)
		if len(batch) > 0 {
			err := cfg.DB.CommitBatch(ctx, batch, func(legacyHashHex string) {
				cfg.Logger.Info("commit affected zero rows, row vanished since observation", zap.String("legacy_hash", legacyHashHex))
			})
			if err != nil {
				cfg.State.AddFailed(1)
				cfg.State.Cancel()
				cfg.Logger.Error("committer: fatal error", zap.Error(err))
				return fmt.Errorf("committer: batch of %d: %w", len(batch), err)
			}
			cfg.State.AddCommitted(uint64(len(batch)))
		}

		if queueClosed {
			return nil
		}

		if cancelErr := cfg.State.CheckCancellation(); cancelErr != nil {
			return cancelErr
		}
	}
}

// drainBatch accumulates up to batchSize descriptors from q, stopping early
// if q is released, or ctx is cancelled, before the batch fills. The second
// return reports whether the queue should be treated as closed (either the
// real release-and-drain signal, or ctx cancellation cascading in from a
// fatal error elsewhere in the run).
func drainBatch(ctx context.Context, q *BoundedQueue[BlobDescriptor], batchSize int) ([]BlobDescriptor, bool) {
	batch := make([]BlobDescriptor, 0, batchSize)
	for len(batch) < batchSize {
		desc, ok := q.Receive(ctx)
		if !ok {
			return batch, true
		}
		batch = append(batch, desc)
	}
	return batch, false
}
