package migrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Engine wires the four pipeline pools and the two auxiliary workers
// together and owns their shared queues and state for the lifetime of one
// run, following migrations/migrations.go's Migrator.Apply shape: validate,
// run, join everything, report.
type Engine struct {
	cfg    Config
	db     SourceDB
	store  ObjectStore
	logger *zap.Logger
}

// NewEngine constructs an Engine. Connection construction for db and store
// happens entirely outside this package, per §1.
func NewEngine(cfg Config, db SourceDB, store ObjectStore, logger *zap.Logger) (*Engine, error) {
	cfg.FillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg, db: db, store: store, logger: logger}, nil
}

// Result is the final tally of one Run, used by the caller to decide the
// process exit code per §6 ("non-zero if any worker panicked or if
// failed > 0 at termination").
type Result struct {
	Observed, Received, Stored, Committed, Failed uint64
}

// ShouldExitNonZero reports whether the process should exit non-zero, per
// §6: any worker panicked (reflected as a non-nil Run error) or failed > 0.
func (r Result) ShouldExitNonZero() bool { return r.Failed > 0 }

// runRecovered runs fn and converts a panic into a stack-bearing error
// instead of letting it crash the process, per §7's Fatal-error handling:
// the worker terminates, the failure counter is incremented, and the run is
// cancelled so siblings unwind instead of hanging on the now-dead worker's
// queue handle. Every worker goroutine, both the six top-level stages and
// each thread inside a stage's own pool, is started through this.
func runRecovered(logger *zap.Logger, state *SharedState, worker string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			state.AddFailed(1)
			state.Cancel()
			err = pkgerrors.Wrapf(fmt.Errorf("%v", r), "%s: recovered panic", worker)
			logger.Error("worker panicked", zap.String("worker", worker), zap.Any("panic", r))
		}
	}()
	return fn()
}

// Run executes one full migration pass: observer, receiver pool, storer
// pool, committer pool, counter, and monitor, wired by cascade-closure
// queues, and returns once every worker has exited.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	state := NewSharedState()

	rcvQ := NewBoundedQueue[BlobDescriptor](e.cfg.ReceiverQueue)
	strQ := NewBoundedQueue[BlobDescriptor](e.cfg.StorerQueue)
	cmtQ := NewBoundedQueue[BlobDescriptor](e.cfg.CommitterQueue)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runRecovered(e.logger, state, "observer", func() error {
			return SpawnObserverStage(gctx, ObserverCfg{
				DB: e.db, RcvQ: rcvQ, Prefetch: 1024, State: state, Logger: e.logger,
			})
		})
	})

	g.Go(func() error {
		return runRecovered(e.logger, state, "receiver", func() error {
			return SpawnReceiverStage(gctx, ReceiverCfg{
				DB: e.db, RcvQ: rcvQ, StrQ: strQ,
				Threads: e.cfg.ReceiverThreads, SpillThreshold: e.cfg.SpillThreshold,
				State: state, Logger: e.logger,
			})
		})
	})

	g.Go(func() error {
		return runRecovered(e.logger, state, "storer", func() error {
			return SpawnStorerStage(gctx, StorerCfg{
				Store: e.store, Bucket: e.cfg.Bucket, StrQ: strQ, CmtQ: cmtQ,
				Threads: e.cfg.StorerThreads, MultipartChunkSize: e.cfg.MultipartChunkSize,
				State: state, Logger: e.logger,
			})
		})
	})

	g.Go(func() error {
		return runRecovered(e.logger, state, "committer", func() error {
			return SpawnCommitterStage(gctx, CommitterCfg{
				DB: e.db, CmtQ: cmtQ, Threads: e.cfg.CommitterThreads,
				BatchSize: e.cfg.CommitBatchSize, State: state, Logger: e.logger,
			})
		})
	})

	g.Go(func() error {
		return runRecovered(e.logger, state, "counter", func() error {
			return SpawnCounterStage(gctx, CounterCfg{DB: e.db, State: state})
		})
	})

	g.Go(func() error {
		return runRecovered(e.logger, state, "monitor", func() error {
			return SpawnMonitorStage(gctx, MonitorCfg{
				RcvQ: rcvQ, StrQ: strQ, CmtQ: cmtQ,
				Interval: time.Duration(e.cfg.MonitorInterval) * time.Second,
				State:    state, Logger: e.logger,
			})
		})
	})

	runErr := g.Wait()

	result := Result{
		Observed:  state.Observed(),
		Received:  state.Received(),
		Stored:    state.Stored(),
		Committed: state.Committed(),
		Failed:    state.Failed(),
	}

	if runErr != nil {
		if IsCancelled(runErr) || IsQueueClosed(runErr) ||
			errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
			// Expected shutdown paths: the orchestrator swallows these per
			// §7's propagation policy and still reports the tally gathered
			// so far. A context.Canceled/DeadlineExceeded here is the
			// cascade-unblocking signal a sibling worker's Send/Receive saw
			// once some other worker already failed fatally and logged it
			// at its own origin (see runRecovered and each Spawn*Stage),
			// not a failure in its own right.
			return result, nil
		}
		state.Cancel()
		e.logger.Error("migration run failed", zap.Error(runErr))
		return result, runErr
	}

	return result, nil
}
