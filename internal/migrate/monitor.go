package migrate

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// MonitorCfg configures the monitor. RcvQ/StrQ/CmtQ are held as plain
// pointers, never as consumer or producer handles — the monitor never sends
// or receives on them. It instead polls BoundedQueue.Released() as a
// simulated weak reference (see queue.go), treating "released" as "the real
// owners are gone" per §9's sentinel-channel alternative to true weak
// pointers.
type MonitorCfg struct {
	RcvQ     *BoundedQueue[BlobDescriptor]
	StrQ     *BoundedQueue[BlobDescriptor]
	CmtQ     *BoundedQueue[BlobDescriptor]
	Interval time.Duration
	State    *SharedState
	Logger   *zap.Logger
}

// QueueSample is one queue's depth at a sampling instant; Released
// distinguishes "no items because the queue was torn down" from "no items
// right now but still live", matching original_source's monitor.rs
// queue_length distinction.
type QueueSample struct {
	Depth    int
	Released bool
}

// StatusSnapshot is one monitor tick's full report.
type StatusSnapshot struct {
	Observed, Received, Stored, Committed, Failed uint64
	TotalCount, RemainingCount                     uint64
	HasTotalCount, HasRemainingCount                bool
	RcvQ, StrQ, CmtQ                               QueueSample
	Elapsed                                        time.Duration
	InstantaneousCommitRate, AverageCommitRate      float64
	ETA                                             time.Duration
	HasETA                                          bool
}

// wakeFloor bounds the monitor's sleep so it reliably observes shutdown
// within about a second even when Interval is configured much longer.
const wakeFloor = time.Second

// SpawnMonitorStage wakes on a fixed cadence (but at least every wakeFloor)
// and emits a status snapshot, until every queue has been released or the
// engine has been cancelled.
func SpawnMonitorStage(ctx context.Context, cfg MonitorCfg) error {
	start := time.Now()
	var prevCommitted uint64
	var prevSampleAt = start

	sleep := cfg.Interval
	if sleep > wakeFloor {
		sleep = wakeFloor
	}
	if sleep <= 0 {
		sleep = wakeFloor
	}

	ticker := time.NewTicker(sleep)
	defer ticker.Stop()

	lastEmit := start.Add(-cfg.Interval) // emit immediately on first loop

	for {
		if allReleased(cfg) {
			return nil
		}
		if cfg.State.IsCancelled() {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if now.Sub(lastEmit) < cfg.Interval {
				continue
			}
			lastEmit = now

			snap := sampleSnapshot(cfg, start, now, prevCommitted, prevSampleAt)
			prevCommitted = snap.Committed
			prevSampleAt = now
			emitSnapshot(cfg.Logger, snap)
		}
	}
}

func allReleased(cfg MonitorCfg) bool {
	return cfg.RcvQ.Released() && cfg.StrQ.Released() && cfg.CmtQ.Released()
}

func sampleQueue(q *BoundedQueue[BlobDescriptor]) QueueSample {
	released := q.Released()
	depth := 0
	if !released {
		depth = q.Len()
	}
	return QueueSample{Depth: depth, Released: released}
}

func sampleSnapshot(cfg MonitorCfg, start, now time.Time, prevCommitted uint64, prevAt time.Time) StatusSnapshot {
	committed := cfg.State.Committed()
	elapsed := now.Sub(start)

	snap := StatusSnapshot{
		Observed:  cfg.State.Observed(),
		Received:  cfg.State.Received(),
		Stored:    cfg.State.Stored(),
		Committed: committed,
		Failed:    cfg.State.Failed(),
		RcvQ:      sampleQueue(cfg.RcvQ),
		StrQ:      sampleQueue(cfg.StrQ),
		CmtQ:      sampleQueue(cfg.CmtQ),
		Elapsed:   elapsed,
	}

	if total, ok := cfg.State.TotalCount(); ok {
		snap.TotalCount, snap.HasTotalCount = total, true
	}
	if remaining, ok := cfg.State.RemainingCount(); ok {
		snap.RemainingCount, snap.HasRemainingCount = remaining, true
	}

	if dt := now.Sub(prevAt).Seconds(); dt > 0 {
		snap.InstantaneousCommitRate = float64(committed-prevCommitted) / dt
	}
	if es := elapsed.Seconds(); es > 0 {
		snap.AverageCommitRate = float64(committed) / es
	}

	if committed > 0 && snap.HasTotalCount && snap.AverageCommitRate > 0 {
		etaSecs := float64(snap.TotalCount)/snap.AverageCommitRate - elapsed.Seconds()
		if etaSecs > 0 {
			snap.ETA = time.Duration(etaSecs * float64(time.Second))
			snap.HasETA = true
		}
	}

	return snap
}

func emitSnapshot(logger *zap.Logger, s StatusSnapshot) {
	fields := []zap.Field{
		zap.Uint64("observed", s.Observed),
		zap.Uint64("received", s.Received),
		zap.Uint64("stored", s.Stored),
		zap.Uint64("committed", s.Committed),
		zap.Uint64("failed", s.Failed),
		zap.Int("rcv_queue_depth", s.RcvQ.Depth),
		zap.Int("str_queue_depth", s.StrQ.Depth),
		zap.Int("cmt_queue_depth", s.CmtQ.Depth),
		zap.Duration("elapsed", s.Elapsed),
		zap.Float64("commit_rate", s.InstantaneousCommitRate),
		zap.Float64("avg_commit_rate", s.AverageCommitRate),
	}
	if s.HasTotalCount {
		fields = append(fields, zap.Uint64("total", s.TotalCount))
	}
	if s.HasETA {
		fields = append(fields, zap.Duration("eta", s.ETA))
	}
	logger.Info("migration progress", fields...)
}
