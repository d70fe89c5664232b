package migrate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ReceiverCfg configures the receiver pool.
type ReceiverCfg struct {
	DB             SourceDB
	RcvQ           *BoundedQueue[BlobDescriptor]
	StrQ           *BoundedQueue[BlobDescriptor]
	Threads        int
	SpillThreshold int64
	SpillDir       string // empty means os.TempDir()
	State          *SharedState
	Logger         *zap.Logger
}

// SpawnReceiverStage runs Threads parallel receiver workers that drain RcvQ
// until it is released, hashing and buffering each blob before forwarding it
// on StrQ. StrQ is released once every worker has exited, cascading closure
// to the storer pool.
func SpawnReceiverStage(ctx context.Context, cfg ReceiverCfg) error {
	defer cfg.StrQ.Release()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Threads; i++ {
		g.Go(func() error {
			return runRecovered(cfg.Logger, cfg.State, "receiver", func() error {
				return runReceiverWorker(gctx, cfg)
			})
		})
	}
	return g.Wait()
}

func runReceiverWorker(ctx context.Context, cfg ReceiverCfg) error {
	for {
		desc, ok := cfg.RcvQ.Receive(ctx)
		if !ok {
			return nil
		}

		if err := receiveOne(ctx, cfg, &desc); err != nil {
			var invalid *InvalidObjectError
			if errors.As(err, &invalid) {
				cfg.Logger.Warn("rejecting invalid object", zap.Error(invalid))
				cfg.State.AddFailed(1)
				continue
			}
			cfg.State.AddFailed(1)
			cfg.State.Cancel()
			cfg.Logger.Error("receiver: fatal error", zap.Error(err))
			return fmt.Errorf("receiver: %w", err)
		}

		if sendErr := cfg.StrQ.Send(ctx, desc); sendErr != nil {
			_ = desc.Buffer.Close()
			return fmt.Errorf("receiver: %w", sendErr)
		}
		cfg.State.AddReceived(1)

		if cancelErr := cfg.State.CheckCancellation(); cancelErr != nil {
			return cancelErr
		}
	}
}

func receiveOne(ctx context.Context, cfg ReceiverCfg, desc *BlobDescriptor) error {
	lo, err := cfg.DB.OpenLargeObject(ctx, desc.BlobID)
	if err != nil {
		return fmt.Errorf("opening large object %d: %w", desc.BlobID, err)
	}
	defer lo.Close(ctx)

	dr := newDigestReader(lo)

	if desc.DeclaredSize <= cfg.SpillThreshold {
		buf := make([]byte, 0, desc.DeclaredSize)
		w := &growBuffer{buf: buf}
		if _, err := io.Copy(w, dr); err != nil {
			return fmt.Errorf("reading blob %d into memory: %w", desc.BlobID, err)
		}
		desc.Buffer = InMemoryBuffer(w.buf)
	} else {
		dir := cfg.SpillDir
		if dir == "" {
			dir = os.TempDir()
		}
		f, err := os.CreateTemp(dir, "lo-migrate-"+uuid.NewString()+"-*.spill")
		if err != nil {
			return fmt.Errorf("creating spill file for blob %d: %w", desc.BlobID, err)
		}
		if _, err := io.Copy(f, dr); err != nil {
			f.Close()
			os.Remove(f.Name())
			return fmt.Errorf("spilling blob %d to file: %w", desc.BlobID, err)
		}
		if err := f.Sync(); err != nil {
			f.Close()
			os.Remove(f.Name())
			return fmt.Errorf("flushing spill file for blob %d: %w", desc.BlobID, err)
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			f.Close()
			os.Remove(f.Name())
			return fmt.Errorf("rewinding spill file for blob %d: %w", desc.BlobID, err)
		}
		desc.Buffer = SpilledBuffer(f)
	}

	actualSize := dr.BytesRead()
	recomputedLegacy := dr.LegacySum()
	recomputedTarget := dr.TargetSum()

	if actualSize != desc.DeclaredSize {
		_ = desc.Buffer.Close()
		return &InvalidObjectError{
			LegacyHashHex: desc.LegacyHashHex,
			BlobID:        desc.BlobID,
			Reason:        fmt.Sprintf("declared size %d, actual size %d", desc.DeclaredSize, actualSize),
		}
	}
	if recomputedLegacy != desc.LegacyHash {
		_ = desc.Buffer.Close()
		return &InvalidObjectError{
			LegacyHashHex: desc.LegacyHashHex,
			BlobID:        desc.BlobID,
			Reason:        "legacy hash mismatch",
		}
	}

	desc.SetTargetHash(recomputedTarget)
	return nil
}

// growBuffer is an io.Writer over a pre-capacity-allocated byte slice,
// avoiding the repeated reallocation bytes.Buffer would otherwise do when
// the final size is already known from declaredSize.
type growBuffer struct{ buf []byte }

func (g *growBuffer) Write(p []byte) (int, error) {
	g.buf = append(g.buf, p...)
	return len(p), nil
}
