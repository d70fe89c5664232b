package migrate

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ObserverCfg configures the single observer worker, mirroring the
// teacher's *Cfg-struct-per-stage convention.
type ObserverCfg struct {
	DB       SourceDB
	RcvQ     *BoundedQueue[BlobDescriptor]
	Prefetch int
	State    *SharedState
	Logger   *zap.Logger
}

// SpawnObserverStage streams every un-migrated row from the source database
// and emits one BlobDescriptor per well-formed row into RcvQ. It always
// releases RcvQ before returning, cascading closure to the receiver pool.
func SpawnObserverStage(ctx context.Context, cfg ObserverCfg) error {
	defer cfg.RcvQ.Release()

	cursor, err := cfg.DB.OpenUnmigratedCursor(ctx, cfg.Prefetch)
	if err != nil {
		cfg.State.AddFailed(1)
		cfg.State.Cancel()
		cfg.Logger.Error("observer: opening cursor failed", zap.Error(err))
		return fmt.Errorf("observer: opening cursor: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		legacyHashHex, blobID, declaredSize, mimeType := cursor.Row()

		legacyHash, err := ParseLegacyHashHex(legacyHashHex)
		if err != nil {
			cfg.Logger.Warn("skipping row with malformed legacy hash",
				zap.Int64("blob_id", blobID), zap.Error(err))
			continue
		}

		desc := NewBlobDescriptor(legacyHash, blobID, declaredSize, mimeType)
		if sendErr := cfg.RcvQ.Send(ctx, desc); sendErr != nil {
			return fmt.Errorf("observer: %w", sendErr)
		}
		cfg.State.AddObserved(1)

		if cancelErr := cfg.State.CheckCancellation(); cancelErr != nil {
			return cancelErr
		}
	}

	if err := cursor.Err(); err != nil {
		cfg.State.AddFailed(1)
		cfg.State.Cancel()
		cfg.Logger.Error("observer: cursor failed", zap.Error(err))
		return fmt.Errorf("observer: cursor: %w", err)
	}
	return nil
}
