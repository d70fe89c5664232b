package migrate

import (
	"errors"
	"fmt"
)

// ErrCancelled is returned by workers once SharedState.Cancel has fired; it
// is a normal, swallowed termination condition at the orchestrator.
var ErrCancelled = errors.New("migrate: cancelled")

// ErrQueueClosed is returned by Send when the queue's producer side has
// already released it; like ErrCancelled it is an expected shutdown signal,
// not a failure.
var ErrQueueClosed = errors.New("migrate: queue closed")

// InvalidObjectError marks a descriptor rejected by the receiver because its
// declared size or legacy hash didn't match the bytes actually read. It is
// non-fatal to the pool: the descriptor is dropped and SharedState.failed is
// incremented.
type InvalidObjectError struct {
	LegacyHashHex string
	BlobID        int64
	Reason        string
}

func (e *InvalidObjectError) Error() string {
	return fmt.Sprintf("invalid object blob_id=%d legacy_hash=%s: %s", e.BlobID, e.LegacyHashHex, e.Reason)
}

// IsCancelled reports whether err is or wraps ErrCancelled.
func IsCancelled(err error) bool { return errors.Is(err, ErrCancelled) }

// IsQueueClosed reports whether err is or wraps ErrQueueClosed.
func IsQueueClosed(err error) bool { return errors.Is(err, ErrQueueClosed) }

// IsInvalidObject reports whether err is an *InvalidObjectError.
func IsInvalidObject(err error) bool {
	var target *InvalidObjectError
	return errors.As(err, &target)
}
