package migrate

import (
	"context"
	"io"
)

// SourceDB is the engine's entire view of the source database. Connection
// construction, pooling, and credentials are external (see §1 of the
// specification this package implements); the engine only ever talks
// through this narrow interface so it can be exercised against hand-written
// fakes in tests.
type SourceDB interface {
	// OpenUnmigratedCursor opens a read-only, server-side cursor over every
	// row whose target-hash column is still null, yielding
	// (legacyHashHex, blobID, declaredSize, mimeType) tuples.
	OpenUnmigratedCursor(ctx context.Context, prefetch int) (Cursor, error)

	// OpenLargeObject opens a readable stream over the large object
	// identified by blobID, within its own transaction.
	OpenLargeObject(ctx context.Context, blobID int64) (LargeObjectSource, error)

	// CountRemainingAndTotal returns (count where target hash is null,
	// count of all rows) in a single round trip, per §6's Counter query.
	CountRemainingAndTotal(ctx context.Context) (remaining, total uint64, err error)

	// CommitBatch writes target hashes for a batch of descriptors in a
	// single transaction, all-or-nothing. zeroRowsLogger, if non-nil, is
	// invoked once per row whose update affected zero rows (the row
	// vanished since it was observed) — this is not treated as an error.
	CommitBatch(ctx context.Context, batch []BlobDescriptor, zeroRowsLogger func(legacyHashHex string)) error
}

// Cursor streams rows from OpenUnmigratedCursor. Next returns false once the
// cursor is exhausted; Err reports any unexpected database failure
// encountered while streaming, which is fatal to the observer.
type Cursor interface {
	Next(ctx context.Context) bool
	Row() (legacyHashHex string, blobID, declaredSize int64, mimeType string)
	Err() error
	Close(ctx context.Context) error
}

// LargeObjectSource is a readable handle to one blob's bytes, plus the
// transaction-scoped teardown needed once the receiver is done with it.
type LargeObjectSource interface {
	io.Reader
	Close(ctx context.Context) error
}
