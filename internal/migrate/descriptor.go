// Package migrate implements the four-stage pipelined large-object migration
// engine: observe, receive (hash + buffer), store (object store), commit.
package migrate

import (
	"encoding/hex"
	"fmt"
	"os"
)

const (
	legacyHashSize = 20 // SHA-1
	targetHashSize = 32 // SHA-256
)

// BufferKind tags the active variant of Buffer.
type BufferKind int

const (
	BufferEmpty BufferKind = iota
	BufferInMemory
	BufferSpilled
)

// Buffer is the descriptor's payload: nothing yet, an in-memory byte slice,
// or a spilled temp file. Exactly one of Bytes/File is meaningful, selected
// by Kind.
type Buffer struct {
	Kind  BufferKind
	Bytes []byte
	File  *os.File
}

// EmptyBuffer returns the zero buffer.
func EmptyBuffer() Buffer { return Buffer{Kind: BufferEmpty} }

// InMemoryBuffer wraps a byte slice already resident in memory.
func InMemoryBuffer(b []byte) Buffer { return Buffer{Kind: BufferInMemory, Bytes: b} }

// SpilledBuffer wraps an open temp-file handle.
func SpilledBuffer(f *os.File) Buffer { return Buffer{Kind: BufferSpilled, File: f} }

// Close releases the resources held by the buffer. For a spilled buffer this
// closes and removes the backing temp file; it is a no-op for the other
// variants. Close is idempotent on repeated calls after the first error.
func (b *Buffer) Close() error {
	if b.Kind != BufferSpilled || b.File == nil {
		*b = EmptyBuffer()
		return nil
	}
	name := b.File.Name()
	closeErr := b.File.Close()
	removeErr := os.Remove(name)
	*b = EmptyBuffer()
	if closeErr != nil {
		return fmt.Errorf("closing spill file: %w", closeErr)
	}
	if removeErr != nil && !os.IsNotExist(removeErr) {
		return fmt.Errorf("removing spill file: %w", removeErr)
	}
	return nil
}

// BlobDescriptor is the unit of work that travels through the pipeline.
type BlobDescriptor struct {
	LegacyHash    [legacyHashSize]byte
	LegacyHashHex string

	BlobID       int64
	DeclaredSize int64
	MimeType     string

	hasTargetHash bool
	TargetHash    [targetHashSize]byte
	TargetHashHex string

	Buffer Buffer
}

// NewBlobDescriptor builds a descriptor fresh off the observer cursor. The
// caller provides the already-parsed legacy hash; buffer and target hash are
// unset until the receiver completes.
func NewBlobDescriptor(legacyHash [legacyHashSize]byte, blobID, declaredSize int64, mimeType string) BlobDescriptor {
	return BlobDescriptor{
		LegacyHash:    legacyHash,
		LegacyHashHex: hex.EncodeToString(legacyHash[:]),
		BlobID:        blobID,
		DeclaredSize:  declaredSize,
		MimeType:      mimeType,
		Buffer:        EmptyBuffer(),
	}
}

// ParseLegacyHashHex decodes a lowercase hex string into a fixed-size legacy
// hash, rejecting anything that doesn't decode to exactly legacyHashSize
// bytes. Malformed rows are skipped by the observer per its edge-case rule,
// not treated as a pipeline failure.
func ParseLegacyHashHex(s string) ([legacyHashSize]byte, error) {
	var out [legacyHashSize]byte
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("malformed legacy hash hex %q: %w", s, err)
	}
	if len(decoded) != legacyHashSize {
		return out, fmt.Errorf("legacy hash hex %q decodes to %d bytes, want %d", s, len(decoded), legacyHashSize)
	}
	copy(out[:], decoded)
	return out, nil
}

// SetTargetHash records the hash computed by the receiver and derives its
// hex rendering, used both as the object-store key and the persisted
// database value.
func (d *BlobDescriptor) SetTargetHash(h [targetHashSize]byte) {
	d.TargetHash = h
	d.TargetHashHex = hex.EncodeToString(h[:])
	d.hasTargetHash = true
}

// HasTargetHash reports whether SetTargetHash has been called.
func (d *BlobDescriptor) HasTargetHash() bool { return d.hasTargetHash }

// ObjectKey is the lowercase hex of the target hash, the key under which the
// storer writes the blob to the object store.
func (d *BlobDescriptor) ObjectKey() (string, error) {
	if !d.hasTargetHash {
		return "", fmt.Errorf("descriptor %s: object key requested before target hash is set", d.LegacyHashHex)
	}
	return d.TargetHashHex, nil
}
