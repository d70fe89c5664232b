package migrate

import (
	"crypto/sha1" //nolint:gosec // legacy verification digest, not a security boundary
	"crypto/sha256"
	"hash"
	"io"
)

// digestReader tees every byte read from the wrapped reader into both a
// SHA-1 (legacy verification) and a SHA-256 (target hash) hasher, so the
// receiver never makes a second pass over the blob solely to hash it.
type digestReader struct {
	src     io.Reader
	legacy  hash.Hash
	target  hash.Hash
	written int64
}

func newDigestReader(src io.Reader) *digestReader {
	return &digestReader{
		src:    src,
		legacy: sha1.New(), //nolint:gosec
		target: sha256.New(),
	}
}

func (d *digestReader) Read(p []byte) (int, error) {
	n, err := d.src.Read(p)
	if n > 0 {
		d.legacy.Write(p[:n])
		d.target.Write(p[:n])
		d.written += int64(n)
	}
	return n, err
}

// LegacySum returns the finalized 20-byte SHA-1 digest of everything read so
// far. Safe to call only once the underlying reader is fully drained.
func (d *digestReader) LegacySum() (out [legacyHashSize]byte) {
	copy(out[:], d.legacy.Sum(nil))
	return out
}

// TargetSum returns the finalized 32-byte SHA-256 digest of everything read
// so far.
func (d *digestReader) TargetSum() (out [targetHashSize]byte) {
	copy(out[:], d.target.Sum(nil))
	return out
}

// BytesRead returns the total number of bytes observed by Read so far.
func (d *digestReader) BytesRead() int64 { return d.written }
