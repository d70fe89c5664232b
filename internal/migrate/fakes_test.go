package migrate

import (
	"bytes"
	"context"
	"crypto/sha1" //nolint:gosec
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
)

// fakeRow is one preloaded row of the in-memory source table, the test
// harness's analogue of the original test suite's common::postgres_conn
// fixture helpers.
type fakeRow struct {
	legacyHashHex string
	blobID        int64
	declaredSize  int64
	mimeType      string
	bytes         []byte
	targetHashHex string
}

// fakeDB is a hand-written in-memory stand-in for SourceDB, BatchJobDB.
type fakeDB struct {
	mu   sync.Mutex
	rows []*fakeRow

	failLargeObjectOnce map[int64]error
	failCommitBatch     error
}

func newFakeDB(rows ...*fakeRow) *fakeDB {
	return &fakeDB{rows: rows}
}

func sha1Hex(b []byte) string {
	sum := sha1.Sum(b) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func newValidRow(blobID int64, size int, mime string) *fakeRow {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}
	return &fakeRow{
		legacyHashHex: sha1Hex(data),
		blobID:        blobID,
		declaredSize:  int64(size),
		mimeType:      mime,
		bytes:         data,
	}
}

func (db *fakeDB) OpenUnmigratedCursor(ctx context.Context, prefetch int) (Cursor, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var pending []*fakeRow
	for _, r := range db.rows {
		if r.targetHashHex == "" {
			pending = append(pending, r)
		}
	}
	return &fakeCursor{rows: pending, idx: -1}, nil
}

type fakeCursor struct {
	rows []*fakeRow
	idx  int
}

func (c *fakeCursor) Next(ctx context.Context) bool {
	c.idx++
	return c.idx < len(c.rows)
}

func (c *fakeCursor) Row() (string, int64, int64, string) {
	r := c.rows[c.idx]
	return r.legacyHashHex, r.blobID, r.declaredSize, r.mimeType
}

func (c *fakeCursor) Err() error              { return nil }
func (c *fakeCursor) Close(ctx context.Context) error { return nil }

type fakeLargeObject struct {
	r io.Reader
}

func (l *fakeLargeObject) Read(p []byte) (int, error) { return l.r.Read(p) }
func (l *fakeLargeObject) Close(ctx context.Context) error { return nil }

func (db *fakeDB) OpenLargeObject(ctx context.Context, blobID int64) (LargeObjectSource, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err, ok := db.failLargeObjectOnce[blobID]; ok {
		delete(db.failLargeObjectOnce, blobID)
		return nil, err
	}

	for _, r := range db.rows {
		if r.blobID == blobID {
			return &fakeLargeObject{r: bytes.NewReader(r.bytes)}, nil
		}
	}
	return nil, fmt.Errorf("fakeDB: no such blob %d", blobID)
}

func (db *fakeDB) CountRemainingAndTotal(ctx context.Context) (uint64, uint64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var remaining uint64
	for _, r := range db.rows {
		if r.targetHashHex == "" {
			remaining++
		}
	}
	return remaining, uint64(len(db.rows)), nil
}

func (db *fakeDB) CommitBatch(ctx context.Context, batch []BlobDescriptor, zeroRowsLogger func(string)) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.failCommitBatch != nil {
		return db.failCommitBatch
	}

	for _, d := range batch {
		found := false
		for _, r := range db.rows {
			if r.legacyHashHex == d.LegacyHashHex {
				r.targetHashHex = d.TargetHashHex
				found = true
				break
			}
		}
		if !found && zeroRowsLogger != nil {
			zeroRowsLogger(d.LegacyHashHex)
		}
	}
	return nil
}

func (db *fakeDB) DisableBatchJob(ctx context.Context, jobName string) (int64, error) {
	return 1, nil
}

func (db *fakeDB) rowByLegacyHash(hex string) *fakeRow {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, r := range db.rows {
		if r.legacyHashHex == hex {
			return r
		}
	}
	return nil
}

// fakeObjectStore is a hand-written in-memory ObjectStore with optional
// failure injection, used to exercise the multipart-abort-on-failure path.
type fakeObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte

	uploads map[string]*fakeUpload

	failUploadPartAt   int // 1-indexed global upload-part call count; 0 disables
	uploadPartCalls    int
	abortedUploadIDs   []string
	completedUploadIDs []string
	partSizes          []int
}

type fakeUpload struct {
	bucket, key, contentType string
	parts                    map[int32][]byte
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{
		objects: map[string][]byte{},
		uploads: map[string]*fakeUpload{},
	}
}

func (s *fakeObjectStore) PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error {
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if int64(len(b)) != size {
		return fmt.Errorf("fakeObjectStore: put body length %d != declared size %d", len(b), size)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[bucket+"/"+key] = b
	return nil
}

func (s *fakeObjectStore) CreateMultipartUpload(ctx context.Context, bucket, key, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	uploadID := fmt.Sprintf("upload-%d", len(s.uploads)+1)
	s.uploads[uploadID] = &fakeUpload{bucket: bucket, key: key, contentType: contentType, parts: map[int32][]byte{}}
	return uploadID, nil
}

func (s *fakeObjectStore) UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int32, body io.Reader, size int64) (string, error) {
	b, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.uploadPartCalls++
	call := s.uploadPartCalls
	s.partSizes = append(s.partSizes, len(b))
	fail := s.failUploadPartAt != 0 && call == s.failUploadPartAt
	s.mu.Unlock()

	if fail {
		return "", fmt.Errorf("fakeObjectStore: injected upload part failure")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	up, ok := s.uploads[uploadID]
	if !ok {
		return "", fmt.Errorf("fakeObjectStore: no such upload %s", uploadID)
	}
	up.parts[partNumber] = b
	return fmt.Sprintf("etag-%d", partNumber), nil
}

func (s *fakeObjectStore) CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []UploadedPart) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	up, ok := s.uploads[uploadID]
	if !ok {
		return fmt.Errorf("fakeObjectStore: no such upload %s", uploadID)
	}

	var buf bytes.Buffer
	for _, p := range parts {
		chunk, ok := up.parts[p.PartNumber]
		if !ok {
			return fmt.Errorf("fakeObjectStore: missing part %d", p.PartNumber)
		}
		buf.Write(chunk)
	}

	s.objects[bucket+"/"+key] = buf.Bytes()
	s.completedUploadIDs = append(s.completedUploadIDs, uploadID)
	delete(s.uploads, uploadID)
	return nil
}

func (s *fakeObjectStore) AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abortedUploadIDs = append(s.abortedUploadIDs, uploadID)
	delete(s.uploads, uploadID)
	return nil
}

func (s *fakeObjectStore) get(bucket, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[bucket+"/"+key]
	return b, ok
}
