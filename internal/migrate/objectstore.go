package migrate

import (
	"context"
	"io"
)

// UploadedPart records one completed part of a multipart upload, in the
// shape CompleteMultipartUpload needs to assemble the object in order.
type UploadedPart struct {
	PartNumber int32
	ETag       string
}

// ObjectStore is the engine's entire view of the destination object store,
// narrowed to exactly the five operations named in §6. Connection
// construction is external; internal/s3store binds this to a real
// *s3.Client.
type ObjectStore interface {
	PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error

	CreateMultipartUpload(ctx context.Context, bucket, key, contentType string) (uploadID string, err error)

	UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int32, body io.Reader, size int64) (eTag string, err error)

	CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []UploadedPart) error

	AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error
}
