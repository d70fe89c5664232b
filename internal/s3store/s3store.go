// Package s3store adapts a *s3.Client to migrate.ObjectStore, grounded on
// §6's five-operation object-store contract, which maps 1:1 onto the AWS
// SDK's PutObject/CreateMultipartUpload/UploadPart/CompleteMultipartUpload/
// AbortMultipartUpload calls.
package s3store

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/pgerber/lo-migrate/internal/migrate"
)

// Store adapts an already-constructed *s3.Client. Credential and endpoint
// configuration is entirely the caller's concern, per §1.
type Store struct {
	client *s3.Client
}

// New wraps an already-connected client.
func New(client *s3.Client) *Store { return &Store{client: client} }

// PutObject performs a single-shot put, used for in-memory buffers and for
// spilled buffers no larger than the multipart chunk size.
func (s *Store) PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("s3store: put object %s/%s: %w", bucket, key, err)
	}
	return nil
}

// CreateMultipartUpload begins a multipart upload and returns its upload ID.
func (s *Store) CreateMultipartUpload(ctx context.Context, bucket, key, contentType string) (string, error) {
	input := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	out, err := s.client.CreateMultipartUpload(ctx, input)
	if err != nil {
		return "", fmt.Errorf("s3store: create multipart upload %s/%s: %w", bucket, key, err)
	}
	return aws.ToString(out.UploadId), nil
}

// UploadPart uploads one part of a multipart upload and returns its ETag.
func (s *Store) UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int32, body io.Reader, size int64) (string, error) {
	out, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		UploadId:      aws.String(uploadID),
		PartNumber:    aws.Int32(partNumber),
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return "", fmt.Errorf("s3store: upload part %d of %s/%s: %w", partNumber, bucket, key, err)
	}
	return aws.ToString(out.ETag), nil
}

// CompleteMultipartUpload assembles the object from its uploaded parts, in
// order.
func (s *Store) CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []migrate.UploadedPart) error {
	completed := make([]types.CompletedPart, len(parts))
	for i, p := range parts {
		completed[i] = types.CompletedPart{
			PartNumber: aws.Int32(p.PartNumber),
			ETag:       aws.String(p.ETag),
		}
	}
	_, err := s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(bucket),
		Key:             aws.String(key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return fmt.Errorf("s3store: complete multipart upload %s/%s: %w", bucket, key, err)
	}
	return nil
}

// AbortMultipartUpload cancels an in-progress multipart upload, freeing any
// parts already stored by the provider.
func (s *Store) AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error {
	_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		return fmt.Errorf("s3store: abort multipart upload %s/%s: %w", bucket, key, err)
	}
	return nil
}
