package migrate

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// StorerCfg configures the storer pool.
type StorerCfg struct {
	Store              ObjectStore
	Bucket             string
	StrQ               *BoundedQueue[BlobDescriptor]
	CmtQ               *BoundedQueue[BlobDescriptor]
	Threads            int
	MultipartChunkSize int64
	State              *SharedState
	Logger             *zap.Logger
}

// SpawnStorerStage runs Threads parallel storer workers that drain StrQ
// until it is released, uploading each blob's bytes to the object store and
// forwarding the now buffer-less descriptor on CmtQ. CmtQ is released once
// every worker has exited.
func SpawnStorerStage(ctx context.Context, cfg StorerCfg) error {
	defer cfg.CmtQ.Release()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Threads; i++ {
		g.Go(func() error {
			return runRecovered(cfg.Logger, cfg.State, "storer", func() error {
				return runStorerWorker(gctx, cfg)
			})
		})
	}
	return g.Wait()
}

func runStorerWorker(ctx context.Context, cfg StorerCfg) error {
	// Reused across every part of every multipart upload this worker
	// performs, bounding steady-state memory to one chunk per storer
	// thread per §9's "Multipart chunk buffer reuse" design note.
	chunk := make([]byte, cfg.MultipartChunkSize)

	for {
		desc, ok := cfg.StrQ.Receive(ctx)
		if !ok {
			return nil
		}

		if err := storeOne(ctx, cfg, &desc, chunk); err != nil {
			_ = desc.Buffer.Close()
			cfg.State.AddFailed(1)
			cfg.State.Cancel()
			cfg.Logger.Error("storer: fatal error", zap.Error(err))
			return fmt.Errorf("storer: %w", err)
		}

		if sendErr := cfg.CmtQ.Send(ctx, desc); sendErr != nil {
			return fmt.Errorf("storer: %w", sendErr)
		}
		cfg.State.AddStored(1)

		if cancelErr := cfg.State.CheckCancellation(); cancelErr != nil {
			return cancelErr
		}
	}
}

func storeOne(ctx context.Context, cfg StorerCfg, desc *BlobDescriptor, chunk []byte) error {
	key, err := desc.ObjectKey()
	if err != nil {
		return err
	}

	buf := desc.Buffer
	desc.Buffer = EmptyBuffer()
	defer buf.Close()

	singleShot := buf.Kind == BufferInMemory || desc.DeclaredSize <= cfg.MultipartChunkSize
	if singleShot {
		var body io.Reader
		switch buf.Kind {
		case BufferInMemory:
			body = bytes.NewReader(buf.Bytes)
		case BufferSpilled:
			// Spilled small buffers are read fully into memory before the
			// put, per §4.5: the spill path exists to bound the receiver's
			// memory for large blobs, not to avoid ever materializing a
			// small one for the (single, already-sized) put call.
			if _, err := buf.File.Seek(0, io.SeekStart); err != nil {
				return fmt.Errorf("rewinding spill file before put: %w", err)
			}
			full := make([]byte, desc.DeclaredSize)
			if _, err := io.ReadFull(buf.File, full); err != nil {
				return fmt.Errorf("reading spilled blob before put: %w", err)
			}
			body = bytes.NewReader(full)
		default:
			body = bytes.NewReader(nil)
		}
		if err := cfg.Store.PutObject(ctx, cfg.Bucket, key, body, desc.DeclaredSize, desc.MimeType); err != nil {
			return fmt.Errorf("put object %s: %w", key, err)
		}
		return nil
	}

	return multipartUpload(ctx, cfg, desc, buf.File, key, chunk)
}

func multipartUpload(ctx context.Context, cfg StorerCfg, desc *BlobDescriptor, file readSeeker, key string, chunk []byte) error {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding spill file before multipart upload: %w", err)
	}

	uploadID, err := cfg.Store.CreateMultipartUpload(ctx, cfg.Bucket, key, desc.MimeType)
	if err != nil {
		return fmt.Errorf("create multipart upload %s: %w", key, err)
	}

	var parts []UploadedPart
	var totalUploaded int64
	partNumber := int32(1)

	for {
		n, readErr := readFullRetrying(file, chunk)
		if n == 0 {
			if readErr != nil && readErr != io.EOF {
				abortMultipart(ctx, cfg, key, uploadID)
				return fmt.Errorf("reading part %d of %s: %w", partNumber, key, readErr)
			}
			break
		}

		eTag, err := cfg.Store.UploadPart(ctx, cfg.Bucket, key, uploadID, partNumber, bytes.NewReader(chunk[:n]), int64(n))
		if err != nil {
			abortMultipart(ctx, cfg, key, uploadID)
			return fmt.Errorf("upload part %d of %s: %w", partNumber, key, err)
		}
		parts = append(parts, UploadedPart{PartNumber: partNumber, ETag: eTag})
		totalUploaded += int64(n)
		partNumber++

		if readErr == io.EOF {
			break
		}
	}

	if totalUploaded != desc.DeclaredSize {
		abortMultipart(ctx, cfg, key, uploadID)
		return fmt.Errorf("multipart upload %s: uploaded %d bytes, declared %d", key, totalUploaded, desc.DeclaredSize)
	}

	if err := cfg.Store.CompleteMultipartUpload(ctx, cfg.Bucket, key, uploadID, parts); err != nil {
		return fmt.Errorf("complete multipart upload %s: %w", key, err)
	}
	return nil
}

func abortMultipart(ctx context.Context, cfg StorerCfg, key, uploadID string) {
	if err := cfg.Store.AbortMultipartUpload(ctx, cfg.Bucket, key, uploadID); err != nil {
		cfg.Logger.Warn("failed to abort multipart upload", zap.String("key", key), zap.String("upload_id", uploadID), zap.Error(err))
	}
}

// readSeeker is the subset of *os.File that multipartUpload needs; narrowed
// for testability against a fake spill file.
type readSeeker interface {
	io.Reader
	io.Seeker
}

// readFullRetrying reads up to len(buf) bytes, retrying on a short read
// (the pipeline's analogue of retrying an EINTR-interrupted read per §4.5)
// until buf is full, EOF is reached, or a non-EOF error occurs.
func readFullRetrying(r io.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			if err == io.EOF {
				return total, io.EOF
			}
			return total, err
		}
		if n == 0 {
			return total, io.EOF
		}
	}
	return total, nil
}
