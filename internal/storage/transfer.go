package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
)

// DefaultChunkSize is the byte-range / part size used for transfers.
const DefaultChunkSize = 8 * 1024 * 1024

// UploadMultipart streams r into the store under key using a multipart
// upload with parts of partSize bytes. The upload is aborted on any failure
// so no orphaned parts are left behind.
func UploadMultipart(ctx context.Context, store ObjectStore, key string, r io.Reader, partSize int64) error {
	if partSize <= 0 {
		partSize = DefaultChunkSize
	}

	var uploadID string
	var parts []Part
	buf := make([]byte, partSize)
	partNumber := 1

	abort := func() {
		if uploadID == "" {
			return
		}
		if err := store.AbortMultipartUpload(ctx, key, uploadID); err != nil {
			log.Printf("[s3] failed to abort multipart upload for key %q: %v", key, err)
		}
	}

	for {
		n, readErr := io.ReadFull(r, buf)
		if n > 0 {
			if uploadID == "" {
				id, err := store.CreateMultipartUpload(ctx, key)
				if err != nil {
					return err
				}
				uploadID = id
				log.Printf("[s3] initiated multipart upload, key %q", key)
			}
			part, err := store.UploadPart(ctx, key, uploadID, partNumber, buf[:n])
			if err != nil {
				abort()
				return err
			}
			parts = append(parts, part)
			log.Printf("[s3] uploaded part %d for key %q (%d bytes)", partNumber, key, n)
			partNumber++
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			abort()
			return fmt.Errorf("read upload source: %w", readErr)
		}
	}

	if uploadID == "" {
		return errors.New("refusing to upload empty object")
	}
	if err := store.CompleteMultipartUpload(ctx, key, uploadID, parts); err != nil {
		abort()
		return err
	}
	log.Printf("[s3] multipart upload completed, %d parts for key %q", len(parts), key)
	return nil
}

// DownloadToFile fetches the object at key into a local file via sequential
// byte-range requests of chunkSize, written in arrival order. Any range
// failure aborts the whole download; a partial file is removed.
func DownloadToFile(ctx context.Context, store ObjectStore, key, path string, chunkSize int64) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	size, err := store.Stat(ctx, key)
	if err != nil {
		return fmt.Errorf("acquire %q: %w", key, err)
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %q: %w", path, err)
	}

	ranges := (size + chunkSize - 1) / chunkSize
	log.Printf("[s3] downloading key %q, size %.2f mb, %d ranges", key, float64(size)/(1024*1024), ranges)

	if err := copyRanges(ctx, store, key, out, size, chunkSize); err != nil {
		out.Close()
		os.Remove(path)
		return fmt.Errorf("acquire %q: %w", key, err)
	}
	return out.Close()
}

func copyRanges(ctx context.Context, store ObjectStore, key string, out io.Writer, size, chunkSize int64) error {
	for start := int64(0); start < size; start += chunkSize {
		end := start + chunkSize - 1
		if end > size-1 {
			end = size - 1
		}
		body, err := store.GetRange(ctx, key, start, end)
		if err != nil {
			return err
		}
		_, err = io.Copy(out, body)
		body.Close()
		if err != nil {
			return fmt.Errorf("read range %d-%d: %w", start, end, err)
		}
	}
	return nil
}
