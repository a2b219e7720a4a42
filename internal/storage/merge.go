package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// DefaultMergeBuffer is the copy buffer used for chunk concatenation.
const DefaultMergeBuffer = 64 * 1024

// MergeRequest describes one merge attempt.
type MergeRequest struct {
	UserID       int64
	FileName     string
	ExpectedSize int64
	TotalChunks  int
}

// MergeResult is the outcome of a successful merge.
type MergeResult struct {
	Path string // final on-disk location
	Size int64  // verified byte count
	Hash string // hex SHA-256 of the merged content
}

// Coordinator turns a complete chunk set into one durable file. A merge
// for a given (user, fileName) key runs at most once at a time: concurrent
// requests for the same key are collapsed onto the first caller's flight
// and share its result, so quota can never be double-committed.
type Coordinator struct {
	ns      *Namespace
	chunks  *ChunkStore
	pool    *Pool
	bufSize int
	flight  singleflight.Group
}

// NewCoordinator creates a merge coordinator. pool may be nil, in which
// case chunk cleanup runs synchronously. bufSize <= 0 selects the default
// 64 KiB copy buffer.
func NewCoordinator(ns *Namespace, chunks *ChunkStore, pool *Pool, bufSize int) *Coordinator {
	if bufSize <= 0 {
		bufSize = DefaultMergeBuffer
	}
	return &Coordinator{ns: ns, chunks: chunks, pool: pool, bufSize: bufSize}
}

// Merge concatenates all chunks of the session into the final file,
// verifies the byte count, and publishes it atomically. A second caller
// arriving while the same key is in flight waits for the first merge and
// receives its result.
func (c *Coordinator) Merge(ctx context.Context, req MergeRequest) (MergeResult, error) {
	if req.FileName == "" {
		return MergeResult{}, ErrEmptyFileName
	}
	if req.TotalChunks <= 0 {
		return MergeResult{}, fmt.Errorf("%w: %d", ErrInvalidChunkCount, req.TotalChunks)
	}

	key := fmt.Sprintf("%d/%s", req.UserID, req.FileName)
	start := time.Now()

	v, err, shared := c.flight.Do(key, func() (interface{}, error) {
		return c.merge(ctx, req)
	})
	if err != nil {
		if m := GetMetrics(); m != nil {
			m.RecordMerge("error", time.Since(start).Seconds())
		}
		return MergeResult{}, err
	}

	res := v.(MergeResult)
	if m := GetMetrics(); m != nil {
		status := "ok"
		if shared {
			status = "shared"
		}
		m.RecordMerge(status, time.Since(start).Seconds())
		m.BytesMerged.Add(float64(res.Size))
	}
	return res, nil
}

// merge is the single-flight body. On any failure the temporary file is
// removed before the error propagates; chunk blobs are scheduled for
// cleanup regardless of outcome so a failed merge does not pin temp
// storage.
func (c *Coordinator) merge(ctx context.Context, req MergeRequest) (result MergeResult, err error) {
	defer func() {
		userID, fileName, total := req.UserID, req.FileName, req.TotalChunks
		submitOrInline(c.pool, func() {
			c.chunks.Cleanup(userID, fileName, total)
		})
	}()

	if err := c.chunks.AllPresent(req.UserID, req.FileName, req.TotalChunks); err != nil {
		return MergeResult{}, err
	}

	userDir, err := c.ns.UserDir(req.UserID)
	if err != nil {
		return MergeResult{}, err
	}
	finalPath := filepath.Join(userDir, req.FileName)

	// The temp file lives in the target directory so the final rename
	// never crosses a filesystem boundary.
	tmp, err := os.CreateTemp(userDir, "."+req.FileName+".merge-*")
	if err != nil {
		return MergeResult{}, fmt.Errorf("create merge temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			if rmErr := os.Remove(tmpPath); rmErr != nil && !os.IsNotExist(rmErr) {
				log.Warn().Err(rmErr).Str("path", tmpPath).Msg("failed to remove merge temp file")
			}
		}
	}()

	written, hash, err := c.concatenate(ctx, tmp, req)
	if err != nil {
		return MergeResult{}, err
	}

	if err = tmp.Close(); err != nil {
		return MergeResult{}, fmt.Errorf("flush merge temp file: %w", err)
	}

	if written != req.ExpectedSize {
		err = &SizeMismatchError{FileName: req.FileName, Expected: req.ExpectedSize, Actual: written}
		return MergeResult{}, err
	}

	// Atomic publish: a reader of finalPath sees either the old content or
	// the fully merged file, never a partial write.
	if err = os.Rename(tmpPath, finalPath); err != nil {
		return MergeResult{}, fmt.Errorf("publish merged file: %w", err)
	}

	log.Info().Int64("user", req.UserID).Str("file", req.FileName).
		Int64("size", written).Int("chunks", req.TotalChunks).
		Msg("merge completed")

	return MergeResult{Path: finalPath, Size: written, Hash: hash}, nil
}

// concatenate streams every chunk, in ascending index order, into dst
// while feeding the content digest in the same pass. The fixed-size buffer
// keeps memory usage independent of file size.
func (c *Coordinator) concatenate(ctx context.Context, dst io.Writer, req MergeRequest) (int64, string, error) {
	digest := sha256.New()
	out := io.MultiWriter(dst, digest)
	buf := make([]byte, c.bufSize)

	var written int64
	for i := 0; i < req.TotalChunks; i++ {
		if err := ctx.Err(); err != nil {
			return 0, "", fmt.Errorf("merge aborted: %w", err)
		}

		path, err := c.chunks.ChunkPath(req.UserID, req.FileName, i, req.TotalChunks)
		if err != nil {
			return 0, "", err
		}

		n, err := copyChunk(out, path, buf)
		if err != nil {
			return 0, "", fmt.Errorf("append chunk %d of %q: %w", i, req.FileName, err)
		}
		written += n
	}

	return written, hex.EncodeToString(digest.Sum(nil)), nil
}

func copyChunk(dst io.Writer, path string, buf []byte) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.CopyBuffer(dst, f, buf)
}
