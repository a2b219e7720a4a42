package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// ChunkStore writes and inspects individual chunk blobs under a per-user
// staging area. Blobs are named {fileName}.{index}.{total}.part; writing the
// same key twice overwrites the previous blob, so client retries of a single
// chunk are idempotent.
type ChunkStore struct {
	ns *Namespace
}

// NewChunkStore creates a chunk store over the given namespace.
func NewChunkStore(ns *Namespace) *ChunkStore {
	return &ChunkStore{ns: ns}
}

// chunkFileName builds the on-disk blob name for one chunk of a session.
func chunkFileName(fileName string, index, total int) string {
	return fmt.Sprintf("%s.%d.%d.part", fileName, index, total)
}

// validateKey rejects malformed chunk coordinates before any I/O happens.
func validateKey(fileName string, index, total int) error {
	if fileName == "" {
		return ErrEmptyFileName
	}
	if total <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidChunkCount, total)
	}
	if index < 0 || index >= total {
		return fmt.Errorf("%w: %d of %d", ErrInvalidChunkIndex, index, total)
	}
	return nil
}

// Put writes one chunk blob and returns the number of bytes stored.
// An existing blob with the same key is replaced.
func (s *ChunkStore) Put(userID int64, fileName string, index, total int, r io.Reader) (int64, error) {
	if err := validateKey(fileName, index, total); err != nil {
		return 0, err
	}

	dir, err := s.ns.TempDir(userID)
	if err != nil {
		return 0, err
	}
	dst := filepath.Join(dir, chunkFileName(fileName, index, total))

	// Write through a unique temp file and rename, so a concurrent retry of
	// the same chunk never observes a partially written blob.
	tmp, err := os.CreateTemp(dir, ".chunk-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create chunk temp file: %w", err)
	}
	tmpPath := tmp.Name()

	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("write chunk %d of %q: %w", index, fileName, err)
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("publish chunk %d of %q: %w", index, fileName, err)
	}

	if m := GetMetrics(); m != nil {
		m.RecordChunk(n)
	}
	return n, nil
}

// Size returns the byte size of a stored chunk blob, or an error if the
// blob does not exist.
func (s *ChunkStore) Size(userID int64, fileName string, index, total int) (int64, error) {
	if err := validateKey(fileName, index, total); err != nil {
		return 0, err
	}
	dir, err := s.ns.TempDir(userID)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(filepath.Join(dir, chunkFileName(fileName, index, total)))
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Exists reports whether a non-empty chunk blob is present for the key.
func (s *ChunkStore) Exists(userID int64, fileName string, index, total int) bool {
	size, err := s.Size(userID, fileName, index, total)
	return err == nil && size > 0
}

// AllPresent verifies that every chunk of the session exists and is
// non-empty. It returns an IncompleteUploadError naming the first missing
// index otherwise.
func (s *ChunkStore) AllPresent(userID int64, fileName string, total int) error {
	if fileName == "" {
		return ErrEmptyFileName
	}
	if total <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidChunkCount, total)
	}
	for i := 0; i < total; i++ {
		if !s.Exists(userID, fileName, i, total) {
			return &IncompleteUploadError{FileName: fileName, MissingIndex: i, TotalChunks: total}
		}
	}
	return nil
}

// ChunkPath returns the on-disk path of one chunk blob without checking
// that it exists.
func (s *ChunkStore) ChunkPath(userID int64, fileName string, index, total int) (string, error) {
	dir, err := s.ns.TempDir(userID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, chunkFileName(fileName, index, total)), nil
}

// Cleanup removes all chunk blobs of a session. Failures are logged and
// swallowed: a leftover blob wastes disk space but does not affect
// correctness, and removal is safe to retry.
func (s *ChunkStore) Cleanup(userID int64, fileName string, total int) {
	dir, err := s.ns.TempDir(userID)
	if err != nil {
		log.Warn().Err(err).Int64("user", userID).Msg("chunk cleanup skipped")
		return
	}
	for i := 0; i < total; i++ {
		path := filepath.Join(dir, chunkFileName(fileName, i, total))
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("chunk", path).Msg("failed to remove chunk blob")
			if m := GetMetrics(); m != nil {
				m.CleanupFailures.Inc()
			}
		}
	}
}
