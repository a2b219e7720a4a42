package storage

import (
	"errors"
	"fmt"
)

// Storage error conditions.
var (
	ErrInvalidChunkIndex = errors.New("invalid chunk index")
	ErrInvalidChunkCount = errors.New("invalid chunk count")
	ErrEmptyFileName     = errors.New("empty file name")
	ErrIncompleteUpload  = errors.New("incomplete upload")
	ErrSizeMismatch      = errors.New("merged file size mismatch")
	ErrQuotaExceeded     = errors.New("storage quota exceeded")
	ErrMergeInProgress   = errors.New("merge already in progress")
	ErrQueueFull         = errors.New("background task queue full")
)

// IncompleteUploadError reports the first missing or empty chunk of a session.
// It unwraps to ErrIncompleteUpload.
type IncompleteUploadError struct {
	FileName     string
	MissingIndex int
	TotalChunks  int
}

func (e *IncompleteUploadError) Error() string {
	return fmt.Sprintf("incomplete upload of %q: missing chunk %d of %d",
		e.FileName, e.MissingIndex, e.TotalChunks)
}

func (e *IncompleteUploadError) Unwrap() error { return ErrIncompleteUpload }

// SizeMismatchError reports a divergence between the declared and the written
// byte count of a merge. It unwraps to ErrSizeMismatch.
type SizeMismatchError struct {
	FileName string
	Expected int64
	Actual   int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("size mismatch for %q: expected %d bytes, wrote %d",
		e.FileName, e.Expected, e.Actual)
}

func (e *SizeMismatchError) Unwrap() error { return ErrSizeMismatch }
