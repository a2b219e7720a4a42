package storage

import (
	"bytes"
	"context"
	"crypto/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *ChunkStore, *Namespace) {
	t.Helper()
	ns := newTestNamespace(t)
	chunks := NewChunkStore(ns)
	coord := NewCoordinator(ns, chunks, nil, 0)
	return coord, chunks, ns
}

func putChunks(t *testing.T, store *ChunkStore, userID int64, fileName string, parts [][]byte) {
	t.Helper()
	for i, part := range parts {
		_, err := store.Put(userID, fileName, i, len(parts), bytes.NewReader(part))
		require.NoError(t, err)
	}
}

func TestMergeRoundTrip(t *testing.T) {
	coord, chunks, _ := newTestCoordinator(t)

	parts := [][]byte{
		[]byte("the quick "),
		[]byte("brown fox "),
		[]byte("jumps"),
	}
	putChunks(t, chunks, 1, "fox.txt", parts)

	want := bytes.Join(parts, nil)
	res, err := coord.Merge(context.Background(), MergeRequest{
		UserID: 1, FileName: "fox.txt", ExpectedSize: int64(len(want)), TotalChunks: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(len(want)), res.Size)
	assert.Equal(t, ContentHash(want), res.Hash)

	got, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestMergeVariedChunkSizes(t *testing.T) {
	coord, chunks, _ := newTestCoordinator(t)

	// Uneven sizes, last chunk short, content larger than the copy buffer.
	sizes := []int{1000, 1000, 500}
	var parts [][]byte
	var want []byte
	for _, size := range sizes {
		part := make([]byte, size)
		_, err := rand.Read(part)
		require.NoError(t, err)
		parts = append(parts, part)
		want = append(want, part...)
	}
	putChunks(t, chunks, 1, "report.pdf", parts)

	res, err := coord.Merge(context.Background(), MergeRequest{
		UserID: 1, FileName: "report.pdf", ExpectedSize: 2500, TotalChunks: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2500), res.Size)

	got, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	hash, err := DigestFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, res.Hash, hash)
}

func TestMergeIncompleteUpload(t *testing.T) {
	coord, chunks, ns := newTestCoordinator(t)

	// Only 2 of 3 chunks present.
	_, err := chunks.Put(1, "partial.bin", 0, 3, strings.NewReader("aa"))
	require.NoError(t, err)
	_, err = chunks.Put(1, "partial.bin", 1, 3, strings.NewReader("bb"))
	require.NoError(t, err)

	_, err = coord.Merge(context.Background(), MergeRequest{
		UserID: 1, FileName: "partial.bin", ExpectedSize: 6, TotalChunks: 3,
	})
	require.ErrorIs(t, err, ErrIncompleteUpload)

	var incomplete *IncompleteUploadError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, 2, incomplete.MissingIndex)

	// No final file, no leftover temp file.
	userDir, err := ns.UserDir(1)
	require.NoError(t, err)
	entries, err := os.ReadDir(userDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMergeSizeMismatch(t *testing.T) {
	coord, chunks, ns := newTestCoordinator(t)

	putChunks(t, chunks, 1, "bad.bin", [][]byte{[]byte("1234"), []byte("5678")})

	_, err := coord.Merge(context.Background(), MergeRequest{
		UserID: 1, FileName: "bad.bin", ExpectedSize: 100, TotalChunks: 2,
	})
	require.ErrorIs(t, err, ErrSizeMismatch)

	var mismatch *SizeMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, int64(100), mismatch.Expected)
	assert.Equal(t, int64(8), mismatch.Actual)

	// The temporary merge file was discarded.
	userDir, err := ns.UserDir(1)
	require.NoError(t, err)
	entries, err := os.ReadDir(userDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMergeCleansChunksOnSuccess(t *testing.T) {
	coord, chunks, ns := newTestCoordinator(t)

	putChunks(t, chunks, 1, "done.bin", [][]byte{[]byte("xy"), []byte("z")})

	_, err := coord.Merge(context.Background(), MergeRequest{
		UserID: 1, FileName: "done.bin", ExpectedSize: 3, TotalChunks: 2,
	})
	require.NoError(t, err)

	tempDir, err := ns.TempDir(1)
	require.NoError(t, err)
	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMergeCleansChunksOnFailure(t *testing.T) {
	coord, chunks, ns := newTestCoordinator(t)

	putChunks(t, chunks, 1, "fail.bin", [][]byte{[]byte("xy"), []byte("z")})

	_, err := coord.Merge(context.Background(), MergeRequest{
		UserID: 1, FileName: "fail.bin", ExpectedSize: 999, TotalChunks: 2,
	})
	require.ErrorIs(t, err, ErrSizeMismatch)

	tempDir, err := ns.TempDir(1)
	require.NoError(t, err)
	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMergeReplacesExistingFile(t *testing.T) {
	coord, chunks, ns := newTestCoordinator(t)

	userDir, err := ns.UserDir(1)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(userDir, "again.bin"), []byte("stale content"), 0o644))

	putChunks(t, chunks, 1, "again.bin", [][]byte{[]byte("fresh")})

	res, err := coord.Merge(context.Background(), MergeRequest{
		UserID: 1, FileName: "again.bin", ExpectedSize: 5, TotalChunks: 1,
	})
	require.NoError(t, err)

	got, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(got))
}

func TestMergeAfterChunkReupload(t *testing.T) {
	coord, chunks, _ := newTestCoordinator(t)

	putChunks(t, chunks, 1, "retry.bin", [][]byte{[]byte("aaa"), []byte("bbb")})
	// Client retries chunk 1.
	_, err := chunks.Put(1, "retry.bin", 1, 2, strings.NewReader("bbb"))
	require.NoError(t, err)

	res, err := coord.Merge(context.Background(), MergeRequest{
		UserID: 1, FileName: "retry.bin", ExpectedSize: 6, TotalChunks: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(6), res.Size)
}

func TestMergeCancelledContext(t *testing.T) {
	coord, chunks, _ := newTestCoordinator(t)

	putChunks(t, chunks, 1, "ctx.bin", [][]byte{[]byte("data")})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := coord.Merge(ctx, MergeRequest{
		UserID: 1, FileName: "ctx.bin", ExpectedSize: 4, TotalChunks: 1,
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestMergeInvalidRequest(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)

	_, err := coord.Merge(context.Background(), MergeRequest{UserID: 1, FileName: "", ExpectedSize: 1, TotalChunks: 1})
	assert.ErrorIs(t, err, ErrEmptyFileName)

	_, err = coord.Merge(context.Background(), MergeRequest{UserID: 1, FileName: "x", ExpectedSize: 1, TotalChunks: 0})
	assert.ErrorIs(t, err, ErrInvalidChunkCount)
}

func TestMergeConcurrentSameKey(t *testing.T) {
	coord, chunks, _ := newTestCoordinator(t)

	part := make([]byte, 200*1024) // large enough that the merge takes a moment
	_, err := rand.Read(part)
	require.NoError(t, err)
	putChunks(t, chunks, 1, "race.bin", [][]byte{part})

	req := MergeRequest{UserID: 1, FileName: "race.bin", ExpectedSize: int64(len(part)), TotalChunks: 1}

	const callers = 8
	results := make([]MergeResult, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = coord.Merge(context.Background(), req)
		}(i)
	}
	wg.Wait()

	// Every caller that succeeded saw the same logical result.
	var succeeded int
	for i := 0; i < callers; i++ {
		if errs[i] == nil {
			succeeded++
			assert.Equal(t, int64(len(part)), results[i].Size)
			assert.Equal(t, ContentHash(part), results[i].Hash)
		}
	}
	assert.Greater(t, succeeded, 0)
}

func TestMergeBackgroundCleanupWithPool(t *testing.T) {
	ns := newTestNamespace(t)
	chunks := NewChunkStore(ns)
	pool := NewPool(2, 16)
	defer pool.Close()
	coord := NewCoordinator(ns, chunks, pool, 0)

	putChunks(t, chunks, 1, "pooled.bin", [][]byte{[]byte("ab"), []byte("cd")})

	_, err := coord.Merge(context.Background(), MergeRequest{
		UserID: 1, FileName: "pooled.bin", ExpectedSize: 4, TotalChunks: 2,
	})
	require.NoError(t, err)

	// Cleanup runs asynchronously; wait for the staging dir to empty.
	tempDir, err := ns.TempDir(1)
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		entries, err := os.ReadDir(tempDir)
		return err == nil && len(entries) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
