package storage

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamespaceDirs(t *testing.T) {
	root := t.TempDir()
	ns := NewNamespace(filepath.Join(root, "upload"), filepath.Join(root, "temp"), "http://example.test")

	userDir, err := ns.UserDir(42)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "upload", "42"), userDir)

	tempDir, err := ns.TempDir(42)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "temp", "42"), tempDir)

	thumbDir, err := ns.ThumbDir(42)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "upload", "thumb", "42"), thumbDir)

	avatarDir, err := ns.AvatarDir(42)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "upload", "avatar", "42"), avatarDir)

	for _, dir := range []string{userDir, tempDir, thumbDir, avatarDir} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestNamespaceDirIdempotent(t *testing.T) {
	root := t.TempDir()
	ns := NewNamespace(filepath.Join(root, "upload"), filepath.Join(root, "temp"), "http://example.test")

	first, err := ns.UserDir(1)
	require.NoError(t, err)
	second, err := ns.UserDir(1)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestNamespaceConcurrentCreation(t *testing.T) {
	root := t.TempDir()
	ns := NewNamespace(filepath.Join(root, "upload"), filepath.Join(root, "temp"), "http://example.test")

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ns.TempDir(7)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	info, err := os.Stat(filepath.Join(root, "temp", "7"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNamespaceURLs(t *testing.T) {
	ns := NewNamespace("/u", "/t", "http://10.0.0.5:8080")

	assert.Equal(t, "http://10.0.0.5:8080/thumb/3/thumb_x.jpg", ns.ThumbURL(3, "thumb_x.jpg"))
	assert.Equal(t, "http://10.0.0.5:8080/avatar/3/a.png", ns.AvatarURL(3, "a.png"))
}
