// Package storage implements the chunked-upload storage engine: the path
// namespace, chunk blob store, quota ledger, and merge coordinator.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Namespace maps (user, purpose) pairs to physical directories and public
// URLs. Directories are created lazily on first use; creation for a given
// path is serialized through a keyed mutex so concurrent first uses of the
// same directory do not race.
type Namespace struct {
	uploadRoot string
	tempRoot   string
	baseURL    string
	dirLocks   *KeyedMutex
}

// NewNamespace creates a namespace rooted at the given upload and temp
// directories. baseURL is the public prefix for thumbnail and avatar URLs,
// e.g. "http://127.0.0.1:8080".
func NewNamespace(uploadRoot, tempRoot, baseURL string) *Namespace {
	return &Namespace{
		uploadRoot: uploadRoot,
		tempRoot:   tempRoot,
		baseURL:    baseURL,
		dirLocks:   NewKeyedMutex(),
	}
}

// UserDir returns the user's final storage directory, creating it if needed.
func (n *Namespace) UserDir(userID int64) (string, error) {
	return n.ensureDir(filepath.Join(n.uploadRoot, strconv.FormatInt(userID, 10)))
}

// TempDir returns the user's chunk staging directory, creating it if needed.
func (n *Namespace) TempDir(userID int64) (string, error) {
	return n.ensureDir(filepath.Join(n.tempRoot, strconv.FormatInt(userID, 10)))
}

// ThumbDir returns the user's thumbnail directory, creating it if needed.
func (n *Namespace) ThumbDir(userID int64) (string, error) {
	return n.ensureDir(filepath.Join(n.uploadRoot, "thumb", strconv.FormatInt(userID, 10)))
}

// AvatarDir returns the user's avatar directory, creating it if needed.
func (n *Namespace) AvatarDir(userID int64) (string, error) {
	return n.ensureDir(filepath.Join(n.uploadRoot, "avatar", strconv.FormatInt(userID, 10)))
}

// ThumbURL builds the public URL for a thumbnail file.
func (n *Namespace) ThumbURL(userID int64, fileName string) string {
	return fmt.Sprintf("%s/thumb/%d/%s", n.baseURL, userID, fileName)
}

// AvatarURL builds the public URL for an avatar file.
func (n *Namespace) AvatarURL(userID int64, fileName string) string {
	return fmt.Sprintf("%s/avatar/%d/%s", n.baseURL, userID, fileName)
}

// ensureDir creates dir if it does not exist. The per-path lock makes
// concurrent first uses idempotent without a global bottleneck.
func (n *Namespace) ensureDir(dir string) (string, error) {
	unlock := n.dirLocks.Lock(dir)
	defer unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create directory %s: %w", dir, err)
	}
	return dir, nil
}
