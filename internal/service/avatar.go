package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// UploadAvatar stores a user's avatar image and returns its public URL.
// Every upload gets a fresh name so stale browser caches never serve an
// old avatar.
func (s *Service) UploadAvatar(ctx context.Context, userID int64, r io.Reader) (string, error) {
	dir, err := s.ns.AvatarDir(userID)
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("avatar_%d_%s.png", userID, uuid.NewString())

	tmp, err := os.CreateTemp(dir, ".avatar-*")
	if err != nil {
		return "", fmt.Errorf("create avatar temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write avatar: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close avatar: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		return "", fmt.Errorf("publish avatar: %w", err)
	}

	return s.ns.AvatarURL(userID, name), nil
}
