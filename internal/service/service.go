// Package service orchestrates the storage engine: it accepts chunks,
// runs merges end to end (admission, concatenation, quota commit, catalog
// record, preview), and exposes the file-record operations built on top.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/cloudrift/cloudrift/internal/catalog"
	"github.com/cloudrift/cloudrift/internal/storage"
	"github.com/cloudrift/cloudrift/internal/thumbnail"
)

// Service errors.
var (
	ErrInvalidFileName = errors.New("invalid file name")
	ErrIsFolder        = errors.New("operation not applicable to folders")
	ErrFileUnavailable = errors.New("file is not available")
)

// Service ties the chunk store, quota ledger, merge coordinator,
// thumbnail pipeline, and metadata catalog together.
type Service struct {
	ns      *storage.Namespace
	chunks  *storage.ChunkStore
	ledger  *storage.Ledger
	coord   *storage.Coordinator
	thumbs  *thumbnail.Pipeline
	catalog *catalog.Store
	recent  *storage.RecentMerges

	// merges collapses concurrent merge requests for the same
	// (user, fileName) so quota is committed and the record created at
	// most once per flight.
	merges singleflight.Group
}

// New creates the service. thumbs may be nil to disable previews; recent
// may be nil to disable the idempotency window.
func New(
	ns *storage.Namespace,
	chunks *storage.ChunkStore,
	ledger *storage.Ledger,
	coord *storage.Coordinator,
	thumbs *thumbnail.Pipeline,
	cat *catalog.Store,
	recent *storage.RecentMerges,
) *Service {
	return &Service{
		ns:      ns,
		chunks:  chunks,
		ledger:  ledger,
		coord:   coord,
		thumbs:  thumbs,
		catalog: cat,
		recent:  recent,
	}
}

// cleanFileName strips any directory component from a client-supplied
// name and rejects names that would escape the user's directory.
func cleanFileName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidFileName
	}
	base := filepath.Base(filepath.Clean(name))
	if base == "." || base == ".." || base == string(filepath.Separator) {
		return "", ErrInvalidFileName
	}
	return base, nil
}

// UploadChunk stores one chunk of an upload session. Retrying the same
// chunk index overwrites the previous blob.
func (s *Service) UploadChunk(ctx context.Context, userID int64, fileName string, r io.Reader, index, total int) error {
	name, err := cleanFileName(fileName)
	if err != nil {
		return err
	}

	n, err := s.chunks.Put(userID, name, index, total, r)
	if err != nil {
		log.Error().Err(err).Int64("user", userID).Str("file", name).
			Int("chunk", index).Int("total", total).
			Msg("chunk upload failed")
		return err
	}

	log.Debug().Int64("user", userID).Str("file", name).
		Int("chunk", index).Int("total", total).Int64("bytes", n).
		Msg("chunk stored")
	return nil
}

// MergeFile turns a complete chunk session into a durable, catalogued
// file. The caller receives either a definitive success (file durably
// readable, catalog and quota updated) or a definitive failure with no
// partial catalog or quota side effects.
func (s *Service) MergeFile(ctx context.Context, userID int64, fileName string, declaredSize int64, totalChunks int, relPath string) (*catalog.File, error) {
	name, err := cleanFileName(fileName)
	if err != nil {
		return nil, err
	}

	// A retried request that matches a recently completed merge is
	// answered from the catalog; its chunks are already gone.
	key := storage.MergeKey(userID, name, totalChunks, declaredSize)
	if s.recent != nil {
		if res, ok := s.recent.Get(key); ok {
			if rec, err := s.catalog.FileByOwnerAndName(ctx, userID, name); err == nil && rec.Hash == res.Hash {
				log.Debug().Int64("user", userID).Str("file", name).Msg("merge answered from idempotency cache")
				return rec, nil
			}
		}
	}

	flightKey := fmt.Sprintf("%d/%s", userID, name)
	v, err, _ := s.merges.Do(flightKey, func() (interface{}, error) {
		return s.mergeOnce(ctx, userID, name, declaredSize, totalChunks, relPath, key)
	})
	if err != nil {
		return nil, err
	}
	return v.(*catalog.File), nil
}

// mergeOnce is the single-flight merge body: admission, merge, quota
// commit, catalog record, preview.
func (s *Service) mergeOnce(ctx context.Context, userID int64, name string, declaredSize int64, totalChunks int, relPath, cacheKey string) (*catalog.File, error) {
	log.Info().Int64("user", userID).Str("file", name).
		Int64("size", declaredSize).Int("chunks", totalChunks).
		Msg("merge requested")

	// Re-probe the cache now that we hold the flight: a caller that
	// missed the pre-flight check may have been overtaken by a merge
	// that already completed and removed the chunks.
	if s.recent != nil {
		if res, ok := s.recent.Get(cacheKey); ok {
			if rec, err := s.catalog.FileByOwnerAndName(ctx, userID, name); err == nil && rec.Hash == res.Hash {
				return rec, nil
			}
		}
	}

	// Fail fast before any concatenation work.
	if err := s.ledger.Admit(ctx, userID, declaredSize); err != nil {
		return nil, err
	}

	res, err := s.coord.Merge(ctx, storage.MergeRequest{
		UserID:       userID,
		FileName:     name,
		ExpectedSize: declaredSize,
		TotalChunks:  totalChunks,
	})
	if err != nil {
		return nil, err
	}

	// The file is durably published; account for it.
	if _, err := s.ledger.Commit(ctx, userID, res.Size); err != nil {
		return nil, fmt.Errorf("merge published but quota commit failed: %w", err)
	}

	rec, err := s.recordMerged(ctx, userID, name, relPath, res)
	if err != nil {
		return nil, err
	}

	// Preview generation is best-effort: its failure never fails the merge.
	if s.thumbs != nil {
		url, terr := s.thumbs.Generate(ctx, res.Path, userID)
		if terr != nil {
			log.Warn().Err(terr).Int64("user", userID).Str("file", name).
				Msg("thumbnail generation failed")
		} else if url != "" {
			rec.ThumbnailURL = url
			if err := s.catalog.UpdateFile(ctx, rec); err != nil {
				log.Warn().Err(err).Uint("file_id", rec.ID).Msg("failed to persist thumbnail url")
			}
		}
	}

	if s.recent != nil {
		s.recent.Add(cacheKey, res)
	}
	return rec, nil
}

// recordMerged creates the ACTIVE catalog record for a merged file, or
// updates the existing record when the merge replaced a file of the same
// name in the same logical directory.
func (s *Service) recordMerged(ctx context.Context, userID int64, name, relPath string, res storage.MergeResult) (*catalog.File, error) {
	existing, err := s.catalog.FileByOwnerAndName(ctx, userID, name)
	if err == nil && !existing.IsFolder() &&
		existing.Status == catalog.StatusActive && existing.RelativePath == relPath {
		existing.Path = res.Path
		existing.Size = res.Size
		existing.Hash = res.Hash
		existing.ThumbnailURL = ""
		if err := s.catalog.UpdateFile(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}

	rec := &catalog.File{
		Name:         name,
		Path:         res.Path,
		RelativePath: relPath,
		Hash:         res.Hash,
		Size:         res.Size,
		Type:         catalog.TypeOf(name),
		Status:       catalog.StatusActive,
		UserID:       userID,
	}
	if err := s.catalog.CreateFile(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete soft-deletes a file record; the underlying data is retained for
// trash semantics.
func (s *Service) Delete(ctx context.Context, userID int64, fileID uint) error {
	return s.catalog.SetStatus(ctx, userID, fileID, catalog.StatusDeleted)
}

// Rename changes a record's display name.
func (s *Service) Rename(ctx context.Context, userID int64, fileID uint, newName string) error {
	name, err := cleanFileName(newName)
	if err != nil {
		return err
	}
	file, err := s.catalog.FileByOwnerAndID(ctx, userID, fileID)
	if err != nil {
		return err
	}
	file.Name = name
	return s.catalog.UpdateFile(ctx, file)
}

// Move relocates a record to another logical directory. The physical
// placement is unchanged; only the tree position moves.
func (s *Service) Move(ctx context.Context, userID int64, fileID uint, newRelPath string) error {
	file, err := s.catalog.FileByOwnerAndID(ctx, userID, fileID)
	if err != nil {
		return err
	}
	file.RelativePath = newRelPath
	return s.catalog.UpdateFile(ctx, file)
}

// List returns the user's records for one listing view.
func (s *Service) List(ctx context.Context, userID int64, path, category, sort string) ([]catalog.File, error) {
	return s.catalog.List(ctx, userID, catalog.ListQuery{Path: path, Category: category, Sort: sort})
}

// CreateFolder creates a folder record in the given logical directory.
func (s *Service) CreateFolder(ctx context.Context, userID int64, folderName, relPath string) (*catalog.File, error) {
	name, err := cleanFileName(folderName)
	if err != nil {
		return nil, err
	}

	if existing, err := s.catalog.FileByOwnerAndName(ctx, userID, name); err == nil &&
		existing.Status == catalog.StatusActive && existing.RelativePath == relPath {
		return nil, catalog.ErrFileExists
	}

	userDir, err := s.ns.UserDir(userID)
	if err != nil {
		return nil, err
	}

	rec := &catalog.File{
		Name:         name,
		Path:         filepath.Join(userDir, name),
		RelativePath: relPath,
		Type:         catalog.TypeFolder,
		Status:       catalog.StatusActive,
		UserID:       userID,
	}
	if err := s.catalog.CreateFile(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// CreateTextFile creates a small file directly from in-memory content,
// bypassing the chunk path. Intended for editor-style "new file" flows.
func (s *Service) CreateTextFile(ctx context.Context, userID int64, fileName, relPath, content string) (*catalog.File, error) {
	name, err := cleanFileName(fileName)
	if err != nil {
		return nil, err
	}

	userDir, err := s.ns.UserDir(userID)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(userDir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("write text file: %w", err)
	}

	rec := &catalog.File{
		Name:         name,
		Path:         path,
		RelativePath: relPath,
		Hash:         storage.ContentHash([]byte(content)),
		Size:         int64(len(content)),
		Type:         catalog.TypeOf(name),
		Status:       catalog.StatusActive,
		UserID:       userID,
	}
	if err := s.catalog.CreateFile(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// DownloadPath resolves a record to the on-disk path a caller may stream
// the content from. Folders and non-active records are not downloadable.
func (s *Service) DownloadPath(ctx context.Context, userID int64, fileID uint) (string, error) {
	file, err := s.catalog.FileByOwnerAndID(ctx, userID, fileID)
	if err != nil {
		return "", err
	}
	if file.IsFolder() {
		return "", ErrIsFolder
	}
	if file.Status != catalog.StatusActive {
		return "", fmt.Errorf("%w: status %s", ErrFileUnavailable, file.Status)
	}
	if _, err := os.Stat(file.Path); err != nil {
		return "", fmt.Errorf("%w: %v", ErrFileUnavailable, err)
	}
	return file.Path, nil
}
