package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cloudrift/cloudrift/internal/storage"
)

// Store is the SQLite-backed metadata catalog. It also implements the
// storage.Accounts collaborator so the quota ledger can persist capacity
// updates through the same database.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the catalog database at path and migrates the
// schema. Use ":memory:" for an ephemeral catalog.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("catalog path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open catalog database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("access catalog connection: %w", err)
	}
	// SQLite supports a single writer.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := db.AutoMigrate(&File{}, &User{}); err != nil {
		return nil, fmt.Errorf("migrate catalog schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// --- File records ---

// CreateFile persists a new file record.
func (s *Store) CreateFile(ctx context.Context, file *File) error {
	if !file.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidTransition, file.Status)
	}
	if err := s.db.WithContext(ctx).Create(file).Error; err != nil {
		return fmt.Errorf("create file record: %w", err)
	}
	return nil
}

// FileByID returns the record with the given identifier.
func (s *Store) FileByID(ctx context.Context, id uint) (*File, error) {
	var file File
	err := s.db.WithContext(ctx).First(&file, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load file record %d: %w", id, err)
	}
	return &file, nil
}

// FileByOwnerAndID returns the record only if it belongs to userID.
func (s *Store) FileByOwnerAndID(ctx context.Context, userID int64, id uint) (*File, error) {
	var file File
	err := s.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, id).First(&file).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load file record %d: %w", id, err)
	}
	return &file, nil
}

// FileByOwnerAndName returns the newest record with the given display name
// owned by userID, regardless of status.
func (s *Store) FileByOwnerAndName(ctx context.Context, userID int64, name string) (*File, error) {
	var file File
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND name = ?", userID, name).
		Order("id DESC").
		First(&file).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load file record %q: %w", name, err)
	}
	return &file, nil
}

// FilesByOwner returns all records owned by userID.
func (s *Store) FilesByOwner(ctx context.Context, userID int64) ([]File, error) {
	var files []File
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&files).Error; err != nil {
		return nil, fmt.Errorf("list file records for user %d: %w", userID, err)
	}
	return files, nil
}

// UpdateFile persists changes to an existing record.
func (s *Store) UpdateFile(ctx context.Context, file *File) error {
	if err := s.db.WithContext(ctx).Save(file).Error; err != nil {
		return fmt.Errorf("update file record %d: %w", file.ID, err)
	}
	return nil
}

// SetStatus moves a record to the next lifecycle state, enforcing the
// transition rules of the status machine.
func (s *Store) SetStatus(ctx context.Context, userID int64, id uint, next FileStatus) error {
	file, err := s.FileByOwnerAndID(ctx, userID, id)
	if err != nil {
		return err
	}
	if !file.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, file.Status, next)
	}
	file.Status = next
	return s.UpdateFile(ctx, file)
}

// List returns the owner's records filtered and ordered by the query.
func (s *Store) List(ctx context.Context, userID int64, q ListQuery) ([]File, error) {
	files, err := s.FilesByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	return Project(files, q), nil
}

// --- User records / quota collaborator ---

// CreateUser persists a new user with the given capacity.
func (s *Store) CreateUser(ctx context.Context, userID, totalCapacity int64) (*User, error) {
	user := &User{ID: userID, TotalCapacity: totalCapacity}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, fmt.Errorf("create user record %d: %w", userID, err)
	}
	return user, nil
}

// UserByID returns the user record.
func (s *Store) UserByID(ctx context.Context, userID int64) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user record %d: %w", userID, err)
	}
	return &user, nil
}

// Quota implements storage.Accounts.
func (s *Store) Quota(ctx context.Context, userID int64) (storage.QuotaView, error) {
	user, err := s.UserByID(ctx, userID)
	if err != nil {
		return storage.QuotaView{}, err
	}
	return storage.QuotaView{
		UserID: user.ID,
		Used:   user.UsedCapacity,
		Total:  user.TotalCapacity,
	}, nil
}

// SaveQuota implements storage.Accounts.
func (s *Store) SaveQuota(ctx context.Context, view storage.QuotaView) error {
	res := s.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", view.UserID).
		Updates(map[string]interface{}{
			"used_capacity":  view.Used,
			"total_capacity": view.Total,
		})
	if res.Error != nil {
		return fmt.Errorf("persist quota for user %d: %w", view.UserID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
