// Package catalog holds the metadata record lifecycle for stored files:
// the file record model, its status state machine, and the SQLite-backed
// store the engine persists records through.
package catalog

import (
	"time"
)

// FileStatus is the lifecycle state of a file record.
type FileStatus string

// File lifecycle states.
const (
	// StatusUploading is reserved for in-flight sessions before merge
	// completes. Hash and size are not meaningful in this state.
	StatusUploading FileStatus = "UPLOADING"
	StatusActive    FileStatus = "ACTIVE"
	// StatusDeleted is a soft delete: the record is retained for trash
	// semantics and is terminal.
	StatusDeleted FileStatus = "DELETED"
	// StatusArchived is declared but has no transition producer yet; the
	// archival flow is unresolved upstream.
	StatusArchived FileStatus = "ARCHIVED"
)

// Valid reports whether s is a known status.
func (s FileStatus) Valid() bool {
	switch s {
	case StatusUploading, StatusActive, StatusDeleted, StatusArchived:
		return true
	}
	return false
}

// CanTransition reports whether a record may move from s to next.
// DELETED is terminal; in particular a deleted record never returns to
// ACTIVE directly.
func (s FileStatus) CanTransition(next FileStatus) bool {
	switch s {
	case StatusUploading:
		return next == StatusActive
	case StatusActive:
		return next == StatusDeleted || next == StatusArchived
	default:
		return false
	}
}

// File is one logical stored object (file or folder) owned by a user.
type File struct {
	ID           uint       `gorm:"primaryKey"`
	Name         string     `gorm:"type:text;not null;index:idx_owner_name"`
	Path         string     `gorm:"type:text;not null"` // physical storage path
	RelativePath string     `gorm:"type:text"`          // logical position in the user's tree
	ThumbnailURL string     `gorm:"type:text"`
	Hash         string     `gorm:"type:text"`
	Size         int64      `gorm:"not null;default:0"`
	Type         string     `gorm:"type:text;not null"`
	Status       FileStatus `gorm:"type:text;not null"`
	UserID       int64      `gorm:"not null;index:idx_owner_name"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsFolder reports whether the record represents a directory.
func (f *File) IsFolder() bool { return f.Type == TypeFolder }

// User carries the quota counters the engine reads and advances. The rest
// of the user profile lives outside this core.
type User struct {
	ID            int64 `gorm:"primaryKey"`
	UsedCapacity  int64 `gorm:"not null;default:0"`
	TotalCapacity int64 `gorm:"not null;default:0"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
