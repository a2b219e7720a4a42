package catalog

import "errors"

// Catalog error conditions.
var (
	ErrFileNotFound      = errors.New("file record not found")
	ErrUserNotFound      = errors.New("user record not found")
	ErrFileExists        = errors.New("file record already exists")
	ErrInvalidTransition = errors.New("invalid status transition")
)
