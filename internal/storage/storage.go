package storage

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrExists        = errors.New("already exists")
	ErrLoadFailed    = errors.New("failed to load collection")
	ErrSaveFailed    = errors.New("failed to save collection")
	ErrInvalidFormat = errors.New("invalid collection format")
)
