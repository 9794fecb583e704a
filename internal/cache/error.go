package cache

import "errors"

// Error definitions for the cache package.
var (
	ErrNotFound    = errors.New("cache: artifact not found")
	ErrNotReady    = errors.New("cache: artifact is not ready")
	ErrNotPending  = errors.New("cache: artifact is not pending")
	ErrInvalidName = errors.New("cache: invalid audio file name")
)
