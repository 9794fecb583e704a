package service

import "errors"

// Error definitions for the service package.
var (
	ErrIndexOutOfRange = errors.New("service: part index out of range")
)
