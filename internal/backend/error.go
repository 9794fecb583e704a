package backend

import "errors"

// Error definitions for the backend package.
var (
	ErrNotFound          = errors.New("backend not found in registry")
	ErrAlreadyRegistered = errors.New("backend is already registered in the registry")
	ErrEmptyText         = errors.New("backend: text is empty")
	ErrEmptyOutput       = errors.New("backend: provider produced no audio")
)
