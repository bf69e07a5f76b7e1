package repository

import "errors"

var (
	// ErrNotFound is returned when no document matches a filter
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a document with the same id already exists
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrUnavailable is returned when the underlying store cannot be reached
	ErrUnavailable = errors.New("storage unavailable")

	// ErrInvalidInput is returned when a document, filter or field name is malformed
	ErrInvalidInput = errors.New("invalid input")
)
