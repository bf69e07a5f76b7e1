package entity

import "errors"

var (
	// ErrInvalidRecord indicates a payload or patch was rejected by validation.
	ErrInvalidRecord = errors.New("invalid record")
	// ErrUnknownCollection indicates no store is registered under the name.
	ErrUnknownCollection = errors.New("unknown collection")
	// ErrInvalidCollectionName indicates a collection name failed validation.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)
