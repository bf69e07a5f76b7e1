package entity

import (
	"fmt"
	"strings"
)

// Validator checks collection-specific rules before a write.
type Validator interface {
	// ValidateCreate sees the full record about to be inserted.
	ValidateCreate(rec Record) error
	// ValidatePatch sees only the fields an update will overwrite.
	ValidatePatch(patch Record) error
}

// RequiredFields rejects records missing any of the named fields, and patches
// that would blank one of them.
type RequiredFields []string

// ValidateCreate implements Validator.
func (f RequiredFields) ValidateCreate(rec Record) error {
	for _, name := range f {
		if blank(rec[name]) {
			return fmt.Errorf("%w: %s is required", ErrInvalidRecord, name)
		}
	}
	return nil
}

// ValidatePatch implements Validator.
func (f RequiredFields) ValidatePatch(patch Record) error {
	for _, name := range f {
		v, ok := patch[name]
		if ok && blank(v) {
			return fmt.Errorf("%w: %s cannot be empty", ErrInvalidRecord, name)
		}
	}
	return nil
}

func blank(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}
