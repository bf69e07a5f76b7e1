package mcp

import (
	"fmt"

	"github.com/rpggio/entityhub/internal/entity"
)

// APIError is the text content of a failed tool call.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// MapResult describes a failed Result for a tool caller. It returns nil for success.
func MapResult(res entity.Result) *APIError {
	if res.Success {
		return nil
	}
	switch res.Kind {
	case entity.KindNotFound:
		return &APIError{Code: "NOT_FOUND", Message: res.Error, RecoveryHint: "Check the id and collection; list_records shows what exists"}
	case entity.KindInvalid:
		return &APIError{Code: "INVALID_INPUT", Message: res.Error, RecoveryHint: "Fix the payload and retry"}
	case entity.KindUnavailable:
		return &APIError{Code: "STORAGE_UNAVAILABLE", Message: res.Error, RecoveryHint: "Retry later"}
	default:
		return &APIError{Code: "STORAGE_ERROR", Message: res.Error}
	}
}
