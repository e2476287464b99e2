package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents different types of errors in the system
type ErrorType string

const (
	// ErrorTypeNotFound indicates a resource was not found
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypeValidation indicates a validation error
	ErrorTypeValidation ErrorType = "VALIDATION"

	// ErrorTypeConflict indicates a conflict with existing data
	ErrorTypeConflict ErrorType = "CONFLICT"

	// ErrorTypeUnauthorized indicates unauthorized access
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"

	// ErrorTypeInternal indicates an internal server error
	ErrorTypeInternal ErrorType = "INTERNAL"

	// ErrorTypeExternal indicates an error from external service
	ErrorTypeExternal ErrorType = "EXTERNAL"

	// ErrorTypeCorpusUnavailable indicates the case corpus could not be read
	ErrorTypeCorpusUnavailable ErrorType = "CORPUS_UNAVAILABLE"

	// ErrorTypeCacheCorrupt indicates the on-disk index cache failed validation
	ErrorTypeCacheCorrupt ErrorType = "CACHE_CORRUPT"

	// ErrorTypeProviderFailure indicates a generation backend failed
	ErrorTypeProviderFailure ErrorType = "PROVIDER_FAILURE"

	// ErrorTypeConversationNotFound indicates an unknown conversation id
	ErrorTypeConversationNotFound ErrorType = "CONVERSATION_NOT_FOUND"

	// ErrorTypeConversationNotOwned indicates a conversation owned by someone else
	ErrorTypeConversationNotOwned ErrorType = "CONVERSATION_NOT_OWNED"

	// ErrorTypeUnavailable indicates a dependency that is not ready yet
	ErrorTypeUnavailable ErrorType = "UNAVAILABLE"
)

// AppError represents an application error
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// TypeOf returns the ErrorType of the first AppError in err's chain, or "" if none
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

// IsType reports whether err carries an AppError of type t
func IsType(err error, t ErrorType) bool {
	return err != nil && TypeOf(err) == t
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeValidation,
		Message: message,
	}
}

// NewConflictError creates a new conflict error
func NewConflictError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeConflict,
		Message: message,
	}
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeUnauthorized,
		Message: message,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Err:     err,
	}
}

// NewExternalError creates a new external service error
func NewExternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeExternal,
		Message: message,
		Err:     err,
	}
}

// NewCorpusUnavailableError reports an unreadable or missing corpus file
func NewCorpusUnavailableError(path string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeCorpusUnavailable,
		Message: fmt.Sprintf("corpus %s is unavailable", path),
		Err:     err,
	}
}

// NewCacheCorruptError reports an index cache that cannot be trusted
func NewCacheCorruptError(path string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeCacheCorrupt,
		Message: fmt.Sprintf("index cache %s is corrupt", path),
		Err:     err,
	}
}

// NewProviderFailureError wraps a failure of the named generation provider
func NewProviderFailureError(provider string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeProviderFailure,
		Message: fmt.Sprintf("provider %s failed", provider),
		Err:     err,
	}
}

// NewConversationNotFoundError creates an unknown-conversation error
func NewConversationNotFoundError(conversationID string) *AppError {
	return &AppError{
		Type:    ErrorTypeConversationNotFound,
		Message: fmt.Sprintf("conversation %s not found", conversationID),
	}
}

// NewConversationNotOwnedError creates an ownership error
func NewConversationNotOwnedError(conversationID string) *AppError {
	return &AppError{
		Type:    ErrorTypeConversationNotOwned,
		Message: fmt.Sprintf("conversation %s belongs to another user", conversationID),
	}
}

// NewUnavailableError creates a not-ready error
func NewUnavailableError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeUnavailable,
		Message: message,
	}
}
