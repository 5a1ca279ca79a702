// Package errors provides a structured error system for pycache with error
// codes, categories, and cause chaining.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents a structured error code for cache operations.
type ErrorCode string

// Error code constants organized by category.
const (
	// Configuration errors
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	ErrCodeConfigLoad    ErrorCode = "CONFIG_LOAD"

	// Storage errors
	ErrCodeHashNotFound ErrorCode = "HASH_NOT_FOUND"
	ErrCodeStorageRead  ErrorCode = "STORAGE_READ"
	ErrCodeStorageWrite ErrorCode = "STORAGE_WRITE"
	ErrCodeSizeLimit    ErrorCode = "SIZE_LIMIT_EXCEEDED"

	// Cache errors
	ErrCodeCorruptedEntry ErrorCode = "CORRUPTED_ENTRY"
	ErrCodeEncodeFailed   ErrorCode = "ENCODE_FAILED"
	ErrCodeDecodeFailed   ErrorCode = "DECODE_FAILED"

	// Serialization errors
	ErrCodeIndexLoad ErrorCode = "INDEX_LOAD"
	ErrCodeIndexSave ErrorCode = "INDEX_SAVE"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryStorage       ErrorCategory = "storage"
	CategoryCache         ErrorCategory = "cache"
	CategorySerialization ErrorCategory = "serialization"
	CategoryInternal      ErrorCategory = "internal"
)

// CacheError represents a structured error with context and metadata.
type CacheError struct {
	Code      ErrorCode     `json:"code"`
	Category  ErrorCategory `json:"category"`
	Message   string        `json:"message"`
	Component string        `json:"component,omitempty"`
	Operation string        `json:"operation,omitempty"`
	Cause     error         `json:"-"` // Not serialized to avoid circular refs
	Timestamp time.Time     `json:"timestamp"`
}

// Error implements the error interface.
func (e *CacheError) Error() string {
	if e.Component != "" {
		if e.Operation != "" {
			return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, e.Message)
		}
		return fmt.Sprintf("[%s] %s: %s", e.Component, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *CacheError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error (for errors.Is compatibility).
func (e *CacheError) Is(target error) bool {
	if cacheErr, ok := target.(*CacheError); ok {
		return e.Code == cacheErr.Code
	}
	return false
}

// NewError creates a new cache error with default values.
func NewError(code ErrorCode, message string) *CacheError {
	return &CacheError{
		Code:      code,
		Category:  GetCategory(code),
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Errorf creates a new cache error with a formatted message.
func Errorf(code ErrorCode, format string, args ...interface{}) *CacheError {
	return NewError(code, fmt.Sprintf(format, args...))
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "INVALID_CONFIG") || strings.HasPrefix(codeStr, "CONFIG_"):
		return CategoryConfiguration
	case strings.HasPrefix(codeStr, "HASH_") || strings.HasPrefix(codeStr, "STORAGE_") ||
		strings.HasPrefix(codeStr, "SIZE_LIMIT"):
		return CategoryStorage
	case strings.HasPrefix(codeStr, "CORRUPTED_") || strings.HasPrefix(codeStr, "ENCODE_") ||
		strings.HasPrefix(codeStr, "DECODE_"):
		return CategoryCache
	case strings.HasPrefix(codeStr, "INDEX_"):
		return CategorySerialization
	default:
		return CategoryInternal
	}
}

// WithComponent sets the component for an error.
func (e *CacheError) WithComponent(component string) *CacheError {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error.
func (e *CacheError) WithOperation(operation string) *CacheError {
	e.Operation = operation
	return e
}

// WithCause sets the underlying cause.
func (e *CacheError) WithCause(cause error) *CacheError {
	e.Cause = cause
	return e
}

// IsNotFound reports whether err indicates a missing hash. Callers on the
// read path use this to translate storage misses into cache-miss semantics.
func IsNotFound(err error) bool {
	var cacheErr *CacheError
	if errors.As(err, &cacheErr) {
		return cacheErr.Code == ErrCodeHashNotFound
	}
	return false
}

// IsSizeLimit reports whether err indicates a per-item size limit violation.
func IsSizeLimit(err error) bool {
	var cacheErr *CacheError
	if errors.As(err, &cacheErr) {
		return cacheErr.Code == ErrCodeSizeLimit
	}
	return false
}

// IsCorrupted reports whether err indicates a corrupted or undecodable entry.
func IsCorrupted(err error) bool {
	var cacheErr *CacheError
	if errors.As(err, &cacheErr) {
		return cacheErr.Code == ErrCodeCorruptedEntry || cacheErr.Code == ErrCodeDecodeFailed
	}
	return false
}
