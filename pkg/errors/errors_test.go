package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestCacheError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *CacheError
		expected string
	}{
		{
			name:     "code and message only",
			err:      NewError(ErrCodeHashNotFound, "no blob for digest"),
			expected: "HASH_NOT_FOUND: no blob for digest",
		},
		{
			name:     "with component",
			err:      NewError(ErrCodeStorageWrite, "disk full").WithComponent("file-storage"),
			expected: "[file-storage] STORAGE_WRITE: disk full",
		},
		{
			name:     "with component and operation",
			err:      NewError(ErrCodeIndexSave, "rename failed").WithComponent("index").WithOperation("save"),
			expected: "[index:save] INDEX_SAVE: rename failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestGetCategory(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		category ErrorCategory
	}{
		{ErrCodeInvalidConfig, CategoryConfiguration},
		{ErrCodeConfigLoad, CategoryConfiguration},
		{ErrCodeHashNotFound, CategoryStorage},
		{ErrCodeStorageRead, CategoryStorage},
		{ErrCodeSizeLimit, CategoryStorage},
		{ErrCodeCorruptedEntry, CategoryCache},
		{ErrCodeDecodeFailed, CategoryCache},
		{ErrCodeIndexLoad, CategorySerialization},
		{ErrorCode("SOMETHING_ELSE"), CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := GetCategory(tt.code); got != tt.category {
				t.Errorf("GetCategory(%s) = %s, want %s", tt.code, got, tt.category)
			}
		})
	}
}

func TestCacheError_Unwrap(t *testing.T) {
	cause := errors.New("underlying failure")
	err := NewError(ErrCodeStorageRead, "read failed").WithCause(cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
	if errors.Unwrap(err) != cause {
		t.Error("Unwrap should return the cause")
	}
}

func TestCacheError_Is(t *testing.T) {
	a := NewError(ErrCodeHashNotFound, "first")
	b := NewError(ErrCodeHashNotFound, "second")
	c := NewError(ErrCodeStorageRead, "third")

	if !errors.Is(a, b) {
		t.Error("errors with the same code should match")
	}
	if errors.Is(a, c) {
		t.Error("errors with different codes should not match")
	}
}

func TestIsNotFound(t *testing.T) {
	nf := NewError(ErrCodeHashNotFound, "missing")
	wrapped := fmt.Errorf("load: %w", nf)

	if !IsNotFound(nf) {
		t.Error("IsNotFound should match a direct not-found error")
	}
	if !IsNotFound(wrapped) {
		t.Error("IsNotFound should match a wrapped not-found error")
	}
	if IsNotFound(errors.New("plain")) {
		t.Error("IsNotFound should not match a plain error")
	}
	if IsNotFound(NewError(ErrCodeSizeLimit, "too big")) {
		t.Error("IsNotFound should not match other codes")
	}
}

func TestIsCorrupted(t *testing.T) {
	if !IsCorrupted(NewError(ErrCodeCorruptedEntry, "bad hash")) {
		t.Error("IsCorrupted should match corruption")
	}
	if !IsCorrupted(NewError(ErrCodeDecodeFailed, "bad frame")) {
		t.Error("IsCorrupted should match decode failures")
	}
	if IsCorrupted(NewError(ErrCodeHashNotFound, "missing")) {
		t.Error("IsCorrupted should not match not-found")
	}
}
