package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Write failure classes reported by the search engine
	ErrTransientWrite = errors.New("transient write failure")
	ErrTerminalWrite  = errors.New("terminal write failure")
)

// ValidationError reports a document that does not satisfy its index structure.
// It is a caller bug and is never retried.
type ValidationError struct {
	Index       string
	Field       string
	DocumentKey string
	Reason      string
	Document    Document
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("document %q %s (field: %s, index: %s)", e.DocumentKey, e.Reason, e.Field, e.Index)
}

// Is lets errors.Is(err, ErrBadRequest) match validation failures.
func (e *ValidationError) Is(target error) bool {
	return target == ErrBadRequest
}

// ConfigurationError reports an unusable index structure.
type ConfigurationError struct {
	Index  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("index %s misconfigured: %s", e.Index, e.Reason)
}

// UpstreamReadError wraps a failure reading a page or record from an upstream source.
type UpstreamReadError struct {
	Source   string
	Page     int
	RecordID string
	Err      error
}

func (e *UpstreamReadError) Error() string {
	switch {
	case e.Page > 0:
		return fmt.Sprintf("error reading page %d of %s - %v", e.Page, e.Source, e.Err)
	case e.RecordID != "":
		return fmt.Sprintf("error reading %s %s - %v", e.Source, e.RecordID, e.Err)
	default:
		return fmt.Sprintf("error reading %s - %v", e.Source, e.Err)
	}
}

func (e *UpstreamReadError) Unwrap() error {
	return e.Err
}

// retryableWriteStatuses are the per-document engine statuses worth resubmitting.
var retryableWriteStatuses = map[int]bool{
	409: true,
	422: true,
	503: true,
}

// WriteFailure is a single document the search engine refused to store.
type WriteFailure struct {
	Key        string
	StatusCode int
	Message    string
}

func (e *WriteFailure) Error() string {
	return fmt.Sprintf("document %s failed with status %d: %s", e.Key, e.StatusCode, e.Message)
}

// Retryable reports whether the failure status is eligible for resubmission.
func (e *WriteFailure) Retryable() bool {
	return IsRetryableWriteStatus(e.StatusCode)
}

func (e *WriteFailure) Is(target error) bool {
	if target == ErrTransientWrite {
		return e.Retryable()
	}
	if target == ErrTerminalWrite {
		return !e.Retryable()
	}
	return false
}

// IsRetryableWriteStatus classifies an engine per-document status code.
func IsRetryableWriteStatus(statusCode int) bool {
	return retryableWriteStatuses[statusCode]
}
