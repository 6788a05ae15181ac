package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrTypeConfig represents configuration errors
	ErrTypeConfig ErrorType = "config"
	// ErrTypeDatabase represents database errors
	ErrTypeDatabase ErrorType = "database"
	// ErrTypeDownload represents download errors
	ErrTypeDownload ErrorType = "download"
	// ErrTypeFilter represents external filter tool errors
	ErrTypeFilter ErrorType = "filter"
	// ErrTypeUpload represents external import tool errors
	ErrTypeUpload ErrorType = "upload"
	// ErrTypeNotFound represents missing expected input errors
	ErrTypeNotFound ErrorType = "not_found"
)

// Process exit codes for the OSM ingestion job. The GADM job collapses
// everything non-zero to ExitConfigError at its CLI boundary.
const (
	ExitOK            = 0
	ExitConfigError   = 1
	ExitDownloadError = 2
	ExitFilterError   = 3
	ExitUploadError   = 4
)

// AppError represents a structured application error
type AppError struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	parts := []string{string(e.Type), e.Message}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause=%v", e.Cause))
	}

	if len(e.Context) > 0 {
		contextParts := make([]string, 0, len(e.Context))
		for k, v := range e.Context {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("context={%s}", strings.Join(contextParts, ", ")))
	}

	return strings.Join(parts, ": ")
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// ConfigError creates a new configuration error
func ConfigError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeConfig,
		Message: msg,
	}
}

// DatabaseError creates a new database error
func DatabaseError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeDatabase,
		Message: msg,
		Cause:   cause,
	}
}

// DownloadError creates a new download error
func DownloadError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeDownload,
		Message: msg,
		Cause:   cause,
	}
}

// FilterError creates a new filter error
func FilterError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeFilter,
		Message: msg,
		Cause:   cause,
	}
}

// UploadError creates a new upload error
func UploadError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeUpload,
		Message: msg,
		Cause:   cause,
	}
}

// NotFoundError creates a new not found error
func NotFoundError(resource string) *AppError {
	return &AppError{
		Type:    ErrTypeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// IsType checks whether err (or anything it wraps) is an AppError of the
// given type.
func IsType(err error, errType ErrorType) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type == errType
	}
	return false
}

// ExitCode maps an error to the process exit code used by the OSM
// ingestion job. A nil error maps to ExitOK. Unrecognized errors map to
// ExitUploadError, the job's catch-all database/upload code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return ExitUploadError
	}

	switch appErr.Type {
	case ErrTypeConfig:
		return ExitConfigError
	case ErrTypeDownload, ErrTypeNotFound:
		return ExitDownloadError
	case ErrTypeFilter:
		return ExitFilterError
	default:
		return ExitUploadError
	}
}
