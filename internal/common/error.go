// Package common defines sentinel errors and small helpers shared by the
// storage engine layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound    = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Service-level errors.
	ErrorInternal = errors.New("internal error")
	ErrForbidden  = errors.New("forbidden")
	ErrValidation = errors.New("validation error")

	// Lifecycle errors.
	ErrAlreadyTrashed   = errors.New("already trashed")
	ErrNotTrashed       = errors.New("not trashed")
	ErrAlreadyProcessed = errors.New("already processed")
	ErrRootFolder       = errors.New("operation not allowed on root folder")

	// Upload admission errors.
	ErrQuotaExceeded     = errors.New("quota exceeded")
	ErrIntegrityMismatch = errors.New("integrity mismatch")
	ErrUploadNotFound    = errors.New("upload not found")

	// Consistency errors.
	ErrCorruptTree        = errors.New("corrupt folder tree")
	ErrTransactionAborted = errors.New("transaction aborted")
	ErrTimeout            = errors.New("timeout")
)
