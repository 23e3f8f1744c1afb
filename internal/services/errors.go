// Package services implements the archive core: the registry of archived
// websites, the versioned memento store, the external archive quota and
// submitter, cascading deletion and asynchronous captures.
//
// This file centralizes the service-level errors. Handlers translate them
// into HTTP status codes; the CLI prints them. Callers should match with
// errors.Is / errors.As rather than comparing messages.
package services

import (
	"errors"
	"fmt"

	"github.com/tbourn/go-archive-backend/internal/capture"
)

// ErrNotFound is matched by every "unknown id" error below.
var ErrNotFound = errors.New("not found")

var (
	// ErrWebsiteNotFound indicates an unknown archived website id or URL.
	ErrWebsiteNotFound = fmt.Errorf("website %w", ErrNotFound)

	// ErrMementoNotFound indicates an unknown memento id.
	ErrMementoNotFound = fmt.Errorf("memento %w", ErrNotFound)

	// ErrTaskNotFound indicates an unknown capture task id.
	ErrTaskNotFound = fmt.Errorf("capture task %w", ErrNotFound)

	// ErrArtifactMissing is returned when a memento exists but the requested
	// file (content or screenshot) does not.
	ErrArtifactMissing = fmt.Errorf("artifact %w", ErrNotFound)
)

var (
	// ErrAlreadySubmitted is returned when a memento already carries an
	// external archive reference, or a submission for it is in flight.
	ErrAlreadySubmitted = errors.New("memento already submitted to external archive")

	// ErrQuotaExceeded is matched by *QuotaExceededError.
	ErrQuotaExceeded = errors.New("external archive quota exceeded")

	// ErrSubmissionFailed is matched by *SubmissionFailedError.
	ErrSubmissionFailed = errors.New("external archive submission failed")

	// ErrStorageWrite is matched by *StorageWriteError.
	ErrStorageWrite = errors.New("storage write failed")

	// ErrInvalidLimit is returned when a negative daily limit is configured.
	ErrInvalidLimit = errors.New("daily limit must be >= 0")
)

// Request validation errors surfaced from the capture package.
var (
	ErrInvalidURL         = capture.ErrInvalidURL
	ErrInvalidLanguage    = capture.ErrInvalidLanguage
	ErrInvalidGeolocation = capture.ErrInvalidGeolocation
)

// StorageWriteError reports a failed directory, file or row write during a
// capture. Nothing written by the failed capture stays reachable.
type StorageWriteError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageWriteError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("storage write failed: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage write failed: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageWriteError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrStorageWrite) true.
func (e *StorageWriteError) Is(target error) bool { return target == ErrStorageWrite }

// QuotaExceededError carries the counters that blocked a submission.
type QuotaExceededError struct {
	Enabled   bool
	Submitted int
	Limit     int
}

func (e *QuotaExceededError) Error() string {
	if !e.Enabled {
		return "external archive quota exceeded: submissions are disabled"
	}
	return fmt.Sprintf("external archive quota exceeded: %d/%d submissions today", e.Submitted, e.Limit)
}

// Is makes errors.Is(err, ErrQuotaExceeded) true.
func (e *QuotaExceededError) Is(target error) bool { return target == ErrQuotaExceeded }

// SubmissionFailedError describes a transport failure (Status 0) or a
// non-success response from the external archive.
type SubmissionFailedError struct {
	Status int
	Reason string
}

func (e *SubmissionFailedError) Error() string {
	if e.Status == 0 {
		return "external archive submission failed: " + e.Reason
	}
	return fmt.Sprintf("external archive submission failed: status %d: %s", e.Status, e.Reason)
}

// Is makes errors.Is(err, ErrSubmissionFailed) true.
func (e *SubmissionFailedError) Is(target error) bool { return target == ErrSubmissionFailed }
