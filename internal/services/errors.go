package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration marks fail-fast errors detected at task creation:
	// unknown model backend, invalid chunk range, malformed language pair.
	ErrConfiguration = errors.New("configuration error")
	// ErrValidation marks malformed requests that must never be retried.
	ErrValidation = errors.New("validation error")
	// ErrTransient marks retryable failures such as model-load hiccups or
	// short-lived I/O problems.
	ErrTransient = errors.New("transient failure")
	// ErrResourceExhausted signals that every concurrency slot for a model
	// backend is busy and the caller should back off.
	ErrResourceExhausted = errors.New("resource exhausted")
	// ErrStageTimeout marks a watchdog-detected stall requiring manual retry.
	ErrStageTimeout = errors.New("stage timeout")
	// ErrConflict marks an attempt to create a second live task for the same
	// video chunk.
	ErrConflict = errors.New("conflict")
	// ErrNotFound marks lookups for records that do not exist.
	ErrNotFound = errors.New("not found")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsTransient reports whether an error should be retried automatically.
// Only transient failures qualify; everything else surfaces immediately.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsBackpressure reports whether an error signals saturated model capacity.
func IsBackpressure(err error) bool {
	return errors.Is(err, ErrResourceExhausted)
}

// IsNotFound reports whether an error marks a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

// Details extracts the human-readable portion of a wrapped service error.
type ErrorDetails struct {
	Marker  error
	Message string
}

// Details classifies err against the sentinel markers and strips the marker
// prefix from the message for presentation.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	markers := []error{
		ErrConfiguration,
		ErrValidation,
		ErrTransient,
		ErrResourceExhausted,
		ErrStageTimeout,
		ErrConflict,
		ErrNotFound,
	}
	details := ErrorDetails{Message: err.Error()}
	for _, marker := range markers {
		if errors.Is(err, marker) {
			details.Marker = marker
			prefix := marker.Error() + ": "
			if strings.HasPrefix(details.Message, prefix) {
				details.Message = strings.TrimPrefix(details.Message, prefix)
			}
			break
		}
	}
	return details
}
