package suggestions

import (
	"errors"
	"fmt"
)

// Domain outcomes returned by the engine. Callers branch on these with
// errors.Is; each maps to exactly one user-visible message in the
// presentation layer.
var (
	// ErrNotConfigured indicates the tenant has no target channel.
	ErrNotConfigured = errors.New("suggestions: tenant has no configured channel")
	// ErrNotFound indicates the (tenant, id) pair is unknown.
	ErrNotFound = errors.New("suggestions: suggestion not found")
	// ErrWrongAuthor indicates an edit by someone other than the submitter.
	ErrWrongAuthor = errors.New("suggestions: author mismatch")
	// ErrArchived indicates the suggestion reached its terminal state.
	ErrArchived = errors.New("suggestions: suggestion archived")
	// ErrReplied indicates the suggestion content became immutable after a
	// moderator resolution.
	ErrReplied = errors.New("suggestions: suggestion already replied")
	// ErrArtifactMissing indicates the rendered message no longer exists;
	// the record has been archived as a side effect and the original
	// operation must not be retried.
	ErrArtifactMissing = errors.New("suggestions: rendered message missing, suggestion archived")
	// ErrRenderFailed indicates the external message could not be created;
	// no state changed.
	ErrRenderFailed = errors.New("suggestions: rendered message could not be created")
)

// Sentinels returned by MessageStore implementations. The engine translates
// ErrArtifactNotFound into reconciliation plus ErrArtifactMissing.
var (
	// ErrArtifactNotFound reports that the addressed message does not exist.
	ErrArtifactNotFound = errors.New("suggestions: artifact not found")
	// ErrTransport reports a retryable transport failure. The engine never
	// retries on the caller's behalf to avoid duplicate artifacts.
	ErrTransport = errors.New("suggestions: transport failure")
)

// ServiceError carries a stable machine-readable code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the stable error code.
func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}
