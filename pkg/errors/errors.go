// Package errors provides the error taxonomy for the scan orchestration core.
package errors

import (
	"errors"
	"fmt"
)

// Error is the base error type for all scan errors.
type Error struct {
	// Kind indicates the category of error
	Kind Kind

	// Op is the operation being performed (e.g., "artifact.FetchTree")
	Op string

	// Message is a human-readable description
	Message string

	// Err is the underlying error
	Err error
}

// Kind represents the kind/category of error.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindNotFound
	KindUpstream
	KindTimeout
	KindAnalyzer
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindNotFound:
		return "not_found"
	case KindUpstream:
		return "upstream"
	case KindTimeout:
		return "timeout"
	case KindAnalyzer:
		return "analyzer"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// UpstreamError represents an error returned by a remote source provider.
type UpstreamError struct {
	// Provider is the source provider name (e.g., "github", "gitlab")
	Provider string `json:"provider"`

	// StatusCode is the HTTP status code, when available
	StatusCode int `json:"status_code,omitempty"`

	// Message is the error message from the provider
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("[%s] %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Provider, e.Message)
}

// E constructs an Error from the given arguments.
// Arguments can be: Kind, string (Op or Message), error.
func E(args ...interface{}) error {
	e := &Error{}
	for _, arg := range args {
		switch a := arg.(type) {
		case Kind:
			e.Kind = a
		case string:
			if e.Op == "" {
				e.Op = a
			} else {
				e.Message = a
			}
		case error:
			e.Err = a
		}
	}
	return e
}

// New creates a new simple error.
func New(message string) error {
	return &Error{Message: message}
}

// Wrap wraps an error with additional context.
func Wrap(err error, op string) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// WrapWithMessage wraps an error with a message.
func WrapWithMessage(err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Message: message, Err: err}
}

// GetKind returns the Kind of the error, or KindUnknown.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsUpstreamError checks if err is an UpstreamError and returns it.
func IsUpstreamError(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// IsValidationError checks if the error is an invalid-input error.
func IsValidationError(err error) bool {
	return GetKind(err) == KindInvalidInput
}

// IsNotFoundError checks if the error is a not found error.
func IsNotFoundError(err error) bool {
	if GetKind(err) == KindNotFound {
		return true
	}
	if ue, ok := IsUpstreamError(err); ok {
		return ue.StatusCode == 404
	}
	return false
}

// IsUpstream checks if the error is an upstream provider error.
func IsUpstream(err error) bool {
	if GetKind(err) == KindUpstream {
		return true
	}
	_, ok := IsUpstreamError(err)
	return ok
}

// IsTimeoutError checks if the error is a timeout error.
func IsTimeoutError(err error) bool {
	return GetKind(err) == KindTimeout
}

// IsAnalyzerError checks if the error is a single-analyzer failure.
// Analyzer errors are absorbed by the dispatcher and never fail a scan.
func IsAnalyzerError(err error) bool {
	return GetKind(err) == KindAnalyzer
}

var (
	// ErrScanNotFound is returned when a scan id is unknown.
	ErrScanNotFound = &Error{Kind: KindNotFound, Message: "scan not found"}

	// ErrNoMatchingFiles is returned when a locator resolves to no analyzable files.
	ErrNoMatchingFiles = &Error{Kind: KindNotFound, Message: "no matching source files"}

	// ErrVotingTimeout marks a forced finalization of the voting phase.
	// It is a control-flow signal, not a scan failure.
	ErrVotingTimeout = &Error{Kind: KindTimeout, Message: "voting timeout elapsed"}
)
