package domain

import (
	"errors"
	"fmt"
)

// Error kinds returned by Fetcher.Get. Every typed error below unwraps to one
// of these sentinels, so callers can branch with errors.Is.
var (
	ErrPathEscape         = errors.New("path escapes base directory")
	ErrProtocolNotAllowed = errors.New("protocol not allowed")
	ErrTransferFailed     = errors.New("transfer failed")
	ErrInterrupted        = errors.New("transfer interrupted")
	ErrVerificationFailed = errors.New("verification failed")
	ErrPromotion          = errors.New("promotion failed")

	// ErrTargetConflict marks the promotion sub-case where the target appeared
	// (or changed) while the staging file was being filled.
	ErrTargetConflict = errors.New("target exists with different content")

	ErrInvalidRequest    = errors.New("invalid request")
	ErrUnsupportedDigest = errors.New("unsupported digest algorithm")
	ErrInsufficientSpace = errors.New("insufficient space")
	ErrDuplicateTarget   = errors.New("duplicate target in batch")
)

// PathEscapeError reports a relative path that cannot be placed under the base
// directory.
type PathEscapeError struct {
	Base   string
	Path   string
	Reason string
}

func (e *PathEscapeError) Error() string {
	return fmt.Sprintf("%s: %q under %s: %s", ErrPathEscape, e.Path, e.Base, e.Reason)
}

// Unwrap returns ErrPathEscape
func (e *PathEscapeError) Unwrap() error {
	return ErrPathEscape
}

// NewPathEscapeError creates a new path escape error
func NewPathEscapeError(base, path, reason string) *PathEscapeError {
	return &PathEscapeError{Base: base, Path: path, Reason: reason}
}

// ProtocolError reports a URL whose scheme is outside the allowed set.
type ProtocolError struct {
	URL    string
	Scheme string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %q (%s)", ErrProtocolNotAllowed, e.Scheme, e.URL)
}

// Unwrap returns ErrProtocolNotAllowed
func (e *ProtocolError) Unwrap() error {
	return ErrProtocolNotAllowed
}

// TransferError is a classified failure of one transfer attempt.
// Transient errors are eligible for retry; all others are fatal.
type TransferError struct {
	URL       string
	Code      int
	Status    string
	Transient bool
	Err       error
}

func (e *TransferError) Error() string {
	msg := "transfer of " + e.URL
	if e.Code != 0 {
		msg += fmt.Sprintf(" [%d %s]", e.Code, e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both ErrTransferFailed and the underlying cause.
func (e *TransferError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTransferFailed}
	}
	return []error{ErrTransferFailed, e.Err}
}

// NewTransientError creates a retryable transfer error
func NewTransientError(url string, code int, status string, err error) *TransferError {
	return &TransferError{URL: url, Code: code, Status: status, Transient: true, Err: err}
}

// NewFatalError creates a non-retryable transfer error
func NewFatalError(url string, code int, status string, err error) *TransferError {
	return &TransferError{URL: url, Code: code, Status: status, Err: err}
}

// IsTransient returns true if the error is a transfer error worth retrying.
// Interruptions are never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrInterrupted) {
		return false
	}
	var te *TransferError
	return errors.As(err, &te) && te.Transient
}

// VerificationError reports the first criterion that failed.
type VerificationError struct {
	Path      string
	Criterion string
	Expected  string
	Actual    string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("%s: %s mismatch for %s: got %s, expected %s",
		ErrVerificationFailed, e.Criterion, e.Path, e.Actual, e.Expected)
}

// Unwrap returns ErrVerificationFailed
func (e *VerificationError) Unwrap() error {
	return ErrVerificationFailed
}

// PromotionError reports a failed rename of a verified staging file.
type PromotionError struct {
	Target   string
	Conflict bool
	Err      error
}

func (e *PromotionError) Error() string {
	if e.Conflict {
		return fmt.Sprintf("%s: %s: %v", ErrPromotion, e.Target, ErrTargetConflict)
	}
	return fmt.Sprintf("%s: %s: %v", ErrPromotion, e.Target, e.Err)
}

// Unwrap exposes ErrPromotion, the conflict marker and the cause.
func (e *PromotionError) Unwrap() []error {
	errs := []error{ErrPromotion}
	if e.Conflict {
		errs = append(errs, ErrTargetConflict)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
