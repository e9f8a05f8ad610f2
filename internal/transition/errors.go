package transition

import (
	"errors"
	"fmt"

	"github.com/roach88/selftest/internal/firmware"
)

// ErrorCode categorizes coordinator failures.
type ErrorCode string

const (
	// ErrCodeQueryFault indicates the memory map query returned something
	// other than the expected status.
	ErrCodeQueryFault ErrorCode = "QUERY_FAULT"

	// ErrCodeAllocFault indicates the snapshot buffer could not be allocated.
	ErrCodeAllocFault ErrorCode = "ALLOC_FAULT"

	// ErrCodeStaleKeyExhausted indicates every attempt lost the map key race.
	ErrCodeStaleKeyExhausted ErrorCode = "STALE_KEY_EXHAUSTED"

	// ErrCodeCommitFault indicates the transition primitive failed for a
	// reason other than a stale key. The environment state is unknown.
	ErrCodeCommitFault ErrorCode = "COMMIT_FAULT"

	// ErrCodeAlreadyTerminal indicates Run was called on a used coordinator.
	ErrCodeAlreadyTerminal ErrorCode = "ALREADY_TERMINAL"
)

// Error is the single typed failure the coordinator reports. Every Error
// leaves the coordinator in StateFatal, except ErrCodeAlreadyTerminal which
// leaves the state untouched.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Status is the firmware status that caused the failure, if any.
	Status firmware.Status

	// Attempt is the 1-based handshake attempt the failure happened in.
	Attempt int
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Attempt > 0 {
		return fmt.Sprintf("%s: %s (attempt=%d, status=%s)", e.Code, e.Message, e.Attempt, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code ErrorCode, attempt int, st firmware.Status, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Status:  st,
		Attempt: attempt,
	}
}

func hasCode(err error, code ErrorCode) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Code == code
	}
	return false
}

// IsQueryFault returns true if err is a memory map query failure.
// Uses errors.As to handle wrapped errors.
func IsQueryFault(err error) bool { return hasCode(err, ErrCodeQueryFault) }

// IsAllocFault returns true if err is a snapshot buffer allocation failure.
func IsAllocFault(err error) bool { return hasCode(err, ErrCodeAllocFault) }

// IsStaleKeyExhausted returns true if err reports an exhausted retry bound.
func IsStaleKeyExhausted(err error) bool { return hasCode(err, ErrCodeStaleKeyExhausted) }

// IsCommitFault returns true if err is a non-stale transition failure.
func IsCommitFault(err error) bool { return hasCode(err, ErrCodeCommitFault) }

// IsAlreadyTerminal returns true if err reports reuse of a coordinator.
func IsAlreadyTerminal(err error) bool { return hasCode(err, ErrCodeAlreadyTerminal) }

// ErrorCodeOf extracts the code of a coordinator error, or "" if err is
// not one.
func ErrorCodeOf(err error) ErrorCode {
	var te *Error
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}
