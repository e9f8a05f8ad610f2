package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Process exit codes.
const (
	ExitSuccess      = 0 // run or scenarios passed
	ExitFailure      = 1 // unit failures, skipped run-time phase, failed scenarios
	ExitCommandError = 2 // bad flags or config, missing journal, unknown test
)

// Codes carried in JSON error envelopes.
const (
	ErrCodeGeneric     = "E_GENERIC"
	ErrCodeNotFound    = "E_NOT_FOUND"
	ErrCodeRunFailed   = "E_RUN_FAILED"
	ErrCodeTestFailed  = "E_TEST_FAILED"
	ErrCodeInvalidFile = "E_INVALID_FILE"
)

// ExitError is returned by a command to choose the process exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError returns an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError returns an ExitError around err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps a command error to a process exit code. Errors that are
// not ExitErrors count as failures.
func GetExitCode(err error) int {
	var ee *ExitError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &ee):
		return ee.Code
	default:
		return ExitFailure
	}
}

// Response is the envelope every JSON command output is wrapped in.
type Response struct {
	Status string         `json:"status"` // "ok" or "error"
	Data   any            `json:"data,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

// ResponseError describes a failed command in a Response.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// OutputFormatter writes command results in the selected --format.
type OutputFormatter struct {
	Format  string
	Writer  io.Writer
	Diag    io.Writer // verbose diagnostics; Writer when nil
	Verbose bool
}

func newFormatter(opts *RootOptions, out, diag io.Writer) *OutputFormatter {
	return &OutputFormatter{Format: opts.Format, Writer: out, Diag: diag, Verbose: opts.Verbose}
}

// JSON reports whether output is JSON.
func (f *OutputFormatter) JSON() bool { return f.Format == "json" }

// Success writes an ok envelope. Text-mode commands print their own output,
// so it is a no-op there.
func (f *OutputFormatter) Success(data any) error {
	if !f.JSON() {
		return nil
	}
	return f.write(Response{Status: "ok", Data: data})
}

// Error reports a failure. Details are shown in text mode only with
// --verbose.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.JSON() {
		return f.write(Response{
			Status: "error",
			Error:  &ResponseError{Code: code, Message: message, Details: details},
		})
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if details != nil && f.Verbose {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog prints a diagnostic line when --verbose is set. Diagnostics
// never go to Writer in JSON mode unless no Diag writer was given.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if f.Verbose {
		fmt.Fprintf(f.diag(), format+"\n", args...)
	}
}

func (f *OutputFormatter) diag() io.Writer {
	if f.Diag == nil {
		return f.Writer
	}
	return f.Diag
}

func (f *OutputFormatter) write(resp Response) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
