package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptySchema is returned when the metadata discovery phase succeeds at
// the transport level but yields no schema text to ground later phases on.
var ErrEmptySchema = errors.New("engine: metadata phase returned empty schema")

// UnreachableError indicates the AI service could not be reached after the
// configured number of attempts (connection failures and timeouts).
type UnreachableError struct {
	Attempts int
	Err      error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("engine: upstream unreachable after %d attempts: %v", e.Attempts, e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// RemoteError indicates the AI service answered with a non-2xx status.
// These are never retried; the failure is the upstream's verdict, not a
// transport fault.
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("engine: upstream returned %d: %s", e.StatusCode, e.Body)
}

// FormatError indicates a 2xx response whose body could not be decoded as
// the expected JSON object.
type FormatError struct {
	Detail string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("engine: invalid upstream response: %s: %v", e.Detail, e.Err)
	}
	return fmt.Sprintf("engine: invalid upstream response: %s", e.Detail)
}

func (e *FormatError) Unwrap() error { return e.Err }

// InvalidModelError is returned before any network call when the requested
// model is not in the allow-list.
type InvalidModelError struct {
	Model     string
	Available []string
}

func (e *InvalidModelError) Error() string {
	return fmt.Sprintf("engine: invalid model %q, available models: %s",
		e.Model, strings.Join(e.Available, ", "))
}

// IsUnreachable returns true if the error is an UnreachableError.
func IsUnreachable(err error) bool {
	var e *UnreachableError
	return errors.As(err, &e)
}

// IsRemote returns true if the error is a RemoteError.
func IsRemote(err error) bool {
	var e *RemoteError
	return errors.As(err, &e)
}

// IsFormat returns true if the error is a FormatError.
func IsFormat(err error) bool {
	var e *FormatError
	return errors.As(err, &e)
}

// IsInvalidModel returns true if the error is an InvalidModelError.
func IsInvalidModel(err error) bool {
	var e *InvalidModelError
	return errors.As(err, &e)
}
