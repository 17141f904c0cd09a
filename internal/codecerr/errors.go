// Package codecerr defines the error taxonomy shared by the codec packages.
//
// Configuration and hardware I/O errors are recoverable: the failed operation
// leaves driver state untouched and the caller decides whether to retry.
// Protocol violations indicate a broken caller contract and are logged loudly.
// Resource exhaustion (a register address outside the chip's map) is never
// returned; it panics with an *Error payload.
package codecerr

import (
	"errors"
	"net/http"
)

// Kind classifies an Error.
type Kind string

const (
	Configuration      Kind = "configuration_error"
	Protocol           Kind = "protocol_violation"
	HardwareIO         Kind = "hardware_io_error"
	ResourceExhaustion Kind = "resource_exhaustion"
)

func (k Kind) Error() string { return string(k) }

// Error carries a Kind plus the operation and context that produced it.
type Error struct {
	Kind Kind   `json:"error"`
	Op   string `json:"op,omitempty"`
	Msg  string `json:"message"`
	Err  error  `json:"-"`
}

func (e *Error) Error() string {
	s := string(e.Kind)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, codecerr.Protocol) match on kind.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// Status maps the kind to an HTTP status for the control API.
func (e *Error) Status() int {
	switch e.Kind {
	case Configuration:
		return http.StatusBadRequest
	case Protocol:
		return http.StatusConflict
	case HardwareIO:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Config returns a Configuration error.
func Config(op, msg string) *Error {
	return &Error{Kind: Configuration, Op: op, Msg: msg}
}

// Violation returns a Protocol error.
func Violation(op, msg string) *Error {
	return &Error{Kind: Protocol, Op: op, Msg: msg}
}

// IO wraps a bus failure as a HardwareIO error. A nil err yields nil.
func IO(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	return &Error{Kind: HardwareIO, Op: op, Err: err}
}

// KindOf extracts the Kind of err, or "" when err is not a codec error.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}
