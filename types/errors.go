package types

import (
	"errors"
	"fmt"
)

// ErrMalformedTransaction is returned when raw packet bytes cannot be decoded
// into a transaction.
var ErrMalformedTransaction = errors.New("malformed transaction")

// ConfigurationError is returned when pipeline construction parameters are
// invalid. It is fatal before any stage starts.
type ConfigurationError struct {
	Param  string
	Reason string
}

func (e ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Param, e.Reason)
}

// IsConfigurationError returns true if err is, or wraps, a ConfigurationError.
func IsConfigurationError(err error) bool {
	return errors.As(err, &ConfigurationError{})
}

// TransportError is returned when a socket or endpoint cannot be bound or its
// server cannot be spawned.
type TransportError struct {
	Transport string
	Addr      string
	Err       error
}

func (e TransportError) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("transport %s: %v", e.Transport, e.Err)
	}
	return fmt.Sprintf("transport %s (%s): %v", e.Transport, e.Addr, e.Err)
}

func (e TransportError) Unwrap() error { return e.Err }

// IsTransportError returns true if err is, or wraps, a TransportError.
func IsTransportError(err error) bool {
	return errors.As(err, &TransportError{})
}

// StageFailure records a stage loop that exited abnormally, including by
// panic. It is surfaced through the pipeline join.
type StageFailure struct {
	Stage string
	Err   error
}

func (e StageFailure) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e StageFailure) Unwrap() error { return e.Err }

// DiagnosticError is an error reported by a diagnostic component such as the
// banking tracer. It is logged and never fails shutdown.
type DiagnosticError struct {
	Source string
	Err    error
}

func (e DiagnosticError) Error() string {
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e DiagnosticError) Unwrap() error { return e.Err }
