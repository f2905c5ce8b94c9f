package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a model transport failure.
type ErrorKind string

const (
	KindAuth          ErrorKind = "auth"
	KindRateLimit     ErrorKind = "rate_limit"
	KindContextLength ErrorKind = "context_length"
	KindNotFound      ErrorKind = "not_found"
	KindConnection    ErrorKind = "connection"
	KindUnknown       ErrorKind = "unknown"
)

// TransportError is a failure reported by the model client. Kind lets a
// worker decide whether to record and continue or abort.
type TransportError struct {
	Kind     ErrorKind
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("model %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("model %s (%s): %v", e.Kind, e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ErrModelUnavailable is returned when a provider backend answers with
// something other than a model response (proxy errors, outages).
type ErrModelUnavailable struct {
	Provider string
	Body     string
	Cause    error
}

func (e *ErrModelUnavailable) Error() string {
	switch {
	case e.Cause != nil:
		return fmt.Sprintf("%s unavailable: %v", e.Provider, e.Cause)
	case e.Body != "":
		return fmt.Sprintf("%s unavailable: %s", e.Provider, e.Body)
	}
	return e.Provider + " unavailable"
}

func (e *ErrModelUnavailable) Unwrap() error { return e.Cause }

// Classify converts a model client error into a *TransportError. Context
// cancellation and deadline errors are returned unchanged so callers can tell
// them apart from transport failures.
func Classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	var unavail *ErrModelUnavailable
	if errors.As(err, &unavail) {
		return &TransportError{Kind: KindConnection, Provider: provider, Err: err}
	}
	return &TransportError{Kind: kindOf(err), Provider: provider, Err: err}
}

// IsKind reports whether err is a TransportError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Kind == kind
}

func kindOf(err error) ErrorKind {
	errStr := strings.ToLower(err.Error())

	switch {
	case containsAny(errStr, "401", "403", "unauthorized", "invalid api key", "api key", "forbidden"):
		return KindAuth
	case containsAny(errStr, "429", "rate limit", "quota", "too many requests"):
		return KindRateLimit
	case containsAny(errStr, "context length", "too many tokens", "max tokens", "token limit"):
		return KindContextLength
	case containsAny(errStr, "model not found", "404", "not found"):
		return KindNotFound
	case containsAny(errStr, "connection", "eof", "timeout", "dial", "refused"):
		return KindConnection
	}
	return KindUnknown
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
