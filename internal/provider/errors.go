package provider

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnavailable matches failures where the backend could not be reached,
	// rejected credentials, or was rate limited.
	ErrUnavailable = errors.New("provider unavailable")
	// ErrProvider matches failures where the backend answered with something
	// unusable.
	ErrProvider = errors.New("provider error")
)

// Error describes a failed provider operation.
type Error struct {
	Provider string
	Op       string
	Kind     error
	Err      error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v: %v", e.Provider, e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e == nil {
		return nil
	}
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Unavailable wraps err as an ErrUnavailable failure.
func Unavailable(name, op string, err error) error {
	return &Error{Provider: name, Op: op, Kind: ErrUnavailable, Err: err}
}

// Failed wraps err as an ErrProvider failure.
func Failed(name, op string, err error) error {
	return &Error{Provider: name, Op: op, Kind: ErrProvider, Err: err}
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// Classify maps a transport error onto the provider taxonomy. Timeouts,
// auth failures, rate limits and 5xx are unavailability; other statuses are
// provider errors.
func Classify(name, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnavailable) || errors.Is(err, ErrProvider) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Unavailable(name, op, err)
	}
	var sc httpStatusCoder
	if errors.As(err, &sc) {
		switch code := sc.HTTPStatusCode(); {
		case code == 401, code == 403, code == 408, code == 429, code >= 500:
			return Unavailable(name, op, err)
		default:
			return Failed(name, op, err)
		}
	}
	return Unavailable(name, op, err)
}
