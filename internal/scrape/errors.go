package scrape

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrPermanent marks failures that a retry cannot fix: bad source
	// configuration, a board that no longer exists, missing capabilities.
	ErrPermanent = errors.New("permanent source failure")

	// ErrUnsupported is returned when the runtime lacks something a source
	// needs, such as a Chrome binary.
	ErrUnsupported = fmt.Errorf("unsupported: %w", ErrPermanent)

	ErrUnknownSource = fmt.Errorf("unknown source: %w", ErrPermanent)
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

func (e *permanentError) Is(target error) bool { return target == ErrPermanent }

// Permanent marks err as not worth retrying. A nil err stays nil.
func Permanent(err error) error {
	if err == nil || IsPermanent(err) {
		return err
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err, or anything it wraps, is permanent.
// Everything else is treated as transient.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

// SourceError represents a failed request made by a source.
type SourceError struct {
	Source string
	Op     string
	Status int
	Cause  error
}

func (e *SourceError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Source, e.Op)
	if e.Status != 0 {
		msg += fmt.Sprintf(": status %d", e.Status)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *SourceError) Unwrap() error {
	return e.Cause
}

// CheckStatus turns an HTTP status into an error. Rate limiting, request
// timeouts and 5xx are transient; any other 4xx is permanent.
func CheckStatus(source, op string, code int) error {
	if code < 400 {
		return nil
	}
	err := &SourceError{Source: source, Op: op, Status: code}
	switch {
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout, code >= 500:
		return err
	}
	return Permanent(err)
}
