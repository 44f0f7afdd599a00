package provider

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind tells the pipeline how a collaborator failure affects the
// channel it occurred in.
type ErrorKind string

const (
	// KindTransient failures (rate limits, 5xx, network) fail the item only.
	KindTransient ErrorKind = "transient"
	// KindPermanent failures (bad payloads, other 4xx) fail the item only.
	KindPermanent ErrorKind = "permanent"
	// KindAuth failures abort the remaining items of the channel.
	KindAuth ErrorKind = "auth"
	// KindConfiguration failures abort the remaining items of the channel.
	KindConfiguration ErrorKind = "configuration"
)

// AbortsChannel reports whether an error of this kind stops the channel.
func (k ErrorKind) AbortsChannel() bool {
	return k == KindAuth || k == KindConfiguration
}

// Error is the typed error returned by collaborators.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}

	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with a kind and operation name.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the ErrorKind of err. Untyped errors are permanent.
func KindOf(err error) ErrorKind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}

	return KindPermanent
}

// KindForStatus maps an HTTP status code to an ErrorKind.
func KindForStatus(code int) ErrorKind {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return KindAuth
	case code == http.StatusTooManyRequests, code >= 500:
		return KindTransient
	default:
		return KindPermanent
	}
}

// ErrNotConfigured is wrapped by configuration errors for a missing
// collaborator.
var ErrNotConfigured = errors.New("provider not configured")
