package fetch

import (
	"errors"
	"fmt"
)

// ErrMultipleMembership is returned for a query with more than one membership
// filter; only one can be split into batches.
var ErrMultipleMembership = errors.New("query has more than one membership filter")

// TransportError reports a failure to obtain a response: network errors,
// timeouts and non-2xx statuses.
type TransportError struct {
	Collection Collection

	// StatusCode is the HTTP status, or 0 when no response was received.
	StatusCode int

	// Timeout is set when the caller-supplied deadline was exceeded.
	Timeout bool

	// Body holds the start of the error response, if any.
	Body string

	Err error
}

func (e *TransportError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("fetch %s: timed out: %v", e.Collection, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch %s: unexpected status %d: %s", e.Collection, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("fetch %s: %v", e.Collection, e.Err)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// MalformedResponseError reports a payload that is not a well-formed record
// list, or a record that violates the collection schema.
type MalformedResponseError struct {
	Collection Collection
	Reason     string
	Err        error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: malformed response: %s: %v", e.Collection, e.Reason, e.Err)
	}
	return fmt.Sprintf("fetch %s: malformed response: %s", e.Collection, e.Reason)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// IsTransport reports whether err is or wraps a *TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsMalformed reports whether err is or wraps a *MalformedResponseError.
func IsMalformed(err error) bool {
	var me *MalformedResponseError
	return errors.As(err, &me)
}
