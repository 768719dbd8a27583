package mailgun

import (
	"errors"
	"fmt"
)

// ServiceName is reported on every APIError.
const ServiceName = "mailgun"

var (
	// ErrTransport matches an APIError raised before any response arrived.
	ErrTransport = errors.New("mailgun: request failed")

	// ErrStatus matches an APIError raised for a response status above 299.
	ErrStatus = errors.New("mailgun: unexpected response status")
)

// APIError is returned by Deliver for every failed send. StatusCode is zero
// when the request never completed; Reason then describes why.
type APIError struct {
	Service     string
	StatusCode  int
	Message     string // provider message parsed from a JSON error body
	Body        string // raw response body
	RequestBody []byte // the payload that was sent
	Reason      string
	Err         error
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s API request failed: %s", e.Service, e.Reason)
	}
	msg := e.Message
	if msg == "" {
		msg = e.Body
	}
	return fmt.Sprintf("%s API error (HTTP %d): %s", e.Service, e.StatusCode, msg)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func (e *APIError) Is(target error) bool {
	if e.StatusCode == 0 {
		return target == ErrTransport
	}
	return target == ErrStatus
}

// transportError wraps a failure that happened before a response was read.
func transportError(reason string, err error) *APIError {
	return &APIError{
		Service: ServiceName,
		Reason:  fmt.Sprintf("%s: %v", reason, err),
		Err:     err,
	}
}
