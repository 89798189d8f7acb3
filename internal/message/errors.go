package message

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest marks a send request that cannot be satisfied, e.g. a template send without a name.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrMalformedPayload marks a webhook delivery that is structurally unparseable.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrInvalidMessageFormat marks a parseable webhook event missing its identity fields.
	ErrInvalidMessageFormat = errors.New("invalid message format")
)

// TransportError is a failed call to a channel API. Status and Body are set
// when the upstream answered; Err is set for network failures and timeouts.
type TransportError struct {
	Method string
	Path   string
	Status int
	Body   string
	Err    error
}

func (e *TransportError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("channel api %s %s: status %d: %v", e.Method, e.Path, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("channel api %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
	default:
		return fmt.Sprintf("channel api %s %s: %v", e.Method, e.Path, e.Err)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// StoreError is a persistence failure. For sends it is returned after the
// message already left, so the caller must not resend.
type StoreError struct {
	Channel Channel
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("persist %s message: %v", e.Channel, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func invalidf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

// InvalidRequestf wraps ErrInvalidRequest with detail.
func InvalidRequestf(format string, args ...any) error {
	return invalidf(ErrInvalidRequest, format, args...)
}

// MalformedPayloadf wraps ErrMalformedPayload with detail.
func MalformedPayloadf(format string, args ...any) error {
	return invalidf(ErrMalformedPayload, format, args...)
}

// InvalidMessageFormatf wraps ErrInvalidMessageFormat with detail.
func InvalidMessageFormatf(format string, args ...any) error {
	return invalidf(ErrInvalidMessageFormat, format, args...)
}
