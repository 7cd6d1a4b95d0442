package authority

import (
	"errors"
	"fmt"
)

var (
	// ErrRejected means the Authority answered and refused the request.
	ErrRejected = errors.New("request rejected by authority")

	// ErrInvalidToken means a response token failed to parse or verify.
	ErrInvalidToken = errors.New("invalid response token")

	// ErrMissingConfirmation means a verified response carried no confirmation code.
	ErrMissingConfirmation = errors.New("response carries no confirmation code")

	// ErrEchoMismatch means the echo endpoint returned a different message.
	ErrEchoMismatch = errors.New("echo response does not match request")
)

// TransportError covers connection failures, TLS failures and non-2xx answers.
// StatusCode is zero when nothing reached the Authority. Retrying is up to the
// caller and needs a new message id.
type TransportError struct {
	Op         string
	URL        string
	StatusCode int
	Code       string // Authority error code from a rejection
	Body       string
	MessageID  string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("authority %s %s (message %s): status %d: %v", e.Op, e.URL, e.MessageID, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("authority %s %s (message %s): %v", e.Op, e.URL, e.MessageID, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Delivered reports whether the Authority received and answered the request.
func (e *TransportError) Delivered() bool {
	return e.StatusCode != 0
}

// VerificationError means the Authority's answer could not be trusted. No
// confirmation code is ever returned alongside it.
type VerificationError struct {
	Op        string
	MessageID string
	Err       error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("authority %s (message %s): verification failed: %v", e.Op, e.MessageID, e.Err)
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}

// AmbiguousOutcomeError is returned when the request was written but no answer was
// read, so the Authority may or may not have accepted it. Callers reconcile instead
// of retrying.
type AmbiguousOutcomeError struct {
	Op        string
	URL       string
	MessageID string
	Err       error
}

func (e *AmbiguousOutcomeError) Error() string {
	return fmt.Sprintf("authority %s %s (message %s): outcome unknown: %v", e.Op, e.URL, e.MessageID, e.Err)
}

func (e *AmbiguousOutcomeError) Unwrap() error {
	return e.Err
}
