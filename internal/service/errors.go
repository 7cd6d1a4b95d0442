package service

import (
	"errors"
	"fmt"

	"blagajna/internal/fiscal"
)

var (
	ErrInvoiceNotFound = errors.New("invoice not found")

	// ErrNotReversible means only confirmed sales can be reversed.
	ErrNotReversible = errors.New("invoice cannot be reversed")

	// ErrAlreadyReversed means a storno of the invoice is confirmed or unresolved.
	ErrAlreadyReversed = errors.New("invoice has already been reversed")
)

// SubmissionError reports a failed pipeline run with the invoice it was about. EOR is
// set when the Authority confirmed the invoice but it could not be stored.
type SubmissionError struct {
	Identity  fiscal.InvoiceIdentity
	MessageID string
	EOR       string
	Err       error
}

func (e *SubmissionError) Error() string {
	if e.EOR != "" {
		return fmt.Sprintf("invoice %s (message %s, eor %s): %v", e.Identity, e.MessageID, e.EOR, e.Err)
	}
	return fmt.Sprintf("invoice %s (message %s): %v", e.Identity, e.MessageID, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// SequencingConflictError means the number was taken by someone else while the
// invoice was in flight. The Authority may still hold a confirmation for it.
type SequencingConflictError struct {
	Identity  fiscal.InvoiceIdentity
	MessageID string
	EOR       string
	Err       error
}

func (e *SequencingConflictError) Error() string {
	return fmt.Sprintf("invoice number %s already used: %v", e.Identity, e.Err)
}

func (e *SequencingConflictError) Unwrap() error {
	return e.Err
}
