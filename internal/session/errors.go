package session

import (
	"errors"
	"fmt"
)

var (
	ErrNotInProgress      = errors.New("session is not in progress")
	ErrSubmissionInFlight = errors.New("submission already in progress")
	ErrAlreadySubmitted   = errors.New("session already submitted")
	ErrUnknownQuestion    = errors.New("question does not belong to this assignment")
	ErrBlocked            = errors.New("session blocked by eligibility policy")
	ErrSessionClosed      = errors.New("session closed")
	ErrAlreadyStarted     = errors.New("session already started")
)

// ErrorKind classifies failures for user-facing messaging.
type ErrorKind string

const (
	KindSubmitTransport ErrorKind = "SUBMIT_TRANSPORT_ERROR"
	KindSubmitConflict  ErrorKind = "SUBMIT_CONFLICT"
	KindEvaluation      ErrorKind = "EVALUATION_ERROR"
)

// SubmitError wraps a failure of an external collaborator during SUBMITTING.
type SubmitError struct {
	Kind      ErrorKind
	Retryable bool
	Err       error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a submission failure the learner can retry.
func IsRetryable(err error) bool {
	var se *SubmitError
	return errors.As(err, &se) && se.Retryable
}
