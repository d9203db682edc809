package speech

import (
	"errors"
	"fmt"
)

// Step names one phase of the four-step recognition protocol.
type Step string

const (
	StepUpload Step = "upload"
	StepSubmit Step = "submit"
	StepPoll   Step = "poll"
	StepFetch  Step = "fetch"
)

// ErrPollTimeout is wrapped into a StepError when a recognition task does not
// reach a terminal state within the polling budget.
var ErrPollTimeout = errors.New("recognition task did not finish before deadline")

// ValidationError reports an encoding/channel/sample-rate combination rejected
// before any network call.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationErrorf(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// AuthError reports a failed token issuance. Immediately fatal for the
// current recognition run.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return "authentication failed: " + e.Err.Error()
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// StepError wraps a transport failure or non-success response from one
// protocol step of one backend.
type StepError struct {
	Backend string
	Step    Step
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func stepErrorf(backend string, step Step, format string, args ...interface{}) *StepError {
	return &StepError{Backend: backend, Step: step, Err: fmt.Errorf(format, args...)}
}
