package pipeline

import (
	"errors"
	"fmt"

	"github.com/apresai/pdfcast/internal/artifact"
	"github.com/apresai/pdfcast/internal/progress"
)

var (
	// ErrPrecondition is returned when a stage's input artifact is missing.
	// The collaborator is not called.
	ErrPrecondition = errors.New("required input from the previous stage is missing")

	// ErrBusy is returned when an operation is triggered while another is
	// still in flight.
	ErrBusy = errors.New("another operation is in progress")

	// ErrSuperseded is returned by an operation whose pipeline was reset while
	// it was in flight. Its result was discarded.
	ErrSuperseded = errors.New("pipeline was reset while the operation was in flight")

	// ErrWrongStage is returned by document selection outside the select stage.
	ErrWrongStage = errors.New("operation not available in the current stage")

	// errEmptyResult marks a collaborator answer that carried no artifact.
	errEmptyResult = errors.New("collaborator returned no result")
)

// StageError is a failed stage operation. Message is what the user is shown.
type StageError struct {
	Stage   progress.Stage
	Message string
	Err     error
}

func (e *StageError) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return fmt.Sprintf("[%s] %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Stage, e.Message)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// describe picks the user-visible text for a collaborator failure.
func describe(err error, fallback string) string {
	if msg, ok := artifact.UserMessage(err); ok {
		if msg != "" {
			return msg
		}
		return fallback
	}
	if err == nil || errors.Is(err, errEmptyResult) || err.Error() == "" {
		return fallback
	}
	return err.Error()
}
