package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyQuery is returned by Run for a blank query.
	ErrEmptyQuery = errors.New("query is empty")

	// ErrNoSubtasks is the cause when decomposition yields an empty list.
	ErrNoSubtasks = errors.New("empty subtask list")

	// ErrAllResearchFailed is the cause when every research subtask degraded.
	ErrAllResearchFailed = errors.New("all research subtasks failed")
)

// StageError is a fatal stage failure. Err holds the underlying
// extract, schema or llm error; Raw is the model text when one was received.
type StageError struct {
	Stage  Stage
	Reason string
	Raw    string
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %s", e.Stage, e.Reason)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageError(stage Stage, raw string, err error) *StageError {
	return &StageError{Stage: stage, Reason: err.Error(), Raw: raw, Err: err}
}
