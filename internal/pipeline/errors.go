package pipeline

import (
	"errors"
	"fmt"

	"github.com/codewandler/relay/internal/models"
)

// ErrRolloutTimeout marks a rollout that did not converge before the
// configured deadline. It is a stage failure, not a controller error, so it
// takes the rollback path like any other post-apply failure.
var ErrRolloutTimeout = errors.New("rollout did not complete before deadline")

// StageError wraps a backend failure with the stage it occurred in and any
// captured backend output.
type StageError struct {
	Stage  models.Stage
	Output string
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// RollbackFailedError is returned when the undo call itself fails after a
// post-apply stage failure. Both errors are retained so neither is lost.
type RollbackFailedError struct {
	Cause   error
	UndoErr error
}

func (e *RollbackFailedError) Error() string {
	return fmt.Sprintf("rollback failed: %v (triggered by: %v)", e.UndoErr, e.Cause)
}

func (e *RollbackFailedError) Unwrap() error {
	return e.UndoErr
}
