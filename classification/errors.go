package classification

import (
	"errors"
	"fmt"
)

var (
	ErrShapeMismatch  = errors.New("input tensor shape mismatch")
	ErrInputMissing   = errors.New("model input not found")
	ErrOutputMissing  = errors.New("model output not found")
	ErrLabelMismatch  = errors.New("score count does not match label set")
	ErrUnknownVariant = errors.New("unknown model variant")
	ErrUnknownBackend = errors.New("unknown inference backend")
	ErrEmptyImage     = errors.New("image has no pixels")
)

// StageError records which pipeline stage failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StageOf returns the failing stage of err, or "" if err carries none.
func StageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

func stageErr(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}
