package contract

import (
	"errors"
	"fmt"
)

var (
	ErrConnection      = errors.New("backing system unreachable")
	ErrValidation      = errors.New("validation failed")
	ErrExecution       = errors.New("execution failed")
	ErrPlanner         = errors.New("planner decision failed")
	ErrSchemaViolation = errors.New("planner response violates schema")
	ErrExhausted       = errors.New("retry limit reached")
)

// ErrorKind classifies a worker failure.
type ErrorKind string

const (
	KindConnection ErrorKind = "connection"
	KindValidation ErrorKind = "validation"
	KindExecution  ErrorKind = "execution"
)

// WorkerError is the only error type a Worker is allowed to return.
// It unwraps to the matching sentinel so callers can use errors.Is.
type WorkerError struct {
	Kind    ErrorKind
	Worker  string
	Message string
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker=%s kind=%s: %s", e.Worker, e.Kind, e.Message)
}

func (e *WorkerError) Unwrap() error {
	switch e.Kind {
	case KindConnection:
		return ErrConnection
	case KindValidation:
		return ErrValidation
	default:
		return ErrExecution
	}
}

// AsWorkerError coerces any error crossing the worker boundary into a
// *WorkerError. Unknown errors become execution failures.
func AsWorkerError(worker string, err error) *WorkerError {
	if err == nil {
		return nil
	}
	var we *WorkerError
	if errors.As(err, &we) {
		return we
	}
	kind := KindExecution
	switch {
	case errors.Is(err, ErrConnection):
		kind = KindConnection
	case errors.Is(err, ErrValidation):
		kind = KindValidation
	}
	return &WorkerError{Kind: kind, Worker: worker, Message: err.Error()}
}
