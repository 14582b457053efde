package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an alert, transaction or config is missing.
	ErrNotFound = errors.New("not found")

	// ErrValidation marks malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrDependency marks a failure in history, persistence or another
	// collaborator the engine cannot score without.
	ErrDependency = errors.New("dependency unavailable")
)

// DependencyError records which operation failed against a collaborator.
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrDependency) match any DependencyError.
func (e *DependencyError) Is(target error) bool {
	return target == ErrDependency
}

// NewDependencyError wraps err unless it is nil or already a DependencyError.
func NewDependencyError(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *DependencyError
	if errors.As(err, &de) {
		return err
	}
	return &DependencyError{Op: op, Err: err}
}
