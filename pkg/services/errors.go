// Package services implements the flow operations exposed to operators:
// flow and graph CRUD, lifecycle changes and execution inspection.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/chatflow/pkg/models"
)

// Business logic errors. They map to 4xx responses.
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrFlowNil        = errors.New("flow cannot be nil")
	ErrNameRequired   = errors.New("flow name is required")
	ErrOrgRequired    = errors.New("organization is required")

	// ErrFlowActive rejects changes that need the flow out of service first.
	ErrFlowActive = errors.New("flow is active")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError reports errors answered with 400. Graph and config
// problems are reported separately with their problem list.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrFlowNil) ||
		errors.Is(err, ErrNameRequired) ||
		errors.Is(err, ErrOrgRequired)
}

// IsConflictError reports errors answered with 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrFlowActive) ||
		errors.Is(err, models.ErrFlowNotActive) ||
		errors.Is(err, models.ErrExecutionFinished) ||
		errors.Is(err, models.ErrDuplicateTrigger) ||
		errors.Is(err, models.ErrStorageConflict)
}

func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
