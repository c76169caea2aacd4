package domain

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	ErrUnknownServiceType = errors.New("unknown service type")
	ErrMissingProjectName = errors.New("project name is required")
	ErrMissingServiceName = errors.New("service name is required")
	ErrDuplicateService   = errors.New("service is listed more than once")
	ErrInvalidPort        = errors.New("port must be between 1 and 65535")
	ErrInvalidStrategy    = errors.New("unknown strategy")
	ErrInvalidMode        = errors.New("mode must be auto or skip")
	ErrNoFreePort         = errors.New("no free port found")
)

// PlanError wraps a planning failure with the service it concerns.
type PlanError struct {
	Service string
	Message string
	Err     error
}

func (e *PlanError) Error() string {
	if e.Service != "" {
		return fmt.Sprintf("plan %s: %s", e.Service, e.Message)
	}
	return fmt.Sprintf("plan: %s", e.Message)
}

func (e *PlanError) Unwrap() error {
	return e.Err
}

// NewPlanError creates a new PlanError.
func NewPlanError(service, message string, err error) *PlanError {
	return &PlanError{Service: service, Message: message, Err: err}
}
