package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")

	// ErrPrecondition aborts a whole job before any unit work starts.
	ErrPrecondition = errors.New("precondition failed")
	// ErrUnitTimeout and ErrUnitService are per-unit and never abort a job.
	ErrUnitTimeout = errors.New("inference call timed out")
	ErrUnitService = errors.New("inference service error")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// PreconditionError names the failed check and tells the operator how to fix it.
type PreconditionError struct {
	Check   string
	Message string
	Hint    string
}

func (e *PreconditionError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("precondition %s failed: %s (%s)", e.Check, e.Message, e.Hint)
	}
	return fmt.Sprintf("precondition %s failed: %s", e.Check, e.Message)
}

func (e *PreconditionError) Unwrap() error { return ErrPrecondition }

func NewPreconditionError(check, message, hint string) *PreconditionError {
	return &PreconditionError{Check: check, Message: message, Hint: hint}
}

// UnitTimeoutError reports an inference call that was cancelled at its deadline.
type UnitTimeoutError struct {
	Timeout time.Duration
	Cause   error
}

func (e *UnitTimeoutError) Error() string {
	return fmt.Sprintf("inference call timed out after %s: %v", e.Timeout, e.Cause)
}

func (e *UnitTimeoutError) Unwrap() []error { return []error{ErrUnitTimeout, e.Cause} }

func NewUnitTimeoutError(timeout time.Duration, cause error) *UnitTimeoutError {
	if cause == nil {
		cause = context.DeadlineExceeded
	}
	return &UnitTimeoutError{Timeout: timeout, Cause: cause}
}

// UnitServiceError reports a non-success response or a transport failure (Status 0).
type UnitServiceError struct {
	Status int
	Body   string
	Cause  error
}

func (e *UnitServiceError) Error() string {
	switch {
	case e.Status == 0:
		return fmt.Sprintf("inference service unreachable: %v", e.Cause)
	case e.Body != "":
		return fmt.Sprintf("inference service status %d: %s", e.Status, e.Body)
	default:
		return fmt.Sprintf("inference service status %d", e.Status)
	}
}

func (e *UnitServiceError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrUnitService}
	}
	return []error{ErrUnitService, e.Cause}
}

func NewUnitServiceError(statusCode int, body string, cause error) *UnitServiceError {
	return &UnitServiceError{Status: statusCode, Body: body, Cause: cause}
}

func IsPrecondition(err error) bool { return errors.Is(err, ErrPrecondition) }

// IsUnitFailure reports whether err is a per-unit failure the orchestrator absorbs.
func IsUnitFailure(err error) bool {
	return errors.Is(err, ErrUnitTimeout) || errors.Is(err, ErrUnitService)
}

// ToStatus maps pipeline errors onto gRPC status errors.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, ErrPrecondition):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ErrUnitTimeout), errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, ErrUnitService):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// gRPC error helpers
func InvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}

func NotFoundError(message string) error {
	return status.Error(codes.NotFound, message)
}

func InvalidArgumentErrorf(format string, args ...interface{}) error {
	return InvalidArgumentError(fmt.Sprintf(format, args...))
}
