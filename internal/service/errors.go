package service

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/noah-isme/eduportal-api/internal/policy"
)

// Error kinds. Every error returned by a service matches exactly one of them via errors.Is.
var (
	ErrValidation       = errors.New("validation failed")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrUnexpected       = errors.New("unexpected error")
)

// DomainError is a business-rule failure with a caller-facing reason.
type DomainError struct {
	Kind   error
	Reason string
}

func (e *DomainError) Error() string { return e.Reason }

// Unwrap exposes the kind so callers can branch on it.
func (e *DomainError) Unwrap() error { return e.Kind }

func newDomainError(kind error, reason string) *DomainError {
	return &DomainError{Kind: kind, Reason: reason}
}

func validationError(format string, args ...interface{}) error {
	return newDomainError(ErrValidation, fmt.Sprintf(format, args...))
}

func conflictError(format string, args ...interface{}) error {
	return newDomainError(ErrConflict, fmt.Sprintf(format, args...))
}

func permissionError(reason string) error {
	return newDomainError(ErrPermissionDenied, reason)
}

// Named business errors.
var (
	ErrInvalidCredentials      = newDomainError(ErrValidation, "invalid username or password")
	ErrAccountInactive         = newDomainError(ErrPermissionDenied, "account is inactive")
	ErrInvalidToken            = newDomainError(ErrValidation, "invalid or expired token")
	ErrUserNotFound            = newDomainError(ErrNotFound, "user not found")
	ErrUserExists              = newDomainError(ErrConflict, "username or email already registered")
	ErrCourseNotFound          = newDomainError(ErrNotFound, "course not found")
	ErrCourseInactive          = newDomainError(ErrConflict, "course is not accepting enrollments")
	ErrWeekNotFound            = newDomainError(ErrNotFound, "weekly detail not found")
	ErrWeekExists              = newDomainError(ErrConflict, "weekly detail already exists for this week")
	ErrCapacityExceeded        = newDomainError(ErrConflict, "course has reached maximum capacity")
	ErrCapacityBelowActive     = newDomainError(ErrConflict, "max_students cannot be lower than the active enrollment count")
	ErrAlreadyEnrolled         = newDomainError(ErrConflict, "student is already enrolled in this course")
	ErrNotEnrolled             = newDomainError(ErrNotFound, "active enrollment not found")
	ErrMaterialNotFound        = newDomainError(ErrNotFound, "study material not found")
	ErrExamNotFound            = newDomainError(ErrNotFound, "exam not found")
	ErrQuestionNotFound        = newDomainError(ErrNotFound, "question not found")
	ErrExamHasAttempts         = newDomainError(ErrConflict, "exam already has attempts and its question bank is locked")
	ErrExamNotAvailable        = newDomainError(ErrConflict, "exam is not open for attempts")
	ErrDuplicateAttempt        = newDomainError(ErrConflict, "an attempt is already in progress for this exam")
	ErrAttemptLimitReached     = newDomainError(ErrConflict, "maximum number of attempts reached")
	ErrAttemptNotFound         = newDomainError(ErrNotFound, "exam attempt not found")
	ErrAttemptAlreadySubmitted = newDomainError(ErrConflict, "attempt has already been submitted")
	ErrSubmissionWindowClosed  = newDomainError(ErrConflict, "submission window has closed")
	ErrAnswerNotFound          = newDomainError(ErrNotFound, "answer not found")
	ErrAnswerNotGradable       = newDomainError(ErrConflict, "answer is graded automatically")
	ErrTransactionNotFound     = newDomainError(ErrNotFound, "transaction not found")
	ErrInvalidTransition       = newDomainError(ErrConflict, "payment status transition not allowed")
	ErrSalaryNotFound          = newDomainError(ErrNotFound, "salary record not found")
	ErrSalaryExists            = newDomainError(ErrConflict, "salary record already exists for this month")
	ErrAlreadyPaid             = newDomainError(ErrConflict, "salary has already been paid")
	ErrSuggestionsDisabled     = newDomainError(ErrConflict, "grading suggestions are not configured")
)

// authorize converts a policy denial into a permission error.
func authorize(decision policy.Decision) error {
	if decision.Allowed {
		return nil
	}
	return permissionError(decision.Reason)
}

// translateNotFound maps a missing row to the given domain error and leaves anything else untouched.
func translateNotFound(err error, notFound error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	return err
}

// validate runs struct validation and wraps failures in the validation kind.
func validate(v *validator.Validate, payload interface{}) error {
	if err := v.Struct(payload); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return &FieldError{Fields: validationErrors}
		}
		return validationError("%s", err.Error())
	}
	return nil
}

// FieldError wraps struct validation failures.
type FieldError struct {
	Fields validator.ValidationErrors
}

func (e *FieldError) Error() string { return e.Fields.Error() }

// Unwrap matches both the validation kind and the underlying validator errors.
func (e *FieldError) Unwrap() []error { return []error{ErrValidation, e.Fields} }

// Details lists the failing fields and rules.
func (e *FieldError) Details() map[string]string {
	details := make(map[string]string, len(e.Fields))
	for _, field := range e.Fields {
		details[field.Field()] = field.Tag()
	}
	return details
}

// unexpected tags an infrastructure failure while keeping the cause inspectable.
func unexpected(op string, err error) error {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) || errors.Is(err, ErrValidation) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnexpected, err)
}
