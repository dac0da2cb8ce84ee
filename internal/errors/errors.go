// Package errors defines the business-rule error vocabulary shared by the
// services and the HTTP boundary. Rule violations are values of *ServiceError
// carrying a stable code; the boundary translates them into the response
// envelope instead of HTTP status codes.
package errors

import (
	"errors"
	"fmt"
)

// Code identifies a business-rule violation.
type Code string

const (
	CodeNotFound                 Code = "NOT_FOUND"
	CodeSelfApplicationForbidden Code = "SELF_APPLICATION_FORBIDDEN"
	CodeNotAvailable             Code = "NOT_AVAILABLE"
	CodeExpired                  Code = "EXPIRED"
	CodeVerificationRequired     Code = "VERIFICATION_REQUIRED"
	CodePlanMismatch             Code = "PLAN_MISMATCH"
	CodeSkillMismatch            Code = "SKILL_MISMATCH"
	CodeNoMatchingPortfolio      Code = "NO_MATCHING_PORTFOLIO"
	CodeLocationMismatch         Code = "LOCATION_MISMATCH"
	CodeMonthlyLimitExceeded     Code = "MONTHLY_LIMIT_EXCEEDED"
	CodeDuplicateSubmission      Code = "DUPLICATE_SUBMISSION"
	CodeOutstandingReview        Code = "OUTSTANDING_REVIEW_REQUIRED"
	CodeInvalidStateTransition   Code = "INVALID_STATE_TRANSITION"
	CodeAlreadyHasAchiever       Code = "ALREADY_HAS_ACHIEVER"
	CodeNotApplicant             Code = "NOT_APPLICANT"
	CodeDuplicateReview          Code = "DUPLICATE_REVIEW"
	CodeUnauthorized             Code = "UNAUTHORIZED"
	CodeValidation               Code = "VALIDATION"
	CodeInternal                 Code = "INTERNAL"
)

// ServiceError is a business-rule violation with a stable code and optional
// structured details.
type ServiceError struct {
	Code    Code
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Is reports code equality so callers can match with errors.Is against the
// sentinel constructors below.
func (e *ServiceError) Is(target error) bool {
	var se *ServiceError
	if errors.As(target, &se) {
		return e.Code == se.Code
	}
	return false
}

// WithDetails returns a copy of the error with an extra detail attached.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &ServiceError{Code: e.Code, Message: e.Message, Details: details, Err: e.Err}
}

// GetServiceError extracts a *ServiceError from err, or wraps err as an
// internal error when it carries no business code.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return Internal("unexpected error", err)
}

// IsCode reports whether err carries the given business code.
func IsCode(err error, code Code) bool {
	var se *ServiceError
	return errors.As(err, &se) && se.Code == code
}

func newError(code Code, message string) *ServiceError {
	return &ServiceError{Code: code, Message: message}
}

func NotFound(entity string) *ServiceError {
	return newError(CodeNotFound, entity+" not found")
}

func SelfApplicationForbidden() *ServiceError {
	return newError(CodeSelfApplicationForbidden, "you cannot apply to your own opportunity")
}

func NotAvailable() *ServiceError {
	return newError(CodeNotAvailable, "opportunity is no longer accepting applications")
}

func Expired() *ServiceError {
	return newError(CodeExpired, "opportunity deadline has passed")
}

func VerificationRequired() *ServiceError {
	return newError(CodeVerificationRequired, "opportunity requires a verified profile")
}

func PlanMismatch() *ServiceError {
	return newError(CodePlanMismatch, "your subscription plan is not eligible for this opportunity")
}

func SkillMismatch() *ServiceError {
	return newError(CodeSkillMismatch, "your skills or occupation do not match this opportunity")
}

func NoMatchingPortfolio() *ServiceError {
	return newError(CodeNoMatchingPortfolio, "no content in your portfolio matches this opportunity")
}

func LocationMismatch() *ServiceError {
	return newError(CodeLocationMismatch, "your location does not match this opportunity")
}

func MonthlyLimitExceeded(limit int) *ServiceError {
	return newError(CodeMonthlyLimitExceeded, "monthly application limit reached").
		WithDetails("limit", limit)
}

func DuplicateSubmission() *ServiceError {
	return newError(CodeDuplicateSubmission, "an identical opportunity was submitted moments ago")
}

func AlreadyApplied() *ServiceError {
	return newError(CodeDuplicateSubmission, "you have already applied to this opportunity")
}

func OutstandingReviewRequired() *ServiceError {
	return newError(CodeOutstandingReview, "submit the pending achiever review first")
}

func InvalidStateTransition(from, to string) *ServiceError {
	return newError(CodeInvalidStateTransition, "invalid status transition").
		WithDetails("from", from).WithDetails("to", to)
}

func AlreadyHasAchiever() *ServiceError {
	return newError(CodeAlreadyHasAchiever, "an achiever has already been selected")
}

func NotApplicant() *ServiceError {
	return newError(CodeNotApplicant, "user has not applied to this opportunity")
}

func DuplicateReview() *ServiceError {
	return newError(CodeDuplicateReview, "you have already reviewed this opportunity")
}

func Unauthorized(message string) *ServiceError {
	return newError(CodeUnauthorized, message)
}

func Validation(message string) *ServiceError {
	return newError(CodeValidation, message)
}

func Internal(message string, err error) *ServiceError {
	return &ServiceError{Code: CodeInternal, Message: message, Err: err}
}
