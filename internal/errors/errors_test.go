package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestServiceErrorCodes(t *testing.T) {
	cases := []struct {
		err  *ServiceError
		code Code
	}{
		{NotFound("opportunity"), CodeNotFound},
		{SelfApplicationForbidden(), CodeSelfApplicationForbidden},
		{NotAvailable(), CodeNotAvailable},
		{Expired(), CodeExpired},
		{VerificationRequired(), CodeVerificationRequired},
		{PlanMismatch(), CodePlanMismatch},
		{SkillMismatch(), CodeSkillMismatch},
		{NoMatchingPortfolio(), CodeNoMatchingPortfolio},
		{LocationMismatch(), CodeLocationMismatch},
		{MonthlyLimitExceeded(10), CodeMonthlyLimitExceeded},
		{DuplicateSubmission(), CodeDuplicateSubmission},
		{AlreadyApplied(), CodeDuplicateSubmission},
		{OutstandingReviewRequired(), CodeOutstandingReview},
		{InvalidStateTransition("done", "available"), CodeInvalidStateTransition},
		{AlreadyHasAchiever(), CodeAlreadyHasAchiever},
		{NotApplicant(), CodeNotApplicant},
		{DuplicateReview(), CodeDuplicateReview},
		{Unauthorized("nope"), CodeUnauthorized},
		{Validation("bad"), CodeValidation},
	}
	for _, tc := range cases {
		if tc.err.Code != tc.code {
			t.Fatalf("%v: code = %s, want %s", tc.err, tc.err.Code, tc.code)
		}
		if !IsCode(tc.err, tc.code) {
			t.Fatalf("IsCode(%s) = false", tc.code)
		}
		if tc.err.Message == "" {
			t.Fatalf("%s has no message", tc.code)
		}
	}
}

func TestWrappingAndUnwrap(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Internal("store lookup failed", cause)

	if !stderrors.Is(err, cause) {
		t.Fatal("Internal should wrap its cause")
	}
	wrapped := fmt.Errorf("handler: %w", err)
	if !IsCode(wrapped, CodeInternal) {
		t.Fatal("IsCode should see through wrapping")
	}
	if got := GetServiceError(wrapped); got.Code != CodeInternal {
		t.Fatalf("GetServiceError code = %s", got.Code)
	}
}

func TestGetServiceErrorDefaultsToInternal(t *testing.T) {
	got := GetServiceError(stderrors.New("boom"))
	if got.Code != CodeInternal {
		t.Fatalf("plain errors should map to internal, got %s", got.Code)
	}
}

func TestWithDetails(t *testing.T) {
	err := MonthlyLimitExceeded(10).WithDetails("user_id", "u-1")
	if err.Details["limit"] != 10 {
		t.Fatalf("limit detail missing: %+v", err.Details)
	}
	if err.Details["user_id"] != "u-1" {
		t.Fatalf("added detail missing: %+v", err.Details)
	}
}
