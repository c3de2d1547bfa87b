package errors_test

import (
	stderrors "errors"
	"testing"

	appErr "intervue/pkg/errors"
)

func TestNewCarriesCodeAndDefaultMessage(t *testing.T) {
	t.Parallel()
	err := appErr.New(appErr.SessionNotFound)
	if appErr.GetCode(err) != appErr.SessionNotFound {
		t.Fatalf("unexpected code %d", appErr.GetCode(err))
	}
	if err.Message != appErr.SessionNotFound.Message() {
		t.Fatalf("expected default message, got %q", err.Message)
	}
}

func TestWithMessageOverridesDefault(t *testing.T) {
	t.Parallel()
	err := appErr.New(appErr.InvalidParams).WithMessage("session id is required")
	if err.Message != "session id is required" {
		t.Fatalf("unexpected message %q", err.Message)
	}
	if appErr.GetCode(err) != appErr.InvalidParams {
		t.Fatalf("code must survive WithMessage, got %d", appErr.GetCode(err))
	}
}

func TestWrapPreservesCause(t *testing.T) {
	t.Parallel()
	cause := stderrors.New("connection refused")
	err := appErr.Wrapf(cause, appErr.DatabaseError, "failed to load session")

	if appErr.GetCode(err) != appErr.DatabaseError {
		t.Fatalf("unexpected code %d", appErr.GetCode(err))
	}
	if !stderrors.Is(err, cause) {
		t.Fatal("wrapped cause must be reachable via errors.Is")
	}
}

func TestGetCodeOnForeignError(t *testing.T) {
	t.Parallel()
	if code := appErr.GetCode(stderrors.New("plain")); code != appErr.InternalServerError {
		t.Fatalf("foreign errors map to InternalServerError, got %d", code)
	}
	if code := appErr.GetCode(nil); code != appErr.Success {
		t.Fatalf("nil maps to Success, got %d", code)
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	t.Parallel()
	tests := []struct {
		code appErr.ErrorCode
		want int
	}{
		{appErr.Success, 200},
		{appErr.InvalidParams, 400},
		{appErr.TokenInvalid, 401},
		{appErr.InsufficientCredits, 402},
		{appErr.SessionAccessDenied, 403},
		{appErr.SessionNotFound, 404},
		{appErr.QuestionNotFound, 404},
		{appErr.RunNotFound, 404},
		{appErr.SessionAlreadyOver, 409},
		{appErr.CreationTokenExpired, 410},
		{appErr.CreationTokenMissing, 410},
		{appErr.JudgeUnavailable, 502},
		{appErr.EvaluationFailed, 502},
		{appErr.PollTimeout, 504},
		{appErr.DatabaseError, 500},
	}
	for _, tt := range tests {
		if got := tt.code.HTTPStatus(); got != tt.want {
			t.Errorf("code %d: expected status %d, got %d", tt.code, tt.want, got)
		}
	}
}

func TestWithDetailAccumulates(t *testing.T) {
	t.Parallel()
	err := appErr.New(appErr.JudgeUnavailable).
		WithDetail("body", "queue full").
		WithDetail("attempt", 3)
	if err.Details["body"] != "queue full" {
		t.Fatalf("missing detail: %+v", err.Details)
	}
	if err.Details["attempt"] != 3 {
		t.Fatalf("missing detail: %+v", err.Details)
	}
}
