package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidationMissingField, http.StatusBadRequest},
		{ErrCodeValidationInvalidTerm, http.StatusBadRequest},
		{ErrCodeAuthTokenMissing, http.StatusUnauthorized},
		{ErrCodeAuthSignatureInvalid, http.StatusUnauthorized},
		{ErrCodeNotFoundPlot, http.StatusNotFound},
		{ErrCodeConflictPlotActive, http.StatusConflict},
		{ErrCodeConflictPlotNotActive, http.StatusConflict},
		{ErrCodeDuplicateEvent, http.StatusOK},
		{ErrCodeUpstreamStripe, http.StatusBadGateway},
		{ErrCodeUpstreamRateLimit, http.StatusBadGateway},
		{ErrCodeInternalDB, http.StatusInternalServerError},
		{ErrorCode("something_new_entirely"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestAppError_ErrorAndUnwrap(t *testing.T) {
	inner := errors.New("connection reset")
	appErr := NewAppError(ErrCodeInternalDB, "query failed", inner)

	if appErr.Error() != "internal_database_error: query failed" {
		t.Errorf("unexpected error string: %s", appErr.Error())
	}
	if !errors.Is(appErr, inner) {
		t.Error("expected Unwrap to expose the inner error")
	}
}

func TestIsCode(t *testing.T) {
	appErr := NewAppError(ErrCodeConflictPlotActive, "taken", nil)

	if !IsCode(appErr, ErrCodeConflictPlotActive) {
		t.Error("expected a direct match")
	}
	if IsCode(appErr, ErrCodeConflictPlotNotActive) {
		t.Error("expected no match for a different code")
	}

	wrapped := fmt.Errorf("creating rental: %w", appErr)
	if !IsCode(wrapped, ErrCodeConflictPlotActive) {
		t.Error("expected a match through fmt.Errorf wrapping")
	}

	if IsCode(nil, ErrCodeConflictPlotActive) {
		t.Error("expected nil to match nothing")
	}
	if IsCode(errors.New("plain"), ErrCodeConflictPlotActive) {
		t.Error("expected a plain error to match nothing")
	}
}

func TestSecretString_Redaction(t *testing.T) {
	s := SecretString("sk_live_super_secret")

	if fmt.Sprintf("%v", s) != "[REDACTED]" {
		t.Errorf("expected fmt redaction, got %v", s)
	}
	if s.Reveal() != "sk_live_super_secret" {
		t.Error("expected Reveal to return the raw value")
	}

	b, err := s.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(b) != `"[REDACTED]"` {
		t.Errorf("expected JSON redaction, got %s", b)
	}
}

func TestPlotRecord_ActiveAt(t *testing.T) {
	rec := &PlotRecord{RentalEndDate: mustTime("2026-06-01T00:00:00Z")}

	if !rec.ActiveAt(mustTime("2026-05-31T23:59:59Z")) {
		t.Error("expected active just before the end date")
	}
	if rec.ActiveAt(mustTime("2026-06-01T00:00:00Z")) {
		t.Error("expected expired exactly at the end date")
	}
	if rec.ActiveAt(mustTime("2026-06-02T00:00:00Z")) {
		t.Error("expected expired after the end date")
	}
}

func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}
