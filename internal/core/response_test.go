package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"plotmarket/internal/types"
)

// --- JSON helper tests ---

func TestJSON_Success(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	data := APIResponse{Data: map[string]string{"status": "ok"}}
	JSON(w, r, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %q", ct)
	}

	var body APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	dataMap, ok := body.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("expected data to be a map, got %T", body.Data)
	}
	if dataMap["status"] != "ok" {
		t.Errorf("expected status=ok, got %v", dataMap["status"])
	}
}

func TestJSON_MarshalFailure(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := types.WithRequestID(r.Context(), "req-marshal-fail")
	r = r.WithContext(ctx)

	// Channels cannot be marshalled to JSON.
	unmarshalable := make(chan int)
	JSON(w, r, http.StatusOK, unmarshalable)

	resp := w.Result()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", resp.StatusCode)
	}

	var errResp APIErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		t.Fatalf("failed to decode fallback error: %v", err)
	}
	if errResp.Error.Code != string(types.ErrCodeInternalUnexpected) {
		t.Errorf("expected code %s, got %s", types.ErrCodeInternalUnexpected, errResp.Error.Code)
	}
	if errResp.Error.RequestID != "req-marshal-fail" {
		t.Errorf("expected request_id req-marshal-fail, got %s", errResp.Error.RequestID)
	}
}

// --- Error helper tests ---

func TestError_AppError(t *testing.T) {
	tests := []struct {
		code       types.ErrorCode
		wantStatus int
	}{
		{types.ErrCodeValidationInvalidTerm, http.StatusBadRequest},
		{types.ErrCodeAuthTokenInvalid, http.StatusUnauthorized},
		{types.ErrCodeNotFoundPlot, http.StatusNotFound},
		{types.ErrCodeConflictPlotActive, http.StatusConflict},
		{types.ErrCodeUpstreamStripe, http.StatusBadGateway},
		{types.ErrCodeInternalDB, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r = r.WithContext(types.WithRequestID(r.Context(), "req-1"))

			Error(w, r, types.NewAppError(tt.code, "boom", nil))

			resp := w.Result()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, resp.StatusCode)
			}

			var errResp APIErrorResponse
			if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
				t.Fatalf("failed to decode error response: %v", err)
			}
			if errResp.Error.Code != string(tt.code) {
				t.Errorf("expected code %s, got %s", tt.code, errResp.Error.Code)
			}
			if errResp.Error.RequestID != "req-1" {
				t.Errorf("expected request_id req-1, got %s", errResp.Error.RequestID)
			}
		})
	}
}

func TestError_WrappedAppError(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	inner := types.NewAppError(types.ErrCodeConflictPlotNotActive, "not active", nil)
	Error(w, r, fmt.Errorf("renewing plot: %w", inner))

	resp := w.Result()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected status 409 for wrapped AppError, got %d", resp.StatusCode)
	}
}

func TestError_GenericErrorIsOpaque(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	Error(w, r, errors.New("pq: relation plots does not exist"))

	resp := w.Result()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", resp.StatusCode)
	}

	var errResp APIErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if errResp.Error.Code != string(types.ErrCodeInternalUnexpected) {
		t.Errorf("expected code %s, got %s", types.ErrCodeInternalUnexpected, errResp.Error.Code)
	}
	// The raw database error text must not leak to the client.
	if strings.Contains(errResp.Error.Message, "relation") {
		t.Errorf("internal error detail leaked: %s", errResp.Error.Message)
	}
}

// --- DecodeJSON tests ---

type decodeTarget struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func decodeRequest(body string) (*decodeTarget, error) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	var dst decodeTarget
	err := DecodeJSON(w, r, &dst)
	return &dst, err
}

func TestDecodeJSON_Success(t *testing.T) {
	dst, err := decodeRequest(`{"name":"plot","count":3}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dst.Name != "plot" || dst.Count != 3 {
		t.Errorf("unexpected decode result: %+v", dst)
	}
}

func TestDecodeJSON_Failures(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"syntax error", `{"name": `},
		{"unknown field", `{"name":"x","bogus":true}`},
		{"wrong type", `{"count":"three"}`},
		{"empty body", ``},
		{"trailing value", `{"name":"x"}{"name":"y"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeRequest(tt.body)
			if err == nil {
				t.Fatal("expected an error")
			}
			var appErr *types.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("expected *types.AppError, got %T", err)
			}
			if appErr.Code != errCodeValidationInvalidJSON {
				t.Errorf("expected code %s, got %s", errCodeValidationInvalidJSON, appErr.Code)
			}
			if appErr.HTTPStatus() != http.StatusBadRequest {
				t.Errorf("expected 400 mapping, got %d", appErr.HTTPStatus())
			}
		})
	}
}
