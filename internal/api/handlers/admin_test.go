package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"plotmarket/internal/config"
	"plotmarket/internal/types"
)

// ---------------------------------------------------------------------------
// Mock Implementations
// ---------------------------------------------------------------------------

// mockRentalService implements AdminRentalService for testing.
type mockRentalService struct {
	createCalls []adminCreateCall
	renewCalls  []adminRenewCall
	resetCalls  int
	createErr   error
	renewErr    error
	resetErr    error
}

type adminCreateCall struct {
	ID    int
	Owner string
	Email string
	Term  types.RentalTerm
	Now   time.Time
}

type adminRenewCall struct {
	ID   int
	Term types.RentalTerm
	Now  time.Time
}

func (m *mockRentalService) Create(ctx context.Context, id int, owner, email string, term types.RentalTerm, now time.Time) (*types.PlotRecord, error) {
	m.createCalls = append(m.createCalls, adminCreateCall{ID: id, Owner: owner, Email: email, Term: term, Now: now})
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &types.PlotRecord{
		ID:            id,
		SoldTo:        owner,
		UserEmail:     email,
		RentalTerm:    term,
		SoldAt:        now,
		RentalEndDate: now.Add(30 * 24 * time.Hour),
	}, nil
}

func (m *mockRentalService) Renew(ctx context.Context, id int, term types.RentalTerm, now time.Time) (*types.PlotRecord, error) {
	m.renewCalls = append(m.renewCalls, adminRenewCall{ID: id, Term: term, Now: now})
	if m.renewErr != nil {
		return nil, m.renewErr
	}
	return &types.PlotRecord{ID: id, RentalTerm: term, RentalEndDate: now.Add(60 * 24 * time.Hour)}, nil
}

func (m *mockRentalService) Reset(ctx context.Context) error {
	m.resetCalls++
	return m.resetErr
}

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

const testAdminToken = "test-admin-token"

func newAdminRouter(svc *mockRentalService) chi.Router {
	h := NewAdminHandler(svc, config.RegistryConfig{MaxPlots: 48}, types.SecretString(testAdminToken), nil)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func doAdminRequest(r chi.Router, method, path, body, token string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

// ---------------------------------------------------------------------------
// Tests: Auth
// ---------------------------------------------------------------------------

func TestAdminHandler_MissingToken(t *testing.T) {
	svc := &mockRentalService{}
	r := newAdminRouter(svc)

	rr := doAdminRequest(r, http.MethodPost, "/admin/plots/1/sell",
		`{"owner":"0xabc","term":"monthly"}`, "")

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}
	if len(svc.createCalls) != 0 {
		t.Errorf("expected 0 Create calls without auth, got %d", len(svc.createCalls))
	}
}

func TestAdminHandler_WrongToken(t *testing.T) {
	svc := &mockRentalService{}
	r := newAdminRouter(svc)

	rr := doAdminRequest(r, http.MethodPost, "/admin/reset", "", "not-the-token")

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}
	if svc.resetCalls != 0 {
		t.Errorf("expected 0 Reset calls with wrong token, got %d", svc.resetCalls)
	}
}

// ---------------------------------------------------------------------------
// Tests: Sell
// ---------------------------------------------------------------------------

func TestAdminHandler_Sell(t *testing.T) {
	svc := &mockRentalService{}
	r := newAdminRouter(svc)

	rr := doAdminRequest(r, http.MethodPost, "/admin/plots/7/sell",
		`{"owner":"0xabc","email":"buyer@example.com","term":"quarterly"}`, testAdminToken)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d; body: %s", http.StatusCreated, rr.Code, rr.Body.String())
	}

	if len(svc.createCalls) != 1 {
		t.Fatalf("expected 1 Create call, got %d", len(svc.createCalls))
	}
	call := svc.createCalls[0]
	if call.ID != 7 || call.Owner != "0xabc" || call.Term != types.TermQuarterly {
		t.Errorf("unexpected Create call: %+v", call)
	}

	var resp struct {
		Data types.PlotRecord `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Data.ID != 7 || resp.Data.SoldTo != "0xabc" {
		t.Errorf("unexpected record in response: %+v", resp.Data)
	}
}

func TestAdminHandler_Sell_MissingOwner(t *testing.T) {
	svc := &mockRentalService{}
	r := newAdminRouter(svc)

	rr := doAdminRequest(r, http.MethodPost, "/admin/plots/7/sell",
		`{"term":"monthly"}`, testAdminToken)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rr.Code)
	}
	if len(svc.createCalls) != 0 {
		t.Errorf("expected 0 Create calls, got %d", len(svc.createCalls))
	}
}

func TestAdminHandler_Sell_InvalidTerm(t *testing.T) {
	svc := &mockRentalService{}
	r := newAdminRouter(svc)

	rr := doAdminRequest(r, http.MethodPost, "/admin/plots/7/sell",
		`{"owner":"0xabc","term":"fortnightly"}`, testAdminToken)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rr.Code)
	}
}

func TestAdminHandler_Sell_PlotActiveConflict(t *testing.T) {
	svc := &mockRentalService{
		createErr: types.NewAppError(types.ErrCodeConflictPlotActive, "plot already has an active rental", nil),
	}
	r := newAdminRouter(svc)

	rr := doAdminRequest(r, http.MethodPost, "/admin/plots/7/sell",
		`{"owner":"0xabc","term":"monthly"}`, testAdminToken)

	if rr.Code != http.StatusConflict {
		t.Errorf("expected status %d, got %d", http.StatusConflict, rr.Code)
	}
}

func TestAdminHandler_Sell_InvalidPlotID(t *testing.T) {
	svc := &mockRentalService{}
	r := newAdminRouter(svc)

	for _, path := range []string{"/admin/plots/0/sell", "/admin/plots/49/sell", "/admin/plots/x/sell"} {
		rr := doAdminRequest(r, http.MethodPost, path, `{"owner":"0xabc","term":"monthly"}`, testAdminToken)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status %d, got %d", path, http.StatusBadRequest, rr.Code)
		}
	}
}

// ---------------------------------------------------------------------------
// Tests: Renew
// ---------------------------------------------------------------------------

func TestAdminHandler_Renew(t *testing.T) {
	svc := &mockRentalService{}
	r := newAdminRouter(svc)

	rr := doAdminRequest(r, http.MethodPost, "/admin/plots/3/renew",
		`{"term":"yearly"}`, testAdminToken)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d; body: %s", http.StatusOK, rr.Code, rr.Body.String())
	}
	if len(svc.renewCalls) != 1 {
		t.Fatalf("expected 1 Renew call, got %d", len(svc.renewCalls))
	}
	if svc.renewCalls[0].ID != 3 || svc.renewCalls[0].Term != types.TermYearly {
		t.Errorf("unexpected Renew call: %+v", svc.renewCalls[0])
	}
}

func TestAdminHandler_Renew_NotActiveConflict(t *testing.T) {
	svc := &mockRentalService{
		renewErr: types.NewAppError(types.ErrCodeConflictPlotNotActive, "plot rental is not active", nil),
	}
	r := newAdminRouter(svc)

	rr := doAdminRequest(r, http.MethodPost, "/admin/plots/3/renew",
		`{"term":"monthly"}`, testAdminToken)

	if rr.Code != http.StatusConflict {
		t.Errorf("expected status %d, got %d", http.StatusConflict, rr.Code)
	}
}

// ---------------------------------------------------------------------------
// Tests: Reset
// ---------------------------------------------------------------------------

func TestAdminHandler_Reset(t *testing.T) {
	svc := &mockRentalService{}
	r := newAdminRouter(svc)

	rr := doAdminRequest(r, http.MethodPost, "/admin/reset", "", testAdminToken)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if svc.resetCalls != 1 {
		t.Errorf("expected 1 Reset call, got %d", svc.resetCalls)
	}

	var resp map[string]map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["data"]["status"] != "reset" {
		t.Errorf("expected status reset, got %q", resp["data"]["status"])
	}
}
