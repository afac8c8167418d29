// Package api_test runs HTTP-level smoke tests using net/http/httptest.
// These tests do NOT require a PostgreSQL database — they verify:
//   - Gin router routing and middleware wiring
//   - Request validation error responses (400)
//   - JWT auth middleware (401 without token, 401 with bad token)
//   - Response format consistency (success/error envelope)
//   - CORS preflight handling
package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/anavi/settlement/internal/api"
	"github.com/anavi/settlement/internal/config"
	"github.com/anavi/settlement/internal/service"
)

// ── Test helpers ──────────────────────────────────────────────────────────────

func testCfg() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Env:  "development",
			Port: "8080",
		},
		JWT: config.JWTConfig{
			AccessSecret: "test-access-secret-abcdefghijklmnop",
			AdminSecret:  "test-admin-secret-abcdefghijklmnop",
			AccessTTL:    15 * time.Minute,
		},
	}
}

// buildTestRouter creates a Gin engine with a real AuthService (token
// parsing needs no DB) and nil for everything that requires a DB.
func buildTestRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg := testCfg()
	authSvc := service.NewAuthService(cfg)

	return api.SetupRouter(api.RouterDeps{
		AuthSvc: authSvc,
		Hub:     nil,
		Cfg:     cfg,
	})
}

func signTestToken(t *testing.T, cfg *config.Config) string {
	t.Helper()
	claims := service.AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(cfg.JWT.AccessTTL)),
		},
		Role: "user",
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWT.AccessSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf *bytes.Buffer
	if body != "" {
		buf = bytes.NewBufferString(body)
	} else {
		buf = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&m); err != nil {
		t.Fatalf("response is not valid JSON: %v — body: %s", err, rr.Body.String())
	}
	return m
}

// ── /health ───────────────────────────────────────────────────────────────────

func TestHealthEndpoint(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("GET /health = %d, want 200", rr.Code)
	}
}

// ── JWT auth middleware (no token → 401) ──────────────────────────────────────

func TestEscrowStatus_NoToken_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	dealID := uuid.NewString()
	rr := do(t, h, http.MethodGet, "/api/deals/"+dealID+"/escrow", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("GET escrow status without token = %d, want 401", rr.Code)
	}
}

func TestFundEscrow_NoToken_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	dealID := uuid.NewString()
	rr := do(t, h, http.MethodPost, "/api/deals/"+dealID+"/escrow/fund", `{"amount":"1000.00"}`, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("POST fund without token = %d, want 401", rr.Code)
	}
}

func TestCompleteMilestone_NoToken_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	path := "/api/deals/" + uuid.NewString() + "/milestones/" + uuid.NewString() + "/complete"
	rr := do(t, h, http.MethodPost, path, "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("POST complete without token = %d, want 401", rr.Code)
	}
}

func TestAuditTrail_NoToken_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/audit", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("GET /api/audit without token = %d, want 401", rr.Code)
	}
}

func TestTrustScore_NoToken_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/trust/"+uuid.NewString(), "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("GET trust score without token = %d, want 401", rr.Code)
	}
}

// ── JWT auth middleware (invalid token → 401) ─────────────────────────────────

func TestInvalidToken_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/payouts/my", "", map[string]string{
		"Authorization": "Bearer not.a.valid.jwt",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("GET /api/payouts/my with bad JWT = %d, want 401", rr.Code)
	}
}

func TestWrongSecretToken_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	// Well-formed JWT but signed with a different secret.
	claims := jwt.RegisteredClaims{
		Subject:   uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	tok, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("wrong-secret"))
	rr := do(t, h, http.MethodGet, "/api/payouts/my", "", map[string]string{
		"Authorization": "Bearer " + tok,
	})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("wrong-secret JWT = %d, want 401", rr.Code)
	}
}

// ── Request validation (authenticated) ────────────────────────────────────────

func TestCreateDeal_MissingFields(t *testing.T) {
	h := buildTestRouter(t)
	token := signTestToken(t, testCfg())
	rr := do(t, h, http.MethodPost, "/api/deals", `{}`, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("POST /api/deals empty body = %d, want 400", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["success"] != false {
		t.Errorf("response.success should be false on error, got %v", body["success"])
	}
	if body["code"] == nil {
		t.Errorf("error envelope missing 'code', got: %v", body)
	}
}

func TestFundEscrow_BadDealID(t *testing.T) {
	h := buildTestRouter(t)
	token := signTestToken(t, testCfg())
	rr := do(t, h, http.MethodPost, "/api/deals/not-a-uuid/escrow/fund", `{"amount":"50.00"}`, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("fund with malformed deal id = %d, want 400", rr.Code)
	}
}

func TestAuditTrail_BadCursor(t *testing.T) {
	h := buildTestRouter(t)
	token := signTestToken(t, testCfg())
	rr := do(t, h, http.MethodGet, "/api/audit?cursor=banana", "", map[string]string{
		"Authorization": "Bearer " + token,
	})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("audit trail with bad cursor = %d, want 400", rr.Code)
	}
}

// ── Error envelope format ─────────────────────────────────────────────────────

func TestErrorEnvelope_HasRequiredFields(t *testing.T) {
	h := buildTestRouter(t)
	token := signTestToken(t, testCfg())
	rr := do(t, h, http.MethodPost, "/api/deals", `{}`, map[string]string{
		"Authorization": "Bearer " + token,
	})
	body := decodeBody(t, rr)

	for _, field := range []string{"success", "error", "code"} {
		if _, ok := body[field]; !ok {
			t.Errorf("error envelope missing field %q, got: %v", field, body)
		}
	}
	if body["success"] != false {
		t.Errorf("error envelope.success = %v, want false", body["success"])
	}
}

// ── CORS headers ──────────────────────────────────────────────────────────────

func TestCORSOptionsRequest(t *testing.T) {
	h := buildTestRouter(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/deals", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent && rr.Code != http.StatusOK {
		t.Errorf("OPTIONS /api/deals = %d, want 204 or 200", rr.Code)
	}
	allow := rr.Header().Get("Access-Control-Allow-Methods")
	if !strings.Contains(allow, "POST") {
		t.Errorf("Access-Control-Allow-Methods missing POST, got %q", allow)
	}
}

func TestCORSAllowOrigin_Dev(t *testing.T) {
	h := buildTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	origin := rr.Header().Get("Access-Control-Allow-Origin")
	if origin != "*" {
		t.Errorf("Dev CORS origin = %q, want *", origin)
	}
}
