package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"persediaan/backend/internal/domain"
	"persediaan/backend/internal/metrics"
	"persediaan/backend/internal/service"
	"persediaan/backend/internal/store/memory"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if got := res.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options nosniff, got %q", got)
	}
	if got := res.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected X-Frame-Options DENY, got %q", got)
	}
	if got := res.Header().Get("Referrer-Policy"); got == "" {
		t.Fatalf("expected Referrer-Policy to be set")
	}
	if got := res.Header().Get(requestIDHeader); got == "" {
		t.Fatalf("expected a generated request id")
	}
}

func newCORSTestAPI(t *testing.T, origin string) *API {
	t.Helper()
	repo, err := memory.NewSeeded()
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}
	svc := service.New(repo, nil, service.Options{})
	return New(svc, NewAuthManager("test-secret-key-for-handler-tests", time.Hour, repo), Options{AllowedOrigin: origin})
}

func TestCORSPreflightSkipsAuth(t *testing.T) {
	const origin = "https://persediaan.example.go.id"
	api := newCORSTestAPI(t, origin)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/items", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code == http.StatusUnauthorized || res.Code >= http.StatusMultipleChoices {
		t.Fatalf("expected preflight to succeed without a token, got %d", res.Code)
	}
	if got := res.Header().Get("Access-Control-Allow-Origin"); got != origin {
		t.Fatalf("expected allowed origin %q, got %q", origin, got)
	}
	if got := res.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, http.MethodPost) {
		t.Fatalf("expected POST to be allowed, got %q", got)
	}
}

func TestCORSRejectsOtherOrigins(t *testing.T) {
	api := newCORSTestAPI(t, "https://persediaan.example.go.id")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if got := res.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no CORS grant for a foreign origin, got %q", got)
	}
	if got := res.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected hardening headers on every response, got %q", got)
	}
}

func TestCORSExposesRequestID(t *testing.T) {
	const origin = "https://persediaan.example.go.id"
	api := newCORSTestAPI(t, origin)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", origin)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if got := res.Header().Get("Access-Control-Allow-Origin"); got != origin {
		t.Fatalf("expected allowed origin %q, got %q", origin, got)
	}
	if got := res.Header().Get("Access-Control-Expose-Headers"); !strings.Contains(got, requestIDHeader) {
		t.Fatalf("expected %s to be exposed, got %q", requestIDHeader, got)
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "trace-abc")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if got := res.Header().Get(requestIDHeader); got != "trace-abc" {
		t.Fatalf("expected request id trace-abc, got %q", got)
	}
}

func TestLoginRateLimitReturns429(t *testing.T) {
	api := newTestAPI(t)
	body, _ := json.Marshal(domain.LoginRequest{Username: "admin", Password: "wrong-pass"})

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "127.0.0.1:5000"
		res := httptest.NewRecorder()

		api.Handler().ServeHTTP(res, req)

		if i < 5 && res.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d expected 401 before limit, got %d", i+1, res.Code)
		}
		if i == 5 && res.Code != http.StatusTooManyRequests {
			t.Fatalf("attempt 6 expected 429, got %d", res.Code)
		}
	}
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	api := newTestAPI(t)
	veryLong := strings.Repeat("a", (1<<20)+1024)
	body := fmt.Sprintf(`{"username":"%s","password":"x"}`, veryLong)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for too large body, got %d", res.Code)
	}
}

func TestUnknownFieldsRejected(t *testing.T) {
	api := newTestAPI(t)
	body := `{"username":"admin","password":"admin123","role":"admin"}`

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", res.Code)
	}
}

func TestProtectedRoutesRequireBearerToken(t *testing.T) {
	api := newTestAPI(t)
	for _, path := range []string{"/api/v1/items", "/api/v1/requests", "/api/v1/audit-logs"} {
		rec := call(t, api, "", http.MethodGet, path, nil, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401 without token, got %d", path, rec.Code)
		}
	}

	rec := call(t, api, "not-a-jwt", http.MethodGet, "/api/v1/items", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", rec.Code)
	}
}

func TestSupervisorIsReadOnly(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "supervisor", "supervisor123")

	rec := call(t, api, token, http.MethodGet, "/api/v1/items", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected supervisor to read items, got %d", rec.Code)
	}
	rec = call(t, api, token, http.MethodGet, "/api/v1/audit-logs", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected supervisor to read audit logs, got %d", rec.Code)
	}

	rec = call(t, api, token, http.MethodPost, "/api/v1/requests", domain.RequestCreateRequest{
		RequesterID: "pgw-004",
		Lines:       []domain.RequestLineInput{{ItemID: "brg-001", Qty: 1}},
	}, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for supervisor write, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	rec = call(t, api, token, http.MethodPost, "/api/v1/stock-opname", domain.OpnameCreateRequest{OperatorID: "pgw-004"}, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for supervisor opname, got %d", rec.Code)
	}
}

func TestPetugasCannotReadAuditLogs(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "petugas", "petugas123")

	rec := call(t, api, token, http.MethodGet, "/api/v1/audit-logs", nil, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestMetricsEndpointExposesHTTPLatency(t *testing.T) {
	repo, err := memory.NewSeeded()
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	svc := service.New(repo, nil, service.Options{Metrics: m})
	api := New(svc, NewAuthManager("test-secret-key-for-handler-tests", time.Hour, repo), Options{
		AllowedOrigin: "*",
		Metrics:       m,
		Gatherer:      reg,
	})

	call(t, api, "", http.MethodGet, "/healthz", nil, nil)
	rec := call(t, api, "", http.MethodGet, "/metrics", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `route="/healthz"`) {
		t.Fatalf("expected /healthz latency sample, got:\n%s", rec.Body.String())
	}
}
