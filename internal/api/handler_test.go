package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nlbridge/nlbridge/internal/auth"
	"github.com/nlbridge/nlbridge/internal/config"
)

func TestHealthEndpoint(t *testing.T) {
	handler := newTestHandler(&fakeRunner{})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := rr.Header().Get("X-Trace-ID"); got == "" {
		t.Fatal("trace header must be set")
	}
}

func TestReadyEndpointReportsFailure(t *testing.T) {
	cfg, _ := config.Load("nlbridge-api", func(string) (string, bool) { return "", false })
	handler := NewHandler(cfg, Dependencies{
		Executor:  &fakeRunner{},
		Readiness: func(context.Context) error { return errors.New("completion service unreachable") },
	})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	cfg, _ := config.Load("nlbridge-api", func(key string) (string, bool) {
		switch key {
		case "NLBRIDGE_AUTH_REQUIRED":
			return "true", true
		case "NLBRIDGE_AUTH_STATIC_KEYS":
			return "k1:analyst:ask", true
		default:
			return "", false
		}
	})
	validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
	if err != nil {
		t.Fatalf("validator: %v", err)
	}
	handler := NewHandler(cfg, Dependencies{
		Executor:       &fakeRunner{},
		AuthMiddleware: auth.Middleware(nil, validator),
	})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/backends", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/backends", nil)
	req.Header.Set("X-API-Key", "k1")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("authenticated status = %d", rr.Code)
	}

	// Health stays open even with auth required.
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("health status = %d", rr.Code)
	}
}

func TestCombineReadinessChecksStopsAtFirstFailure(t *testing.T) {
	calls := 0
	failing := func(context.Context) error { calls++; return errors.New("nope") }
	never := func(context.Context) error { calls++; return nil }

	check := CombineReadinessChecks(nil, failing, never)
	if err := check(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestCheckCompletionConfig(t *testing.T) {
	cfg, _ := config.Load("nlbridge-api", func(string) (string, bool) { return "", false })
	if err := CheckCompletionConfig(cfg)(context.Background()); err == nil {
		t.Fatal("expected error without API key")
	}
	cfg.AI.APIKey = "sk-test"
	if err := CheckCompletionConfig(cfg)(context.Background()); err != nil {
		t.Fatalf("CheckCompletionConfig() error = %v", err)
	}
}
