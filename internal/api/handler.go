// Package api exposes the ask pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nlbridge/nlbridge/internal/backend"
	"github.com/nlbridge/nlbridge/internal/config"
	"github.com/nlbridge/nlbridge/internal/executor"
	"github.com/nlbridge/nlbridge/internal/observability"
)

type ReadinessCheck func(ctx context.Context) error

// AskRunner is the executor surface the handlers need.
type AskRunner interface {
	Ask(ctx context.Context, req executor.Request) (executor.Result, error)
	Backends() []backend.Kind
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Executor          AskRunner
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	protected := http.NewServeMux()
	protected.HandleFunc("POST /v1/ask", func(w http.ResponseWriter, r *http.Request) {
		handleAsk(deps, w, r)
	})
	protected.HandleFunc("GET /v1/backends", func(w http.ResponseWriter, r *http.Request) {
		handleListBackends(deps, w, r)
	})

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	mux.Handle("POST /v1/ask", protectedHandler)
	mux.Handle("GET /v1/backends", protectedHandler)

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

// CheckCompletionConfig reports whether the completion service is configured
// well enough to attempt translation.
func CheckCompletionConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.AI.BaseURL == "" {
			return errors.New("completion service base URL is not configured")
		}
		if cfg.AI.APIKey == "" {
			return errors.New("completion service API key is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
