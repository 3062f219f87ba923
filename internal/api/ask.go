package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/nlbridge/nlbridge/internal/auth"
	"github.com/nlbridge/nlbridge/internal/backend"
	"github.com/nlbridge/nlbridge/internal/executor"
	"github.com/nlbridge/nlbridge/internal/fault"
)

type askRequest struct {
	Question string `json:"question"`
	Backend  string `json:"backend"`
	Context  string `json:"context"`
}

type askResponse struct {
	RequestID  string   `json:"request_id"`
	Backend    string   `json:"backend"`
	Query      string   `json:"query"`
	Columns    []string `json:"columns"`
	Rows       [][]any  `json:"rows"`
	RowCount   int      `json:"row_count"`
	DurationMs int64    `json:"duration_ms"`
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Executor == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASK_NOT_CONFIGURED", "ask dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, "ask"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request askRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}

	if strings.TrimSpace(request.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}
	kind, ok := backend.ParseKind(request.Backend)
	if !ok {
		writeError(r.Context(), w, http.StatusBadRequest, "BACKEND_INVALID", fmt.Sprintf("unknown backend %q", request.Backend), false, nil)
		return
	}

	result, err := deps.Executor.Ask(r.Context(), executor.Request{
		Question: request.Question,
		Backend:  kind,
		Context:  request.Context,
	})
	if err != nil {
		status, code := faultStatus(fault.KindOf(err))
		writeError(r.Context(), w, status, code, err.Error(), fault.Retryable(err), map[string]any{
			"request_id": result.RequestID,
			"backend":    string(kind),
		})
		return
	}

	writeJSON(w, http.StatusOK, askResponse{
		RequestID:  result.RequestID,
		Backend:    string(kind),
		Query:      result.Query,
		Columns:    result.Backend.Columns,
		Rows:       result.Backend.Rows,
		RowCount:   len(result.Backend.Rows),
		DurationMs: result.Backend.Duration.Milliseconds(),
	})
}

func handleListBackends(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Executor == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASK_NOT_CONFIGURED", "ask dependencies are not configured", false, nil)
		return
	}
	kinds := deps.Executor.Backends()
	names := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		names = append(names, string(kind))
	}
	writeJSON(w, http.StatusOK, map[string]any{"backends": names})
}

func requireRole(r *http.Request, role string) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	if identity.HasRole(role) {
		return nil
	}
	return fmt.Errorf("missing required role %q", role)
}

// faultStatus maps a fault kind to the HTTP status and error code the client
// sees. The code is the kind in upper case, so log lines and API responses
// grep the same.
func faultStatus(kind fault.Kind) (int, string) {
	code := strings.ToUpper(string(kind))
	switch kind {
	case fault.KindConfigInvalid:
		return http.StatusBadRequest, code
	case fault.KindQuerySyntax:
		return http.StatusBadRequest, code
	case fault.KindTranslationMalformed, fault.KindTranslationRefused:
		return http.StatusUnprocessableEntity, code
	case fault.KindPermissionDenied:
		return http.StatusForbidden, code
	case fault.KindConnectionRefused, fault.KindAuthenticationFailed,
		fault.KindCertificateInvalid, fault.KindConnectionLost:
		return http.StatusBadGateway, code
	case fault.KindCompletionUnavailable:
		return http.StatusServiceUnavailable, code
	case fault.KindConnectTimeout, fault.KindTranslateTimeout,
		fault.KindExecuteTimeout, fault.KindQueryTimeout:
		return http.StatusGatewayTimeout, code
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}
