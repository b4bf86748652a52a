package rest

import (
	"encoding/json"
	"net/http"

	"github.com/kubilitics/kubilitics-backend/internal/errkind"
	"github.com/kubilitics/kubilitics-backend/internal/pkg/logger"
)

// APIError is the structured shape every non-2xx response shares (§7:
// "User-visible failure is always a single category plus a sanitized
// message; no stack traces are exposed").
type APIError struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	respondJSON(w, status, APIError{Error: message, Code: code, RequestID: logger.FromContext(r.Context())})
}

// respondErrKind maps an errkind.Error to its HTTP status, surfacing the
// Kind as the error code rather than letting any caller compare strings.
func respondErrKind(w http.ResponseWriter, r *http.Request, err error) {
	kind := errkind.As(err)
	respondError(w, r, kind.StatusCode(), string(kind), err.Error())
}
