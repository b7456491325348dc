package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/internal/rate"
)

// InvalidParam names the request field an error refers to.
type InvalidParam struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ErrorBody is the JSON error response.
type ErrorBody struct {
	Error         string         `json:"error"`
	Message       string         `json:"message"`
	InvalidParams []InvalidParam `json:"invalidParams,omitempty"`
}

// StatusFor maps an engine error to an HTTP status, a stable error code and a
// message safe to show end users.
func StatusFor(err error) (int, ErrorBody) {
	switch {
	case errors.Is(err, goSession.ErrInvalidCredentials):
		return http.StatusUnprocessableEntity, ErrorBody{
			Error:   "invalid_params",
			Message: "Invalid username and/or password",
			InvalidParams: []InvalidParam{{
				Path:    "username",
				Message: "Invalid username and/or password",
			}},
		}
	case errors.Is(err, goSession.ErrUnauthorized):
		return http.StatusUnauthorized, ErrorBody{Error: "unauthorized", Message: "No authorization token was found"}
	case errors.Is(err, goSession.ErrAuthTokenInvalid):
		return http.StatusUnauthorized, ErrorBody{Error: "auth_token_invalid", Message: "Authorization token is invalid"}
	case errors.Is(err, rate.ErrRateLimited):
		return http.StatusTooManyRequests, ErrorBody{Error: "too_many_requests", Message: "Too many failed login attempts"}
	case errors.Is(err, goSession.ErrUserStoreUnavailable):
		return http.StatusServiceUnavailable, ErrorBody{Error: "unavailable", Message: "Service temporarily unavailable"}
	default:
		return http.StatusInternalServerError, ErrorBody{Error: "internal", Message: "Internal server error"}
	}
}

// WriteError writes the response for err. 401 responses carry a
// WWW-Authenticate challenge.
func WriteError(w http.ResponseWriter, err error) {
	status, body := StatusFor(err)
	switch {
	case errors.Is(err, goSession.ErrAuthTokenInvalid):
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	case status == http.StatusUnauthorized:
		w.Header().Set("WWW-Authenticate", "Bearer")
	case status == http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
