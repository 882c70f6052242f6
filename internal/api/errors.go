package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/servicedesk-core/internal/auth"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeUnauthorized   = "unauthorised"
	ErrCodeForbidden      = "forbidden"
	ErrCodeConflict       = "conflict"
	ErrCodeInternal       = "internal_error"
	ErrCodeValidation     = "validation_error"
	ErrCodeMethodNotAllow = "method_not_allowed"
	ErrCodeUnavailable    = "service_unavailable"
)

// Session error codes. Clients branch on these, so they are stable.
const (
	ErrCodeInvalidCredentials    = "invalid_credentials"
	ErrCodeRefreshTokenNotFound  = "refresh_token_not_found"
	ErrCodeUserNotFound          = "user_not_found"
	ErrCodeBootstrapNotAllowed   = "bootstrap_not_allowed"
	ErrCodeUserAlreadyExists     = "user_already_exists"
	ErrCodeTokenExpired          = "token_expired"
	ErrCodeInvalidToken          = "invalid_token"
	ErrCodeAuthenticationMissing = "authentication_required"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// authErrorResponse maps a session error to its HTTP form. ok is false for
// errors with no client-facing meaning; those become a generic 500.
func authErrorResponse(err error) (resp Error, ok bool) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return Error{http.StatusUnauthorized, ErrCodeInvalidCredentials, "invalid email or password"}, true
	case errors.Is(err, auth.ErrRefreshTokenNotFound):
		return Error{http.StatusUnauthorized, ErrCodeRefreshTokenNotFound, "refresh token is invalid or has expired"}, true
	case errors.Is(err, auth.ErrUserNotFound):
		return Error{http.StatusUnauthorized, ErrCodeUserNotFound, "user no longer exists"}, true
	case errors.Is(err, auth.ErrInvalidToken):
		if reason, _ := auth.TokenReason(err); reason == auth.TokenExpired {
			return Error{http.StatusUnauthorized, ErrCodeTokenExpired, "access token has expired"}, true
		}
		return Error{http.StatusUnauthorized, ErrCodeInvalidToken, "access token is invalid"}, true
	case errors.Is(err, auth.ErrUnauthorized):
		return Error{http.StatusUnauthorized, ErrCodeAuthenticationMissing, "authentication required"}, true
	case errors.Is(err, auth.ErrForbidden):
		return Error{http.StatusForbidden, ErrCodeForbidden, "insufficient permissions"}, true
	case errors.Is(err, auth.ErrBootstrapNotAllowed):
		return Error{http.StatusConflict, ErrCodeBootstrapNotAllowed, "bootstrap is only allowed before any user exists"}, true
	case errors.Is(err, auth.ErrUserAlreadyExists):
		return Error{http.StatusConflict, ErrCodeUserAlreadyExists, "a user with this email already exists"}, true
	case errors.Is(err, auth.ErrInvalidBootstrap):
		return Error{http.StatusBadRequest, ErrCodeValidation, "email, password and name are required"}, true
	case errors.Is(err, auth.ErrPasswordTooLong):
		return Error{http.StatusBadRequest, ErrCodeValidation, "password must be at most 72 bytes"}, true
	}
	return Error{http.StatusInternalServerError, ErrCodeInternal, "internal server error"}, false
}

// writeAuthError writes the response for a session or guard error.
func writeAuthError(w http.ResponseWriter, err error) {
	resp, _ := authErrorResponse(err)
	writeError(w, resp.Status, resp.Code, resp.Message)
}

// writeServiceError is writeAuthError that also logs unexpected failures.
// Only the generic message reaches the client.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if _, ok := authErrorResponse(err); !ok {
		s.logger.Error(op+" failed",
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
	}
	writeAuthError(w, err)
}
