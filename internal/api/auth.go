package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nerrad567/servicedesk-core/internal/auth"
)

// refreshCookiePath limits the refresh token cookie to the session endpoints.
const refreshCookiePath = "/api/auth"

// maxDeviceInfoLength caps the stored device description.
const maxDeviceInfoLength = 255

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	DeviceInfo string `json:"deviceInfo,omitempty"`
}

// RefreshRequest is the body of POST /api/auth/refresh. RefreshToken may be
// omitted when the refreshToken cookie is present.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken,omitempty"`
	DeviceInfo   string `json:"deviceInfo,omitempty"`
}

// LogoutRequest is the body of POST /api/auth/logout. The body is optional.
type LogoutRequest struct {
	RefreshToken string `json:"refreshToken,omitempty"`
	LogoutAll    bool   `json:"logoutAll,omitempty"`
}

// BootstrapRequest is the body of POST /api/auth/bootstrap.
type BootstrapRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// BootstrapResponse is returned when the first admin is created.
type BootstrapResponse struct {
	User *auth.User `json:"user"`
}

// SessionView is one active session as listed by GET /api/auth/sessions.
type SessionView struct {
	auth.RefreshToken
	Current bool `json:"current"`
}

// SessionsResponse lists the caller's active sessions.
type SessionsResponse struct {
	Sessions []SessionView `json:"sessions"`
	Count    int           `json:"count"`
}

// handleLogin verifies credentials and opens a session.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "email and password are required")
		return
	}

	sess, err := s.authority.Login(r.Context(), req.Email, req.Password, deviceInfo(r, req.DeviceInfo))
	if err != nil {
		s.writeServiceError(w, r, "login", err)
		return
	}

	s.setSessionCookies(w, sess)
	writeJSON(w, http.StatusOK, sess)
}

// handleRefresh exchanges a refresh token for a new session. The presented
// token is revoked whether or not the client receives the response.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	raw := auth.RefreshTokenFromRequest(r, req.RefreshToken)
	sess, err := s.authority.Refresh(r.Context(), raw, deviceInfo(r, req.DeviceInfo))
	if err != nil {
		if errors.Is(err, auth.ErrRefreshTokenNotFound) || errors.Is(err, auth.ErrUserNotFound) {
			s.clearSessionCookies(w)
		}
		s.writeServiceError(w, r, "refresh", err)
		return
	}

	s.setSessionCookies(w, sess)
	writeJSON(w, http.StatusOK, sess)
}

// handleLogout revokes the presented refresh token, or every session of the
// caller when logoutAll is set, and clears the session cookies.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	var req LogoutRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	result, err := s.authority.Logout(r.Context(), id, auth.LogoutRequest{
		RefreshToken: auth.RefreshTokenFromRequest(r, req.RefreshToken),
		All:          req.LogoutAll,
	})
	if err != nil {
		s.writeServiceError(w, r, "logout", err)
		return
	}

	s.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, result)
}

// handleBootstrap creates the first admin account.
func (s *Server) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	var req BootstrapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	user, err := s.authority.Bootstrap(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		s.writeServiceError(w, r, "bootstrap", err)
		return
	}

	writeJSON(w, http.StatusCreated, BootstrapResponse{User: user})
}

// handleMe returns the caller's identity.
func (s *Server) handleMe(w http.ResponseWriter, _ *http.Request, id *auth.Identity) {
	writeJSON(w, http.StatusOK, id)
}

// handleListSessions lists the caller's active sessions. The session whose
// refresh token cookie accompanies the request is marked current.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	tokens, err := s.authority.Sessions(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, "list sessions", err)
		return
	}

	var currentHash string
	if raw := auth.RefreshTokenFromRequest(r, ""); raw != "" {
		currentHash = auth.HashToken(raw)
	}

	views := make([]SessionView, 0, len(tokens))
	for _, t := range tokens {
		views = append(views, SessionView{
			RefreshToken: t,
			Current:      currentHash != "" && t.TokenHash == currentHash,
		})
	}
	writeJSON(w, http.StatusOK, SessionsResponse{Sessions: views, Count: len(views)})
}

// setSessionCookies stores both tokens of sess in httpOnly cookies.
func (s *Server) setSessionCookies(w http.ResponseWriter, sess *auth.Session) {
	http.SetCookie(w, s.sessionCookie(auth.AccessTokenCookie, sess.AccessToken, "/", sess.ExpiresIn))
	http.SetCookie(w, s.sessionCookie(auth.RefreshTokenCookie, sess.RefreshToken, refreshCookiePath,
		int(time.Until(sess.RefreshExpiresAt).Seconds())))
}

// clearSessionCookies expires both session cookies.
func (s *Server) clearSessionCookies(w http.ResponseWriter) {
	http.SetCookie(w, s.sessionCookie(auth.AccessTokenCookie, "", "/", -1))
	http.SetCookie(w, s.sessionCookie(auth.RefreshTokenCookie, "", refreshCookiePath, -1))
}

func (s *Server) sessionCookie(name, value, path string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   s.cfg.Cookies.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.cfg.Cookies.Secure,
		SameSite: parseSameSite(s.cfg.Cookies.SameSite),
	}
}

func parseSameSite(v string) http.SameSite {
	switch strings.ToLower(v) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// deviceInfo returns the client's own description, falling back to the
// User-Agent header.
func deviceInfo(r *http.Request, declared string) string {
	info := strings.TrimSpace(declared)
	if info == "" {
		info = r.UserAgent()
	}
	if len(info) > maxDeviceInfoLength {
		info = info[:maxDeviceInfoLength]
	}
	return info
}

// decodeOptionalBody decodes a JSON body that may be absent.
func decodeOptionalBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
