package auth

import (
	"net/http"
	"strings"
)

// Cookie names used for browser sessions.
const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
)

// Resolver extracts and verifies the caller's access token.
type Resolver struct {
	codec *TokenCodec
}

// NewResolver creates a Resolver backed by codec.
func NewResolver(codec *TokenCodec) *Resolver {
	return &Resolver{codec: codec}
}

// Resolve returns the request's identity. A bearer token in the Authorization
// header takes precedence over the access token cookie. With no credential
// at all it returns (nil, nil); a credential that fails verification yields
// an *InvalidTokenError.
func (r *Resolver) Resolve(req *http.Request) (*Identity, error) {
	token := AccessTokenFromRequest(req)
	if token == "" {
		return nil, nil
	}

	claims, err := r.codec.VerifyAccess(token)
	if err != nil {
		return nil, err
	}
	return claims.Identity(), nil
}

// AccessTokenFromRequest returns the bearer token or, failing that, the
// access token cookie. A non-Bearer Authorization header is ignored.
func AccessTokenFromRequest(req *http.Request) string {
	if h := req.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			if token = strings.TrimSpace(token); token != "" {
				return token
			}
		}
	}
	if c, err := req.Cookie(AccessTokenCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return ""
}

// RefreshTokenFromRequest prefers an explicit body value and falls back to
// the refresh token cookie.
func RefreshTokenFromRequest(req *http.Request, bodyValue string) string {
	if bodyValue != "" {
		return bodyValue
	}
	if c, err := req.Cookie(RefreshTokenCookie); err == nil {
		return c.Value
	}
	return ""
}
