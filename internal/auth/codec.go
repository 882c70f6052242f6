package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSecretBytes is the minimum length of the HS256 signing secret.
const MinSecretBytes = 32

// refreshTokenBytes is the entropy of a raw refresh token (256 bits).
const refreshTokenBytes = 32

// AccessClaims is the payload of an access token. It is never persisted.
type AccessClaims struct {
	Subject   string
	Email     string
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
	ID        string // jti
}

// Identity returns the request identity described by the claims.
func (c *AccessClaims) Identity() *Identity {
	return &Identity{ID: c.Subject, Email: c.Email, Role: c.Role}
}

// accessJWT is the on-the-wire claim set.
type accessJWT struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  Role   `json:"role"`
}

// TokenCodec signs and verifies access tokens and mints refresh tokens.
// It is safe for concurrent use.
type TokenCodec struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	now        func() time.Time
}

// CodecOption configures a TokenCodec.
type CodecOption func(*TokenCodec)

// WithClock overrides the time source used for issuing and verifying tokens.
func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) { c.now = now }
}

// WithIssuer sets the iss claim on issued tokens and requires it on verification.
func WithIssuer(issuer string) CodecOption {
	return func(c *TokenCodec) { c.issuer = issuer }
}

// NewTokenCodec creates a codec. The secret must be at least MinSecretBytes long.
func NewTokenCodec(secret []byte, accessTTL, refreshTTL time.Duration, opts ...CodecOption) (*TokenCodec, error) {
	if len(secret) < MinSecretBytes {
		return nil, ErrWeakSecret
	}
	if accessTTL <= 0 {
		accessTTL = FallbackLifetime
	}
	if refreshTTL <= 0 {
		refreshTTL = FallbackLifetime
	}

	c := &TokenCodec{
		secret:     append([]byte(nil), secret...),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AccessTTL returns the configured access token lifetime.
func (c *TokenCodec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (c *TokenCodec) RefreshTTL() time.Duration { return c.refreshTTL }

// SignAccess signs claims as an HS256 JWT. Zero IssuedAt and ExpiresAt are
// filled from the clock and the access lifetime; an empty ID gets a new UUID.
func (c *TokenCodec) SignAccess(claims AccessClaims) (string, error) {
	if claims.IssuedAt.IsZero() {
		claims.IssuedAt = c.now()
	}
	if claims.ExpiresAt.IsZero() {
		claims.ExpiresAt = claims.IssuedAt.Add(c.accessTTL)
	}
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}

	payload := accessJWT{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.Subject,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
			ID:        claims.ID,
		},
		Email: claims.Email,
		Role:  claims.Role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, payload).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// IssueAccess signs a fresh access token for user.
func (c *TokenCodec) IssueAccess(user *User) (string, AccessClaims, error) {
	claims := AccessClaims{
		Subject: user.ID,
		Email:   user.Email,
		Role:    user.Role,
	}
	claims.IssuedAt = c.now()
	claims.ExpiresAt = claims.IssuedAt.Add(c.accessTTL)
	claims.ID = uuid.NewString()

	token, err := c.SignAccess(claims)
	if err != nil {
		return "", AccessClaims{}, err
	}
	return token, claims, nil
}

// VerifyAccess checks the signature, algorithm and expiry of an access token
// and returns its claims. Failures are *InvalidTokenError.
func (c *TokenCodec) VerifyAccess(token string) (*AccessClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	var payload accessJWT
	parsed, err := jwt.ParseWithClaims(token, &payload, func(_ *jwt.Token) (any, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, invalidToken(TokenMalformed, err)
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, invalidToken(TokenExpired, err)
		default:
			return nil, invalidToken(TokenInvalid, err)
		}
	}
	if !parsed.Valid {
		return nil, invalidToken(TokenInvalid, nil)
	}

	if payload.Subject == "" {
		return nil, invalidToken(TokenInvalid, errors.New("missing subject"))
	}
	if !IsValidRole(payload.Role) {
		return nil, invalidToken(TokenInvalid, fmt.Errorf("unknown role %q", payload.Role))
	}

	claims := &AccessClaims{
		Subject: payload.Subject,
		Email:   payload.Email,
		Role:    payload.Role,
		ID:      payload.ID,
	}
	if payload.IssuedAt != nil {
		claims.IssuedAt = payload.IssuedAt.Time
	}
	if payload.ExpiresAt != nil {
		claims.ExpiresAt = payload.ExpiresAt.Time
	}
	return claims, nil
}

// NewRefreshToken returns a new opaque refresh token: 32 random bytes,
// base64url without padding. The caller stores only HashToken of it.
func (c *TokenCodec) NewRefreshToken() (string, error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// RefreshExpiry returns the expiry for a refresh token issued now.
func (c *TokenCodec) RefreshExpiry() time.Time {
	return c.now().Add(c.refreshTTL)
}

// Now returns the codec's current time.
func (c *TokenCodec) Now() time.Time {
	return c.now()
}

// HashToken returns the SHA-256 hex digest of a raw refresh token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
