package auth

import (
	"errors"
	"fmt"
)

// Sentinel errors for auth operations. Callers match them with errors.Is.
var (
	// ErrInvalidCredentials is returned by Login for an unknown email and for
	// a wrong password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrRefreshTokenNotFound covers refresh tokens that never existed, were
	// already rotated, were revoked, or have expired.
	ErrRefreshTokenNotFound = errors.New("refresh token not found")

	ErrUserNotFound        = errors.New("user not found")
	ErrUserAlreadyExists   = errors.New("user already exists")
	ErrBootstrapNotAllowed = errors.New("bootstrap not allowed: users already exist")

	// ErrUnauthorized means no identity is present where one is required.
	ErrUnauthorized = errors.New("authentication required")

	// ErrForbidden means an identity is present but its role is insufficient.
	ErrForbidden = errors.New("insufficient permissions")

	// ErrInvalidToken is matched by every *InvalidTokenError.
	ErrInvalidToken = errors.New("invalid token")

	ErrWeakSecret       = errors.New("signing secret must be at least 32 bytes")
	ErrPasswordTooLong  = errors.New("password exceeds 72 bytes")
	ErrUnsupportedHash  = errors.New("unsupported password hash format")
	ErrInvalidBootstrap = errors.New("email, password and name are required")
)

// TokenErrorReason classifies an access token verification failure.
type TokenErrorReason string

const (
	TokenExpired   TokenErrorReason = "expired"
	TokenInvalid   TokenErrorReason = "invalid"
	TokenMalformed TokenErrorReason = "malformed"
)

// InvalidTokenError is returned by TokenCodec.VerifyAccess.
type InvalidTokenError struct {
	Reason TokenErrorReason
	Err    error
}

func (e *InvalidTokenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid token (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid token (%s)", e.Reason)
}

// Is makes errors.Is(err, ErrInvalidToken) true for every reason.
func (e *InvalidTokenError) Is(target error) bool {
	return target == ErrInvalidToken
}

func (e *InvalidTokenError) Unwrap() error {
	return e.Err
}

func invalidToken(reason TokenErrorReason, err error) *InvalidTokenError {
	return &InvalidTokenError{Reason: reason, Err: err}
}

// TokenReason extracts the reason from an *InvalidTokenError in err's chain.
// It returns false when err is not a token error.
func TokenReason(err error) (TokenErrorReason, bool) {
	var te *InvalidTokenError
	if errors.As(err, &te) {
		return te.Reason, true
	}
	return "", false
}
