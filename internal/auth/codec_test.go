package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret-key-for-jwt-signing-32b!")

func newTestCodec(t *testing.T, opts ...CodecOption) *TokenCodec {
	t.Helper()
	c, err := NewTokenCodec(testSecret, 15*time.Minute, 7*24*time.Hour, opts...)
	if err != nil {
		t.Fatalf("NewTokenCodec() error = %v", err)
	}
	return c
}

func TestNewTokenCodec_WeakSecret(t *testing.T) {
	_, err := NewTokenCodec([]byte("too-short"), time.Minute, time.Hour)
	if !errors.Is(err, ErrWeakSecret) {
		t.Fatalf("NewTokenCodec() error = %v, want ErrWeakSecret", err)
	}
}

func TestTokenCodec_SignVerifyRoundTrip(t *testing.T) {
	c := newTestCodec(t)
	issued := time.Now().Truncate(time.Second)
	in := AccessClaims{
		Subject:   "usr-001",
		Email:     "a@x.com",
		Role:      RoleAdmin,
		IssuedAt:  issued,
		ExpiresAt: issued.Add(10 * time.Minute),
	}

	token, err := c.SignAccess(in)
	if err != nil {
		t.Fatalf("SignAccess() error = %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Fatalf("token should be a three-part JWT, got %q", token)
	}

	got, err := c.VerifyAccess(token)
	if err != nil {
		t.Fatalf("VerifyAccess() error = %v", err)
	}
	if got.Subject != in.Subject || got.Email != in.Email || got.Role != in.Role {
		t.Errorf("claims = %+v, want %+v", got, in)
	}
	if !got.IssuedAt.Equal(in.IssuedAt) || !got.ExpiresAt.Equal(in.ExpiresAt) {
		t.Errorf("times = (%v, %v), want (%v, %v)", got.IssuedAt, got.ExpiresAt, in.IssuedAt, in.ExpiresAt)
	}
	if got.ID == "" {
		t.Error("jti should be filled in")
	}
}

func TestTokenCodec_IssueAccess(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := newTestCodec(t, WithClock(func() time.Time { return now }))

	token, claims, err := c.IssueAccess(&User{ID: "usr-1", Email: "s@x.com", Role: RoleStaff})
	if err != nil {
		t.Fatalf("IssueAccess() error = %v", err)
	}
	if !claims.ExpiresAt.Equal(now.Add(15 * time.Minute)) {
		t.Errorf("ExpiresAt = %v, want %v", claims.ExpiresAt, now.Add(15*time.Minute))
	}

	got, err := c.VerifyAccess(token)
	if err != nil {
		t.Fatalf("VerifyAccess() error = %v", err)
	}
	if got.Role != RoleStaff || got.Subject != "usr-1" {
		t.Errorf("claims = %+v", got)
	}
	if id := got.Identity(); id.ID != "usr-1" || id.Email != "s@x.com" {
		t.Errorf("Identity() = %+v", id)
	}
}

func TestTokenCodec_DistinctTokens(t *testing.T) {
	c := newTestCodec(t)
	user := &User{ID: "usr-1", Role: RoleStaff}

	a, _, err := c.IssueAccess(user)
	if err != nil {
		t.Fatalf("IssueAccess() error = %v", err)
	}
	b, _, err := c.IssueAccess(user)
	if err != nil {
		t.Fatalf("IssueAccess() error = %v", err)
	}
	if a == b {
		t.Error("two issued access tokens should differ")
	}
}

func TestTokenCodec_VerifyFailures(t *testing.T) {
	c := newTestCodec(t)

	past := time.Now().Add(-time.Hour)
	stale := newTestCodec(t, WithClock(func() time.Time { return past }))
	expired, _, err := stale.IssueAccess(&User{ID: "usr-1", Role: RoleStaff})
	if err != nil {
		t.Fatalf("IssueAccess() error = %v", err)
	}

	other, err := NewTokenCodec([]byte("another-secret-of-at-least-32-bytes!!"), time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("NewTokenCodec() error = %v", err)
	}
	wrongKey, _, err := other.IssueAccess(&User{ID: "usr-1", Role: RoleStaff})
	if err != nil {
		t.Fatalf("IssueAccess() error = %v", err)
	}

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub":  "usr-1",
		"role": "admin",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("signing none token: %v", err)
	}

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"sub":  "usr-1",
		"role": "admin",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString(testSecret)
	if err != nil {
		t.Fatalf("signing hs512 token: %v", err)
	}

	unknownRole, err := c.SignAccess(AccessClaims{Subject: "usr-1", Role: "owner"})
	if err != nil {
		t.Fatalf("SignAccess() error = %v", err)
	}
	noSubject, err := c.SignAccess(AccessClaims{Role: RoleStaff})
	if err != nil {
		t.Fatalf("SignAccess() error = %v", err)
	}

	tests := []struct {
		name   string
		token  string
		reason TokenErrorReason
	}{
		{"garbage", "not-a-valid-jwt", TokenMalformed},
		{"empty", "", TokenMalformed},
		{"expired", expired, TokenExpired},
		{"wrong key", wrongKey, TokenInvalid},
		{"alg none", noneAlg, TokenInvalid},
		{"wrong alg", hs512, TokenInvalid},
		{"unknown role", unknownRole, TokenInvalid},
		{"missing subject", noSubject, TokenInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.VerifyAccess(tt.token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("VerifyAccess() error = %v, want ErrInvalidToken", err)
			}
			reason, ok := TokenReason(err)
			if !ok || reason != tt.reason {
				t.Errorf("reason = %q, want %q", reason, tt.reason)
			}
		})
	}
}

func TestTokenCodec_Issuer(t *testing.T) {
	c := newTestCodec(t, WithIssuer("servicedesk"))
	plain := newTestCodec(t)

	token, _, err := plain.IssueAccess(&User{ID: "usr-1", Role: RoleStaff})
	if err != nil {
		t.Fatalf("IssueAccess() error = %v", err)
	}
	if _, err := c.VerifyAccess(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("VerifyAccess() without issuer error = %v, want ErrInvalidToken", err)
	}

	token, _, err = c.IssueAccess(&User{ID: "usr-1", Role: RoleStaff})
	if err != nil {
		t.Fatalf("IssueAccess() error = %v", err)
	}
	if _, err := c.VerifyAccess(token); err != nil {
		t.Errorf("VerifyAccess() error = %v", err)
	}
}

func TestTokenCodec_NewRefreshToken(t *testing.T) {
	c := newTestCodec(t)

	seen := make(map[string]bool)
	for range 50 {
		raw, err := c.NewRefreshToken()
		if err != nil {
			t.Fatalf("NewRefreshToken() error = %v", err)
		}
		if len(raw) != 43 {
			t.Errorf("raw token length = %d, want 43", len(raw))
		}
		if strings.ContainsAny(raw, "+/=.") {
			t.Errorf("raw token %q is not unpadded base64url", raw)
		}
		if seen[raw] {
			t.Fatal("NewRefreshToken() produced a duplicate")
		}
		seen[raw] = true
	}
}

func TestHashToken(t *testing.T) {
	h1 := HashToken("abc")
	h2 := HashToken("abc")
	h3 := HashToken("abd")

	if h1 != h2 {
		t.Error("HashToken() should be deterministic")
	}
	if h1 == h3 {
		t.Error("different inputs should hash differently")
	}
	if len(h1) != 64 {
		t.Errorf("hash length = %d, want 64", len(h1))
	}
	// SHA-256("abc")
	if h1 != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Errorf("HashToken(abc) = %s", h1)
	}
}

func TestTokenCodec_RefreshExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newTestCodec(t, WithClock(func() time.Time { return now }))

	if got := c.RefreshExpiry(); !got.Equal(now.Add(7 * 24 * time.Hour)) {
		t.Errorf("RefreshExpiry() = %v", got)
	}
}
