package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// AuthorityDeps holds the collaborators of an Authority.
type AuthorityDeps struct {
	Users  UserRepository
	Tokens TokenRepository
	Hasher *PasswordHasher
	Codec  *TokenCodec
	Events EventRecorder // optional
	Logger *slog.Logger  // optional
}

// Authority runs the session lifecycle: login, refresh with rotation, logout
// and first-admin bootstrap. It holds no per-session state of its own.
type Authority struct {
	users  UserRepository
	tokens TokenRepository
	hasher *PasswordHasher
	codec  *TokenCodec
	events EventRecorder
	logger *slog.Logger
}

// NewAuthority creates an Authority.
func NewAuthority(deps AuthorityDeps) *Authority {
	a := &Authority{
		users:  deps.Users,
		tokens: deps.Tokens,
		hasher: deps.Hasher,
		codec:  deps.Codec,
		events: deps.Events,
		logger: deps.Logger,
	}
	if a.events == nil {
		a.events = nopRecorder{}
	}
	if a.logger == nil {
		a.logger = slog.New(slog.DiscardHandler)
	}
	if a.hasher == nil {
		a.hasher = NewPasswordHasher(DefaultPasswordCost)
	}
	return a
}

// Login verifies credentials and opens a new session. Unknown email and wrong
// password both yield ErrInvalidCredentials.
func (a *Authority) Login(ctx context.Context, email, password, deviceInfo string) (*Session, error) {
	email = normaliseEmail(email)

	user, err := a.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			a.hasher.burn(password)
			a.emit(ctx, Event{Kind: EventLoginFailed, Email: email, DeviceInfo: deviceInfo, Reason: "unknown_email"})
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	ok, err := a.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		a.emit(ctx, Event{Kind: EventLoginFailed, UserID: user.ID, Email: email, DeviceInfo: deviceInfo, Reason: "wrong_password"})
		return nil, ErrInvalidCredentials
	}

	if a.hasher.NeedsRehash(user.PasswordHash) {
		a.upgradeHash(ctx, user, password)
	}

	sess, err := a.issue(ctx, user, deviceInfo)
	if err != nil {
		return nil, err
	}

	a.logger.Info("login succeeded", "user_id", user.ID, "role", string(user.Role))
	a.emit(ctx, Event{Kind: EventLoginSucceeded, UserID: user.ID, Email: user.Email, Role: user.Role, DeviceInfo: deviceInfo})
	return sess, nil
}

// Refresh exchanges a raw refresh token for a new session and revokes the
// presented token. Each raw token can be exchanged at most once; concurrent
// exchanges of the same token produce exactly one success.
func (a *Authority) Refresh(ctx context.Context, raw, deviceInfo string) (*Session, error) {
	if raw == "" {
		a.emit(ctx, Event{Kind: EventRefreshRejected, DeviceInfo: deviceInfo, Reason: "missing"})
		return nil, ErrRefreshTokenNotFound
	}

	record, err := a.tokens.FindActiveByHash(ctx, HashToken(raw))
	if err != nil {
		if errors.Is(err, ErrRefreshTokenNotFound) {
			a.emit(ctx, Event{Kind: EventRefreshRejected, DeviceInfo: deviceInfo, Reason: "not_found"})
		}
		return nil, err
	}

	won, err := a.tokens.Revoke(ctx, record.ID)
	if err != nil {
		return nil, err
	}
	if !won {
		a.logger.Warn("refresh token already consumed", "token_id", record.ID, "user_id", record.UserID)
		a.emit(ctx, Event{Kind: EventRefreshRejected, UserID: record.UserID, DeviceInfo: deviceInfo, Reason: "already_rotated"})
		return nil, ErrRefreshTokenNotFound
	}

	user, err := a.users.GetByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			a.emit(ctx, Event{Kind: EventRefreshRejected, UserID: record.UserID, DeviceInfo: deviceInfo, Reason: "user_not_found"})
		}
		return nil, err
	}

	if deviceInfo == "" {
		deviceInfo = record.DeviceInfo
	}
	sess, err := a.issue(ctx, user, deviceInfo)
	if err != nil {
		return nil, err
	}

	a.emit(ctx, Event{Kind: EventTokenRefreshed, UserID: user.ID, Email: user.Email, Role: user.Role, DeviceInfo: deviceInfo})
	return sess, nil
}

// Logout revokes the caller's refresh token, or all of the caller's refresh
// tokens when req.All is set. A token that is already revoked or unknown is
// not an error. Outstanding access tokens stay valid until they expire.
func (a *Authority) Logout(ctx context.Context, id *Identity, req LogoutRequest) (*LogoutResult, error) {
	if err := RequireAuth(id); err != nil {
		return nil, err
	}

	if req.All {
		n, err := a.tokens.RevokeAllForUser(ctx, id.ID)
		if err != nil {
			return nil, err
		}
		a.logger.Info("logged out all sessions", "user_id", id.ID, "revoked", n)
		a.emit(ctx, Event{Kind: EventLogoutAll, UserID: id.ID, Email: id.Email, Role: id.Role, Count: n})
		return &LogoutResult{
			Success: true,
			Message: fmt.Sprintf("Logged out from %d session(s)", n),
			Revoked: n,
		}, nil
	}

	var revoked int64
	if req.RefreshToken != "" {
		changed, err := a.tokens.RevokeByHash(ctx, HashToken(req.RefreshToken))
		if err != nil {
			return nil, err
		}
		if changed {
			revoked = 1
		}
	}

	a.emit(ctx, Event{Kind: EventLogout, UserID: id.ID, Email: id.Email, Role: id.Role, Count: revoked})
	return &LogoutResult{Success: true, Message: "Logged out successfully", Revoked: revoked}, nil
}

// Bootstrap creates the first admin account. It only succeeds while no user
// exists; the final insert re-checks that condition atomically.
func (a *Authority) Bootstrap(ctx context.Context, email, password, name string) (*User, error) {
	email = normaliseEmail(email)
	name = strings.TrimSpace(name)
	if email == "" || password == "" || name == "" {
		return nil, ErrInvalidBootstrap
	}

	count, err := a.users.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting users: %w", err)
	}
	if count > 0 {
		return nil, ErrBootstrapNotAllowed
	}

	if _, err := a.users.GetByEmail(ctx, email); err == nil {
		return nil, ErrUserAlreadyExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	digest, err := a.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	user := &User{
		Email:        email,
		Name:         name,
		PasswordHash: digest,
		Role:         RoleAdmin,
	}
	if err := a.users.CreateFirst(ctx, user); err != nil {
		return nil, err
	}

	a.logger.Info("bootstrap admin created", "user_id", user.ID, "email", user.Email)
	a.emit(ctx, Event{Kind: EventBootstrap, UserID: user.ID, Email: user.Email, Role: user.Role})
	return user, nil
}

// Sessions lists the caller's active refresh token records.
func (a *Authority) Sessions(ctx context.Context, id *Identity) ([]RefreshToken, error) {
	if err := RequireAuth(id); err != nil {
		return nil, err
	}
	return a.tokens.ListActiveByUser(ctx, id.ID)
}

// issue signs an access token and stores a new refresh token for user.
func (a *Authority) issue(ctx context.Context, user *User, deviceInfo string) (*Session, error) {
	access, _, err := a.codec.IssueAccess(user)
	if err != nil {
		return nil, err
	}

	raw, err := a.codec.NewRefreshToken()
	if err != nil {
		return nil, err
	}

	record, err := a.tokens.Insert(ctx, user.ID, HashToken(raw), deviceInfo, a.codec.RefreshExpiry())
	if err != nil {
		return nil, err
	}

	return &Session{
		AccessToken:      access,
		RefreshToken:     raw,
		ExpiresIn:        int(a.codec.AccessTTL().Seconds()),
		RefreshExpiresAt: record.ExpiresAt,
		User:             user,
	}, nil
}

// upgradeHash re-hashes a verified password at the current cost. Failure is
// logged and does not affect the login.
func (a *Authority) upgradeHash(ctx context.Context, user *User, password string) {
	digest, err := a.hasher.Hash(password)
	if err != nil {
		a.logger.Warn("password rehash failed", "user_id", user.ID, "error", err)
		return
	}
	if err := a.users.UpdatePassword(ctx, user.ID, digest); err != nil {
		a.logger.Warn("storing rehashed password failed", "user_id", user.ID, "error", err)
		return
	}
	user.PasswordHash = digest
}

func (a *Authority) emit(ctx context.Context, ev Event) {
	ev.At = a.codec.Now()
	a.events.Record(ctx, ev)
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
