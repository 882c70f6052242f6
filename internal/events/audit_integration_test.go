package events

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nerrad567/servicedesk-core/internal/audit"
	"github.com/nerrad567/servicedesk-core/internal/auth"
	"github.com/nerrad567/servicedesk-core/internal/infrastructure/database"
	_ "github.com/nerrad567/servicedesk-core/migrations"
)

func openMigratedDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "events.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func TestFanout_AuditTrailForSessionLifecycle(t *testing.T) {
	db := openMigratedDB(t)
	ctx := context.Background()

	codec, err := auth.NewTokenCodec([]byte(strings.Repeat("k", 32)), 15*time.Minute, 24*time.Hour)
	require.NoError(t, err)

	auditRepo := audit.NewSQLiteRepository(db.DB)
	metrics := &fakeMetrics{}
	authority := auth.NewAuthority(auth.AuthorityDeps{
		Users:  auth.NewUserRepository(db.DB),
		Tokens: auth.NewTokenRepository(db.DB),
		Hasher: auth.NewPasswordHasher(bcrypt.MinCost),
		Codec:  codec,
		Events: NewFanout(nil, AuditSink{Repo: auditRepo}, MetricsSink{Writer: metrics}),
	})

	_, err = authority.Bootstrap(ctx, "root@x.com", "password123", "Root")
	require.NoError(t, err)

	_, err = authority.Login(ctx, "root@x.com", "wrong", "cli")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)

	sess, err := authority.Login(ctx, "root@x.com", "password123", "cli")
	require.NoError(t, err)

	id, err := codec.VerifyAccess(sess.AccessToken)
	require.NoError(t, err)
	_, err = authority.Logout(ctx, id.Identity(), auth.LogoutRequest{All: true})
	require.NoError(t, err)

	res, err := auditRepo.List(ctx, audit.Filter{})
	require.NoError(t, err)

	actions := make([]string, 0, len(res.Logs))
	for _, l := range res.Logs {
		actions = append(actions, l.Action)
	}
	assert.ElementsMatch(t, []string{"bootstrap", "login_failed", "login_succeeded", "logout_all"}, actions)

	failed, err := auditRepo.List(ctx, audit.Filter{Action: "login_failed"})
	require.NoError(t, err)
	require.Len(t, failed.Logs, 1)
	assert.Equal(t, "wrong_password", failed.Logs[0].Details["reason"])

	for _, l := range res.Logs {
		for _, v := range l.Details {
			s, _ := v.(string)
			assert.NotContains(t, s, "password123")
			assert.NotContains(t, s, sess.RefreshToken)
			assert.NotContains(t, s, sess.AccessToken)
		}
	}

	assert.Len(t, metrics.calls, 4)
}
