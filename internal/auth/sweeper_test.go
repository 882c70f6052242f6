package auth

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingSweeper struct {
	calls atomic.Int32
	err   error
}

func (s *countingSweeper) DeleteExpiredOrRevoked(context.Context) (int64, error) {
	s.calls.Add(1)
	return 1, s.err
}

func TestRunSweeper_StopsOnCancel(t *testing.T) {
	s := &countingSweeper{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		RunSweeper(ctx, s, 5*time.Millisecond, nil)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for s.calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("sweeper ran %d times, want at least 3", s.calls.Load())
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunSweeper did not return after cancel")
	}
}

func TestRunSweeper_SurvivesErrors(t *testing.T) {
	s := &countingSweeper{err: errors.New("db down")}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	RunSweeper(ctx, s, 5*time.Millisecond, nil)

	if s.calls.Load() < 2 {
		t.Errorf("sweeper ran %d times, want it to keep going after errors", s.calls.Load())
	}
}

func TestRunSweeper_AgainstSQLite(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "sweeper@x.com", RoleStaff)
	repo := NewTokenRepository(db)
	ctx, cancel := context.WithCancel(context.Background())

	if _, err := repo.Insert(ctx, user.ID, HashToken("old"), "", time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		RunSweeper(ctx, repo, time.Hour, nil)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		var n int
		if err := db.QueryRow("SELECT COUNT(*) FROM refresh_tokens").Scan(&n); err != nil {
			t.Fatalf("counting tokens: %v", err)
		}
		if n == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("initial sweep did not delete the expired token")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done
}
