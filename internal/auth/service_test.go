package auth_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/vovakirdan/wirechat-client/internal/apitest"
	"github.com/vovakirdan/wirechat-client/internal/auth"
	"github.com/vovakirdan/wirechat-client/internal/transport/rest"
)

func newTestAuthService(t *testing.T) (*auth.Service, *auth.Session) {
	t.Helper()

	_, ts := apitest.Start(t)
	session, err := auth.OpenSession(filepath.Join(t.TempDir(), "token"))
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	api := rest.New(apitest.APIURL(ts), session, nil)
	return auth.NewService(api, session), session
}

func TestRegister_RejectsInvalidUsername(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "ab", "password123"); !errors.Is(err, auth.ErrInvalidUsername) {
		t.Fatalf("expected ErrInvalidUsername, got %v", err)
	}

	// Should be validated after trimming whitespace.
	if _, err := svc.Register(ctx, " ab ", "password123"); !errors.Is(err, auth.ErrInvalidUsername) {
		t.Fatalf("expected ErrInvalidUsername, got %v", err)
	}
}

func TestRegister_RejectsInvalidPassword(t *testing.T) {
	svc, _ := newTestAuthService(t)

	if _, err := svc.Register(context.Background(), "abc", "12345"); !errors.Is(err, auth.ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
}

func TestRegister_TrimsUsernameAndStoresSession(t *testing.T) {
	svc, session := newTestAuthService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, " alice ", "password123")
	if err != nil {
		t.Fatalf("expected registration success, got %v", err)
	}
	if user.Name != "alice" || user.ID == "" {
		t.Fatalf("unexpected user %+v", user)
	}
	if session.Token() == "" {
		t.Fatal("expected token to be stored")
	}

	// Should collide because the stored username is trimmed.
	if _, err := svc.Register(ctx, "alice", "password123"); !errors.Is(err, auth.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	svc, session := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice", "password123"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := svc.Logout(); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.Current(); !errors.Is(err, auth.ErrNoSession) {
		t.Fatalf("expected ErrNoSession after logout, got %v", err)
	}

	if _, err := svc.Login(ctx, "alice", "wrong-password"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody", "password123"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}

	user, err := svc.Login(ctx, " alice ", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	current, err := svc.Current()
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if current != user || session.Token() == "" {
		t.Fatalf("expected current user %+v, got %+v", user, current)
	}
}
